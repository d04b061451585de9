package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/logging"
)

// Watcher follows a remote feed and hands each event to a callback,
// reconnecting when the connection drops.
type Watcher struct {
	url      string
	statuses []job.Status
	handle   func(feed.Event)
	logger   *zap.SugaredLogger

	RetryDelay        time.Duration
	HeartbeatInterval time.Duration

	id string
}

func NewWatcher(url string, statuses []job.Status, handle func(feed.Event)) *Watcher {
	return &Watcher{
		url:               url,
		statuses:          statuses,
		handle:            handle,
		logger:            logging.ComponentLogger("watcher"),
		RetryDelay:        5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// ID returns the subscriber id of the current connection.
func (w *Watcher) ID() string {
	return w.id
}

func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := w.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Warnw("feed connection lost, reconnecting",
					logging.FieldAddress, w.url,
					logging.FieldError, err,
					"retry_in", w.RetryDelay)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(w.RetryDelay):
				}
			}
		}
	}
}

func (w *Watcher) connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, w.url, nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer conn.Close(websocket.StatusNormalClosure, "goodbye")

	var ack AckMessage
	if err := wsjson.Read(ctx, conn, &ack); err != nil {
		return errors.Wrap(err, "read ack")
	}
	if ack.Type != TypeAck {
		return errors.Newf("expected ack, got %q", ack.Type)
	}
	w.id = ack.SubscriberID
	w.logger.Infow("watching feed", logging.FieldSubscriber, w.id, logging.FieldAddress, w.url)

	if len(w.statuses) > 0 {
		if err := wsjson.Write(ctx, conn, SubscribeMessage{Type: TypeSubscribe, Statuses: w.statuses}); err != nil {
			return errors.Wrap(err, "send subscribe")
		}
	}

	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.heartbeat(hbCtx, conn)

	return w.messageLoop(ctx, conn)
}

func (w *Watcher) messageLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return errors.Wrap(err, "read")
		}

		var base BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			w.logger.Debugw("invalid message", logging.FieldError, err)
			continue
		}

		switch base.Type {
		case TypeEvent:
			var msg EventMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				w.logger.Debugw("invalid event", logging.FieldError, err)
				continue
			}
			w.handle(msg.Event)
		case TypeError:
			var msg ErrorMessage
			_ = json.Unmarshal(data, &msg)
			return errors.Newf("feed refused request: %s", msg.Error)
		case TypeSubscribed, TypeHeartbeat:
		default:
			w.logger.Debugw("unknown message type", "type", base.Type)
		}
	}
}

func (w *Watcher) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(w.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wsjson.Write(ctx, conn, HeartbeatMessage{Type: TypeHeartbeat}); err != nil {
				return
			}
		}
	}
}
