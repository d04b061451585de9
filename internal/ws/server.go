package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/logging"
)

const writeTimeout = 5 * time.Second

// Server streams feed events to websocket subscribers.
type Server struct {
	bus            *feed.Bus
	manager        *feed.Manager
	originPatterns []string
	logger         *zap.SugaredLogger
}

func NewServer(bus *feed.Bus, manager *feed.Manager, originPatterns []string) *Server {
	return &Server{
		bus:            bus,
		manager:        manager,
		originPatterns: originPatterns,
		logger:         logging.ComponentLogger("ws"),
	}
}

func (s *Server) HandleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.Warnw("websocket accept failed", logging.FieldError, err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "goodbye")

	sub := feed.NewSubscriber()
	sub.RemoteAddr = r.RemoteAddr
	sub.UserAgent = r.UserAgent()
	s.manager.Add(sub)
	defer s.manager.Remove(sub.ID)

	events, unsubscribe := s.bus.Subscribe(sub.ID)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ack := AckMessage{Type: TypeAck, SubscriberID: sub.ID, Message: "Welcome!"}
	if err := s.write(ctx, conn, ack); err != nil {
		s.logger.Warnw("failed to send ack", logging.FieldSubscriber, sub.ID, logging.FieldError, err)
		return
	}

	go func() {
		defer cancel()
		s.handleMessages(ctx, conn, sub.ID)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := s.write(ctx, conn, EventMessage{Type: TypeEvent, Event: e}); err != nil {
				s.logger.Debugw("event write failed", logging.FieldSubscriber, sub.ID, logging.FieldError, err)
				return
			}
			s.manager.Delivered(sub.ID)
		}
	}
}

func (s *Server) handleMessages(ctx context.Context, conn *websocket.Conn, id string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debugw("websocket read ended", logging.FieldSubscriber, id, logging.FieldError, err)
			}
			return
		}

		var msg BaseMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debugw("invalid message format", logging.FieldSubscriber, id, logging.FieldError, err)
			continue
		}

		switch msg.Type {
		case TypeSubscribe:
			var subMsg SubscribeMessage
			if err := json.Unmarshal(data, &subMsg); err != nil {
				_ = s.write(ctx, conn, ErrorMessage{Type: TypeError, Error: "invalid subscribe message"})
				continue
			}
			statuses, err := normalizeStatuses(subMsg.Statuses)
			if err != nil {
				_ = s.write(ctx, conn, ErrorMessage{Type: TypeError, Error: err.Error()})
				continue
			}
			s.bus.SetFilter(id, statuses)
			s.manager.SetFiltered(id, len(statuses) > 0)
			_ = s.write(ctx, conn, SubscribedMessage{Type: TypeSubscribed, Statuses: statuses})

		case TypeHeartbeat:
			s.manager.Heartbeat(id)
			_ = s.write(ctx, conn, HeartbeatMessage{Type: TypeHeartbeat, Timestamp: time.Now().UTC()})

		case TypeQuit:
			return

		default:
			s.logger.Debugw("unknown message type", logging.FieldSubscriber, id, "type", msg.Type)
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func normalizeStatuses(in []job.Status) ([]job.Status, error) {
	out := make([]job.Status, 0, len(in))
	for _, st := range in {
		parsed, err := job.ParseStatus(string(st))
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}
