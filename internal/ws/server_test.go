package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/job"
)

type testFeed struct {
	bus     *feed.Bus
	manager *feed.Manager
	server  *httptest.Server
	url     string
}

func newTestFeed(t *testing.T) *testFeed {
	t.Helper()
	bus := feed.NewBus()
	manager := feed.NewManager()
	srv := httptest.NewServer(NewServer(bus, manager, []string{"*"}).HandleFeed)
	t.Cleanup(srv.Close)
	return &testFeed{
		bus:     bus,
		manager: manager,
		server:  srv,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func dial(t *testing.T, ctx context.Context, url string) (*websocket.Conn, AckMessage) {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	var ack AckMessage
	require.NoError(t, wsjson.Read(ctx, conn, &ack))
	require.Equal(t, TypeAck, ack.Type)
	require.NotEmpty(t, ack.SubscriberID)
	return conn, ack
}

func openJob(id job.JobID, status job.Status) *job.Job {
	return &job.Job{ID: id, Status: status, Owner: "alice", Budget: 5}
}

func TestServer_StreamsEvents(t *testing.T) {
	f := newTestFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, ack := dial(t, ctx, f.url)
	require.Eventually(t, func() bool {
		_, ok := f.manager.Get(ack.SubscriberID)
		return ok && f.bus.Len() == 1
	}, time.Second, 10*time.Millisecond)

	f.bus.Publish(feed.JobEvent(feed.EventJobCreated, openJob(4, job.StatusOpen), "alice"))

	var msg EventMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, TypeEvent, msg.Type)
	assert.Equal(t, feed.EventJobCreated, msg.Event.Type)
	require.NotNil(t, msg.Event.JobID)
	assert.Equal(t, job.JobID(4), *msg.Event.JobID)

	require.Eventually(t, func() bool {
		return f.manager.Stats().Delivered == 1
	}, time.Second, 10*time.Millisecond)
}

func TestServer_SubscribeFilters(t *testing.T) {
	f := newTestFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, ack := dial(t, ctx, f.url)
	require.NoError(t, wsjson.Write(ctx, conn, SubscribeMessage{Type: TypeSubscribe, Statuses: []job.Status{"review"}}))

	var sub SubscribedMessage
	require.NoError(t, wsjson.Read(ctx, conn, &sub))
	assert.Equal(t, TypeSubscribed, sub.Type)
	assert.Equal(t, []job.Status{job.StatusReview}, sub.Statuses)

	got, ok := f.manager.Get(ack.SubscriberID)
	require.True(t, ok)
	assert.True(t, got.Filtered)

	f.bus.Publish(feed.JobEvent(feed.EventJobObtained, openJob(1, job.StatusDoing), "bob"))
	f.bus.Publish(feed.JobEvent(feed.EventJobSubmitted, openJob(1, job.StatusReview), "bob"))

	var msg EventMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, feed.EventJobSubmitted, msg.Event.Type)
}

func TestServer_SubscribeUnknownStatus(t *testing.T) {
	f := newTestFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, f.url)
	require.NoError(t, wsjson.Write(ctx, conn, SubscribeMessage{Type: TypeSubscribe, Statuses: []job.Status{"PAID"}}))

	var msg ErrorMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Error, "PAID")
}

func TestServer_Heartbeat(t *testing.T) {
	f := newTestFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, f.url)
	require.NoError(t, wsjson.Write(ctx, conn, HeartbeatMessage{Type: TypeHeartbeat}))

	var hb HeartbeatMessage
	require.NoError(t, wsjson.Read(ctx, conn, &hb))
	assert.Equal(t, TypeHeartbeat, hb.Type)
	assert.False(t, hb.Timestamp.IsZero())
}

func TestServer_DisconnectRemovesSubscriber(t *testing.T) {
	f := newTestFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, f.url)
	require.NoError(t, wsjson.Write(ctx, conn, BaseMessage{Type: TypeQuit}))

	require.Eventually(t, func() bool {
		return f.manager.Stats().Connected == 0 && f.bus.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
