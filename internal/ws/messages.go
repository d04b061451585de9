package ws

import (
	"time"

	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/job"
)

const (
	TypeAck        = "ack"
	TypeSubscribe  = "subscribe"
	TypeSubscribed = "subscribed"
	TypeHeartbeat  = "heartbeat"
	TypeEvent      = "event"
	TypeError      = "error"
	TypeQuit       = "quit"
)

type BaseMessage struct {
	Type string `json:"type"`
}

// Client → server

// SubscribeMessage narrows the feed to events whose job status is listed.
// An empty list restores the full feed.
type SubscribeMessage struct {
	Type     string       `json:"type"`
	Statuses []job.Status `json:"statuses,omitempty"`
}

type HeartbeatMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Server → client

type AckMessage struct {
	Type         string `json:"type"`
	SubscriberID string `json:"subscriber_id"`
	Message      string `json:"message"`
}

type SubscribedMessage struct {
	Type     string       `json:"type"`
	Statuses []job.Status `json:"statuses"`
}

type EventMessage struct {
	Type  string     `json:"type"`
	Event feed.Event `json:"event"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
