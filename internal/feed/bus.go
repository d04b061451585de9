// Package feed fans job lifecycle events out to live subscribers.
package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/logging"
)

type EventType string

const (
	EventJobCreated    EventType = "job.created"
	EventJobObtained   EventType = "job.obtained"
	EventJobSubmitted  EventType = "job.submitted"
	EventJobRejected   EventType = "job.rejected"
	EventJobApproved   EventType = "job.approved"
	EventAccountFunded EventType = "account.funded"
)

type Event struct {
	ID     string       `json:"id"`
	Type   EventType    `json:"type"`
	JobID  *job.JobID   `json:"job_id,omitempty"`
	Status job.Status   `json:"status,omitempty"`
	Actor  job.Identity `json:"actor"`
	Amount job.Amount   `json:"amount,omitempty"`
	At     time.Time    `json:"at"`
}

// JobEvent builds an event describing j after a transition made by actor.
func JobEvent(t EventType, j *job.Job, actor job.Identity) Event {
	id := j.ID
	return Event{
		ID:     uuid.NewString(),
		Type:   t,
		JobID:  &id,
		Status: j.Status,
		Actor:  actor,
		Amount: j.Budget,
		At:     time.Now().UTC(),
	}
}

func AccountEvent(t EventType, actor job.Identity, amount job.Amount) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   t,
		Actor:  actor,
		Amount: amount,
		At:     time.Now().UTC(),
	}
}

const subscriberBuffer = 100

type subscriber struct {
	ch     chan Event
	filter map[job.Status]bool
}

// Bus delivers every published event to each subscriber whose status filter
// accepts it. A subscriber that falls behind loses events instead of blocking
// the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	logger *zap.SugaredLogger
}

func NewBus() *Bus {
	return &Bus{
		subs:   make(map[string]*subscriber),
		logger: logging.ComponentLogger("feed"),
	}
}

// Subscribe registers id and returns its event channel and an unsubscribe
// func. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(id string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	b.subs[id] = sub

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.subs[id] == sub {
				delete(b.subs, id)
			}
			close(sub.ch)
		})
	}
	return sub.ch, unsub
}

// SetFilter narrows subscriber id to events carrying one of statuses. An
// empty list accepts everything again.
func (b *Bus) SetFilter(id string, statuses []job.Status) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return false
	}
	if len(statuses) == 0 {
		sub.filter = nil
		return true
	}
	sub.filter = make(map[job.Status]bool, len(statuses))
	for _, s := range statuses {
		sub.filter[s] = true
	}
	return true
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		if sub.filter != nil && !sub.filter[e.Status] {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.logger.Warnw("subscriber channel full, dropping event",
				logging.FieldSubscriber, id,
				"event_type", e.Type)
		}
	}
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
