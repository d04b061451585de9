package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zerverless/jobmarket/internal/logging"
)

// Subscriber is a connected feed client.
type Subscriber struct {
	ID            string    `json:"id"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	RemoteAddr    string    `json:"remote_addr,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Filtered      bool      `json:"filtered"`
	Delivered     int       `json:"delivered"`
}

func NewSubscriber() *Subscriber {
	now := time.Now().UTC()
	return &Subscriber{
		ID:            uuid.NewString(),
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
}

type Stats struct {
	Connected int `json:"connected"`
	Filtered  int `json:"filtered"`
	Delivered int `json:"delivered"`
}

// Manager tracks connected subscribers for reporting.
type Manager struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	logger *zap.SugaredLogger
}

func NewManager() *Manager {
	return &Manager{
		subs:   make(map[string]*Subscriber),
		logger: logging.ComponentLogger("feed"),
	}
}

func (m *Manager) Add(s *Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.ID] = s
	m.logger.Infow("subscriber connected",
		logging.FieldSubscriber, s.ID,
		logging.FieldAddress, s.RemoteAddr,
		"total", len(m.subs))
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	m.logger.Infow("subscriber disconnected", logging.FieldSubscriber, id, "total", len(m.subs))
}

// Get returns a copy of the subscriber record.
func (m *Manager) Get(id string) (Subscriber, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[id]
	if !ok {
		return Subscriber{}, false
	}
	return *s, true
}

func (m *Manager) Heartbeat(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[id]; ok {
		s.LastHeartbeat = time.Now().UTC()
	}
}

func (m *Manager) SetFiltered(id string, filtered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[id]; ok {
		s.Filtered = filtered
	}
}

func (m *Manager) Delivered(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[id]; ok {
		s.Delivered++
	}
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var st Stats
	for _, s := range m.subs {
		st.Connected++
		if s.Filtered {
			st.Filtered++
		}
		st.Delivered += s.Delivered
	}
	return st
}
