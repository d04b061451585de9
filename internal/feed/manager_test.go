package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AddRemove(t *testing.T) {
	m := NewManager()
	s := NewSubscriber()

	m.Add(s)
	assert.Equal(t, 1, m.Stats().Connected)

	m.Remove(s.ID)
	assert.Equal(t, 0, m.Stats().Connected)
}

func TestManager_Get(t *testing.T) {
	m := NewManager()
	s := NewSubscriber()
	s.RemoteAddr = "10.0.0.1:5000"
	m.Add(s)

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "10.0.0.1:5000", got.RemoteAddr)

	_, ok = m.Get("nonexistent")
	assert.False(t, ok)
}

func TestManager_Stats(t *testing.T) {
	m := NewManager()
	s1 := NewSubscriber()
	s2 := NewSubscriber()
	m.Add(s1)
	m.Add(s2)

	m.SetFiltered(s2.ID, true)
	m.Delivered(s1.ID)
	m.Delivered(s1.ID)
	m.Delivered(s2.ID)
	m.Heartbeat(s1.ID)
	m.Delivered("gone")

	assert.Equal(t, Stats{Connected: 2, Filtered: 1, Delivered: 3}, m.Stats())
}
