package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemory_TokenLifecycle(t *testing.T) {
	m := NewMemory(0)

	_, ok := m.Token(1)
	assert.False(t, ok)

	m.SetToken(1, "abc")
	token, ok := m.Token(1)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	m.Clear(1)
	_, ok = m.Token(1)
	assert.False(t, ok)
}

func TestMemory_TokenExpires(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return now }

	m.SetToken(1, "abc")
	now = now.Add(59 * time.Minute)
	_, ok := m.Token(1)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = m.Token(1)
	assert.False(t, ok)

	m.mu.RLock()
	_, stored := m.tokens[1]
	m.mu.RUnlock()
	assert.False(t, stored, "expired token is dropped")
}
