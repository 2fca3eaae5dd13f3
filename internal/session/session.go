package session

import (
	"sync"
	"time"
)

// DefaultTokenTTL: срок жизни токена доступа
const DefaultTokenTTL = 7 * 24 * time.Hour

type entry struct {
	token   string
	savedAt time.Time
}

// Memory хранит токены доступа пользователей в памяти.
// Сценарии видят только «токен есть» или «токена нет».
type Memory struct {
	mu     sync.RWMutex
	tokens map[int64]entry
	ttl    time.Duration
	now    func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Memory{
		tokens: make(map[int64]entry),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Token возвращает действующий токен. Просроченный токен удаляется.
func (m *Memory) Token(userID int64) (string, bool) {
	m.mu.RLock()
	e, ok := m.tokens[userID]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}

	if m.now().Sub(e.savedAt) > m.ttl {
		m.Clear(userID)
		return "", false
	}
	return e.token, true
}

func (m *Memory) SetToken(userID int64, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = entry{token: token, savedAt: m.now()}
}

func (m *Memory) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID)
}
