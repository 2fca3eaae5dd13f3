package state

import (
	"sync"
	"time"

	"github.com/ivanoskov/copperx_bot/internal/model"
)

// Store: общая таблица активных сценариев, ключ: ID пользователя.
// На пользователя хранится не больше одного сценария.
type Store struct {
	mu     sync.RWMutex
	flows  map[int64]model.Flow
	locks  map[int64]*userLock
	locksM sync.Mutex

	idleTimeout time.Duration
	now         func() time.Time
	onEvict     func(model.Flow)

	done   chan struct{}
	closed bool
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Option настраивает Store
type Option func(*Store)

// WithClock подменяет часы (для тестов)
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithEvictHook вызывается для каждого сценария, удалённого по простою
func WithEvictHook(fn func(model.Flow)) Option {
	return func(s *Store) { s.onEvict = fn }
}

// New создаёт хранилище. При idleTimeout > 0 фоновая горутина раз в
// sweepInterval удаляет сценарии, простаивающие дольше idleTimeout.
func New(idleTimeout, sweepInterval time.Duration, opts ...Option) *Store {
	s := &Store{
		flows:       make(map[int64]model.Flow),
		locks:       make(map[int64]*userLock),
		idleTimeout: idleTimeout,
		now:         time.Now,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if idleTimeout > 0 && sweepInterval > 0 {
		go s.sweep(sweepInterval)
	}
	return s
}

// Get возвращает копию сценария. Отсутствие записи: это «не в сценарии», а не ошибка.
func (s *Store) Get(userID int64) (model.Flow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flows[userID]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// Set целиком заменяет сценарий пользователя копией переданного
func (s *Store) Set(userID int64, flow model.Flow) {
	stored := flow.Clone()
	stored.Touch(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[userID] = stored
}

func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, userID)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flows)
}

// Lock захватывает критическую секцию пользователя и возвращает функцию
// освобождения. Сообщения одного пользователя обрабатываются строго по очереди.
func (s *Store) Lock(userID int64) func() {
	s.locksM.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.locksM.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.locksM.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.locksM.Unlock()
	}
}

func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.EvictIdle()
		case <-s.done:
			return
		}
	}
}

// EvictIdle удаляет сценарии, простаивающие дольше idleTimeout, и
// возвращает их количество
func (s *Store) EvictIdle() int {
	if s.idleTimeout <= 0 {
		return 0
	}

	now := s.now()
	var evicted []model.Flow

	s.mu.Lock()
	for id, f := range s.flows {
		if now.Sub(f.Touched()) > s.idleTimeout {
			evicted = append(evicted, f)
			delete(s.flows, id)
		}
	}
	s.mu.Unlock()

	if s.onEvict != nil {
		for _, f := range evicted {
			s.onEvict(f)
		}
	}
	return len(evicted)
}

// Close останавливает фоновую очистку. Повторный вызов безопасен.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
