package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneThreshold: после скольких пользователей чистить неактивные лимитеры
const pruneThreshold = 1024

// rateLimiter ограничивает число входящих сообщений от одного пользователя
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &rateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (r *rateLimiter) Allow(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[userID]
	if !ok {
		if len(r.limiters) >= pruneThreshold {
			r.prune()
		}
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[userID] = l
	}
	return l.Allow()
}

// prune удаляет лимитеры, успевшие восстановиться полностью: они ничем не
// отличаются от новых
func (r *rateLimiter) prune() {
	for id, l := range r.limiters {
		if l.Tokens() >= float64(r.burst) {
			delete(r.limiters, id)
		}
	}
}
