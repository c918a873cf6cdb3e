package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sendLimiter throttles message sends per user. A nil limiter allows all.
type sendLimiter struct {
	mu    sync.Mutex
	every rate.Limit
	burst int
	users map[int64]*rate.Limiter
}

func newSendLimiter(perMinute int) *sendLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &sendLimiter{
		every: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: perMinute,
		users: make(map[int64]*rate.Limiter),
	}
}

func (l *sendLimiter) allow(userID int64) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	lim, ok := l.users[userID]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.users[userID] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}
