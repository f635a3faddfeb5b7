package ws

import (
	"sync"
	"time"

	"github.com/dkeye/eventchat/internal/domain"
)

const (
	sendLimit  = 20
	sendWindow = 10 * time.Second
)

// sendRateLimiter caps how many messages a user may send within a
// sliding window, across all of their connections.
type sendRateLimiter struct {
	mu        sync.Mutex
	history   map[domain.UserID][]time.Time
	limit     int
	interval  time.Duration
	lastSweep time.Time
}

func newSendRateLimiter(limit int, interval time.Duration) *sendRateLimiter {
	return &sendRateLimiter{
		history:   make(map[domain.UserID][]time.Time),
		limit:     limit,
		interval:  interval,
		lastSweep: time.Now(),
	}
}

func (rl *sendRateLimiter) Allow(uid domain.UserID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)
	if now.Sub(rl.lastSweep) > rl.interval {
		rl.sweep(windowStart)
		rl.lastSweep = now
	}

	attempts := rl.history[uid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[uid] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[uid] = fresh
	return true
}

// sweep drops users whose whole history slid out of the window, so
// disconnected users do not pin map entries forever.
func (rl *sendRateLimiter) sweep(windowStart time.Time) {
	for uid, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, uid)
		}
	}
}
