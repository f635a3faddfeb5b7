package chat

import (
	"sync"
	"time"

	"github.com/dkeye/eventchat/internal/domain"
)

// typingEntry is the ephemeral per-(room, user) typing state. A fresh
// signal resets the expiry timer instead of stacking a second one.
// gen ties each timer to the Set call that armed it, so a timer that
// fired just before a refresh cannot clear the refreshed entry.
type typingEntry struct {
	name  string
	gen   uint64
	timer *time.Timer
}

// typingTracker keeps who is typing where. State is lossy by design: a
// silent disconnect self-heals when the entry expires.
type typingTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	rooms   map[domain.EventID]map[domain.UserID]*typingEntry
	expired func(eventID domain.EventID, userID domain.UserID)
}

func newTypingTracker(ttl time.Duration, expired func(domain.EventID, domain.UserID)) *typingTracker {
	return &typingTracker{
		ttl:     ttl,
		rooms:   make(map[domain.EventID]map[domain.UserID]*typingEntry),
		expired: expired,
	}
}

// Set creates or refreshes the entry and reports whether it is new.
func (t *typingTracker) Set(eventID domain.EventID, userID domain.UserID, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.rooms[eventID]
	if !ok {
		users = make(map[domain.UserID]*typingEntry)
		t.rooms[eventID] = users
	}
	if e, ok := users[userID]; ok {
		e.timer.Stop()
		e.gen++
		e.timer = t.expiryTimer(eventID, userID, e.gen)
		return false
	}
	e := &typingEntry{name: name}
	e.timer = t.expiryTimer(eventID, userID, e.gen)
	users[userID] = e
	return true
}

// Clear cancels the timer and removes the entry, reporting whether one
// existed. The room's map is dropped entirely when it empties.
func (t *typingTracker) Clear(eventID domain.EventID, userID domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.rooms[eventID]
	if !ok {
		return false
	}
	e, ok := users[userID]
	if !ok {
		return false
	}
	e.timer.Stop()
	t.drop(eventID, users, userID)
	return true
}

// clearExpired removes the entry only if gen still matches, so a stale
// timer callback that lost the race to a refreshing Set is a no-op.
func (t *typingTracker) clearExpired(eventID domain.EventID, userID domain.UserID, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.rooms[eventID]
	if !ok {
		return false
	}
	e, ok := users[userID]
	if !ok || e.gen != gen {
		return false
	}
	t.drop(eventID, users, userID)
	return true
}

func (t *typingTracker) drop(eventID domain.EventID, users map[domain.UserID]*typingEntry, userID domain.UserID) {
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, eventID)
	}
}

func (t *typingTracker) expiryTimer(eventID domain.EventID, userID domain.UserID, gen uint64) *time.Timer {
	return time.AfterFunc(t.ttl, func() {
		if t.clearExpired(eventID, userID, gen) && t.expired != nil {
			t.expired(eventID, userID)
		}
	})
}
