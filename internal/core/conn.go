package core

import (
	"sync"

	"github.com/dkeye/eventchat/internal/domain"
)

// ConnContext is the per-connection state populated by the
// authentication handshake and read by every subsequent handler.
// A connection occupies at most one room at any time.
type ConnContext struct {
	ID       ConnID
	Identity *domain.Identity

	mu   sync.Mutex
	room domain.EventID
}

func NewConnContext(id ConnID, identity *domain.Identity) *ConnContext {
	return &ConnContext{ID: id, Identity: identity}
}

// Room returns the currently joined event, if any.
func (c *ConnContext) Room() (domain.EventID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.room != ""
}

func (c *ConnContext) SetRoom(id domain.EventID) {
	c.mu.Lock()
	c.room = id
	c.mu.Unlock()
}

// ClearRoom resets the current room only if it still matches id.
func (c *ConnContext) ClearRoom(id domain.EventID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != id {
		return false
	}
	c.room = ""
	return true
}
