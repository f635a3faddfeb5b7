package chat

import (
	"sync"

	"github.com/dkeye/eventchat/internal/core"
	"github.com/dkeye/eventchat/internal/domain"
)

// roomManager owns the event -> room map. Rooms are created lazily on
// first join and dropped once their member set empties.
type roomManager struct {
	mu    sync.RWMutex
	rooms map[domain.EventID]*room
}

func newRoomManager() *roomManager {
	return &roomManager{rooms: make(map[domain.EventID]*room)}
}

// Join inserts the member into the event's room, creating it on first
// join. Insertion happens under the manager lock: because rooms are
// dropped when they empty, a lookup-then-add in two steps could land
// the member in a room DropIfEmpty just removed from the map.
func (m *roomManager) Join(id domain.EventID, ms core.MemberSession) *room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		r = newRoom(id)
		m.rooms[id] = r
	}
	r.AddMember(ms)
	return r
}

func (m *roomManager) Get(id domain.EventID) (*room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// DropIfEmpty garbage-collects a room once its last member left.
func (m *roomManager) DropIfEmpty(id domain.EventID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok && r.MemberCount() == 0 {
		delete(m.rooms, id)
	}
}

func (m *roomManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
