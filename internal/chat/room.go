package chat

import (
	"sync"

	"github.com/dkeye/eventchat/internal/core"
	"github.com/dkeye/eventchat/internal/domain"
	"github.com/rs/zerolog/log"
)

// room is a threadsafe in-memory member set for one event.
// It never closes adapter-owned resources.
type room struct {
	id    domain.EventID
	mu    sync.RWMutex
	bySID map[core.ConnID]core.MemberSession
}

func newRoom(id domain.EventID) *room {
	return &room{
		id:    id,
		bySID: make(map[core.ConnID]core.MemberSession),
	}
}

func (r *room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *room) AddMember(ms core.MemberSession) {
	cc := ms.Context()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[cc.ID] = ms
	log.Info().Str("module", "chat.room").Str("event", string(r.id)).Str("conn", string(cc.ID)).Str("user", string(cc.Identity.UserID)).Msg("member added")
}

// RemoveMember drops the connection from the set and reports whether
// it was present.
func (r *room) RemoveMember(id core.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[id]; !ok {
		return false
	}
	delete(r.bySID, id)
	log.Info().Str("module", "chat.room").Str("event", string(r.id)).Str("conn", string(id)).Msg("member removed")
	return true
}

// Broadcast fans a frame out to every member except `from`. Pass an
// empty ConnID to reach all members. Delivery is best effort; slow
// consumers get dropped frames, not blocked rooms.
func (r *room) Broadcast(from core.ConnID, data core.Frame) (sent, dropped int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			dropped++
			continue
		}
		sent++
	}
	if dropped > 0 {
		log.Debug().Str("module", "chat.room").Str("event", string(r.id)).Int("sent", sent).Int("dropped", dropped).Msg("broadcast result")
	}
	return sent, dropped
}
