package chat

import (
	"context"
	"sync"

	"github.com/dkeye/eventchat/internal/core"
	"github.com/dkeye/eventchat/internal/domain"
)

// memoryOnlineIndex is the default in-process who-is-online set, used
// when no redis address is configured.
type memoryOnlineIndex struct {
	mu    sync.RWMutex
	users map[domain.UserID]int
}

func NewMemoryOnlineIndex() core.OnlineIndex {
	return &memoryOnlineIndex{users: make(map[domain.UserID]int)}
}

func (m *memoryOnlineIndex) Add(_ context.Context, userID domain.UserID) error {
	m.mu.Lock()
	m.users[userID]++
	m.mu.Unlock()
	return nil
}

func (m *memoryOnlineIndex) Remove(_ context.Context, userID domain.UserID) error {
	m.mu.Lock()
	if n, ok := m.users[userID]; ok {
		if n <= 1 {
			delete(m.users, userID)
		} else {
			m.users[userID] = n - 1
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *memoryOnlineIndex) Online(_ context.Context, userID domain.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID]
	return ok, nil
}

func (m *memoryOnlineIndex) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}
