package storage

import (
	"context"
	"sync"
	"time"
)

type MemoryStorage struct {
	sessions map[int64]*Session
	mutex    sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[int64]*Session),
	}
}

func (m *MemoryStorage) Get(_ context.Context, userId int64) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if s, ok := m.sessions[userId]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (m *MemoryStorage) Save(_ context.Context, session *Session) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored := session.Clone()
	stored.UpdatedAt = time.Now()
	m.sessions[session.UserId] = stored
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, userId int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, userId)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
