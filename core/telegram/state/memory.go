package state

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type chatMessage struct {
	chatID    int64
	messageID int
}

// MemoryStore keeps records in process memory. It is used for tests and development.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Record
	byKey  map[chatMessage]string
	latest map[int64]string
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Record),
		byKey:  make(map[chatMessage]string),
		latest: make(map[int64]string),
	}
}

func (m *MemoryStore) FindByChatAndMessage(_ context.Context, chatID int64, messageID int) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[chatMessage{chatID, messageID}]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *MemoryStore) FindLatestByChat(_ context.Context, chatID int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.latest[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *MemoryStore) Insert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := chatMessage{rec.ChatID, rec.MessageID}
	if _, taken := m.byKey[key]; taken {
		return ErrDuplicate
	}
	rec.ID = uuid.NewString()
	m.byID[rec.ID] = rec.Clone()
	m.byKey[key] = rec.ID
	m.latest[rec.ChatID] = rec.ID
	return nil
}

func (m *MemoryStore) Replace(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.byID[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.MessageID != rec.MessageID || prev.ChatID != rec.ChatID {
		key := chatMessage{rec.ChatID, rec.MessageID}
		if other, taken := m.byKey[key]; taken && other != rec.ID {
			return ErrDuplicate
		}
		delete(m.byKey, chatMessage{prev.ChatID, prev.MessageID})
		m.byKey[key] = rec.ID
	}
	m.byID[rec.ID] = rec.Clone()
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
