package intake

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned when no session is stored under a key.
var ErrSessionNotFound = errors.New("intake: session not found")

// SessionStore persists one chat session per key.
type SessionStore interface {
	Load(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, s *Session) error
	Clear(ctx context.Context, key string) error
}

// MemorySessionStore keeps sessions as JSON blobs in process memory.
type MemorySessionStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{data: make(map[string][]byte)}
}

func (m *MemorySessionStore) Load(_ context.Context, key string) (*Session, error) {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemorySessionStore) Save(_ context.Context, key string, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Timer cancels a scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules with time.AfterFunc.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
