package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/smartfi/internal/domain"
)

// MemoryStore is a process-local Repository. Nothing survives a restart.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string]string
	messages map[string][]*domain.AnalysisMessage
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]string),
		messages: make(map[string][]*domain.AnalysisMessage),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg *domain.AnalysisMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &cp)
	return nil
}

func (m *MemoryStore) ListMessages(_ context.Context, sessionID string, limit int) ([]*domain.AnalysisMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*domain.AnalysisMessage, 0, len(all))
	for _, msg := range all {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) DeleteMessages(_ context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.messages[sessionID]))
	delete(m.messages, sessionID)
	return n, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

var _ Repository = (*MemoryStore)(nil)
