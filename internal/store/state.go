package store

import (
	"context"
	"sync"
)

// 引擎用到的持久键。只存跨会话的节流与开关信息，绝不参与序列内容的正确性。
const (
	KeyLastSyncAt = "last_sync_at"
	KeyEnabled    = "enabled"
)

// StateStore 键值持久化抽象，让引擎的节流逻辑可以脱离真实后端测试。
type StateStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// MemoryStateStore 内存实现，测试与无持久化场景使用。
type MemoryStateStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{data: make(map[string]string)}
}

func (s *MemoryStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStateStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStateStore) Close() error { return nil }
