package content

import (
	"context"
	"sync"
)

// MemoryStore 内存内容存储，用于测试
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
	gets  int
}

// NewMemoryStore 创建内存内容存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]string),
	}
}

// Put 写入内容
func (s *MemoryStore) Put(ctx context.Context, payload string) (string, error) {
	handle := NewHandle()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[handle] = payload
	return handle, nil
}

// Get 读取内容
func (s *MemoryStore) Get(ctx context.Context, handle string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets++
	payload, ok := s.items[handle]
	if !ok {
		return "", notFound(handle)
	}
	return payload, nil
}

// Gets 返回读取次数
func (s *MemoryStore) Gets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gets
}
