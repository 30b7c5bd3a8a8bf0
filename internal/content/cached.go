package content

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedStore 带读缓存的内容存储（装饰器模式）
//
// 内容写入后不可变，缓存无需失效处理。
type CachedStore struct {
	storage Store
	cache   *cache.Cache
}

// NewCachedStore 创建带缓存的内容存储
func NewCachedStore(storage Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		storage: storage,
		cache:   cache.New(ttl, 2*ttl),
	}
}

// Put 写入存储并预热缓存
func (s *CachedStore) Put(ctx context.Context, payload string) (string, error) {
	handle, err := s.storage.Put(ctx, payload)
	if err != nil {
		return "", err
	}

	s.cache.SetDefault(handle, payload)
	return handle, nil
}

// Get 优先从缓存读取
func (s *CachedStore) Get(ctx context.Context, handle string) (string, error) {
	if v, ok := s.cache.Get(handle); ok {
		return v.(string), nil
	}

	payload, err := s.storage.Get(ctx, handle)
	if err != nil {
		return "", err
	}

	s.cache.SetDefault(handle, payload)
	return payload, nil
}

// ItemCount 缓存条目数
func (s *CachedStore) ItemCount() int {
	return s.cache.ItemCount()
}
