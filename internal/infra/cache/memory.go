package cache

import (
	"context"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"

	"tg-download-bot/internal/domain"
)

// MemoryCache — кэш внутри процесса, используется без Redis и в тестах.
type MemoryCache struct {
	c  *ccache.Cache[[]byte]
	mu sync.Mutex // для SetNX
}

// NewMemory создаёт кэш на maxSize ключей.
func NewMemory(maxSize int64) *MemoryCache {
	return &MemoryCache{c: ccache.New(ccache.Configure[[]byte]().MaxSize(maxSize))}
}

// Get возвращает значение или domain.ErrCacheMiss, если ключа нет или он истёк.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	item := m.c.Get(key)
	if item == nil || item.Expired() {
		return nil, domain.ErrCacheMiss
	}
	return item.Value(), nil
}

// Set задаёт значение.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

// SetNX задаёт значение, если ключа нет или он истёк.
func (m *MemoryCache) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item := m.c.Get(key); item != nil && !item.Expired() {
		return false, nil
	}
	m.c.Set(key, value, ttl)
	return true, nil
}

// Delete удаляет ключ.
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// Stop останавливает фоновую горутину ccache.
func (m *MemoryCache) Stop() {
	m.c.Stop()
}

var _ domain.Cache = (*MemoryCache)(nil)
