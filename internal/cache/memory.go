package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内 Store，带 TTL 与容量上限，过期项在读取时惰性清除
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]memoryItem
	maxEntries int
	defaultTTL time.Duration
	closed     bool
	now        func() time.Time
}

type memoryItem struct {
	value     string
	expiresAt time.Time
	storedAt  time.Time
}

// NewMemoryStore 创建内存存储，maxEntries <= 0 表示不限
func NewMemoryStore(maxEntries int, defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]memoryItem),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	item, ok := s.items[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		delete(s.items, key)
		return "", ErrCacheMiss
	}
	return item.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	now := s.now()
	item := memoryItem{value: value, storedAt: now}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}

	if _, exists := s.items[key]; !exists && s.maxEntries > 0 && len(s.items) >= s.maxEntries {
		s.evictLocked(now)
	}
	s.items[key] = item
	return nil
}

// evictLocked 先清理过期项，仍然满时淘汰最早写入的一项
func (s *MemoryStore) evictLocked(now time.Time) {
	for k, it := range s.items {
		if !it.expiresAt.IsZero() && !now.Before(it.expiresAt) {
			delete(s.items, k)
		}
	}
	if len(s.items) < s.maxEntries {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, it := range s.items {
		if oldestKey == "" || it.storedAt.Before(oldest) {
			oldestKey, oldest = k, it.storedAt
		}
	}
	delete(s.items, oldestKey)
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = make(map[string]memoryItem)
	return nil
}

// Len 当前条目数（含未清理的过期项）
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Manager)(nil)
)
