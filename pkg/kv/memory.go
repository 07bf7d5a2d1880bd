package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore はプロセス内で完結するStore。
// 複数インスタンス間で共有されないため、開発環境とテスト専用。
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
}

// memoryItem は値と有効期限の組。
type memoryItem struct {
	value     string
	expiresAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock は時刻関数を指定してMemoryStoreを生成する。
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   now,
	}
}

// Get はキーの値を返す。期限切れのキーは存在しないものとして扱い、削除する。
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return "", false, nil
	}
	if s.expired(item) {
		delete(s.items, key)
		return "", false, nil
	}
	return item.value, true, nil
}

// Set はキーに値を書き込む。
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.items[key] = item
	return nil
}

// Delete はキーを削除する。
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Len は期限切れでないキーの数を返す。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, item := range s.items {
		if !s.expired(item) {
			n++
		}
	}
	return n
}

// expired は有効期限を過ぎているかを判定する。呼び出し側でロックを保持すること。
func (s *MemoryStore) expired(item memoryItem) bool {
	return !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt)
}
