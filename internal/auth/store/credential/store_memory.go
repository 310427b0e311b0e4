package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"authority/pkg/platform/sentinel"
)

const defaultMemoryCapacity = 100_000

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is the single-instance strategy. Each entry carries its own
// expiry; the LRU's TTL only caps how long any entry can be held and the
// capacity bounds memory.
//
// By default a write past capacity evicts the least recently used key. A
// store built WithoutEviction instead rejects new keys with
// sentinel.ErrUnavailable once full, so records that must outlive pressure
// (revocations) only leave when they expire or are deleted.
type MemoryStore struct {
	cache    *expirable.LRU[string, entry]
	now      func() time.Time
	capacity int
	evict    bool
	mu       sync.Mutex
}

type MemoryStoreOption func(*MemoryStore)

// WithClock sets the clock function for testability.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithoutEviction makes a full store refuse new keys instead of evicting.
func WithoutEviction() MemoryStoreOption {
	return func(s *MemoryStore) {
		s.evict = false
	}
}

// NewMemoryStore creates a store holding at most capacity keys, none longer
// than maxTTL. Non-positive values fall back to defaults.
func NewMemoryStore(capacity int, maxTTL time.Duration, opts ...MemoryStoreOption) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	s := &MemoryStore{
		cache:    expirable.NewLRU[string, entry](capacity, nil, maxTTL),
		now:      time.Now,
		capacity: capacity,
		evict:    true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	e, ok := s.cache.Get(key)
	if !ok {
		return "", sentinel.ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		s.cache.Remove(key)
		return "", sentinel.ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	e := entry{value: value, expiresAt: s.now().Add(ttl)}
	if s.evict {
		s.cache.Add(key, e)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cache.Contains(key) && s.cache.Len() >= s.capacity {
		s.sweep()
		if s.cache.Len() >= s.capacity {
			return fmt.Errorf("memory store full at %d keys: %w", s.capacity, sentinel.ErrUnavailable)
		}
	}
	s.cache.Add(key, e)
	return nil
}

// sweep drops entries past their own expiry that no read has removed yet.
func (s *MemoryStore) sweep() {
	now := s.now()
	for _, k := range s.cache.Keys() {
		if e, ok := s.cache.Peek(k); ok && !now.Before(e.expiresAt) {
			s.cache.Remove(k)
		}
	}
}

func (s *MemoryStore) SetMany(ctx context.Context, entries map[string]string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	for k, v := range entries {
		if err := s.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.cache.Remove(k)
	}
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == sentinel.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// Len reports the number of held entries, including ones past their expiry
// that have not been touched since.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
