package kv

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
)

// MemoryStore is an in-process Store backed by mutex-guarded maps. It is the
// default backend for single-process deployments and for tests; production
// deployments swap in a shared store behind the same contract.
type MemoryStore struct {
	mu     sync.Mutex
	lists  map[string][][]byte
	values map[string]memoryValue
	closed atomic.Bool

	now func() time.Time
}

type memoryValue struct {
	data      []byte
	expiresAt time.Time
}

func (v memoryValue) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && now.After(v.expiresAt)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:  make(map[string][][]byte),
		values: make(map[string]memoryValue),
		now:    time.Now,
	}
}

func (s *MemoryStore) PushTail(_ context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	copied := append([]byte(nil), value...)

	s.mu.Lock()
	s.lists[key] = append(s.lists[key], copied)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PopHead(_ context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	if len(list) == 0 {
		return nil, false, nil
	}

	head := list[0]
	if len(list) == 1 {
		delete(s.lists, key)
	} else {
		s.lists[key] = list[1:]
	}
	return head, true, nil
}

func (s *MemoryStore) Len(_ context.Context, key string) (int, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists[key]), nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	if value.expired(s.now()) {
		delete(s.values, key)
		return nil, false, nil
	}
	return append([]byte(nil), value.data...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	entry := memoryValue{data: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.values[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0)
	for key, value := range s.values {
		if value.expired(now) {
			delete(s.values, key)
			continue
		}
		if matcher.Match(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return ErrStoreClosed
	}

	s.mu.Lock()
	s.lists = make(map[string][][]byte)
	s.values = make(map[string]memoryValue)
	s.mu.Unlock()
	return nil
}
