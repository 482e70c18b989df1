package lock

import (
	"context"
	"sync"
)

// Locker is a non-blocking keyed lock. Acquire never waits: it reports false
// when another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Set is a mutex-guarded set of in-flight keys.
type Set struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewSet() *Set {
	return &Set{keys: map[string]struct{}{}}
}

// TryLock adds key to the set and reports whether it was absent.
func (s *Set) TryLock(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = map[string]struct{}{}
	}
	if _, held := s.keys[key]; held {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *Set) Unlock(key string) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}

func (s *Set) Held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.keys[key]
	return held
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *Set) Acquire(_ context.Context, key string) (bool, error) {
	return s.TryLock(key), nil
}

func (s *Set) Release(_ context.Context, key string) error {
	s.Unlock(key)
	return nil
}
