package store

import (
	"context"
	"maps"
	"sync"

	"github.com/alex-user-go/rates/internal/ratelimit"
)

// MemoryStore keeps buckets in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	buckets ratelimit.Buckets
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(ratelimit.Buckets)}
}

// Update applies fn to a copy of the buckets and keeps the copy when fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(ratelimit.Buckets) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.buckets)
	if next == nil {
		next = make(ratelimit.Buckets)
	}
	if err := fn(next); err != nil {
		return err
	}
	s.buckets = next
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(ratelimit.Buckets) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(maps.Clone(s.buckets))
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.buckets = make(ratelimit.Buckets)
	s.mu.Unlock()
	return nil
}
