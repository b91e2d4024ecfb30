package dnc

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{entries: make(map[string]Entry)}
}

func (r *MemoryRepo) Insert(ctx context.Context, e Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Phone]; ok {
		return false, nil
	}
	r.entries[e.Phone] = e
	return true, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, phone string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[phone]; !ok {
		return false, nil
	}
	delete(r.entries, phone)
	return true, nil
}

func (r *MemoryRepo) Get(ctx context.Context, phone string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[phone]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].Phone < out[j].Phone
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out, nil
}
