package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
type MemoryRepo struct {
	mu         sync.Mutex
	byID       map[string]Call
	byProvider map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]Call{}, byProvider: map[string]string{}}
}

func (r *MemoryRepo) Insert(ctx context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ProviderCallID != "" {
		if _, ok := r.byProvider[c.ProviderCallID]; ok {
			return ErrProviderIDTaken
		}
		r.byProvider[c.ProviderCallID] = c.ID
	}
	r.byID[c.ID] = c
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) GetByProviderID(ctx context.Context, providerCallID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byProvider[providerCallID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepo) BindProviderID(ctx context.Context, id, provider, providerCallID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if _, taken := r.byProvider[providerCallID]; taken || c.ProviderCallID != "" {
		return ErrProviderIDTaken
	}
	c.ProviderCallID = providerCallID
	if provider != "" {
		c.Provider = provider
	}
	c.UpdatedAt = at
	r.byID[id] = c
	r.byProvider[providerCallID] = id
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; !ok {
		return ErrNotFound
	}
	r.byID[c.ID] = c
	return nil
}

func (r *MemoryRepo) LatestByPhone(ctx context.Context, phone string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  Call
		found bool
	)
	for _, c := range r.byID {
		if c.ToNumber != phone {
			continue
		}
		if !found || c.CreatedAt.After(best.CreatedAt) {
			best, found = c, true
		}
	}
	if !found {
		return Call{}, ErrNotFound
	}
	return best, nil
}

func (r *MemoryRepo) ListByInstance(ctx context.Context, instanceID string) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range r.byID {
		if c.AgentInstanceID == instanceID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Len returns the number of stored calls.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
