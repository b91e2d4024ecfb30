// Package leads is the read side of the lead list the dialer works through.
// Lead CRUD lives outside this service.
package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

type Lead struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Phone  string `json:"phone" db:"phone"`
	Email  string `json:"email,omitempty" db:"email"`
	Status string `json:"status,omitempty" db:"status"`
}

var ErrNotFound = errors.New("leads: not found")

// Store looks up leads by id.
type Store interface {
	Get(ctx context.Context, id string) (Lead, error)
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu    sync.RWMutex
	leads map[string]Lead
}

func NewMemoryStore(ls ...Lead) *MemoryStore {
	s := &MemoryStore{leads: make(map[string]Lead, len(ls))}
	for _, l := range ls {
		s.leads[l.ID] = l
	}
	return s
}

func (s *MemoryStore) Put(l Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[l.ID] = l
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

// PostgresStore reads from the leads table owned by the CRM.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Get(ctx context.Context, id string) (Lead, error) {
	var (
		l      Lead
		email  sql.NullString
		status sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, phone, email, status FROM leads WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.Phone, &email, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, fmt.Errorf("get lead: %w", err)
	}
	l.Email = email.String
	l.Status = status.String
	return l, nil
}
