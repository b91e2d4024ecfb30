// Package dnc is the do-not-call registry. It grows only through Add and
// shrinks only through Remove; nothing else writes to it.
package dnc

import (
	"context"
	"errors"
	"time"

	"campaign-dialer/internal/audit"
	"campaign-dialer/pkg/logger"
)

// Registry is the DNC service used by the dispatcher, webhooks and operator API.
type Registry struct {
	repo  Repository
	audit *audit.Service
	clock func() time.Time
}

// NewRegistry builds a Registry. auditSvc may be nil.
func NewRegistry(repo Repository, auditSvc *audit.Service) *Registry {
	return &Registry{repo: repo, audit: auditSvc, clock: time.Now}
}

// Add lists phone. Adding an already listed phone is a no-op and keeps the
// original reason and timestamp.
func (r *Registry) Add(ctx context.Context, phone, reason string) error {
	p, err := Normalize(phone)
	if err != nil {
		return err
	}
	added, err := r.repo.Insert(ctx, Entry{Phone: p, Reason: reason, AddedAt: r.clock().UTC()})
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	logger.From(ctx).Info("dnc added", "phone", p, "reason", reason)
	if r.audit != nil {
		if err := r.audit.LogDNCAdded(ctx, audit.ActorFrom(ctx), p, reason); err != nil {
			logger.From(ctx).Warn("audit dnc add failed", "err", err)
		}
	}
	return nil
}

// Remove unlists phone. Removing an unlisted phone returns ErrNotFound.
func (r *Registry) Remove(ctx context.Context, phone string) error {
	p, err := Normalize(phone)
	if err != nil {
		return err
	}
	removed, err := r.repo.Delete(ctx, p)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	logger.From(ctx).Info("dnc removed", "phone", p)
	if r.audit != nil {
		if err := r.audit.LogDNCRemoved(ctx, audit.ActorFrom(ctx), p); err != nil {
			logger.From(ctx).Warn("audit dnc remove failed", "err", err)
		}
	}
	return nil
}

// IsListed reports whether phone is on the registry. Unparseable numbers are
// reported as errors so callers fail closed.
func (r *Registry) IsListed(ctx context.Context, phone string) (bool, error) {
	p, err := Normalize(phone)
	if err != nil {
		return false, err
	}
	_, err = r.repo.Get(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Registry) Get(ctx context.Context, phone string) (Entry, error) {
	p, err := Normalize(phone)
	if err != nil {
		return Entry{}, err
	}
	return r.repo.Get(ctx, p)
}

func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	return r.repo.List(ctx)
}
