package calls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"campaign-dialer/pkg/alert"
	"campaign-dialer/pkg/logger"

	"github.com/google/uuid"
)

// Change is delivered to listeners after a state-changing event is persisted.
type Change struct {
	Before Call
	After  Call
	Effect Effect
}

// Listener observes ledger changes. Listeners run while the call's lock is
// held, so changes for one call arrive in order; they must return quickly.
type Listener func(ctx context.Context, ch Change)

// Result describes the outcome of ApplyEvent.
type Result struct {
	Call   Call
	Effect Effect
}

// Ledger is the system of record for call state.
//
// Locking: every mutation for a given provider call id (or, before binding,
// a call id) is serialized on a per-key mutex. Different calls proceed in
// parallel; there is no ledger-wide lock on the write path.
type Ledger struct {
	repo   Repository
	locks  *keyLock
	alerts alert.Notifier
	clock  func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

func NewLedger(repo Repository, alerts alert.Notifier) *Ledger {
	if alerts == nil {
		alerts = alert.LogNotifier{}
	}
	return &Ledger{repo: repo, locks: newKeyLock(), alerts: alerts, clock: time.Now}
}

// Subscribe registers l for all future changes.
func (l *Ledger) Subscribe(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Ledger) notify(ctx context.Context, ch Change) {
	l.mu.RLock()
	ls := make([]Listener, len(l.listeners))
	copy(ls, l.listeners)
	l.mu.RUnlock()
	for _, fn := range ls {
		fn(ctx, ch)
	}
}

// CreateForDial inserts a queued call. The returned Call.ID is the correlation
// handle used until the provider id is bound.
func (l *Ledger) CreateForDial(ctx context.Context, rec DialRecord) (Call, error) {
	if rec.LeadID == "" {
		return Call{}, fmt.Errorf("%w: lead_id required", ErrInvalidEvent)
	}
	now := l.clock().UTC()
	c := Call{
		ID:              uuid.NewString(),
		Provider:        rec.Provider,
		AgentInstanceID: rec.AgentInstanceID,
		LeadID:          rec.LeadID,
		ToNumber:        rec.ToNumber,
		Status:          StatusQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.repo.Insert(ctx, c); err != nil {
		return Call{}, fmt.Errorf("insert call: %w", err)
	}
	return c, nil
}

// BindProviderID attaches the provider's call id. Binding the same id twice is
// a no-op; any other collision is a *ConflictError and raises an alert.
func (l *Ledger) BindProviderID(ctx context.Context, callID, provider, providerCallID string) (Call, error) {
	if callID == "" || providerCallID == "" {
		return Call{}, fmt.Errorf("%w: call id and provider call id required", ErrInvalidEvent)
	}
	unlock := l.locks.Lock(providerCallID)
	defer unlock()

	c, err := l.repo.Get(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if c.ProviderCallID == providerCallID {
		return c, nil
	}
	if c.ProviderCallID != "" {
		return Call{}, l.conflict(ctx, &ConflictError{CallID: callID, ProviderCallID: providerCallID, BoundTo: c.ProviderCallID})
	}
	if existing, err := l.repo.GetByProviderID(ctx, providerCallID); err == nil {
		return Call{}, l.conflict(ctx, &ConflictError{CallID: callID, ProviderCallID: providerCallID, ExistingCallID: existing.ID})
	} else if !errors.Is(err, ErrNotFound) {
		return Call{}, err
	}

	now := l.clock().UTC()
	if err := l.repo.BindProviderID(ctx, callID, provider, providerCallID, now); err != nil {
		if errors.Is(err, ErrProviderIDTaken) {
			return Call{}, l.conflict(ctx, &ConflictError{CallID: callID, ProviderCallID: providerCallID})
		}
		return Call{}, fmt.Errorf("bind provider id: %w", err)
	}
	c.ProviderCallID = providerCallID
	if provider != "" {
		c.Provider = provider
	}
	c.UpdatedAt = now
	return c, nil
}

func (l *Ledger) conflict(ctx context.Context, err *ConflictError) error {
	l.alerts.Alert(ctx, err, map[string]string{
		"component":        "calls.ledger",
		"call_id":          err.CallID,
		"provider_call_id": err.ProviderCallID,
	})
	return err
}

// ApplyEvent is the only mutator for bound calls. Events for unknown ids and
// illegal transitions are dropped and reported through Result.Effect.Dropped,
// never as errors; providers retry and reorder, and restarts orphan callbacks.
func (l *Ledger) ApplyEvent(ctx context.Context, ev CallEvent) (Result, error) {
	if ev.ProviderCallID == "" || ev.Body == nil {
		return Result{}, ErrInvalidEvent
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = l.clock().UTC()
	}
	log := logger.From(ctx).With("provider_call_id", ev.ProviderCallID, "event", ev.Body.Kind())

	unlock := l.locks.Lock(ev.ProviderCallID)
	defer unlock()

	cur, err := l.repo.GetByProviderID(ctx, ev.ProviderCallID)
	if errors.Is(err, ErrNotFound) {
		log.Debug("event for unknown call dropped", "err", ErrUnknownCall)
		return Result{Effect: Effect{Dropped: DropUnknownCall}}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load call: %w", err)
	}
	return l.applyLocked(ctx, cur, ev)
}

// FailDial marks a call failed from the outbound side, before or without a
// provider callback (dial rejected, binding refused).
func (l *Ledger) FailDial(ctx context.Context, callID, reason string) (Result, error) {
	c, err := l.repo.Get(ctx, callID)
	if err != nil {
		return Result{}, err
	}
	key := c.ProviderCallID
	if key == "" {
		key = "call:" + callID
	}
	unlock := l.locks.Lock(key)
	defer unlock()

	// reload under the lock
	if c, err = l.repo.Get(ctx, callID); err != nil {
		return Result{}, err
	}
	return l.applyLocked(ctx, c, CallEvent{
		ProviderCallID: c.ProviderCallID,
		OccurredAt:     l.clock().UTC(),
		Body:           StatusChanged{Status: StatusFailed, Reason: reason},
	})
}

func (l *Ledger) applyLocked(ctx context.Context, cur Call, ev CallEvent) (Result, error) {
	next, eff := Transition(cur, ev)
	if !eff.Changed() {
		logger.From(ctx).Debug("event dropped",
			"call_id", cur.ID, "status", cur.Status, "event", ev.Body.Kind(), "reason", eff.Dropped)
		return Result{Call: cur, Effect: eff}, nil
	}
	if err := l.repo.Update(ctx, next); err != nil {
		return Result{}, fmt.Errorf("update call: %w", err)
	}
	l.notify(ctx, Change{Before: cur, After: next, Effect: eff})
	return Result{Call: next, Effect: eff}, nil
}

func (l *Ledger) Get(ctx context.Context, callID string) (Call, error) {
	return l.repo.Get(ctx, callID)
}

func (l *Ledger) GetByProviderID(ctx context.Context, providerCallID string) (Call, error) {
	return l.repo.GetByProviderID(ctx, providerCallID)
}

// LatestByPhone returns the most recently created call to phone.
func (l *Ledger) LatestByPhone(ctx context.Context, phone string) (Call, error) {
	return l.repo.LatestByPhone(ctx, phone)
}

func (l *Ledger) ListByInstance(ctx context.Context, instanceID string) ([]Call, error) {
	return l.repo.ListByInstance(ctx, instanceID)
}
