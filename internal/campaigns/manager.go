// Package campaigns runs agent instances: one worker goroutine per running
// instance dials its lead queue in order, pacing between dials. Completion is
// driven by ledger changes, not polling.
package campaigns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"campaign-dialer/internal/calls"
	"campaign-dialer/internal/leads"
	"campaign-dialer/internal/telephony"
	"campaign-dialer/pkg/alert"
	"campaign-dialer/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Ledger is the outbound side of calls.Ledger.
type Ledger interface {
	CreateForDial(ctx context.Context, rec calls.DialRecord) (calls.Call, error)
	BindProviderID(ctx context.Context, callID, provider, providerCallID string) (calls.Call, error)
	FailDial(ctx context.Context, callID, reason string) (calls.Result, error)
	Get(ctx context.Context, callID string) (calls.Call, error)
}

// Screen answers whether a phone may be dialed.
type Screen interface {
	IsListed(ctx context.Context, phone string) (bool, error)
}

// DialLimiter caps concurrent calls per instance across processes.
// utils.ConcurrencyCap implements it over Redis.
type DialLimiter interface {
	Acquire(ctx context.Context, name string, limit int) (bool, error)
	Release(ctx context.Context, name string) error
}

type Deps struct {
	Ledger  Ledger
	Leads   leads.Store
	DNC     Screen
	Adapter telephony.Adapter
	// Limiter is optional; without it MaxConcurrent is enforced in process.
	Limiter DialLimiter
	// Scripts is optional; when set, spawn rejects unknown script ids.
	Scripts *telephony.Scripts
	// Alerts is optional; provider outages and ledger errors on dial go here.
	Alerts alert.Notifier
}

// capRetry is how long a worker waits before re-checking a full
// concurrency cap when pacing is shorter.
const capRetry = 500 * time.Millisecond

type instanceState struct {
	inst AgentInstance
	// gen identifies the current worker; a stale worker exits on mismatch.
	gen int
	// halt is closed on pause or stop to cut a pacing sleep short.
	halt     chan struct{}
	inflight map[string]placed
}

// placed is a call waiting for its terminal callback.
type placed struct {
	// held reports whether the call holds a limiter slot.
	held bool
	at   time.Time
}

// Manager owns all agent instances of this process.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*instanceState
	order     []string

	deps     Deps
	validate *validator.Validate
	clock    func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(d Deps) *Manager {
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		instances: make(map[string]*instanceState),
		deps:      d,
		validate:  validator.New(),
		clock:     time.Now,
		base:      base,
		cancel:    cancel,
	}
}

// Close stops scheduling on every instance and waits for workers to exit.
// Calls already placed are not affected.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// Spawn validates req and creates an idle instance. Duplicate lead ids keep
// their first position.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (AgentInstance, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := m.validate.Struct(req); err != nil {
		return AgentInstance{}, fmt.Errorf("%w: %s", ErrValidation, describe(err))
	}
	if req.ScriptID != "" && m.deps.Scripts != nil && !m.deps.Scripts.Has(req.ScriptID) {
		return AgentInstance{}, fmt.Errorf("%w: unknown script_id %q", ErrValidation, req.ScriptID)
	}

	seen := make(map[string]struct{}, len(req.LeadIDs))
	queue := make([]string, 0, len(req.LeadIDs))
	for _, id := range req.LeadIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return AgentInstance{}, fmt.Errorf("%w: lead_ids must not contain blanks", ErrValidation)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		queue = append(queue, id)
	}

	now := m.clock().UTC()
	inst := AgentInstance{
		ID:        uuid.NewString(),
		Name:      req.Name,
		ScriptID:  req.ScriptID,
		Status:    StatusIdle,
		LeadQueue: queue,
		Config:    req.Config,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.instances[inst.ID] = &instanceState{inst: inst, inflight: map[string]placed{}}
	m.order = append(m.order, inst.ID)
	m.mu.Unlock()

	logger.From(ctx).Info("agent instance spawned", "agent_instance_id", inst.ID, "leads", len(queue))
	return inst.clone(), nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// Start moves an idle instance to running and launches its worker.
func (m *Manager) Start(ctx context.Context, id string) (AgentInstance, error) {
	if m.deps.Adapter == nil {
		return AgentInstance{}, ErrNoAdapter
	}
	return m.launch(ctx, id, StatusIdle)
}

// Resume restarts a paused instance from its cursor.
func (m *Manager) Resume(ctx context.Context, id string) (AgentInstance, error) {
	return m.launch(ctx, id, StatusPaused)
}

func (m *Manager) launch(ctx context.Context, id string, from Status) (AgentInstance, error) {
	m.mu.Lock()
	st, ok := m.instances[id]
	if !ok {
		m.mu.Unlock()
		return AgentInstance{}, ErrNotFound
	}
	if st.inst.Status != from {
		m.mu.Unlock()
		return AgentInstance{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st.inst.Status, StatusRunning)
	}
	m.setStatusLocked(st, StatusRunning)
	st.gen++
	st.halt = make(chan struct{})
	gen, halt := st.gen, st.halt
	snap := st.inst.clone()
	m.wg.Add(1)
	m.mu.Unlock()

	log := logger.From(ctx).With("agent_instance_id", id)
	log.Info("agent instance running", "cursor", snap.Cursor, "remaining", snap.Remaining())
	go m.run(logger.With(m.base, log), id, gen, halt)
	return snap, nil
}

// Pause stops scheduling new dials; calls already placed continue.
func (m *Manager) Pause(ctx context.Context, id string) (AgentInstance, error) {
	return m.halt(ctx, id, StatusPaused)
}

// Stop ends the instance permanently.
func (m *Manager) Stop(ctx context.Context, id string) (AgentInstance, error) {
	return m.halt(ctx, id, StatusStopped)
}

func (m *Manager) halt(ctx context.Context, id string, to Status) (AgentInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.instances[id]
	if !ok {
		return AgentInstance{}, ErrNotFound
	}
	if !st.inst.Status.canMoveTo(to) {
		return AgentInstance{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st.inst.Status, to)
	}
	wasRunning := st.inst.Status == StatusRunning
	m.setStatusLocked(st, to)
	if wasRunning && st.halt != nil {
		close(st.halt)
	}
	logger.From(ctx).Info("agent instance halted", "agent_instance_id", id, "status", to, "cursor", st.inst.Cursor)
	return st.inst.clone(), nil
}

func (m *Manager) setStatusLocked(st *instanceState, s Status) {
	st.inst.Status = s
	st.inst.UpdatedAt = m.clock().UTC()
}

func (m *Manager) Get(id string) (AgentInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.instances[id]
	if !ok {
		return AgentInstance{}, ErrNotFound
	}
	return st.inst.clone(), nil
}

// List returns instances in spawn order.
func (m *Manager) List() []AgentInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AgentInstance, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.instances[id].inst.clone())
	}
	return out
}

// ScriptID returns the script an instance dials with, or the default.
func (m *Manager) ScriptID(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.instances[id]; ok && st.inst.ScriptID != "" {
		return st.inst.ScriptID
	}
	return telephony.DefaultScriptID
}

// OnChange is a calls.Listener. A terminal call frees its in-flight slot;
// the last one of an exhausted queue completes the instance.
func (m *Manager) OnChange(ctx context.Context, ch calls.Change) {
	if !ch.Effect.BecameTerminal {
		return
	}
	m.settle(ctx, ch.After.AgentInstanceID, ch.After.ID)
}

// settle forgets an in-flight call once it is terminal.
func (m *Manager) settle(ctx context.Context, instanceID, callID string) {
	m.mu.Lock()
	st, ok := m.instances[instanceID]
	if !ok {
		m.mu.Unlock()
		return
	}
	p, tracked := st.inflight[callID]
	if !tracked {
		m.mu.Unlock()
		return
	}
	delete(st.inflight, callID)
	st.inst.Counters.InFlight--
	completed := m.maybeCompleteLocked(st)
	m.mu.Unlock()

	m.releaseSlot(ctx, instanceID, p.held)
	if completed {
		logger.From(ctx).Info("agent instance completed", "agent_instance_id", instanceID)
	}
}

// maybeCompleteLocked marks a running instance completed once its queue is
// exhausted and nothing is in flight.
func (m *Manager) maybeCompleteLocked(st *instanceState) bool {
	if st.inst.Status != StatusRunning || st.inst.Remaining() > 0 || st.inst.Counters.InFlight > 0 {
		return false
	}
	m.setStatusLocked(st, StatusCompleted)
	return true
}
