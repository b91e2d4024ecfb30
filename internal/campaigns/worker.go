package campaigns

import (
	"context"
	"errors"
	"time"

	"campaign-dialer/internal/calls"
	"campaign-dialer/internal/telephony"
	"campaign-dialer/pkg/logger"
)

// run is the per-instance dial loop. It exits when the instance leaves
// running, its generation is superseded, or the manager closes.
func (m *Manager) run(ctx context.Context, id string, gen int, halt <-chan struct{}) {
	defer m.wg.Done()
	log := logger.From(ctx)

	for {
		held, ok := m.acquireSlot(ctx, id, gen, halt)
		if !ok {
			return
		}
		leadID, cfg, scriptID, ok := m.next(ctx, id, gen)
		if !ok {
			m.releaseSlot(ctx, id, held)
			return
		}
		m.dial(ctx, id, leadID, scriptID, held)

		if !sleep(ctx, cfg.PacingDelay, halt) {
			log.Debug("worker stopped during pacing")
			return
		}
	}
}

// next pops the next lead under the lock, advancing the cursor before the
// dial so no lead is dialed twice.
func (m *Manager) next(ctx context.Context, id string, gen int) (string, Config, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.instances[id]
	if !ok || st.gen != gen || st.inst.Status != StatusRunning {
		return "", Config{}, "", false
	}
	if st.inst.Remaining() == 0 {
		if m.maybeCompleteLocked(st) {
			logger.From(ctx).Info("agent instance completed")
		}
		return "", Config{}, "", false
	}
	leadID := st.inst.LeadQueue[st.inst.Cursor]
	st.inst.Cursor++
	st.inst.UpdatedAt = m.clock().UTC()
	return leadID, st.inst.Config, st.inst.ScriptID, true
}

// acquireSlot waits for room under MaxConcurrent. held reports whether a
// limiter slot was taken; ok is false if the worker should exit instead.
// An exhausted queue needs no slot.
func (m *Manager) acquireSlot(ctx context.Context, id string, gen int, halt <-chan struct{}) (held, ok bool) {
	for {
		m.mu.Lock()
		st, found := m.instances[id]
		if !found || st.gen != gen || st.inst.Status != StatusRunning {
			m.mu.Unlock()
			return false, false
		}
		limit, pacing := st.inst.Config.MaxConcurrent, st.inst.Config.PacingDelay
		inflight, remaining := st.inst.Counters.InFlight, st.inst.Remaining()
		m.mu.Unlock()
		if limit <= 0 || remaining == 0 {
			return false, true
		}

		if m.deps.Limiter != nil {
			got, err := m.deps.Limiter.Acquire(ctx, id, limit)
			if err == nil && got {
				return true, true
			}
			if err != nil {
				// A limiter outage must not stall the campaign; fall back to
				// the in-process count.
				logger.From(ctx).Warn("dial limiter acquire failed", "err", err)
				if inflight < limit {
					return false, true
				}
			}
		} else if inflight < limit {
			return false, true
		}
		if !sleep(ctx, max(pacing, capRetry), halt) {
			return false, false
		}
	}
}

func (m *Manager) releaseSlot(ctx context.Context, id string, held bool) {
	if !held || m.deps.Limiter == nil {
		return
	}
	if err := m.deps.Limiter.Release(ctx, id); err != nil {
		logger.From(ctx).Warn("dial limiter release failed", "err", err)
	}
}

func (m *Manager) count(id string, fn func(c *Counters)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.instances[id]; ok {
		fn(&st.inst.Counters)
		st.inst.UpdatedAt = m.clock().UTC()
	}
}

// dial places one call. Every failure is confined to this lead.
func (m *Manager) dial(ctx context.Context, id, leadID, scriptID string, held bool) {
	log := logger.From(ctx).With("lead_id", leadID)

	lead, err := m.deps.Leads.Get(ctx, leadID)
	if err != nil {
		log.Warn("lead lookup failed, skipping", "err", err)
		m.count(id, func(c *Counters) { c.Skipped++ })
		m.releaseSlot(ctx, id, held)
		return
	}
	if m.deps.DNC != nil {
		listed, err := m.deps.DNC.IsListed(ctx, lead.Phone)
		if err != nil || listed {
			log.Info("lead suppressed by dnc", "listed", listed, "err", err)
			m.count(id, func(c *Counters) { c.Skipped++ })
			m.releaseSlot(ctx, id, held)
			return
		}
	}

	adapter := m.deps.Adapter
	call, err := m.deps.Ledger.CreateForDial(ctx, calls.DialRecord{
		AgentInstanceID: id,
		LeadID:          lead.ID,
		ToNumber:        lead.Phone,
		Provider:        adapter.Name(),
	})
	if err != nil {
		log.Error("create call failed", "err", err)
		m.count(id, func(c *Counters) { c.DialFailed++ })
		m.releaseSlot(ctx, id, held)
		return
	}

	m.mu.Lock()
	if st, ok := m.instances[id]; ok {
		st.inflight[call.ID] = placed{held: held, at: m.clock()}
		st.inst.Counters.InFlight++
		st.inst.Counters.Dialed++
	}
	m.mu.Unlock()

	log = log.With("call_id", call.ID)
	pid, err := adapter.InitiateDial(ctx, telephony.DialRequest{
		CallID:          call.ID,
		AgentInstanceID: id,
		LeadID:          lead.ID,
		LeadName:        lead.Name,
		ScriptID:        scriptID,
		To:              lead.Phone,
	})
	if err != nil {
		m.failDial(ctx, id, call.ID, err)
		return
	}
	if _, err := m.deps.Ledger.BindProviderID(ctx, call.ID, adapter.Name(), pid); err != nil {
		m.failDial(ctx, id, call.ID, err)
		return
	}
	log.Info("call placed", "provider_call_id", pid)
}

func (m *Manager) failDial(ctx context.Context, id, callID string, cause error) {
	log := logger.From(ctx).With("call_id", callID)
	var ae *telephony.AdapterError
	rejected := errors.As(cause, &ae) && ae.StatusCode >= 400 && ae.StatusCode < 500
	if rejected {
		log.Warn("dial rejected by provider", "provider", ae.Provider, "status_code", ae.StatusCode, "err", ae.Err)
	} else {
		log.Error("dial failed", "err", cause)
		if m.deps.Alerts != nil {
			m.deps.Alerts.Alert(ctx, cause, map[string]string{
				"component":         "dialer",
				"agent_instance_id": id,
				"call_id":           callID,
			})
		}
	}
	m.count(id, func(c *Counters) { c.DialFailed++ })
	// FailDial notifies OnChange, which releases the in-flight slot.
	if _, err := m.deps.Ledger.FailDial(ctx, callID, cause.Error()); err != nil {
		log.Error("mark call failed", "err", err)
	}
}

// sleep waits d unless halted or canceled first. It reports whether the
// worker should continue.
func sleep(ctx context.Context, d time.Duration, halt <-chan struct{}) bool {
	select {
	case <-halt:
		return false
	case <-ctx.Done():
		return false
	default:
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-halt:
		return false
	case <-ctx.Done():
		return false
	}
}
