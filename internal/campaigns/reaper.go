package campaigns

import (
	"context"
	"time"

	"campaign-dialer/internal/calls"
	"campaign-dialer/pkg/logger"
)

// ReasonNoCallback is the failure reason recorded on reaped calls.
const ReasonNoCallback = "no provider callback received"

// ReapStale fails calls placed more than staleAfter ago that are still
// queued: no provider callback ever reached them, typically because a
// terminal callback arrived before the provider id was bound. Failing them
// through the ledger frees their slots so the instance can complete. It
// returns the number of calls failed.
func (m *Manager) ReapStale(ctx context.Context, staleAfter time.Duration) int {
	cutoff := m.clock().Add(-staleAfter)

	type ref struct{ instance, call string }
	var due []ref
	m.mu.Lock()
	for id, st := range m.instances {
		for callID, p := range st.inflight {
			if p.at.Before(cutoff) {
				due = append(due, ref{id, callID})
			}
		}
	}
	m.mu.Unlock()

	reaped := 0
	for _, r := range due {
		log := logger.From(ctx).With("agent_instance_id", r.instance, "call_id", r.call)
		c, err := m.deps.Ledger.Get(ctx, r.call)
		if err != nil {
			log.Warn("stale call lookup failed", "err", err)
			continue
		}
		switch {
		case c.Status.IsTerminal():
			m.settle(ctx, r.instance, r.call)
		case c.Status == calls.StatusQueued:
			if _, err := m.deps.Ledger.FailDial(ctx, r.call, ReasonNoCallback); err != nil {
				log.Error("fail stale call", "err", err)
				continue
			}
			log.Warn("stale call failed", "provider_call_id", c.ProviderCallID)
			reaped++
		}
	}
	return reaped
}

// RunReaper calls ReapStale every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, every, staleAfter time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.ReapStale(ctx, staleAfter); n > 0 {
				logger.From(ctx).Info("stale calls reaped", "count", n)
			}
		}
	}
}
