// Package stats keeps per-campaign counters current from ledger changes and
// pushes them to realtime subscribers. The ledger stays the system of record:
// Recompute rebuilds counters from it whenever a push may have been missed.
package stats

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"campaign-dialer/internal/calls"
	"campaign-dialer/pkg/logger"
)

// CallLister reads every call of an agent instance.
type CallLister interface {
	ListByInstance(ctx context.Context, instanceID string) ([]calls.Call, error)
}

const (
	publishQueue   = 256
	publishTimeout = 2 * time.Second
	recomputeTries = 5
)

// Aggregator subscribes to the ledger. Each change applies
// contribution(after) - contribution(before), so no-op and duplicate events
// never double count.
//
// Snapshots reach the bus through Run. The ledger listener only enqueues, and
// drops the update when the queue is full.
type Aggregator struct {
	mu    sync.Mutex
	stats map[string]*CampaignStats
	gen   map[string]uint64

	calls CallLister
	bus   Publisher
	out   chan CampaignStats
	clock func() time.Time
}

// NewAggregator builds an Aggregator. bus may be nil.
func NewAggregator(lister CallLister, bus Publisher) *Aggregator {
	return &Aggregator{
		stats: make(map[string]*CampaignStats),
		gen:   make(map[string]uint64),
		calls: lister,
		bus:   bus,
		out:   make(chan CampaignStats, publishQueue),
		clock: time.Now,
	}
}

// Run publishes queued snapshots until ctx is done.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-a.out:
			a.publish(ctx, s)
		}
	}
}

// OnChange is a calls.Listener.
func (a *Aggregator) OnChange(ctx context.Context, ch calls.Change) {
	id := ch.After.AgentInstanceID
	if id == "" {
		return
	}
	before, after := contributionOf(ch.Before), contributionOf(ch.After)
	if before == after {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.entryLocked(id)
	s.add(before, -1)
	s.add(after, +1)
	s.UpdatedAt = a.clock().UTC()
	a.gen[id]++
	a.enqueueLocked(ctx, s.clone())
}

// enqueueLocked runs under a.mu so snapshots of one instance queue in order.
func (a *Aggregator) enqueueLocked(ctx context.Context, s CampaignStats) {
	if a.bus == nil {
		return
	}
	select {
	case a.out <- s:
	default:
		logger.From(ctx).Warn("stats publish queue full, dropping update", "agent_instance_id", s.AgentInstanceID)
	}
}

func (a *Aggregator) entryLocked(id string) *CampaignStats {
	s, ok := a.stats[id]
	if !ok {
		s = &CampaignStats{AgentInstanceID: id, Outcomes: map[calls.Outcome]int{}}
		a.stats[id] = s
	}
	return s
}

// Snapshot returns the current counters for id. Unknown ids return zero
// counters.
func (a *Aggregator) Snapshot(id string) CampaignStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.stats[id]; ok {
		return s.clone()
	}
	return CampaignStats{AgentInstanceID: id, Outcomes: map[calls.Outcome]int{}}
}

// Recompute rebuilds id's counters from the ledger and publishes them. A
// change counted while the ledger was being read restarts the rebuild; when
// changes keep arriving the incremental counters are kept.
func (a *Aggregator) Recompute(ctx context.Context, id string) (CampaignStats, error) {
	for try := 0; try < recomputeTries; try++ {
		a.mu.Lock()
		gen := a.gen[id]
		a.mu.Unlock()

		list, err := a.calls.ListByInstance(ctx, id)
		if err != nil {
			return CampaignStats{}, err
		}
		fresh := CampaignStats{AgentInstanceID: id, Outcomes: map[calls.Outcome]int{}}
		for _, c := range list {
			fresh.add(contributionOf(c), +1)
		}

		a.mu.Lock()
		if a.gen[id] != gen {
			a.mu.Unlock()
			continue
		}
		fresh.UpdatedAt = a.clock().UTC()
		a.stats[id] = &fresh
		snap := fresh.clone()
		a.enqueueLocked(ctx, snap)
		a.mu.Unlock()
		return snap, nil
	}
	logger.From(ctx).Warn("stats recompute kept losing to live updates", "agent_instance_id", id)
	return a.Snapshot(id), nil
}

func (a *Aggregator) publish(ctx context.Context, s CampaignStats) {
	if a.bus == nil {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		logger.From(ctx).Warn("stats encode failed", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := a.bus.Publish(ctx, Channel(s.AgentInstanceID), payload); err != nil {
		logger.From(ctx).Warn("stats publish failed", "agent_instance_id", s.AgentInstanceID, "err", err)
	}
}
