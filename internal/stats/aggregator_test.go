package stats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"campaign-dialer/internal/calls"
	"campaign-dialer/pkg/alert"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type recordingBus struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (b *recordingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

func setup(t *testing.T) (*calls.Ledger, *Aggregator, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	ledger, agg := setupWithBus(t, bus)
	return ledger, agg, bus
}

func setupWithBus(t *testing.T, bus Publisher) (*calls.Ledger, *Aggregator) {
	t.Helper()
	ledger := calls.NewLedger(calls.NewMemoryRepo(), alert.LogNotifier{})
	agg := NewAggregator(ledger, bus)
	ledger.Subscribe(agg.OnChange)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		agg.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ledger, agg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dial(t *testing.T, l *calls.Ledger, instance, pid string) {
	t.Helper()
	ctx := context.Background()
	c, err := l.CreateForDial(ctx, calls.DialRecord{AgentInstanceID: instance, LeadID: pid, ToNumber: "+1555" + pid})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.BindProviderID(ctx, c.ID, "twilio", pid); err != nil {
		t.Fatalf("bind: %v", err)
	}
}

func apply(t *testing.T, l *calls.Ledger, pid string, body calls.EventBody) {
	t.Helper()
	if _, err := l.ApplyEvent(context.Background(), calls.CallEvent{ProviderCallID: pid, Body: body}); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestAggregator_CountsTerminalCallsOnce(t *testing.T) {
	l, agg, bus := setup(t)
	dial(t, l, "ai-1", "P1")
	dial(t, l, "ai-1", "P2")

	apply(t, l, "P1", calls.StatusChanged{Status: calls.StatusRinging})
	apply(t, l, "P1", calls.StatusChanged{Status: calls.StatusInProgress})
	apply(t, l, "P1", calls.OutcomeDetected{Outcome: calls.OutcomeInterested})
	apply(t, l, "P1", calls.StatusChanged{Status: calls.StatusCompleted, DurationSeconds: 40})
	apply(t, l, "P1", calls.StatusChanged{Status: calls.StatusCompleted, DurationSeconds: 40})

	apply(t, l, "P2", calls.StatusChanged{Status: calls.StatusNoAnswer})

	got := agg.Snapshot("ai-1")
	if got.Attempted != 2 || got.Connected != 1 {
		t.Fatalf("attempted/connected = %d/%d, want 2/1", got.Attempted, got.Connected)
	}
	if got.Outcomes[calls.OutcomeInterested] != 1 || len(got.Outcomes) != 1 {
		t.Fatalf("unexpected outcomes %v", got.Outcomes)
	}
	if got.AverageDurationSeconds != 40 {
		t.Fatalf("average duration = %v, want 40", got.AverageDurationSeconds)
	}

	waitFor(t, "publishes", func() bool { return bus.count() >= 2 })
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.channels) != 2 || bus.channels[0] != "campaign:ai-1:stats" {
		t.Fatalf("expected one publish per counted change, got %v", bus.channels)
	}
	var last CampaignStats
	if err := json.Unmarshal(bus.payloads[1], &last); err != nil || last.Attempted != 2 {
		t.Fatalf("unexpected payload %s (%v)", bus.payloads[1], err)
	}
}

func TestAggregator_ReportAfterTerminalAdjustsCounters(t *testing.T) {
	l, agg, _ := setup(t)
	dial(t, l, "ai-2", "P3")

	apply(t, l, "P3", calls.StatusChanged{Status: calls.StatusCompleted})
	if got := agg.Snapshot("ai-2"); got.Attempted != 1 || got.DurationSamples != 0 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	apply(t, l, "P3", calls.CallReport{Outcome: calls.OutcomeCallback, DurationSeconds: 30})

	got := agg.Snapshot("ai-2")
	if got.Attempted != 1 || got.Outcomes[calls.OutcomeCallback] != 1 || got.DurationSamples != 1 {
		t.Fatalf("report should move outcome and duration, not attempts: %+v", got)
	}
}

func TestAggregator_RecomputeMatchesIncremental(t *testing.T) {
	l, agg, _ := setup(t)
	for _, pid := range []string{"A", "B", "C"} {
		dial(t, l, "ai-3", pid)
	}
	apply(t, l, "A", calls.StatusChanged{Status: calls.StatusInProgress})
	apply(t, l, "A", calls.StatusChanged{Status: calls.StatusCompleted, DurationSeconds: 12})
	apply(t, l, "B", calls.StatusChanged{Status: calls.StatusBusy})
	apply(t, l, "C", calls.StatusChanged{Status: calls.StatusRinging})

	incremental := agg.Snapshot("ai-3")
	rebuilt, err := agg.Recompute(context.Background(), "ai-3")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if diff := cmp.Diff(incremental, rebuilt, cmpopts.IgnoreFields(CampaignStats{}, "UpdatedAt")); diff != "" {
		t.Fatalf("recompute differs from incremental (-inc +rebuilt):\n%s", diff)
	}
}

func TestAggregator_EndOfCallReportCountsConnected(t *testing.T) {
	l, agg, _ := setup(t)
	dial(t, l, "ai-4", "V1")
	apply(t, l, "V1", calls.CallReport{
		Status:          calls.StatusCompleted,
		Outcome:         calls.OutcomeInterested,
		Transcript:      "sounds good tell me more",
		DurationSeconds: 120,
	})

	got := agg.Snapshot("ai-4")
	if got.Attempted != 1 || got.Connected != 1 || got.AverageDurationSeconds != 120 {
		t.Fatalf("attempted/connected/avg = %d/%d/%v, want 1/1/120", got.Attempted, got.Connected, got.AverageDurationSeconds)
	}
}

type blockingBus struct {
	release chan struct{}
	calls   chan struct{}
}

func (b *blockingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.calls <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return ctx.Err()
}

func TestAggregator_SlowBusDoesNotBlockLedger(t *testing.T) {
	bus := &blockingBus{release: make(chan struct{}), calls: make(chan struct{}, publishQueue+8)}
	l, agg := setupWithBus(t, bus)
	defer close(bus.release)

	start := time.Now()
	for _, pid := range []string{"B1", "B2", "B3"} {
		dial(t, l, "ai-5", pid)
		apply(t, l, pid, calls.StatusChanged{Status: calls.StatusCompleted})
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("ledger events waited %s on a stalled publisher", elapsed)
	}
	if got := agg.Snapshot("ai-5").Attempted; got != 3 {
		t.Fatalf("attempted = %d, want 3", got)
	}
	select {
	case <-bus.calls:
	case <-time.After(time.Second):
		t.Fatalf("publisher never called")
	}
}

// racingLister applies a ledger change right after the first read, the way a
// webhook can land while a recompute is in progress.
type racingLister struct {
	l     *calls.Ledger
	once  sync.Once
	race  func()
	reads int
}

func (r *racingLister) ListByInstance(ctx context.Context, id string) ([]calls.Call, error) {
	r.reads++
	list, err := r.l.ListByInstance(ctx, id)
	r.once.Do(r.race)
	return list, err
}

func TestAggregator_RecomputeKeepsChangesMadeDuringRead(t *testing.T) {
	l, agg, _ := setup(t)
	dial(t, l, "ai-6", "R1")
	dial(t, l, "ai-6", "R2")
	apply(t, l, "R1", calls.StatusChanged{Status: calls.StatusCompleted})

	lister := &racingLister{l: l, race: func() {
		apply(t, l, "R2", calls.StatusChanged{Status: calls.StatusBusy})
	}}
	agg.calls = lister

	got, err := agg.Recompute(context.Background(), "ai-6")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got.Attempted != 2 || agg.Snapshot("ai-6").Attempted != 2 {
		t.Fatalf("change applied during recompute was lost: %+v", got)
	}
	if lister.reads != 2 {
		t.Fatalf("expected a retry after the concurrent change, got %d reads", lister.reads)
	}
}

func TestAggregator_UnknownInstanceIsZero(t *testing.T) {
	_, agg, _ := setup(t)
	got := agg.Snapshot("nope")
	if got.Attempted != 0 || got.Outcomes == nil {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestHub_FanOutAndCancel(t *testing.T) {
	h := NewHub(1)
	a, cancelA := h.Subscribe("c")
	b, cancelB := h.Subscribe("c")
	defer cancelB()

	if err := h.Publish(context.Background(), "c", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, ch := range []<-chan []byte{a, b} {
		select {
		case got := <-ch:
			if string(got) != "x" {
				t.Fatalf("unexpected payload %q", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive")
		}
	}

	cancelA()
	cancelA()
	if n := h.subscribers("c"); n != 1 {
		t.Fatalf("expected 1 subscriber after cancel, got %d", n)
	}

	// full buffer drops instead of blocking
	_ = h.Publish(context.Background(), "c", []byte("1"))
	_ = h.Publish(context.Background(), "c", []byte("2"))
}

type failingBus struct{}

func (failingBus) Publish(context.Context, string, []byte) error { return errors.New("down") }

func TestMultiBus_PublishesToAllAndJoinsErrors(t *testing.T) {
	rec := &recordingBus{}
	err := MultiBus{failingBus{}, nil, rec}.Publish(context.Background(), "c", []byte("p"))
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if len(rec.channels) != 1 {
		t.Fatalf("healthy bus should still receive, got %d", len(rec.channels))
	}
}
