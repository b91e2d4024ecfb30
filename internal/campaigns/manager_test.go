package campaigns

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"campaign-dialer/internal/calls"
	"campaign-dialer/internal/dnc"
	"campaign-dialer/internal/leads"
	"campaign-dialer/internal/telephony"
	"campaign-dialer/pkg/alert"

	"github.com/google/go-cmp/cmp"
)

type fakeAdapter struct {
	mu     sync.Mutex
	dialed []telephony.DialRequest
	fail   map[string]error
	onDial func(n int, req telephony.DialRequest)
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) InitiateDial(ctx context.Context, req telephony.DialRequest) (string, error) {
	f.mu.Lock()
	f.dialed = append(f.dialed, req)
	n := len(f.dialed)
	err := f.fail[req.LeadID]
	hook := f.onDial
	f.mu.Unlock()
	if hook != nil {
		hook(n, req)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("P-%s", req.LeadID), nil
}

func (f *fakeAdapter) SendSMS(ctx context.Context, to, body string) error { return nil }

func (f *fakeAdapter) leadOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.dialed))
	for _, r := range f.dialed {
		out = append(out, r.LeadID)
	}
	return out
}

type fakeLimiter struct {
	mu       sync.Mutex
	held     int
	acquired int
	released int
}

func (l *fakeLimiter) Acquire(ctx context.Context, name string, limit int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held >= limit {
		return false, nil
	}
	l.held++
	l.acquired++
	return true, nil
}

func (l *fakeLimiter) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held--
	l.released++
	return nil
}

type env struct {
	m       *Manager
	ledger  *calls.Ledger
	repo    *calls.MemoryRepo
	adapter *fakeAdapter
	dnc     *dnc.Registry
	leads   *leads.MemoryStore
}

func newEnv(t *testing.T, n int) *env {
	t.Helper()
	e := &env{
		repo:    calls.NewMemoryRepo(),
		adapter: &fakeAdapter{fail: map[string]error{}},
		dnc:     dnc.NewRegistry(dnc.NewMemoryRepo(), nil),
		leads:   leads.NewMemoryStore(),
	}
	for i := 1; i <= n; i++ {
		e.leads.Put(leads.Lead{ID: fmt.Sprintf("L%d", i), Name: fmt.Sprintf("Lead %d", i), Phone: fmt.Sprintf("+1555000000%d", i)})
	}
	e.ledger = calls.NewLedger(e.repo, alert.LogNotifier{})
	e.m = NewManager(Deps{Ledger: e.ledger, Leads: e.leads, DNC: e.dnc, Adapter: e.adapter})
	e.ledger.Subscribe(e.m.OnChange)
	t.Cleanup(e.m.Close)
	return e
}

func leadIDs(n int) []string {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("L%d", i))
	}
	return out
}

func (e *env) spawn(t *testing.T, ids []string, cfg Config) AgentInstance {
	t.Helper()
	inst, err := e.m.Spawn(context.Background(), SpawnRequest{Name: "spring promo", LeadIDs: ids, Config: cfg})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	return inst
}

func (e *env) finish(t *testing.T, leadID string) {
	t.Helper()
	_, err := e.ledger.ApplyEvent(context.Background(), calls.CallEvent{
		ProviderCallID: "P-" + leadID,
		Provider:       "fake",
		OccurredAt:     time.Now().UTC(),
		Body:           calls.StatusChanged{Status: calls.StatusCompleted},
	})
	if err != nil {
		t.Fatalf("finish %s: %v", leadID, err)
	}
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

func (e *env) get(t *testing.T, id string) AgentInstance {
	t.Helper()
	inst, err := e.m.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return inst
}

func TestSpawn_Validation(t *testing.T) {
	e := newEnv(t, 0)
	scripts, err := telephony.ParseScripts([]byte("scripts:\n  solar:\n    greeting: hi\n"))
	if err != nil {
		t.Fatalf("parse scripts: %v", err)
	}
	e.m.deps.Scripts = scripts

	cases := []struct {
		name string
		req  SpawnRequest
	}{
		{"missing name", SpawnRequest{Name: "  ", LeadIDs: []string{"L1"}}},
		{"no leads", SpawnRequest{Name: "x"}},
		{"blank lead", SpawnRequest{Name: "x", LeadIDs: []string{"L1", ""}}},
		{"negative pacing", SpawnRequest{Name: "x", LeadIDs: []string{"L1"}, Config: Config{PacingDelay: -time.Second}}},
		{"negative cap", SpawnRequest{Name: "x", LeadIDs: []string{"L1"}, Config: Config{MaxConcurrent: -1}}},
		{"unknown script", SpawnRequest{Name: "x", ScriptID: "nope", LeadIDs: []string{"L1"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.m.Spawn(context.Background(), tc.req); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if got := len(e.m.List()); got != 0 {
		t.Fatalf("rejected spawns must not create instances, got %d", got)
	}

	inst, err := e.m.Spawn(context.Background(), SpawnRequest{Name: "ok", ScriptID: "solar", LeadIDs: []string{"L2", "L1", "L2"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if diff := cmp.Diff([]string{"L2", "L1"}, inst.LeadQueue); diff != "" {
		t.Fatalf("queue mismatch (-want +got):\n%s", diff)
	}
	if inst.Status != StatusIdle || inst.Cursor != 0 {
		t.Fatalf("unexpected new instance: %+v", inst)
	}
	if got := e.m.ScriptID(inst.ID); got != "solar" {
		t.Fatalf("ScriptID: got %q", got)
	}
	if got := e.m.ScriptID("missing"); got != telephony.DefaultScriptID {
		t.Fatalf("ScriptID fallback: got %q", got)
	}
}

func TestStart_NoAdapter(t *testing.T) {
	m := NewManager(Deps{Leads: leads.NewMemoryStore()})
	defer m.Close()
	inst, err := m.Spawn(context.Background(), SpawnRequest{Name: "x", LeadIDs: []string{"L1"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if _, err := m.Start(context.Background(), inst.ID); !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("expected ErrNoAdapter, got %v", err)
	}
	if got, _ := m.Get(inst.ID); got.Status != StatusIdle {
		t.Fatalf("status changed to %s", got.Status)
	}
}

func TestLifecycle_IllegalTransitions(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()
	inst := e.spawn(t, []string{"L1"}, Config{})

	if _, err := e.m.Pause(ctx, inst.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pause idle: %v", err)
	}
	if _, err := e.m.Resume(ctx, inst.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resume idle: %v", err)
	}
	if _, err := e.m.Stop(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stop missing: %v", err)
	}
	if _, err := e.m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}

	e.adapter.onDial = func(n int, _ telephony.DialRequest) {
		if _, err := e.m.Stop(ctx, inst.ID); err != nil {
			t.Errorf("stop: %v", err)
		}
	}
	if _, err := e.m.Start(ctx, inst.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "stop", func() bool { return e.get(t, inst.ID).Status == StatusStopped })
	e.m.wg.Wait()

	if _, err := e.m.Start(ctx, inst.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start stopped: %v", err)
	}
	if _, err := e.m.Resume(ctx, inst.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resume stopped: %v", err)
	}

	// a call placed before stop still finishes, without reviving the instance
	e.finish(t, "L1")
	if got := e.get(t, inst.ID); got.Status != StatusStopped || got.Counters.InFlight != 0 {
		t.Fatalf("unexpected after stop: %+v", got)
	}
}

func TestPauseResume_PreservesOrderWithoutRepeats(t *testing.T) {
	e := newEnv(t, 4)
	ctx := context.Background()
	inst := e.spawn(t, leadIDs(4), Config{})

	e.adapter.onDial = func(n int, _ telephony.DialRequest) {
		if n == 2 {
			if _, err := e.m.Pause(ctx, inst.ID); err != nil {
				t.Errorf("pause: %v", err)
			}
		}
	}
	if _, err := e.m.Start(ctx, inst.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "pause", func() bool { return e.get(t, inst.ID).Status == StatusPaused })
	e.m.wg.Wait()

	got := e.get(t, inst.ID)
	if got.Cursor != 2 || got.Counters.Dialed != 2 {
		t.Fatalf("after pause: cursor=%d dialed=%d", got.Cursor, got.Counters.Dialed)
	}

	e.adapter.onDial = nil
	if _, err := e.m.Resume(ctx, inst.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitFor(t, "all dials", func() bool { return e.get(t, inst.ID).Counters.Dialed == 4 })
	e.m.wg.Wait()

	if diff := cmp.Diff(leadIDs(4), e.adapter.leadOrder()); diff != "" {
		t.Fatalf("dial order (-want +got):\n%s", diff)
	}
	if got := e.get(t, inst.ID); got.Status != StatusRunning || got.Counters.InFlight != 4 {
		t.Fatalf("exhausted queue with calls in flight must stay running: %+v", got)
	}

	for _, id := range leadIDs(4) {
		e.finish(t, id)
	}
	got = e.get(t, inst.ID)
	if got.Status != StatusCompleted || got.Counters.InFlight != 0 {
		t.Fatalf("expected completed with nothing in flight, got %+v", got)
	}
}

func TestDial_SkipsListedAndMissingLeads(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()
	if err := e.dnc.Add(ctx, "+15550000002", "test"); err != nil {
		t.Fatalf("dnc add: %v", err)
	}
	inst := e.spawn(t, []string{"L1", "L2", "ghost", "L3"}, Config{})
	if _, err := e.m.Start(ctx, inst.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "queue drained", func() bool { return e.get(t, inst.ID).Cursor == 4 })
	e.m.wg.Wait()

	if diff := cmp.Diff([]string{"L1", "L3"}, e.adapter.leadOrder()); diff != "" {
		t.Fatalf("dialed (-want +got):\n%s", diff)
	}
	got := e.get(t, inst.ID)
	want := Counters{Dialed: 2, Skipped: 2, InFlight: 2}
	if diff := cmp.Diff(want, got.Counters); diff != "" {
		t.Fatalf("counters (-want +got):\n%s", diff)
	}
	if e.repo.Len() != 2 {
		t.Fatalf("skipped leads must not create calls, got %d", e.repo.Len())
	}
}

func TestDial_AdapterFailureMarksCallFailedAndContinues(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()
	e.adapter.fail["L1"] = &telephony.AdapterError{Provider: "fake", Op: "dial", StatusCode: 400, Err: errors.New("invalid number")}
	inst := e.spawn(t, leadIDs(2), Config{})
	if _, err := e.m.Start(ctx, inst.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "both dials", func() bool { return e.get(t, inst.ID).Cursor == 2 })
	e.m.wg.Wait()

	calls1, err := e.ledger.ListByInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var failed int
	for _, c := range calls1 {
		if c.LeadID == "L1" {
			failed++
			if c.Status != calls.StatusFailed || c.FailureReason == "" {
				t.Fatalf("L1 call: status=%s reason=%q", c.Status, c.FailureReason)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected one L1 call, got %d", failed)
	}

	got := e.get(t, inst.ID)
	if got.Counters.DialFailed != 1 || got.Counters.InFlight != 1 {
		t.Fatalf("counters: %+v", got.Counters)
	}
	e.finish(t, "L2")
	if got := e.get(t, inst.ID); got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestMaxConcurrent_WaitsForTerminalCall(t *testing.T) {
	e := newEnv(t, 2)
	lim := &fakeLimiter{}
	e.m.deps.Limiter = lim
	ctx := context.Background()
	inst := e.spawn(t, leadIDs(2), Config{MaxConcurrent: 1})
	if _, err := e.m.Start(ctx, inst.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first dial", func() bool { return e.get(t, inst.ID).Counters.Dialed == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := e.get(t, inst.ID).Counters.Dialed; got != 1 {
		t.Fatalf("cap exceeded: dialed=%d", got)
	}

	e.finish(t, "L1")
	waitFor(t, "second dial", func() bool { return e.get(t, inst.ID).Counters.Dialed == 2 })
	e.m.wg.Wait()
	e.finish(t, "L2")

	if got := e.get(t, inst.ID); got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	lim.mu.Lock()
	defer lim.mu.Unlock()
	if lim.held != 0 || lim.acquired != 2 || lim.released != 2 {
		t.Fatalf("limiter unbalanced: %+v", lim)
	}
}

func TestClose_InterruptsPacing(t *testing.T) {
	e := newEnv(t, 2)
	inst := e.spawn(t, leadIDs(2), Config{PacingDelay: time.Hour})
	if _, err := e.m.Start(context.Background(), inst.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first dial", func() bool { return e.get(t, inst.ID).Counters.Dialed == 1 })

	done := make(chan struct{})
	go func() {
		e.m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not interrupt the pacing delay")
	}
	if got := e.get(t, inst.ID).Counters.Dialed; got != 1 {
		t.Fatalf("dialed after close: %d", got)
	}
}

func TestReapStale_FailsCallsThatNeverHeardBack(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()
	inst := e.spawn(t, leadIDs(2), Config{})
	if _, err := e.m.Start(ctx, inst.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "both dials", func() bool { return e.get(t, inst.ID).Counters.Dialed == 2 })
	e.m.wg.Wait()

	// L1's terminal callback raced the binding and was dropped; L2 rang.
	if _, err := e.ledger.ApplyEvent(ctx, calls.CallEvent{ProviderCallID: "P-L2", Body: calls.StatusChanged{Status: calls.StatusRinging}}); err != nil {
		t.Fatalf("ringing: %v", err)
	}

	if n := e.m.ReapStale(ctx, time.Minute); n != 0 {
		t.Fatalf("fresh calls must not be reaped, got %d", n)
	}

	later := time.Now().Add(time.Hour)
	e.m.clock = func() time.Time { return later }
	if n := e.m.ReapStale(ctx, time.Minute); n != 1 {
		t.Fatalf("expected one reaped call, got %d", n)
	}
	c, err := e.ledger.GetByProviderID(ctx, "P-L1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Status != calls.StatusFailed || c.FailureReason != ReasonNoCallback {
		t.Fatalf("reaped call: status=%s reason=%q", c.Status, c.FailureReason)
	}
	if got := e.get(t, inst.ID); got.Status != StatusRunning || got.Counters.InFlight != 1 {
		t.Fatalf("ringing call must stay in flight: %+v", got)
	}

	e.finish(t, "L2")
	if got := e.get(t, inst.ID); got.Status != StatusCompleted || got.Counters.InFlight != 0 {
		t.Fatalf("expected completed, got %+v", got)
	}
}

type recordingAlerts struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingAlerts) Alert(ctx context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func TestDial_ProviderOutageAlertsButRejectionDoesNot(t *testing.T) {
	e := newEnv(t, 2)
	alerts := &recordingAlerts{}
	e.m.deps.Alerts = alerts
	outage := &telephony.AdapterError{Provider: "fake", Op: "dial", StatusCode: 503, Err: errors.New("unavailable")}
	e.adapter.fail["L1"] = &telephony.AdapterError{Provider: "fake", Op: "dial", StatusCode: 400, Err: errors.New("invalid number")}
	e.adapter.fail["L2"] = outage
	inst := e.spawn(t, leadIDs(2), Config{})
	if _, err := e.m.Start(context.Background(), inst.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "completed", func() bool { return e.get(t, inst.ID).Status == StatusCompleted })
	e.m.wg.Wait()

	alerts.mu.Lock()
	defer alerts.mu.Unlock()
	if len(alerts.errs) != 1 || !errors.Is(alerts.errs[0], outage) {
		t.Fatalf("expected one outage alert, got %v", alerts.errs)
	}
}
