package calls

import "time"

// CallEvent is the provider-agnostic form of one webhook callback.
type CallEvent struct {
	ProviderCallID string
	Provider       string
	OccurredAt     time.Time
	Body           EventBody
}

// EventBody is a closed set of event variants; Transition switches on it exhaustively.
type EventBody interface {
	Kind() EventKind
	sealed()
}

type EventKind string

const (
	KindStatusChanged   EventKind = "status_changed"
	KindOutcomeDetected EventKind = "outcome_detected"
	KindRecordingReady  EventKind = "recording_ready"
	KindCallReport      EventKind = "call_report"
)

// StatusChanged moves the call through its state machine.
type StatusChanged struct {
	Status          Status
	DurationSeconds int
	// Reason is recorded as FailureReason when Status is failed.
	Reason string
}

// OutcomeDetected sets the outcome (at most once) and/or flags an opt-out.
// An empty Outcome carries only the opt-out.
type OutcomeDetected struct {
	Outcome   Outcome
	Sentiment Sentiment
	OptedOut  bool
	// Source names what produced it (keypress, amd, sms) for logs.
	Source string
}

// RecordingReady attaches the recording once available.
type RecordingReady struct {
	URL             string
	DurationSeconds int
}

// CallReport is the end-of-call report merged atomically, once.
type CallReport struct {
	Status          Status
	EndedReason     string
	Outcome         Outcome
	Sentiment       Sentiment
	OptedOut        bool
	Transcript      string
	Summary         string
	RecordingURL    string
	DurationSeconds int
	CostMinor       int64
}

func (StatusChanged) Kind() EventKind   { return KindStatusChanged }
func (OutcomeDetected) Kind() EventKind { return KindOutcomeDetected }
func (RecordingReady) Kind() EventKind  { return KindRecordingReady }
func (CallReport) Kind() EventKind      { return KindCallReport }

func (StatusChanged) sealed()   {}
func (OutcomeDetected) sealed() {}
func (RecordingReady) sealed()  {}
func (CallReport) sealed()      {}
