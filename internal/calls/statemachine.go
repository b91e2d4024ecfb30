package calls

import (
	"strings"
	"time"
)

// DropReason says why an event left the call untouched.
type DropReason string

const (
	DropNone              DropReason = ""
	DropUnknownCall       DropReason = "unknown_call"
	DropIllegalTransition DropReason = "illegal_transition"
	DropDuplicate         DropReason = "duplicate"
	DropReportAttached    DropReason = "report_already_attached"
	DropEmpty             DropReason = "empty_event"
)

// Effect summarizes what an event changed.
type Effect struct {
	StatusChanged     bool
	BecameTerminal    bool
	Connected         bool
	OutcomeSet        bool
	OptedOut          bool
	ReportAttached    bool
	RecordingAttached bool
	DurationSet       bool

	Dropped DropReason
}

// Changed reports whether the call differs from before the event.
func (e Effect) Changed() bool {
	return e.StatusChanged || e.Connected || e.OutcomeSet || e.OptedOut || e.ReportAttached ||
		e.RecordingAttached || e.DurationSet
}

// Transition applies ev to c. It is a pure function of (c, ev): applying the
// same event to its own result is always a no-op.
//
// Status only moves forward; any non-terminal state may jump to failed.
// Events that would regress status are dropped, but their supplementary
// fields still attach if not yet present.
func Transition(c Call, ev CallEvent) (Call, Effect) {
	var eff Effect
	switch b := ev.Body.(type) {
	case StatusChanged:
		applyStatus(&c, &eff, b.Status, ev)
		if eff.StatusChanged && b.Status == StatusFailed && b.Reason != "" && c.FailureReason == "" {
			c.FailureReason = b.Reason
		}
		if b.DurationSeconds > 0 && c.DurationSeconds == 0 && (eff.StatusChanged || c.Status.IsTerminal()) {
			c.DurationSeconds = b.DurationSeconds
			eff.DurationSet = true
		}
		inferConnected(&c, &eff, ev.OccurredAt)
	case OutcomeDetected:
		applyOutcome(&c, &eff, b.Outcome, b.Sentiment, b.OptedOut)
	case RecordingReady:
		if b.URL != "" && c.RecordingURL == "" {
			c.RecordingURL = b.URL
			eff.RecordingAttached = true
		}
		if b.DurationSeconds > 0 && c.DurationSeconds == 0 {
			c.DurationSeconds = b.DurationSeconds
			eff.DurationSet = true
		}
	case CallReport:
		if c.ReportAttached {
			eff.Dropped = DropReportAttached
			return c, eff
		}
		if b.Status != "" {
			applyStatus(&c, &eff, b.Status, ev)
		}
		applyOutcome(&c, &eff, b.Outcome, b.Sentiment, b.OptedOut)
		c.Transcript = b.Transcript
		c.Summary = b.Summary
		c.EndedReason = b.EndedReason
		c.CostMinor = b.CostMinor
		if b.RecordingURL != "" && c.RecordingURL == "" {
			c.RecordingURL = b.RecordingURL
			eff.RecordingAttached = true
		}
		if b.DurationSeconds > 0 && c.DurationSeconds != b.DurationSeconds {
			c.DurationSeconds = b.DurationSeconds
			eff.DurationSet = true
		}
		c.ReportAttached = true
		eff.ReportAttached = true
		inferConnected(&c, &eff, ev.OccurredAt)
	default:
		eff.Dropped = DropEmpty
		return c, eff
	}

	if !eff.Changed() {
		if eff.Dropped == DropNone {
			eff.Dropped = DropDuplicate
		}
		return c, eff
	}
	eff.Dropped = DropNone
	if !ev.OccurredAt.IsZero() {
		c.UpdatedAt = ev.OccurredAt
	}
	return c, eff
}

func applyStatus(c *Call, eff *Effect, to Status, ev CallEvent) {
	if to == c.Status {
		return
	}
	if !canAdvance(c.Status, to) {
		eff.Dropped = DropIllegalTransition
		return
	}
	c.Status = to
	eff.StatusChanged = true

	if to == StatusInProgress && c.ConnectedAt.IsZero() {
		c.ConnectedAt = ev.OccurredAt
		eff.Connected = true
	}
	if to.IsTerminal() {
		eff.BecameTerminal = true
		c.EndedAt = ev.OccurredAt
	}
}

// inferConnected marks a terminal call as answered when it carries talk time
// or a transcript. Provider B reports only the end of a call, and Twilio's
// in-progress callback can lose the race with completed.
func inferConnected(c *Call, eff *Effect, at time.Time) {
	if !c.ConnectedAt.IsZero() || at.IsZero() || !c.Status.IsTerminal() {
		return
	}
	switch c.Status {
	case StatusBusy, StatusNoAnswer:
		return
	}
	switch c.Outcome {
	case OutcomeNoAnswer, OutcomeVoicemail:
		return
	}
	if c.DurationSeconds > 0 || strings.TrimSpace(c.Transcript) != "" {
		c.ConnectedAt = at
		eff.Connected = true
	}
}

func applyOutcome(c *Call, eff *Effect, o Outcome, s Sentiment, optedOut bool) {
	if o != "" && c.Outcome == "" {
		c.Outcome = o
		c.Sentiment = s
		if c.Sentiment == "" {
			c.Sentiment = SentimentNeutral
		}
		eff.OutcomeSet = true
	}
	if optedOut && !c.OptedOut {
		c.OptedOut = true
		eff.OptedOut = true
	}
}

func canAdvance(from, to Status) bool {
	if !to.Valid() || from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return to.rank() > from.rank()
}
