package calls

import (
	"testing"
	"time"
)

func TestTransition_Table(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	tests := []struct {
		name    string
		from    Status
		to      Status
		want    Status
		changed bool
		dropped DropReason
	}{
		{"queued to ringing", StatusQueued, StatusRinging, StatusRinging, true, DropNone},
		{"ringing to in-progress", StatusRinging, StatusInProgress, StatusInProgress, true, DropNone},
		{"queued straight to completed", StatusQueued, StatusCompleted, StatusCompleted, true, DropNone},
		{"in-progress to busy", StatusInProgress, StatusBusy, StatusBusy, true, DropNone},
		{"ringing to failed", StatusRinging, StatusFailed, StatusFailed, true, DropNone},
		{"in-progress back to ringing", StatusInProgress, StatusRinging, StatusInProgress, false, DropIllegalTransition},
		{"completed to failed", StatusCompleted, StatusFailed, StatusCompleted, false, DropIllegalTransition},
		{"no-answer to completed", StatusNoAnswer, StatusCompleted, StatusNoAnswer, false, DropIllegalTransition},
		{"same status", StatusRinging, StatusRinging, StatusRinging, false, DropDuplicate},
		{"unknown status", StatusRinging, Status("canceled"), StatusRinging, false, DropIllegalTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, eff := Transition(Call{Status: tt.from}, CallEvent{OccurredAt: at, Body: StatusChanged{Status: tt.to}})
			if got.Status != tt.want {
				t.Fatalf("status = %q, want %q", got.Status, tt.want)
			}
			if eff.Changed() != tt.changed {
				t.Fatalf("changed = %v, want %v", eff.Changed(), tt.changed)
			}
			if eff.Dropped != tt.dropped {
				t.Fatalf("dropped = %q, want %q", eff.Dropped, tt.dropped)
			}
		})
	}
}

func TestTransition_ConnectedAndEndedTimestamps(t *testing.T) {
	t1 := time.Unix(1700000000, 0).UTC()
	t2 := t1.Add(time.Minute)

	c, eff := Transition(Call{Status: StatusRinging}, CallEvent{OccurredAt: t1, Body: StatusChanged{Status: StatusInProgress}})
	if !eff.Connected || !c.ConnectedAt.Equal(t1) {
		t.Fatalf("expected connected at t1: %+v", c)
	}
	c, eff = Transition(c, CallEvent{OccurredAt: t2, Body: StatusChanged{Status: StatusCompleted, DurationSeconds: 60}})
	if !eff.BecameTerminal || !c.EndedAt.Equal(t2) || c.DurationSeconds != 60 {
		t.Fatalf("expected terminal with duration: %+v", c)
	}
	if !c.UpdatedAt.Equal(t2) {
		t.Fatalf("updated_at should follow the event time")
	}
}

func TestTransition_TerminalWithTalkTimeInfersConnected(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	tests := []struct {
		name string
		from Call
		ev   EventBody
		want bool
	}{
		{"completed after missed in-progress", Call{Status: StatusRinging}, StatusChanged{Status: StatusCompleted, DurationSeconds: 35}, true},
		{"completed without duration", Call{Status: StatusRinging}, StatusChanged{Status: StatusCompleted}, false},
		{"no-answer with duration", Call{Status: StatusRinging}, StatusChanged{Status: StatusNoAnswer, DurationSeconds: 5}, false},
		{"report with transcript only", Call{Status: StatusQueued}, CallReport{Status: StatusCompleted, Transcript: "hello?"}, true},
		{"report classified no-answer", Call{Status: StatusQueued}, CallReport{Status: StatusCompleted, Outcome: OutcomeNoAnswer, DurationSeconds: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, eff := Transition(tt.from, CallEvent{OccurredAt: at, Body: tt.ev})
			if c.Connected() != tt.want || eff.Connected != tt.want {
				t.Fatalf("connected = %v (effect %v), want %v", c.Connected(), eff.Connected, tt.want)
			}
			again, eff := Transition(c, CallEvent{OccurredAt: at.Add(time.Second), Body: tt.ev})
			if eff.Connected || !again.ConnectedAt.Equal(c.ConnectedAt) {
				t.Fatalf("replay must not move connected_at")
			}
		})
	}
}

func TestTransition_NilBodyIsDropped(t *testing.T) {
	_, eff := Transition(Call{Status: StatusQueued}, CallEvent{})
	if eff.Changed() || eff.Dropped != DropEmpty {
		t.Fatalf("unexpected effect %+v", eff)
	}
}

func TestTransition_FailedRecordsReasonOnce(t *testing.T) {
	c, _ := Transition(Call{Status: StatusQueued}, CallEvent{Body: StatusChanged{Status: StatusFailed, Reason: "dial rejected"}})
	if c.FailureReason != "dial rejected" {
		t.Fatalf("expected failure reason, got %q", c.FailureReason)
	}
	c, eff := Transition(c, CallEvent{Body: StatusChanged{Status: StatusFailed, Reason: "other"}})
	if eff.Changed() || c.FailureReason != "dial rejected" {
		t.Fatalf("failure reason must not change after terminal")
	}
}
