package calls

import "testing"

func TestStatus_TerminalSet(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("expected %q terminal", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusRinging, StatusInProgress} {
		if s.IsTerminal() {
			t.Fatalf("expected %q non-terminal", s)
		}
	}
	if Status("canceled").Valid() {
		t.Fatalf("canceled is folded into failed by adapters, not a ledger status")
	}
}

func TestOutcome_WantsFollowUp(t *testing.T) {
	if !OutcomeInterested.WantsFollowUp() || !OutcomeBooked.WantsFollowUp() {
		t.Fatalf("interested and booked must trigger follow-up")
	}
	if OutcomeCallback.WantsFollowUp() || OutcomeNotInterested.WantsFollowUp() {
		t.Fatalf("only interested/booked trigger follow-up")
	}
}
