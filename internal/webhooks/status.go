package webhooks

import (
	"strings"

	"campaign-dialer/internal/calls"
)

// twilioStatus maps Twilio's CallStatus vocabulary onto canonical status.
// canceled has no canonical state and becomes failed.
func twilioStatus(s string) (calls.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "initiated", "queued":
		return calls.StatusQueued, true
	case "ringing":
		return calls.StatusRinging, true
	case "in-progress", "answered":
		return calls.StatusInProgress, true
	case "completed":
		return calls.StatusCompleted, true
	case "busy":
		return calls.StatusBusy, true
	case "no-answer":
		return calls.StatusNoAnswer, true
	case "failed", "canceled":
		return calls.StatusFailed, true
	}
	return "", false
}

// vapiStatus maps Vapi status-update values. ended needs the ended reason to
// pick between completed and failed.
func vapiStatus(s, endedReason string) (calls.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "scheduled":
		return calls.StatusQueued, true
	case "ringing":
		return calls.StatusRinging, true
	case "in-progress", "forwarding":
		return calls.StatusInProgress, true
	case "ended":
		return vapiEndedStatus(endedReason), true
	}
	return "", false
}

// vapiEndedStatus treats provider and pipeline faults as failed. Every other
// ending, including the customer not picking up, is completed; the outcome
// carries the detail.
func vapiEndedStatus(endedReason string) calls.Status {
	r := strings.ToLower(endedReason)
	if strings.Contains(r, "error") || strings.Contains(r, "failed") || strings.Contains(r, "fault") {
		return calls.StatusFailed
	}
	return calls.StatusCompleted
}
