package calls

import "time"

// Call is one outbound dial attempt, keyed by the provider's call id once bound.
//
// Created in StatusQueued by the campaign worker; after that only the Ledger
// mutates it, driven by normalized provider events.
type Call struct {
	ID              string `json:"id" db:"id"`
	ProviderCallID  string `json:"provider_call_id,omitempty" db:"provider_call_id"`
	Provider        string `json:"provider,omitempty" db:"provider"`
	AgentInstanceID string `json:"agent_instance_id,omitempty" db:"agent_instance_id"`
	LeadID          string `json:"lead_id" db:"lead_id"`

	// ToNumber is the dialed number (E.164). Inbound SMS replies are matched on it.
	ToNumber string `json:"to_number" db:"to_number"`

	Status    Status    `json:"status" db:"status"`
	Outcome   Outcome   `json:"outcome,omitempty" db:"outcome"`
	Sentiment Sentiment `json:"sentiment,omitempty" db:"sentiment"`
	OptedOut  bool      `json:"opted_out" db:"opted_out"`

	DurationSeconds int    `json:"duration" db:"duration"`
	Transcript      string `json:"transcript,omitempty" db:"transcript"`
	Summary         string `json:"summary,omitempty" db:"summary"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`
	CostMinor       int64  `json:"cost_minor,omitempty" db:"cost_minor"`
	EndedReason     string `json:"ended_reason,omitempty" db:"ended_reason"`
	FailureReason   string `json:"failure_reason,omitempty" db:"failure_reason"`

	// ReportAttached is set once the end-of-call report has been merged.
	ReportAttached bool `json:"report_attached" db:"report_attached"`

	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	ConnectedAt time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndedAt     time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Connected reports whether the callee ever picked up.
func (c Call) Connected() bool {
	return !c.ConnectedAt.IsZero()
}

type Status string

const (
	StatusQueued     Status = "queued"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBusy       Status = "busy"
	StatusNoAnswer   Status = "no-answer"
)

// IsTerminal reports whether no further status transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer:
		return true
	default:
		return false
	}
}

// Valid reports whether s is part of the call state machine.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusRinging:
		return 1
	case StatusInProgress:
		return 2
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer:
		return 3
	default:
		return -1
	}
}

type Outcome string

const (
	OutcomeInterested    Outcome = "interested"
	OutcomeNotInterested Outcome = "not-interested"
	OutcomeCallback      Outcome = "callback"
	OutcomeFollowUp      Outcome = "follow-up"
	OutcomeNoAnswer      Outcome = "no-answer"
	OutcomeVoicemail     Outcome = "voicemail"
	OutcomeBooked        Outcome = "booked"
)

// WantsFollowUp reports whether the outcome triggers a follow-up message.
func (o Outcome) WantsFollowUp() bool {
	return o == OutcomeInterested || o == OutcomeBooked
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// DialRecord is the input for creating a Call at dial initiation.
type DialRecord struct {
	AgentInstanceID string
	LeadID          string
	ToNumber        string
	Provider        string
}
