package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block dialing or webhooks on audit failures.
//
// Storage (Postgres): table audit_events, INSERT-only.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the operator causing the event. Empty for system actions
	// such as an SMS STOP or a classifier opt-out.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	Phone           string `json:"phone,omitempty" db:"phone"`
	AgentInstanceID string `json:"agent_instance_id,omitempty" db:"agent_instance_id"`
	CallID          string `json:"call_id,omitempty" db:"call_id"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeDNCAdded        EventType = "dnc_added"
	EventTypeDNCRemoved      EventType = "dnc_removed"
	EventTypeCampaignControl EventType = "campaign_control"
)

// Actor identifies who triggered an audited action.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

// SystemActor is used when no operator is involved.
var SystemActor = Actor{UserID: "system"}
