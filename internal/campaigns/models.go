package campaigns

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an agent instance.
//
//	idle -> running -> {paused, stopped, completed}
//	paused -> {running, stopped}
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusIdle:    {StatusRunning},
	StatusRunning: {StatusPaused, StatusStopped, StatusCompleted},
	StatusPaused:  {StatusRunning, StatusStopped},
}

func (s Status) canMoveTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Config tunes one instance's dial loop.
type Config struct {
	// PacingDelay is the wait between consecutive dials.
	PacingDelay time.Duration `json:"pacing_delay" validate:"gte=0"`
	// MaxConcurrent caps calls in flight; 0 means no cap.
	MaxConcurrent int `json:"max_concurrent" validate:"gte=0"`
}

type Counters struct {
	Dialed     int `json:"dialed"`
	Skipped    int `json:"skipped"`
	DialFailed int `json:"dial_failed"`
	InFlight   int `json:"in_flight"`
}

// AgentInstance is one running copy of a calling campaign over a fixed,
// ordered lead queue.
type AgentInstance struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ScriptID  string   `json:"script_id"`
	Status    Status   `json:"status"`
	LeadQueue []string `json:"lead_queue"`
	// Cursor is the index of the next lead to dial.
	Cursor    int       `json:"cursor"`
	Config    Config    `json:"config"`
	Counters  Counters  `json:"counters"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a AgentInstance) clone() AgentInstance {
	out := a
	out.LeadQueue = append([]string(nil), a.LeadQueue...)
	return out
}

// Remaining is the number of leads not yet popped.
func (a AgentInstance) Remaining() int {
	return len(a.LeadQueue) - a.Cursor
}

// SpawnRequest describes a new instance.
type SpawnRequest struct {
	Name     string   `json:"name" validate:"required,max=200"`
	ScriptID string   `json:"script_id" validate:"omitempty,max=100"`
	LeadIDs  []string `json:"lead_ids" validate:"required,min=1,dive,required"`
	Config   Config   `json:"config"`
}

var (
	ErrValidation        = errors.New("campaigns: validation failed")
	ErrNotFound          = errors.New("campaigns: agent instance not found")
	ErrInvalidTransition = errors.New("campaigns: invalid status transition")
	ErrNoAdapter         = errors.New("campaigns: no telephony adapter configured")
)
