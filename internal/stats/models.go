package stats

import (
	"time"

	"campaign-dialer/internal/calls"
)

// CampaignStats are running counters for one agent instance.
type CampaignStats struct {
	AgentInstanceID        string                `json:"agent_instance_id"`
	Attempted              int                   `json:"attempted"`
	Connected              int                   `json:"connected"`
	Outcomes               map[calls.Outcome]int `json:"outcomes"`
	DurationSumSeconds     int                   `json:"duration_sum_seconds"`
	DurationSamples        int                   `json:"duration_samples"`
	AverageDurationSeconds float64               `json:"average_duration_seconds"`
	UpdatedAt              time.Time             `json:"updated_at"`
}

func (s CampaignStats) clone() CampaignStats {
	out := s
	out.Outcomes = make(map[calls.Outcome]int, len(s.Outcomes))
	for k, v := range s.Outcomes {
		out.Outcomes[k] = v
	}
	return out
}

// contribution is what one call adds to its instance's counters. Only
// terminal calls count.
type contribution struct {
	attempted   int
	connected   int
	outcome     calls.Outcome
	durationSum int
	durationN   int
}

func contributionOf(c calls.Call) contribution {
	if !c.Status.IsTerminal() {
		return contribution{}
	}
	out := contribution{attempted: 1, outcome: c.Outcome}
	if c.Connected() {
		out.connected = 1
	}
	if c.DurationSeconds > 0 {
		out.durationSum = c.DurationSeconds
		out.durationN = 1
	}
	return out
}

func (s *CampaignStats) add(c contribution, sign int) {
	s.Attempted += sign * c.attempted
	s.Connected += sign * c.connected
	s.DurationSumSeconds += sign * c.durationSum
	s.DurationSamples += sign * c.durationN
	if c.outcome != "" {
		s.Outcomes[c.outcome] += sign
		if s.Outcomes[c.outcome] <= 0 {
			delete(s.Outcomes, c.outcome)
		}
	}
	s.AverageDurationSeconds = 0
	if s.DurationSamples > 0 {
		s.AverageDurationSeconds = float64(s.DurationSumSeconds) / float64(s.DurationSamples)
	}
}
