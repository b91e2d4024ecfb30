package reporting

import "time"

// TimeRange is half-open: From <= created_at < To.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (r TimeRange) contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// CallsSummaryRequest requests aggregated call metrics for one agent instance.
type CallsSummaryRequest struct {
	AgentInstanceID string    `json:"agent_instance_id"`
	Range           TimeRange `json:"range"`
}

// CallsSummary is a historical view over call records. Unlike the live
// campaign stats it includes calls still in flight and spend.
type CallsSummary struct {
	AgentInstanceID string    `json:"agent_instance_id"`
	Range           TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	BusyCalls       int `json:"busy_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int   `json:"recorded_calls"`
	OptOuts       int   `json:"opt_outs"`
	CostMinor     int64 `json:"cost_minor"`
}

type ConversionMetricsRequest struct {
	AgentInstanceID string    `json:"agent_instance_id"`
	Range           TimeRange `json:"range"`
}

// ConversionMetrics counts interested and booked outcomes as conversions.
type ConversionMetrics struct {
	AgentInstanceID string `json:"agent_instance_id"`

	CallsAttempted int `json:"calls_attempted"`
	CallsConnected int `json:"calls_connected"`
	Conversions    int `json:"conversions"`

	ConnectionRate float64 `json:"connection_rate"`
	ConversionRate float64 `json:"conversion_rate"`
}
