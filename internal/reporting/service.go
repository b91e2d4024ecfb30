// Package reporting builds historical summaries from stored call records.
package reporting

import (
	"context"
	"errors"

	"campaign-dialer/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallSource lists the calls placed by an agent instance.
// calls.Ledger satisfies it.
type CallSource interface {
	ListByInstance(ctx context.Context, instanceID string) ([]calls.Call, error)
}

type Service struct {
	src CallSource
}

func NewService(src CallSource) *Service { return &Service{src: src} }

func (s *Service) load(ctx context.Context, instanceID string, r TimeRange) ([]calls.Call, error) {
	if instanceID == "" || !r.valid() {
		return nil, ErrInvalidRequest
	}
	if s.src == nil {
		return nil, errors.New("reporting: call source not configured")
	}
	rows, err := s.src.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	out := rows[:0:0]
	for _, c := range rows {
		if r.contains(c.CreatedAt) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	rows, err := s.load(ctx, req.AgentInstanceID, req.Range)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{AgentInstanceID: req.AgentInstanceID, Range: req.Range}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		out.CostMinor += c.CostMinor
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.OptedOut {
			out.OptOuts++
		}
		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusNoAnswer:
			out.NoAnswerCalls++
		case calls.StatusBusy:
			out.BusyCalls++
		case calls.StatusInProgress:
			out.InProgressCalls++
		case calls.StatusRinging, calls.StatusQueued:
			// not counted separately
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

func (s *Service) ConversionMetrics(ctx context.Context, req ConversionMetricsRequest) (ConversionMetrics, error) {
	rows, err := s.load(ctx, req.AgentInstanceID, req.Range)
	if err != nil {
		return ConversionMetrics{}, err
	}

	out := ConversionMetrics{AgentInstanceID: req.AgentInstanceID, CallsAttempted: len(rows)}
	for _, c := range rows {
		if c.Connected() {
			out.CallsConnected++
		}
		if c.Outcome.WantsFollowUp() {
			out.Conversions++
		}
	}
	if out.CallsAttempted > 0 {
		out.ConnectionRate = float64(out.CallsConnected) / float64(out.CallsAttempted)
		out.ConversionRate = float64(out.Conversions) / float64(out.CallsAttempted)
	}
	return out, nil
}
