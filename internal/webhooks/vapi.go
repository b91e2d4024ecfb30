package webhooks

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"campaign-dialer/internal/calls"

	"github.com/gin-gonic/gin"
)

const providerVapi = "vapi"

// vapiEnvelope is the outer shape of every Vapi server message.
type vapiEnvelope struct {
	Message vapiMessage `json:"message"`
}

type vapiMessage struct {
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	EndedReason string   `json:"endedReason"`
	Timestamp   int64    `json:"timestamp"`
	Call        vapiCall `json:"call"`

	// end-of-call-report
	Transcript      string        `json:"transcript"`
	Summary         string        `json:"summary"`
	RecordingURL    string        `json:"recordingUrl"`
	DurationSeconds float64       `json:"durationSeconds"`
	Cost            float64       `json:"cost"`
	Artifact        *vapiArtifact `json:"artifact"`
	Analysis        *vapiAnalysis `json:"analysis"`
}

type vapiCall struct {
	ID string `json:"id"`
}

type vapiArtifact struct {
	Transcript   string `json:"transcript"`
	RecordingURL string `json:"recordingUrl"`
}

type vapiAnalysis struct {
	Summary string `json:"summary"`
}

func (m vapiMessage) transcript() string {
	if m.Transcript == "" && m.Artifact != nil {
		return m.Artifact.Transcript
	}
	return m.Transcript
}

func (m vapiMessage) summary() string {
	if m.Summary == "" && m.Analysis != nil {
		return m.Analysis.Summary
	}
	return m.Summary
}

func (m vapiMessage) recordingURL() string {
	if m.RecordingURL == "" && m.Artifact != nil {
		return m.Artifact.RecordingURL
	}
	return m.RecordingURL
}

func (h Handlers) vapiOccurredAt(m vapiMessage) time.Time {
	if m.Timestamp > 0 {
		return time.UnixMilli(m.Timestamp).UTC()
	}
	return h.now()
}

func vapiAck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// Vapi handles every Vapi server message on one endpoint, keyed by
// message.type. It always acknowledges with 200.
//
// Vapi requests are not signature-checked; the endpoint relies on network
// level trust.
func (h Handlers) Vapi(c *gin.Context) {
	log := loggerFor(c)

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		log.Warn("vapi webhook read failed", "err", err)
		vapiAck(c)
		return
	}
	var env vapiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn("vapi webhook decode failed", "err", err)
		vapiAck(c)
		return
	}
	m := env.Message
	if m.Call.ID == "" {
		log.Debug("vapi message without call id", "type", m.Type)
		vapiAck(c)
		return
	}

	switch m.Type {
	case "status-update":
		st, known := vapiStatus(m.Status, m.EndedReason)
		if !known {
			log.Debug("vapi status ignored", "status", m.Status)
			break
		}
		ev := calls.StatusChanged{Status: st}
		if st == calls.StatusFailed {
			ev.Reason = m.EndedReason
		}
		h.apply(c, calls.CallEvent{ProviderCallID: m.Call.ID, Provider: providerVapi, OccurredAt: h.vapiOccurredAt(m), Body: ev})

	case "end-of-call-report":
		transcript, summary := m.transcript(), m.summary()
		verdict := h.classify(transcript, summary, m.EndedReason)
		log.Info("vapi call classified",
			"provider_call_id", m.Call.ID,
			"outcome", verdict.Outcome,
			"shortcut", verdict.Shortcut,
			"action_items", strings.Join(verdict.ActionItems, "; "),
			"decisions", strings.Join(verdict.Decisions, "; "),
		)
		h.apply(c, calls.CallEvent{
			ProviderCallID: m.Call.ID,
			Provider:       providerVapi,
			OccurredAt:     h.vapiOccurredAt(m),
			Body: calls.CallReport{
				Status:          vapiEndedStatus(m.EndedReason),
				EndedReason:     m.EndedReason,
				Outcome:         verdict.Outcome,
				Sentiment:       verdict.Sentiment,
				OptedOut:        verdict.OptedOut,
				Transcript:      transcript,
				Summary:         summary,
				RecordingURL:    m.recordingURL(),
				DurationSeconds: int(math.Round(m.DurationSeconds)),
				CostMinor:       int64(math.Round(m.Cost * 100)),
			},
		})

	default:
		log.Debug("vapi message acknowledged", "type", m.Type)
	}
	vapiAck(c)
}
