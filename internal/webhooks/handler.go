// Package webhooks normalizes provider callbacks into canonical call events
// and applies them to the ledger.
//
// Handlers always acknowledge once the request is authentic and parseable;
// processing failures are logged, never returned to the provider.
package webhooks

import (
	"context"
	"net/http"
	"time"

	"campaign-dialer/internal/calls"
	"campaign-dialer/internal/classifier"
	"campaign-dialer/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Ledger is the subset of calls.Ledger the webhooks need.
type Ledger interface {
	ApplyEvent(ctx context.Context, ev calls.CallEvent) (calls.Result, error)
	LatestByPhone(ctx context.Context, phone string) (calls.Call, error)
}

// OptOutRegistry registers phones that asked not to be contacted.
type OptOutRegistry interface {
	Add(ctx context.Context, phone, reason string) error
}

// Handlers serves provider webhooks. Scripts may be nil (default script).
type Handlers struct {
	Ledger  Ledger
	DNC     OptOutRegistry
	Scripts *telephony.Scripts

	// StreamURL is the media websocket Twilio connects to on /stream.
	StreamURL string

	// Classify defaults to classifier.Classify.
	Classify func(transcript, summary, endedReason string) classifier.Result

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h Handlers) classify(transcript, summary, endedReason string) classifier.Result {
	if h.Classify != nil {
		return h.Classify(transcript, summary, endedReason)
	}
	return classifier.Classify(transcript, summary, endedReason)
}

// apply hands ev to the ledger, logging rather than surfacing failures.
func (h Handlers) apply(c *gin.Context, ev calls.CallEvent) {
	res, err := h.Ledger.ApplyEvent(c.Request.Context(), ev)
	l := loggerFor(c).With("provider", ev.Provider, "provider_call_id", ev.ProviderCallID, "event", ev.Body.Kind())
	if err != nil {
		l.Error("apply event failed", "err", err)
		return
	}
	if res.Effect.Dropped != calls.DropNone {
		l.Debug("event dropped", "reason", res.Effect.Dropped)
		return
	}
	l.Info("event applied", "call_id", res.Call.ID, "status", res.Call.Status, "outcome", res.Call.Outcome)
}

func writeTwiML(c *gin.Context, verbs ...any) {
	doc, err := telephony.RenderTwiML(verbs...)
	if err != nil {
		loggerFor(c).Error("twiml render failed", "err", err)
		doc, _ = telephony.RenderTwiML()
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, doc)
}
