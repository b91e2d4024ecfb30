package httpapi

import (
	"net/http"
	"time"

	"campaign-dialer/internal/audit"
	"campaign-dialer/internal/campaigns"
	"campaign-dialer/internal/reporting"
	"campaign-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

type spawnRequest struct {
	Name          string   `json:"name"`
	ScriptID      string   `json:"script_id"`
	LeadIDs       []string `json:"lead_ids"`
	PacingMS      *int64   `json:"pacing_ms"`
	MaxConcurrent *int     `json:"max_concurrent"`
}

func (h Handlers) SpawnCampaign(c *gin.Context) {
	var req spawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cfg := h.Defaults
	if req.PacingMS != nil {
		cfg.PacingDelay = time.Duration(*req.PacingMS) * time.Millisecond
	}
	if req.MaxConcurrent != nil {
		cfg.MaxConcurrent = *req.MaxConcurrent
	}

	ctx := c.Request.Context()
	inst, err := h.Campaigns.Spawn(ctx, campaigns.SpawnRequest{
		Name:     req.Name,
		ScriptID: req.ScriptID,
		LeadIDs:  req.LeadIDs,
		Config:   cfg,
	})
	if err != nil {
		fail(c, err)
		return
	}
	h.auditControl(c, inst.ID, "spawn")
	c.JSON(http.StatusCreated, inst)
}

func (h Handlers) ListCampaigns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instances": h.Campaigns.List()})
}

func (h Handlers) GetCampaign(c *gin.Context) {
	inst, err := h.Campaigns.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// Control serves POST /v1/campaigns/:id/{start,pause,resume,stop}.
func (h Handlers) Control(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		var (
			inst campaigns.AgentInstance
			err  error
		)
		switch action {
		case "start":
			inst, err = h.Campaigns.Start(ctx, id)
		case "pause":
			inst, err = h.Campaigns.Pause(ctx, id)
		case "resume":
			inst, err = h.Campaigns.Resume(ctx, id)
		case "stop":
			inst, err = h.Campaigns.Stop(ctx, id)
		default:
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown action"})
			return
		}
		if err != nil {
			fail(c, err)
			return
		}
		h.auditControl(c, id, action)
		c.JSON(http.StatusOK, inst)
	}
}

func (h Handlers) auditControl(c *gin.Context, id, action string) {
	if h.Audit == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.Audit.LogCampaignControl(ctx, audit.ActorFrom(ctx), id, action); err != nil {
		logger.FromGin(c).Warn("audit append failed", "agent_instance_id", id, "action", action, "err", err)
	}
}

func (h Handlers) CampaignStats(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Campaigns.Get(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Stats.Snapshot(id))
}

// RecomputeStats rebuilds an instance's counters from stored calls.
func (h Handlers) RecomputeStats(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Campaigns.Get(id); err != nil {
		fail(c, err)
		return
	}
	s, err := h.Stats.Recompute(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) CampaignCalls(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Campaigns.Get(id); err != nil {
		fail(c, err)
		return
	}
	rows, err := h.Calls.ListByInstance(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}

// CampaignReport serves historical summaries. from/to are RFC 3339 and
// default to the last 24 hours.
func (h Handlers) CampaignReport(c *gin.Context) {
	r := reporting.TimeRange{To: time.Now().UTC()}
	r.From = r.To.Add(-24 * time.Hour)
	for key, dst := range map[string]*time.Time{"from": &r.From, "to": &r.To} {
		if v := c.Query(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC 3339"})
				return
			}
			*dst = t
		}
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	summary, err := h.Reports.CallsSummary(ctx, reporting.CallsSummaryRequest{AgentInstanceID: id, Range: r})
	if err != nil {
		fail(c, err)
		return
	}
	conv, err := h.Reports.ConversionMetrics(ctx, reporting.ConversionMetricsRequest{AgentInstanceID: id, Range: r})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary, "conversion": conv})
}
