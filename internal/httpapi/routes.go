package httpapi

import (
	"campaign-dialer/internal/auth"
	"campaign-dialer/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the operator API under v1. stream serves the per-instance
// SSE feed and may be nil.
//
//	analyst     read instances, calls, stats, reports, DNC lookups
//	supervisor  + spawn and control instances
//	admin       + DNC changes
func (h Handlers) Register(v1 *gin.RouterGroup, stream gin.HandlerFunc) {
	v1.POST("/auth/login", h.Login)

	authed := v1.Group("", auth.RequireAccessToken(h.Auth), AuditActor())
	authed.GET("/me", h.Me)

	read := rbac.RequireAnyRole(rbac.RoleAnalyst, rbac.RoleSupervisor)
	control := rbac.RequireAnyRole(rbac.RoleSupervisor)

	camps := authed.Group("/campaigns")
	{
		camps.GET("", read, h.ListCampaigns)
		camps.POST("", control, h.SpawnCampaign)
		camps.GET("/:id", read, h.GetCampaign)
		camps.GET("/:id/stats", read, h.CampaignStats)
		camps.POST("/:id/stats/recompute", control, h.RecomputeStats)
		camps.GET("/:id/calls", read, h.CampaignCalls)
		camps.GET("/:id/report", read, h.CampaignReport)
		if stream != nil {
			camps.GET("/:id/stream", read, stream)
		}
		for _, action := range []string{"start", "pause", "resume", "stop"} {
			camps.POST("/:id/"+action, control, h.Control(action))
		}
	}

	authed.GET("/calls/:id", read, h.GetCall)

	list := authed.Group("/dnc")
	{
		list.GET("", read, h.ListDNC)
		list.GET("/:phone", read, h.CheckDNC)
		list.POST("", rbac.RequireAnyRole(rbac.RoleAdmin), h.AddDNC)
		list.DELETE("/:phone", rbac.RequireAnyRole(rbac.RoleAdmin), h.RemoveDNC)
	}
}
