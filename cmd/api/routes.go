package main

import (
	"net/http"

	"campaign-dialer/internal/config"
	"campaign-dialer/internal/httpapi"
	"campaign-dialer/internal/webhooks"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	cfg    config.Config
	api    httpapi.Handlers
	hooks  webhooks.Handlers
	stream gin.HandlerFunc
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks. Twilio requests are signature-checked before any
	// handler runs; Vapi offers no verification.
	tw := r.Group("/webhooks/twilio", webhooks.RequireTwilioSignature(d.cfg.Twilio.AuthToken, d.cfg.Twilio.PublicBaseURL))
	{
		tw.POST("/voice", d.hooks.TwilioVoice)
		tw.POST("/gather", d.hooks.TwilioGather)
		tw.POST("/status", d.hooks.TwilioStatus)
		tw.POST("/recording", d.hooks.TwilioRecording)
		tw.POST("/amd", d.hooks.TwilioAMD)
		tw.POST("/stream", d.hooks.TwilioStream)
		tw.POST("/sms", d.hooks.TwilioSMS)
	}
	r.POST("/webhooks/vapi", d.hooks.Vapi)

	// operator API
	d.api.Register(r.Group("/v1"), d.stream)
}
