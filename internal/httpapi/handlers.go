package httpapi

import (
	"errors"
	"net/http"
	"time"

	"campaign-dialer/internal/audit"
	"campaign-dialer/internal/auth"
	"campaign-dialer/internal/calls"
	"campaign-dialer/internal/campaigns"
	"campaign-dialer/internal/dnc"
	"campaign-dialer/internal/reporting"
	"campaign-dialer/internal/stats"
	"campaign-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Operators *auth.Operators

	Campaigns *campaigns.Manager
	Calls     *calls.Ledger
	DNC       *dnc.Registry
	Stats     *stats.Aggregator
	Reports   *reporting.Service
	Audit     *audit.Service

	// Defaults apply to spawn requests that leave pacing or the cap unset.
	Defaults campaigns.Config
}

// AuditActor copies the authenticated identity into the request context so
// services audit operator actions. It runs after auth.RequireAccessToken.
func AuditActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		ctx := audit.WithActor(c.Request.Context(), audit.Actor{UserID: uid, Role: role, IP: c.ClientIP()})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges operator credentials for an access token.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	op, err := h.Operators.Authenticate(req.Username, req.Password)
	if err != nil {
		logger.FromGin(c).Warn("login rejected", "username", req.Username)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	tok, err := h.Auth.Issue(time.Now(), op.Username, op.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok.Token, "expires_at": tok.ExpiresAt, "role": op.Role})
}

// Me echoes the caller's identity.
func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}

// fail maps domain errors to status codes. Unexpected errors are logged and
// reported as 500 without detail.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, campaigns.ErrValidation),
		errors.Is(err, dnc.ErrInvalidPhone),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, campaigns.ErrNotFound),
		errors.Is(err, calls.ErrNotFound),
		errors.Is(err, dnc.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, campaigns.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, campaigns.ErrNoAdapter):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
