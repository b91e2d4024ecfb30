package httpapi

import (
	"net/http"

	"campaign-dialer/internal/dnc"

	"github.com/gin-gonic/gin"
)

type dncAddRequest struct {
	Phone  string `json:"phone" binding:"required"`
	Reason string `json:"reason"`
}

// AddDNC registers a phone. Adding a listed phone is not an error.
func (h Handlers) AddDNC(c *gin.Context) {
	var req dncAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone required"})
		return
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}
	ctx := c.Request.Context()
	if err := h.DNC.Add(ctx, req.Phone, req.Reason); err != nil {
		fail(c, err)
		return
	}
	e, err := h.DNC.Get(ctx, req.Phone)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h Handlers) RemoveDNC(c *gin.Context) {
	if err := h.DNC.Remove(c.Request.Context(), c.Param("phone")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ListDNC(c *gin.Context) {
	entries, err := h.DNC.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if entries == nil {
		entries = []dnc.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h Handlers) CheckDNC(c *gin.Context) {
	phone := c.Param("phone")
	if _, err := dnc.Normalize(phone); err != nil {
		fail(c, err)
		return
	}
	listed, err := h.DNC.IsListed(c.Request.Context(), phone)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phone": phone, "listed": listed})
}

func (h Handlers) GetCall(c *gin.Context) {
	call, err := h.Calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}
