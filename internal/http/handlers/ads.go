package handlers

import (
	"net/http"

	"rewards_webapp/internal/ws"

	"github.com/gin-gonic/gin"
)

// AdResult is the HTTP fallback for clients that report ad outcomes without the socket
func (h *Handler) AdResult(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req ws.AdResultPayload
	if err := c.ShouldBindJSON(&req); err != nil || req.RequestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.Ads.Complete(userID, req); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
