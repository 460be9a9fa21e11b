package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLedger returns the caller's ledger, re-read from the store
func (h *Handler) GetLedger(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	l, err := s.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledger": l})
}
