package handlers

import (
	"net/http"
	"strconv"

	"rewards_webapp/internal/ledger"

	"github.com/gin-gonic/gin"
)

// ListChests returns the chest tiers in tier order
func (h *Handler) ListChests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"chests": h.Engine.Catalog().Chests})
}

func (h *Handler) OpenChest(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chest index", "reason": ledger.ReasonUnknownChest})
		return
	}

	res, err := s.OpenChest(c.Request.Context(), index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
