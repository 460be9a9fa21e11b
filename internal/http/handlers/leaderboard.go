package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLeaderboard returns the top users by fox medals
func (h *Handler) GetLeaderboard(c *gin.Context) {
	top, err := h.Engine.Leaderboard(c.Request.Context(), queryLimit(c, 100, 100))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": top})
}
