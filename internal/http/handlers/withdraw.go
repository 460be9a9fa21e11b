package handlers

import (
	"net/http"
	"strings"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/ledger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Withdraw deducts amount+fee now; the record resolves later
func (h *Handler) Withdraw(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req domain.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount", "reason": ledger.ReasonInvalidAmount})
		return
	}

	rec, err := s.InitiateWithdrawal(c.Request.Context(), domain.Currency(strings.ToUpper(string(req.Currency))), amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"transaction": rec})
}

// GetTransactions returns the caller's journal, newest first
func (h *Handler) GetTransactions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	txs, err := h.Engine.Transactions(c.Request.Context(), userID, queryLimit(c, 50, 200))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
