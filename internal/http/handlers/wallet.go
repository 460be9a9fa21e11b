package handlers

import (
	"errors"
	"net/http"

	"rewards_webapp/internal/logger"
	"rewards_webapp/internal/wallet"

	"github.com/gin-gonic/gin"
)

// GetWallet returns user's linked wallet
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.Wallets.Connection(c.Request.Context(), userID)
	if err != nil {
		logger.Error("wallet lookup failed", "user_id", userID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "wallet service failed", "reason": "wallet_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": conn})
}

// ConnectWallet links a TON wallet to user account
func (h *Handler) ConnectWallet(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req wallet.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	conn, err := h.Wallets.Connect(c.Request.Context(), userID, req)
	switch {
	case errors.Is(err, wallet.ErrInvalidAddress), errors.Is(err, wallet.ErrProofRejected):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "wallet_rejected"})
		return
	case errors.Is(err, wallet.ErrAddressTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "reason": "wallet_taken"})
		return
	case err != nil:
		logger.Error("wallet connect failed", "user_id", userID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "wallet service failed", "reason": "wallet_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallet": conn})
}

// DisconnectWallet removes wallet link
func (h *Handler) DisconnectWallet(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.Wallets.Disconnect(c.Request.Context(), userID); err != nil {
		logger.Error("wallet disconnect failed", "user_id", userID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to disconnect wallet", "reason": "wallet_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
