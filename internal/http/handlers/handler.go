package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"rewards_webapp/internal/ads"
	"rewards_webapp/internal/http/middleware"
	"rewards_webapp/internal/ledger"
	"rewards_webapp/internal/logger"
	"rewards_webapp/internal/wallet"

	"github.com/gin-gonic/gin"
)

// HandlerConfig holds configuration for handler
type HandlerConfig struct {
	BotToken     string
	BotUsername  string
	AppShortName string
	DevMode      bool
}

type Handler struct {
	Engine  *ledger.Engine
	Wallets *wallet.Manager
	Ads     *ads.Player
	cfg     HandlerConfig
}

func NewHandler(engine *ledger.Engine, wallets *wallet.Manager, player *ads.Player, cfg HandlerConfig) *Handler {
	return &Handler{Engine: engine, Wallets: wallets, Ads: player, cfg: cfg}
}

// getUserID извлекает user_id из контекста Gin
func getUserID(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.ContextUserID)
	return id, id != ""
}

// session returns the caller's engine session, identity comes from the JWT
func (h *Handler) session(c *gin.Context) (*ledger.Session, bool) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return h.Engine.Session(ledger.Identity{
		UserID:   userID,
		Username: c.GetString(middleware.ContextUsername),
		PhotoURL: c.GetString(middleware.ContextPhotoURL),
	}), true
}

// respondError maps engine failures to HTTP codes
func respondError(c *gin.Context, err error) {
	var le *ledger.Error
	if !errors.As(err, &le) {
		if errors.Is(err, context.Canceled) {
			c.AbortWithStatus(499)
			return
		}
		logger.Error("unexpected handler error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": le.Message, "reason": le.Reason}
	status := http.StatusBadRequest
	switch le.Kind {
	case ledger.KindValidation:
		switch le.Reason {
		case ledger.ReasonAdCooldown, ledger.ReasonAdInProgress:
			status = http.StatusTooManyRequests
			body["retry_after"] = int(le.Remaining.Seconds() + 0.999)
		case ledger.ReasonAlreadyClaimed, ledger.ReasonAlreadyRefunded, ledger.ReasonQuestLimitReached:
			status = http.StatusConflict
		case ledger.ReasonTransactionNotFound, ledger.ReasonLedgerMissing:
			status = http.StatusNotFound
		}
	case ledger.KindConflict:
		status = http.StatusConflict
	case ledger.KindAdapter:
		status = http.StatusBadGateway
	case ledger.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}

func queryLimit(c *gin.Context, def, max int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
