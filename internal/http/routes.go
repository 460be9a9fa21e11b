package http

import (
	"rewards_webapp/internal/config"
	"rewards_webapp/internal/http/handlers"
	"rewards_webapp/internal/http/middleware"
	"rewards_webapp/internal/ws"

	"github.com/gin-gonic/gin"
)

// Deps is everything the router needs; built once in main.
type Deps struct {
	Handler *handlers.Handler
	Health  *handlers.HealthHandler
	Hub     *ws.Hub
	Config  *config.Config
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config

	// Health checks (no rate limiting)
	r.GET("/health", d.Health.Health)
	r.GET("/healthz", d.Health.Liveness)
	r.GET("/readyz", d.Health.Readiness)

	// ws аутентифицируется по ?token
	r.GET("/ws", ws.HandleWS(d.Hub, cfg.AllowedOrigin))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, d.Handler, cfg)
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, cfg *config.Config) {
	api.POST("/auth", middleware.RateLimit(cfg.AuthRateLimit, cfg.AuthRateWindow), h.Auth)

	// Public catalog
	api.GET("/chests", h.ListChests)
	api.GET("/leaderboard", h.GetLeaderboard)

	// per user, not per IP
	actionRL := middleware.UserRateLimit("action", cfg.ActionRateLimit, cfg.ActionRateWindow)

	authed := api.Group("")
	authed.Use(middleware.JWT())
	{
		authed.GET("/me/ledger", h.GetLedger)

		authed.GET("/quests", h.GetQuests)
		authed.POST("/quests/:id/claim", actionRL, h.ClaimQuestReward)
		authed.POST("/quests/:id/watch", actionRL, h.WatchAd)
		authed.POST("/ads/result", h.AdResult)

		authed.POST("/chests/:index/open", actionRL, h.OpenChest)

		authed.GET("/referral/link", h.GetReferralLink)
		authed.GET("/referral/invites", h.GetInvites)
		authed.POST("/referral/claim", actionRL, h.ClaimCredits)

		authed.GET("/wallet", h.GetWallet)
		authed.POST("/wallet/connect", actionRL, h.ConnectWallet)
		authed.DELETE("/wallet", h.DisconnectWallet)

		authed.POST("/withdraw", actionRL, h.Withdraw)
		authed.GET("/transactions", h.GetTransactions)
	}
}
