package handlers

import (
	"net/http"

	"rewards_webapp/internal/ledger"

	"github.com/gin-gonic/gin"
)

// GetReferralLink returns the t.me link that opens the mini app with ref_<uid>
func (h *Handler) GetReferralLink(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"link":  ledger.ReferralLink(h.cfg.BotUsername, h.cfg.AppShortName, userID),
		"token": ledger.ReferralToken(userID),
	})
}

// GetInvites returns invite records newest first plus credit totals
func (h *Handler) GetInvites(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	l, err := s.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	rules := h.Engine.Rules()
	c.JSON(http.StatusOK, gin.H{
		"invites":             l.SortedInvites(),
		"referrals":           l.Referrals,
		"credits":             l.ReferralCredits,
		"claim_history":       l.ClaimHistory,
		"conversion_rate":     rules.CreditConversionRate,
		"minimum_claim":       rules.MinimumCreditClaim,
		"credit_per_referral": rules.ReferralCreditAmount,
	})
}

// ClaimCredits converts referral credits to USDT
func (h *Handler) ClaimCredits(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	res, err := s.ClaimReferralCredits(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
