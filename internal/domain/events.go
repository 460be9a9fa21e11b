package domain

import "time"

// Analytics event names
const (
	EventUserSignup          = "user_signup"
	EventQuestClaimed        = "quest_claimed"
	EventAdsQuestWatch       = "ads_quest_watch"
	EventAdsQuestClaimed     = "ads_quest_claimed"
	EventQuestCompleted      = "quest_completed"
	EventChestOpened         = "chest_opened"
	EventReferralSuccess     = "referral_success"
	EventCreditClaim         = "credit_claim"
	EventWithdrawalInitiated = "withdrawal_initiated"
	EventWithdrawalResolved  = "withdrawal_resolved"
)

// AnalyticsEvent is one fire-and-forget event
type AnalyticsEvent struct {
	Name      string         `json:"name"`
	UserID    string         `json:"user_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
