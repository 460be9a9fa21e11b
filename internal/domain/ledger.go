package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Currency - выводимая валюта
type Currency string

const (
	CurrencyUSDT Currency = "USDT"
	CurrencyTON  Currency = "TON"
)

// Document field names. Writes go through targeted paths, never whole-map rewrites.
const (
	FieldUsername        = "username"
	FieldPhotoURL        = "photoUrl"
	FieldGems            = "gems"
	FieldUSDT            = "usdt"
	FieldTON             = "ton"
	FieldReferrals       = "referrals"
	FieldReferralCredits = "referralCredits"
	FieldInviteRecords   = "inviteRecords"
	FieldClaimHistory    = "claimHistory"
	FieldLandPieces      = "landPieces"
	FieldFoxMedals       = "foxMedals"
	FieldVIPLevel        = "vipLevel"
	FieldIsReferred      = "isReferred"
	FieldReferredBy      = "referredBy"
	FieldClaimedQuests   = "claimedQuests"
	FieldAdProgress      = "adProgress"
	FieldAdCooldowns     = "adCooldowns"
	FieldWalletAddress   = "walletAddress"
	FieldLastLogin       = "lastLogin"
)

// LedgerDocument - баланс и прогресс пользователя, один документ на user id
type LedgerDocument struct {
	UserID          string                `json:"userId"`
	Username        string                `json:"username"`
	PhotoURL        string                `json:"photoUrl"`
	Gems            int64                 `json:"gems"`
	USDT            decimal.Decimal       `json:"usdt"`
	TON             decimal.Decimal       `json:"ton"`
	Referrals       int64                 `json:"referrals"`
	ReferralCredits int64                 `json:"referralCredits"`
	InviteRecords   []InviteRecord        `json:"inviteRecords"`
	ClaimHistory    []ClaimRecord         `json:"claimHistory"`
	LandPieces      int64                 `json:"landPieces"`
	FoxMedals       int64                 `json:"foxMedals"`
	VIPLevel        int                   `json:"vipLevel"`
	IsReferred      bool                  `json:"isReferred"`
	ReferredBy      *string               `json:"referredBy"`
	ClaimedQuests   []string              `json:"claimedQuests"`
	AdProgress      map[string]AdProgress `json:"adProgress"`
	AdCooldowns     map[string]time.Time  `json:"adCooldowns"`
	WalletAddress   *string               `json:"walletAddress"`
	CreatedAt       time.Time             `json:"createdAt"`
	LastLogin       time.Time             `json:"lastLogin"`
}

// InviteRecord - запись о приглашённом пользователе
type InviteRecord struct {
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	JoinTime      time.Time `json:"joinTime"`
	CreditAwarded int64     `json:"creditAwarded"`
}

// ClaimRecord - конвертация кредитов в USDT
type ClaimRecord struct {
	ClaimTime    time.Time       `json:"claimTime"`
	USDTAmount   decimal.Decimal `json:"usdtAmount"`
	CreditsSpent int64           `json:"creditsSpent"`
	Rate         int64           `json:"rate"`
}

// AdProgress - прогресс рекламного квеста
type AdProgress struct {
	Watched     int        `json:"watched"`
	Claimed     bool       `json:"claimed"`
	LastClaimed *time.Time `json:"lastClaimed"`
}

// NewLedgerDocument returns a zeroed ledger. Maps and lists are non-nil so
// nested field paths can be written into them.
func NewLedgerDocument(userID, username, photoURL string, now time.Time) *LedgerDocument {
	return &LedgerDocument{
		UserID:        userID,
		Username:      username,
		PhotoURL:      photoURL,
		USDT:          decimal.Zero,
		TON:           decimal.Zero,
		InviteRecords: []InviteRecord{},
		ClaimHistory:  []ClaimRecord{},
		ClaimedQuests: []string{},
		AdProgress:    map[string]AdProgress{},
		AdCooldowns:   map[string]time.Time{},
		CreatedAt:     now,
		LastLogin:     now,
	}
}

// Balance returns the withdrawable balance for a currency
func (l *LedgerDocument) Balance(c Currency) decimal.Decimal {
	switch c {
	case CurrencyUSDT:
		return l.USDT
	case CurrencyTON:
		return l.TON
	}
	return decimal.Zero
}

// HasClaimed reports whether a non-repeatable quest is already done
func (l *LedgerDocument) HasClaimed(questID string) bool {
	for _, id := range l.ClaimedQuests {
		if id == questID {
			return true
		}
	}
	return false
}

// Progress returns ad quest progress, zero value if the quest was never touched
func (l *LedgerDocument) Progress(questID string) AdProgress {
	if l.AdProgress == nil {
		return AdProgress{}
	}
	return l.AdProgress[questID]
}

// LastAdWatch returns the last successful watch time for an ad type
func (l *LedgerDocument) LastAdWatch(adType string) (time.Time, bool) {
	if l.AdCooldowns == nil {
		return time.Time{}, false
	}
	t, ok := l.AdCooldowns[adType]
	return t, ok
}

// SortedInvites returns invite records newest first, the stored order is left untouched
func (l *LedgerDocument) SortedInvites() []InviteRecord {
	out := make([]InviteRecord, len(l.InviteRecords))
	copy(out, l.InviteRecords)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].JoinTime.After(out[j].JoinTime)
	})
	return out
}

// BalanceField maps a currency to its document field
func BalanceField(c Currency) (string, bool) {
	switch c {
	case CurrencyUSDT:
		return FieldUSDT, true
	case CurrencyTON:
		return FieldTON, true
	}
	return "", false
}

// AdProgressPath builds the dotted path of one adProgress subfield
func AdProgressPath(questID, field string) string {
	return FieldAdProgress + "." + questID + "." + field
}

// AdCooldownPath builds the dotted path of one adCooldowns entry
func AdCooldownPath(adType string) string {
	return FieldAdCooldowns + "." + adType
}
