package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const referralPrefix = "ref_"

// CreditClaim is the result of converting referral credits to USDT
type CreditClaim struct {
	TxID         string          `json:"txId"`
	USDT         decimal.Decimal `json:"usdt"`
	CreditsSpent int64           `json:"creditsSpent"`
	Rate         int64           `json:"rate"`
}

// ReferralOutcome tells what ProcessReferral did
type ReferralOutcome struct {
	Applied    bool   `json:"applied"`
	Credited   bool   `json:"credited"`
	Deferred   bool   `json:"deferred"`
	ReferrerID string `json:"referrerId,omitempty"`
}

// ReferralToken builds the start parameter for a referral link
func ReferralToken(userID string) string {
	return referralPrefix + userID
}

// ParseReferralToken accepts "ref_<id>" or a bare numeric id
func ParseReferralToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, referralPrefix)
	if token == "" {
		return "", false
	}
	if _, err := strconv.ParseInt(token, 10, 64); err != nil {
		return "", false
	}
	return token, true
}

// ClaimReferralCredits converts whole multiples of the conversion rate into USDT
func (s *Session) ClaimReferralCredits(ctx context.Context) (*CreditClaim, error) {
	start := time.Now()
	if err := s.begin(); err != nil {
		return nil, err
	}

	rules := s.e.rules
	ref := LedgerRef(s.userID)
	txID := uuid.NewString()
	now := s.e.now()

	var claim CreditClaim
	err := s.e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := loadLedger(ctx, tx, ref)
		if err != nil {
			return err
		}
		if l.ReferralCredits < rules.MinimumCreditClaim {
			return fail(ErrInsufficientCredits, "Need at least %d credits to claim, you have %d",
				rules.MinimumCreditClaim, l.ReferralCredits)
		}
		usdt := l.ReferralCredits / rules.CreditConversionRate
		if usdt <= 0 {
			return fail(ErrInsufficientCredits, "Need at least %d credits to claim", rules.CreditConversionRate)
		}
		spend := usdt * rules.CreditConversionRate
		amount := decimal.NewFromInt(usdt)

		claim = CreditClaim{TxID: txID, USDT: amount, CreditsSpent: spend, Rate: rules.CreditConversionRate}

		if err := tx.Update(ctx, ref, store.Updates{
			domain.FieldUSDT:            store.IncrementDecimal(amount),
			domain.FieldReferralCredits: store.Increment(-spend),
			domain.FieldClaimHistory: store.ArrayUnion(domain.ClaimRecord{
				ClaimTime:    now,
				USDTAmount:   amount,
				CreditsSpent: spend,
				Rate:         rules.CreditConversionRate,
			}),
		}); err != nil {
			return err
		}

		claim := domain.TransactionRecord{
			TxID:         txID,
			UserID:       s.userID,
			Type:         domain.TransactionTypeCreditClaim,
			Amount:       amount,
			USDTAmount:   amount,
			CreditsSpent: spend,
			Currency:     domain.CurrencyUSDT,
			Fee:          decimal.Zero,
			Status:       domain.TransactionStatusCompleted,
			ResolvedAt:   &now,
		}
		claim.SetTimestamp(now)
		rec, err := store.Encode(claim)
		if err != nil {
			return err
		}
		return tx.Set(ctx, TransactionRef(s.userID, txID), rec, false)
	})
	if err != nil {
		return nil, s.finish(ctx, "claim_credits", start, err)
	}

	s.e.track(ctx, domain.EventCreditClaim, s.userID, map[string]any{
		"tx_id":         txID,
		"usdt":          claim.USDT.String(),
		"credits_spent": claim.CreditsSpent,
	})
	return &claim, s.finish(ctx, "claim_credits", start, nil)
}

// ProcessReferral links the user to a referrer at most once. Bad or
// self-referring tokens are ignored. If the user's ledger does not exist
// yet the token is kept and replayed by EnsureLedger.
func (s *Session) ProcessReferral(ctx context.Context, token string) (*ReferralOutcome, error) {
	start := time.Now()
	referrerID, ok := ParseReferralToken(token)
	if !ok || referrerID == s.userID {
		return &ReferralOutcome{}, nil
	}
	if err := s.begin(); err != nil {
		return nil, err
	}

	ref := LedgerRef(s.userID)
	referrerRef := LedgerRef(referrerID)
	username, _ := s.display()
	now := s.e.now()
	amount := s.e.rules.ReferralCreditAmount

	var out ReferralOutcome
	err := s.e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		out = ReferralOutcome{ReferrerID: referrerID}

		l, err := loadLedger(ctx, tx, ref)
		if err != nil {
			return err
		}
		if l.IsReferred {
			return nil
		}
		if username == "" {
			username = l.Username
		}

		_, err = tx.Get(ctx, referrerRef)
		referrerExists := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if err := tx.Update(ctx, ref, store.Updates{
			domain.FieldIsReferred: true,
			domain.FieldReferredBy: referrerID,
		}); err != nil {
			return err
		}
		out.Applied = true
		if !referrerExists {
			return nil
		}

		out.Credited = true
		return tx.Update(ctx, referrerRef, store.Updates{
			domain.FieldReferrals:       store.Increment(1),
			domain.FieldReferralCredits: store.Increment(amount),
			domain.FieldInviteRecords: store.ArrayUnion(domain.InviteRecord{
				UserID:        s.userID,
				Username:      username,
				JoinTime:      now,
				CreditAwarded: amount,
			}),
		})
	})

	if errors.Is(err, store.ErrNotFound) {
		s.mu.Lock()
		s.pendingReferral = token
		s.mu.Unlock()
		observe("process_referral", start, nil)
		return &ReferralOutcome{Deferred: true, ReferrerID: referrerID}, nil
	}
	if err != nil {
		return nil, s.finish(ctx, "process_referral", start, err)
	}

	if out.Credited {
		s.e.track(ctx, domain.EventReferralSuccess, s.userID, map[string]any{
			"referrer_id": referrerID,
			"credits":     amount,
		})
		if rs, ok := s.e.Lookup(referrerID); ok {
			rs.resync(ctx)
		}
	}
	return &out, s.finish(ctx, "process_referral", start, nil)
}
