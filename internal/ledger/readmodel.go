package ledger

import (
	"context"
	"fmt"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/store"
)

// Leaderboard returns the top ranking entries by fox medals
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]domain.RankingEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := e.store.Query(ctx, store.Query{
		Collection: CollectionRankings,
		OrderBy:    domain.FieldFoxMedals,
		Desc:       true,
		Limit:      limit,
	})
	if err != nil {
		return nil, classify(err)
	}
	out := make([]domain.RankingEntry, 0, len(rows))
	for _, r := range rows {
		var entry domain.RankingEntry
		if err := store.Decode(r.Data, &entry); err != nil {
			return nil, err
		}
		if entry.UserID == "" {
			entry.UserID = r.Ref.ID
		}
		out = append(out, entry)
	}
	return out, nil
}

// LedgerSnapshot reads a user's ledger without creating a session (admin)
func (e *Engine) LedgerSnapshot(ctx context.Context, userID string) (*domain.LedgerDocument, error) {
	d, err := e.store.Get(ctx, LedgerRef(userID))
	if err != nil {
		return nil, classify(err)
	}
	var l domain.LedgerDocument
	if err := store.Decode(d, &l); err != nil {
		return nil, err
	}
	if l.UserID == "" {
		l.UserID = userID
	}
	return &l, nil
}

// ReferralLink builds the Mini App deep link carrying the user's referral token
func ReferralLink(botUsername, appShortName, userID string) string {
	return fmt.Sprintf("https://t.me/%s/%s?startapp=%s", botUsername, appShortName, ReferralToken(userID))
}

// SyncWallet is the wallet status handler: it updates walletAddress of the
// user whether or not a session is live
func (e *Engine) SyncWallet(ctx context.Context, userID string, connected bool, address string) error {
	s, ok := e.Lookup(userID)
	if !ok {
		s = e.Session(Identity{UserID: userID})
	}
	return s.SyncWallet(ctx, connected, address)
}

// InitializeAutomaticAds pushes the automatic ad schedule to the user's client
func (e *Engine) InitializeAutomaticAds(userID string) {
	if e.ads != nil {
		e.ads.InitializeAutomaticAds(userID, e.rules.AutoAds)
	}
}
