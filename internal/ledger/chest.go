package ledger

import (
	"context"
	"errors"
	"time"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/store"
)

// ChestOpening is the result of OpenChest
type ChestOpening struct {
	Index   int                 `json:"index"`
	Tier    domain.ChestTier    `json:"tier"`
	Rewards domain.ChestRewards `json:"rewards"`
}

// OpenChest pays the tier cost and grants randomized rewards in one
// transaction together with the ranking update.
func (s *Session) OpenChest(ctx context.Context, index int) (*ChestOpening, error) {
	start := time.Now()
	if err := s.begin(); err != nil {
		return nil, err
	}
	tier, ok := s.e.catalog.Chest(index)
	if !ok {
		return nil, s.finish(ctx, "open_chest", start, fail(ErrUnknownChest, "Chest %d does not exist", index))
	}

	ref := LedgerRef(s.userID)
	rankRef := RankingRef(s.userID)
	username, photo := s.display()

	var rewards domain.ChestRewards
	err := s.e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := loadLedger(ctx, tx, ref)
		if err != nil {
			return err
		}
		if l.VIPLevel < tier.VIP {
			return fail(ErrInsufficientVip, "%s requires VIP %d, you are VIP %d", tier.Name, tier.VIP, l.VIPLevel)
		}
		if l.Gems < tier.GemCost {
			return fail(ErrInsufficientFunds, "Insufficient gems: need %d, have %d", tier.GemCost, l.Gems)
		}

		// ранкинг читаем до записей, иначе pg-транзакция не возьмёт на него блокировку
		_, rankErr := tx.Get(ctx, rankRef)
		if rankErr != nil && !errors.Is(rankErr, store.ErrNotFound) {
			return rankErr
		}

		rewards = s.e.rnd.ChestRewards(index, tier)

		if err := tx.Update(ctx, ref, store.Updates{
			domain.FieldGems:       store.Increment(-tier.GemCost),
			domain.FieldUSDT:       store.IncrementDecimal(rewards.USDT),
			domain.FieldLandPieces: store.Increment(rewards.LandPiece),
			domain.FieldFoxMedals:  store.Increment(rewards.FoxMedal),
		}); err != nil {
			return err
		}
		if rewards.FoxMedal <= 0 {
			return nil
		}

		if username == "" {
			username = l.Username
		}
		if photo == "" {
			photo = l.PhotoURL
		}
		if errors.Is(rankErr, store.ErrNotFound) {
			entry, err := store.Encode(domain.RankingEntry{
				UserID:    s.userID,
				Username:  username,
				PhotoURL:  photo,
				FoxMedals: l.FoxMedals + rewards.FoxMedal,
			})
			if err != nil {
				return err
			}
			return tx.Set(ctx, rankRef, entry, false)
		}
		return tx.Set(ctx, rankRef, store.Doc{
			domain.FieldUsername:  username,
			domain.FieldPhotoURL:  photo,
			domain.FieldFoxMedals: store.Increment(rewards.FoxMedal),
		}, true)
	})
	if err != nil {
		return nil, s.finish(ctx, "open_chest", start, err)
	}

	s.e.track(ctx, domain.EventChestOpened, s.userID, map[string]any{
		"chest":      index,
		"gem_cost":   tier.GemCost,
		"usdt":       rewards.USDT.String(),
		"land_piece": rewards.LandPiece,
		"fox_medal":  rewards.FoxMedal,
	})
	return &ChestOpening{Index: index, Tier: tier, Rewards: rewards}, s.finish(ctx, "open_chest", start, nil)
}
