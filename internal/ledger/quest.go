package ledger

import (
	"context"
	"errors"
	"time"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/store"
)

// QuestClaim is the result of a successful reward claim
type QuestClaim struct {
	QuestID string `json:"questId"`
	Reward  int64  `json:"reward"`
}

// AdWatch is the result of a completed ad view
type AdWatch struct {
	QuestID string `json:"questId"`
	AdType  string `json:"adType"`
	Watched int    `json:"watched"`
	Limit   int    `json:"limit"`
}

// QuestView is one quest with its evaluated state
type QuestView struct {
	Quest    domain.QuestDefinition
	State    QuestState
	Progress domain.AdProgress
}

// ClaimQuestReward grants the quest reward once. Preconditions are checked
// against the ledger read inside the transaction.
func (s *Session) ClaimQuestReward(ctx context.Context, quest domain.QuestDefinition) (*QuestClaim, error) {
	start := time.Now()
	if err := s.begin(); err != nil {
		return nil, err
	}
	if err := quest.Validate(); err != nil {
		return nil, s.finish(ctx, "claim_quest", start, wrap(ErrInvalidQuest, err))
	}

	ref := LedgerRef(s.userID)
	now := s.e.now()

	err := s.e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := loadLedger(ctx, tx, ref)
		if err != nil {
			return err
		}

		if quest.IsAdQuest() {
			p := l.Progress(quest.ID)
			if p.Claimed {
				return fail(ErrAlreadyClaimed, "Reward for %q is already claimed", quest.Title)
			}
			if p.Watched < quest.AdLimit {
				return fail(ErrQuestNotReady, "Watch %d more ads to claim this reward", quest.AdLimit-p.Watched)
			}
			return tx.Update(ctx, ref, store.Updates{
				domain.FieldGems:                              store.Increment(quest.Reward),
				domain.AdProgressPath(quest.ID, "claimed"):     true,
				domain.AdProgressPath(quest.ID, "lastClaimed"): now,
			})
		}

		if l.HasClaimed(quest.ID) {
			return fail(ErrAlreadyClaimed, "Reward for %q is already claimed", quest.Title)
		}
		return tx.Update(ctx, ref, store.Updates{
			domain.FieldGems:          store.Increment(quest.Reward),
			domain.FieldClaimedQuests: store.ArrayUnion(quest.ID),
		})
	})
	if err != nil {
		return nil, s.finish(ctx, "claim_quest", start, err)
	}

	payload := map[string]any{"quest_id": quest.ID, "reward": quest.Reward}
	if quest.IsAdQuest() {
		s.e.track(ctx, domain.EventAdsQuestClaimed, s.userID, payload)
	} else {
		s.e.track(ctx, domain.EventQuestClaimed, s.userID, payload)
	}
	s.e.track(ctx, domain.EventQuestCompleted, s.userID, payload)

	return &QuestClaim{QuestID: quest.ID, Reward: quest.Reward}, s.finish(ctx, "claim_quest", start, nil)
}

// WatchAdForQuest plays one ad and counts it towards the quest. Nothing is
// written unless the player reports the ad was watched to the end.
func (s *Session) WatchAdForQuest(ctx context.Context, quest domain.QuestDefinition) (*AdWatch, error) {
	start := time.Now()
	if err := s.begin(); err != nil {
		return nil, err
	}
	if !quest.IsAdQuest() || quest.Validate() != nil {
		return nil, s.finish(ctx, "watch_ad", start, fail(ErrInvalidQuest, "Quest %q has no ads to watch", quest.ID))
	}
	if quest.AdType == s.e.rules.AutomaticAdType {
		return nil, s.finish(ctx, "watch_ad", start, ErrNotManuallyTriggerable)
	}
	if s.e.ads == nil {
		return nil, s.finish(ctx, "watch_ad", start, fail(ErrAdPlaybackFailed, "Ads are not available"))
	}

	l, err := s.cache.Refresh(ctx)
	if err != nil {
		return nil, s.finish(ctx, "watch_ad", start, err)
	}
	// повторяемый квест мог созреть до того, как клиент запросил список
	if resetDue(l.Progress(quest.ID), s.e.now(), s.e.rules) {
		if _, err := s.ResetQuestProgress(ctx, quest.ID); err != nil {
			return nil, s.finish(ctx, "watch_ad", start, err)
		}
		if l, err = s.cache.Refresh(ctx); err != nil {
			return nil, s.finish(ctx, "watch_ad", start, err)
		}
	}
	if err := checkWatchable(l, quest, s.e.now(), s.e.rules); err != nil {
		return nil, s.finish(ctx, "watch_ad", start, err)
	}

	if !s.beginAd(quest.AdType) {
		return nil, s.finish(ctx, "watch_ad", start, ErrAdInProgress)
	}
	defer s.endAd(quest.AdType)

	actx, cancel := context.WithTimeout(ctx, s.e.rules.AdTimeout)
	err = s.e.ads.PlayAd(actx, s.userID, quest.AdType)
	cancel()
	if err != nil {
		reason := AdSDKFailure
		var adErr *AdError
		if errors.As(err, &adErr) {
			reason = adErr.Reason
		} else if errors.Is(err, context.DeadlineExceeded) {
			reason = AdTimeout
		}
		AdPlayback.WithLabelValues(quest.AdType, string(reason)).Inc()
		e := wrap(ErrAdPlaybackFailed, err)
		e.Message = adFailureMessage(reason)
		return nil, s.finish(ctx, "watch_ad", start, e)
	}
	AdPlayback.WithLabelValues(quest.AdType, "completed").Inc()

	// просмотр и кулдаун одним апдейтом; лимит и кулдаун перепроверяются,
	// другой инстанс мог засчитать просмотр пока шла реклама
	ref := LedgerRef(s.userID)
	err = s.e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := loadLedger(ctx, tx, ref)
		if err != nil {
			return err
		}
		now := s.e.now()
		if err := checkWatchable(l, quest, now, s.e.rules); err != nil {
			return err
		}
		return tx.Update(ctx, ref, store.Updates{
			domain.AdProgressPath(quest.ID, "watched"): store.Increment(1),
			domain.AdCooldownPath(quest.AdType):        now,
		})
	})
	if err != nil {
		return nil, s.finish(ctx, "watch_ad", start, err)
	}

	s.e.track(ctx, domain.EventAdsQuestWatch, s.userID, map[string]any{
		"quest_id": quest.ID,
		"ad_type":  quest.AdType,
	})

	err = s.finish(ctx, "watch_ad", start, nil)
	res := &AdWatch{QuestID: quest.ID, AdType: quest.AdType, Limit: quest.AdLimit}
	if l := s.cache.Peek(); l != nil {
		res.Watched = l.Progress(quest.ID).Watched
	}
	return res, err
}

// checkWatchable rejects a watch on a claimed or full quest and during the ad type cooldown
func checkWatchable(l *domain.LedgerDocument, quest domain.QuestDefinition, now time.Time, rules Rules) error {
	p := l.Progress(quest.ID)
	if p.Claimed {
		return fail(ErrQuestLimitReached, "Reward for %q is already claimed, come back later", quest.Title)
	}
	if p.Watched >= quest.AdLimit {
		return fail(ErrQuestLimitReached, "All %d ads watched, claim your reward", quest.AdLimit)
	}
	if rem := AdCooldownRemaining(l, quest.AdType, now, rules); rem > 0 {
		return cooldown(rem)
	}
	return nil
}

func adFailureMessage(reason AdFailure) string {
	switch reason {
	case AdUnsupported:
		return "Ads are not supported on this device"
	case AdTimeout:
		return "The ad took too long to finish, try again"
	case AdClosedEarly:
		return "The ad was closed before the end, watch it fully to get credit"
	}
	return "The ad failed to play, try again later"
}

// ResetQuestProgress restarts a repeatable ad quest whose repeat cooldown has
// passed. It writes fixed values only, so concurrent resets are harmless.
func (s *Session) ResetQuestProgress(ctx context.Context, questID string) (bool, error) {
	start := time.Now()
	if err := s.begin(); err != nil {
		return false, err
	}
	ref := LedgerRef(s.userID)
	now := s.e.now()

	var reset bool
	err := s.e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		reset = false
		l, err := loadLedger(ctx, tx, ref)
		if err != nil {
			return err
		}
		if !resetDue(l.Progress(questID), now, s.e.rules) {
			return nil
		}
		reset = true
		return tx.Update(ctx, ref, store.Updates{
			domain.AdProgressPath(questID, "watched"):     0,
			domain.AdProgressPath(questID, "claimed"):     false,
			domain.AdProgressPath(questID, "lastClaimed"): nil,
		})
	})
	return reset, s.finish(ctx, "reset_quest", start, err)
}

// QuestStates evaluates every catalog quest, running due resets first
func (s *Session) QuestStates(ctx context.Context) ([]QuestView, error) {
	l, err := s.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	now := s.e.now()
	quests := s.e.catalog.Quests

	resets := 0
	for _, q := range quests {
		if EvaluateQuestState(q, l, now, s.e.rules).ResetDue {
			if _, err := s.ResetQuestProgress(ctx, q.ID); err != nil {
				return nil, err
			}
			resets++
		}
	}
	if resets > 0 {
		if l, err = s.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	views := make([]QuestView, 0, len(quests))
	for _, q := range quests {
		views = append(views, QuestView{
			Quest:    q,
			State:    EvaluateQuestState(q, l, now, s.e.rules),
			Progress: l.Progress(q.ID),
		})
	}
	return views, nil
}
