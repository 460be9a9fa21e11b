package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/store"
)

func TestClaimDefaultQuestOnlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", nil)
	s := f.session("1")
	ctx := context.Background()

	res, err := s.ClaimQuestReward(ctx, f.quest(t, "join"))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.Reward != 500 {
		t.Fatalf("expected reward 500, got %d", res.Reward)
	}

	_, err = s.ClaimQuestReward(ctx, f.quest(t, "join"))
	if !errors.Is(err, ErrAlreadyClaimed) || KindOf(err) != KindValidation {
		t.Fatalf("expected AlreadyClaimed validation error, got %v", err)
	}

	l := f.ledger(t, "1")
	if l.Gems != 500 || len(l.ClaimedQuests) != 1 {
		t.Fatalf("unexpected ledger after double claim: gems=%d claimed=%v", l.Gems, l.ClaimedQuests)
	}
	if f.analytics.Count(domain.EventQuestClaimed) != 1 || f.analytics.Count(domain.EventQuestCompleted) != 1 {
		t.Fatalf("expected one quest_claimed and one quest_completed event")
	}
}

func TestClaimAdQuestRequiresWatches(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", func(l *domain.LedgerDocument) {
		l.AdProgress["popup"] = domain.AdProgress{Watched: 1}
	})

	_, err := f.session("1").ClaimQuestReward(context.Background(), f.quest(t, "popup"))
	if !errors.Is(err, ErrQuestNotReady) {
		t.Fatalf("expected QuestNotReady, got %v", err)
	}
	if f.ledger(t, "1").Gems != 0 {
		t.Fatalf("gems must not change")
	}
}

func TestWatchAdIncrementsProgressAndCooldown(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", nil)
	s := f.session("1")
	ctx := context.Background()

	res, err := s.WatchAdForQuest(ctx, f.quest(t, "popup"))
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if res.Watched != 1 || res.Limit != 2 {
		t.Fatalf("unexpected watch result %+v", res)
	}

	l := f.ledger(t, "1")
	last, ok := l.LastAdWatch("rewardedPopup")
	if !ok || !last.Equal(f.clock.Now()) {
		t.Fatalf("cooldown not recorded: %v %v", last, ok)
	}

	// другой квест, тот же тип рекламы
	_, err = s.WatchAdForQuest(ctx, f.quest(t, "popup_bonus"))
	var le *Error
	if !errors.As(err, &le) || le.Reason != ReasonAdCooldown {
		t.Fatalf("expected cooldown, got %v", err)
	}
	if le.Remaining != 3*time.Minute {
		t.Fatalf("expected 3m remaining, got %s", le.Remaining)
	}
	if f.ads.Calls() != 1 {
		t.Fatalf("player must not be called during cooldown, calls=%d", f.ads.Calls())
	}

	f.clock.Advance(3 * time.Minute)
	if _, err := s.WatchAdForQuest(ctx, f.quest(t, "popup_bonus")); err != nil {
		t.Fatalf("watch after cooldown: %v", err)
	}
	if got := f.ledger(t, "1").Progress("popup_bonus").Watched; got != 1 {
		t.Fatalf("expected popup_bonus watched=1, got %d", got)
	}
}

func TestWatchAdFailureDoesNotMutate(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", nil)
	f.ads.err = &AdError{Reason: AdClosedEarly}

	_, err := f.session("1").WatchAdForQuest(context.Background(), f.quest(t, "popup"))
	if !errors.Is(err, ErrAdPlaybackFailed) || KindOf(err) != KindAdapter {
		t.Fatalf("expected AdPlaybackFailed, got %v", err)
	}
	l := f.ledger(t, "1")
	if l.Progress("popup").Watched != 0 {
		t.Fatalf("watched must stay 0")
	}
	if _, ok := l.LastAdWatch("rewardedPopup"); ok {
		t.Fatalf("cooldown must not be set on failure")
	}
}

func TestWatchAdTimeoutIsFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", nil)
	f.engine.rules.AdTimeout = 20 * time.Millisecond
	f.ads.block = true

	_, err := f.session("1").WatchAdForQuest(context.Background(), f.quest(t, "video"))
	if !errors.Is(err, ErrAdPlaybackFailed) {
		t.Fatalf("expected AdPlaybackFailed on timeout, got %v", err)
	}
	if f.ledger(t, "1").Progress("video").Watched != 0 {
		t.Fatalf("timed out ad must not count")
	}
}

func TestWatchAutomaticAdTypeRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", nil)

	_, err := f.session("1").WatchAdForQuest(context.Background(), f.quest(t, "auto"))
	if !errors.Is(err, ErrNotManuallyTriggerable) {
		t.Fatalf("expected NotManuallyTriggerable, got %v", err)
	}
	if f.ads.Calls() != 0 {
		t.Fatalf("player must not be called")
	}
}

func TestWatchAdLimitReached(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", func(l *domain.LedgerDocument) {
		l.AdProgress["video"] = domain.AdProgress{Watched: 1}
	})
	_, err := f.session("1").WatchAdForQuest(context.Background(), f.quest(t, "video"))
	if !errors.Is(err, ErrQuestLimitReached) {
		t.Fatalf("expected QuestLimitReached, got %v", err)
	}
}

func TestAdQuestFullCycleWithReset(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", nil)
	s := f.session("1")
	ctx := context.Background()
	q := f.quest(t, "popup")

	for i := 0; i < q.AdLimit; i++ {
		if _, err := s.WatchAdForQuest(ctx, q); err != nil {
			t.Fatalf("watch %d: %v", i, err)
		}
		f.clock.Advance(3 * time.Minute)
	}
	if _, err := s.ClaimQuestReward(ctx, q); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := s.ClaimQuestReward(ctx, q); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim must fail, got %v", err)
	}

	views, err := s.QuestStates(ctx)
	if err != nil {
		t.Fatalf("states: %v", err)
	}
	st := findView(t, views, "popup").State
	if st.Status != QuestClaimed || st.Remaining != time.Hour {
		t.Fatalf("expected claimed with 1h remaining, got %+v", st)
	}

	f.clock.Advance(time.Hour)
	views, err = s.QuestStates(ctx)
	if err != nil {
		t.Fatalf("states after cooldown: %v", err)
	}
	if st := findView(t, views, "popup").State; st.Status != QuestReadyToAct {
		t.Fatalf("expected ready to act after reset, got %+v", st)
	}
	l := f.ledger(t, "1")
	p := l.Progress("popup")
	if p.Watched != 0 || p.Claimed || p.LastClaimed != nil {
		t.Fatalf("progress not reset: %+v", p)
	}
	if l.Gems != q.Reward {
		t.Fatalf("reset must not touch gems, got %d", l.Gems)
	}
}

func TestResetQuestProgressNotDue(t *testing.T) {
	f := newFixture(t, nil)
	claimed := f.clock.Now()
	f.seed(t, "1", func(l *domain.LedgerDocument) {
		l.AdProgress["popup"] = domain.AdProgress{Watched: 2, Claimed: true, LastClaimed: &claimed}
	})
	reset, err := f.session("1").ResetQuestProgress(context.Background(), "popup")
	if err != nil || reset {
		t.Fatalf("reset must be a no-op before cooldown, reset=%v err=%v", reset, err)
	}
}

func TestWatchRejectionsRefreshCache(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", nil)
	s := f.session("1")
	ctx := context.Background()

	if _, err := s.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	bump := func(gems int64) {
		if err := f.store.Update(ctx, LedgerRef("1"), store.Updates{domain.FieldGems: gems}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	bump(7)
	if _, err := s.WatchAdForQuest(ctx, f.quest(t, "auto")); !errors.Is(err, ErrNotManuallyTriggerable) {
		t.Fatalf("expected NotManuallyTriggerable, got %v", err)
	}
	if got := s.cache.Peek().Gems; got != 7 {
		t.Fatalf("cache not refreshed after automatic ad rejection, gems=%d", got)
	}

	bump(8)
	if _, err := s.WatchAdForQuest(ctx, f.quest(t, "join")); !errors.Is(err, ErrInvalidQuest) {
		t.Fatalf("expected InvalidQuest, got %v", err)
	}
	if got := s.cache.Peek().Gems; got != 8 {
		t.Fatalf("cache not refreshed after invalid quest, gems=%d", got)
	}
}

func TestWatchAdInProgressRefreshesCache(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", nil)
	f.ads.block = true
	s := f.session("1")

	q := f.quest(t, "popup")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.WatchAdForQuest(ctx, q)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.ads.Calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("first ad never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := f.store.Update(context.Background(), LedgerRef("1"), store.Updates{domain.FieldGems: int64(11)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, err := s.WatchAdForQuest(context.Background(), f.quest(t, "popup_bonus"))
	if !errors.Is(err, ErrAdInProgress) {
		t.Fatalf("expected AdInProgress, got %v", err)
	}
	if got := s.cache.Peek().Gems; got != 11 {
		t.Fatalf("cache not refreshed after AdInProgress, gems=%d", got)
	}

	cancel()
	<-done
	if f.ads.Calls() != 1 {
		t.Fatalf("second ad must not reach the player, calls=%d", f.ads.Calls())
	}
}

func TestWatchResetsDueQuestFirst(t *testing.T) {
	f := newFixture(t, nil)
	claimed := f.clock.Now().Add(-2 * time.Hour)
	f.seed(t, "1", func(l *domain.LedgerDocument) {
		l.AdProgress["video"] = domain.AdProgress{Watched: 1, Claimed: true, LastClaimed: &claimed}
	})

	res, err := f.session("1").WatchAdForQuest(context.Background(), f.quest(t, "video"))
	if err != nil {
		t.Fatalf("watch on a due quest: %v", err)
	}
	if res.Watched != 1 {
		t.Fatalf("expected watched=1 after reset, got %d", res.Watched)
	}
	p := f.ledger(t, "1").Progress("video")
	if p.Claimed || p.Watched != 1 || p.LastClaimed != nil {
		t.Fatalf("unexpected progress %+v", p)
	}
}

func TestWatchClaimedQuestMessage(t *testing.T) {
	f := newFixture(t, nil)
	claimed := f.clock.Now()
	f.seed(t, "1", func(l *domain.LedgerDocument) {
		l.AdProgress["video"] = domain.AdProgress{Watched: 1, Claimed: true, LastClaimed: &claimed}
	})

	_, err := f.session("1").WatchAdForQuest(context.Background(), f.quest(t, "video"))
	var le *Error
	if !errors.As(err, &le) || le.Reason != ReasonQuestLimitReached {
		t.Fatalf("expected QuestLimitReached, got %v", err)
	}
	if !strings.Contains(le.Message, "already claimed") {
		t.Fatalf("message must describe the claimed state, got %q", le.Message)
	}
	if f.ads.Calls() != 0 {
		t.Fatalf("player must not be called")
	}
}

func TestWatchRechecksLimitAfterPlayback(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", nil)
	ctx := context.Background()

	// другой инстанс успел досмотреть квест, пока шла реклама
	f.ads.onPlay = func() {
		_ = f.store.Update(ctx, LedgerRef("1"), store.Updates{
			domain.AdProgressPath("video", "watched"): 1,
		})
	}
	_, err := f.session("1").WatchAdForQuest(ctx, f.quest(t, "video"))
	if !errors.Is(err, ErrQuestLimitReached) {
		t.Fatalf("expected QuestLimitReached, got %v", err)
	}
	if got := f.ledger(t, "1").Progress("video").Watched; got != 1 {
		t.Fatalf("watched must not exceed the limit, got %d", got)
	}
}

func TestWatchRechecksCooldownAfterPlayback(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", nil)
	ctx := context.Background()

	f.ads.onPlay = func() {
		_ = f.store.Update(ctx, LedgerRef("1"), store.Updates{
			domain.AdCooldownPath("rewardedPopup"): f.clock.Now(),
		})
	}
	_, err := f.session("1").WatchAdForQuest(ctx, f.quest(t, "popup"))
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("expected cooldown, got %v", err)
	}
	if got := f.ledger(t, "1").Progress("popup").Watched; got != 0 {
		t.Fatalf("watch must not count during another instance's cooldown, got %d", got)
	}
}

func findView(t *testing.T, views []QuestView, id string) QuestView {
	t.Helper()
	for _, v := range views {
		if v.Quest.ID == id {
			return v
		}
	}
	t.Fatalf("quest %s not in views", id)
	return QuestView{}
}
