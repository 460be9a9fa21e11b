package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rewards_webapp/internal/catalog"
	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/store"
	"rewards_webapp/internal/store/memstore"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fixedSource always returns the same value
type fixedSource struct {
	mu sync.Mutex
	v  float64
}

func (s *fixedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *fixedSource) set(v float64) {
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

type fakeAds struct {
	mu    sync.Mutex
	err   error
	block bool
	calls int
	auto  map[string]AutoAdSettings

	// onPlay runs while the ad is "on screen"
	onPlay func()
}

func (a *fakeAds) PlayAd(ctx context.Context, userID, adType string) error {
	a.mu.Lock()
	a.calls++
	err, block, onPlay := a.err, a.block, a.onPlay
	a.mu.Unlock()
	if onPlay != nil {
		onPlay()
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (a *fakeAds) InitializeAutomaticAds(userID string, settings AutoAdSettings) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.auto == nil {
		a.auto = map[string]AutoAdSettings{}
	}
	a.auto[userID] = settings
}

func (a *fakeAds) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeWallet struct {
	address string
	err     error
}

func (w *fakeWallet) IsConnected(ctx context.Context, userID string) (bool, error) {
	return w.address != "", w.err
}

func (w *fakeWallet) CurrentAddress(ctx context.Context, userID string) (string, error) {
	return w.address, w.err
}

type recordingAnalytics struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAnalytics) Track(ctx context.Context, name, userID string, payload map[string]any) {
	r.mu.Lock()
	r.events = append(r.events, name)
	r.mu.Unlock()
}

func (r *recordingAnalytics) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == name {
			n++
		}
	}
	return n
}

// flakyStore fails every call with ErrUnavailable while down is set
type flakyStore struct {
	store.Store
	down atomic.Bool
}

func (f *flakyStore) err() error {
	if f.down.Load() {
		return fmt.Errorf("%w: connection refused", store.ErrUnavailable)
	}
	return nil
}

func (f *flakyStore) Get(ctx context.Context, ref store.Ref) (store.Doc, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, ref)
}

func (f *flakyStore) Update(ctx context.Context, ref store.Ref, u store.Updates) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.Store.Update(ctx, ref, u)
}

func (f *flakyStore) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.Store.RunTransaction(ctx, fn)
}

type fixture struct {
	engine    *Engine
	store     store.Store
	clock     *testClock
	rnd       *fixedSource
	ads       *fakeAds
	wallet    *fakeWallet
	analytics *recordingAnalytics
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(
		[]domain.QuestDefinition{
			{ID: "popup", Type: domain.QuestTypeAds, Title: "Popup ads", Reward: 150, AdLimit: 2, AdType: "rewardedPopup"},
			{ID: "popup_bonus", Type: domain.QuestTypeAds, Title: "Bonus popups", Reward: 100, AdLimit: 3, AdType: "rewardedPopup"},
			{ID: "video", Type: domain.QuestTypeAds, Title: "Video ads", Reward: 300, AdLimit: 1, AdType: "rewardedInterstitial"},
			{ID: "auto", Type: domain.QuestTypeAds, Title: "In-app", Reward: 10, AdLimit: 1, AdType: "inApp"},
			{ID: "join", Type: domain.QuestTypeDefault, Title: "Join channel", Reward: 500},
		},
		[]domain.ChestTier{
			{Name: "Wooden", Next: "Silver", GemCost: 200, VIP: 0},
			{Name: "Silver", Next: "", GemCost: 500, VIP: 1},
		},
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	if st == nil {
		st = memstore.New(memstore.WithMaxAttempts(100))
	}
	f := &fixture{
		store:     st,
		clock:     &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		rnd:       &fixedSource{v: 0.5},
		ads:       &fakeAds{},
		wallet:    &fakeWallet{},
		analytics: &recordingAnalytics{},
	}

	rules := DefaultRules()
	rules.WithdrawResolveDelay = time.Hour
	rules.ConnectRetries = 2
	rules.RetryBackoff = time.Millisecond

	f.engine = NewEngine(Options{
		Store:      st,
		Catalog:    testCatalog(t),
		Rules:      rules,
		Randomizer: NewRandomizer(f.rnd, 0.05, 0.01, 3),
		Ads:        f.ads,
		Wallet:     f.wallet,
		Analytics:  f.analytics,
		Now:        f.clock.Now,
	})
	t.Cleanup(f.engine.Shutdown)
	return f
}

func (f *fixture) seed(t *testing.T, userID string, mutate func(l *domain.LedgerDocument)) {
	t.Helper()
	l := domain.NewLedgerDocument(userID, "user"+userID, "", f.clock.Now())
	if mutate != nil {
		mutate(l)
	}
	doc, err := store.Encode(l)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := f.store.Set(context.Background(), LedgerRef(userID), doc, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (f *fixture) ledger(t *testing.T, userID string) *domain.LedgerDocument {
	t.Helper()
	l, err := f.engine.LedgerSnapshot(context.Background(), userID)
	if err != nil {
		t.Fatalf("ledger %s: %v", userID, err)
	}
	return l
}

func (f *fixture) session(userID string) *Session {
	return f.engine.Session(Identity{UserID: userID, Username: "user" + userID})
}

func (f *fixture) quest(t *testing.T, id string) domain.QuestDefinition {
	t.Helper()
	q, ok := f.engine.Catalog().Quest(id)
	if !ok {
		t.Fatalf("quest %s not in catalog", id)
	}
	return q
}
