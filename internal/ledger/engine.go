// Package ledger implements the reward ledger: per-user sessions with a
// cached snapshot, transactional quest/chest/referral/withdrawal operations
// and the quest state machine.
package ledger

import (
	"context"
	"sync"
	"time"

	"rewards_webapp/internal/catalog"
	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/logger"
	"rewards_webapp/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	CollectionLedgers      = "ledgers"
	CollectionRankings     = "rankings"
	CollectionTransactions = "transactions"
)

func LedgerRef(userID string) store.Ref {
	return store.NewRef(CollectionLedgers, userID)
}

func RankingRef(userID string) store.Ref {
	return store.NewRef(CollectionRankings, userID)
}

func TransactionRef(userID, txID string) store.Ref {
	return LedgerRef(userID).Child(CollectionTransactions, txID)
}

// Options wires an Engine. Store and Catalog are required.
type Options struct {
	Store      store.Store
	Catalog    *catalog.Catalog
	Rules      Rules
	Randomizer *Randomizer
	Ads        AdPlayer
	Wallet     Wallet
	Analytics  Analytics
	Notifier   Notifier
	Now        func() time.Time

	// OnRefresh is called with every freshly fetched snapshot (ws push)
	OnRefresh func(userID string, l *domain.LedgerDocument)
}

// Engine owns the session registry and the withdrawal resolver
type Engine struct {
	store     store.Store
	catalog   *catalog.Catalog
	rules     Rules
	rnd       *Randomizer
	ads       AdPlayer
	wallet    Wallet
	analytics Analytics
	notifier  Notifier
	clock     func() time.Time
	onRefresh func(userID string, l *domain.LedgerDocument)
	log       *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*Session

	timersMu sync.Mutex
	timers   map[string]*time.Timer
	closed   bool
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		store:     opts.Store,
		catalog:   opts.Catalog,
		rules:     opts.Rules,
		rnd:       opts.Randomizer,
		ads:       opts.Ads,
		wallet:    opts.Wallet,
		analytics: opts.Analytics,
		notifier:  opts.Notifier,
		clock:     opts.Now,
		onRefresh: opts.OnRefresh,
		log:       logger.With("component", "ledger"),
		sessions:  make(map[string]*Session),
		timers:    make(map[string]*time.Timer),
	}
	if e.catalog == nil {
		e.catalog = catalog.Default()
	}
	if e.rnd == nil {
		e.rnd = NewRandomizer(CryptoSource(), 0.05, 0.01, 3)
	}
	if e.analytics == nil {
		e.analytics = nopAnalytics{}
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

func (e *Engine) now() time.Time { return e.clock().UTC() }

func (e *Engine) Rules() Rules { return e.rules }

func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Session returns the live session of a user, creating it on first use.
// Non-empty display metadata replaces the stored one.
func (e *Engine) Session(id Identity) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id.UserID]
	if !ok {
		s = newSession(e, id.UserID)
		e.sessions[id.UserID] = s
		ActiveSessions.Set(float64(len(e.sessions)))
	}
	s.setIdentity(id)
	s.touch(e.now())
	return s
}

// Lookup returns a live session without creating one
func (e *Engine) Lookup(userID string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[userID]
	return s, ok
}

// EvictIdle drops sessions unused for longer than ttl and not playing an ad
func (e *Engine) EvictIdle(ttl time.Duration) int {
	cutoff := e.now().Add(-ttl)

	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for id, s := range e.sessions {
		if s.idleSince(cutoff) {
			delete(e.sessions, id)
			n++
		}
	}
	ActiveSessions.Set(float64(len(e.sessions)))
	return n
}

// Shutdown stops pending resolution timers, the sweep picks them up later
func (e *Engine) Shutdown() {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	e.closed = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) track(ctx context.Context, name, userID string, payload map[string]any) {
	e.analytics.Track(ctx, name, userID, payload)
}

func (e *Engine) refreshed(userID string, l *domain.LedgerDocument) {
	if e.onRefresh != nil {
		e.onRefresh(userID, l)
	}
}

// loadLedger reads and decodes a ledger inside a transaction
func loadLedger(ctx context.Context, tx store.Tx, ref store.Ref) (*domain.LedgerDocument, error) {
	d, err := tx.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	var l domain.LedgerDocument
	if err := store.Decode(d, &l); err != nil {
		return nil, err
	}
	if l.UserID == "" {
		l.UserID = ref.ID
	}
	return &l, nil
}

// detached keeps values of ctx but not its cancellation, for follow-up
// reads after the caller may have gone away
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}
