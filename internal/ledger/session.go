package ledger

import (
	"context"
	"sync"
	"time"

	"rewards_webapp/internal/domain"
)

// Identity is the validated Telegram launch identity of a user
type Identity struct {
	UserID     string
	Username   string
	PhotoURL   string
	StartParam string
}

// Session is the per-user engine state: the ledger cache, the in-flight ad
// guards and a pending referral token
type Session struct {
	e      *Engine
	userID string
	cache  *Cache

	mu              sync.Mutex
	username        string
	photoURL        string
	pendingReferral string
	blocked         error
	playing         map[string]bool
	lastSeen        time.Time
}

func newSession(e *Engine, userID string) *Session {
	s := &Session{
		e:       e,
		userID:  userID,
		playing: make(map[string]bool),
	}
	s.cache = NewCache(e.store, LedgerRef(userID), func(l *domain.LedgerDocument) {
		e.refreshed(userID, l)
	})
	return s
}

func (s *Session) UserID() string { return s.userID }

func (s *Session) setIdentity(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id.Username != "" {
		s.username = id.Username
	}
	if id.PhotoURL != "" {
		s.photoURL = id.PhotoURL
	}
}

func (s *Session) display() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.photoURL
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	// отложенный реферал живёт только в сессии, её нельзя выселять до EnsureLedger
	return len(s.playing) == 0 && s.pendingReferral == "" && s.lastSeen.Before(cutoff)
}

func (s *Session) available() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked != nil {
		return s.blocked
	}
	return nil
}

// Ledger returns the cached snapshot, fetching it if the cache is empty
func (s *Session) Ledger(ctx context.Context) (*domain.LedgerDocument, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	l, err := s.cache.Get(ctx)
	return l, classify(err)
}

// Refresh forces a fresh read of the ledger
func (s *Session) Refresh(ctx context.Context) (*domain.LedgerDocument, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	l, err := s.cache.Refresh(ctx)
	return l, classify(err)
}

// begin is the common prologue of every mutating operation
func (s *Session) begin() error {
	s.touch(s.e.now())
	return s.available()
}

// finish classifies err, records metrics and re-syncs the cache. The cache is
// refreshed on failure too so callers never present a rejected state.
func (s *Session) finish(ctx context.Context, op string, start time.Time, err error) error {
	err = classify(err)
	observe(op, start, err)
	s.resync(ctx)
	if err != nil {
		s.e.log.WithField("user_id", s.userID).WithField("op", op).
			WithField("reason", ReasonOf(err)).Debug("ledger operation rejected")
	}
	return err
}

func (s *Session) resync(ctx context.Context) {
	rctx, cancel := detached(ctx)
	defer cancel()
	if _, err := s.cache.Refresh(rctx); err != nil {
		s.e.log.WithField("user_id", s.userID).WithError(err).Debug("ledger refresh failed")
	}
}

func (s *Session) beginAd(adType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing[adType] {
		return false
	}
	s.playing[adType] = true
	return true
}

func (s *Session) endAd(adType string) {
	s.mu.Lock()
	delete(s.playing, adType)
	s.mu.Unlock()
}
