package ledger

import (
	"context"
	"errors"
	"time"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/store"
)

// EnsureLedger creates the ledger on first launch or records the login.
// An unreachable store is retried with backoff; once retries run out the
// session is blocked until the next successful EnsureLedger.
func (s *Session) EnsureLedger(ctx context.Context) (created bool, err error) {
	start := time.Now()
	s.touch(s.e.now())

	err = retryUnavailable(ctx, s.e.rules.ConnectRetries, s.e.rules.RetryBackoff, func(attempt int) error {
		var err error
		created, err = s.ensure(ctx)
		if err != nil && KindOf(classify(err)) == KindUnavailable {
			s.e.log.WithField("user_id", s.userID).WithField("attempt", attempt).
				WithError(err).Warn("ledger store unreachable")
		}
		return err
	})

	if err != nil {
		err = classify(err)
		if KindOf(err) == KindUnavailable {
			blocked := wrap(ErrLedgerUnreachable, err)
			s.mu.Lock()
			s.blocked = blocked
			s.mu.Unlock()
			observe("ensure_ledger", start, blocked)
			return false, blocked
		}
		observe("ensure_ledger", start, err)
		return false, err
	}

	s.mu.Lock()
	s.blocked = nil
	pending := s.pendingReferral
	s.pendingReferral = ""
	s.mu.Unlock()

	if created {
		username, _ := s.display()
		s.e.track(ctx, domain.EventUserSignup, s.userID, map[string]any{"username": username})
	}
	observe("ensure_ledger", start, nil)

	if pending != "" {
		if _, rerr := s.ProcessReferral(ctx, pending); rerr != nil {
			s.e.log.WithField("user_id", s.userID).WithError(rerr).Warn("deferred referral failed")
		}
	}
	s.resync(ctx)
	s.reconcileWallet(ctx)
	return created, nil
}

// reconcileWallet brings walletAddress in line with the wallet adapter. A
// link can change while no listener is attached, e.g. across a restart.
func (s *Session) reconcileWallet(ctx context.Context) {
	if s.e.wallet == nil {
		return
	}
	l := s.cache.Peek()
	if l == nil {
		return
	}
	addr, err := s.e.wallet.CurrentAddress(ctx, s.userID)
	if err != nil {
		s.e.log.WithField("user_id", s.userID).WithError(err).Warn("wallet reconcile skipped")
		return
	}
	current := ""
	if l.WalletAddress != nil {
		current = *l.WalletAddress
	}
	if current == addr {
		return
	}
	if err := s.SyncWallet(ctx, addr != "", addr); err != nil {
		s.e.log.WithField("user_id", s.userID).WithError(err).Warn("wallet reconcile failed")
	}
}

func (s *Session) ensure(ctx context.Context) (bool, error) {
	ref := LedgerRef(s.userID)
	username, photo := s.display()
	now := s.e.now()

	var created bool
	err := s.e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		created = false
		_, err := tx.Get(ctx, ref)
		if errors.Is(err, store.ErrNotFound) {
			doc, err := store.Encode(domain.NewLedgerDocument(s.userID, username, photo, now))
			if err != nil {
				return err
			}
			created = true
			return tx.Set(ctx, ref, doc, false)
		}
		if err != nil {
			return err
		}
		updates := store.Updates{domain.FieldLastLogin: now}
		if username != "" {
			updates[domain.FieldUsername] = username
		}
		if photo != "" {
			updates[domain.FieldPhotoURL] = photo
		}
		return tx.Update(ctx, ref, updates)
	})
	return created, err
}

// SyncWallet mirrors the wallet adapter state into walletAddress
func (s *Session) SyncWallet(ctx context.Context, connected bool, address string) error {
	start := time.Now()
	if err := s.begin(); err != nil {
		return err
	}
	var value any
	if connected && address != "" {
		value = address
	}
	err := s.e.store.Update(ctx, LedgerRef(s.userID), store.Updates{domain.FieldWalletAddress: value})
	return s.finish(ctx, "sync_wallet", start, err)
}

// retryUnavailable runs fn until it succeeds, fails with something other than
// an unreachable store, or attempts run out. Backoff doubles after each try.
func retryUnavailable(ctx context.Context, attempts int, backoff time.Duration, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil || KindOf(classify(err)) != KindUnavailable || attempt == attempts {
			return err
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		backoff *= 2
	}
	return err
}
