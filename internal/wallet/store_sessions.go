package wallet

import (
	"context"
	"errors"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/logger"
	"rewards_webapp/internal/store"
)

const (
	CollectionWallets      = "wallets"
	CollectionWalletOwners = "walletOwners"
)

// StoreSessions keeps wallet links in the document store next to the ledgers,
// so they survive restarts. Unlinked documents are kept with an empty address.
type StoreSessions struct {
	st store.Store
}

func NewStoreSessions(st store.Store) *StoreSessions {
	return &StoreSessions{st: st}
}

func walletRef(userID string) store.Ref { return store.NewRef(CollectionWallets, userID) }
func ownerRef(raw string) store.Ref     { return store.NewRef(CollectionWalletOwners, raw) }

type ownerDoc struct {
	UserID string `json:"user_id"`
}

func decodeConn(d store.Doc) (*domain.WalletConnection, error) {
	var conn domain.WalletConnection
	if err := store.Decode(d, &conn); err != nil {
		return nil, err
	}
	if conn.Address == "" {
		return nil, nil
	}
	return &conn, nil
}

func (s *StoreSessions) Get(ctx context.Context, userID string) (*domain.WalletConnection, error) {
	d, err := s.st.Get(ctx, walletRef(userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeConn(d)
}

// Put links conn.RawAddress to the user inside one transaction, so two users
// racing for the same address cannot both win.
func (s *StoreSessions) Put(ctx context.Context, conn domain.WalletConnection) error {
	connDoc, err := store.Encode(conn)
	if err != nil {
		return err
	}
	owner, err := store.Encode(ownerDoc{UserID: conn.UserID})
	if err != nil {
		return err
	}

	return s.st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := tx.Get(ctx, ownerRef(conn.RawAddress))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err == nil {
			var o ownerDoc
			if err := store.Decode(d, &o); err != nil {
				return err
			}
			if o.UserID != "" && o.UserID != conn.UserID {
				return ErrAddressTaken
			}
		}

		prev, err := txConn(ctx, tx, conn.UserID)
		if err != nil {
			return err
		}
		if prev != nil && prev.RawAddress != conn.RawAddress {
			if err := tx.Set(ctx, ownerRef(prev.RawAddress), store.Doc{"user_id": ""}, false); err != nil {
				return err
			}
		}
		if err := tx.Set(ctx, ownerRef(conn.RawAddress), owner, false); err != nil {
			return err
		}
		return tx.Set(ctx, walletRef(conn.UserID), connDoc, false)
	})
}

func (s *StoreSessions) Delete(ctx context.Context, userID string) error {
	return s.st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		prev, err := txConn(ctx, tx, userID)
		if err != nil || prev == nil {
			return err
		}
		if err := tx.Set(ctx, ownerRef(prev.RawAddress), store.Doc{"user_id": ""}, false); err != nil {
			return err
		}
		return tx.Set(ctx, walletRef(userID), store.Doc{"user_id": userID, "address": ""}, false)
	})
}

func (s *StoreSessions) OwnerOf(ctx context.Context, raw string) (string, error) {
	d, err := s.st.Get(ctx, ownerRef(raw))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var o ownerDoc
	if err := store.Decode(d, &o); err != nil {
		return "", err
	}
	return o.UserID, nil
}

func txConn(ctx context.Context, tx store.Tx, userID string) (*domain.WalletConnection, error) {
	d, err := tx.Get(ctx, walletRef(userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeConn(d)
}

// CachedSessions reads through a Redis cache; the durable store stays the
// source of truth, so an expired cache entry only costs one store read.
type CachedSessions struct {
	cache   SessionStore
	durable SessionStore
}

func NewCachedSessions(cache, durable SessionStore) *CachedSessions {
	return &CachedSessions{cache: cache, durable: durable}
}

func (s *CachedSessions) Get(ctx context.Context, userID string) (*domain.WalletConnection, error) {
	if conn, err := s.cache.Get(ctx, userID); err == nil && conn != nil {
		return conn, nil
	} else if err != nil {
		logger.Warn("wallet cache read failed", "user_id", userID, "error", err)
	}

	conn, err := s.durable.Get(ctx, userID)
	if err != nil || conn == nil {
		return conn, err
	}
	if err := s.cache.Put(ctx, *conn); err != nil {
		logger.Warn("wallet cache fill failed", "user_id", userID, "error", err)
	}
	return conn, nil
}

func (s *CachedSessions) Put(ctx context.Context, conn domain.WalletConnection) error {
	if err := s.durable.Put(ctx, conn); err != nil {
		return err
	}
	if err := s.cache.Put(ctx, conn); err != nil {
		logger.Warn("wallet cache write failed", "user_id", conn.UserID, "error", err)
	}
	return nil
}

func (s *CachedSessions) Delete(ctx context.Context, userID string) error {
	if err := s.durable.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		// устаревшая запись в кэше проживёт до TTL
		logger.Warn("wallet cache delete failed", "user_id", userID, "error", err)
	}
	return nil
}

// OwnerOf always asks the durable store, cached owner keys can expire
func (s *CachedSessions) OwnerOf(ctx context.Context, raw string) (string, error) {
	return s.durable.OwnerOf(ctx, raw)
}
