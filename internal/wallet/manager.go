package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/logger"
	"rewards_webapp/internal/ton"
)

var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrAddressTaken   = errors.New("wallet already linked to another account")
	ErrProofRejected  = errors.New("proof verification failed")
)

// ConnectRequest is the TON Connect payload sent by the client
type ConnectRequest struct {
	Account ton.WalletAccount `json:"account"`
	Proof   ton.ConnectProof  `json:"proof"`
}

// StatusFunc is called after every connect and disconnect
type StatusFunc func(userID string, connected bool, address string)

// SessionStore keeps linked wallets. Get returns nil, nil when the user has none.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*domain.WalletConnection, error)
	Put(ctx context.Context, conn domain.WalletConnection) error
	Delete(ctx context.Context, userID string) error
	OwnerOf(ctx context.Context, rawAddress string) (string, error)
}

// Manager links TON wallets to users
type Manager struct {
	sessions      SessionStore
	allowedDomain string
	skipProof     bool
	now           func() time.Time

	mu        sync.RWMutex
	listeners []StatusFunc
}

type Option func(*Manager)

// WithoutProof trusts the client (DEV_MODE)
func WithoutProof() Option { return func(m *Manager) { m.skipProof = true } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(sessions SessionStore, allowedDomain string, opts ...Option) *Manager {
	m := &Manager{sessions: sessions, allowedDomain: allowedDomain, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// OnStatusChange registers a listener
func (m *Manager) OnStatusChange(fn StatusFunc) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) notify(userID string, connected bool, address string) {
	m.mu.RLock()
	ls := append([]StatusFunc(nil), m.listeners...)
	m.mu.RUnlock()
	for _, fn := range ls {
		fn(userID, connected, address)
	}
}

// Connect verifies the proof and links the wallet, replacing any previous link of this user
func (m *Manager) Connect(ctx context.Context, userID string, req ConnectRequest) (*domain.WalletConnection, error) {
	raw, err := ton.NormalizeAddress(req.Account.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	owner, err := m.sessions.OwnerOf(ctx, raw)
	if err != nil {
		return nil, err
	}
	if owner != "" && owner != userID {
		return nil, ErrAddressTaken
	}

	if !m.skipProof {
		if err := ton.VerifyProof(req.Account, req.Proof, m.allowedDomain, m.now()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProofRejected, err)
		}
	}

	conn := domain.WalletConnection{
		UserID:             userID,
		Address:            req.Account.Address,
		RawAddress:         raw,
		LinkedAt:           m.now().UTC(),
		IsVerified:         !m.skipProof,
		LastProofTimestamp: req.Proof.Timestamp,
	}
	if err := m.sessions.Put(ctx, conn); err != nil {
		return nil, err
	}

	logger.Info("wallet connected", "user_id", userID, "address", raw, "verified", conn.IsVerified)
	m.notify(userID, true, conn.Address)
	return &conn, nil
}

func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	if err := m.sessions.Delete(ctx, userID); err != nil {
		return err
	}
	logger.Info("wallet disconnected", "user_id", userID)
	m.notify(userID, false, "")
	return nil
}

func (m *Manager) Connection(ctx context.Context, userID string) (*domain.WalletConnection, error) {
	return m.sessions.Get(ctx, userID)
}

func (m *Manager) IsConnected(ctx context.Context, userID string) (bool, error) {
	conn, err := m.sessions.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return conn != nil, nil
}

func (m *Manager) CurrentAddress(ctx context.Context, userID string) (string, error) {
	conn, err := m.sessions.Get(ctx, userID)
	if err != nil || conn == nil {
		return "", err
	}
	return conn.Address, nil
}
