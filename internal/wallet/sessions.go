package wallet

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"rewards_webapp/internal/domain"

	redis "github.com/redis/go-redis/v9"
)

// MemorySessions is a process-local SessionStore for tests
type MemorySessions struct {
	mu    sync.Mutex
	conns map[string]domain.WalletConnection
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{conns: map[string]domain.WalletConnection{}}
}

func (s *MemorySessions) Get(_ context.Context, userID string) (*domain.WalletConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemorySessions) Put(_ context.Context, conn domain.WalletConnection) error {
	s.mu.Lock()
	s.conns[conn.UserID] = conn
	s.mu.Unlock()
	return nil
}

func (s *MemorySessions) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.conns, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessions) OwnerOf(_ context.Context, raw string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, c := range s.conns {
		if c.RawAddress == raw {
			return uid, nil
		}
	}
	return "", nil
}

// RedisSessions keeps one hash per user and an owner key per raw address,
// both expiring after ttl
type RedisSessions struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessions(rdb *redis.Client, ttl time.Duration) *RedisSessions {
	return &RedisSessions{rdb: rdb, ttl: ttl}
}

func sessionKey(userID string) string { return "wallet:session:" + userID }
func ownerKey(raw string) string      { return "wallet:owner:" + raw }

func (s *RedisSessions) Get(ctx context.Context, userID string) (*domain.WalletConnection, error) {
	m, err := s.rdb.HGetAll(ctx, sessionKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	conn := &domain.WalletConnection{
		UserID:     userID,
		Address:    m["address"],
		RawAddress: m["raw_address"],
		IsVerified: m["is_verified"] == "1",
	}
	conn.LinkedAt, _ = time.Parse(time.RFC3339, m["linked_at"])
	conn.LastProofTimestamp, _ = strconv.ParseInt(m["last_proof_timestamp"], 10, 64)
	return conn, nil
}

func (s *RedisSessions) Put(ctx context.Context, conn domain.WalletConnection) error {
	prev, err := s.Get(ctx, conn.UserID)
	if err != nil {
		return err
	}

	verified := "0"
	if conn.IsVerified {
		verified = "1"
	}
	key := sessionKey(conn.UserID)

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev != nil && prev.RawAddress != conn.RawAddress {
			p.Del(ctx, ownerKey(prev.RawAddress))
		}
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"address", conn.Address,
			"raw_address", conn.RawAddress,
			"linked_at", conn.LinkedAt.UTC().Format(time.RFC3339),
			"is_verified", verified,
			"last_proof_timestamp", strconv.FormatInt(conn.LastProofTimestamp, 10),
		)
		p.Set(ctx, ownerKey(conn.RawAddress), conn.UserID, s.ttl)
		if s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisSessions) Delete(ctx context.Context, userID string) error {
	prev, err := s.Get(ctx, userID)
	if err != nil || prev == nil {
		return err
	}
	return s.rdb.Del(ctx, sessionKey(userID), ownerKey(prev.RawAddress)).Err()
}

func (s *RedisSessions) OwnerOf(ctx context.Context, raw string) (string, error) {
	uid, err := s.rdb.Get(ctx, ownerKey(raw)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return uid, err
}
