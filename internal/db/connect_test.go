package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"rewards_webapp/internal/config"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := retry(context.Background(), "x", 5, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("refused")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on 3rd call, got err=%v calls=%d", err, calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("refused")
	err := retry(context.Background(), "pg", 2, time.Millisecond, func(ctx context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 2 {
		t.Fatalf("expected wrapped error after 2 calls, got err=%v calls=%d", err, calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, "pg", 3, time.Hour, func(ctx context.Context) error { return errors.New("refused") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOpenMemoryStore(t *testing.T) {
	s, err := OpenStore(context.Background(), &config.Config{StoreDriver: config.StoreDriverMemory, StoreMaxAttempts: 3})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := OpenStore(context.Background(), &config.Config{StoreDriver: "sqlite"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestNewRedisEmptyAddr(t *testing.T) {
	if NewRedis(context.Background(), "", "", 0) != nil {
		t.Fatalf("empty addr must disable redis")
	}
}
