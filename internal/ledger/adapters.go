package ledger

import (
	"context"
	"fmt"

	"rewards_webapp/internal/domain"
)

// AdFailure tells why an ad did not play to completion
type AdFailure string

const (
	AdUnsupported AdFailure = "unsupported"
	AdTimeout     AdFailure = "timeout"
	AdClosedEarly AdFailure = "closed_early"
	AdSDKFailure  AdFailure = "sdk_failure"
)

// AdError is returned by an AdPlayer when playback did not complete
type AdError struct {
	Reason AdFailure
	Err    error
}

func (e *AdError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ad %s: %v", e.Reason, e.Err)
	}
	return "ad " + string(e.Reason)
}

func (e *AdError) Unwrap() error { return e.Err }

// AutoAdSettings configures the client-side automatic ad scheduler
type AutoAdSettings struct {
	Frequency           int `json:"frequency"`
	IntervalSeconds     int `json:"intervalSeconds"`
	SessionCapHours     int `json:"sessionCapHours"`
	FirstAdDelaySeconds int `json:"firstAdDelaySeconds"`
}

// AdPlayer plays an ad for a user. PlayAd returns nil only when the ad was
// watched to the end; it must honour ctx cancellation.
type AdPlayer interface {
	PlayAd(ctx context.Context, userID, adType string) error
	InitializeAutomaticAds(userID string, settings AutoAdSettings)
}

// Wallet reports the linked withdrawal destination of a user
type Wallet interface {
	IsConnected(ctx context.Context, userID string) (bool, error)
	CurrentAddress(ctx context.Context, userID string) (string, error)
}

// Analytics receives fire-and-forget events. Track must not block.
type Analytics interface {
	Track(ctx context.Context, name, userID string, payload map[string]any)
}

// Notifier is told about withdrawal lifecycle changes (admin bot)
type Notifier interface {
	WithdrawalChanged(rec domain.TransactionRecord)
}

type nopAnalytics struct{}

func (nopAnalytics) Track(context.Context, string, string, map[string]any) {}
