package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rewards_webapp/internal/store"
)

// Kind groups failures by how a caller should react to them
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindAdapter
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAdapter:
		return "adapter"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Reason is a stable machine-readable failure code
type Reason string

const (
	ReasonAlreadyClaimed      Reason = "already_claimed"
	ReasonQuestNotReady       Reason = "quest_not_ready"
	ReasonQuestLimitReached   Reason = "quest_limit_reached"
	ReasonAdCooldown          Reason = "ad_cooldown"
	ReasonAdInProgress        Reason = "ad_in_progress"
	ReasonNotManual           Reason = "not_manually_triggerable"
	ReasonInvalidQuest        Reason = "invalid_quest"
	ReasonUnknownChest        Reason = "unknown_chest"
	ReasonInsufficientVip     Reason = "insufficient_vip"
	ReasonInsufficientFunds   Reason = "insufficient_funds"
	ReasonInsufficientCredits Reason = "insufficient_credits"
	ReasonInvalidAmount       Reason = "invalid_amount"
	ReasonUnsupportedCurrency Reason = "unsupported_currency"
	ReasonWalletNotConnected  Reason = "wallet_not_connected"
	ReasonTransactionNotFound Reason = "transaction_not_found"
	ReasonNotRefundable       Reason = "not_refundable"
	ReasonAlreadyRefunded     Reason = "already_refunded"
	ReasonLedgerMissing       Reason = "ledger_missing"
	ReasonConflict            Reason = "conflict"
	ReasonAdPlaybackFailed    Reason = "ad_playback_failed"
	ReasonWalletFailed        Reason = "wallet_failed"
	ReasonLedgerUnreachable   Reason = "ledger_unreachable"
	ReasonStoreUnavailable    Reason = "store_unavailable"
)

// Error is returned by every engine operation
type Error struct {
	Kind      Kind
	Reason    Reason
	Message   string
	Remaining time.Duration // для кулдаунов
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Reason so the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

var (
	ErrAlreadyClaimed         = &Error{Kind: KindValidation, Reason: ReasonAlreadyClaimed, Message: "reward already claimed"}
	ErrQuestNotReady          = &Error{Kind: KindValidation, Reason: ReasonQuestNotReady, Message: "quest is not completed yet"}
	ErrQuestLimitReached      = &Error{Kind: KindValidation, Reason: ReasonQuestLimitReached, Message: "all ads for this quest are watched"}
	ErrCooldown               = &Error{Kind: KindValidation, Reason: ReasonAdCooldown, Message: "ad type is cooling down"}
	ErrAdInProgress           = &Error{Kind: KindValidation, Reason: ReasonAdInProgress, Message: "an ad of this type is already playing"}
	ErrNotManuallyTriggerable = &Error{Kind: KindValidation, Reason: ReasonNotManual, Message: "this ad type plays automatically"}
	ErrInvalidQuest           = &Error{Kind: KindValidation, Reason: ReasonInvalidQuest, Message: "invalid quest"}
	ErrUnknownChest           = &Error{Kind: KindValidation, Reason: ReasonUnknownChest, Message: "unknown chest"}
	ErrInsufficientVip        = &Error{Kind: KindValidation, Reason: ReasonInsufficientVip, Message: "vip level too low"}
	ErrInsufficientFunds      = &Error{Kind: KindValidation, Reason: ReasonInsufficientFunds, Message: "insufficient funds"}
	ErrInsufficientCredits    = &Error{Kind: KindValidation, Reason: ReasonInsufficientCredits, Message: "insufficient referral credits"}
	ErrInvalidAmount          = &Error{Kind: KindValidation, Reason: ReasonInvalidAmount, Message: "invalid amount"}
	ErrUnsupportedCurrency    = &Error{Kind: KindValidation, Reason: ReasonUnsupportedCurrency, Message: "unsupported currency"}
	ErrWalletNotConnected     = &Error{Kind: KindValidation, Reason: ReasonWalletNotConnected, Message: "wallet not connected"}
	ErrTransactionNotFound    = &Error{Kind: KindValidation, Reason: ReasonTransactionNotFound, Message: "transaction not found"}
	ErrNotRefundable          = &Error{Kind: KindValidation, Reason: ReasonNotRefundable, Message: "only failed withdrawals can be refunded"}
	ErrAlreadyRefunded        = &Error{Kind: KindValidation, Reason: ReasonAlreadyRefunded, Message: "withdrawal already refunded"}
	ErrLedgerMissing          = &Error{Kind: KindValidation, Reason: ReasonLedgerMissing, Message: "ledger not initialized"}
	ErrTransactionConflict    = &Error{Kind: KindConflict, Reason: ReasonConflict, Message: "too many concurrent updates, try again"}
	ErrAdPlaybackFailed       = &Error{Kind: KindAdapter, Reason: ReasonAdPlaybackFailed, Message: "ad playback failed"}
	ErrWalletFailed           = &Error{Kind: KindAdapter, Reason: ReasonWalletFailed, Message: "wallet service failed"}
	ErrLedgerUnreachable      = &Error{Kind: KindUnavailable, Reason: ReasonLedgerUnreachable, Message: "ledger is unreachable"}
	ErrStoreUnavailable       = &Error{Kind: KindUnavailable, Reason: ReasonStoreUnavailable, Message: "store unavailable"}
)

// fail copies a sentinel with a user-facing message
func fail(base *Error, format string, args ...any) *Error {
	e := *base
	e.Message = fmt.Sprintf(format, args...)
	return &e
}

func wrap(base *Error, err error) *Error {
	e := *base
	e.Err = err
	return &e
}

func cooldown(remaining time.Duration) *Error {
	e := fail(ErrCooldown, "Please wait %s before watching this ad type again", formatRemaining(remaining))
	e.Remaining = remaining
	return e
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Second {
		d = time.Second
	}
	return d.String()
}

// classify maps store and context errors to engine errors
func classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return wrap(ErrLedgerMissing, err)
	case errors.Is(err, store.ErrConflict):
		return wrap(ErrTransactionConflict, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	// ErrUnavailable, дедлайны и всё прочее от драйвера
	return wrap(ErrStoreUnavailable, err)
}

// KindOf returns the kind of an engine error, zero for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ReasonOf returns the reason code of an engine error
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
