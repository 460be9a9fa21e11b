package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"rewards_webapp/internal/domain"

	"github.com/shopspring/decimal"
)

const testAddress = "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t"

func TestWithdrawalDeductsImmediatelyAndResolvesOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.wallet.address = testAddress
	f.seed(t, "1", func(l *domain.LedgerDocument) { l.USDT = decimal.NewFromInt(10) })
	ctx := context.Background()

	rec, err := f.session("1").InitiateWithdrawal(ctx, domain.CurrencyUSDT, decimal.NewFromInt(5))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !rec.IsPending() || rec.Destination != testAddress || !rec.Fee.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if l := f.ledger(t, "1"); !l.USDT.Equal(decimal.RequireFromString("4.9")) {
		t.Fatalf("expected usdt 4.9, got %s", l.USDT)
	}

	txs, err := f.engine.Transactions(ctx, "1", 10)
	if err != nil || len(txs) != 1 || txs[0].Status != domain.TransactionStatusPending {
		t.Fatalf("pending record missing: %+v %v", txs, err)
	}

	resolved, ok, err := f.engine.ResolveWithdrawal(ctx, "1", rec.TxID)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if resolved.Status != domain.TransactionStatusCompleted {
		t.Fatalf("r=0.5 with rate 0.9 must complete, got %s", resolved.Status)
	}

	f.rnd.set(0.99)
	if _, ok, err := f.engine.ResolveWithdrawal(ctx, "1", rec.TxID); err != nil || ok {
		t.Fatalf("second resolve must be a no-op: ok=%v err=%v", ok, err)
	}

	txs, _ = f.engine.Transactions(ctx, "1", 10)
	if txs[0].Status != domain.TransactionStatusCompleted || txs[0].ResolvedAt == nil {
		t.Fatalf("status changed twice: %+v", txs[0])
	}
	if l := f.ledger(t, "1"); !l.USDT.Equal(decimal.RequireFromString("4.9")) {
		t.Fatalf("resolution must not touch the balance, got %s", l.USDT)
	}
}

func TestWithdrawalRequiresWallet(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", func(l *domain.LedgerDocument) { l.USDT = decimal.NewFromInt(10) })

	_, err := f.session("1").InitiateWithdrawal(context.Background(), domain.CurrencyUSDT, decimal.NewFromInt(5))
	if !errors.Is(err, ErrWalletNotConnected) {
		t.Fatalf("expected WalletNotConnected, got %v", err)
	}
}

func TestWithdrawalWalletFailureIsAdapterError(t *testing.T) {
	f := newFixture(t, nil)
	f.wallet.err = errors.New("redis: connection refused")
	f.seed(t, "1", func(l *domain.LedgerDocument) { l.USDT = decimal.NewFromInt(10) })

	_, err := f.session("1").InitiateWithdrawal(context.Background(), domain.CurrencyUSDT, decimal.NewFromInt(5))
	if KindOf(err) != KindAdapter {
		t.Fatalf("expected adapter error, got %v", err)
	}
}

func TestWithdrawalValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.wallet.address = testAddress
	f.seed(t, "1", func(l *domain.LedgerDocument) { l.TON = decimal.NewFromInt(1) })
	s := f.session("1")
	ctx := context.Background()

	if _, err := s.InitiateWithdrawal(ctx, domain.CurrencyTON, decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected InvalidAmount, got %v", err)
	}
	if _, err := s.InitiateWithdrawal(ctx, "BTC", decimal.NewFromInt(1)); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected UnsupportedCurrency, got %v", err)
	}
	// 1 TON + 0.05 комиссии > 1
	if _, err := s.InitiateWithdrawal(ctx, domain.CurrencyTON, decimal.NewFromInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	if l := f.ledger(t, "1"); !l.TON.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("balance changed on rejected withdrawal: %s", l.TON)
	}
}

func TestRefundOnlyFailedWithdrawals(t *testing.T) {
	f := newFixture(t, nil)
	f.wallet.address = testAddress
	f.seed(t, "1", func(l *domain.LedgerDocument) { l.USDT = decimal.NewFromInt(10) })
	ctx := context.Background()
	s := f.session("1")

	rec, err := s.InitiateWithdrawal(ctx, domain.CurrencyUSDT, decimal.NewFromInt(5))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := f.engine.RefundWithdrawal(ctx, "1", rec.TxID); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("pending withdrawal must not be refundable, got %v", err)
	}

	f.rnd.set(0.95)
	resolved, _, err := f.engine.ResolveWithdrawal(ctx, "1", rec.TxID)
	if err != nil || resolved.Status != domain.TransactionStatusFailed {
		t.Fatalf("expected failed resolution: %+v %v", resolved, err)
	}
	if l := f.ledger(t, "1"); !l.USDT.Equal(decimal.RequireFromString("4.9")) {
		t.Fatalf("failed withdrawal must not refund automatically, got %s", l.USDT)
	}

	if _, err := f.engine.RefundWithdrawal(ctx, "1", rec.TxID); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if l := f.ledger(t, "1"); !l.USDT.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected usdt 10 after refund, got %s", l.USDT)
	}
	if _, err := f.engine.RefundWithdrawal(ctx, "1", rec.TxID); !errors.Is(err, ErrAlreadyRefunded) {
		t.Fatalf("expected AlreadyRefunded, got %v", err)
	}
	if _, err := f.engine.RefundWithdrawal(ctx, "1", "missing"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected TransactionNotFound, got %v", err)
	}
}

func TestSweepResolvesStalePending(t *testing.T) {
	f := newFixture(t, nil)
	f.wallet.address = testAddress
	f.seed(t, "1", func(l *domain.LedgerDocument) { l.USDT = decimal.NewFromInt(10) })
	f.seed(t, "2", func(l *domain.LedgerDocument) { l.TON = decimal.NewFromInt(10) })
	ctx := context.Background()

	if _, err := f.session("1").InitiateWithdrawal(ctx, domain.CurrencyUSDT, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("withdraw 1: %v", err)
	}
	f.clock.Advance(2 * time.Hour)
	if _, err := f.session("2").InitiateWithdrawal(ctx, domain.CurrencyTON, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("withdraw 2: %v", err)
	}

	pending, err := f.engine.PendingWithdrawals(ctx, 0)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d %v", len(pending), err)
	}

	n, err := f.engine.SweepWithdrawals(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("only the old withdrawal is due, resolved %d", n)
	}
	pending, _ = f.engine.PendingWithdrawals(ctx, 0)
	if len(pending) != 1 || pending[0].UserID != "2" {
		t.Fatalf("unexpected pending after sweep %+v", pending)
	}
}

func TestResolutionTimerFires(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.rules.WithdrawResolveDelay = 10 * time.Millisecond
	f.wallet.address = testAddress
	f.seed(t, "1", func(l *domain.LedgerDocument) { l.USDT = decimal.NewFromInt(10) })
	ctx := context.Background()

	if _, err := f.session("1").InitiateWithdrawal(ctx, domain.CurrencyUSDT, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		txs, err := f.engine.Transactions(ctx, "1", 1)
		if err == nil && len(txs) == 1 && !txs[0].IsPending() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("withdrawal was not resolved by the timer")
}

func TestTransactionsOrderWithinOneSecond(t *testing.T) {
	f := newFixture(t, nil)
	f.wallet.address = testAddress
	f.seed(t, "1", func(l *domain.LedgerDocument) { l.USDT = decimal.NewFromInt(100) })
	s := f.session("1")
	ctx := context.Background()

	// .1, .12, .15: в RFC3339Nano дробная часть разной длины
	var last *domain.TransactionRecord
	for _, step := range []time.Duration{100, 20, 30} {
		f.clock.Advance(step * time.Millisecond)
		rec, err := s.InitiateWithdrawal(ctx, domain.CurrencyUSDT, decimal.NewFromInt(1))
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		last = rec
	}
	if last.TimestampUs != last.Timestamp.UnixMicro() {
		t.Fatalf("order key not set: %+v", last)
	}

	raw, err := f.store.Get(ctx, TransactionRef("1", last.TxID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := raw[domain.FieldTxOrderKey].(json.Number); !ok {
		t.Fatalf("order key must be stored as a number, got %T", raw[domain.FieldTxOrderKey])
	}

	txs, err := f.engine.Transactions(ctx, "1", 1)
	if err != nil || len(txs) != 1 || txs[0].TxID != last.TxID {
		t.Fatalf("expected newest record on the first page, got %+v %v", txs, err)
	}
}
