package ledger

import (
	"context"
	"errors"
	"time"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InitiateWithdrawal deducts amount+fee and records a pending withdrawal to
// the linked wallet. The status is resolved later; the deduction is never
// rolled back automatically.
func (s *Session) InitiateWithdrawal(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (*domain.TransactionRecord, error) {
	start := time.Now()
	if err := s.begin(); err != nil {
		return nil, err
	}
	field, ok := domain.BalanceField(currency)
	if !ok {
		return nil, s.finish(ctx, "withdraw", start, fail(ErrUnsupportedCurrency, "Currency %q is not supported", currency))
	}
	if !amount.IsPositive() {
		return nil, s.finish(ctx, "withdraw", start, fail(ErrInvalidAmount, "Amount must be greater than zero"))
	}

	address, err := s.destination(ctx)
	if err != nil {
		return nil, s.finish(ctx, "withdraw", start, err)
	}

	fee := s.e.rules.Fee(currency)
	total := amount.Add(fee)
	now := s.e.now()
	rec := domain.TransactionRecord{
		TxID:        uuid.NewString(),
		UserID:      s.userID,
		Type:        domain.TransactionTypeWithdrawal,
		Amount:      amount,
		Currency:    currency,
		Fee:         fee,
		Status:      domain.TransactionStatusPending,
		Destination: address,
	}
	rec.SetTimestamp(now)
	if currency == domain.CurrencyUSDT {
		rec.USDTAmount = amount
	}
	recDoc, err := store.Encode(rec)
	if err != nil {
		return nil, s.finish(ctx, "withdraw", start, err)
	}

	ref := LedgerRef(s.userID)
	err = s.e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := loadLedger(ctx, tx, ref)
		if err != nil {
			return err
		}
		if bal := l.Balance(currency); bal.LessThan(total) {
			return fail(ErrInsufficientFunds, "Insufficient %s: need %s (incl. fee %s), have %s",
				currency, total.String(), fee.String(), bal.String())
		}
		if err := tx.Update(ctx, ref, store.Updates{field: store.IncrementDecimal(total.Neg())}); err != nil {
			return err
		}
		return tx.Set(ctx, TransactionRef(s.userID, rec.TxID), recDoc, false)
	})
	if err != nil {
		return nil, s.finish(ctx, "withdraw", start, err)
	}

	s.e.scheduleResolution(s.userID, rec.TxID)
	s.e.track(ctx, domain.EventWithdrawalInitiated, s.userID, map[string]any{
		"tx_id":    rec.TxID,
		"currency": string(currency),
		"amount":   amount.String(),
		"fee":      fee.String(),
	})
	if s.e.notifier != nil {
		s.e.notifier.WithdrawalChanged(rec)
	}
	return &rec, s.finish(ctx, "withdraw", start, nil)
}

func (s *Session) destination(ctx context.Context) (string, error) {
	if s.e.wallet == nil {
		return "", fail(ErrWalletNotConnected, "Connect a wallet before withdrawing")
	}
	connected, err := s.e.wallet.IsConnected(ctx, s.userID)
	if err != nil {
		return "", wrap(ErrWalletFailed, err)
	}
	if !connected {
		return "", fail(ErrWalletNotConnected, "Connect a wallet before withdrawing")
	}
	address, err := s.e.wallet.CurrentAddress(ctx, s.userID)
	if err != nil {
		return "", wrap(ErrWalletFailed, err)
	}
	if address == "" {
		return "", fail(ErrWalletNotConnected, "Wallet address is not available, reconnect your wallet")
	}
	return address, nil
}

func (e *Engine) scheduleResolution(userID, txID string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	if e.closed {
		return
	}
	e.timers[txID] = time.AfterFunc(e.rules.WithdrawResolveDelay, func() {
		e.timersMu.Lock()
		delete(e.timers, txID)
		e.timersMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, _, err := e.ResolveWithdrawal(ctx, userID, txID); err != nil {
			e.log.WithField("tx_id", txID).WithError(err).Warn("withdrawal resolution failed, sweep will retry")
		}
	})
}

// ResolveWithdrawal moves a pending withdrawal to completed or failed. It
// reports false when the record was already resolved.
func (e *Engine) ResolveWithdrawal(ctx context.Context, userID, txID string) (*domain.TransactionRecord, bool, error) {
	start := time.Now()
	status := domain.TransactionStatusFailed
	if e.rnd.Chance(e.rules.WithdrawSuccessRate) {
		status = domain.TransactionStatusCompleted
	}
	now := e.now()
	ref := TransactionRef(userID, txID)

	var (
		rec      domain.TransactionRecord
		resolved bool
	)
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		resolved = false
		d, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		rec = domain.TransactionRecord{}
		if err := store.Decode(d, &rec); err != nil {
			return err
		}
		if !rec.IsPending() {
			return nil
		}
		resolved = true
		rec.Status = status
		rec.ResolvedAt = &now
		return tx.Update(ctx, ref, store.Updates{
			domain.FieldTxStatus:     string(status),
			domain.FieldTxResolvedAt: now,
		})
	})
	if errors.Is(err, store.ErrNotFound) {
		err = fail(ErrTransactionNotFound, "Transaction %s not found", txID)
	}
	err = classify(err)
	observe("resolve_withdrawal", start, err)
	if err != nil || !resolved {
		return nil, false, err
	}

	WithdrawalsResolved.WithLabelValues(string(status)).Inc()
	e.track(ctx, domain.EventWithdrawalResolved, userID, map[string]any{
		"tx_id":  txID,
		"status": string(status),
	})
	if e.notifier != nil {
		e.notifier.WithdrawalChanged(rec)
	}
	return &rec, true, nil
}

// SweepWithdrawals resolves pending withdrawals older than the resolve delay,
// catching records whose timer was lost on restart
func (e *Engine) SweepWithdrawals(ctx context.Context) (int, error) {
	pending, err := e.PendingWithdrawals(ctx, 0)
	if err != nil {
		return 0, err
	}
	cutoff := e.now().Add(-e.rules.WithdrawResolveDelay)

	n := 0
	for _, rec := range pending {
		if rec.Timestamp.After(cutoff) {
			continue
		}
		_, ok, err := e.ResolveWithdrawal(ctx, rec.UserID, rec.TxID)
		if err != nil {
			e.log.WithField("tx_id", rec.TxID).WithError(err).Warn("sweep: resolve failed")
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// PendingWithdrawals lists pending withdrawals of all users, oldest first
func (e *Engine) PendingWithdrawals(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	rows, err := e.store.Query(ctx, store.Query{
		Collection: CollectionTransactions,
		Group:      true,
		Where: []store.Filter{
			{Field: "type", Value: string(domain.TransactionTypeWithdrawal)},
			{Field: domain.FieldTxStatus, Value: string(domain.TransactionStatusPending)},
		},
		OrderBy: domain.FieldTxOrderKey,
		Limit:   limit,
	})
	if err != nil {
		return nil, classify(err)
	}
	return decodeRecords(rows)
}

// RefundWithdrawal re-credits a failed withdrawal. Admin only; refunds are
// never issued automatically.
func (e *Engine) RefundWithdrawal(ctx context.Context, userID, txID string) (*domain.TransactionRecord, error) {
	start := time.Now()
	txRef := TransactionRef(userID, txID)
	ref := LedgerRef(userID)

	var rec domain.TransactionRecord
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := tx.Get(ctx, txRef)
		if errors.Is(err, store.ErrNotFound) {
			return fail(ErrTransactionNotFound, "Transaction %s not found", txID)
		}
		if err != nil {
			return err
		}
		rec = domain.TransactionRecord{}
		if err := store.Decode(d, &rec); err != nil {
			return err
		}
		if rec.Type != domain.TransactionTypeWithdrawal || rec.Status != domain.TransactionStatusFailed {
			return fail(ErrNotRefundable, "Transaction %s is %s, only failed withdrawals can be refunded", txID, rec.Status)
		}
		if rec.Refunded {
			return ErrAlreadyRefunded
		}
		field, ok := domain.BalanceField(rec.Currency)
		if !ok {
			return fail(ErrUnsupportedCurrency, "Currency %q is not supported", rec.Currency)
		}
		if _, err := tx.Get(ctx, ref); err != nil {
			return err
		}
		if err := tx.Update(ctx, ref, store.Updates{field: store.IncrementDecimal(rec.Total())}); err != nil {
			return err
		}
		rec.Refunded = true
		return tx.Update(ctx, txRef, store.Updates{domain.FieldTxRefunded: true})
	})
	err = classify(err)
	observe("refund_withdrawal", start, err)
	if err != nil {
		return nil, err
	}
	if s, ok := e.Lookup(userID); ok {
		s.resync(ctx)
	}
	return &rec, nil
}

// Transactions returns a user's journal, newest first
func (e *Engine) Transactions(ctx context.Context, userID string, limit int) ([]domain.TransactionRecord, error) {
	rows, err := e.store.Query(ctx, store.Query{
		Collection: LedgerRef(userID).Path() + "/" + CollectionTransactions,
		OrderBy:    domain.FieldTxOrderKey,
		Desc:       true,
		Limit:      limit,
	})
	if err != nil {
		return nil, classify(err)
	}
	return decodeRecords(rows)
}

func decodeRecords(rows []store.Snapshot) ([]domain.TransactionRecord, error) {
	out := make([]domain.TransactionRecord, 0, len(rows))
	for _, r := range rows {
		var rec domain.TransactionRecord
		if err := store.Decode(r.Data, &rec); err != nil {
			return nil, err
		}
		if rec.TxID == "" {
			rec.TxID = r.Ref.ID
		}
		out = append(out, rec)
	}
	return out, nil
}
