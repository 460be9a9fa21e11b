package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType - тип записи в журнале
type TransactionType string

const (
	TransactionTypeWithdrawal  TransactionType = "withdrawal"
	TransactionTypeCreditClaim TransactionType = "credit_claim"
)

// TransactionStatus меняется pending -> completed|failed ровно один раз
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

const (
	FieldTxStatus     = "status"
	FieldTxResolvedAt = "resolvedAt"
	FieldTxRefunded   = "refunded"
	FieldTxTimestamp  = "timestamp"

	// числовой ключ сортировки, строки RFC3339Nano внутри секунды сортируются неверно
	FieldTxOrderKey = "timestampMicros"
)

// TransactionRecord - запись журнала под документом пользователя
type TransactionRecord struct {
	TxID         string            `json:"txId"`
	UserID       string            `json:"userId"`
	Type         TransactionType   `json:"type"`
	Amount       decimal.Decimal   `json:"amount"`
	USDTAmount   decimal.Decimal   `json:"usdtAmount"`
	CreditsSpent int64             `json:"creditsSpent,omitempty"`
	Currency     Currency          `json:"currency"`
	Fee          decimal.Decimal   `json:"fee"`
	Status       TransactionStatus `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	TimestampUs  int64             `json:"timestampMicros"`
	Destination  string            `json:"destination,omitempty"`
	ResolvedAt   *time.Time        `json:"resolvedAt,omitempty"`
	Refunded     bool              `json:"refunded"`
}

// SetTimestamp sets the creation time and its numeric order key
func (t *TransactionRecord) SetTimestamp(at time.Time) {
	t.Timestamp = at
	t.TimestampUs = at.UnixMicro()
}

// Total is what was deducted from the balance
func (t *TransactionRecord) Total() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}

// IsPending reports whether the record still waits for resolution
func (t *TransactionRecord) IsPending() bool {
	return t.Status == TransactionStatusPending
}
