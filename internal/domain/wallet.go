package domain

import "time"

// WalletConnection represents a linked TON wallet session
type WalletConnection struct {
	UserID             string    `json:"user_id"`
	Address            string    `json:"address"`
	RawAddress         string    `json:"raw_address,omitempty"`
	LinkedAt           time.Time `json:"linked_at"`
	IsVerified         bool      `json:"is_verified"`
	LastProofTimestamp int64     `json:"last_proof_timestamp,omitempty"`
}

// WithdrawRequest represents a withdrawal request from user
type WithdrawRequest struct {
	Currency Currency `json:"currency" binding:"required"`
	Amount   string   `json:"amount" binding:"required"`
}
