package ws

import "encoding/json"

const (
	// client - server
	MsgAdResult = "ad_result"
	MsgPing     = "ping"

	// server - client
	MsgReady      = "ready"
	MsgPong       = "pong"
	MsgLedger     = "ledger"
	MsgPlayAd     = "play_ad"
	MsgAutoAds    = "auto_ads"
	MsgWithdrawal = "withdrawal"
	MsgError      = "error"
)

// Message is the envelope for everything sent to the client
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// inbound is the envelope for client messages, payload decoded by the handler
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
