package ws

// client → server
type AdResultPayload struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"` // unsupported | timeout | closed_early | sdk_failure
}

// server → client
type PlayAdPayload struct {
	RequestID string `json:"request_id"`
	AdType    string `json:"ad_type"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
