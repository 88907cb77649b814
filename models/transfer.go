package models

// Transfer is one observable fungible-asset transfer event.
type Transfer struct {
	EventID   string `json:"event_id"`
	CallID    string `json:"call_id,omitempty"`
	Asset     string `json:"asset"`
	Amount    uint64 `json:"amount"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
}
