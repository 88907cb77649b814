package models

// Message is the wire and CLI view of a registry record.
type Message struct {
	ID        uint64 `json:"id"`
	Author    string `json:"author"`
	Recipient string `json:"recipient,omitempty"`
	Content   string `json:"content"`
	CreatedAt uint64 `json:"created_at"`
	IsRead    bool   `json:"is_read"`
}

// Snapshot is the message count recorded at a block height.
type Snapshot struct {
	Height uint64 `json:"height"`
	Count  uint64 `json:"count"`
}
