package loom

import "time"

// Thread represents one conversation. Only settled messages are appended;
// provisional streaming content never enters a Thread.
type Thread struct {
	ID        string
	Title     string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}
