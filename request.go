package loom

import "fmt"

// Request carries one outbound streaming exchange: the user's message and
// the thread/session identity the response stream is scoped to.
type Request struct {
	Message   string // outbound message text
	ThreadID  string // target conversation; authoritative filter key for inbound frames
	SessionID string // caller-scoped session id; informational on inbound frames
}

// Validate checks universal constraints on Request.
func (r Request) Validate() error {
	if r.Message == "" {
		return fmt.Errorf("message must not be empty: %w", ErrValidation)
	}
	if r.ThreadID == "" {
		return fmt.Errorf("thread id must not be empty: %w", ErrValidation)
	}
	return nil
}
