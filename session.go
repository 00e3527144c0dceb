package loom

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// SessionState tracks a StreamSession through its lifecycle.
type SessionState int32

const (
	StateIdle      SessionState = iota // created, transport not yet open
	StateStreaming                     // receiving frames
	StateSettled                       // completion frame applied (terminal)
	StateAborted                       // cancelled; no terminal callback fired (terminal)
	StateFailed                        // error frame or transport failure (terminal)
)

// String returns the state name for logging.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateSettled:
		return "settled"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StreamSession represents one in-flight streaming exchange. It owns the
// cancellation handle and the accumulation buffer. The buffer is mutated
// only by the engine goroutine consuming this session's frames; it is
// append-only for the session's lifetime and inaccessible once the session
// reaches a terminal state.
type StreamSession struct {
	id            int64
	provisionalID string
	threadID      string

	buf         strings.Builder
	hasArtifact bool

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newStreamSession(ctx context.Context, id int64, threadID string) *StreamSession {
	sctx, cancel := context.WithCancel(ctx)
	s := &StreamSession{
		id:            id,
		provisionalID: fmt.Sprintf("streaming-%d", id),
		threadID:      threadID,
		ctx:           sctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	s.state.Store(int32(StateIdle))
	return s
}

// ProvisionalID returns the session-local identifier labelling the
// provisional message while it streams.
func (s *StreamSession) ProvisionalID() string { return s.provisionalID }

// State returns the session's current state.
func (s *StreamSession) State() SessionState {
	return SessionState(s.state.Load())
}

// Active reports whether the session has not yet reached a terminal state.
func (s *StreamSession) Active() bool {
	switch s.State() {
	case StateSettled, StateAborted, StateFailed:
		return false
	}
	return true
}

// Cancel requests cooperative cancellation. It is idempotent and never
// surfaces as an error: the consuming goroutine observes the cancellation
// at its next suspension point and exits without emitting callbacks.
func (s *StreamSession) Cancel() {
	s.cancel()
}

// Done is closed after the session reaches a terminal state and its
// cleanup has run.
func (s *StreamSession) Done() <-chan struct{} {
	return s.done
}

func (s *StreamSession) setState(st SessionState) {
	s.state.Store(int32(st))
}

// cancelled reports whether cancellation has been observed. Checked before
// every callback emission so no callback fires after Cancel.
func (s *StreamSession) cancelled() bool {
	return s.ctx.Err() != nil
}
