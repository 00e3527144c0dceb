package loom

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Callbacks receive the engine's output for one session. All three are
// invoked sequentially on the session's single consumer goroutine, never
// concurrently with each other. Exactly one terminal callback (OnSettled
// or OnFailed) fires per session; a cancelled session fires neither.
// Nil callbacks are skipped.
type Callbacks struct {
	// OnUpdate receives the full accumulated text after each applied delta.
	OnUpdate func(text string)
	// OnSettled receives the frozen assistant message once a completion
	// frame arrives.
	OnSettled func(msg AssistantMessage)
	// OnFailed receives the reason for a Failed transition: a *ServerError
	// for a server-declared error_message, or the transport failure.
	OnFailed func(err error)
}

// Engine drives streaming exchanges against a Transport and reduces the
// decoded frames into messages. At most one StreamSession is active at a
// time: starting a new exchange first cancels any existing session, before
// the new session's first read.
type Engine struct {
	transport Transport
	logger    zerolog.Logger

	mu     sync.Mutex
	active *StreamSession
	seq    int64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for frame anomalies and state
// transitions. Defaults to a no-op logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine using the given transport.
func NewEngine(t Transport, opts ...EngineOption) *Engine {
	e := &Engine{
		transport: t,
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start begins a new streaming exchange. Any previously active session is
// cancelled and its consumer goroutine joined before the new session is
// created, so none of the old session's callbacks can fire once Start
// returns. The join is bounded: cancellation makes the old session's
// pending read resolve immediately. Validation failures are returned
// immediately; everything after that — opening the transport, decoding,
// reduction — happens on the session's consumer goroutine and is reported
// through cb.
func (e *Engine) Start(ctx context.Context, req Request, cb Callbacks) (*StreamSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	prev := e.active
	if prev != nil {
		prev.Cancel()
	}
	e.mu.Unlock()

	if prev != nil {
		<-prev.Done()
	}

	e.mu.Lock()
	e.seq++
	s := newStreamSession(ctx, e.seq, req.ThreadID)
	e.active = s
	e.mu.Unlock()

	go e.run(s, req, cb)
	return s, nil
}

// Stop cancels the active session, if any. Cancellation is the expected
// path when the user stops generation or switches conversation; it never
// surfaces as an error and fires no terminal callback.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		e.active.Cancel()
	}
}

// run is the single consumer task for one session: it reads chunks,
// decodes frames, and applies them until a terminal state is reached.
func (e *Engine) run(s *StreamSession, req Request, cb Callbacks) {
	// Cleanup runs exactly once regardless of which terminal path was taken.
	defer e.finish(s)

	stream, err := e.transport.Open(s.ctx, req)
	if err != nil {
		if s.cancelled() {
			s.setState(StateAborted)
			return
		}
		e.fail(s, cb, err)
		return
	}
	defer stream.Close()

	s.setState(StateStreaming)
	e.logger.Debug().Str("thread_id", s.threadID).Str("provisional_id", s.provisionalID).Msg("stream started")

	dec := NewDecoder(stream.Charset(), e.logger)
	for {
		chunk, err := stream.Next()
		if err != nil {
			if errors.Is(err, context.Canceled) || s.cancelled() {
				s.setState(StateAborted)
				return
			}
			if err == io.EOF {
				// Transport closed without a completion frame.
				err = ErrTruncatedStream
			}
			e.fail(s, cb, err)
			return
		}

		for _, f := range dec.Decode(chunk) {
			if s.cancelled() {
				s.setState(StateAborted)
				return
			}
			if done := e.apply(s, f, cb); done {
				return
			}
		}
	}
}

// apply reduces one frame into the session. It returns true when the
// session reached a terminal state.
func (e *Engine) apply(s *StreamSession, f Frame, cb Callbacks) bool {
	// Frames for other conversations are discarded without mutating the
	// accumulation buffer. session_id is informational only.
	if f.ThreadID != s.threadID {
		e.logger.Debug().Str("frame_thread_id", f.ThreadID).Str("thread_id", s.threadID).Msg("discarding out-of-thread frame")
		return false
	}

	if f.ErrorMessage != "" {
		e.fail(s, cb, &ServerError{Message: f.ErrorMessage})
		return true
	}

	switch f.Kind {
	case FrameDelta:
		s.buf.WriteString(f.TextDelta)
		if f.HasArtifact {
			s.hasArtifact = true
		}
		if cb.OnUpdate != nil {
			cb.OnUpdate(s.buf.String())
		}
		return false

	case FrameCompletion:
		msg := AssistantMessage{
			ID:          uuid.NewString(),
			Text:        s.buf.String(),
			HasArtifact: s.hasArtifact || f.HasArtifact,
			Timestamp:   time.Now(),
		}
		s.setState(StateSettled)
		e.logger.Debug().Str("thread_id", s.threadID).Int("len", len(msg.Text)).Msg("stream settled")
		if cb.OnSettled != nil {
			cb.OnSettled(msg)
		}
		return true

	default:
		return false
	}
}

func (e *Engine) fail(s *StreamSession, cb Callbacks, err error) {
	s.setState(StateFailed)
	e.logger.Warn().Err(err).Str("thread_id", s.threadID).Msg("stream failed")
	if cb.OnFailed != nil {
		cb.OnFailed(err)
	}
}

// finish clears provisional state and detaches the cancellation handle.
func (e *Engine) finish(s *StreamSession) {
	e.mu.Lock()
	if e.active == s {
		e.active = nil
	}
	e.mu.Unlock()
	s.buf.Reset()
	s.cancel()
	close(s.done)
}
