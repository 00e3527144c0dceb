package mock

import (
	"context"
	"io"
	"sync"

	"github.com/loomlabs/loom"
)

// Interface compliance check.
var _ loom.ChunkStream = (*ChunkStream)(nil)

// ChunkStream is a test double for loom.ChunkStream.
// NextFn panics when nil to catch missing setup. CharsetFn and CloseFn are
// nil-safe (empty charset, no-op close) because most tests don't need them.
type ChunkStream struct {
	NextFn    func() ([]byte, error)
	CharsetFn func() string
	CloseFn   func() error
}

// Next delegates to NextFn.
func (s *ChunkStream) Next() ([]byte, error) {
	return s.NextFn()
}

// Charset delegates to CharsetFn. Returns "" when CharsetFn is nil.
func (s *ChunkStream) Charset() string {
	if s.CharsetFn == nil {
		return ""
	}
	return s.CharsetFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *ChunkStream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Script returns a ChunkStream that yields the given chunks in order and
// then io.EOF. The returned stream honors ctx: once cancelled, Next
// resolves to context.Canceled instead of further chunks.
func Script(ctx context.Context, chunks ...[]byte) *ChunkStream {
	var mu sync.Mutex
	i := 0
	return &ChunkStream{
		NextFn: func() ([]byte, error) {
			if ctx != nil && ctx.Err() != nil {
				return nil, context.Canceled
			}
			mu.Lock()
			defer mu.Unlock()
			if i >= len(chunks) {
				return nil, io.EOF
			}
			c := chunks[i]
			i++
			return c, nil
		},
	}
}

// Blocking returns a ChunkStream that yields the given chunks and then
// blocks until ctx is cancelled, at which point Next resolves to
// context.Canceled. It models a stalled transport for cancellation tests.
func Blocking(ctx context.Context, chunks ...[]byte) *ChunkStream {
	var mu sync.Mutex
	i := 0
	return &ChunkStream{
		NextFn: func() ([]byte, error) {
			mu.Lock()
			if i < len(chunks) {
				c := chunks[i]
				i++
				mu.Unlock()
				return c, nil
			}
			mu.Unlock()
			<-ctx.Done()
			return nil, context.Canceled
		},
	}
}
