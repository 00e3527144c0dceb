package loom

import "context"

// ChunkStream yields the raw byte chunks of one in-flight streaming
// response.
//
// Next() blocks until more bytes arrive, the transport closes, or the
// context the stream was opened with is cancelled. It returns io.EOF when
// the transport signals end-of-stream, and context.Canceled (never an
// unrelated transport error) once the opening context has been cancelled.
//
// Charset() reports the text encoding declared by the transport; empty
// means UTF-8.
//
// Close() releases the underlying connection. It is idempotent.
type ChunkStream interface {
	Next() ([]byte, error)
	Charset() string
	Close() error
}

// Transport opens long-lived streaming requests. Cancellation flows
// through the context: cancelling it makes any pending or future Next()
// call on the returned stream resolve to context.Canceled.
type Transport interface {
	Open(ctx context.Context, req Request) (ChunkStream, error)
}
