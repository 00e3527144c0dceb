package transport

import (
	"context"
	"io"
	"sync"

	"github.com/loomlabs/loom"
)

// Interface compliance check.
var _ loom.ChunkStream = (*chunkStream)(nil)

// chunkStream implements [loom.ChunkStream] over an HTTP response body.
// Read failures after the opening context has been cancelled are reported
// as context.Canceled, never as the underlying connection error, so aborts
// are distinguishable from transport faults.
type chunkStream struct {
	ctx     context.Context
	body    io.ReadCloser
	charset string

	closeOnce sync.Once
	closeErr  error
}

const chunkSize = 4096

func newChunkStream(ctx context.Context, body io.ReadCloser, charset string) *chunkStream {
	return &chunkStream{
		ctx:     ctx,
		body:    body,
		charset: charset,
	}
}

// Next reads the next chunk of bytes. It returns io.EOF at end-of-stream
// and context.Canceled once the opening context has been cancelled.
func (s *chunkStream) Next() ([]byte, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, context.Canceled
	}

	buf := make([]byte, chunkSize)
	n, err := s.body.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	if err != io.EOF && s.ctx.Err() != nil {
		return nil, context.Canceled
	}
	return nil, err
}

// Charset reports the encoding declared by the response Content-Type.
func (s *chunkStream) Charset() string { return s.charset }

// Close closes the response body. Idempotent.
func (s *chunkStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
