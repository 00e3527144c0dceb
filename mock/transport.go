package mock

import (
	"context"

	"github.com/loomlabs/loom"
)

// Interface compliance check.
var _ loom.Transport = (*Transport)(nil)

// Transport is a test double for loom.Transport.
// Set OpenFn for the behavior you need; it panics when nil to catch
// missing setup.
type Transport struct {
	OpenFn func(ctx context.Context, req loom.Request) (loom.ChunkStream, error)
}

// Open delegates to OpenFn.
func (t *Transport) Open(ctx context.Context, req loom.Request) (loom.ChunkStream, error) {
	return t.OpenFn(ctx, req)
}
