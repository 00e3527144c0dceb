package loom_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loomlabs/loom"
	"github.com/loomlabs/loom/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects callback invocations for assertions after the session
// reaches a terminal state.
type recorder struct {
	mu      sync.Mutex
	updates []string
	settled []loom.AssistantMessage
	failed  []error
}

func (r *recorder) callbacks() loom.Callbacks {
	return loom.Callbacks{
		OnUpdate: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates = append(r.updates, text)
		},
		OnSettled: func(msg loom.AssistantMessage) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.settled = append(r.settled, msg)
		},
		OnFailed: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failed = append(r.failed, err)
		},
	}
}

func (r *recorder) snapshot() (updates []string, settled []loom.AssistantMessage, failed []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.updates...), append([]loom.AssistantMessage(nil), r.settled...), append([]error(nil), r.failed...)
}

func scriptedTransport(chunks ...[]byte) *mock.Transport {
	return &mock.Transport{
		OpenFn: func(ctx context.Context, req loom.Request) (loom.ChunkStream, error) {
			return mock.Script(ctx, chunks...), nil
		},
	}
}

func waitDone(t *testing.T, s *loom.StreamSession) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func req() loom.Request {
	return loom.Request{Message: "hi", ThreadID: "t1", SessionID: "s1"}
}

func frameLine(kind, content, threadID string) string {
	return `data: {"type":"` + kind + `","content":"` + content + `","thread_id":"` + threadID + `","session_id":"s1"}` + "\n"
}

func TestEngine_AccumulatesDeltasAndSettles(t *testing.T) {
	t.Parallel()

	transport := scriptedTransport([]byte(
		frameLine("delta", "Hel", "t1") +
			frameLine("delta", "lo", "t1") +
			frameLine("completion", "", "t1"),
	))
	e := loom.NewEngine(transport)
	rec := &recorder{}

	s, err := e.Start(context.Background(), req(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, s)

	updates, settled, failed := rec.snapshot()
	assert.Equal(t, []string{"Hel", "Hello"}, updates)
	require.Len(t, settled, 1)
	assert.Equal(t, "Hello", settled[0].Text)
	assert.NotEmpty(t, settled[0].ID)
	assert.False(t, settled[0].Timestamp.IsZero())
	assert.Empty(t, failed)
	assert.Equal(t, loom.StateSettled, s.State())
}

func TestEngine_FiltersNonMatchingThread(t *testing.T) {
	t.Parallel()

	transport := scriptedTransport([]byte(
		frameLine("delta", "keep", "t1") +
			frameLine("delta", "DROP", "other") +
			frameLine("completion", "", "t1"),
	))
	e := loom.NewEngine(transport)
	rec := &recorder{}

	s, err := e.Start(context.Background(), req(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, s)

	updates, settled, _ := rec.snapshot()
	assert.Equal(t, []string{"keep"}, updates)
	require.Len(t, settled, 1)
	assert.Equal(t, "keep", settled[0].Text)
}

func TestEngine_CompletionFromOtherThreadIgnored(t *testing.T) {
	t.Parallel()

	transport := scriptedTransport([]byte(
		frameLine("delta", "hi", "t1") +
			frameLine("completion", "", "other") +
			frameLine("completion", "", "t1"),
	))
	e := loom.NewEngine(transport)
	rec := &recorder{}

	s, err := e.Start(context.Background(), req(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, s)

	_, settled, _ := rec.snapshot()
	require.Len(t, settled, 1)
	assert.Equal(t, "hi", settled[0].Text)
}

func TestEngine_DoneSentinelThenCompletion(t *testing.T) {
	t.Parallel()

	transport := scriptedTransport(
		[]byte("data: [DONE]\n"),
		[]byte(frameLine("completion", "", "t1")),
	)
	e := loom.NewEngine(transport)
	rec := &recorder{}

	s, err := e.Start(context.Background(), req(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, s)

	_, settled, failed := rec.snapshot()
	require.Len(t, settled, 1)
	assert.Empty(t, failed)
}

func TestEngine_ServerErrorFrame(t *testing.T) {
	t.Parallel()

	transport := scriptedTransport([]byte(
		frameLine("delta", "partial", "t1") +
			`data: {"type":"delta","content":"","thread_id":"t1","session_id":"s1","error_message":"boom"}` + "\n" +
			frameLine("completion", "", "t1"),
	))
	e := loom.NewEngine(transport)
	rec := &recorder{}

	s, err := e.Start(context.Background(), req(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, s)

	_, settled, failed := rec.snapshot()
	assert.Empty(t, settled)
	require.Len(t, failed, 1)
	var serverErr *loom.ServerError
	require.ErrorAs(t, failed[0], &serverErr)
	assert.Equal(t, "boom", serverErr.Message)
	assert.Equal(t, loom.StateFailed, s.State())
}

func TestEngine_FramesAfterCompletionIgnored(t *testing.T) {
	t.Parallel()

	transport := scriptedTransport([]byte(
		frameLine("delta", "done", "t1") +
			frameLine("completion", "", "t1") +
			frameLine("delta", "LATE", "t1"),
	))
	e := loom.NewEngine(transport)
	rec := &recorder{}

	s, err := e.Start(context.Background(), req(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, s)

	updates, settled, _ := rec.snapshot()
	assert.Equal(t, []string{"done"}, updates)
	require.Len(t, settled, 1)
	assert.Equal(t, "done", settled[0].Text)
}

func TestEngine_TruncatedStream(t *testing.T) {
	t.Parallel()

	transport := scriptedTransport([]byte(frameLine("delta", "partial", "t1")))
	e := loom.NewEngine(transport)
	rec := &recorder{}

	s, err := e.Start(context.Background(), req(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, s)

	_, settled, failed := rec.snapshot()
	assert.Empty(t, settled)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], loom.ErrTruncatedStream)
}

func TestEngine_OpenFailure(t *testing.T) {
	t.Parallel()

	transport := &mock.Transport{
		OpenFn: func(ctx context.Context, req loom.Request) (loom.ChunkStream, error) {
			return nil, &loom.TransportError{StatusCode: 503}
		},
	}
	e := loom.NewEngine(transport)
	rec := &recorder{}

	s, err := e.Start(context.Background(), req(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, s)

	_, settled, failed := rec.snapshot()
	assert.Empty(t, settled)
	require.Len(t, failed, 1)
	var te *loom.TransportError
	require.ErrorAs(t, failed[0], &te)
	assert.Equal(t, 503, te.StatusCode)
}

func TestEngine_CancelFiresNoTerminalCallback(t *testing.T) {
	t.Parallel()

	transport := &mock.Transport{
		OpenFn: func(ctx context.Context, req loom.Request) (loom.ChunkStream, error) {
			return mock.Blocking(ctx, []byte(frameLine("delta", "partial", "t1"))), nil
		},
	}
	e := loom.NewEngine(transport)
	rec := &recorder{}

	s, err := e.Start(context.Background(), req(), rec.callbacks())
	require.NoError(t, err)

	// Wait for the first update so we know the stream is mid-flight.
	require.Eventually(t, func() bool {
		updates, _, _ := rec.snapshot()
		return len(updates) == 1
	}, 5*time.Second, time.Millisecond)

	e.Stop()
	waitDone(t, s)

	updates, settled, failed := rec.snapshot()
	assert.Equal(t, []string{"partial"}, updates)
	assert.Empty(t, settled)
	assert.Empty(t, failed)
	assert.Equal(t, loom.StateAborted, s.State())
}

func TestEngine_StartCancelsPreviousSession(t *testing.T) {
	t.Parallel()

	recA := &recorder{}
	var opens atomic.Int32
	transport := &mock.Transport{
		OpenFn: func(ctx context.Context, req loom.Request) (loom.ChunkStream, error) {
			if opens.Add(1) == 1 {
				return mock.Blocking(ctx, []byte(frameLine("delta", "from A", "t1"))), nil
			}
			return mock.Script(ctx, []byte(frameLine("delta", "from B", "t1")+frameLine("completion", "", "t1"))), nil
		},
	}
	e := loom.NewEngine(transport)

	sA, err := e.Start(context.Background(), req(), recA.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		updates, _, _ := recA.snapshot()
		return len(updates) == 1
	}, 5*time.Second, time.Millisecond)

	// Starting B cancels A before B's first read.
	recB := &recorder{}
	sB, err := e.Start(context.Background(), req(), recB.callbacks())
	require.NoError(t, err)

	// A is joined before Start returns, so none of its callbacks can fire
	// from here on.
	select {
	case <-sA.Done():
	default:
		t.Fatal("previous session still running after Start returned")
	}

	waitDone(t, sB)

	updatesA, settledA, failedA := recA.snapshot()
	assert.Equal(t, []string{"from A"}, updatesA, "no update from A may fire after B starts")
	assert.Empty(t, settledA)
	assert.Empty(t, failedA)
	assert.Equal(t, loom.StateAborted, sA.State())

	_, settledB, _ := recB.snapshot()
	require.Len(t, settledB, 1)
	assert.Equal(t, "from B", settledB[0].Text)
}

func TestEngine_ValidationError(t *testing.T) {
	t.Parallel()

	e := loom.NewEngine(scriptedTransport())
	_, err := e.Start(context.Background(), loom.Request{ThreadID: "t1"}, loom.Callbacks{})
	assert.ErrorIs(t, err, loom.ErrValidation)
}

func TestEngine_ProvisionalIDsAreMonotonic(t *testing.T) {
	t.Parallel()

	e := loom.NewEngine(scriptedTransport([]byte(frameLine("completion", "", "t1"))))

	s1, err := e.Start(context.Background(), req(), loom.Callbacks{})
	require.NoError(t, err)
	waitDone(t, s1)

	s2, err := e.Start(context.Background(), req(), loom.Callbacks{})
	require.NoError(t, err)
	waitDone(t, s2)

	assert.NotEqual(t, s1.ProvisionalID(), s2.ProvisionalID())
}

func TestEngine_HasArtifactPropagates(t *testing.T) {
	t.Parallel()

	transport := scriptedTransport([]byte(
		`data: {"type":"delta","content":"chart","thread_id":"t1","session_id":"s1","has_artifact":true}` + "\n" +
			frameLine("completion", "", "t1"),
	))
	e := loom.NewEngine(transport)
	rec := &recorder{}

	s, err := e.Start(context.Background(), req(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, s)

	_, settled, _ := rec.snapshot()
	require.Len(t, settled, 1)
	assert.True(t, settled[0].HasArtifact)
}

func TestEngine_AbortNeverRoutedThroughFailed(t *testing.T) {
	t.Parallel()

	transport := &mock.Transport{
		OpenFn: func(ctx context.Context, req loom.Request) (loom.ChunkStream, error) {
			return &mock.ChunkStream{
				NextFn: func() ([]byte, error) {
					<-ctx.Done()
					return nil, errors.New("read on closed connection")
				},
			}, nil
		},
	}
	e := loom.NewEngine(transport)
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	s, err := e.Start(ctx, req(), rec.callbacks())
	require.NoError(t, err)
	cancel()
	waitDone(t, s)

	// The transport surfaced an unrelated error after cancellation; the
	// engine must still treat it as an abort, not a failure.
	_, settled, failed := rec.snapshot()
	assert.Empty(t, settled)
	assert.Empty(t, failed)
	assert.Equal(t, loom.StateAborted, s.State())
}
