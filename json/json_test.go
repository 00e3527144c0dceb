package json_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loomlabs/loom"
	loomjson "github.com/loomlabs/loom/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleThread() loom.Thread {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	return loom.Thread{
		ID:        "t1",
		Title:     "greetings",
		CreatedAt: now,
		UpdatedAt: now.Add(time.Minute),
		Messages: []loom.Message{
			loom.UserMessage{ID: "u1", Text: "hi", Timestamp: now},
			loom.AssistantMessage{ID: "a1", Text: "Hello", HasArtifact: true, Timestamp: now.Add(time.Second)},
		},
	}
}

func TestMarshalUnmarshalThread(t *testing.T) {
	t.Parallel()

	th := sampleThread()
	data, err := loomjson.MarshalThread(th)
	require.NoError(t, err)

	got, err := loomjson.UnmarshalThread(data)
	require.NoError(t, err)
	assert.Equal(t, th, got)
}

func TestUnmarshalThread_UnsupportedVersion(t *testing.T) {
	t.Parallel()

	_, err := loomjson.UnmarshalThread([]byte(`{"version":2,"id":"t1","messages":[]}`))
	assert.Error(t, err)
}

func TestUnmarshalThread_UnknownRole(t *testing.T) {
	t.Parallel()

	_, err := loomjson.UnmarshalThread([]byte(`{"version":1,"id":"t1","messages":[{"role":"system","text":"x"}]}`))
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "threads", "t1.json")
	th := sampleThread()

	require.NoError(t, loomjson.Save(path, th))

	// No stray temp file left behind.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := loomjson.Load(path)
	require.NoError(t, err)
	assert.Equal(t, th, got)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := loomjson.Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
