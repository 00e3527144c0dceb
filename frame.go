package loom

import (
	"encoding/json"
	"fmt"
)

// FrameKind discriminates the two protocol frame variants.
type FrameKind string

const (
	FrameDelta      FrameKind = "delta"
	FrameCompletion FrameKind = "completion"
)

// Frame is one decoded protocol unit parsed from a `data:` line of the
// stream. Frames are ephemeral: the reducer consumes them immediately and
// never retains them.
type Frame struct {
	Kind         FrameKind
	TextDelta    string
	ThreadID     string
	SessionID    string
	HasArtifact  bool
	ErrorMessage string
}

// wireFrame is the JSON shape of a frame as sent by the server.
type wireFrame struct {
	Type         string  `json:"type"`
	Content      string  `json:"content"`
	ThreadID     string  `json:"thread_id"`
	SessionID    string  `json:"session_id"`
	HasArtifact  bool    `json:"has_artifact"`
	ErrorMessage *string `json:"error_message"`
}

// ParseFrame decodes a single frame payload. Failures are scoped to the
// line: the caller logs and skips, it never aborts the stream.
func ParseFrame(payload []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(payload, &w); err != nil {
		return Frame{}, fmt.Errorf("loom: parse frame: %w", err)
	}

	var kind FrameKind
	switch w.Type {
	case "delta":
		kind = FrameDelta
	case "completion":
		kind = FrameCompletion
	default:
		return Frame{}, fmt.Errorf("loom: unknown frame type %q", w.Type)
	}

	f := Frame{
		Kind:        kind,
		TextDelta:   w.Content,
		ThreadID:    w.ThreadID,
		SessionID:   w.SessionID,
		HasArtifact: w.HasArtifact,
	}
	if w.ErrorMessage != nil {
		f.ErrorMessage = *w.ErrorMessage
	}
	return f, nil
}
