// Package json persists threads as versioned JSON files.
package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loomlabs/loom"
)

// envelope is the v1 wire format for a persisted thread.
type envelope struct {
	Version   int          `json:"version"`
	ID        string       `json:"id"`
	Title     string       `json:"title,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Messages  []messageDTO `json:"messages"`
}

// messageDTO is the JSON representation of a Message with a role
// discriminator. Only settled messages are persisted; provisional
// streaming content never reaches this codec.
type messageDTO struct {
	Role        string    `json:"role"`
	ID          string    `json:"id,omitempty"`
	Text        string    `json:"text"`
	HasArtifact *bool     `json:"has_artifact,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// MarshalThread serializes a Thread to JSON in v1 envelope format.
func MarshalThread(th loom.Thread) ([]byte, error) {
	env := envelope{
		Version:   1,
		ID:        th.ID,
		Title:     th.Title,
		CreatedAt: th.CreatedAt,
		UpdatedAt: th.UpdatedAt,
		Messages:  make([]messageDTO, len(th.Messages)),
	}
	for i, msg := range th.Messages {
		dto, err := marshalMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		env.Messages[i] = dto
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalThread deserializes a Thread from JSON in v1 envelope format.
func UnmarshalThread(data []byte) (loom.Thread, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return loom.Thread{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return loom.Thread{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	msgs := make([]loom.Message, len(env.Messages))
	for i, dto := range env.Messages {
		msg, err := unmarshalMessage(dto)
		if err != nil {
			return loom.Thread{}, fmt.Errorf("message %d: %w", i, err)
		}
		msgs[i] = msg
	}
	return loom.Thread{
		ID:        env.ID,
		Title:     env.Title,
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		Messages:  msgs,
	}, nil
}

// Save writes a Thread to a JSON file, creating parent directories as
// needed. The write is atomic: a temp file is renamed into place.
func Save(path string, th loom.Thread) error {
	data, err := MarshalThread(th)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a Thread from a JSON file.
func Load(path string) (loom.Thread, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return loom.Thread{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalThread(data)
}

func marshalMessage(msg loom.Message) (messageDTO, error) {
	switch m := msg.(type) {
	case loom.UserMessage:
		return messageDTO{
			Role:      "user",
			ID:        m.ID,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		}, nil
	case loom.AssistantMessage:
		return messageDTO{
			Role:        "assistant",
			ID:          m.ID,
			Text:        m.Text,
			HasArtifact: &m.HasArtifact,
			Timestamp:   m.Timestamp,
		}, nil
	default:
		return messageDTO{}, fmt.Errorf("unknown message type: %T", msg)
	}
}

func unmarshalMessage(dto messageDTO) (loom.Message, error) {
	switch dto.Role {
	case "user":
		return loom.UserMessage{
			ID:        dto.ID,
			Text:      dto.Text,
			Timestamp: dto.Timestamp,
		}, nil
	case "assistant":
		var hasArtifact bool
		if dto.HasArtifact != nil {
			hasArtifact = *dto.HasArtifact
		}
		return loom.AssistantMessage{
			ID:          dto.ID,
			Text:        dto.Text,
			HasArtifact: hasArtifact,
			Timestamp:   dto.Timestamp,
		}, nil
	default:
		return nil, fmt.Errorf("unknown message role: %q", dto.Role)
	}
}
