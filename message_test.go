package loom_test

import (
	"testing"

	"github.com/loomlabs/loom"
	"github.com/stretchr/testify/assert"
)

func TestMessageRoles(t *testing.T) {
	t.Parallel()

	assert.Equal(t, loom.RoleUser, loom.UserMessage{}.Role())
	assert.Equal(t, loom.RoleAssistant, loom.AssistantMessage{}.Role())
}
