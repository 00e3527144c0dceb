package tui_test

import (
	"strings"
	"testing"
	"time"

	"github.com/loomlabs/loom"
	"github.com/loomlabs/loom/tui"
	"github.com/stretchr/testify/assert"
)

func newAssistantBlock() *tui.AssistantBlock {
	theme := loom.DefaultTheme()
	return tui.NewAssistantBlock(theme, tui.NewStyles(theme))
}

func TestAssistantBlock_View(t *testing.T) {
	t.Parallel()

	t.Run("renders accumulated text", func(t *testing.T) {
		t.Parallel()

		b := newAssistantBlock()
		b.SetText("Hel")
		b.SetText("Hello world")

		assert.Contains(t, b.View(40), "Hello world")
	})

	t.Run("empty block renders empty", func(t *testing.T) {
		t.Parallel()

		b := newAssistantBlock()
		assert.Equal(t, "", b.View(40))
	})

	t.Run("incremental output matches full-document render", func(t *testing.T) {
		t.Parallel()

		full := "First paragraph here.\n\nSecond paragraph here.\n\nThird one."

		incremental := newAssistantBlock()
		for i := 1; i <= len(full); i++ {
			incremental.SetText(full[:i])
		}

		oneShot := newAssistantBlock()
		oneShot.SetText(full)

		assert.Equal(t, oneShot.View(40), incremental.View(40))
	})

	t.Run("open code fence is closed for rendering", func(t *testing.T) {
		t.Parallel()

		b := newAssistantBlock()
		b.SetText("```go\nfmt.Println(\"hi\")")

		out := b.View(40)
		assert.Contains(t, out, `fmt.Println("hi")`)
	})

	t.Run("replacement text drops the finalized prefix", func(t *testing.T) {
		t.Parallel()

		b := newAssistantBlock()
		b.SetText("first paragraph\n\nsecond paragraph in progress")
		// Render once so the finalized prefix is cached for this width.
		assert.Contains(t, b.View(80), "first paragraph")

		b.SetText(tui.FailedReplyText)
		out := b.View(80)
		assert.Contains(t, out, tui.FailedReplyText)
		assert.NotContains(t, out, "first paragraph")
	})

	t.Run("paragraph break inside open fence is not finalized", func(t *testing.T) {
		t.Parallel()

		full := "```\nline one\n\nline two\n```"

		incremental := newAssistantBlock()
		for i := 1; i <= len(full); i++ {
			incremental.SetText(full[:i])
		}

		oneShot := newAssistantBlock()
		oneShot.SetText(full)

		assert.Equal(t, oneShot.View(40), incremental.View(40))
	})
}

func TestAssistantBlock_Finalize(t *testing.T) {
	t.Parallel()

	t.Run("marks block settled", func(t *testing.T) {
		t.Parallel()

		b := newAssistantBlock()
		b.SetText("partial")
		assert.False(t, b.Settled())

		b.Finalize(loom.AssistantMessage{Text: "final text", Timestamp: time.Now()})
		assert.True(t, b.Settled())
		assert.Contains(t, b.View(40), "final text")
	})

	t.Run("artifact marker shown on settled messages only", func(t *testing.T) {
		t.Parallel()

		b := newAssistantBlock()
		b.SetText("drawing...")
		assert.NotContains(t, b.View(40), "artifact")

		b.Finalize(loom.AssistantMessage{Text: "done", HasArtifact: true})
		out := b.View(40)
		assert.Contains(t, out, "◈ artifact")
		// Marker is right-aligned on its own line.
		lines := strings.Split(out, "\n")
		assert.Contains(t, lines[len(lines)-1], "◈ artifact")
	})

	t.Run("no marker without artifact", func(t *testing.T) {
		t.Parallel()

		b := newAssistantBlock()
		b.Finalize(loom.AssistantMessage{Text: "done"})
		assert.NotContains(t, b.View(40), "artifact")
	})
}

func TestUserBlock_View(t *testing.T) {
	t.Parallel()

	b := tui.NewUserBlock("hello there", tui.NewStyles(loom.DefaultTheme()))
	out := b.View(40)
	assert.Contains(t, out, ">")
	assert.Contains(t, out, "hello there")
}

func TestErrorBlock_View(t *testing.T) {
	t.Parallel()

	b := tui.NewErrorBlock(assert.AnError, tui.NewStyles(loom.DefaultTheme()))
	assert.Contains(t, b.View(40), "Error:")
}
