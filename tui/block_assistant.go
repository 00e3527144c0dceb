package tui

import (
	"strings"

	"github.com/loomlabs/loom"
	"github.com/loomlabs/loom/markdown"
)

var _ MessageBlock = (*AssistantBlock)(nil)

// AssistantBlock renders streamed assistant text with markdown formatting.
// The stable prefix ending at the last paragraph break is rendered once per
// width and cached; only the trailing unfinalized text is re-rendered on
// each update.
type AssistantBlock struct {
	raw    string
	theme  loom.Theme
	styles Styles

	finalizedRaw     string
	finalizedByWidth map[int]string

	settled     bool
	hasArtifact bool
}

// NewAssistantBlock creates a block for streaming assistant text.
func NewAssistantBlock(theme loom.Theme, styles Styles) *AssistantBlock {
	return &AssistantBlock{
		theme:            theme,
		styles:           styles,
		finalizedByWidth: make(map[int]string),
	}
}

// SetText replaces the block's content with the full accumulated text.
// Text that does not extend the finalized prefix (a stream failure swaps
// the partial reply for fallback text) drops the cached prefix so nothing
// stale stays on screen.
func (b *AssistantBlock) SetText(text string) {
	if !strings.HasPrefix(text, b.finalizedRaw) {
		b.finalizedRaw = ""
		clear(b.finalizedByWidth)
	}
	b.raw = text
	b.promoteFinalized()
}

// Finalize freezes the block with the finished message.
func (b *AssistantBlock) Finalize(msg loom.AssistantMessage) {
	b.SetText(msg.Text)
	b.hasArtifact = msg.HasArtifact
	b.settled = true
}

// Settled reports whether the block has been finalized.
func (b *AssistantBlock) Settled() bool { return b.settled }

func (b *AssistantBlock) View(width int) string {
	body := b.renderBody(width)
	if b.settled && b.hasArtifact {
		marker := padLeft("◈ artifact", width)
		if body == "" {
			return b.styles.Artifact.Render(marker)
		}
		return body + "\n" + b.styles.Artifact.Render(marker)
	}
	return body
}

func (b *AssistantBlock) renderBody(width int) string {
	finalized := b.renderFinalized(width)
	trailing := b.trailingRaw()
	if hasUnclosedFence(trailing) {
		// Close the fence only for rendering so partial streams display safely.
		trailing += "\n```"
	}
	if trailing == "" {
		return finalized
	}
	rendered := markdown.Render(trailing, width, b.theme)
	if strings.TrimSpace(rendered) == "" {
		return finalized
	}
	if finalized == "" {
		return rendered
	}
	// The paragraph break at the finalization boundary is reconstructed with
	// a single "\n\n" to match full-document render output.
	return strings.TrimRight(finalized, "\n") + "\n\n" + strings.TrimLeft(rendered, "\n")
}

// promoteFinalized advances the finalized prefix to the last paragraph break
// whose prefix has all code fences closed. Splitting inside an open fence
// would leave the trailing fragment starting mid-code-block.
func (b *AssistantBlock) promoteFinalized() {
	for end := len(b.raw); ; {
		idx := strings.LastIndex(b.raw[:end], "\n\n")
		if idx <= 0 {
			return
		}
		candidate := b.raw[:idx]
		if hasUnclosedFence(candidate) {
			end = idx
			continue
		}
		if candidate != b.finalizedRaw {
			b.finalizedRaw = candidate
			clear(b.finalizedByWidth)
		}
		return
	}
}

func (b *AssistantBlock) renderFinalized(width int) string {
	if width <= 0 || b.finalizedRaw == "" {
		return ""
	}
	if cached, ok := b.finalizedByWidth[width]; ok {
		return cached
	}
	rendered := markdown.Render(b.finalizedRaw, width, b.theme)
	b.finalizedByWidth[width] = rendered
	return rendered
}

func (b *AssistantBlock) trailingRaw() string {
	if b.finalizedRaw == "" {
		return b.raw
	}
	return strings.TrimPrefix(b.raw, b.finalizedRaw+"\n\n")
}

// hasUnclosedFence reports an odd number of "```" occurrences. Literal
// triple backticks inside inline code spans would fool it; streamed chat
// output essentially never contains those.
func hasUnclosedFence(s string) bool {
	return strings.Count(s, "```")%2 == 1
}
