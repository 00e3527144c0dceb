// Package tui provides the Bubble Tea terminal interface for loom.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/loomlabs/loom"
)

// Run creates and runs the Bubble Tea program. It blocks until the program
// exits. The context is used for graceful shutdown — when cancelled, the
// program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// StreamUpdateMsg carries the full accumulated assistant text after a delta.
type StreamUpdateMsg struct {
	Text string
}

// StreamSettledMsg carries the finished assistant message.
type StreamSettledMsg struct {
	Message loom.AssistantMessage
}

// StreamFailedMsg carries the reason a stream failed.
type StreamFailedMsg struct {
	Err error
}

// StreamDoneMsg signals that the streaming session has finished, whether it
// settled, failed, or was cancelled.
type StreamDoneMsg struct{}
