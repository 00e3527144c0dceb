package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/loomlabs/loom"
)

var _ tea.Model = Model{}

// failedReplyText stands in for the assistant reply when a stream fails.
// The underlying error goes to the status line, never into the thread.
const failedReplyText = "Sorry, something went wrong while generating this reply. Please try again."

// Model is the Bubble Tea model for the loom TUI.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable output area. Exported for test access.
	Viewport viewport.Model

	engine    *loom.Engine
	thread    *loom.Thread
	sessionID string
	theme     loom.Theme
	styles    Styles

	blocks []MessageBlock
	// active is the assistant block receiving the current stream, created
	// lazily on the first delta.
	active *AssistantBlock

	streaming bool
	eventCh   chan tea.Msg
	err       error
	ready     bool
}

// New creates a TUI Model over the given engine and thread. The thread is
// mutated in place as messages settle; the caller persists it after Run
// returns.
func New(engine *loom.Engine, thread *loom.Thread, sessionID string, theme loom.Theme) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	m := Model{
		Input:     ti,
		engine:    engine,
		thread:    thread,
		sessionID: sessionID,
		theme:     theme,
		styles:    NewStyles(theme),
	}
	return m.renderThread()
}

// Streaming returns whether a stream is currently in flight.
func (m Model) Streaming() bool { return m.streaming }

// Err returns the last stream error, if any.
func (m Model) Err() error { return m.err }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamUpdateMsg:
		m = m.ensureActive()
		m.active.SetText(msg.Text)
		m.refreshViewport()
		return m, m.listenCmd()

	case StreamSettledMsg:
		m = m.ensureActive()
		m.active.Finalize(msg.Message)
		m.thread.Messages = append(m.thread.Messages, msg.Message)
		m.thread.UpdatedAt = msg.Message.Timestamp
		m.refreshViewport()
		return m, m.listenCmd()

	case StreamFailedMsg:
		// A mid-stream failure discards the partial text and shows a fixed
		// fallback reply; a failure before any text streamed renders as an
		// error entry instead. The error itself goes to the status line.
		m.err = msg.Err
		if m.active != nil {
			m.active.SetText(failedReplyText)
		} else {
			m.blocks = append(m.blocks, NewErrorBlock(msg.Err, m.styles))
		}
		m.refreshViewport()
		return m, m.listenCmd()

	case StreamDoneMsg:
		m.streaming = false
		m.eventCh = nil
		m.active = nil
		cmds = append(cmds, m.Input.Focus())
		return m, tea.Batch(cmds...)
	}

	// Pass remaining messages to sub-components. The viewport always
	// receives messages for scrolling (keyboard and mouse).
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	if !m.streaming {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputHeight := 1
	statusHeight := 1
	borderHeight := 2 // newlines between sections
	vpHeight := msg.Height - inputHeight - statusHeight - borderHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.refreshViewport()
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
		m.Viewport.SetContent(m.renderContent())
	}

	m.Input.Width = msg.Width
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.streaming {
			m.engine.Stop()
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.streaming {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submitInput(text)
	}

	// When idle, pass keys to both the input (for typing) and the viewport
	// (for scrolling). Only non-character keys go to the viewport to avoid
	// conflicts ('j'/'k' are viewport scroll AND text characters).
	if !m.streaming {
		var cmd tea.Cmd
		var cmds []tea.Cmd

		if msg.Type != tea.KeyRunes {
			m.Viewport, cmd = m.Viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) submitInput(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.err = nil

	now := time.Now()
	m.thread.Messages = append(m.thread.Messages, loom.UserMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: now,
	})
	m.thread.UpdatedAt = now

	m.blocks = append(m.blocks, NewUserBlock(text, m.styles))
	m.refreshViewport()

	m.eventCh = make(chan tea.Msg, 256)
	m.active = nil
	m.streaming = true
	m.Input.Blur()

	req := loom.Request{
		Message:   text,
		ThreadID:  m.thread.ID,
		SessionID: m.sessionID,
	}
	return m, tea.Batch(
		startStream(m.engine, req, m.eventCh),
		listenForEvent(m.eventCh),
	)
}

// listenCmd re-arms the event listener while a stream is in flight.
func (m Model) listenCmd() tea.Cmd {
	if m.eventCh == nil {
		return nil
	}
	return listenForEvent(m.eventCh)
}

// ensureActive creates the streaming assistant block on first use.
func (m Model) ensureActive() Model {
	if m.active == nil {
		m.active = NewAssistantBlock(m.theme, m.styles)
		m.blocks = append(m.blocks, m.active)
	}
	return m
}

func (m *Model) refreshViewport() {
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
}

// renderThread creates blocks from the thread's existing messages.
func (m Model) renderThread() Model {
	for _, msg := range m.thread.Messages {
		switch msg := msg.(type) {
		case loom.UserMessage:
			m.blocks = append(m.blocks, NewUserBlock(msg.Text, m.styles))
		case loom.AssistantMessage:
			b := NewAssistantBlock(m.theme, m.styles)
			b.Finalize(msg)
			m.blocks = append(m.blocks, b)
		}
	}
	return m
}

func (m Model) renderContent() string {
	if len(m.blocks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

func (m Model) statusLine() string {
	width := m.Viewport.Width
	if m.err != nil {
		return m.styles.Error.Render(truncate(fmt.Sprintf("Error: %v", m.err), width))
	}
	if m.streaming {
		return m.styles.Muted.Render(truncate("Generating... Ctrl+C to stop", width))
	}
	return m.styles.Muted.Render(truncate("Enter to send, Ctrl+C to quit", width))
}

// startStream begins the streaming exchange and bridges engine callbacks
// onto the event channel. The channel closes when the session finishes,
// regardless of outcome, which is the only completion signal a cancelled
// session emits.
func startStream(engine *loom.Engine, req loom.Request, events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		session, err := engine.Start(context.Background(), req, loom.Callbacks{
			OnUpdate:  func(text string) { events <- StreamUpdateMsg{Text: text} },
			OnSettled: func(msg loom.AssistantMessage) { events <- StreamSettledMsg{Message: msg} },
			OnFailed:  func(err error) { events <- StreamFailedMsg{Err: err} },
		})
		if err != nil {
			events <- StreamFailedMsg{Err: err}
			close(events)
			return nil
		}
		<-session.Done()
		close(events)
		return nil
	}
}

// listenForEvent waits for the next stream event. A closed channel means the
// session is done.
func listenForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return StreamDoneMsg{}
		}
		return msg
	}
}
