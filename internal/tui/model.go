// Package tui is a terminal chat client for the medchat server.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Asker is the subset of Client the model needs.
type Asker interface {
	Ask(ctx context.Context, msg string) (string, error)
}

type answerMsg struct {
	text string
	err  error
}

type line struct {
	who  string
	text string
	err  bool
}

// Model is the Bubble Tea model: a transcript viewport above a text input.
type Model struct {
	asker    Asker
	server   string
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	lines    []line
	waiting  bool
	ready    bool
}

func New(asker Asker, server string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a medical question and press Enter"
	ti.Focus()
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return Model{
		asker:    asker,
		server:   server,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-bh-4)
		m.refresh()
		return m, nil

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.lines = append(m.lines, line{who: "error", text: msg.err.Error(), err: true})
		} else {
			m.lines = append(m.lines, line{who: "bot", text: msg.text})
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.waiting = true
			m.lines = append(m.lines, line{who: "you", text: q})
			m.refresh()
			return m, m.ask(q)
		}
	}

	var cmd tea.Cmd
	if k, ok := msg.(tea.KeyMsg); ok && k.Type != tea.KeyPgUp && k.Type != tea.KeyPgDown {
		// letters go to the input, not to the viewport's j/k/f/b bindings
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	var vcmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.viewport, vcmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, vcmd)
}

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		text, err := m.asker.Ask(ctx, q)
		return answerMsg{text: text, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) transcript() string {
	if len(m.lines) == 0 {
		return hintStyle.Render("No messages yet.")
	}
	width := max(20, m.viewport.Width-2)
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteString("\n\n")
		}
		style := botStyle
		switch {
		case l.err:
			style = errorStyle
		case l.who == "you":
			style = userStyle
		}
		b.WriteString(style.Render(l.who + ":"))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(l.text))
	}
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Medical Chatbot") + " " + hintStyle.Render(m.server)
	status := hintStyle.Render("enter: send  esc: quit")
	if m.waiting {
		status = hintStyle.Render("thinking...")
	}
	return header + "\n" + transcriptStyle.Render(m.viewport.View()) + "\n" + m.input.View() + "\n" + status
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
