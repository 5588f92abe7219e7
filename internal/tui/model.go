// Package tui is the interactive chat console. It drives the same pipeline as
// the HTTP server, keeping one session for the whole console run.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragserver/internal/service"
)

// ChatPort is the console-facing subset of the pipeline.
type ChatPort interface {
	Ask(ctx context.Context, req service.AskRequest) (service.AskResponse, error)
}

type answerMsg struct {
	resp service.AskResponse
	err  error
}

// Model is the Bubble Tea model for the chat console.
type Model struct {
	pipeline  ChatPort
	input     textinput.Model
	viewport  viewport.Model
	sessionID string
	lines     []string
	status    string
	waiting   bool
	ready     bool
}

// New creates a console bound to the pipeline. banner is shown under the
// header, typically the knowledge base summary.
func New(pipeline ChatPort, banner string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		pipeline: pipeline,
		input:    ti,
		viewport: vp,
		lines:    []string{banner},
		status:   "Ready. Type a question, 'exit' to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width)
		m.viewport.Height = maxInt(3, vh-th)
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
		return m, nil

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.viewport.GotoBottom()
			return m, nil
		}
		m.sessionID = msg.resp.SessionID
		m.lines = append(m.lines, answerStyle.Render("Assistant: ")+msg.resp.Answer)
		if len(msg.resp.Sources) > 0 {
			m.lines = append(m.lines, sourceStyle.Render("sources: "+strings.Join(msg.resp.Sources, ", ")))
		}
		m.lines = append(m.lines, "")
		m.status = fmt.Sprintf("Answered in %.0f ms (score %.3f)", msg.resp.LatencyMS, msg.resp.RetrievalScore)
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			if q == "exit" || q == "quit" {
				return m, tea.Quit
			}
			m.input.SetValue("")
			m.lines = append(m.lines, questionStyle.Render("You: ")+q)
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.viewport.GotoBottom()
			m.waiting = true
			m.status = "Thinking..."
			return m, m.ask(q)
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	sessionID := m.sessionID
	return func() tea.Msg {
		resp, err := m.pipeline.Ask(context.Background(), service.AskRequest{
			Question:  question,
			UserID:    "console",
			SessionID: sessionID,
		})
		return answerMsg{resp: resp, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Knowledge Base Chat")
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
