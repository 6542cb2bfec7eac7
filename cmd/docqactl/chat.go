package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/docqa/internal/session"
)

// asker is the chat's view of the API client.
type asker interface {
	Ask(ctx context.Context, sessionID, question string) (*session.Answer, error)
}

type turn struct {
	question string
	answer   *session.Answer
	err      error
}

type answerMsg struct {
	answer *session.Answer
	err    error
}

// chatModel is the Bubble Tea model of the interactive chat.
type chatModel struct {
	ctx       context.Context
	asker     asker
	sessionID string
	summary   string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	turns   []turn
	pending bool
	ready   bool
}

func newChatModel(ctx context.Context, a asker, sessionID, summary string) chatModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question in any supported language and press Enter"
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	return chatModel{
		ctx:       ctx,
		asker:     a,
		sessionID: sessionID,
		summary:   summary,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
	}
}

func runChat(ctx context.Context, a asker, sessionID, summary string) error {
	_, err := tea.NewProgram(newChatModel(ctx, a, sessionID, summary), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m chatModel) Init() tea.Cmd { return textinput.Blink }

func (m chatModel) ask(question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.asker.Ask(m.ctx, m.sessionID, question)
		return answerMsg{answer: answer, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		// header, summary and status lines plus the input line
		reserved := 3 + 1 + ih + th
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.turns = append(m.turns, turn{question: q})
			m.pending = true
			m.input.SetValue("")
			m.viewport.SetContent(m.renderTranscript())
			m.viewport.GotoBottom()
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		if n := len(m.turns); n > 0 {
			m.turns[n-1].answer = msg.answer
			m.turns[n-1].err = msg.err
		}
		m.pending = false
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("docqa chat")
	summary := summaryStyle.Render(m.summary)
	status := statusStyle.Render("Enter to ask · PgUp/PgDn to scroll · Esc to quit")
	if m.pending {
		status = m.spinner.View() + statusStyle.Render(" thinking...")
	}
	return header + "\n" + summary + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" + status
}

func (m chatModel) renderTranscript() string {
	if len(m.turns) == 0 {
		return summaryStyle.Render("No questions yet.")
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: "))
		b.WriteString(t.question)
		b.WriteString("\n")
		switch {
		case t.err != nil:
			b.WriteString(errorStyle.Render("Error: " + t.err.Error()))
		case t.answer == nil:
			b.WriteString(summaryStyle.Render("..."))
		default:
			b.WriteString(answerStyle(t.answer.Status).Render("docqa: "))
			b.WriteString(t.answer.Text)
			if t.answer.Status != session.StatusAnswered {
				b.WriteString(summaryStyle.Render(fmt.Sprintf("  [%s]", t.answer.Status)))
			}
		}
	}
	return b.String()
}

func answerStyle(status session.Status) lipgloss.Style {
	switch status {
	case session.StatusError:
		return errorStyle
	case session.StatusNoResults, session.StatusNoAnswer:
		return warnStyle
	default:
		return botStyle
	}
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	summaryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
