package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cvrag/internal/client"
	"cvrag/internal/domain"
	"cvrag/internal/textutil"
)

const (
	networkErrorText = "Network error. Please check your connection and try again."
	serverErrorText  = "Sorry, I encountered an error. Please try again."
	requestTimeout   = 90 * time.Second
)

// ChatPort is the TUI-facing subset of the chat API. Both the HTTP client
// and an in-process adapter implement it.
type ChatPort interface {
	Chat(ctx context.Context, message, sessionID string) (*domain.ChatResponse, error)
	ResetSession(ctx context.Context, sessionID string) (bool, error)
}

type entry struct {
	role    domain.Role
	text    string
	query   string
	sources []string
	failed  bool
}

type replyMsg struct {
	query string
	resp  *domain.ChatResponse
	err   error
}

type resetMsg struct {
	existed bool
	err     error
}

// Model is the Bubble Tea model for the chat widget.
type Model struct {
	chat      ChatPort
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	entries   []entry
	samples   []string
	sampleIdx int
	sessionID string
	title     string
	status    string
	pending   bool
	ready     bool
}

// New creates a chat model. samples are offered with Tab.
func New(chat ChatPort, title string, samples []string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the CV and press Enter"
	ti.Focus()
	ti.CharLimit = 1000
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	vp := viewport.New(0, 0)
	if title == "" {
		title = "CV Chat"
	}
	return Model{
		chat:     chat,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		samples:  samples,
		title:    title,
		status:   "Tab: sample question  Ctrl+R: reset  Ctrl+C: quit",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and reply events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := historyBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil
	case replyMsg:
		m.pending = false
		if msg.err != nil {
			m.entries = append(m.entries, entry{role: domain.RoleAssistant, text: errorText(msg.err), failed: true})
			m.status = "Request failed; you can retry."
		} else {
			m.sessionID = msg.resp.SessionID
			m.entries = append(m.entries, entry{role: domain.RoleAssistant, text: msg.resp.Response, query: msg.query, sources: msg.resp.Sources})
			m.status = "Session " + shortID(m.sessionID)
		}
		m.refresh()
		return m, nil
	case resetMsg:
		if msg.err != nil {
			m.status = errorText(msg.err)
			return m, nil
		}
		m.entries = nil
		m.sessionID = ""
		m.status = "Conversation reset."
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			if len(m.samples) > 0 {
				m.input.SetValue(m.samples[m.sampleIdx%len(m.samples)])
				m.input.CursorEnd()
				m.sampleIdx++
			}
			return m, nil
		case tea.KeyCtrlR:
			if m.pending {
				return m, nil
			}
			if m.sessionID == "" {
				m.entries = nil
				m.refresh()
				return m, nil
			}
			return m, m.resetCmd(m.sessionID)
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			m.entries = append(m.entries, entry{role: domain.RoleUser, text: q})
			m.pending = true
			m.status = "Thinking..."
			m.refresh()
			return m, tea.Batch(m.sendCmd(q, m.sessionID), m.spinner.Tick)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) sendCmd(q, sessionID string) tea.Cmd {
	chat := m.chat
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		resp, err := chat.Chat(ctx, q, sessionID)
		return replyMsg{query: q, resp: resp, err: err}
	}
}

func (m Model) resetCmd(sessionID string) tea.Cmd {
	chat := m.chat
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		existed, err := chat.ResetSession(ctx, sessionID)
		return resetMsg{existed: existed, err: err}
	}
}

// errorText maps a failure to the inline message shown in the transcript.
func errorText(err error) string {
	var (
		apiErr *client.APIError
		ve     *domain.ValidationError
		ue     *domain.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Reason
	case errors.As(err, &ue):
		return serverErrorText
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 500 {
			return serverErrorText
		}
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		return serverErrorText
	default:
		return networkErrorText
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// View renders the transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	history := historyBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.pending {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + history + "\n" + input + "\n" + statusStyle.Render(status)
}

func (m Model) renderHistory() string {
	if len(m.entries) == 0 {
		return "Ask a question about the CV to get started."
	}
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch {
		case e.role == domain.RoleUser:
			b.WriteString(userStyle.Render("You: ") + e.text)
		case e.failed:
			b.WriteString(errorStyle.Render(e.text))
		default:
			b.WriteString(botStyle.Render("Assistant: ") + highlightBestSentence(e.text, e.query))
			if len(e.sources) > 0 {
				b.WriteString("\n" + sourceStyle.Render("Sources: "+strings.Join(e.sources, ", ")))
			}
		}
	}
	return b.String()
}

var (
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// highlightBestSentence emphasises the reply sentence sharing most words
// with the question.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textutil.Sentences(text)
	qTokens := textutil.TokenSet(query)
	if len(qTokens) == 0 || len(sentences) < 2 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore == 0 {
		return strings.Join(sentences, " ")
	}
	out := make([]string, len(sentences))
	copy(out, sentences)
	out[bestIdx] = highlightStyle.Render(out[bestIdx])
	return strings.Join(out, " ")
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range textutil.TokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
