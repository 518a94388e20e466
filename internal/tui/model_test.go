package tui

import (
	"context"
	"errors"
	"net"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrag/internal/client"
	"cvrag/internal/domain"
)

type fakeChat struct {
	err      error
	gotQ     string
	gotID    string
	resetIDs []string
}

func (f *fakeChat) Chat(_ context.Context, q, id string) (*domain.ChatResponse, error) {
	f.gotQ, f.gotID = q, id
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatResponse{Response: "It was Verimatrix. Nothing else.", SessionID: "sess-123456789", Sources: []string{"Recent Experience - Verimatrix"}}, nil
}

func (f *fakeChat) ResetSession(_ context.Context, id string) (bool, error) {
	f.resetIDs = append(f.resetIDs, id)
	return true, nil
}

func ready(t *testing.T, chat ChatPort, samples ...string) Model {
	t.Helper()
	m := New(chat, "", samples)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

func TestSendAndReceive(t *testing.T) {
	chat := &fakeChat{}
	m := ready(t, chat, "Where did they work?", "Which languages?")

	m, _ = press(m, tea.KeyTab)
	assert.Equal(t, "Where did they work?", m.input.Value())

	m, cmd := press(m, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Empty(t, m.input.Value())
	require.Len(t, m.entries, 1)

	// a second Enter while waiting is ignored
	m.input.SetValue("again")
	m, cmd2 := press(m, tea.KeyEnter)
	assert.Nil(t, cmd2)
	assert.Len(t, m.entries, 1)

	next, _ := m.Update(m.sendCmd("Where did they work?", "")())
	m = next.(Model)
	assert.False(t, m.pending)
	assert.Equal(t, "sess-123456789", m.sessionID)
	require.Len(t, m.entries, 2)
	assert.Contains(t, m.renderHistory(), "Sources: Recent Experience - Verimatrix")

	// the session id is sent on the next message
	m.sendCmd("next", m.sessionID)()
	assert.Equal(t, "sess-123456789", chat.gotID)
}

func TestFailuresKeepInputEnabled(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&net.OpError{Op: "dial", Err: errors.New("connection refused")}, networkErrorText},
		{&client.APIError{StatusCode: 500, Detail: "Sorry"}, serverErrorText},
		{&client.APIError{StatusCode: 400, Detail: "Message cannot be empty"}, "Message cannot be empty"},
		{&domain.UpstreamError{Op: domain.OpLLM, Err: errors.New("x")}, serverErrorText},
	}
	for _, tc := range cases {
		m := ready(t, &fakeChat{err: tc.err})
		next, _ := m.Update(replyMsg{query: "q", err: tc.err})
		m = next.(Model)
		require.Len(t, m.entries, 1)
		assert.True(t, m.entries[0].failed)
		assert.Equal(t, tc.want, m.entries[0].text)
		assert.True(t, m.input.Focused())
		assert.False(t, m.pending)
		assert.Empty(t, m.sessionID)
	}
}

func TestResetClearsTranscript(t *testing.T) {
	chat := &fakeChat{}
	m := ready(t, chat)
	m.sessionID = "abc"
	m.entries = []entry{{role: domain.RoleUser, text: "hi"}}

	m, cmd := press(m, tea.KeyCtrlR)
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, []string{"abc"}, chat.resetIDs)
	assert.Empty(t, m.entries)
	assert.Empty(t, m.sessionID)
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("Worked at Verimatrix. Studied maths.", "verimatrix work")
	assert.Contains(t, out, "Studied maths.")
	assert.Equal(t, "One sentence only.", highlightBestSentence("One sentence only.", "sentence"))
}
