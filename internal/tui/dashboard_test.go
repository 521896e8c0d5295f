package tui

import (
	"errors"
	"io"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddrm/pse25/internal/domain"
	"github.com/oddrm/pse25/internal/protocol"
)

// fakeSource replays queued messages, then returns io.EOF.
type fakeSource struct {
	queue []interface{}
}

func (f *fakeSource) Read() (interface{}, error) {
	if len(f.queue) == 0 {
		return nil, io.EOF
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return msg, nil
}

func snapshot() *protocol.SnapshotMessage {
	return &protocol.SnapshotMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeSnapshot},
		Plugins: []protocol.PluginState{
			{PluginDefinition: domain.PluginDefinition{ID: 1, Name: "Compress Files"}, Enabled: true},
			{PluginDefinition: domain.PluginDefinition{ID: 2, Name: "Generate Text"}, Enabled: true},
		},
		Runs: []domain.Run{
			{RunID: "run_a", PluginID: 1, Scope: domain.EntryScope("log.mcap"), Progress: 40, Phase: domain.RunPhaseAdvancing},
		},
		Logs: []domain.LogEntry{
			{ID: 2, Kind: domain.LogKindInfo, Message: "second", Time: "10:00:02"},
			{ID: 1, Kind: domain.LogKindInfo, Message: "first", Time: "10:00:01"},
		},
	}
}

func feed(t *testing.T, m Model, msgs ...interface{}) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(streamMsg{msg: msg})
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func TestDashboardAppliesSnapshot(t *testing.T) {
	m := feed(t, New(&fakeSource{}, "bagdesk"), snapshot())

	require.Len(t, m.Runs(), 1)
	assert.Equal(t, 40, m.Runs()[0].Progress)
	require.Len(t, m.Logs(), 2)
	assert.Equal(t, "second", m.Logs()[0].Message)

	view := m.View()
	assert.Contains(t, view, "bagdesk")
	assert.Contains(t, view, "1 active")
	assert.Contains(t, view, "Compress Files")
	assert.Contains(t, view, "log.mcap")
	assert.Contains(t, view, "second")
}

func TestDashboardRunEvents(t *testing.T) {
	m := feed(t, New(&fakeSource{}, "bagdesk"), snapshot())

	global := domain.Run{RunID: "run_b", PluginID: 2, Scope: domain.Global(), Progress: 0, Phase: domain.RunPhasePending}
	m = feed(t, m,
		&protocol.RunMessage{Event: domain.RunEventStarted, Run: global},
		&protocol.RunMessage{Event: domain.RunEventProgress, Run: domain.Run{RunID: "run_a", PluginID: 1, Scope: domain.EntryScope("log.mcap"), Progress: 100, Phase: domain.RunPhaseComplete}},
	)

	require.Len(t, m.Runs(), 2)
	assert.Equal(t, "run_a", m.Runs()[0].RunID, "existing runs keep their position")
	assert.Equal(t, 100, m.Runs()[0].Progress)
	assert.Contains(t, m.View(), "global")

	m = feed(t, m, &protocol.RunMessage{Event: domain.RunEventRemoved, Run: domain.Run{RunID: "run_a"}})
	require.Len(t, m.Runs(), 1)
	assert.Equal(t, "run_b", m.Runs()[0].RunID)
}

func TestDashboardDedupesLogs(t *testing.T) {
	m := feed(t, New(&fakeSource{}, "bagdesk"),
		&protocol.LogMessage{Entry: domain.LogEntry{ID: 2, Kind: domain.LogKindInfo, Message: "second"}},
		snapshot(),
		&protocol.LogMessage{Entry: domain.LogEntry{ID: 3, Kind: domain.LogKindInfo, Message: "third"}},
		&protocol.LogMessage{Entry: domain.LogEntry{ID: 3, Kind: domain.LogKindInfo, Message: "third"}},
	)

	logs := m.Logs()
	require.Len(t, logs, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{logs[0].ID, logs[1].ID, logs[2].ID})
}

func TestDashboardShowsServerErrors(t *testing.T) {
	m := feed(t, New(&fakeSource{}, "bagdesk"), &protocol.ErrorMessage{Code: protocol.ErrorCodeInvalidMessage, Message: "unknown message type: x"})
	require.Len(t, m.Logs(), 1)
	assert.Equal(t, domain.LogKindError, m.Logs()[0].Kind)
	assert.Contains(t, m.View(), "unknown message type: x")
}

func TestDashboardReadsFromSource(t *testing.T) {
	src := &fakeSource{queue: []interface{}{snapshot()}}
	m := New(src, "bagdesk")

	msg := m.Init()()
	next, cmd := m.Update(msg)
	m = next.(Model)
	require.Len(t, m.Runs(), 1)
	require.NotNil(t, cmd)

	next, cmd = m.Update(cmd())
	m = next.(Model)
	assert.True(t, errors.Is(m.Err(), io.EOF))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "stream closed")
}

func TestDashboardQuitKey(t *testing.T) {
	m := New(&fakeSource{}, "bagdesk")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestDashboardResize(t *testing.T) {
	m := New(&fakeSource{}, "bagdesk")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 200, Height: 50})
	m = next.(Model)
	assert.Equal(t, 80, m.bar.Width)
	assert.Equal(t, 42, m.logLines)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
