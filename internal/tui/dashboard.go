// Package tui renders the live run dashboard of bagctl.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/oddrm/pse25/internal/domain"
	"github.com/oddrm/pse25/internal/protocol"
)

// Source yields decoded stream messages. *client.Stream satisfies it.
type Source interface {
	Read() (interface{}, error)
}

const (
	defaultBarWidth = 40
	defaultLogLines = 10
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	logBox      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	kindStyles  = map[domain.LogKind]lipgloss.Style{
		domain.LogKindInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		domain.LogKindWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		domain.LogKindError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Model is the bubbletea model of the dashboard.
type Model struct {
	source   Source
	title    string
	plugins  map[int]string
	runs     []domain.Run
	logs     []domain.LogEntry
	logIDs   map[int]bool
	bar      progress.Model
	logLines int
	synced   bool
	err      error
}

// New creates a dashboard reading from src.
func New(src Source, title string) Model {
	return Model{
		source:   src,
		title:    title,
		plugins:  make(map[int]string),
		logIDs:   make(map[int]bool),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultBarWidth)),
		logLines: defaultLogLines,
	}
}

// streamMsg wraps one decoded server message.
type streamMsg struct {
	msg interface{}
}

// errMsg is sent when the stream fails.
type errMsg struct {
	err error
}

func (m Model) waitForMessage() tea.Cmd {
	src := m.source
	return func() tea.Msg {
		msg, err := src.Read()
		if err != nil {
			return errMsg{err: err}
		}
		return streamMsg{msg: msg}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.waitForMessage()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		width := msg.Width - 30
		if width > 80 {
			width = 80
		}
		if width < 10 {
			width = 10
		}
		m.bar.Width = width
		if lines := msg.Height - len(m.runs) - 8; lines > 3 {
			m.logLines = lines
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case streamMsg:
		m = m.apply(msg.msg)
		return m, m.waitForMessage()

	case errMsg:
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

// apply folds one server message into the model.
func (m Model) apply(msg interface{}) Model {
	switch msg := msg.(type) {
	case *protocol.SnapshotMessage:
		m.synced = true
		m.plugins = make(map[int]string, len(msg.Plugins))
		for _, p := range msg.Plugins {
			m.plugins[p.ID] = p.Name
		}
		m.runs = append([]domain.Run(nil), msg.Runs...)
		for _, entry := range msg.Logs {
			m = m.addLog(entry)
		}

	case *protocol.RunMessage:
		if msg.Event == domain.RunEventRemoved {
			m = m.removeRun(msg.Run.RunID)
		} else {
			m = m.upsertRun(msg.Run)
		}

	case *protocol.LogMessage:
		m = m.addLog(msg.Entry)

	case *protocol.ErrorMessage:
		m = m.addLog(domain.LogEntry{Kind: domain.LogKindError, Message: msg.Message})
	}
	return m
}

func (m Model) upsertRun(run domain.Run) Model {
	for i := range m.runs {
		if m.runs[i].RunID == run.RunID {
			runs := append([]domain.Run(nil), m.runs...)
			runs[i] = run
			m.runs = runs
			return m
		}
	}
	m.runs = append(append([]domain.Run(nil), m.runs...), run)
	return m
}

func (m Model) removeRun(runID string) Model {
	runs := make([]domain.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if r.RunID != runID {
			runs = append(runs, r)
		}
	}
	m.runs = runs
	return m
}

// addLog keeps logs most recent first. Entries already seen (by id) are
// dropped; a log can arrive both in the snapshot and as a push.
func (m Model) addLog(entry domain.LogEntry) Model {
	if entry.ID != 0 {
		if m.logIDs[entry.ID] {
			return m
		}
		m.logIDs[entry.ID] = true
	}
	pos := 0
	if entry.ID != 0 {
		for pos < len(m.logs) && (m.logs[pos].ID == 0 || m.logs[pos].ID > entry.ID) {
			pos++
		}
	}
	logs := make([]domain.LogEntry, 0, len(m.logs)+1)
	logs = append(logs, m.logs[:pos]...)
	logs = append(logs, entry)
	logs = append(logs, m.logs[pos:]...)
	m.logs = logs
	return m
}

// Runs returns the runs currently shown.
func (m Model) Runs() []domain.Run {
	return m.runs
}

// Logs returns the log entries currently held, most recent first.
func (m Model) Logs() []domain.LogEntry {
	return m.logs
}

// Err returns the error that ended the stream, if any.
func (m Model) Err() error {
	return m.err
}

// View implements tea.Model.
func (m Model) View() string {
	sections := []string{m.renderHeader(), m.renderRuns(), m.renderLogs(), m.renderFooter()}
	if m.err != nil {
		sections = append(sections, errorStyle.Render(fmt.Sprintf("stream closed: %v", m.err)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) renderHeader() string {
	status := "connecting"
	if m.synced {
		status = fmt.Sprintf("%d active", len(m.runs))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render(m.title),
		"  ",
		mutedStyle.Render(status),
	)
}

func (m Model) renderRuns() string {
	if len(m.runs) == 0 {
		return mutedStyle.Render("\n  No active runs.\n")
	}

	rows := make([]string, 0, len(m.runs))
	for _, run := range m.runs {
		label := fmt.Sprintf("%-18s %-14s", truncate(m.pluginName(run.PluginID), 18), truncate(run.Scope.Label(), 14))
		bar := m.bar.ViewAs(float64(run.Progress) / 100)
		rows = append(rows, label+" "+bar)
	}
	return "\n" + strings.Join(rows, "\n") + "\n"
}

func (m Model) renderLogs() string {
	if len(m.logs) == 0 {
		return logBox.Render(mutedStyle.Render("No log entries."))
	}
	n := len(m.logs)
	if n > m.logLines {
		n = m.logLines
	}
	lines := make([]string, n)
	for i, entry := range m.logs[:n] {
		style, ok := kindStyles[entry.Kind]
		if !ok {
			style = mutedStyle
		}
		lines[i] = fmt.Sprintf("%s %s %s", mutedStyle.Render(entry.Time), style.Render(fmt.Sprintf("%-5s", entry.Kind)), entry.Message)
	}
	return logBox.Render(strings.Join(lines, "\n"))
}

func (m Model) renderFooter() string {
	return footerStyle.Render("[q] Quit")
}

func (m Model) pluginName(id int) string {
	if name, ok := m.plugins[id]; ok {
		return name
	}
	return fmt.Sprintf("plugin %d", id)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// Run starts the dashboard on the terminal and blocks until it exits.
func Run(src Source, title string) error {
	program := tea.NewProgram(New(src, title), tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	if fm, ok := final.(Model); ok && fm.err != nil && !isClosed(fm.err) {
		return fm.err
	}
	return nil
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
