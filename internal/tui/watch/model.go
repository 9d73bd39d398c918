package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lexgate/internal/worker"
)

// DefaultPollInterval is how often /healthz is polled.
const DefaultPollInterval = 2 * time.Second

const maxChanges = 50

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL   string
	apiKey   string
	interval time.Duration

	width  int
	height int

	health  HealthState
	workers []worker.ActorStats
	prev    map[string]worker.ActorStats
	changes []Change

	ticker  Ticker
	spinner Spinner
	theme   Theme
	table   table.Model

	lastError string
}

// New creates a new watch TUI model polling apiURL every interval.
func New(apiURL, apiKey string, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Kind", Width: 8},
			{Title: "Lang", Width: 8},
			{Title: "PID", Width: 7},
			{Title: "Queued", Width: 6},
			{Title: "Served", Width: 8},
			{Title: "Failed", Width: 6},
			{Title: "Cause", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		apiURL:   strings.TrimRight(apiURL, "/"),
		apiKey:   apiKey,
		interval: interval,
		prev:     make(map[string]worker.ActorStats),
		ticker:   NewTicker(),
		theme:    NewDefaultTheme(),
		table:    t,
	}
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) }
}

func (m Model) schedulePoll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.poll(),
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if h := msg.Height/2 - 4; h > 3 {
			m.table.SetHeight(h)
		}

	case tickMsg:
		m.spinner.Decay(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case pollMsg:
		return m, m.poll()

	case healthMsg:
		m.applyHealth(msg, time.Now())
		return m, m.schedulePoll()

	case errMsg:
		m.health.Connected = false
		m.lastError = msg.Error()
		return m, m.schedulePoll()
	}

	return m, nil
}

// applyHealth folds a snapshot into the model.
func (m *Model) applyHealth(h healthMsg, now time.Time) {
	changes := diffStats(m.prev, h.Workers, now)
	// The first snapshot is the baseline, not news.
	if m.health.LastCheck.IsZero() {
		changes = nil
	}
	for _, c := range changes {
		if c.Activity {
			m.spinner.OnActivity(now)
		}
	}
	m.changes = append(reverse(changes), m.changes...)
	if len(m.changes) > maxChanges {
		m.changes = m.changes[:maxChanges]
	}

	m.prev = make(map[string]worker.ActorStats, len(h.Workers))
	for _, st := range h.Workers {
		m.prev[workerKey(st)] = st
	}
	m.workers = h.Workers
	m.health = summarize(h.Status, h.UptimeSeconds, h.Workers, now)
	m.ticker.Tick()
	m.lastError = ""
	m.table.SetRows(m.rows())
}

func (m Model) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.workers))
	for _, st := range m.workers {
		pid := "-"
		if st.PID > 0 {
			pid = fmt.Sprint(st.PID)
		}
		rows = append(rows, table.Row{
			stateIcon(st.State),
			st.Kind,
			st.Language,
			pid,
			fmt.Sprint(st.Queued),
			fmt.Sprint(st.Served),
			fmt.Sprint(st.Failed),
			st.Cause,
		})
	}
	return rows
}

func stateIcon(s worker.State) string {
	switch s {
	case worker.StateReady:
		return "●"
	case worker.StateDead:
		return "✗"
	default:
		return "○"
	}
}

func reverse(in []Change) []Change {
	out := make([]Change, len(in))
	for i, c := range in {
		out[len(in)-1-i] = c
	}
	return out
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to " + m.apiURL + "..."
	}

	header := renderHeader(m.health, m.ticker, m.spinner, m.theme, m.width)
	workers := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("WORKERS"), m.table.View()),
	)
	changes := renderChanges(m.changes, m.theme, m.width)

	parts := []string{header, workers, changes}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Navigate Workers"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func renderChanges(changes []Change, theme Theme, width int) string {
	innerWidth := width - 4

	if len(changes) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("CHANGES"),
			theme.Dim.Render("  Waiting for activity..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, c := range changes {
		if i >= 10 {
			break
		}
		style := theme.Dim
		switch c.Type {
		case ChangeServed, ChangeAppeared:
			style = theme.StatusOK
		case ChangeFailed, ChangeGone:
			style = theme.StatusFailed
		case ChangeState:
			style = theme.Highlight
		}
		lines = append(lines, fmt.Sprintf("%s %s %-16s %s",
			theme.Dim.Render(c.At.Format("15:04:05")),
			style.Render(fmt.Sprintf("%-16s", c.Type)),
			c.Worker,
			c.Detail,
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("CHANGES"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}
