package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lexgate/internal/worker"
)

// HealthState tracks gateway health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Ready         int
	Down          int
	Connected     bool
	LastCheck     time.Time
}

func summarize(status string, uptime int64, workers []worker.ActorStats, now time.Time) HealthState {
	h := HealthState{Status: status, UptimeSeconds: uptime, Connected: true, LastCheck: now}
	for _, st := range workers {
		if st.State == worker.StateReady {
			h.Ready++
		} else {
			h.Down++
		}
	}
	return h
}

func renderHeader(health HealthState, ticker Ticker, spinner Spinner, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusFailed.Render("DEGRADED")
	}

	uptime := formatDuration(time.Duration(health.UptimeSeconds) * time.Second)

	lastActivity := "never"
	if !spinner.LastActivity().IsZero() {
		lastActivity = fmt.Sprintf("%s ago", time.Since(spinner.LastActivity()).Round(time.Second))
	}

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" LEXGATE WATCH %s", tickerStr)

	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  ⏱ %s  Workers: %s ready, %s down",
		statusText,
		uptime,
		theme.StatusOK.Render(fmt.Sprint(health.Ready)),
		theme.StatusFailed.Render(fmt.Sprint(health.Down)),
	)
	activityLine := fmt.Sprintf(" Last request: %s %s", lastActivity, spinner.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
