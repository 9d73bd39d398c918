package watch

import (
	"strings"
	"time"
)

// Ticker rotates on every successful poll; a frozen ticker means the
// gateway stopped answering.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Spinner shows request traffic as a row of dots that light up when a
// worker's served or failed counter moves and fade over time.
type Spinner struct {
	dots         int
	lastActivity time.Time
}

func (s *Spinner) OnActivity(at time.Time) {
	s.dots = 5
	s.lastActivity = at
}

// Decay fades the dots based on time since the last activity.
func (s *Spinner) Decay(now time.Time) {
	if s.dots == 0 {
		return
	}
	elapsed := now.Sub(s.lastActivity)
	switch {
	case elapsed > 10*time.Second:
		s.dots = 0
	case elapsed > 8*time.Second:
		s.dots = 1
	case elapsed > 6*time.Second:
		s.dots = 2
	case elapsed > 4*time.Second:
		s.dots = 3
	case elapsed > 2*time.Second:
		s.dots = 4
	}
}

func (s Spinner) Render(theme Theme) string {
	var result strings.Builder
	for i := range 5 {
		if i < s.dots {
			result.WriteString(theme.TickerActive.Render("●"))
		} else {
			result.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return result.String()
}

func (s Spinner) LastActivity() time.Time {
	return s.lastActivity
}
