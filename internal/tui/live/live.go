package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"catalogload/internal/runner"
	"catalogload/internal/tui/components"
	"catalogload/internal/tui/styles"
)

// Model renders the live counters of a running test.
type Model struct {
	Stats    runner.StatsSnapshot
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	Duration    time.Duration
	LastElapsed time.Duration
	LastReqs    uint64

	Width  int
	Height int
}

func NewModel(totalDur time.Duration) Model {
	return Model{
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     components.NewSparkline(40, "RPS", styles.Active),
		LatencyLine: components.NewSparkline(40, "http_req_duration p(90) ms", styles.Warn),
		Duration:    totalDur,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.StatsSnapshot:
		// Rates come from the run clock so dropped snapshots do not skew them.
		dt := (msg.Elapsed - m.LastElapsed).Seconds()
		if dt > 0 && msg.Requests >= m.LastReqs {
			m.RpsLine.Add(float64(msg.Requests-m.LastReqs) / dt)
			m.LatencyLine.Add(msg.P90Ms)
		}

		m.Stats = msg
		m.LastReqs = msg.Requests
		m.LastElapsed = msg.Elapsed

		return m, m.Progress.SetPercent(m.Percent())

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		half := (msg.Width / 2) - 6
		if half < 10 {
			half = 10
		}
		m.RpsLine.Resize(half)
		m.LatencyLine.Resize(half)
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// Percent is the share of the planned run that has elapsed.
func (m Model) Percent() float64 {
	if m.Duration <= 0 {
		return 0
	}
	pct := float64(m.Stats.Elapsed) / float64(m.Duration)
	if pct > 1.0 {
		pct = 1.0
	}
	return pct
}

// ErrorRate is the failed share of classified iterations in percent.
func (m Model) ErrorRate() float64 {
	total := m.Stats.Success + m.Stats.Fail
	if total == 0 {
		return 0
	}
	return float64(m.Stats.Fail) / float64(total) * 100
}

func (m Model) View() string {
	s := strings.Builder{}

	errRate := m.ErrorRate()

	col1 := fmt.Sprintf("VUs: %d\nITER: %d", m.Stats.ActiveVUs, m.Stats.Iterations)
	col2 := fmt.Sprintf("ERR: %.2f%%\nFAIL: %d", errRate, m.Stats.Fail)
	col3 := fmt.Sprintf("REQ: %d\nKB: %d", m.Stats.Requests, m.Stats.Bytes/1024)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(styles.ErrorRate(errRate).Render(col2)),
		styles.Box.Render(col3),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n\n")

	latencies := fmt.Sprintf(
		"P50: %.2f ms  |  P90: %.2f ms  |  P99: %.2f ms  |  Max: %.2f ms",
		m.Stats.P50Ms,
		m.Stats.P90Ms,
		m.Stats.P99Ms,
		m.Stats.MaxMs,
	)
	box := styles.Box
	if m.Width > 4 {
		box = box.Width(m.Width - 4)
	}
	s.WriteString(box.Render(latencies))
	s.WriteString("\n\n")

	s.WriteString(fmt.Sprintf("%s / %s\n", m.Stats.Elapsed.Round(time.Second), m.Duration))
	s.WriteString(m.Progress.View())

	return s.String()
}
