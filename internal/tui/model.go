package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"catalogload/internal/runner"
	"catalogload/internal/tui/live"
	"catalogload/internal/tui/styles"
)

type doneMsg struct{}

// Model is the full-screen dashboard shown while a run is in progress.
type Model struct {
	Live  live.Model
	Title string
	URL   string

	updates runner.StatsUpdateChan
	done    <-chan struct{}
	cancel  context.CancelFunc

	Stopping bool
	Finished bool
}

// NewModel follows updates until done is closed. Pressing q or ctrl+c calls
// cancel; pressing it again leaves without waiting for the drain.
func NewModel(title, url string, total time.Duration, updates runner.StatsUpdateChan, done <-chan struct{}, cancel context.CancelFunc) Model {
	return Model{
		Live:    live.NewModel(total),
		Title:   title,
		URL:     url,
		updates: updates,
		done:    done,
		cancel:  cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.updates),
		waitForDone(m.done),
	)
}

func waitForUpdate(sub runner.StatsUpdateChan) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

func waitForDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return doneMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.Stopping {
				return m, tea.Quit
			}
			m.Stopping = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case doneMsg:
		m.Finished = true
		return m, tea.Quit

	case runner.StatsSnapshot:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		return m, tea.Batch(cmd, waitForUpdate(m.updates))
	}

	var cmd tea.Cmd
	m.Live, cmd = m.Live.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Finished {
		return ""
	}

	s := strings.Builder{}
	s.WriteString(styles.Title.Render("🚀 " + m.Title))
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("Target: %s", m.URL)))
	s.WriteString("\n\n")
	s.WriteString(m.Live.View())
	s.WriteString("\n\n")

	if m.Stopping {
		s.WriteString(styles.Warn.Render("Stopping, waiting for running iterations..."))
		s.WriteString("  ")
		s.WriteString(styles.RenderKey("q", "leave now"))
	} else {
		s.WriteString(styles.RenderKey("q", "stop run"))
	}
	return s.String()
}

// Run shows the dashboard until done is closed or the user leaves.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
