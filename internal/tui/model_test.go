package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogload/internal/runner"
)

func newTestModel(cancelled *int) Model {
	updates := make(runner.StatsUpdateChan, 1)
	done := make(chan struct{})
	return NewModel("products", "http://localhost:8080/products", time.Minute, updates, done, func() { *cancelled++ })
}

func TestModel_Snapshot(t *testing.T) {
	var cancelled int
	m := newTestModel(&cancelled)

	next, cmd := m.Update(runner.StatsSnapshot{
		Elapsed:    30 * time.Second,
		ActiveVUs:  120,
		Iterations: 900,
		Requests:   900,
		Success:    891,
		Fail:       9,
		P90Ms:      180,
	})
	require.NotNil(t, cmd)

	got := next.(Model)
	assert.Equal(t, int64(120), got.Live.Stats.ActiveVUs)
	assert.InDelta(t, 0.5, got.Live.Percent(), 1e-9)
	assert.InDelta(t, 1.0, got.Live.ErrorRate(), 1e-9)
	assert.Contains(t, got.View(), "VUs: 120")
	assert.Contains(t, got.View(), "ERR: 1.00%")
}

func TestModel_QuitKeys(t *testing.T) {
	var cancelled int
	m := newTestModel(&cancelled)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, cancelled)
	assert.True(t, next.(Model).Stopping)
	assert.Contains(t, next.(Model).View(), "Stopping")

	_, cmd = next.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 1, cancelled)
}

func TestModel_Done(t *testing.T) {
	var cancelled int
	m := newTestModel(&cancelled)

	next, cmd := m.Update(doneMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, next.(Model).Finished)
	assert.Empty(t, next.(Model).View())
	assert.Zero(t, cancelled)
}
