package storage

import (
	"time"

	"github.com/google/uuid"

	"catalogload/internal/export"
)

// HistoryItem is one stored run.
type HistoryItem struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   export.Summary `json:"summary"`
}

// NewHistoryItem stamps a summary with a time-ordered id.
func NewHistoryItem(s export.Summary, at time.Time) HistoryItem {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	s.RunID = id.String()
	return HistoryItem{ID: s.RunID, Timestamp: at, Summary: s}
}

// Status is PASS or FAIL depending on the run's thresholds.
func (h HistoryItem) Status() string {
	if h.Summary.Passed {
		return "PASS"
	}
	return "FAIL"
}
