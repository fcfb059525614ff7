package runner

import (
	"time"

	"catalogload/internal/scenario"
)

type Config struct {
	BaseURL string

	// Closed-loop ramp plan
	Stages       scenario.Stages
	GracefulStop time.Duration
	Tick         time.Duration

	Timeout  time.Duration
	ThinkMin time.Duration
	ThinkMax time.Duration
	RPS      int // global cap, 0 = unlimited
	Insecure bool

	// Extra request headers; values are templates.
	Headers map[string]string

	// Keep every Result for export.
	KeepResults bool
}

// Result is one request as seen by a virtual user.
type Result struct {
	TimeStamp    time.Time     `json:"timestamp"`
	VU           int64         `json:"vu"`
	Iteration    int64         `json:"iteration"`
	Status       int           `json:"status"`
	Latency      time.Duration `json:"latency_ns"`
	Bytes        int64         `json:"bytes"`
	Success      bool          `json:"success"`
	FailedChecks []string      `json:"failed_checks,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// StatsSnapshot is sent over the channel
type StatsSnapshot struct {
	Elapsed    time.Duration
	ActiveVUs  int64
	Iterations uint64
	Requests   uint64
	Success    uint64
	Fail       uint64
	Bytes      uint64

	// Pre-calculated percentiles of http_req_duration for the UI
	P50Ms float64
	P90Ms float64
	P99Ms float64
	MaxMs float64
}

// StatsUpdateChan is the channel type
type StatsUpdateChan chan StatsSnapshot
