package runner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"catalogload/internal/scenario"
	"catalogload/internal/stats"
)

// Runner wires a scenario Driver to the stage Executor and publishes live
// snapshots of the registry.
type Runner struct {
	Cfg      Config
	Scenario scenario.Scenario
	Stats    *stats.Registry
	Driver   *Driver
	Executor *Executor

	// Event Channel
	Updates StatsUpdateChan

	finished atomic.Int64
}

func NewRunner(cfg Config, sc scenario.Scenario, reg *stats.Registry, sink stats.Sink, log logrus.FieldLogger, updates StatsUpdateChan) (*Runner, error) {
	if err := cfg.Stages.Validate(); err != nil {
		return nil, err
	}
	d, err := NewDriver(sc, cfg, reg, sink, log)
	if err != nil {
		return nil, err
	}

	if updates == nil {
		// Avoid nil panics if not provided
		updates = make(StatsUpdateChan, 10)
	}

	return &Runner{
		Cfg:      cfg,
		Scenario: sc,
		Stats:    reg,
		Driver:   d,
		Executor: NewExecutor(cfg.Stages, cfg.GracefulStop, cfg.Tick, d, log),
		Updates:  updates,
	}, nil
}

// Run executes the whole plan and returns once every VU has stopped.
func (r *Runner) Run(ctx context.Context) {
	tickCtx, stop := context.WithCancel(ctx)
	r.StartTickLoop(tickCtx, 200*time.Millisecond)

	r.Executor.Run(ctx)
	r.finished.Store(int64(r.Executor.Elapsed()))

	stop()
	r.sendUpdate()
}

// Elapsed is the run time so far, or the final run time once Run returned.
func (r *Runner) Elapsed() time.Duration {
	if d := r.finished.Load(); d > 0 {
		return time.Duration(d)
	}
	return r.Executor.Elapsed()
}

// StartTickLoop starts a goroutine that pushes stats updates
func (r *Runner) StartTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sendUpdate()
			}
		}
	}()
}

func (r *Runner) sendUpdate() {
	s := r.Snapshot()

	// Non-blocking send
	select {
	case r.Updates <- s:
	default:
		// Drop update if channel full, UI acts as backpressure
	}
}

// Snapshot reads the current aggregates.
func (r *Runner) Snapshot() StatsSnapshot {
	s := StatsSnapshot{
		Elapsed:    r.Elapsed(),
		ActiveVUs:  r.Executor.ActiveVUs(),
		Iterations: r.Executor.Iterations(),
	}
	if m, ok := r.Stats.Get(stats.HTTPReqs); ok {
		s.Requests = uint64(m.Summary().Sum)
	}
	if m, ok := r.Stats.Get(SuccessfulRequests); ok {
		s.Success = uint64(m.Summary().Sum)
	}
	if m, ok := r.Stats.Get(Errors); ok {
		s.Fail = uint64(m.Summary().NonZero)
	}
	if m, ok := r.Stats.Get(stats.DataReceived); ok {
		s.Bytes = uint64(m.Summary().Sum)
	}
	if m, ok := r.Stats.Get(stats.HTTPReqDuration); ok {
		sum := m.Summary()
		s.P50Ms = sum.Med
		s.P90Ms = sum.P90
		s.P99Ms = sum.P99
		s.MaxMs = sum.Max
	}
	return s
}

// Results returns the retained per-request results.
func (r *Runner) Results() []Result {
	return r.Driver.Results()
}

// TotalDuration is the planned run length.
func (r *Runner) TotalDuration() time.Duration {
	return r.Cfg.Stages.Total()
}
