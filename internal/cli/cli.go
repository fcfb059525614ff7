package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"catalogload/internal/config"
	"catalogload/internal/export"
	"catalogload/internal/runner"
	"catalogload/internal/scenario"
	"catalogload/internal/stats"
	"catalogload/internal/storage"
	"catalogload/internal/threshold"
	"catalogload/internal/tui"
)

// Exit codes.
const (
	ExitOK               = 0
	ExitError            = 1
	ExitThresholdsFailed = 99
)

// HistorySaver persists finished runs.
type HistorySaver interface {
	Save(item storage.HistoryItem) error
}

// Options wires a run to its outputs. Prom and History may be nil.
type Options struct {
	Config   config.Config
	Scenario scenario.Scenario
	Log      logrus.FieldLogger
	Out      io.Writer
	Prom     *stats.PromSink
	History  HistorySaver
}

// Start runs the scenario to completion and reports on it. The returned code
// is ExitOK or ExitThresholdsFailed; configuration problems are returned as
// errors before any request is sent.
func Start(ctx context.Context, opts Options) (int, error) {
	cfg := opts.Config
	rc := cfg.Runner()
	w := opts.Out

	reg := stats.NewRegistry()
	var sink stats.Sink = reg
	if opts.Prom != nil {
		sink = stats.Fanout{reg, opts.Prom}
	}

	ths, err := threshold.Parse(cfg.Thresholds)
	if err != nil {
		return ExitError, err
	}

	// The dashboard owns the terminal while it is shown.
	runLog := opts.Log
	if cfg.TUI {
		runLog = quiet(opts.Log)
	}

	updates := make(runner.StatsUpdateChan, 100)
	r, err := runner.NewRunner(rc, opts.Scenario, reg, sink, runLog, updates)
	if err != nil {
		return ExitError, err
	}
	if err := ths.Bind(reg); err != nil {
		return ExitError, err
	}

	Setup(w, rc, opts.Scenario, ths)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(runCtx)
	}()

	if cfg.TUI {
		m := tui.NewModel(opts.Scenario.Title, r.Driver.URL(), r.TotalDuration(), updates, done, cancel)
		if err := tui.Run(ctx, m); err != nil {
			opts.Log.WithError(err).Warn("dashboard stopped")
		}
		cancel()
		<-done
	} else {
		monitor(w, r, updates, done)
	}

	elapsed := r.Elapsed()
	report := ths.Evaluate(elapsed)
	summary := export.Build(export.Meta{
		Scenario:  opts.Scenario.Name,
		URL:       r.Driver.URL(),
		StartedAt: started,
		Elapsed:   elapsed,
		Stages:    rc.Stages.String(),
		MaxVUs:    r.Executor.MaxVUs(),
	}, reg, report, runner.SuccessfulRequests, runner.Errors)

	if opts.History != nil {
		item := storage.NewHistoryItem(summary, started)
		if err := opts.History.Save(item); err != nil {
			opts.Log.WithError(err).Error("saving run history failed")
		} else {
			summary = item.Summary
		}
	}

	Teardown(w, opts.Scenario)
	PrintSummary(w, summary)

	if cfg.Out != "" {
		if err := export.WriteAll(cfg.Out, opts.Scenario.RequestName, r.Driver.URL(), r.Results(), summary); err != nil {
			opts.Log.WithError(err).Error("export failed")
		} else {
			fmt.Fprintf(w, "\n💾 Reports saved to %s.{csv,json,_summary.json}\n", cfg.Out)
		}
	}

	if !report.Passed() {
		return ExitThresholdsFailed, nil
	}
	return ExitOK, nil
}

// quiet returns a logger with the fields, level and hooks of log that writes
// nothing to the terminal.
func quiet(log logrus.FieldLogger) logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	var fields logrus.Fields
	switch src := log.(type) {
	case *logrus.Entry:
		l.SetLevel(src.Logger.GetLevel())
		l.ReplaceHooks(src.Logger.Hooks)
		fields = src.Data
	case *logrus.Logger:
		l.SetLevel(src.GetLevel())
		l.ReplaceHooks(src.Hooks)
	}
	return l.WithFields(fields)
}

// monitor prints a progress line until the run is done.
func monitor(w io.Writer, r *runner.Runner, updates runner.StatsUpdateChan, done <-chan struct{}) {
	total := r.TotalDuration()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-updates:
			// Drain updates
		case <-ticker.C:
			fmt.Fprint(w, progressLine(r.Snapshot(), total))
		case <-done:
			fmt.Fprint(w, progressLine(r.Snapshot(), total))
			return
		}
	}
}

func progressLine(s runner.StatsSnapshot, total time.Duration) string {
	pct := 0.0
	if total > 0 {
		pct = s.Elapsed.Seconds() / total.Seconds()
	}
	if pct > 1.0 {
		pct = 1.0
	}

	if s.Elapsed >= total {
		return fmt.Sprintf("\r%s %3.0f%% | %s/%s | Draining... | Iter: %d | OK: %d | Err: %d          ",
			progressBar(1.0, 20), 100.0,
			s.Elapsed.Round(time.Second), total,
			s.Iterations, s.Success, s.Fail)
	}
	return fmt.Sprintf("\r%s %3.0f%% | %s/%s | VUs: %3d | Iter: %d | OK: %d | Err: %d",
		progressBar(pct, 20), pct*100,
		s.Elapsed.Round(time.Second), total,
		s.ActiveVUs, s.Iterations, s.Success, s.Fail)
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
