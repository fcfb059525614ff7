// Package export writes run results and the end-of-run summary to disk.
package export

import (
	"math"
	"time"

	"catalogload/internal/stats"
	"catalogload/internal/threshold"
)

// Summary is the persisted view of a finished run. It is written next to
// the exports and stored in the history database.
type Summary struct {
	RunID       string    `json:"run_id,omitempty"`
	Scenario    string    `json:"scenario"`
	URL         string    `json:"url"`
	StartedAt   time.Time `json:"started_at"`
	DurationSec float64   `json:"duration_sec"`
	Stages      string    `json:"stages"`
	MaxVUs      int       `json:"max_vus"`

	Iterations uint64  `json:"iterations"`
	Requests   uint64  `json:"requests"`
	Success    uint64  `json:"success"`
	Fail       uint64  `json:"fail"`
	ErrorRate  float64 `json:"error_rate"`
	RPS        float64 `json:"rps"`

	Metrics    map[string]MetricSummary `json:"metrics"`
	Checks     []CheckSummary           `json:"checks"`
	Thresholds []ThresholdSummary       `json:"thresholds"`
	Passed     bool                     `json:"passed"`
}

type MetricSummary struct {
	Kind  string  `json:"kind"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum,omitempty"`
	Rate  float64 `json:"rate,omitempty"`
	Avg   float64 `json:"avg,omitempty"`
	Min   float64 `json:"min,omitempty"`
	Med   float64 `json:"med,omitempty"`
	Max   float64 `json:"max,omitempty"`
	P90   float64 `json:"p90,omitempty"`
	P95   float64 `json:"p95,omitempty"`
	P99   float64 `json:"p99,omitempty"`
}

type CheckSummary struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

type ThresholdSummary struct {
	Metric string  `json:"metric"`
	Expr   string  `json:"expr"`
	Value  float64 `json:"value"`
	Passed bool    `json:"passed"`
}

// Meta describes the run a summary belongs to.
type Meta struct {
	RunID     string
	Scenario  string
	URL       string
	StartedAt time.Time
	Elapsed   time.Duration
	Stages    string
	MaxVUs    int
}

// Build reads every metric in reg. success and failure name the scenario's
// success counter and error rate.
func Build(meta Meta, reg *stats.Registry, report threshold.Report, success, failure string) Summary {
	s := Summary{
		RunID:       meta.RunID,
		Scenario:    meta.Scenario,
		URL:         meta.URL,
		StartedAt:   meta.StartedAt,
		DurationSec: meta.Elapsed.Seconds(),
		Stages:      meta.Stages,
		MaxVUs:      meta.MaxVUs,
		Metrics:     make(map[string]MetricSummary),
		Passed:      report.Passed(),
	}

	for _, m := range reg.Metrics() {
		sum := m.Summary()
		ms := MetricSummary{Kind: m.Kind.String(), Count: sum.Count}
		switch m.Kind {
		case stats.Counter:
			ms.Sum = sum.Sum
			if secs := meta.Elapsed.Seconds(); secs > 0 {
				ms.Rate = round(sum.Sum / secs)
			}
		case stats.Rate:
			ms.Sum = sum.Sum
			ms.Rate = round(sum.Rate())
		case stats.Trend:
			ms.Avg, ms.Min, ms.Med, ms.Max = round(sum.Avg), round(sum.Min), round(sum.Med), round(sum.Max)
			ms.P90, ms.P95, ms.P99 = round(sum.P90), round(sum.P95), round(sum.P99)
		}
		s.Metrics[m.Name] = ms

		switch m.Name {
		case stats.Iterations:
			s.Iterations = uint64(sum.Sum)
		case stats.HTTPReqs:
			s.Requests = uint64(sum.Sum)
			s.RPS = ms.Rate
		case success:
			s.Success = uint64(sum.Sum)
		case failure:
			s.Fail = uint64(sum.NonZero)
			s.ErrorRate = ms.Rate
		}
	}

	if checks, ok := reg.Get(stats.Checks); ok {
		for _, sub := range checks.Subs("check") {
			cs := sub.Summary()
			s.Checks = append(s.Checks, CheckSummary{
				Name:   checkName(sub.Name),
				Passes: cs.NonZero,
				Fails:  cs.Count - cs.NonZero,
			})
		}
	}

	for _, r := range report {
		s.Thresholds = append(s.Thresholds, ThresholdSummary{
			Metric: r.Key,
			Expr:   r.Expr,
			Value:  round(r.Value),
			Passed: r.Passed,
		})
	}
	return s
}

// checkName strips the "checks{check:" prefix from a sub-metric name.
func checkName(sub string) string {
	const prefix = stats.Checks + "{check:"
	if len(sub) > len(prefix)+1 && sub[:len(prefix)] == prefix {
		return sub[len(prefix) : len(sub)-1]
	}
	return sub
}

func round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1000) / 1000
}
