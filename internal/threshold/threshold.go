// Package threshold parses and evaluates pass/fail conditions on aggregate
// metrics, e.g. "p(95)<1000" on http_req_duration.
package threshold

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"catalogload/internal/stats"
)

// Defaults are applied when the configuration names no thresholds.
func Defaults() map[string][]string {
	return map[string][]string{
		stats.HTTPReqDuration: {"p(95)<1000"},
		stats.HTTPReqFailed:   {"rate<0.01"},
		"errors":              {"rate<0.01"},
	}
}

var (
	exprRe = regexp.MustCompile(`^\s*(count|rate|avg|min|max|med|p\(\s*[0-9]+(?:\.[0-9]+)?\s*\))\s*(<=|>=|==|!=|<|>)\s*(-?[0-9]+(?:\.[0-9]+)?(?:[eE]-?[0-9]+)?)\s*$`)
	keyRe  = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:\{\s*([^:{}]+?)\s*:\s*([^{}]*?)\s*\})?\s*$`)
)

// Expr is one parsed condition.
type Expr struct {
	Source string
	Agg    string
	Pct    float64
	Op     string
	Value  float64
}

func ParseExpr(s string) (Expr, error) {
	m := exprRe.FindStringSubmatch(s)
	if m == nil {
		return Expr{}, errors.Errorf("invalid threshold expression %q", s)
	}
	e := Expr{Source: strings.TrimSpace(s), Agg: m[1], Op: m[2]}

	if strings.HasPrefix(e.Agg, "p(") {
		raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(e.Agg, "p("), ")"))
		pct, err := strconv.ParseFloat(raw, 64)
		if err != nil || pct < 0 || pct > 100 {
			return Expr{}, errors.Errorf("invalid percentile in %q", s)
		}
		e.Agg, e.Pct = "p", pct
	}

	v, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Expr{}, errors.Wrapf(err, "threshold %q", s)
	}
	e.Value = v
	return e, nil
}

func (e Expr) compare(v float64) bool {
	switch e.Op {
	case "<":
		return v < e.Value
	case "<=":
		return v <= e.Value
	case ">":
		return v > e.Value
	case ">=":
		return v >= e.Value
	case "==":
		return v == e.Value
	case "!=":
		return v != e.Value
	}
	return false
}

func (e Expr) allowed(k stats.Kind) bool {
	switch k {
	case stats.Counter:
		return e.Agg == "count" || e.Agg == "rate"
	case stats.Rate:
		return e.Agg == "rate"
	case stats.Trend:
		switch e.Agg {
		case "avg", "min", "max", "med", "p":
			return true
		}
	}
	return false
}

// Threshold is every expression declared for one metric key.
type Threshold struct {
	Key    string
	Metric string
	Sub    *stats.TagPair
	Exprs  []Expr

	metric *stats.Metric
}

// Set is an ordered list of thresholds.
type Set []*Threshold

// Parse reads a metric-key to expressions map.
func Parse(cfg map[string][]string) (Set, error) {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out Set
	for _, key := range keys {
		m := keyRe.FindStringSubmatch(key)
		if m == nil {
			return nil, errors.Errorf("invalid threshold metric %q", key)
		}
		th := &Threshold{Key: strings.TrimSpace(key), Metric: m[1]}
		if m[2] != "" {
			th.Sub = &stats.TagPair{Key: m[2], Value: m[3]}
		}
		for _, src := range cfg[key] {
			e, err := ParseExpr(src)
			if err != nil {
				return nil, errors.Wrapf(err, "metric %s", key)
			}
			th.Exprs = append(th.Exprs, e)
		}
		out = append(out, th)
	}
	return out, nil
}

// Bind resolves every threshold against the registry. Sub-metrics are
// declared here so they collect samples from the start of the run.
func (s Set) Bind(reg *stats.Registry) error {
	for _, th := range s {
		m, ok := reg.Get(th.Metric)
		if !ok {
			return errors.Errorf("threshold on unknown metric %q", th.Metric)
		}
		for _, e := range th.Exprs {
			if !e.allowed(m.Kind) {
				return errors.Errorf("threshold %q: %s is not supported on %s metric %s", e.Source, e.Agg, m.Kind, th.Metric)
			}
		}
		if th.Sub != nil {
			m = m.Sub(th.Sub.Key, th.Sub.Value)
		}
		th.metric = m
	}
	return nil
}

// Result is the outcome of a single expression.
type Result struct {
	Key    string
	Expr   string
	Value  float64
	Passed bool
}

type Report []Result

func (r Report) Passed() bool {
	for _, res := range r {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Evaluate checks every expression against the current aggregates.
// elapsed converts counter totals into per-second rates.
func (s Set) Evaluate(elapsed time.Duration) Report {
	var out Report
	for _, th := range s {
		for _, e := range th.Exprs {
			res := Result{Key: th.Key, Expr: e.Source}
			if th.metric != nil {
				res.Value = value(th.metric, e, elapsed)
				res.Passed = e.compare(res.Value)
			}
			out = append(out, res)
		}
	}
	return out
}

func value(m *stats.Metric, e Expr, elapsed time.Duration) float64 {
	s := m.Summary()
	switch e.Agg {
	case "count":
		return s.Sum
	case "rate":
		if m.Kind == stats.Counter {
			if elapsed <= 0 {
				return 0
			}
			return s.Sum / elapsed.Seconds()
		}
		return s.Rate()
	case "avg":
		return s.Avg
	case "min":
		return s.Min
	case "max":
		return s.Max
	case "med":
		return s.Med
	case "p":
		return m.Percentile(e.Pct)
	}
	return 0
}

func (r Result) String() string {
	mark := "✓"
	if !r.Passed {
		mark = "✗"
	}
	return fmt.Sprintf("%s %s %s (actual %.4g)", mark, r.Key, r.Expr, r.Value)
}
