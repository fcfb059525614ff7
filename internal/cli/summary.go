package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"catalogload/internal/export"
	"catalogload/internal/stats"
	"catalogload/internal/tui/styles"
)

const dots = 28

// PrintSummary writes the end-of-run report.
func PrintSummary(w io.Writer, s export.Summary) {
	dur := time.Duration(s.DurationSec * float64(time.Second))

	fmt.Fprintf(w, "\n📊 %s\n", styles.Title.Render("LOAD TEST RESULTS"))
	fmt.Fprintln(w, rule)
	if s.RunID != "" {
		fmt.Fprintf(w, "Run ID         : %s\n", s.RunID)
	}
	fmt.Fprintf(w, "Scenario       : %s\n", s.Scenario)
	fmt.Fprintf(w, "Target URL     : %s\n", s.URL)
	fmt.Fprintf(w, "Total Duration : %s\n", dur.Round(time.Millisecond))
	fmt.Fprintf(w, "Max VUs        : %d\n", s.MaxVUs)
	fmt.Fprintf(w, "Iterations     : %d\n", s.Iterations)
	fmt.Fprintf(w, "Requests Sent  : %d (%.2f/s)\n", s.Requests, s.RPS)
	fmt.Fprintf(w, "Success        : %d\n", s.Success)
	fmt.Fprintf(w, "Failures       : %d (%.2f%%)\n", s.Fail, s.ErrorRate*100)

	if len(s.Checks) > 0 {
		fmt.Fprintf(w, "\n✅ CHECKS\n")
		for _, c := range s.Checks {
			total := c.Passes + c.Fails
			pct := 0.0
			if total > 0 {
				pct = float64(c.Passes) / float64(total) * 100
			}
			fmt.Fprintf(w, "   %s %-28s %6.2f%%  ✓ %d  ✗ %d\n", styles.Mark(c.Fails == 0), c.Name, pct, c.Passes, c.Fails)
		}
	}

	names := make([]string, 0, len(s.Metrics))
	for n := range s.Metrics {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "\n⏱️  METRICS\n")
	for _, n := range names {
		fmt.Fprintf(w, "   %s: %s\n", pad(n), metricLine(s.Metrics[n]))
	}

	if len(s.Thresholds) > 0 {
		fmt.Fprintf(w, "\n🎯 THRESHOLDS\n")
		for _, th := range s.Thresholds {
			fmt.Fprintf(w, "   %s %s %s (actual %.4g)\n", styles.Mark(th.Passed), th.Metric, th.Expr, th.Value)
		}
	}

	fmt.Fprintln(w, rule)
	if s.Passed {
		fmt.Fprintln(w, styles.Success.Render("PASS: all thresholds met"))
	} else {
		fmt.Fprintln(w, styles.Error.Render("FAIL: some thresholds were crossed"))
	}
}

func metricLine(m export.MetricSummary) string {
	switch m.Kind {
	case stats.Counter.String():
		return fmt.Sprintf("%g  %.2f/s", m.Sum, m.Rate)
	case stats.Rate.String():
		return fmt.Sprintf("%.2f%%  %d/%d", m.Rate*100, int64(m.Sum), m.Count)
	case stats.Trend.String():
		if m.Count == 0 {
			return "no samples"
		}
		return fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s p(99)=%s",
			ms(m.Avg), ms(m.Min), ms(m.Med), ms(m.Max), ms(m.P90), ms(m.P95), ms(m.P99))
	}
	return ""
}

func ms(v float64) string {
	return fmt.Sprintf("%.2fms", v)
}

func pad(name string) string {
	if len(name) >= dots {
		return name
	}
	return name + strings.Repeat(".", dots-len(name))
}
