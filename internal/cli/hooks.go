package cli

import (
	"fmt"
	"io"
	"strings"

	"catalogload/internal/runner"
	"catalogload/internal/scenario"
	"catalogload/internal/stats"
	"catalogload/internal/threshold"
	"catalogload/internal/tui/styles"
)

const (
	rule         = "======================================================================"
	DashboardURL = "http://localhost:3000"
)

// Setup prints the run plan before the first iteration.
func Setup(w io.Writer, cfg runner.Config, sc scenario.Scenario, ths threshold.Set) {
	url, err := sc.URL(cfg.BaseURL)
	if err != nil {
		url = cfg.BaseURL + sc.Path
	}

	fmt.Fprintf(w, "\n🚀 %s\n", styles.Title.Render(strings.ToUpper(sc.Title)))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Target URL : %s\n", url)
	fmt.Fprintf(w, "Scenario   : %s (%s)\n", sc.Name, sc.RequestName)
	fmt.Fprintln(w, "Stages     :")
	from := 0
	for i, st := range cfg.Stages {
		fmt.Fprintf(w, "   stage %d: over %s %d→%d VUs\n", i+1, st.Duration, from, st.Target)
		from = st.Target
	}
	fmt.Fprintf(w, "Duration   : %s (graceful stop %s)\n", cfg.Stages.Total(), cfg.GracefulStop)
	fmt.Fprintf(w, "Think time : %s - %s\n", cfg.ThinkMin, cfg.ThinkMax)
	fmt.Fprintf(w, "Timeout    : %s\n", cfg.Timeout)
	if cfg.RPS > 0 {
		fmt.Fprintf(w, "RPS cap    : %d\n", cfg.RPS)
	}

	fmt.Fprintln(w, "Metrics    :")
	for _, m := range trackedMetrics(sc) {
		fmt.Fprintf(w, "   - %s\n", m)
	}
	if len(ths) > 0 {
		fmt.Fprintln(w, "Thresholds :")
		for _, th := range ths {
			for _, e := range th.Exprs {
				fmt.Fprintf(w, "   - %s %s\n", th.Key, e.Source)
			}
		}
	}
	fmt.Fprintf(w, "%s\n\n", rule)
}

// Teardown prints where to look next once every iteration has finished.
func Teardown(w io.Writer, sc scenario.Scenario) {
	fmt.Fprintf(w, "\n\n%s\n", rule)
	fmt.Fprintf(w, "🏁 %s\n\n", styles.Title.Render("TEST COMPLETE"))
	fmt.Fprintln(w, "Results:")
	fmt.Fprintf(w, "   1. Grafana dashboard: %s\n", DashboardURL)
	fmt.Fprintln(w, "   2. The summary below")
	if len(sc.Notes) > 0 {
		fmt.Fprintln(w, "\nThings to look at:")
		for _, n := range sc.Notes {
			fmt.Fprintf(w, "   - %s\n", n)
		}
	}
	fmt.Fprintln(w, rule)
}

func trackedMetrics(sc scenario.Scenario) []string {
	return []string{
		stats.HTTPReqDuration,
		stats.HTTPReqFailed,
		stats.HTTPReqs,
		runner.SuccessfulRequests,
		runner.Errors,
		sc.TrendMetric,
	}
}
