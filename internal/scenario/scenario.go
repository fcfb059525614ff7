// Package scenario describes what a load run requests and how responses
// are judged.
package scenario

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"catalogload/internal/check"
)

// MaxLatency is the per-request latency budget checked on every response.
const MaxLatency = time.Second

// Scenario is one parameterised request flow.
type Scenario struct {
	Name        string
	Title       string
	RequestName string
	Path        string
	Query       url.Values
	TrendMetric string
	Checks      check.Set

	// Notes are printed after the run as things to look at.
	Notes []string
}

// URL joins the base URL with the scenario path and query.
func (s Scenario) URL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + s.Path)
	if err != nil {
		return "", errors.Wrapf(err, "invalid base url %q", base)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.Errorf("invalid base url %q: scheme must be http or https", base)
	}
	if u.Host == "" {
		return "", errors.Errorf("invalid base url %q: missing host", base)
	}
	if len(s.Query) > 0 {
		u.RawQuery = s.Query.Encode()
	}
	return u.String(), nil
}

func baseChecks() check.Set {
	return check.Set{
		check.StatusIs(http.StatusOK),
		check.LatencyBelow(MaxLatency),
		check.ContentTypeJSON(),
		check.BodyIsJSONArray(),
	}
}

// Products requests the unfiltered product listing.
func Products() Scenario {
	return Scenario{
		Name:        "products",
		Title:       "Product listing load test",
		RequestName: "fetch_products",
		Path:        "/products",
		TrendMetric: "product_response_time",
		Checks:      baseChecks(),
		Notes: []string{
			"response time as load increases",
			"system stability during the 200 VU spike",
			"p95 and p99 response times",
			"throughput (requests per second)",
		},
	}
}

// TopProducts requests the top products ordered by view count.
func TopProducts() Scenario {
	return Scenario{
		Name:        "top-products",
		Title:       "Popular products load test",
		RequestName: "fetch_top_products_view_count",
		Path:        "/products/top",
		Query:       url.Values{"sortType": []string{"VIEW_COUNT"}},
		TrendMetric: "popular_product_response_time",
		Checks:      append(baseChecks(), check.ArrayLenAtMost(10)),
		Notes: []string{
			"ORDER BY viewCount DESC query performance",
			"response time with and without a viewCount index",
			"p95 and p99 response times",
			"throughput (requests per second)",
			"run twice to compare: once without the index, once after adding idx_view_count on viewCount",
		},
	}
}

var builtin = map[string]func() Scenario{
	"products":     Products,
	"top-products": TopProducts,
}

// Lookup returns a built-in scenario by name.
func Lookup(name string) (Scenario, error) {
	fn, ok := builtin[name]
	if !ok {
		return Scenario{}, errors.Errorf("unknown scenario %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
