package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogload/internal/scenario"
	"catalogload/internal/stats"
)

type captured struct {
	mu      sync.Mutex
	headers []http.Header
	urls    []string
}

func (c *captured) add(r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers = append(c.headers, r.Header.Clone())
	c.urls = append(c.urls, r.URL.String())
}

func newServer(t *testing.T, status int, contentType, body string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.add(r)
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newDriver(t *testing.T, sc scenario.Scenario, baseURL string, mutate ...func(*Config)) (*Driver, *stats.Registry, *logtest.Hook) {
	t.Helper()
	cfg := Config{BaseURL: baseURL, Timeout: 5 * time.Second}
	for _, m := range mutate {
		m(&cfg)
	}
	logger, hook := logtest.NewNullLogger()
	reg := stats.NewRegistry()
	d, err := NewDriver(sc, cfg, reg, nil, logger)
	require.NoError(t, err)
	return d, reg, hook
}

func summary(t *testing.T, reg *stats.Registry, name string) stats.Summary {
	t.Helper()
	m, ok := reg.Get(name)
	require.True(t, ok, name)
	return m.Summary()
}

func TestDriver_PassingIteration(t *testing.T) {
	srv, c := newServer(t, 200, "application/json", `[{"productId":1}]`)
	d, reg, hook := newDriver(t, scenario.TopProducts(), srv.URL)

	require.NoError(t, d.RunIteration(context.Background(), 3, 7))

	require.Len(t, c.urls, 1)
	assert.Equal(t, "/products/top?sortType=VIEW_COUNT", c.urls[0])
	assert.Equal(t, "3", c.headers[0].Get("X-VU-ID"))
	assert.Equal(t, "7", c.headers[0].Get("X-Iteration"))
	assert.Equal(t, "user-3", c.headers[0].Get("X-User-ID"))

	assert.Equal(t, 1.0, summary(t, reg, SuccessfulRequests).Sum)
	errs := summary(t, reg, Errors)
	assert.Equal(t, int64(1), errs.Count)
	assert.Equal(t, int64(0), errs.NonZero)
	assert.Equal(t, int64(1), summary(t, reg, "popular_product_response_time").Count)
	assert.Equal(t, int64(1), summary(t, reg, stats.HTTPReqDuration).Count)
	assert.Equal(t, 1.0, summary(t, reg, stats.HTTPReqs).Sum)
	assert.Equal(t, 0.0, summary(t, reg, stats.HTTPReqFailed).Rate())
	assert.Equal(t, 1.0, summary(t, reg, stats.Iterations).Sum)
	assert.Equal(t, float64(len(`[{"productId":1}]`)), summary(t, reg, stats.DataReceived).Sum)

	checks, _ := reg.Get(stats.Checks)
	assert.Len(t, checks.Subs("check"), 5)
	assert.Equal(t, 1.0, checks.Summary().Rate())

	assert.Empty(t, hook.AllEntries())
}

func TestDriver_ServerErrorIsLogged(t *testing.T) {
	srv, _ := newServer(t, 500, "application/json", `{"message":"`+strings.Repeat("x", 300)+`"}`)
	d, reg, hook := newDriver(t, scenario.Products(), srv.URL)

	require.NoError(t, d.RunIteration(context.Background(), 1, 0))

	assert.Equal(t, 0.0, summary(t, reg, SuccessfulRequests).Sum)
	assert.Equal(t, int64(1), summary(t, reg, Errors).NonZero)
	assert.Equal(t, 1.0, summary(t, reg, stats.HTTPReqFailed).Rate())

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "500")
	assert.True(t, strings.HasPrefix(entry.Message, "request failed: 500 - "))
	assert.Len(t, strings.TrimPrefix(entry.Message, "request failed: 500 - "), 100)
	assert.Contains(t, entry.Data["failed"], "status is 200")
}

func TestDriver_ExactlyOneClassificationPerIteration(t *testing.T) {
	var mu sync.Mutex
	n := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n++
		fail := n%3 == 0
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(503)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	d, reg, _ := newDriver(t, scenario.Products(), srv.URL)

	const iterations = 30
	var wg sync.WaitGroup
	for vu := int64(1); vu <= 3; vu++ {
		wg.Add(1)
		go func(vu int64) {
			defer wg.Done()
			for i := int64(0); i < iterations/3; i++ {
				assert.NoError(t, d.RunIteration(context.Background(), vu, i))
			}
		}(vu)
	}
	wg.Wait()

	success := summary(t, reg, SuccessfulRequests).Sum
	errs := summary(t, reg, Errors)
	assert.Equal(t, float64(iterations), success+float64(errs.NonZero))
	assert.Equal(t, int64(iterations), errs.Count)
	assert.Equal(t, float64(10), float64(errs.NonZero))
	assert.Equal(t, int64(iterations), summary(t, reg, "product_response_time").Count)
}

func TestDriver_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	d, reg, hook := newDriver(t, scenario.Products(), base)
	require.NoError(t, d.RunIteration(context.Background(), 1, 0))

	assert.Equal(t, int64(1), summary(t, reg, Errors).NonZero)
	assert.Equal(t, 1.0, summary(t, reg, stats.HTTPReqFailed).Rate())
	assert.Equal(t, int64(1), summary(t, reg, "product_response_time").Count)
	require.Len(t, hook.AllEntries(), 1)
	assert.Contains(t, hook.LastEntry().Message, "request failed: 0 - ")
	assert.NotNil(t, hook.LastEntry().Data[logrus.ErrorKey])
}

func TestDriver_Interrupted(t *testing.T) {
	srv, _ := newServer(t, 200, "application/json", `[]`)
	d, reg, _ := newDriver(t, scenario.Products(), srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.RunIteration(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 1.0, summary(t, reg, stats.InterruptedIterations).Sum)
	assert.Equal(t, int64(0), summary(t, reg, Errors).Count)
	assert.Equal(t, int64(0), summary(t, reg, "product_response_time").Count)
}

func TestDriver_HeaderOverrides(t *testing.T) {
	srv, c := newServer(t, 200, "application/json", `[]`)
	d, _, _ := newDriver(t, scenario.Products(), srv.URL, func(cfg *Config) {
		cfg.Headers = map[string]string{
			"x-user-id":    "member-{{vu}}-{{iter}}",
			"X-Request-ID": "{{uuid}}",
			"X-Shard":      `{{randomChoice "a" "b"}}`,
		}
	})

	require.NoError(t, d.RunIteration(context.Background(), 4, 2))
	require.Len(t, c.headers, 1)
	h := c.headers[0]
	assert.Equal(t, "member-4-2", h.Get("X-User-ID"))
	assert.Len(t, h.Get("X-Request-ID"), 36)
	assert.Contains(t, []string{"a", "b"}, h.Get("X-Shard"))
	assert.Equal(t, "4", h.Get("X-VU-ID"))
}

func TestDriver_KeepResults(t *testing.T) {
	srv, _ := newServer(t, 200, "text/plain", `ok`)
	d, _, _ := newDriver(t, scenario.Products(), srv.URL, func(cfg *Config) { cfg.KeepResults = true })

	require.NoError(t, d.RunIteration(context.Background(), 2, 5))

	results := d.Results()
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, int64(2), r.VU)
	assert.Equal(t, int64(5), r.Iteration)
	assert.Equal(t, 200, r.Status)
	assert.False(t, r.Success)
	assert.ElementsMatch(t, []string{"content-type is JSON", "body is a JSON array"}, r.FailedChecks)
}

func TestDriver_ThinkTime(t *testing.T) {
	d, _, _ := newDriver(t, scenario.Products(), "http://localhost:8080", func(cfg *Config) {
		cfg.ThinkMin = time.Second
		cfg.ThinkMax = 3 * time.Second
	})

	for i := 0; i < 1000; i++ {
		w := d.thinkTime()
		assert.GreaterOrEqual(t, w, time.Second)
		assert.Less(t, w, 3*time.Second)
	}
}

func TestDriver_ThinkSleepStopsOnCancel(t *testing.T) {
	srv, _ := newServer(t, 200, "application/json", `[]`)
	d, _, _ := newDriver(t, scenario.Products(), srv.URL, func(cfg *Config) {
		cfg.ThinkMin = time.Minute
		cfg.ThinkMax = time.Minute
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, d.RunIteration(ctx, 1, 0))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewDriver_Errors(t *testing.T) {
	reg := stats.NewRegistry()
	logger, _ := logtest.NewNullLogger()

	_, err := NewDriver(scenario.Products(), Config{BaseURL: "not a url"}, reg, nil, logger)
	assert.Error(t, err)

	_, err = NewDriver(scenario.Products(), Config{BaseURL: "http://x", ThinkMin: 2 * time.Second, ThinkMax: time.Second}, reg, nil, logger)
	assert.Error(t, err)

	_, err = NewDriver(scenario.Products(), Config{BaseURL: "http://x", Headers: map[string]string{"X-Bad": "{{"}}, reg, nil, logger)
	assert.Error(t, err)

	_, err = NewDriver(scenario.Products(), Config{BaseURL: "http://x", Headers: map[string]string{"X-Bad": "{{.Nope}}"}}, reg, nil, logger)
	assert.ErrorContains(t, err, "X-Bad")

	_, err = NewDriver(scenario.Products(), Config{BaseURL: "http://x", Headers: map[string]string{"X-Bad": `{{randomInt "a" 2}}`}}, reg, nil, logger)
	assert.Error(t, err)
}

func TestDriver_RPSCapHoldsUnderLoad(t *testing.T) {
	srv, c := newServer(t, 200, "application/json", `[]`)
	d, reg, _ := newDriver(t, scenario.Products(), srv.URL, func(cfg *Config) { cfg.RPS = 20 })

	stages := scenario.Stages{{Duration: 10 * time.Millisecond, Target: 10}, {Duration: time.Second, Target: 10}}
	logger, _ := logtest.NewNullLogger()
	e := NewExecutor(stages, 100*time.Millisecond, 10*time.Millisecond, d, logger)

	e.Run(context.Background())

	c.mu.Lock()
	sent := len(c.urls)
	c.mu.Unlock()
	assert.GreaterOrEqual(t, sent, 15)
	assert.LessOrEqual(t, sent, 30)
	assert.LessOrEqual(t, summary(t, reg, stats.HTTPReqs).Count, int64(sent))
	// VUs still queued on the limiter are cut off by the graceful stop.
	assert.Positive(t, summary(t, reg, stats.InterruptedIterations).Sum)
}

func TestDriver_RPSWaitStopsOnCancel(t *testing.T) {
	srv, c := newServer(t, 200, "application/json", `[]`)
	d, reg, _ := newDriver(t, scenario.Products(), srv.URL, func(cfg *Config) { cfg.RPS = 1 })

	require.NoError(t, d.RunIteration(context.Background(), 1, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := d.RunIteration(ctx, 1, 1)

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1.0, summary(t, reg, stats.InterruptedIterations).Sum)
	assert.Equal(t, int64(1), summary(t, reg, Errors).Count)
	assert.Len(t, c.urls, 1)
}
