package runner

import (
	"context"
	"crypto/tls"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"catalogload/internal/check"
	"catalogload/internal/scenario"
	"catalogload/internal/stats"
)

// ErrInterrupted is returned when the run is cancelled before an iteration
// could be classified.
var ErrInterrupted = errors.New("iteration interrupted")

const snippetLen = 100

// Scenario-level metrics recorded next to the built-ins.
const (
	SuccessfulRequests = "successful_requests"
	Errors             = "errors"
)

type driverMetrics struct {
	reqs, duration, failed, checks  *stats.Metric
	iterations, received, interrupt *stats.Metric
	success, errors, trend          *stats.Metric
}

// Driver runs one scenario iteration per call.
type Driver struct {
	sc      scenario.Scenario
	url     string
	client  *http.Client
	sink    stats.Sink
	m       driverMetrics
	engine  *TemplateEngine
	headers []headerTemplate
	limiter *rate.Limiter
	log     logrus.FieldLogger

	thinkMin, thinkMax time.Duration

	keep    bool
	mu      sync.Mutex
	results []Result
}

// NewClient builds the shared HTTP client used by every virtual user.
func NewClient(cfg Config) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	if cfg.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: t,
	}
}

// NewDriver registers the scenario metrics in reg and pushes samples to
// sink. sink may be nil, in which case reg receives the samples.
func NewDriver(sc scenario.Scenario, cfg Config, reg *stats.Registry, sink stats.Sink, log logrus.FieldLogger) (*Driver, error) {
	u, err := sc.URL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.ThinkMax < cfg.ThinkMin {
		return nil, errors.Errorf("think time max %s is below min %s", cfg.ThinkMax, cfg.ThinkMin)
	}
	if sink == nil {
		sink = reg
	}

	trend, err := reg.Register(sc.TrendMetric, stats.Trend)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		sc:       sc,
		url:      u,
		client:   NewClient(cfg),
		sink:     sink,
		engine:   NewTemplateEngine(),
		log:      log,
		thinkMin: cfg.ThinkMin,
		thinkMax: cfg.ThinkMax,
		keep:     cfg.KeepResults,
	}
	d.m.reqs, _ = reg.Get(stats.HTTPReqs)
	d.m.duration, _ = reg.Get(stats.HTTPReqDuration)
	d.m.failed, _ = reg.Get(stats.HTTPReqFailed)
	d.m.checks, _ = reg.Get(stats.Checks)
	d.m.iterations, _ = reg.Get(stats.Iterations)
	d.m.received, _ = reg.Get(stats.DataReceived)
	d.m.interrupt, _ = reg.Get(stats.InterruptedIterations)
	d.m.trend = trend
	if d.m.success, err = reg.Register(SuccessfulRequests, stats.Counter); err != nil {
		return nil, err
	}
	if d.m.errors, err = reg.Register(Errors, stats.Rate); err != nil {
		return nil, err
	}

	if d.headers, err = d.engine.compileHeaders(cfg.Headers); err != nil {
		return nil, err
	}
	if cfg.RPS > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return d, nil
}

// URL is the full request URL.
func (d *Driver) URL() string {
	return d.url
}

// RunIteration issues one request, classifies it and sleeps for the think time.
func (d *Driver) RunIteration(ctx context.Context, vu, iter int64) error {
	tags := stats.Tags{
		"scenario":  d.sc.Name,
		"name":      d.sc.RequestName,
		"vu_id":     strconv.FormatInt(vu, 10),
		"iteration": strconv.FormatInt(iter, 10),
	}

	req, err := d.newRequest(ctx, vu, iter)
	if err != nil {
		return err
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.interrupted(tags)
			return ErrInterrupted
		}
	}

	started := time.Now()
	resp := d.do(req)
	if resp.Err != nil && ctx.Err() != nil {
		d.interrupted(tags)
		return ErrInterrupted
	}

	outcome := d.sc.Checks.Evaluate(resp)
	d.record(started, resp, outcome, tags)

	if !outcome.Passed {
		entry := d.log.WithFields(logrus.Fields{
			"scenario":  d.sc.Name,
			"vu":        vu,
			"iteration": iter,
			"failed":    outcome.Failed(),
		})
		if resp.Err != nil {
			entry = entry.WithError(resp.Err)
		}
		entry.Warnf("request failed: %d - %s", resp.Status, resp.Snippet(snippetLen))
	}

	if d.keep {
		res := Result{
			TimeStamp:    started,
			VU:           vu,
			Iteration:    iter,
			Status:       resp.Status,
			Latency:      resp.Duration,
			Bytes:        int64(len(resp.Body)),
			Success:      outcome.Passed,
			FailedChecks: outcome.Failed(),
		}
		if resp.Err != nil {
			res.Error = resp.Err.Error()
		}
		d.mu.Lock()
		d.results = append(d.results, res)
		d.mu.Unlock()
	}

	d.think(ctx)
	return nil
}

func (d *Driver) newRequest(ctx context.Context, vu, iter int64) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	data := TemplateData{VU: vu, Iter: iter}
	for _, h := range d.headers {
		v, err := d.engine.Execute(h.tmpl, data)
		if err != nil {
			return nil, errors.Wrapf(err, "header %s", h.name)
		}
		req.Header.Set(h.name, v)
	}
	return req, nil
}

func (d *Driver) do(req *http.Request) *check.Response {
	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return &check.Response{Err: err, Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return &check.Response{
		Status:   resp.StatusCode,
		Header:   resp.Header,
		Body:     body,
		Duration: time.Since(start),
		Err:      err,
	}
}

// record pushes exactly one timing sample and exactly one success-or-error
// classification for the iteration.
func (d *Driver) record(at time.Time, resp *check.Response, outcome check.Outcome, tags stats.Tags) {
	ms := float64(resp.Duration) / float64(time.Millisecond)

	failed := 0.0
	if resp.Err != nil || resp.Status < 200 || resp.Status > 399 {
		failed = 1
	}

	samples := []stats.Sample{
		{Metric: d.m.reqs, Time: at, Value: 1, Tags: tags},
		{Metric: d.m.duration, Time: at, Value: ms, Tags: tags},
		{Metric: d.m.trend, Time: at, Value: ms, Tags: tags},
		{Metric: d.m.failed, Time: at, Value: failed, Tags: tags},
		{Metric: d.m.received, Time: at, Value: float64(len(resp.Body)), Tags: tags},
	}

	for _, r := range outcome.Results {
		ct := make(stats.Tags, len(tags)+1)
		for k, v := range tags {
			ct[k] = v
		}
		ct["check"] = r.Name
		samples = append(samples, stats.Sample{Metric: d.m.checks, Time: at, Value: boolValue(r.Passed), Tags: ct})
	}

	if outcome.Passed {
		samples = append(samples,
			stats.Sample{Metric: d.m.success, Time: at, Value: 1, Tags: tags},
			stats.Sample{Metric: d.m.errors, Time: at, Value: 0, Tags: tags},
		)
	} else {
		samples = append(samples, stats.Sample{Metric: d.m.errors, Time: at, Value: 1, Tags: tags})
	}
	samples = append(samples, stats.Sample{Metric: d.m.iterations, Time: at, Value: 1, Tags: tags})

	d.sink.Push(samples...)
}

func (d *Driver) interrupted(tags stats.Tags) {
	d.sink.Push(stats.Sample{Metric: d.m.interrupt, Time: time.Now(), Value: 1, Tags: tags})
}

// thinkTime is uniform in [thinkMin, thinkMax).
func (d *Driver) thinkTime() time.Duration {
	span := d.thinkMax - d.thinkMin
	if span <= 0 {
		return d.thinkMin
	}
	return d.thinkMin + time.Duration(rand.Int63n(int64(span)))
}

func (d *Driver) think(ctx context.Context) {
	wait := d.thinkTime()
	if wait <= 0 {
		return
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Results returns a copy of the retained results.
func (d *Driver) Results() []Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Result, len(d.results))
	copy(out, d.results)
	return out
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
