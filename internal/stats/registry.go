package stats

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Built-in metric names recorded for every request.
const (
	HTTPReqs              = "http_reqs"
	HTTPReqDuration       = "http_req_duration"
	HTTPReqFailed         = "http_req_failed"
	Checks                = "checks"
	Iterations            = "iterations"
	DataReceived          = "data_received"
	InterruptedIterations = "interrupted_iterations"
)

// Sink receives samples. Implementations must be safe for concurrent use.
type Sink interface {
	Push(samples ...Sample)
}

// Registry owns the process-wide metrics of a run.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
}

// NewRegistry returns a registry with the built-in metrics registered.
func NewRegistry() *Registry {
	r := &Registry{metrics: make(map[string]*Metric)}

	r.MustRegister(HTTPReqs, Counter)
	r.MustRegister(HTTPReqDuration, Trend)
	r.MustRegister(HTTPReqFailed, Rate)
	r.MustRegister(Checks, Rate).Track("check")
	r.MustRegister(Iterations, Counter)
	r.MustRegister(DataReceived, Counter)
	r.MustRegister(InterruptedIterations, Counter)
	return r
}

// Register adds a metric or returns the existing one of the same kind.
func (r *Registry) Register(name string, kind Kind) (*Metric, error) {
	if name == "" {
		return nil, errors.New("metric name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.metrics[name]; ok {
		if m.Kind != kind {
			return nil, errors.Errorf("metric %q already registered as %s", name, m.Kind)
		}
		return m, nil
	}
	m := newMetric(name, kind)
	r.metrics[name] = m
	return m, nil
}

func (r *Registry) MustRegister(name string, kind Kind) *Metric {
	m, err := r.Register(name, kind)
	if err != nil {
		panic(err)
	}
	return m
}

func (r *Registry) Get(name string) (*Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	return m, ok
}

// Metrics returns all registered metrics ordered by name.
func (r *Registry) Metrics() []*Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Push aggregates samples into their metrics.
func (r *Registry) Push(samples ...Sample) {
	for _, s := range samples {
		if s.Metric == nil {
			continue
		}
		s.Metric.Add(s.Value, s.Tags)
	}
}

// Fanout pushes every sample to each sink in order.
type Fanout []Sink

func (f Fanout) Push(samples ...Sample) {
	for _, s := range f {
		s.Push(samples...)
	}
}
