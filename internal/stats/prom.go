package stats

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var promLabels = []string{"scenario", "name"}

// PromSink mirrors samples into a Prometheus registry so a run can be
// scraped while it is in progress.
type PromSink struct {
	namespace string
	reg       *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	rates    map[string]*prometheus.CounterVec
	trends   map[string]*prometheus.HistogramVec
}

func NewPromSink(namespace string) *PromSink {
	return &PromSink{
		namespace: namespace,
		reg:       prometheus.NewRegistry(),
		counters:  make(map[string]*prometheus.CounterVec),
		rates:     make(map[string]*prometheus.CounterVec),
		trends:    make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying Prometheus registry.
func (p *PromSink) Registry() *prometheus.Registry {
	return p.reg
}

func (p *PromSink) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *PromSink) Push(samples ...Sample) {
	for _, s := range samples {
		if s.Metric == nil {
			continue
		}
		scenario, name := s.Tags["scenario"], s.Tags["name"]

		switch s.Metric.Kind {
		case Counter:
			p.counter(s.Metric.Name).WithLabelValues(scenario, name).Add(s.Value)
		case Rate:
			outcome := "false"
			if s.Value != 0 {
				outcome = "true"
			}
			p.rate(s.Metric.Name).WithLabelValues(scenario, name, outcome).Inc()
		case Trend:
			p.trend(s.Metric.Name).WithLabelValues(scenario, name).Observe(s.Value / 1000.0)
		}
	}
}

func (p *PromSink) counter(name string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      name + "_total",
		Help:      "Cumulative value of " + name + ".",
	}, promLabels)
	p.reg.MustRegister(c)
	p.counters[name] = c
	return c
}

func (p *PromSink) rate(name string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.rates[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      name + "_samples_total",
		Help:      "Samples submitted to " + name + " by outcome.",
	}, append(promLabels, "outcome"))
	p.reg.MustRegister(c)
	p.rates[name] = c
	return c
}

func (p *PromSink) trend(name string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.trends[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      name + "_seconds",
		Help:      "Distribution of " + name + ".",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, promLabels)
	p.reg.MustRegister(h)
	p.trends[name] = h
	return h
}
