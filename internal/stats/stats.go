package stats

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Kind is the aggregation a metric applies to its samples.
type Kind int

const (
	Counter Kind = iota
	Rate
	Trend
)

func (k Kind) String() string {
	switch k {
	case Counter:
		return "counter"
	case Rate:
		return "rate"
	case Trend:
		return "trend"
	default:
		return "unknown"
	}
}

// Tags are attached to every sample so results can be sliced later.
type Tags map[string]string

// Sample is one observation pushed to a Sink.
type Sample struct {
	Metric *Metric
	Time   time.Time
	Value  float64
	Tags   Tags
}

// TagPair selects a sub-metric.
type TagPair struct {
	Key   string
	Value string
}

// Metric accumulates samples of a single kind. Trend values are milliseconds.
type Metric struct {
	Name string
	Kind Kind

	mu      sync.Mutex
	count   int64
	nonZero int64
	sum     float64
	min     float64
	max     float64
	hist    *SafeHistogram

	subMu   sync.RWMutex
	tracked map[string]bool
	subs    map[TagPair]*Metric
}

func newMetric(name string, kind Kind) *Metric {
	m := &Metric{
		Name:    name,
		Kind:    kind,
		min:     math.Inf(1),
		max:     math.Inf(-1),
		tracked: make(map[string]bool),
		subs:    make(map[TagPair]*Metric),
	}
	if kind == Trend {
		m.hist = NewSafeHistogram()
	}
	return m
}

// Add aggregates one value and forwards it to matching sub-metrics.
func (m *Metric) Add(value float64, tags Tags) {
	m.add(value)

	if len(tags) == 0 {
		return
	}
	for k, v := range tags {
		if sub := m.subFor(k, v); sub != nil {
			sub.add(value)
		}
	}
}

func (m *Metric) add(value float64) {
	m.mu.Lock()
	m.count++
	m.sum += value
	if value != 0 {
		m.nonZero++
	}
	if value < m.min {
		m.min = value
	}
	if value > m.max {
		m.max = value
	}
	m.mu.Unlock()

	if m.hist != nil {
		m.hist.RecordValue(int64(math.Round(value * 1000)))
	}
}

func (m *Metric) subFor(key, value string) *Metric {
	pair := TagPair{Key: key, Value: value}

	m.subMu.RLock()
	sub, ok := m.subs[pair]
	tracked := m.tracked[key]
	m.subMu.RUnlock()

	if ok {
		return sub
	}
	if !tracked {
		return nil
	}
	return m.Sub(key, value)
}

// Track makes every distinct value of the tag key get its own sub-metric.
func (m *Metric) Track(key string) {
	m.subMu.Lock()
	m.tracked[key] = true
	m.subMu.Unlock()
}

// Sub returns the sub-metric for key:value, creating it if needed.
func (m *Metric) Sub(key, value string) *Metric {
	pair := TagPair{Key: key, Value: value}

	m.subMu.Lock()
	defer m.subMu.Unlock()

	if sub, ok := m.subs[pair]; ok {
		return sub
	}
	sub := newMetric(m.Name+"{"+key+":"+value+"}", m.Kind)
	m.subs[pair] = sub
	return sub
}

// Subs returns the sub-metrics for a tag key ordered by tag value.
func (m *Metric) Subs(key string) []*Metric {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	var pairs []TagPair
	for p := range m.subs {
		if p.Key == key {
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Value < pairs[j].Value })

	out := make([]*Metric, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, m.subs[p])
	}
	return out
}

// Summary is a point-in-time view of a metric.
type Summary struct {
	Kind    Kind
	Count   int64
	NonZero int64
	Sum     float64
	Min     float64
	Max     float64
	Avg     float64
	Med     float64
	P90     float64
	P95     float64
	P99     float64
}

// Rate is the fraction of non-zero samples.
func (s Summary) Rate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.NonZero) / float64(s.Count)
}

func (m *Metric) Summary() Summary {
	m.mu.Lock()
	s := Summary{
		Kind:    m.Kind,
		Count:   m.count,
		NonZero: m.nonZero,
		Sum:     m.sum,
	}
	if m.count > 0 {
		s.Min = m.min
		s.Max = m.max
		s.Avg = m.sum / float64(m.count)
	}
	m.mu.Unlock()

	if m.Kind == Trend && s.Count > 0 {
		s.Med = m.Percentile(50)
		s.P90 = m.Percentile(90)
		s.P95 = m.Percentile(95)
		s.P99 = m.Percentile(99)
	}
	return s
}

// Percentile returns the p-th percentile in milliseconds. Only trends
// carry a distribution; other kinds return 0.
func (m *Metric) Percentile(p float64) float64 {
	if m.hist == nil || m.hist.TotalCount() == 0 {
		return 0
	}
	return float64(m.hist.ValueAtQuantile(p)) / 1000.0
}
