package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const histogramMax = int64(10 * time.Minute / time.Microsecond)

// SafeHistogram is a thread-safe wrapper around hdrhistogram.
// Values are microseconds.
type SafeHistogram struct {
	hist *hdrhistogram.Histogram
	mu   sync.Mutex
}

func NewSafeHistogram() *SafeHistogram {
	// 1us to 10min, 3 significant figures
	h := hdrhistogram.New(1, histogramMax, 3)
	return &SafeHistogram{hist: h}
}

// RecordValue records a latency in microseconds. Values outside the
// trackable range are clamped so no sample is lost.
func (h *SafeHistogram) RecordValue(v int64) error {
	if v < 0 {
		v = 0
	}
	if v > histogramMax {
		v = histogramMax
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.RecordValue(v)
}

// ValueAtQuantile takes q in [0, 100].
func (h *SafeHistogram) ValueAtQuantile(q float64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.ValueAtQuantile(q)
}

func (h *SafeHistogram) TotalCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}
