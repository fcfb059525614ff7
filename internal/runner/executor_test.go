package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogload/internal/scenario"
)

type fakeIterator struct {
	sleep time.Duration

	running atomic.Int64
	peak    atomic.Int64

	mu    sync.Mutex
	calls map[int64][]int64
}

func newFakeIterator(sleep time.Duration) *fakeIterator {
	return &fakeIterator{sleep: sleep, calls: make(map[int64][]int64)}
}

func (f *fakeIterator) RunIteration(ctx context.Context, vu, iter int64) error {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[vu] = append(f.calls[vu], iter)
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return ErrInterrupted
	case <-time.After(f.sleep):
		return nil
	}
}

func TestExecutor_RampsThroughStages(t *testing.T) {
	stages := scenario.Stages{
		{Duration: 150 * time.Millisecond, Target: 3},
		{Duration: 150 * time.Millisecond, Target: 5},
		{Duration: 150 * time.Millisecond, Target: 0},
	}
	it := newFakeIterator(2 * time.Millisecond)
	logger, _ := logtest.NewNullLogger()
	e := NewExecutor(stages, time.Second, 5*time.Millisecond, it, logger)

	start := time.Now()
	e.Run(context.Background())

	assert.GreaterOrEqual(t, time.Since(start), stages.Total())
	assert.LessOrEqual(t, e.MaxVUs(), 5)
	assert.GreaterOrEqual(t, e.MaxVUs(), 4)
	assert.LessOrEqual(t, it.peak.Load(), int64(5))
	assert.Equal(t, int64(0), it.running.Load())
	assert.Equal(t, int64(0), e.ActiveVUs())
	assert.Positive(t, e.Iterations())

	it.mu.Lock()
	defer it.mu.Unlock()
	var total uint64
	for vu, iters := range it.calls {
		assert.GreaterOrEqual(t, vu, int64(1))
		assert.LessOrEqual(t, vu, int64(e.MaxVUs()))
		for i, iter := range iters {
			assert.Equal(t, int64(i), iter, "vu %d iterations must be contiguous", vu)
		}
		total += uint64(len(iters))
	}
	assert.Equal(t, e.Iterations(), total)
}

func TestExecutor_CancelStopsPromptly(t *testing.T) {
	stages := scenario.Stages{
		{Duration: 10 * time.Millisecond, Target: 4},
		{Duration: time.Minute, Target: 4},
	}
	it := newFakeIterator(time.Hour)
	logger, _ := logtest.NewNullLogger()
	e := NewExecutor(stages, time.Minute, 5*time.Millisecond, it, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	e.Run(ctx)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int64(0), it.running.Load())
	assert.Equal(t, 4, e.MaxVUs())
}

func TestExecutor_GracefulStopExpires(t *testing.T) {
	stages := scenario.Stages{{Duration: 30 * time.Millisecond, Target: 2}}
	it := newFakeIterator(time.Hour)
	logger, hook := logtest.NewNullLogger()
	e := NewExecutor(stages, 50*time.Millisecond, 5*time.Millisecond, it, logger)

	start := time.Now()
	e.Run(context.Background())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
	assert.Equal(t, int64(0), it.running.Load())
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "graceful stop expired")
}

func TestExecutor_LetsIterationsFinish(t *testing.T) {
	stages := scenario.Stages{{Duration: 30 * time.Millisecond, Target: 2}}
	it := newFakeIterator(60 * time.Millisecond)
	logger, hook := logtest.NewNullLogger()
	e := NewExecutor(stages, time.Second, 5*time.Millisecond, it, logger)

	e.Run(context.Background())

	assert.Empty(t, hook.AllEntries())
	assert.GreaterOrEqual(t, e.Iterations(), uint64(1))
	assert.Equal(t, uint64(e.MaxVUs()), e.Iterations())
}

func TestExecutor_ReactivatedVUKeepsCounter(t *testing.T) {
	stages := scenario.Stages{
		{Duration: 60 * time.Millisecond, Target: 2},
		{Duration: 10 * time.Millisecond, Target: 0},
		{Duration: 60 * time.Millisecond, Target: 0},
		{Duration: 10 * time.Millisecond, Target: 2},
		{Duration: 60 * time.Millisecond, Target: 2},
	}
	it := newFakeIterator(3 * time.Millisecond)
	logger, _ := logtest.NewNullLogger()
	e := NewExecutor(stages, time.Second, 2*time.Millisecond, it, logger)

	e.Run(context.Background())

	it.mu.Lock()
	defer it.mu.Unlock()
	assert.LessOrEqual(t, e.MaxVUs(), 2)
	for vu, iters := range it.calls {
		for i, iter := range iters {
			assert.Equal(t, int64(i), iter, "vu %d", vu)
		}
	}
}

type failingIterator struct {
	calls atomic.Int64
}

func (f *failingIterator) RunIteration(ctx context.Context, vu, iter int64) error {
	f.calls.Add(1)
	return fmt.Errorf("vu %d broken", vu)
}

func TestExecutor_BacksOffAfterFailedIteration(t *testing.T) {
	it := &failingIterator{}
	logger, hook := logtest.NewNullLogger()
	stages := scenario.Stages{{Duration: 200 * time.Millisecond, Target: 2}, {Duration: 100 * time.Millisecond, Target: 2}}
	e := NewExecutor(stages, time.Second, 10*time.Millisecond, it, logger)
	e.backoff = 100 * time.Millisecond

	e.Run(context.Background())

	assert.LessOrEqual(t, it.calls.Load(), int64(12))
	assert.Positive(t, it.calls.Load())
	assert.Equal(t, uint64(0), e.Iterations())
	assert.Len(t, hook.AllEntries(), int(it.calls.Load()))
}
