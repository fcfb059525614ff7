package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"catalogload/internal/scenario"
)

const (
	DefaultTick         = 50 * time.Millisecond
	DefaultGracefulStop = 30 * time.Second
	DefaultErrorBackoff = time.Second
)

// Iterator runs one iteration for a virtual user.
type Iterator interface {
	RunIteration(ctx context.Context, vu, iter int64) error
}

// Executor ramps virtual users through the configured stages. Every VU is
// a goroutine that keeps calling the Iterator while it is scheduled.
type Executor struct {
	stages       scenario.Stages
	gracefulStop time.Duration
	tick         time.Duration
	it           Iterator
	log          logrus.FieldLogger
	backoff      time.Duration // pause after a failed iteration

	mu  sync.Mutex
	vus []*virtualUser
	wg  sync.WaitGroup

	scheduled  int64
	iterations uint64
	started    atomic.Int64 // unix nanos
}

type virtualUser struct {
	id     int64
	iter   int64 // owned by the VU goroutine
	active atomic.Bool
	wake   chan struct{}
}

func NewExecutor(stages scenario.Stages, gracefulStop, tick time.Duration, it Iterator, log logrus.FieldLogger) *Executor {
	if tick <= 0 {
		tick = DefaultTick
	}
	if gracefulStop < 0 {
		gracefulStop = 0
	}
	return &Executor{
		stages:       stages,
		gracefulStop: gracefulStop,
		tick:         tick,
		it:           it,
		log:          log,
		backoff:      DefaultErrorBackoff,
	}
}

// Run blocks until the plan has finished and every VU has stopped.
// Cancelling ctx stops the plan early and interrupts running iterations.
func (e *Executor) Run(ctx context.Context) {
	iterCtx, hardStop := context.WithCancel(ctx)
	defer hardStop()
	done := make(chan struct{})

	e.started.Store(time.Now().UnixNano())
	total := e.stages.Total()

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	e.scale(iterCtx, done, e.stages.TargetAt(0))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			elapsed := e.Elapsed()
			if elapsed >= total {
				break loop
			}
			e.scale(iterCtx, done, e.stages.TargetAt(elapsed))
		}
	}

	e.scale(iterCtx, done, 0)
	close(done)

	stopped := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(stopped)
	}()

	if ctx.Err() != nil {
		<-stopped
		return
	}

	grace := time.NewTimer(e.gracefulStop)
	defer grace.Stop()
	select {
	case <-stopped:
	case <-grace.C:
		e.log.WithField("graceful_stop", e.gracefulStop).Warn("graceful stop expired, interrupting running iterations")
		hardStop()
		<-stopped
	}
}

// scale activates the lowest-numbered VUs up to target and deactivates the rest.
func (e *Executor) scale(ctx context.Context, done <-chan struct{}, target int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.vus) < target {
		v := &virtualUser{
			id:   int64(len(e.vus) + 1),
			wake: make(chan struct{}, 1),
		}
		v.active.Store(true)
		e.vus = append(e.vus, v)

		e.wg.Add(1)
		go e.loop(ctx, done, v)
	}

	for i, v := range e.vus {
		want := i < target
		if v.active.Load() == want {
			continue
		}
		v.active.Store(want)
		if want {
			select {
			case v.wake <- struct{}{}:
			default:
			}
		}
	}
	atomic.StoreInt64(&e.scheduled, int64(target))
}

func (e *Executor) loop(ctx context.Context, done <-chan struct{}, v *virtualUser) {
	defer e.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		if !v.active.Load() {
			select {
			case <-v.wake:
				continue
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}

		err := e.it.RunIteration(ctx, v.id, v.iter)
		v.iter++
		switch {
		case err == nil:
			atomic.AddUint64(&e.iterations, 1)
		case errors.Is(err, ErrInterrupted):
			return
		default:
			e.log.WithError(err).WithField("vu", v.id).Error("iteration failed")
			select {
			case <-time.After(e.backoff):
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// Elapsed is the time since Run started.
func (e *Executor) Elapsed() time.Duration {
	start := e.started.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

// ActiveVUs is the number of VUs currently scheduled.
func (e *Executor) ActiveVUs() int64 {
	return atomic.LoadInt64(&e.scheduled)
}

// Iterations is the number of completed iterations.
func (e *Executor) Iterations() uint64 {
	return atomic.LoadUint64(&e.iterations)
}

// MaxVUs is the number of VU goroutines ever started.
func (e *Executor) MaxVUs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vus)
}
