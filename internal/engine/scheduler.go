package engine

import (
	"sync"
	"time"

	"github.com/arcworks/realistic-survival/server/internal/platform/logger"
)

// TickRate defines how often the thirst loop runs.
const TickRate = 1 * time.Second

// TaskHandle cancels a scheduled repeating task. Cancellation is
// cooperative: a firing already dispatched still completes.
type TaskHandle interface {
	Cancel()
}

// TaskRunner is a host-provided repeating-task facility. The first firing
// happens after initialDelay, then every period.
type TaskRunner interface {
	RunRepeating(owner string, fn func(), initialDelay, period time.Duration) TaskHandle
}

// Scheduler drives the tick callback at a fixed period until stopped.
// There are two implementations: one delegating to a TaskRunner, and a
// self-rescheduling timer used when no runner is available. Selection
// happens once, in NewScheduler, never per call.
type Scheduler interface {
	Start()
	Stop()
}

// NewScheduler probes the available scheduling capability and returns the
// matching implementation. A non-positive period means no usable cadence at
// all: the system logs the degraded mode and simply never ticks.
func NewScheduler(runner TaskRunner, period time.Duration, fn func(), log *logger.Logger) Scheduler {
	if period <= 0 {
		log.Warn("No scheduling facility available; thirst will not tick.")
		return noopScheduler{}
	}
	if runner != nil {
		return &hostScheduler{runner: runner, period: period, fn: fn}
	}
	log.Warn("No task runner available; using self-rescheduling timer fallback for thirst.")
	return &timerScheduler{period: period, fn: fn}
}

// noopScheduler is the explicit degraded mode: it never fires.
type noopScheduler struct{}

func (noopScheduler) Start() {}
func (noopScheduler) Stop()  {}

// hostScheduler delegates to the host's repeating-task facility and keeps
// the returned handle for cancellation.
type hostScheduler struct {
	runner TaskRunner
	period time.Duration
	fn     func()

	mu     sync.Mutex
	handle TaskHandle
}

func (s *hostScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		return
	}
	s.handle = s.runner.RunRepeating("thirst", s.fn, s.period, s.period)
}

func (s *hostScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.Cancel()
		s.handle = nil
	}
}

// timerScheduler is the fallback: a self-rescheduling one-shot timer. The
// next firing is armed relative to the instant the current firing started,
// so a slow callback does not compound drift, and firings never overlap
// because the next timer is only armed after the callback returns.
type timerScheduler struct {
	period time.Duration
	fn     func()

	mu      sync.Mutex
	stopped bool
	gen     uint64 // increments per Start; stale chains see a mismatch
	timer   *time.Timer
}

func (s *timerScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return
	}
	s.stopped = false
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.period, func() { s.run(gen) })
}

// run executes one firing, then re-arms — but only while its generation is
// current. A firing in flight across a Stop/Start cycle would otherwise
// re-arm alongside the chain the new Start armed.
func (s *timerScheduler) run(gen uint64) {
	started := time.Now()
	s.fn()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || gen != s.gen {
		return
	}
	next := s.period - time.Since(started)
	if next < 0 {
		next = 0
	}
	s.timer = time.AfterFunc(next, func() { s.run(gen) })
}

func (s *timerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// TickerRunner is the server's own repeating-task facility, backed by
// time.Ticker. It plays the "host scheduler" role in production.
type TickerRunner struct{}

func (TickerRunner) RunRepeating(owner string, fn func(), initialDelay, period time.Duration) TaskHandle {
	task := &tickerTask{stop: make(chan struct{})}
	go func() {
		delay := time.NewTimer(initialDelay)
		defer delay.Stop()
		select {
		case <-task.stop:
			return
		case <-delay.C:
		}

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		fn()
		for {
			select {
			case <-task.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return task
}

type tickerTask struct {
	once sync.Once
	stop chan struct{}
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() { close(t.stop) })
}
