// Package scheduler runs tracker jobs on timers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/tracker"
)

// ErrStopTimeout is returned by Stop when running jobs outlive its context.
var ErrStopTimeout = errors.New("scheduler: timed out waiting for jobs")

// Timer implements tracker.Scheduler with time.AfterFunc. Every job runs
// exactly once on its own goroutine with the base context passed to New.
//
// Lifecycle:
//   - Created via New
//   - Jobs are accepted immediately; there is no Start
//   - Stop fires every pending job at once, then waits for all jobs
type Timer struct {
	ctx context.Context

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*entry
	stopped bool
	running int

	wg sync.WaitGroup
}

type entry struct {
	job   tracker.Job
	timer *time.Timer
	due   time.Time
}

var _ tracker.Scheduler = (*Timer)(nil)

// New creates a Timer whose jobs run with ctx.
func New(ctx context.Context) *Timer {
	return &Timer{
		ctx:     ctx,
		pending: make(map[uint64]*entry),
	}
}

// Schedule runs job after delay; a zero or negative delay runs it
// immediately. Once Stop has been called, delayed jobs are dropped.
func (t *Timer) Schedule(delay time.Duration, job tracker.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if delay > 0 && t.stopped {
		logger.Warn("Scheduler stopped, dropping delayed job", "job", jobName(job), "delay", delay)
		return
	}

	t.wg.Add(1)
	if delay <= 0 {
		t.startLocked(job)
		return
	}

	id := t.nextID
	t.nextID++
	e := &entry{job: job, due: time.Now().Add(delay)}
	t.pending[id] = e
	e.timer = time.AfterFunc(delay, func() { t.fire(id) })

	logger.Debug("Job scheduled", "job", jobName(job), "delay", delay)
}

// fire runs the pending job id unless Stop already took it.
func (t *Timer) fire(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pending[id]
	if !ok {
		return
	}
	delete(t.pending, id)
	t.startLocked(e.job)
}

// startLocked runs job on a new goroutine. t.mu must be held and the
// WaitGroup already incremented for the job.
func (t *Timer) startLocked(job tracker.Job) {
	t.running++
	go func() {
		defer t.wg.Done()
		defer func() {
			t.mu.Lock()
			t.running--
			t.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Scheduled job panicked", "job", jobName(job), "panic", r)
			}
		}()
		job.Run(t.ctx)
	}()
}

// Pending returns the number of jobs waiting for their delay.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Running returns the number of jobs currently executing.
func (t *Timer) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// NextDue returns when the earliest pending job fires, or false if none.
func (t *Timer) NextDue() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var next time.Time
	for _, e := range t.pending {
		if next.IsZero() || e.due.Before(next) {
			next = e.due
		}
	}
	return next, !next.IsZero()
}

// Stop fires every pending job immediately and waits until all jobs have
// returned or ctx is done. Immediate jobs are still accepted afterwards;
// delayed ones are dropped so a sweep that keeps re-arming cannot hold
// shutdown open.
func (t *Timer) Stop(ctx context.Context) error {
	t.mu.Lock()
	t.stopped = true
	fired := 0
	for id, e := range t.pending {
		// A timer that already fired is waiting on t.mu in fire; it will
		// find its entry gone.
		e.timer.Stop()
		delete(t.pending, id)
		t.startLocked(e.job)
		fired++
	}
	t.mu.Unlock()

	logger.Info("Stopping scheduler", "fired_early", fired)

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Scheduler stop timed out", "running", t.Running())
		return fmt.Errorf("%w: %w", ErrStopTimeout, ctx.Err())
	}
}

func jobName(job tracker.Job) string {
	if s, ok := job.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", job)
}
