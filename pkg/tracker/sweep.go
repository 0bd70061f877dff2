package tracker

import (
	"context"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
)

// Job is a unit of work handed to a Scheduler.
type Job interface {
	Run(ctx context.Context)
}

// Scheduler runs each scheduled job exactly once, asynchronously, no
// earlier than delay after Schedule was called. Schedule must not block and
// must not run the job on the calling goroutine.
type Scheduler interface {
	Schedule(delay time.Duration, job Job)
}

// SweepKind distinguishes periodic sweeps from capacity-triggered ones.
type SweepKind int

const (
	SweepRoutine SweepKind = iota
	SweepUrgent
)

func (k SweepKind) String() string {
	if k == SweepUrgent {
		return "urgent"
	}
	return "routine"
}

// routineFlush is the delayed sweep armed by the first admission after a
// flush.
type routineFlush struct {
	t *Tracker
}

func (j routineFlush) Run(ctx context.Context) {
	j.t.runRoutine(ctx)
}

func (routineFlush) String() string { return "tracker.routine-flush" }

// urgentFlush is the immediate sweep started by a refused admission. The
// admission has already set runningJob.
type urgentFlush struct {
	t *Tracker
}

func (j urgentFlush) Run(ctx context.Context) {
	j.t.runUrgent(ctx)
}

func (urgentFlush) String() string { return "tracker.urgent-flush" }

func (t *Tracker) runRoutine(ctx context.Context) {
	t.mu.Lock()
	if t.runningJob {
		// An urgent sweep is draining already; it re-arms on completion if
		// bytes remain.
		t.queuedJob = false
		t.counters.abortedSweeps++
		t.mu.Unlock()
		logger.Debug("Routine flush skipped, sweep already running")
		return
	}
	t.runningJob = true
	t.counters.routineSweeps++
	t.mu.Unlock()

	t.sweep(ctx, SweepRoutine)
	t.finishSweep(SweepRoutine)
}

func (t *Tracker) runUrgent(ctx context.Context) {
	t.mu.Lock()
	t.counters.urgentSweeps++
	t.mu.Unlock()

	t.sweep(ctx, SweepUrgent)
	t.finishSweep(SweepUrgent)
}

// finishSweep clears the flags owned by a sweep of the given kind. If bytes
// are still accounted and nothing is queued, a routine sweep is armed so
// they are flushed within one period. This covers admissions that arrived
// while a routine sweep was running and therefore saw queuedJob set.
func (t *Tracker) finishSweep(kind SweepKind) {
	t.mu.Lock()
	t.runningJob = false
	if kind == SweepRoutine {
		t.queuedJob = false
	}
	rearm := t.size > 0 && !t.queuedJob
	if rearm {
		t.queuedJob = true
		t.counters.rearms++
	}
	size := t.size
	t.mu.Unlock()

	if rearm {
		logger.Debug("Re-arming routine flush", logger.SweepKind(kind.String()), logger.CacheSize(size))
		t.scheduler.Schedule(t.period, routineFlush{t: t})
	}
}

// sweep drains registered stores until the ledger is empty or no store can
// make progress. Stores are visited in registration order, one block per
// store per pass. A store whose eviction fails or frees nothing is skipped
// for the rest of the sweep.
func (t *Tracker) sweep(ctx context.Context, kind SweepKind) {
	stores := t.snapshot()
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanSweep,
		telemetry.SweepKind(kind.String()),
		telemetry.StoreCount(len(stores)),
		telemetry.LedgerSize(t.Size()),
		telemetry.LedgerMax(t.maxSize),
	)
	defer span.End()

	start := time.Now()
	var freed int64
	evictions, skippedCount := 0, 0
	skipped := make([]bool, len(stores))

	defer func() {
		d := time.Since(start)
		telemetry.SetAttributes(ctx,
			telemetry.FreedBytes(freed),
			telemetry.Evictions(evictions),
			telemetry.Skipped(skippedCount),
		)
		t.observeSweep(kind, freed, evictions, d)
		logger.DebugCtx(ctx, "Sweep finished",
			logger.SweepKind(kind.String()), logger.Freed(freed),
			logger.KeyEvictions, evictions, logger.CacheSize(t.Size()),
			logger.DurationMs(float64(d.Microseconds())/1000.0))
	}()

	skip := func(i int, reason string) {
		skipped[i] = true
		skippedCount++
		t.mu.Lock()
		t.counters.skippedStores++
		t.mu.Unlock()
		t.recordSkipped(reason)
	}

	for {
		progressed := false
		for i, s := range stores {
			if skipped[i] || s.Size() <= 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				telemetry.RecordError(ctx, err)
				logger.WarnCtx(ctx, "Sweep interrupted", logger.SweepKind(kind.String()), logger.Err(err))
				return
			}

			n, err := s.EvictOneBlock(ctx)
			if err != nil {
				logger.WarnCtx(ctx, "Store eviction failed, skipping for this sweep",
					logger.SweepKind(kind.String()), logger.Err(err))
				telemetry.AddEvent(ctx, "store skipped")
				skip(i, "error")
				continue
			}
			if n <= 0 {
				if s.Size() > 0 {
					logger.WarnCtx(ctx, "Store freed nothing, skipping for this sweep",
						logger.SweepKind(kind.String()))
					skip(i, "no_progress")
				}
				continue
			}

			progressed = true
			freed += n
			evictions++
			t.noteEvictions(1, n)
			if t.subtract(n, "sweep") == 0 {
				return
			}
		}
		if !progressed {
			return
		}
	}
}
