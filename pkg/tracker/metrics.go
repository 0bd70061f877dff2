package tracker

import "time"

// Metrics receives tracker observations. Implementations must be safe for
// concurrent use. A nil Metrics disables reporting.
type Metrics interface {
	// ObserveAdmission records one Admit decision.
	ObserveAdmission(accepted bool, blockSize int64)

	// RecordSize records the ledger size and capacity.
	RecordSize(size, maxSize int64)

	// ObserveSweep records a completed sweep.
	ObserveSweep(kind string, freed int64, evictions int, duration time.Duration)

	// RecordStoreSkipped records a store dropped from a sweep. reason is
	// "error" or "no_progress".
	RecordStoreSkipped(reason string)

	// RecordAccountingDefect records a negative ledger clamped to zero.
	RecordAccountingDefect(deficit int64)

	// RecordStores records the number of registered stores.
	RecordStores(n int)
}

func (t *Tracker) observeAdmission(accepted bool, blockSize int64) {
	if t.metrics != nil {
		t.metrics.ObserveAdmission(accepted, blockSize)
	}
}

func (t *Tracker) recordSize(size int64) {
	if t.metrics != nil {
		t.metrics.RecordSize(size, t.maxSize)
	}
}

func (t *Tracker) observeSweep(kind SweepKind, freed int64, evictions int, d time.Duration) {
	if t.metrics != nil {
		t.metrics.ObserveSweep(kind.String(), freed, evictions, d)
	}
}

func (t *Tracker) recordSkipped(reason string) {
	if t.metrics != nil {
		t.metrics.RecordStoreSkipped(reason)
	}
}

func (t *Tracker) recordDefect(deficit int64) {
	if t.metrics != nil {
		t.metrics.RecordAccountingDefect(deficit)
	}
}

func (t *Tracker) recordStores(n int) {
	if t.metrics != nil {
		t.metrics.RecordStores(n)
	}
}
