package block

import (
	"context"
	"errors"
	"time"
)

// Metrics receives backend operation observations.
type Metrics interface {
	// ObserveOperation records one backend call. status is "success",
	// "not_found" or "error".
	ObserveOperation(backend, operation, status string, bytes int64, d time.Duration)
}

// Instrument wraps s so every call is reported to m under the backend name.
// A nil m returns s unchanged.
func Instrument(s Store, backend string, m Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{Store: s, backend: backend, metrics: m}
}

type instrumented struct {
	Store
	backend string
	metrics Metrics
}

func (i *instrumented) observe(op string, start time.Time, bytes int64, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrBlockNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	i.metrics.ObserveOperation(i.backend, op, status, bytes, time.Since(start))
}

func (i *instrumented) WriteBlock(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := i.Store.WriteBlock(ctx, key, data)
	i.observe("write", start, int64(len(data)), err)
	return err
}

func (i *instrumented) ReadBlock(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := i.Store.ReadBlock(ctx, key)
	i.observe("read", start, int64(len(data)), err)
	return data, err
}

func (i *instrumented) DeleteBlock(ctx context.Context, key string) error {
	start := time.Now()
	err := i.Store.DeleteBlock(ctx, key)
	i.observe("delete", start, 0, err)
	return err
}

func (i *instrumented) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := i.Store.ListByPrefix(ctx, prefix)
	i.observe("list", start, 0, err)
	return keys, err
}

// Unwrap returns the instrumented store.
func (i *instrumented) Unwrap() Store {
	return i.Store
}
