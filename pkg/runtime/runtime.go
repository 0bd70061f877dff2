// Package runtime assembles the tracker, its scheduler and the configured
// caches, serves them over the auxiliary HTTP servers and drains them on
// shutdown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/api/handlers"
	"github.com/marmos91/dittocache/pkg/cache"
	"github.com/marmos91/dittocache/pkg/config"
	"github.com/marmos91/dittocache/pkg/scheduler"
	"github.com/marmos91/dittocache/pkg/store/block"
	"github.com/marmos91/dittocache/pkg/tracker"
)

// DefaultShutdownTimeout bounds Shutdown when no timeout is configured.
const DefaultShutdownTimeout = 30 * time.Second

// AuxiliaryServer is an HTTP server (API, Metrics) managed by the runtime.
type AuxiliaryServer interface {
	// Start starts the server and blocks until ctx is cancelled or it fails.
	Start(ctx context.Context) error
	// Stop initiates graceful shutdown.
	Stop(ctx context.Context) error
	// Port returns the TCP port the server is listening on.
	Port() int
}

// Runtime owns every long-lived component of a dittocache process.
//
// Lifecycle:
//   - New builds backends, caches, the scheduler and the tracker, and
//     registers every cache with the tracker
//   - Serve runs the auxiliary servers until ctx is cancelled, then calls
//     Shutdown
//   - Shutdown stops the servers, drains every cache, stops the scheduler
//     and closes the backends
type Runtime struct {
	tracker   *tracker.Tracker
	scheduler *scheduler.Timer

	caches   []*cache.Cache
	byName   map[string]*cache.Cache
	backends map[string]string // cache name -> backend type

	mu      sync.Mutex
	servers []AuxiliaryServer

	version         string
	started         time.Time
	shutdownTimeout time.Duration

	serveOnce    sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

var _ handlers.Runtime = (*Runtime)(nil)

// Option configures optional Runtime settings.
type Option func(*Runtime)

// WithVersion sets the version reported by Status.
func WithVersion(v string) Option {
	return func(r *Runtime) {
		r.version = v
	}
}

// New builds the runtime described by cfg. m carries the metric collectors
// and may be nil.
//
// Flush jobs run with a context detached from ctx, so cancelling ctx does
// not abort sweeps; Shutdown drains the caches explicitly.
func New(ctx context.Context, cfg *config.Config, m *config.MetricsResult, opts ...Option) (*Runtime, error) {
	if m == nil {
		m = &config.MetricsResult{}
	}

	r := &Runtime{
		byName:          make(map[string]*cache.Cache, len(cfg.Caches)),
		backends:        make(map[string]string, len(cfg.Caches)),
		started:         time.Now(),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if r.shutdownTimeout <= 0 {
		r.shutdownTimeout = DefaultShutdownTimeout
	}
	for _, opt := range opts {
		opt(r)
	}

	r.scheduler = scheduler.New(context.WithoutCancel(ctx))

	t, err := tracker.New(tracker.Config{
		MaxSize:          cfg.Tracker.MaxSize.Int64(),
		Period:           cfg.Tracker.Period,
		StrictAccounting: cfg.Tracker.StrictAccounting,
	}, r.scheduler, tracker.WithMetrics(m.Tracker))
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker: %w", err)
	}
	r.tracker = t

	for _, cc := range cfg.Caches {
		if err := r.addCache(ctx, cc, m); err != nil {
			r.closeBackends()
			return nil, err
		}
	}

	logger.Info("Runtime initialized",
		logger.KeyCacheMaxSize, t.MaxSize(),
		"period", t.Period(),
		"caches", len(r.caches))
	return r, nil
}

func (r *Runtime) addCache(ctx context.Context, cc config.CacheConfig, m *config.MetricsResult) error {
	if _, exists := r.byName[cc.Name]; exists {
		return fmt.Errorf("cache %q configured twice", cc.Name)
	}

	backend, err := config.CreateBackend(ctx, cc.Backend, m.Backend)
	if err != nil {
		return fmt.Errorf("cache %q: %w", cc.Name, err)
	}

	c, err := cache.New(cc.Name, backend, r.tracker, cache.WithMetrics(m.Cache))
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("cache %q: %w", cc.Name, err)
	}

	r.caches = append(r.caches, c)
	r.byName[cc.Name] = c
	r.backends[cc.Name] = cc.Backend.Type
	r.tracker.Register(c)

	logger.Info("Cache registered", logger.CacheName(cc.Name), logger.Backend(cc.Backend.Type))
	return nil
}

// SetAPIServer adds the REST API server to the servers run by Serve.
func (r *Runtime) SetAPIServer(s AuxiliaryServer) {
	r.addServer("api", s)
}

// SetMetricsServer adds the metrics server to the servers run by Serve.
func (r *Runtime) SetMetricsServer(s AuxiliaryServer) {
	r.addServer("metrics", s)
}

func (r *Runtime) addServer(kind string, s AuxiliaryServer) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.servers = append(r.servers, s)
	r.mu.Unlock()
	logger.Info("Server registered", "server", kind, "port", s.Port())
}

// Tracker returns the memory tracker.
func (r *Runtime) Tracker() *tracker.Tracker {
	return r.tracker
}

// Caches returns every cache in configuration order.
func (r *Runtime) Caches() []*cache.Cache {
	return r.caches
}

// Cache looks up a cache by name.
func (r *Runtime) Cache(name string) (*cache.Cache, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Status returns a snapshot of the tracker, scheduler and caches.
func (r *Runtime) Status() handlers.Status {
	st := handlers.Status{
		Version: r.version,
		Uptime:  time.Since(r.started).Round(time.Second).String(),
		Tracker: r.tracker.Stats(),
		Scheduler: handlers.SchedulerStatus{
			Pending: r.scheduler.Pending(),
			Running: r.scheduler.Running(),
		},
		Caches: make([]handlers.CacheStatus, 0, len(r.caches)),
	}
	if due, ok := r.scheduler.NextDue(); ok {
		st.Scheduler.NextDue = &due
	}
	for _, c := range r.caches {
		st.Caches = append(st.Caches, handlers.CacheStatus{
			Name:    c.Name(),
			Backend: r.backends[c.Name()],
			Size:    c.Size(),
			Blocks:  c.Len(),
		})
	}
	return st
}

// Serve runs every registered server until ctx is cancelled or one of them
// fails, then shuts the runtime down. Serve may only be called once.
func (r *Runtime) Serve(ctx context.Context) error {
	err := errors.New("runtime already served")
	r.serveOnce.Do(func() {
		err = r.serve(ctx)
	})
	return err
}

func (r *Runtime) serve(ctx context.Context) error {
	logger.Info("Starting dittocache runtime")

	r.mu.Lock()
	servers := append([]AuxiliaryServer(nil), r.servers...)
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			return s.Start(gctx)
		})
	}

	<-gctx.Done()
	serveErr := g.Wait()
	if serveErr != nil {
		logger.Error("Server failed - initiating shutdown", logger.Err(serveErr))
	} else {
		logger.Info("Shutdown signal received", "reason", context.Cause(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()
	shutdownErr := r.Shutdown(shutdownCtx)

	logger.Info("dittocache runtime stopped")
	return errors.Join(serveErr, shutdownErr)
}

// Shutdown stops the servers, closes and drains every cache, stops the
// scheduler and closes the backends, in that order. Later calls return the
// first result.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		r.shutdownErr = r.shutdown(ctx)
	})
	return r.shutdownErr
}

func (r *Runtime) shutdown(ctx context.Context) error {
	var errs []error

	r.mu.Lock()
	servers := r.servers
	r.mu.Unlock()
	for _, s := range servers {
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("Draining caches", logger.CacheSize(r.tracker.Size()))
	for _, c := range r.caches {
		_ = c.Close()
		if err := r.tracker.Unregister(ctx, c); err != nil {
			logger.Error("Failed to drain cache",
				logger.CacheName(c.Name()), logger.CacheSize(c.Size()), logger.Err(err))
			errs = append(errs, fmt.Errorf("drain cache %q: %w", c.Name(), err))
		}
	}

	if err := r.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	r.closeBackends()
	return errors.Join(errs...)
}

func (r *Runtime) closeBackends() {
	for _, c := range r.caches {
		if err := c.Backend().Close(); err != nil {
			logger.Warn("Failed to close backend", logger.CacheName(c.Name()), logger.Err(err))
		}
	}
}

// backend returns the backend of the named cache, unwrapped from any
// instrumentation.
func (r *Runtime) backend(name string) (block.Store, bool) {
	c, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	s := c.Backend()
	if u, ok := s.(interface{ Unwrap() block.Store }); ok {
		s = u.Unwrap()
	}
	return s, true
}
