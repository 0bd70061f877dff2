package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittocache/internal/bytesize"
	"github.com/marmos91/dittocache/internal/cli/output"
	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/cache"
	"github.com/marmos91/dittocache/pkg/config"
	"github.com/marmos91/dittocache/pkg/runtime"
)

var (
	benchWriters   int
	benchBlocks    int
	benchBlockSize string
	benchMaxBlock  string
	benchMaxSize   string
	benchPeriod    time.Duration
	benchLatency   time.Duration
	benchOutput    string
	benchVerbose   bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run an in-process write benchmark",
	Long: `Write blocks from concurrent writers into the configured caches and report
how many were buffered, how many were written through because the memory
budget was exhausted, and how long the final drain took.

Without --config a single in-memory cache is used. --latency slows down
memory backends to make the write-through path visible.

Examples:
  # 8 writers, 1000 blocks of 64Ki each, 16Mi budget
  dittocache bench --max-size 16Mi

  # Slow backend, tiny budget: most writes go through
  dittocache bench --max-size 1Mi --latency 2ms

  # Benchmark the caches of a config file
  dittocache bench --config ./config.yaml -o json`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVarP(&benchWriters, "writers", "w", 8, "Number of concurrent writers")
	benchCmd.Flags().IntVarP(&benchBlocks, "blocks", "n", 1000, "Blocks written by each writer")
	benchCmd.Flags().StringVar(&benchBlockSize, "block-size", "64Ki", "Size of each block")
	benchCmd.Flags().StringVar(&benchMaxBlock, "max-block-size", "", "Draw block sizes uniformly from [block-size, max-block-size]")
	benchCmd.Flags().StringVar(&benchMaxSize, "max-size", "", "Override tracker.max_size")
	benchCmd.Flags().DurationVar(&benchPeriod, "period", 0, "Override tracker.period")
	benchCmd.Flags().DurationVar(&benchLatency, "latency", 0, "Write latency of memory backends")
	benchCmd.Flags().StringVarP(&benchOutput, "output", "o", "table", "Output format (table|json|yaml)")
	benchCmd.Flags().BoolVarP(&benchVerbose, "verbose", "v", false, "Keep the configured log level instead of WARN")
}

// BenchOptions describes one benchmark run.
type BenchOptions struct {
	Writers   int
	Blocks    int
	BlockSize int64

	// MaxBlockSize, when above BlockSize, makes block sizes uniform in
	// [BlockSize, MaxBlockSize].
	MaxBlockSize int64
}

// BenchResult summarizes a benchmark run.
type BenchResult struct {
	Writers       int           `json:"writers" yaml:"writers"`
	Caches        int           `json:"caches" yaml:"caches"`
	Blocks        int64         `json:"blocks" yaml:"blocks"`
	BlockSize     int64         `json:"block_size" yaml:"block_size"`
	Bytes         int64         `json:"bytes" yaml:"bytes"`
	MaxSize       int64         `json:"max_size" yaml:"max_size"`
	Buffered      int64         `json:"buffered" yaml:"buffered"`
	WriteThrough  int64         `json:"write_through" yaml:"write_through"`
	Failed        int64         `json:"failed" yaml:"failed"`
	UrgentSweeps  uint64        `json:"urgent_sweeps" yaml:"urgent_sweeps"`
	RoutineSweeps uint64        `json:"routine_sweeps" yaml:"routine_sweeps"`
	PeakBuffered  int64         `json:"peak_buffered" yaml:"peak_buffered"`
	WriteTime     time.Duration `json:"write_time" yaml:"write_time"`
	DrainTime     time.Duration `json:"drain_time" yaml:"drain_time"`
}

// Throughput returns written bytes per second over the write phase.
func (r *BenchResult) Throughput() float64 {
	if r.WriteTime <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.WriteTime.Seconds()
}

func (r *BenchResult) Headers() []string {
	return []string{"Metric", "Value"}
}

func (r *BenchResult) Rows() [][]string {
	pct := func(n int64) string {
		if r.Blocks == 0 {
			return "0"
		}
		return fmt.Sprintf("%d (%.1f%%)", n, 100*float64(n)/float64(r.Blocks))
	}
	return [][]string{
		{"writers", strconv.Itoa(r.Writers)},
		{"caches", strconv.Itoa(r.Caches)},
		{"blocks", fmt.Sprintf("%d (%s)", r.Blocks, output.Bytes(r.Bytes))},
		{"memory budget", output.Bytes(r.MaxSize)},
		{"buffered", pct(r.Buffered)},
		{"write-through", pct(r.WriteThrough)},
		{"failed", strconv.FormatInt(r.Failed, 10)},
		{"peak buffered", output.Usage(r.PeakBuffered, r.MaxSize)},
		{"sweeps", fmt.Sprintf("%d routine, %d urgent", r.RoutineSweeps, r.UrgentSweeps)},
		{"write time", r.WriteTime.Round(time.Millisecond).String()},
		{"throughput", output.Bytes(int64(r.Throughput())) + "/s"},
		{"drain time", r.DrainTime.Round(time.Millisecond).String()},
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(benchOutput)
	if err != nil {
		return err
	}

	cfg, err := benchConfig(cmd)
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	if !benchVerbose {
		logger.SetLevel("WARN")
	}

	blockSize, err := bytesize.Parse(benchBlockSize)
	if err != nil {
		return fmt.Errorf("invalid --block-size: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := runtime.New(ctx, cfg, nil, runtime.WithVersion(Version))
	if err != nil {
		return err
	}

	opts := BenchOptions{
		Writers:   benchWriters,
		Blocks:    benchBlocks,
		BlockSize: blockSize.Int64(),
	}
	if benchMaxBlock != "" {
		maxBlock, err := bytesize.Parse(benchMaxBlock)
		if err != nil {
			return fmt.Errorf("invalid --max-block-size: %w", err)
		}
		opts.MaxBlockSize = maxBlock.Int64()
	}

	result, err := RunBench(ctx, rt, opts)
	if err != nil {
		return err
	}

	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(result)
}

// benchConfig loads --config when given, otherwise a single memory cache,
// then applies the tracker and latency overrides.
func benchConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if path := GetConfigFile(); path != "" {
		loaded, err := config.MustLoad(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.GetDefaultConfig()
		cfg.Caches[0].Name = "bench"
	}

	if benchMaxSize != "" {
		n, err := bytesize.Parse(benchMaxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-size: %w", err)
		}
		cfg.Tracker.MaxSize = n
	}
	if cmd.Flags().Changed("period") {
		cfg.Tracker.Period = benchPeriod
	}
	for i := range cfg.Caches {
		if cfg.Caches[i].Backend.Type == config.BackendMemory && benchLatency > 0 {
			cfg.Caches[i].Backend.Memory.Latency = benchLatency
		}
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunBench writes opts.Blocks blocks from each of opts.Writers writers,
// spreading writers over the runtime's caches, then shuts the runtime down
// and reports the results. rt must not be used afterwards.
func RunBench(ctx context.Context, rt *runtime.Runtime, opts BenchOptions) (*BenchResult, error) {
	caches := rt.Caches()
	if len(caches) == 0 {
		return nil, fmt.Errorf("no caches configured")
	}
	if opts.Writers <= 0 || opts.Blocks <= 0 {
		return nil, fmt.Errorf("writers and blocks must be positive")
	}

	result := &BenchResult{
		Writers:   opts.Writers,
		Caches:    len(caches),
		Blocks:    int64(opts.Writers) * int64(opts.Blocks),
		BlockSize: opts.BlockSize,
		MaxSize:   rt.Tracker().MaxSize(),
	}

	largest := max(opts.BlockSize, opts.MaxBlockSize)
	payload := make([]byte, largest)
	for i := range payload {
		payload[i] = byte(i)
	}

	var buffered, through, failed, written, peak atomic.Int64
	notePeak := func() {
		size := rt.Tracker().Size()
		for {
			cur := peak.Load()
			if size <= cur || peak.CompareAndSwap(cur, size) {
				return
			}
		}
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.Writers; w++ {
		c := caches[w%len(caches)]
		g.Go(func() error {
			for i := 0; i < opts.Blocks; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				n := opts.BlockSize
				if largest > n {
					n += rand.Int64N(largest - n + 1)
				}
				mode, err := c.Put(gctx, uuid.NewString(), payload[:n])
				if err != nil {
					failed.Add(1)
					logger.Warn("Benchmark write failed", logger.CacheName(c.Name()), logger.Err(err))
					continue
				}
				written.Add(n)
				if mode == cache.WriteBuffered {
					buffered.Add(1)
				} else {
					through.Add(1)
				}
				notePeak()
			}
			return nil
		})
	}
	writeErr := g.Wait()
	result.WriteTime = time.Since(start)

	stats := rt.Tracker().Stats()
	drainStart := time.Now()
	shutdownErr := rt.Shutdown(context.WithoutCancel(ctx))
	result.DrainTime = time.Since(drainStart)

	final := rt.Tracker().Stats()
	result.Buffered = buffered.Load()
	result.WriteThrough = through.Load()
	result.Failed = failed.Load()
	result.Bytes = written.Load()
	result.PeakBuffered = peak.Load()
	result.RoutineSweeps = final.RoutineSweeps
	result.UrgentSweeps = final.UrgentSweeps

	logger.Debug("Benchmark finished",
		"refused", stats.Refused,
		"write_time", result.WriteTime,
		"drain_time", result.DrainTime)

	if writeErr != nil {
		return result, writeErr
	}
	if shutdownErr != nil {
		return result, fmt.Errorf("failed to drain caches: %w", shutdownErr)
	}
	return result, nil
}
