package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/weiihann/procbench/store"
	"github.com/weiihann/procbench/workload"
)

// RunOptions holds the parameters of a single benchmark execution.
type RunOptions struct {
	Config  RunConfig
	Store   string
	WorkDir string
	Fill    workload.Fill
	Seed    int64
}

// Driver runs a benchmark against one adapter.
type Driver struct {
	Adapter Adapter
	Logger  *slog.Logger
	// Metrics collects per-write observations. A fresh set is used when nil.
	Metrics *Metrics
	// Progress receives a progress bar when non-nil.
	Progress io.Writer
}

// NewDriver creates a Driver for the given adapter.
func NewDriver(adapter Adapter, logger *slog.Logger) *Driver {
	return &Driver{
		Adapter: adapter,
		Logger:  logger,
	}
}

// Run writes NumProcs procedures with NumThreads concurrent workers and
// returns the timing. The adapter's Stop is called exactly once after every
// worker has returned. On any failure no result is returned.
func (d *Driver) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	cfg := opts.Config

	// Step 1: Validate before touching anything.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fill := opts.Fill
	if fill == "" {
		fill = workload.FillZero
	}
	if _, err := workload.ParseFill(string(fill)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if opts.WorkDir == "" {
		return nil, fmt.Errorf("%w: work directory must be set", ErrConfiguration)
	}

	ranges, err := workload.Partition(cfg.NumProcs, cfg.NumThreads)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := d.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	summary := workload.Summarize(ranges)

	logger.InfoContext(ctx, "partitioned workload",
		slog.Int("workers", summary.Workers),
		slog.Int("records", summary.TotalRecords),
		slog.Int("min_per_worker", summary.MinPerWorker),
		slog.Int("max_per_worker", summary.MaxPerWorker),
	)

	// Step 2: Start from an empty store directory.
	dir := opts.WorkDir

	if err := os.RemoveAll(dir); err != nil {
		return nil, store.InitError("clean store dir "+dir, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, store.InitError("create store dir "+dir, err)
	}

	// Step 3: Create the store.
	s, err := d.Adapter.Create(ctx, dir, cfg)
	if err != nil {
		return nil, err
	}

	// Step 4: One state generator per worker.
	gens := make([]*workload.Generator, len(ranges))
	for i := range ranges {
		gens[i] = workload.NewGenerator(workload.Config{
			StateSize: cfg.StateSize,
			Fill:      fill,
			Seed:      opts.Seed,
		}, i)
	}

	logger.InfoContext(ctx, "starting workers",
		slog.String("store", opts.Store),
		slog.String("sync", string(cfg.SyncType)),
		slog.Int("state_size", cfg.StateSize),
	)

	bar := newProgress(d.Progress, cfg.NumProcs)

	var written atomic.Int64

	// Step 5: Run the workers and wait for all of them.
	g, gctx := errgroup.WithContext(ctx)
	startedAt := time.Now()

	for i, r := range ranges {
		g.Go(func() error {
			return d.work(gctx, s, r, gens[i], metrics, bar, &written)
		})
	}

	runErr := g.Wait()
	elapsed := time.Since(startedAt)

	bar.Finish()

	if runErr == nil && written.Load() != int64(cfg.NumProcs) {
		runErr = fmt.Errorf("wrote %d of %d procedures", written.Load(), cfg.NumProcs)
	}

	// Step 6: Stop the store exactly once.
	stopErr := d.Adapter.Stop(ctx, s, runErr)

	if runErr != nil {
		logger.ErrorContext(ctx, "benchmark failed",
			slog.String("error", runErr.Error()),
			slog.Int64("written", written.Load()),
		)

		return nil, runErr
	}

	if stopErr != nil {
		return nil, stopErr
	}

	logger.InfoContext(ctx, "workers finished",
		slog.Duration("elapsed", elapsed),
	)

	// Step 7: Collect the result.
	size, err := dirSize(dir)
	if err != nil {
		logger.WarnContext(ctx, "failed to measure store size",
			slog.String("error", err.Error()),
		)
	}

	latency, err := metrics.Latency()
	if err != nil {
		logger.WarnContext(ctx, "failed to read latency",
			slog.String("error", err.Error()),
		)
	}

	result := &Result{
		RunID:          uuid.NewString(),
		Store:          opts.Store,
		NumProcs:       cfg.NumProcs,
		StateSize:      cfg.StateSize,
		SyncType:       string(cfg.SyncType),
		NumThreads:     cfg.NumThreads,
		StartedAt:      startedAt,
		Elapsed:        elapsed,
		ElapsedMs:      elapsed.Milliseconds(),
		RecordsWritten: int(written.Load()),
		Latency:        latency,
		StoreSizeBytes: size,
	}

	if elapsed > 0 {
		result.OpsPerSec = float64(cfg.NumProcs) / elapsed.Seconds()
	}

	return result, nil
}

// work writes the procedures of one range. It stops issuing writes once
// ctx is cancelled; a write already started always completes.
func (d *Driver) work(
	ctx context.Context,
	s store.Store,
	r workload.Range,
	gen *workload.Generator,
	metrics *Metrics,
	bar progress,
	written *atomic.Int64,
) error {
	for i := 0; i < r.Count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		id := r.First + uint64(i)

		if err := d.Adapter.PreWrite(id); err != nil {
			metrics.fail()

			return fmt.Errorf("worker %d: %w", r.Worker,
				store.WriteError(fmt.Sprintf("prepare procedure %d", id), err))
		}

		state := gen.Next()

		start := time.Now()
		err := s.Insert(store.Record{ProcID: id, State: state})
		took := time.Since(start)

		if err != nil {
			metrics.fail()

			if !errors.Is(err, store.ErrWrite) {
				err = store.WriteError(fmt.Sprintf("insert procedure %d", id), err)
			}

			return fmt.Errorf("worker %d: %w", r.Worker, err)
		}

		metrics.observe(took, len(state))
		bar.Increment()
		written.Add(1)
	}

	return nil
}

func dirSize(path string) (uint64, error) {
	var size uint64

	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += uint64(info.Size())
		}

		return nil
	})

	return size, err
}
