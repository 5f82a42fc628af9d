// Package main provides the CLI entry point for procbench, a concurrent
// write benchmark for procedure stores.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/weiihann/procbench/config"
	"github.com/weiihann/procbench/harness"
	"github.com/weiihann/procbench/report"
	"github.com/weiihann/procbench/store"
	"github.com/weiihann/procbench/workload"
)

func main() {
	base := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "procbench",
		ReportTimestamp: true,
		Level:           log.InfoLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root := newRootCmd(base, slog.New(base))
	err := root.ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "procbench: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(base *log.Logger, logger *slog.Logger) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "procbench",
		Short: "Concurrent write benchmark for procedure stores",
		Long: `Procbench measures how fast a procedure store persists a fixed number
of procedure records written by concurrent workers, under a chosen
durability mode, and reports the wall-clock time taken.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			lvl, err := log.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("%w: log level: %v", harness.ErrConfiguration, err)
			}

			base.SetLevel(lvl)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newStoresCmd())

	return root
}

func newStoresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List the procedure stores that can be benchmarked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range harness.KnownStores() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	defaults := harness.DefaultRunConfig()

	var (
		numProcs    int
		stateSize   int
		syncType    string
		numThreads  int
		storeName   string
		dir         string
		confPath    string
		fill        string
		seed        int64
		jsonOut     string
		showBar     bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the write benchmark against one store",
		Long: `Create a fresh store, write procs procedures of state-size bytes each
from threads concurrent workers, stop the store and print the time taken.
The last line written to stdout is the machine-parseable RESULT line.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBenchmark(cmd.Context(), logger, cmd.OutOrStdout(), runConfig{
				run: harness.RunConfig{
					NumProcs:   numProcs,
					StateSize:  stateSize,
					SyncType:   store.SyncType(syncType),
					NumThreads: numThreads,
				},
				store:       storeName,
				dir:         dir,
				confPath:    confPath,
				fill:        fill,
				seed:        seed,
				jsonOut:     jsonOut,
				showBar:     showBar,
				metricsAddr: metricsAddr,
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&numProcs, "procs", defaults.NumProcs,
		"Total number of procedures to write")
	flags.IntVar(&stateSize, "state-size", defaults.StateSize,
		"Size of each procedure's state in bytes")
	flags.StringVar(&syncType, "sync", string(defaults.SyncType),
		"Durability mode: hsync, hflush, nosync")
	flags.IntVar(&numThreads, "threads", defaults.NumThreads,
		"Number of concurrent writer threads")
	flags.StringVar(&storeName, "store", "wal",
		"Store to benchmark (see 'procbench stores')")
	flags.StringVar(&dir, "dir", filepath.Join("tmp", "procbench"),
		"Base directory for store data; wiped before the run")
	flags.StringVar(&confPath, "conf", "",
		"Store configuration file (yaml, toml or json)")
	flags.StringVar(&fill, "fill", string(workload.FillZero),
		"State content: zero, random")
	flags.Int64Var(&seed, "seed", 0,
		"Random seed for random fill (0 = use current time)")
	flags.StringVar(&jsonOut, "json-out", "",
		"Also write the result as JSON to this file")
	flags.BoolVar(&showBar, "progress", false,
		"Show a progress bar on stderr")
	flags.StringVar(&metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address during the run (e.g. :9090)")

	return cmd
}

type runConfig struct {
	run         harness.RunConfig
	store       string
	dir         string
	confPath    string
	fill        string
	seed        int64
	jsonOut     string
	showBar     bool
	metricsAddr string
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	stdout io.Writer,
	cfg runConfig,
) error {
	// Step 1: Validate options.
	if err := cfg.run.Validate(); err != nil {
		return err
	}

	fill, err := workload.ParseFill(cfg.fill)
	if err != nil {
		return fmt.Errorf("%w: %v", harness.ErrConfiguration, err)
	}

	seed := cfg.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("store", cfg.store),
		slog.Int("procs", cfg.run.NumProcs),
		slog.Int("state_size", cfg.run.StateSize),
		slog.String("sync", string(cfg.run.SyncType)),
		slog.Int("threads", cfg.run.NumThreads),
		slog.String("fill", string(fill)),
	)

	// Step 2: Load store configuration and resolve the store.
	conf, err := config.Load(cfg.confPath)
	if err != nil {
		return fmt.Errorf("%w: %v", harness.ErrConfiguration, err)
	}

	adapter, err := harness.NewProcedureStoreAdapter(cfg.store, conf, logger)
	if err != nil {
		return err
	}

	driver := harness.NewDriver(adapter, logger)
	driver.Metrics = harness.NewMetrics()

	if cfg.showBar {
		driver.Progress = os.Stderr
	}

	// Step 3: Expose metrics while the run is in progress.
	if cfg.metricsAddr != "" {
		shutdown := serveMetrics(ctx, logger, cfg.metricsAddr, driver.Metrics)
		defer shutdown()
	}

	// Step 4: Run the benchmark.
	result, err := driver.Run(ctx, harness.RunOptions{
		Config:  cfg.run,
		Store:   cfg.store,
		WorkDir: filepath.Join(cfg.dir, cfg.store),
		Fill:    fill,
		Seed:    seed,
	})
	if err != nil {
		return fmt.Errorf("run %s: %w", cfg.store, err)
	}

	// Step 5: Report. The raw line is always the last line on stdout.
	if cfg.jsonOut != "" {
		if err := writeJSON(cfg.jsonOut, *result); err != nil {
			return err
		}
	}

	if err := report.Generate(stdout, *result); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	if err := report.WriteRaw(stdout, *result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	logger.InfoContext(ctx, "benchmark complete",
		slog.String("run_id", result.RunID),
	)

	return nil
}

func writeJSON(path string, r harness.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create JSON report %s: %w", path, err)
	}

	if err := report.GenerateJSON(f, r); err != nil {
		f.Close()

		return fmt.Errorf("generate JSON report: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close JSON report %s: %w", path, err)
	}

	return nil
}

func serveMetrics(
	ctx context.Context,
	logger *slog.Logger,
	addr string,
	metrics *harness.Metrics,
) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "metrics server failed",
				slog.String("addr", addr),
				slog.String("error", err.Error()),
			)
		}
	}()

	logger.InfoContext(ctx, "serving metrics", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WarnContext(ctx, "metrics server shutdown",
				slog.String("error", err.Error()),
			)
		}
	}
}
