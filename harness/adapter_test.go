package harness

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/weiihann/procbench/config"
	"github.com/weiihann/procbench/store"
	"github.com/weiihann/procbench/workload"
)

func newAdapter(t *testing.T, name string) *ProcedureStoreAdapter {
	t.Helper()

	conf := config.New()
	conf.Set(config.GlobalMemStoreSizeKey, "64MiB")
	conf.Set(config.ChunkSizeKey, "64KiB")

	a, err := NewProcedureStoreAdapter(name, conf, testLogger())
	if err != nil {
		t.Fatalf("NewProcedureStoreAdapter(%q) failed: %v", name, err)
	}

	return a
}

func TestDriverWithBackends(t *testing.T) {
	for _, name := range KnownStores() {
		t.Run(name, func(t *testing.T) {
			adapter := newAdapter(t, name)
			driver := NewDriver(adapter, testLogger())

			cfg := RunConfig{
				NumProcs:   500,
				StateSize:  128,
				SyncType:   store.SyncNone,
				NumThreads: 4,
			}

			result, err := driver.Run(context.Background(), RunOptions{
				Config:  cfg,
				Store:   name,
				WorkDir: filepath.Join(t.TempDir(), name),
				Fill:    workload.FillZero,
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			if result.Store != name {
				t.Errorf("store = %q, want %q", result.Store, name)
			}
			if result.RecordsWritten != cfg.NumProcs {
				t.Errorf("records = %d, want %d", result.RecordsWritten, cfg.NumProcs)
			}

			srv := adapter.Server()
			if srv.IsAborted() {
				t.Error("server aborted after a clean run")
			}
			if !srv.ChoreService().IsShutdown() {
				t.Error("chore service still running after stop")
			}
			if got := srv.Configuration().GetString(config.SyncTypeKey); got != "nosync" {
				t.Errorf("configured sync = %q, want %q", got, "nosync")
			}
		})
	}
}

func TestAdapterCreateTwice(t *testing.T) {
	adapter := newAdapter(t, "memory")
	dir := t.TempDir()

	s, err := adapter.Create(context.Background(), dir, DefaultRunConfig())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer adapter.Stop(context.Background(), s, nil)

	if _, err := adapter.Create(context.Background(), dir, DefaultRunConfig()); !errors.Is(err, store.ErrInitialization) {
		t.Errorf("second Create error = %v, want initialization error", err)
	}
}

func TestAdapterStopWithCauseAborts(t *testing.T) {
	adapter := newAdapter(t, "wal")

	s, err := adapter.Create(context.Background(), t.TempDir(), DefaultRunConfig())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := adapter.Stop(context.Background(), s, errors.New("worker failed")); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	srv := adapter.Server()
	if !srv.IsAborted() {
		t.Error("server not aborted")
	}
	if srv.IsStopped() {
		t.Error("IsStopped reported true")
	}
	if !srv.ChoreService().IsShutdown() {
		t.Error("chore service still running")
	}
}

func TestAdapterInvalidChunkConfig(t *testing.T) {
	conf := config.New()
	conf.Set(config.ChunkPoolMaxSizeKey, 0.0)

	adapter, err := NewProcedureStoreAdapter("memory", conf, testLogger())
	if err != nil {
		t.Fatalf("NewProcedureStoreAdapter failed: %v", err)
	}

	if _, err := adapter.Create(context.Background(), t.TempDir(), DefaultRunConfig()); !errors.Is(err, store.ErrInitialization) {
		t.Errorf("error = %v, want initialization error", err)
	}
	if adapter.Server() != nil {
		t.Error("server created despite invalid chunk pool")
	}
}

func TestResolveOpenerUnknown(t *testing.T) {
	if _, err := ResolveOpener("rocksdb"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("error = %v, want configuration error", err)
	}
	if _, err := NewProcedureStoreAdapter("rocksdb", config.New(), testLogger()); !errors.Is(err, ErrConfiguration) {
		t.Errorf("error = %v, want configuration error", err)
	}

	for _, name := range KnownStores() {
		if _, err := ResolveOpener(name); err != nil {
			t.Errorf("ResolveOpener(%q) failed: %v", name, err)
		}
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	empty, err := m.Latency()
	if err != nil {
		t.Fatalf("Latency failed: %v", err)
	}
	if empty != (LatencySummary{}) {
		t.Errorf("empty latency = %+v, want zero", empty)
	}

	for i := 1; i <= 100; i++ {
		m.observe(time.Duration(i)*time.Microsecond, 10)
	}
	m.fail()

	if got := testutil.ToFloat64(m.writes); got != 100 {
		t.Errorf("writes = %v, want 100", got)
	}
	if got := testutil.ToFloat64(m.bytes); got != 1000 {
		t.Errorf("bytes = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(m.failures); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}

	ls, err := m.Latency()
	if err != nil {
		t.Fatalf("Latency failed: %v", err)
	}
	if ls.Count != 100 {
		t.Errorf("count = %d, want 100", ls.Count)
	}
	if ls.Mean < 50 || ls.Mean > 51 {
		t.Errorf("mean = %vus, want ~50.5us", ls.Mean)
	}
	if ls.P50 <= 0 || ls.P50 > ls.P99 {
		t.Errorf("p50 = %v, p99 = %v", ls.P50, ls.P99)
	}

	n, err := testutil.GatherAndCount(m.Registry())
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if n != 4 {
		t.Errorf("registered metrics = %d, want 4", n)
	}
}
