package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/weiihann/procbench/harness"
	"github.com/weiihann/procbench/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunBenchmarkPrintsResultLast(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "result.json")

	var stdout bytes.Buffer

	err := runBenchmark(context.Background(), testLogger(), &stdout, runConfig{
		run: harness.RunConfig{
			NumProcs:   100,
			StateSize:  1024,
			SyncType:   store.SyncHsync,
			NumThreads: 4,
		},
		store:   "memory",
		dir:     dir,
		fill:    "random",
		seed:    1,
		jsonOut: jsonPath,
	})
	if err != nil {
		t.Fatalf("runBenchmark failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	last := lines[len(lines)-1]

	re := regexp.MustCompile(`^RESULT \[numProcs=100, stateSize=1024, syncType=hsync, numThreads=4, total_time_ms=\d+\]$`)
	if !re.MatchString(last) {
		t.Errorf("last line = %q, want RESULT line", last)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read JSON report: %v", err)
	}

	var decoded harness.Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode JSON report: %v", err)
	}
	if decoded.Store != "memory" || decoded.RecordsWritten != 100 {
		t.Errorf("json result = %+v", decoded)
	}
}

func TestRunBenchmarkInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  runConfig
	}{
		{"bad sync", runConfig{
			run:   harness.RunConfig{NumProcs: 1, StateSize: 1, SyncType: "always", NumThreads: 1},
			store: "memory",
			fill:  "zero",
		}},
		{"bad store", runConfig{
			run:   harness.RunConfig{NumProcs: 1, StateSize: 1, SyncType: store.SyncNone, NumThreads: 1},
			store: "leveldb",
			fill:  "zero",
		}},
		{"bad fill", runConfig{
			run:   harness.RunConfig{NumProcs: 1, StateSize: 1, SyncType: store.SyncNone, NumThreads: 1},
			store: "memory",
			fill:  "ones",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.dir = t.TempDir()

			var stdout bytes.Buffer

			err := runBenchmark(context.Background(), testLogger(), &stdout, tt.cfg)
			if !errors.Is(err, harness.ErrConfiguration) {
				t.Errorf("error = %v, want configuration error", err)
			}
			if stdout.Len() != 0 {
				t.Errorf("unexpected output on failure: %q", stdout.String())
			}
		})
	}
}

func TestStoresCommand(t *testing.T) {
	base := log.NewWithOptions(io.Discard, log.Options{})
	root := newRootCmd(base, slog.New(base))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"stores"})

	if err := root.Execute(); err != nil {
		t.Fatalf("stores failed: %v", err)
	}

	got := strings.Fields(out.String())
	if strings.Join(got, ",") != strings.Join(harness.KnownStores(), ",") {
		t.Errorf("stores = %v, want %v", got, harness.KnownStores())
	}
}

func TestInvalidLogLevel(t *testing.T) {
	base := log.NewWithOptions(io.Discard, log.Options{})
	root := newRootCmd(base, slog.New(base))
	root.SetArgs([]string{"stores", "--log-level", "loud"})

	if err := root.Execute(); !errors.Is(err, harness.ErrConfiguration) {
		t.Errorf("error = %v, want configuration error", err)
	}
}
