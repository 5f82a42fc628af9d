// Package harness drives concurrent procedure-store benchmarks: it splits
// the workload across workers, runs them against a store adapter and
// collects timing into a Result.
package harness

import "time"

// Result holds the outcome of one successful run.
type Result struct {
	RunID          string         `json:"run_id"`
	Store          string         `json:"store"`
	NumProcs       int            `json:"num_procs"`
	StateSize      int            `json:"state_size"`
	SyncType       string         `json:"sync_type"`
	NumThreads     int            `json:"num_threads"`
	StartedAt      time.Time      `json:"started_at"`
	Elapsed        time.Duration  `json:"-"`
	ElapsedMs      int64          `json:"total_time_ms"`
	OpsPerSec      float64        `json:"ops_per_sec"`
	RecordsWritten int            `json:"records_written"`
	Latency        LatencySummary `json:"latency"`
	StoreSizeBytes uint64         `json:"store_size_bytes"`
}
