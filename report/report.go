// Package report formats benchmark results for humans and for scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/weiihann/procbench/harness"
)

const rule = "********************************************************************************"

// Generate writes a human-readable summary of r.
func Generate(w io.Writer, r harness.Result) error {
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Store:             %s\n", r.Store)
	fmt.Fprintf(&b, "Threads:           %d\n", r.NumThreads)
	fmt.Fprintf(&b, "Procedures:        %s\n", humanize.Comma(int64(r.NumProcs)))
	fmt.Fprintf(&b, "State size:        %s\n", humanize.IBytes(uint64(r.StateSize)))
	fmt.Fprintf(&b, "Sync type:         %s\n", r.SyncType)
	fmt.Fprintf(&b, "Time taken:        %s\n", formatMs(r.ElapsedMs))
	fmt.Fprintf(&b, "Throughput:        %s ops/sec\n", humanize.CommafWithDigits(r.OpsPerSec, 1))

	if r.Latency.Count > 0 {
		fmt.Fprintf(&b, "Latency (us):      mean=%.1f p50=%.1f p90=%.1f p99=%.1f p99.9=%.1f\n",
			r.Latency.Mean,
			r.Latency.P50,
			r.Latency.P90,
			r.Latency.P99,
			r.Latency.P999,
		)
	}

	fmt.Fprintf(&b, "Store size:        %s\n", formatBytes(r.StoreSizeBytes))
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())

	return err
}

// WriteRaw writes the single machine-parseable result line.
func WriteRaw(w io.Writer, r harness.Result) error {
	_, err := fmt.Fprintf(w,
		"RESULT [numProcs=%d, stateSize=%d, syncType=%s, numThreads=%d, total_time_ms=%d]\n",
		r.NumProcs, r.StateSize, r.SyncType, r.NumThreads, r.ElapsedMs,
	)

	return err
}

// GenerateJSON writes r as JSON to w.
func GenerateJSON(w io.Writer, r harness.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}

func formatMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}

	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	return humanize.IBytes(b)
}
