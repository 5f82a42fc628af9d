package harness

import (
	"errors"
	"fmt"

	"github.com/weiihann/procbench/store"
)

// ErrConfiguration marks invalid run parameters. It is always returned
// before any store or directory is touched.
var ErrConfiguration = errors.New("invalid configuration")

// RunConfig is the fixed parameter set of one benchmark run.
type RunConfig struct {
	NumProcs   int
	StateSize  int
	SyncType   store.SyncType
	NumThreads int
}

// DefaultRunConfig returns the defaults of the procedure store evaluation.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		NumProcs:   1000000,
		StateSize:  1024,
		SyncType:   store.SyncHsync,
		NumThreads: 20,
	}
}

// Validate checks every parameter and reports the first violation.
func (c RunConfig) Validate() error {
	if c.NumProcs <= 0 {
		return fmt.Errorf("%w: number of procedures %d must be positive",
			ErrConfiguration, c.NumProcs)
	}
	if c.StateSize < 0 {
		return fmt.Errorf("%w: state size %d must not be negative",
			ErrConfiguration, c.StateSize)
	}
	if _, err := store.ParseSyncType(string(c.SyncType)); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if c.NumThreads <= 0 {
		return fmt.Errorf("%w: number of threads %d must be positive",
			ErrConfiguration, c.NumThreads)
	}

	return nil
}
