// Package store defines the contract between the benchmark driver and the
// procedure stores it measures, together with the pieces every store
// shares: sync modes, errors and the memory chunk pool.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weiihann/procbench/config"
	"github.com/weiihann/procbench/server"
)

// SyncType is the durability mode applied to each write.
type SyncType string

const (
	// SyncHsync forces every write to durable media before returning.
	SyncHsync SyncType = "hsync"
	// SyncHflush hands every write to the operating system without fsync.
	SyncHflush SyncType = "hflush"
	// SyncNone buffers writes in process and flushes them on stop.
	SyncNone SyncType = "nosync"
)

// SyncTypes returns the supported durability modes.
func SyncTypes() []SyncType {
	return []SyncType{SyncHsync, SyncHflush, SyncNone}
}

// ParseSyncType validates s as a durability mode.
func ParseSyncType(s string) (SyncType, error) {
	for _, t := range SyncTypes() {
		if string(t) == s {
			return t, nil
		}
	}

	return "", fmt.Errorf("unknown sync type %q (want hsync, hflush or nosync)", s)
}

// SyncTypeFrom reads the durability mode the adapter placed in conf.
func SyncTypeFrom(conf *config.Configuration) (SyncType, error) {
	return ParseSyncType(conf.GetString(config.SyncTypeKey))
}

// Record is one synthetic procedure state.
type Record struct {
	ProcID uint64
	State  []byte
}

// Store is a procedure store under test. Insert must be safe for
// concurrent callers and must not return before the configured durability
// guarantee holds. Stop is called exactly once.
type Store interface {
	Insert(rec Record) error
	Stop(abort bool) error
}

// Environment is the hosting capability set a store may rely on.
type Environment interface {
	ServerName() server.ServerName
	Configuration() *config.Configuration
	ChoreService() *server.ChoreService
}

// ArchiveHook is called with the path of each log file a store moves to its
// archive directory.
type ArchiveHook func(path string)

// NopArchiveHook ignores archived files.
func NopArchiveHook(string) {}

// OpenOptions carries everything a store needs to open.
type OpenOptions struct {
	Dir         string
	Env         Environment
	Cleaner     *server.DirScanPool
	ArchiveHook ArchiveHook
	Chunks      *ChunkPool
	Logger      *slog.Logger
}

// Opener creates and opens a store in opts.Dir. Failures should match
// ErrInitialization.
type Opener func(ctx context.Context, opts OpenOptions) (Store, error)
