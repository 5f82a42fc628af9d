package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weiihann/procbench/config"
	"github.com/weiihann/procbench/server"
	"github.com/weiihann/procbench/store"
)

// Adapter is the seam between the driver and a store under test.
//
// Create is called once, before any worker starts. PreWrite is called by
// every worker right before each write. Stop is called exactly once, after
// all workers have returned; cause is the run error, nil for a clean run.
type Adapter interface {
	Create(ctx context.Context, dir string, cfg RunConfig) (store.Store, error)
	PreWrite(procID uint64) error
	Stop(ctx context.Context, s store.Store, cause error) error
}

// ProcedureStoreAdapter opens a registered backend inside a stub server,
// with a chunk pool and a cleaner pool sized from the configuration.
type ProcedureStoreAdapter struct {
	name   string
	open   store.Opener
	conf   *config.Configuration
	hook   store.ArchiveHook
	logger *slog.Logger

	srv     *server.Server
	cleaner *server.DirScanPool
	chunks  *store.ChunkPool
}

// NewProcedureStoreAdapter resolves the named backend.
func NewProcedureStoreAdapter(
	name string,
	conf *config.Configuration,
	logger *slog.Logger,
) (*ProcedureStoreAdapter, error) {
	open, err := ResolveOpener(name)
	if err != nil {
		return nil, err
	}

	return &ProcedureStoreAdapter{
		name:   name,
		open:   open,
		conf:   conf,
		hook:   store.NopArchiveHook,
		logger: logger.With(slog.String("store", name)),
	}, nil
}

// Name returns the backend name.
func (a *ProcedureStoreAdapter) Name() string {
	return a.name
}

// Server returns the stub the store runs in, nil before Create.
func (a *ProcedureStoreAdapter) Server() *server.Server {
	return a.srv
}

// Chunks returns the chunk pool handed to the store, nil before Create.
func (a *ProcedureStoreAdapter) Chunks() *store.ChunkPool {
	return a.chunks
}

// Create builds the chunk pool, cleaner pool and stub server, records the
// durability mode in the configuration and opens the store in dir.
func (a *ProcedureStoreAdapter) Create(
	ctx context.Context,
	dir string,
	cfg RunConfig,
) (store.Store, error) {
	if a.srv != nil {
		return nil, store.InitError("create "+a.name,
			errors.New("store already created"))
	}

	poolCfg, err := store.ChunkPoolConfigFrom(a.conf)
	if err != nil {
		return nil, err
	}

	chunks, err := store.NewChunkPool(poolCfg)
	if err != nil {
		return nil, err
	}

	a.conf.Set(config.SyncTypeKey, string(cfg.SyncType))
	a.conf.Set(config.RootDirKey, dir)

	a.chunks = chunks
	a.cleaner = server.NewDirScanPool(a.conf, a.logger)
	a.srv = server.New(a.conf, a.logger)

	s, err := a.open(ctx, store.OpenOptions{
		Dir:         dir,
		Env:         a.srv,
		Cleaner:     a.cleaner,
		ArchiveHook: a.hook,
		Chunks:      chunks,
		Logger:      a.logger,
	})
	if err != nil {
		a.srv.Abort("store open failed", err)
		a.cleaner.ShutdownNow()

		if !errors.Is(err, store.ErrInitialization) {
			err = store.InitError("open "+a.name, err)
		}

		return nil, err
	}

	a.logger.InfoContext(ctx, "store created",
		slog.String("dir", dir),
		slog.String("server", a.srv.ServerName().String()),
		slog.Int("chunk_size", chunks.ChunkSize()),
		slog.Int("max_chunks", chunks.MaxCount()),
		slog.Int("cleaner_pool", a.cleaner.Size()),
	)

	return s, nil
}

// PreWrite needs no per-record setup.
func (a *ProcedureStoreAdapter) PreWrite(uint64) error {
	return nil
}

// Stop stops the store, then the stub server (aborting it when cause is
// set), then the cleaner pool.
func (a *ProcedureStoreAdapter) Stop(
	ctx context.Context,
	s store.Store,
	cause error,
) error {
	abort := cause != nil

	err := s.Stop(abort)

	if abort {
		a.srv.Abort("benchmark failed", cause)
	} else {
		a.srv.Stop("benchmark complete")
	}

	a.cleaner.ShutdownNow()

	a.logger.InfoContext(ctx, "store stopped",
		slog.Bool("abort", abort),
		slog.Int("chunks_created", a.chunks.Created()),
		slog.Int("chunk_misses", a.chunks.Misses()),
	)

	if err != nil {
		return fmt.Errorf("stop %s: %w", a.name, err)
	}

	return nil
}
