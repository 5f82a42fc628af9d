package server

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weiihann/procbench/config"
)

// DirScanPool runs filesystem cleanup tasks with bounded concurrency.
// Task errors are logged, never propagated: cleanup is best effort.
type DirScanPool struct {
	size   int
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu     sync.Mutex
	closed bool
}

// NewDirScanPool sizes the pool from CleanerPoolSizeKey.
func NewDirScanPool(conf *config.Configuration, logger *slog.Logger) *DirScanPool {
	size := max(1, conf.GetInt(config.CleanerPoolSizeKey))

	ctx, cancel := context.WithCancel(context.Background())

	p := &DirScanPool{
		size:   size,
		logger: logger.With(slog.String("pool", "dir-scan")),
		ctx:    ctx,
		cancel: cancel,
	}
	p.group.SetLimit(size)

	return p
}

// Size returns the maximum number of concurrently running tasks.
func (p *DirScanPool) Size() int {
	return p.size
}

// Submit runs task on the pool, blocking while the pool is full. It returns
// false once the pool has been shut down.
func (p *DirScanPool) Submit(task func(ctx context.Context) error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	p.group.Go(func() error {
		if p.ctx.Err() != nil {
			return nil
		}
		if err := task(p.ctx); err != nil {
			p.logger.Warn("cleaner task failed",
				slog.String("error", err.Error()),
			)
		}

		return nil
	})

	return true
}

// ShutdownNow cancels running tasks and waits for them to return.
func (p *DirScanPool) ShutdownNow() {
	p.cancel()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	_ = p.group.Wait()
}
