package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrChoreServiceShutdown is returned when scheduling on a stopped service.
var ErrChoreServiceShutdown = errors.New("chore service is shut down")

// Chore is a named task run every Period until cancelled or the service
// shuts down. Run receives a context that is cancelled on shutdown.
type Chore struct {
	Name   string
	Period time.Duration
	Run    func(ctx context.Context) error
}

// ChoreService runs periodic background chores, one goroutine per chore.
type ChoreService struct {
	name   string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	chores   map[string]context.CancelFunc
	shutdown bool
	wg       sync.WaitGroup
}

// NewChoreService creates a running chore service.
func NewChoreService(name string, logger *slog.Logger) *ChoreService {
	ctx, cancel := context.WithCancel(context.Background())

	return &ChoreService{
		name:   name,
		logger: logger.With(slog.String("chore_service", name)),
		ctx:    ctx,
		cancel: cancel,
		chores: make(map[string]context.CancelFunc),
	}
}

// ScheduleChore starts c. Chore names are unique within a service.
func (s *ChoreService) ScheduleChore(c Chore) error {
	if c.Period <= 0 {
		return fmt.Errorf("chore %q: period must be positive", c.Name)
	}
	if c.Run == nil {
		return fmt.Errorf("chore %q: nil run func", c.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return fmt.Errorf("schedule %q: %w", c.Name, ErrChoreServiceShutdown)
	}
	if _, ok := s.chores[c.Name]; ok {
		return fmt.Errorf("chore %q already scheduled", c.Name)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.chores[c.Name] = cancel

	s.wg.Add(1)
	go s.loop(ctx, c)

	s.logger.Debug("chore scheduled",
		slog.String("chore", c.Name),
		slog.Duration("period", c.Period),
	)

	return nil
}

func (s *ChoreService) loop(ctx context.Context, c Chore) {
	defer s.wg.Done()

	ticker := time.NewTicker(c.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Run(ctx); err != nil {
				s.logger.Warn("chore failed",
					slog.String("chore", c.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Cancel stops the named chore. It reports whether the chore was scheduled.
func (s *ChoreService) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.chores[name]
	if !ok {
		return false
	}

	cancel()
	delete(s.chores, name)

	return true
}

// ChoreCount returns the number of scheduled chores.
func (s *ChoreService) ChoreCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.chores)
}

// Shutdown cancels every chore and waits for their goroutines to exit.
// Calling it more than once is harmless.
func (s *ChoreService) Shutdown() {
	s.mu.Lock()
	if !s.shutdown {
		s.shutdown = true
		s.cancel()
		clear(s.chores)
		s.logger.Debug("chore service shut down")
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *ChoreService) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.shutdown
}
