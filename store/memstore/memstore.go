// Package memstore is an in-memory procedure store. It ignores the
// durability mode and gives a baseline for the driver's own overhead.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/weiihann/procbench/store"
)

var errStopped = errors.New("store stopped")

type Store struct {
	mu      sync.Mutex
	procs   map[uint64][]byte
	bytes   int64
	stopped bool
}

func Open(context.Context, store.OpenOptions) (*Store, error) {
	return &Store{procs: make(map[uint64][]byte)}, nil
}

// Insert keeps a copy of rec.State under its procedure id.
func (s *Store) Insert(rec store.Record) error {
	state := append([]byte(nil), rec.State...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return store.WriteError("insert", errStopped)
	}

	if old, ok := s.procs[rec.ProcID]; ok {
		s.bytes -= int64(len(old))
	}

	s.procs[rec.ProcID] = state
	s.bytes += int64(len(state))

	return nil
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.procs)
}

func (s *Store) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bytes
}

func (s *Store) Stop(bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true

	return nil
}
