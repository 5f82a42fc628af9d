// Package workload partitions procedure ids across benchmark workers and
// generates the synthetic procedure states they write. Both are
// deterministic: the same inputs give the same ranges and payloads.
package workload

import (
	"fmt"
	mrand "math/rand"
)

// Range is the contiguous block of procedure ids one worker writes:
// First through First+Count-1.
type Range struct {
	Worker int
	First  uint64
	Count  int
}

// Last returns the final procedure id in the range, or First-1 if empty.
func (r Range) Last() uint64 {
	return r.First + uint64(r.Count) - 1
}

// Summary describes a partitioning.
type Summary struct {
	Workers      int
	TotalRecords int
	MinPerWorker int
	MaxPerWorker int
}

// Partition splits ids 1..numProcs across numWorkers as evenly as possible.
// The first numProcs%numWorkers workers get one extra id. Workers may get
// an empty range when numWorkers > numProcs.
func Partition(numProcs, numWorkers int) ([]Range, error) {
	if numProcs <= 0 {
		return nil, fmt.Errorf("number of procedures %d must be positive", numProcs)
	}
	if numWorkers <= 0 {
		return nil, fmt.Errorf("number of workers %d must be positive", numWorkers)
	}

	base := numProcs / numWorkers
	extra := numProcs % numWorkers

	ranges := make([]Range, numWorkers)
	next := uint64(1)

	for i := range ranges {
		count := base
		if i < extra {
			count++
		}

		ranges[i] = Range{Worker: i, First: next, Count: count}
		next += uint64(count)
	}

	return ranges, nil
}

// Summarize reports totals and the spread of a partitioning.
func Summarize(ranges []Range) Summary {
	if len(ranges) == 0 {
		return Summary{}
	}

	s := Summary{
		Workers:      len(ranges),
		MinPerWorker: ranges[0].Count,
		MaxPerWorker: ranges[0].Count,
	}

	for _, r := range ranges {
		s.TotalRecords += r.Count
		s.MinPerWorker = min(s.MinPerWorker, r.Count)
		s.MaxPerWorker = max(s.MaxPerWorker, r.Count)
	}

	return s
}

// Fill selects the content of generated states.
type Fill string

const (
	FillZero   Fill = "zero"
	FillRandom Fill = "random"
)

// ParseFill validates s as a Fill.
func ParseFill(s string) (Fill, error) {
	switch Fill(s) {
	case FillZero, FillRandom:
		return Fill(s), nil
	default:
		return "", fmt.Errorf("unknown fill %q (want zero or random)", s)
	}
}

// Config controls state generation.
type Config struct {
	StateSize int
	Fill      Fill
	Seed      int64
}

// Generator produces procedure states for one worker. It is not safe for
// concurrent use; each worker owns its own.
type Generator struct {
	cfg Config
	rng *mrand.Rand
	buf []byte
}

// NewGenerator creates the generator for the given worker. Random fills
// are seeded with cfg.Seed plus the worker index.
func NewGenerator(cfg Config, worker int) *Generator {
	return &Generator{
		cfg: cfg,
		rng: mrand.New(mrand.NewSource(cfg.Seed + int64(worker))),
		buf: make([]byte, cfg.StateSize),
	}
}

// Next returns a state of exactly StateSize bytes. The slice is reused and
// only valid until the following call.
func (g *Generator) Next() []byte {
	if g.cfg.Fill == FillRandom {
		g.rng.Read(g.buf)
	}

	return g.buf
}
