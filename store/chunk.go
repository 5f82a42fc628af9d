package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/weiihann/procbench/config"
)

// ChunkPoolConfig sizes a ChunkPool. MaxPoolPct and InitialPct are
// fractions of GlobalMemStoreSize and of the maximum chunk count.
type ChunkPoolConfig struct {
	ChunkSize          int
	GlobalMemStoreSize uint64
	MaxPoolPct         float64
	InitialPct         float64
}

// ChunkPoolConfigFrom reads pool sizing from conf.
func ChunkPoolConfigFrom(conf *config.Configuration) (ChunkPoolConfig, error) {
	global, err := conf.GetBytes(config.GlobalMemStoreSizeKey)
	if err != nil {
		return ChunkPoolConfig{}, InitError("chunk pool config", err)
	}

	chunkSize, err := conf.GetBytes(config.ChunkSizeKey)
	if err != nil {
		return ChunkPoolConfig{}, InitError("chunk pool config", err)
	}

	return ChunkPoolConfig{
		ChunkSize:          int(chunkSize),
		GlobalMemStoreSize: global,
		MaxPoolPct:         conf.GetFloat64(config.ChunkPoolMaxSizeKey),
		InitialPct:         conf.GetFloat64(config.ChunkPoolInitialKey),
	}, nil
}

// ChunkPool recycles fixed-size byte chunks used as encode buffers. At most
// maxCount chunks are ever pooled; Get falls back to plain allocation when
// the pool is exhausted.
type ChunkPool struct {
	chunkSize int
	maxCount  int
	free      chan []byte
	created   atomic.Int64
	misses    atomic.Int64
}

// NewChunkPool validates cfg and preallocates the initial chunks.
func NewChunkPool(cfg ChunkPoolConfig) (*ChunkPool, error) {
	if cfg.ChunkSize <= 0 {
		return nil, InitError("chunk pool",
			fmt.Errorf("chunk size %d must be positive", cfg.ChunkSize))
	}
	if cfg.MaxPoolPct <= 0 || cfg.MaxPoolPct > 1 {
		return nil, InitError("chunk pool",
			fmt.Errorf("max pool size %v must be in (0, 1]", cfg.MaxPoolPct))
	}
	if cfg.InitialPct < 0 || cfg.InitialPct > 1 {
		return nil, InitError("chunk pool",
			fmt.Errorf("initial size %v must be in [0, 1]", cfg.InitialPct))
	}

	poolBytes := float64(cfg.GlobalMemStoreSize) * cfg.MaxPoolPct
	maxCount := int(poolBytes / float64(cfg.ChunkSize))
	if maxCount < 1 {
		return nil, InitError("chunk pool", errors.New(
			"memstore size too small for a single chunk"))
	}

	p := &ChunkPool{
		chunkSize: cfg.ChunkSize,
		maxCount:  maxCount,
		free:      make(chan []byte, maxCount),
	}

	initial := int(float64(maxCount) * cfg.InitialPct)
	for i := 0; i < initial; i++ {
		p.free <- make([]byte, cfg.ChunkSize)
	}
	p.created.Store(int64(initial))

	return p, nil
}

func (p *ChunkPool) ChunkSize() int { return p.chunkSize }

func (p *ChunkPool) MaxCount() int { return p.maxCount }

// Created returns how many pooled chunks have been allocated.
func (p *ChunkPool) Created() int { return int(p.created.Load()) }

// Misses returns how many Gets had to allocate outside the pool.
func (p *ChunkPool) Misses() int { return int(p.misses.Load()) }

// Get returns a chunk of ChunkSize bytes.
func (p *ChunkPool) Get() []byte {
	select {
	case c := <-p.free:
		return c
	default:
	}

	if n := p.created.Add(1); n <= int64(p.maxCount) {
		return make([]byte, p.chunkSize)
	}

	p.created.Add(-1)
	p.misses.Add(1)

	return make([]byte, p.chunkSize)
}

// Put returns c to the pool. Chunks of the wrong size are dropped.
func (p *ChunkPool) Put(c []byte) {
	if cap(c) != p.chunkSize {
		return
	}

	select {
	case p.free <- c[:p.chunkSize]:
	default:
	}
}
