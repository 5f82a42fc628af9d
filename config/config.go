// Package config provides the passthrough configuration handed to stores
// under test. It is a thin, goroutine-safe layer over viper with typed
// getters and procbench defaults.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Configuration keys understood by procbench and its stores.
const (
	RootDirKey  = "procbench.rootdir"
	SyncTypeKey = "procbench.procedure.store.sync"

	GlobalMemStoreSizeKey = "procbench.memstore.global.size"
	ChunkPoolMaxSizeKey   = "procbench.memstore.chunkpool.maxsize"
	ChunkPoolInitialKey   = "procbench.memstore.chunkpool.initialsize"
	ChunkSizeKey          = "procbench.memstore.chunk.size"

	CleanerPoolSizeKey = "procbench.cleaner.scan.dir.concurrent.size"

	WALSegmentSizeKey     = "procbench.wal.segment.size"
	WALCompressKey        = "procbench.wal.compress"
	WALCleanerIntervalKey = "procbench.wal.cleaner.interval"
	WALCleanerTTLKey      = "procbench.wal.cleaner.ttl"

	BoltStatsIntervalKey = "procbench.bolt.stats.interval"

	SQLiteCheckpointIntervalKey = "procbench.sqlite.checkpoint.interval"
)

// Configuration is a key/value view of store settings. Values come from
// defaults, an optional config file and PROCBENCH_* environment variables,
// in increasing order of precedence. Set overrides all of them.
type Configuration struct {
	mu sync.RWMutex
	v  *viper.Viper
}

// New returns a Configuration populated with defaults and environment
// overrides. PROCBENCH_WAL_SEGMENT_SIZE maps to procbench.wal.segment.size.
func New() *Configuration {
	v := viper.New()

	v.SetDefault(GlobalMemStoreSizeKey, "256MiB")
	v.SetDefault(ChunkPoolMaxSizeKey, 1.0)
	v.SetDefault(ChunkPoolInitialKey, 0.0)
	v.SetDefault(ChunkSizeKey, "2MiB")
	v.SetDefault(CleanerPoolSizeKey, max(1, runtime.NumCPU()/4))
	v.SetDefault(WALSegmentSizeKey, "64MiB")
	v.SetDefault(WALCompressKey, false)
	v.SetDefault(WALCleanerIntervalKey, time.Minute)
	v.SetDefault(WALCleanerTTLKey, 10*time.Minute)
	v.SetDefault(BoltStatsIntervalKey, 30*time.Second)
	v.SetDefault(SQLiteCheckpointIntervalKey, 30*time.Second)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Configuration{v: v}
}

// Load returns a Configuration with the file at path merged over the
// defaults. The format is inferred from the extension (yaml, toml, json).
func Load(path string) (*Configuration, error) {
	c := New()
	if path == "" {
		return c, nil
	}

	c.v.SetConfigFile(path)

	if err := c.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	return c, nil
}

// Set overrides the value for key.
func (c *Configuration) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.v.Set(key, value)
}

// IsSet reports whether key has a value from any source, defaults included.
func (c *Configuration) IsSet(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.v.IsSet(key)
}

func (c *Configuration) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.v.GetString(key)
}

func (c *Configuration) GetInt(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.v.GetInt(key)
}

func (c *Configuration) GetBool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.v.GetBool(key)
}

func (c *Configuration) GetFloat64(key string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.v.GetFloat64(key)
}

func (c *Configuration) GetDuration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.v.GetDuration(key)
}

// GetBytes parses a size such as "64MiB", "2 MB" or "1048576".
func (c *Configuration) GetBytes(key string) (uint64, error) {
	raw := c.GetString(key)
	if raw == "" {
		return 0, fmt.Errorf("config %s: no value", key)
	}

	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", key, err)
	}

	return n, nil
}
