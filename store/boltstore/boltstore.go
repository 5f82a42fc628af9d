// Package boltstore is a procedure store backed by a bbolt B+tree file.
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/weiihann/procbench/config"
	"github.com/weiihann/procbench/server"
	"github.com/weiihann/procbench/store"
)

const (
	fileName       = "procedures.bolt"
	statsChoreName = "bolt-stats"
)

var bucketName = []byte("procedures")

// Store keeps one key per procedure id in a single bucket.
//
// hsync commits each write in its own fsynced transaction. hflush skips the
// fsync. nosync additionally coalesces concurrent writers with db.Batch.
type Store struct {
	db       *bolt.DB
	syncType store.SyncType
	chores   *server.ChoreService
	logger   *slog.Logger
}

// Open creates or opens the bbolt file under opts.Dir.
func Open(_ context.Context, opts store.OpenOptions) (*Store, error) {
	conf := opts.Env.Configuration()

	syncType, err := store.SyncTypeFrom(conf)
	if err != nil {
		return nil, store.InitError("bolt sync type", err)
	}

	path := filepath.Join(opts.Dir, fileName)

	db, err := bolt.Open(path, 0o644, &bolt.Options{
		Timeout:        time.Second,
		NoSync:         syncType != store.SyncHsync,
		NoFreelistSync: true,
	})
	if err != nil {
		return nil, store.InitError("open bolt db", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)

		return err
	})
	if err != nil {
		db.Close()

		return nil, store.InitError("create bucket", err)
	}

	s := &Store{
		db:       db,
		syncType: syncType,
		chores:   opts.Env.ChoreService(),
		logger:   opts.Logger.With(slog.String("store", "bolt")),
	}

	if interval := conf.GetDuration(config.BoltStatsIntervalKey); interval > 0 {
		err := s.chores.ScheduleChore(server.Chore{
			Name:   statsChoreName,
			Period: interval,
			Run:    s.logStats,
		})
		if err != nil {
			db.Close()

			return nil, store.InitError("schedule bolt stats", err)
		}
	}

	s.logger.Info("bolt store opened",
		slog.String("path", path),
		slog.String("sync", string(syncType)),
	)

	return s, nil
}

func procKey(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)

	return k[:]
}

// Insert stores rec under its big-endian procedure id.
func (s *Store) Insert(rec store.Record) error {
	put := func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(procKey(rec.ProcID), rec.State)
	}

	var err error
	if s.syncType == store.SyncNone {
		err = s.db.Batch(put)
	} else {
		err = s.db.Update(put)
	}

	if err != nil {
		return store.WriteError("insert", err)
	}

	return nil
}

// Count returns the number of stored procedures.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketName).Stats().KeyN

		return nil
	})

	return n, err
}

func (s *Store) logStats(context.Context) error {
	stats := s.db.Stats()

	s.logger.Debug("bolt stats",
		slog.Int("write_tx", stats.TxN),
		slog.Int("free_pages", stats.FreePageN),
	)

	return nil
}

// Stop closes the database. A clean stop fsyncs first when writes skipped it.
func (s *Store) Stop(abort bool) error {
	s.chores.Cancel(statsChoreName)

	if !abort && s.syncType != store.SyncHsync {
		if err := s.db.Sync(); err != nil {
			return fmt.Errorf("sync bolt db: %w", err)
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close bolt db: %w", err)
	}

	s.logger.Info("bolt store stopped", slog.Bool("abort", abort))

	return nil
}
