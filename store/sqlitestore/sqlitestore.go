// Package sqlitestore is a procedure store backed by a SQLite database in
// WAL journal mode.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/weiihann/procbench/config"
	"github.com/weiihann/procbench/server"
	"github.com/weiihann/procbench/store"
)

const (
	fileName            = "procedures.db"
	checkpointChoreName = "sqlite-checkpoint"

	schema = `CREATE TABLE IF NOT EXISTS procedures (
		proc_id INTEGER PRIMARY KEY,
		state   BLOB
	)`

	insertSQL = `INSERT OR REPLACE INTO procedures (proc_id, state) VALUES (?, ?)`
)

// synchronous maps a durability mode to SQLite's synchronous pragma.
func synchronous(t store.SyncType) string {
	switch t {
	case store.SyncHsync:
		return "FULL"
	case store.SyncHflush:
		return "NORMAL"
	default:
		return "OFF"
	}
}

// Store writes one row per procedure. SQLite allows a single writer, so the
// pool is capped at one connection and writers queue on it.
type Store struct {
	db       *sql.DB
	insert   *sql.Stmt
	syncType store.SyncType
	chores   *server.ChoreService
	logger   *slog.Logger
}

// Open creates the database under opts.Dir.
func Open(ctx context.Context, opts store.OpenOptions) (*Store, error) {
	conf := opts.Env.Configuration()

	syncType, err := store.SyncTypeFrom(conf)
	if err != nil {
		return nil, store.InitError("sqlite sync type", err)
	}

	path := filepath.Join(opts.Dir, fileName)
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=%s",
		path, synchronous(syncType))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, store.InitError("open sqlite db", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()

		return nil, store.InitError("create schema", err)
	}

	insert, err := db.PrepareContext(ctx, insertSQL)
	if err != nil {
		db.Close()

		return nil, store.InitError("prepare insert", err)
	}

	s := &Store{
		db:       db,
		insert:   insert,
		syncType: syncType,
		chores:   opts.Env.ChoreService(),
		logger:   opts.Logger.With(slog.String("store", "sqlite")),
	}

	if interval := conf.GetDuration(config.SQLiteCheckpointIntervalKey); interval > 0 {
		err := s.chores.ScheduleChore(server.Chore{
			Name:   checkpointChoreName,
			Period: interval,
			Run: func(ctx context.Context) error {
				return s.checkpoint(ctx, "PASSIVE")
			},
		})
		if err != nil {
			insert.Close()
			db.Close()

			return nil, store.InitError("schedule sqlite checkpoint", err)
		}
	}

	s.logger.Info("sqlite store opened",
		slog.String("path", path),
		slog.String("synchronous", synchronous(syncType)),
	)

	return s, nil
}

// Insert upserts rec. The write does not observe cancellation: a started
// write always runs to completion.
func (s *Store) Insert(rec store.Record) error {
	if _, err := s.insert.Exec(int64(rec.ProcID), rec.State); err != nil {
		return store.WriteError("insert", err)
	}

	return nil
}

// Count returns the number of stored procedures.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM procedures`).Scan(&n)

	return n, err
}

func (s *Store) checkpoint(ctx context.Context, mode string) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint("+mode+")"); err != nil {
		return fmt.Errorf("wal checkpoint %s: %w", mode, err)
	}

	return nil
}

// Stop closes the database. A clean stop truncates the SQLite WAL first.
func (s *Store) Stop(abort bool) error {
	s.chores.Cancel(checkpointChoreName)

	var cpErr error
	if !abort {
		cpErr = s.checkpoint(context.Background(), "TRUNCATE")
	}

	s.insert.Close()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite db: %w", err)
	}

	if cpErr != nil {
		return cpErr
	}

	s.logger.Info("sqlite store stopped", slog.Bool("abort", abort))

	return nil
}
