// Package walstore is a procedure store that appends every procedure state
// to a segmented write-ahead log. Rolled segments move to an archive
// directory where a background chore deletes them once they expire.
package walstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	"github.com/weiihann/procbench/config"
	"github.com/weiihann/procbench/server"
	"github.com/weiihann/procbench/store"
)

const (
	walDirName     = "wal"
	archiveDirName = "oldwals"

	// Frame layout: [length:4][checksum:4][flags:1][procID:8][state].
	// length covers flags, procID and state; checksum is murmur3 over the
	// same bytes.
	frameHeaderSize = 17

	flagSnappy byte = 1 << 0

	cleanerChoreName = "wal-log-cleaner"

	bufferedWriterSize = 64 << 10
)

var errStopped = errors.New("store stopped")

// Store is a segmented WAL procedure store.
type Store struct {
	walDir     string
	archiveDir string
	syncType   store.SyncType
	compress   bool
	maxSegSize int64
	ttl        time.Duration

	chunks  *store.ChunkPool
	hook    store.ArchiveHook
	cleaner *server.DirScanPool
	chores  *server.ChoreService
	logger  *slog.Logger

	mu        sync.Mutex
	segment   *os.File
	buf       *bufio.Writer
	segmentID uint64
	offset    int64
	closed    bool
}

// Open creates the WAL directories under opts.Dir and starts a fresh
// segment after any existing ones.
func Open(_ context.Context, opts store.OpenOptions) (*Store, error) {
	conf := opts.Env.Configuration()

	syncType, err := store.SyncTypeFrom(conf)
	if err != nil {
		return nil, store.InitError("wal sync type", err)
	}

	segSize, err := conf.GetBytes(config.WALSegmentSizeKey)
	if err != nil {
		return nil, store.InitError("wal segment size", err)
	}

	hook := opts.ArchiveHook
	if hook == nil {
		hook = store.NopArchiveHook
	}

	s := &Store{
		walDir:     filepath.Join(opts.Dir, walDirName),
		archiveDir: filepath.Join(opts.Dir, archiveDirName),
		syncType:   syncType,
		compress:   conf.GetBool(config.WALCompressKey),
		maxSegSize: int64(segSize),
		ttl:        conf.GetDuration(config.WALCleanerTTLKey),
		chunks:     opts.Chunks,
		hook:       hook,
		cleaner:    opts.Cleaner,
		chores:     opts.Env.ChoreService(),
		logger:     opts.Logger.With(slog.String("store", "wal")),
	}

	for _, dir := range []string{s.walDir, s.archiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, store.InitError("create wal dir", err)
		}
	}

	last, err := lastSegmentID(s.walDir)
	if err != nil {
		return nil, store.InitError("scan wal dir", err)
	}

	s.segmentID = last + 1

	if err := s.openSegment(); err != nil {
		return nil, store.InitError("open segment", err)
	}

	if interval := conf.GetDuration(config.WALCleanerIntervalKey); interval > 0 {
		err := s.chores.ScheduleChore(server.Chore{
			Name:   cleanerChoreName,
			Period: interval,
			Run:    s.cleanArchive,
		})
		if err != nil {
			s.segment.Close()

			return nil, store.InitError("schedule wal cleaner", err)
		}
	}

	s.logger.Info("wal store opened",
		slog.String("dir", s.walDir),
		slog.String("sync", string(s.syncType)),
		slog.Int64("segment_size", s.maxSegSize),
		slog.Bool("compress", s.compress),
	)

	return s, nil
}

func segmentName(id uint64) string {
	return fmt.Sprintf("wal_%016x.log", id)
}

// lastSegmentID returns the highest segment id in dir, or zero.
func lastSegmentID(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var last uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		var id uint64
		if _, err := fmt.Sscanf(e.Name(), "wal_%016x.log", &id); err != nil {
			continue
		}
		last = max(last, id)
	}

	return last, nil
}

func (s *Store) openSegment() error {
	path := filepath.Join(s.walDir, segmentName(s.segmentID))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("open segment %s: %w", path, err)
	}

	s.segment = f
	s.offset = 0

	if s.syncType == store.SyncNone {
		s.buf = bufio.NewWriterSize(f, bufferedWriterSize)
	}

	return nil
}

// Insert appends rec as one frame and applies the durability mode.
func (s *Store) Insert(rec store.Record) error {
	body := rec.State
	var flags byte

	if s.compress {
		body = snappy.Encode(nil, rec.State)
		flags |= flagSnappy
	}

	n := frameHeaderSize + len(body)

	var chunk []byte
	if s.chunks != nil && n <= s.chunks.ChunkSize() {
		chunk = s.chunks.Get()
		defer s.chunks.Put(chunk)
	} else {
		chunk = make([]byte, n)
	}

	frame := chunk[:n]
	binary.LittleEndian.PutUint32(frame[0:4], uint32(n-8))
	frame[8] = flags
	binary.LittleEndian.PutUint64(frame[9:17], rec.ProcID)
	copy(frame[frameHeaderSize:], body)
	binary.LittleEndian.PutUint32(frame[4:8], murmur3.Sum32(frame[8:]))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.WriteError("insert", errStopped)
	}

	if err := s.write(frame); err != nil {
		return store.WriteError("insert", err)
	}

	s.offset += int64(n)

	if s.offset >= s.maxSegSize {
		if err := s.rollSegment(); err != nil {
			return store.WriteError("roll segment", err)
		}
	}

	return nil
}

func (s *Store) write(frame []byte) error {
	if s.buf != nil {
		_, err := s.buf.Write(frame)

		return err
	}

	if _, err := s.segment.Write(frame); err != nil {
		return err
	}

	if s.syncType == store.SyncHsync {
		return s.segment.Sync()
	}

	return nil
}

// rollSegment closes the current segment, archives it and opens the next.
// Callers hold s.mu.
func (s *Store) rollSegment() error {
	if err := s.closeSegment(true); err != nil {
		return err
	}

	name := segmentName(s.segmentID)
	archived := filepath.Join(s.archiveDir, name)

	if err := os.Rename(filepath.Join(s.walDir, name), archived); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}

	s.hook(archived)

	s.logger.Debug("wal segment rolled",
		slog.Uint64("segment", s.segmentID),
		slog.String("archived", archived),
	)

	s.segmentID++

	return s.openSegment()
}

func (s *Store) closeSegment(flush bool) error {
	if flush {
		if s.buf != nil {
			if err := s.buf.Flush(); err != nil {
				return fmt.Errorf("flush segment: %w", err)
			}
		}
		if err := s.segment.Sync(); err != nil {
			return fmt.Errorf("sync segment: %w", err)
		}
	}

	err := s.segment.Close()
	s.segment = nil
	s.buf = nil

	return err
}

// cleanArchive hands archived segments older than the ttl to the cleaner
// pool for deletion.
func (s *Store) cleanArchive(ctx context.Context) error {
	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		return fmt.Errorf("read archive dir: %w", err)
	}

	cutoff := time.Now().Add(-s.ttl)

	for _, e := range entries {
		if ctx.Err() != nil {
			return nil
		}

		info, err := e.Info()
		if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.archiveDir, e.Name())
		submitted := s.cleaner.Submit(func(context.Context) error {
			return os.Remove(path)
		})
		if !submitted {
			return nil
		}
	}

	return nil
}

// Stop cancels the cleaner chore and closes the current segment. A clean
// stop flushes and syncs buffered frames first; an abort does not.
func (s *Store) Stop(abort bool) error {
	s.chores.Cancel(cleanerChoreName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if err := s.closeSegment(!abort); err != nil {
		return fmt.Errorf("stop wal store: %w", err)
	}

	s.logger.Info("wal store stopped", slog.Bool("abort", abort))

	return nil
}

// ReadSegment decodes every frame in the segment at path. Frames with a bad
// checksum fail the read.
func ReadSegment(path string) ([]store.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var (
		records []store.Record
		header  [8]byte
	)

	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}

			return nil, fmt.Errorf("read frame header: %w", err)
		}

		length := binary.LittleEndian.Uint32(header[0:4])
		sum := binary.LittleEndian.Uint32(header[4:8])

		if length < frameHeaderSize-8 {
			return nil, fmt.Errorf("frame length %d too short", length)
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read frame payload: %w", err)
		}

		if murmur3.Sum32(payload) != sum {
			return nil, fmt.Errorf("checksum mismatch after %d frames", len(records))
		}

		state := payload[9:]
		if payload[0]&flagSnappy != 0 {
			state, err = snappy.Decode(nil, state)
			if err != nil {
				return nil, fmt.Errorf("decode state: %w", err)
			}
		}

		records = append(records, store.Record{
			ProcID: binary.LittleEndian.Uint64(payload[1:9]),
			State:  state,
		})
	}
}
