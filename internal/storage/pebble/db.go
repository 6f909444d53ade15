package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/rzbill/courier/pkg/log"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = pebble.ErrNotFound

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch/write.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever never forces WAL syncs from the application.
	FsyncModeNever
)

// ParseFsyncMode maps "always", "interval" and "never" to a FsyncMode.
// An empty string yields FsyncModeUnspecified.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FsyncModeUnspecified, nil
	case "always":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	}
	return FsyncModeUnspecified, fmt.Errorf("unknown fsync mode %q", s)
}

// Options configures the Pebble store wrapper.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
	// Metrics observes read/write/commit latencies and sizes. Optional.
	Metrics MetricsHook
	// Logger receives Pebble's own info/error output. Optional.
	Logger logpkg.Logger
}

// MetricsHook is a minimal hook surface for storage observations.
type MetricsHook interface {
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveWrite(time.Duration, int)            {}
func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

// Reader is the read surface shared by the live DB and snapshots.
type Reader interface {
	NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error)
	Get(key []byte) ([]byte, error)
}

// DB wraps a Pebble database instance with fsync policy and basic helpers.
type DB struct {
	inner     *pebble.DB
	writeSync bool
	metrics   MetricsHook
}

// Open creates or opens a Pebble database with the provided options.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if opts.Logger != nil {
		po.Logger = pebbleLogger{l: opts.Logger.WithComponent("pebble")}
	}

	switch opts.Fsync {
	case FsyncModeAlways:
		// Sync is requested per commit.
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		interval := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return interval }
	case FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &DB{
		inner:     inner,
		writeSync: opts.Fsync == FsyncModeAlways || opts.Fsync == FsyncModeInterval,
		metrics:   metrics,
	}, nil
}

// Close closes the Pebble database.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewSnapshot creates a consistent view of the database. Caller must Close it.
func (db *DB) NewSnapshot() *Snapshot {
	return &Snapshot{inner: db.inner.NewSnapshot(), metrics: db.metrics}
}

// NewBatch creates a new batch for atomic multi-key updates.
func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch commits the batch with the configured fsync policy. A cancelled
// context aborts before anything is written.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	ops := int(b.Count())
	size := b.Len()

	syncMode := pebble.NoSync
	if db.writeSync {
		syncMode = pebble.Sync
	}
	err := b.Commit(syncMode)
	db.metrics.ObserveBatchCommit(time.Since(start), ops, size)
	return err
}

// Set writes a single key through a small batch respecting fsync policy.
func (db *DB) Set(key, value []byte) error {
	start := time.Now()
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		return err
	}
	db.metrics.ObserveWrite(time.Since(start), len(key)+len(value))
	return nil
}

// Delete removes a key using a small internal batch respecting fsync policy.
func (db *DB) Delete(key []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return db.CommitBatch(context.Background(), b)
}

// Get copies the value for the given key. Missing keys return ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// NewIter creates a raw Pebble iterator with the provided options.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}

// CompactRange requests compaction of the key range [start, end).
func (db *DB) CompactRange(start, end []byte) error {
	return db.inner.Compact(start, end, true)
}

// Snapshot is a point-in-time Reader.
type Snapshot struct {
	inner   *pebble.Snapshot
	metrics MetricsHook
}

// NewIter creates an iterator over the snapshot.
func (s *Snapshot) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return s.inner.NewIter(opts)
}

// Get copies the value for key as of the snapshot.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := s.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	s.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// Close releases the snapshot.
func (s *Snapshot) Close() error { return s.inner.Close() }

// pebbleLogger routes Pebble's logging through the service logger.
type pebbleLogger struct{ l logpkg.Logger }

func (p pebbleLogger) Infof(format string, args ...interface{})  { p.l.Debugf(format, args...) }
func (p pebbleLogger) Errorf(format string, args ...interface{}) { p.l.Errorf(format, args...) }
func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Fatal(fmt.Sprintf(format, args...))
}
