package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/yndnr/kvgate-go/internal/protocol/resp"
	"github.com/yndnr/kvgate-go/internal/storage/snapshot"
	"github.com/yndnr/kvgate-go/internal/storage/wal"
	"github.com/yndnr/kvgate-go/internal/telemetry/metric"
)

// Default directory layout under the data dir.
const (
	DefaultWALDir      = "wal"
	DefaultSnapshotDir = "snapshots"
)

// Config configures the storage engine.
type Config struct {
	// DataDir is the base directory for all storage files.
	DataDir string

	WAL      wal.Config
	Snapshot snapshot.Config

	// WALRetain is the minimum number of WAL segments kept after compaction.
	WALRetain int

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:   dataDir,
		WAL:       wal.DefaultConfig(filepath.Join(dataDir, DefaultWALDir)),
		Snapshot:  snapshot.DefaultConfig(filepath.Join(dataDir, DefaultSnapshotDir)),
		WALRetain: 1,
	}
}

// ReplayFunc applies one logged command during recovery.
type ReplayFunc func(ctx context.Context, args [][]byte) error

// RecoveryStats describes what Recover did.
type RecoveryStats struct {
	SnapshotID   string
	SnapshotKeys int64
	FromSeq      uint64
	Applied      int
	Skipped      int
	Failed       int
	Elapsed      time.Duration
}

// Engine ties a Store to its write-ahead log and snapshots.
type Engine struct {
	cfg Config

	store     Store
	wal       *wal.Writer
	snapshot  *snapshot.Manager
	compactor *wal.Compactor

	logger  *slog.Logger
	metrics *metric.Registry
}

// New opens the WAL and snapshot directories for store.
//
// This does NOT perform recovery. Call Recover before serving traffic.
func New(cfg Config, store Store) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data_dir is required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WAL.Dir == "" {
		cfg.WAL.Dir = filepath.Join(cfg.DataDir, DefaultWALDir)
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = filepath.Join(cfg.DataDir, DefaultSnapshotDir)
	}

	walWriter, err := wal.NewWriter(cfg.WAL)
	if err != nil {
		return nil, fmt.Errorf("storage: create wal writer: %w", err)
	}

	snapMgr, err := snapshot.NewManager(cfg.Snapshot)
	if err != nil {
		walWriter.Close()
		return nil, fmt.Errorf("storage: create snapshot manager: %w", err)
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		wal:       walWriter,
		snapshot:  snapMgr,
		compactor: wal.NewCompactor(cfg.WAL.Dir, wal.WithRetainCount(cfg.WALRetain)),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// Store returns the keyspace.
func (e *Engine) Store() Store {
	return e.store
}

// Log returns the WAL writer, the sink for successful write commands.
func (e *Engine) Log() *wal.Writer {
	return e.wal
}

// Recover rebuilds the store from the newest snapshot and the WAL records
// logged after it. Records that fail to decode or apply are logged and
// skipped. A persistent store already holds its data and is left alone.
func (e *Engine) Recover(ctx context.Context, replay ReplayFunc) (*RecoveryStats, error) {
	startTime := time.Now()
	stats := &RecoveryStats{}

	if IsPersistent(e.store) {
		e.logger.Info("store is persistent, skipping log replay",
			"wal_last_seq", e.wal.LastSeq())
		return stats, nil
	}

	e.logger.Info("storage recovery started")

	info, err := e.snapshot.Load(ctx, e.store)
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshots):
		e.logger.Info("no snapshot found, starting with empty store")
	case err != nil:
		return nil, fmt.Errorf("load snapshot: %w", err)
	default:
		stats.SnapshotID = info.ID
		stats.SnapshotKeys = info.KeyCount
		stats.FromSeq = info.WALSeq
		e.logger.Info("snapshot loaded",
			"id", info.ID,
			"keys", info.KeyCount,
			"wal_seq", info.WALSeq,
			"elapsed", time.Since(startTime))
	}

	if err := e.replayWAL(ctx, replay, stats); err != nil {
		return nil, fmt.Errorf("replay wal: %w", err)
	}

	stats.Elapsed = time.Since(startTime)
	keys, _ := e.store.Len(ctx)
	e.logger.Info("recovery completed",
		"applied", stats.Applied,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"keys", keys,
		"elapsed", stats.Elapsed)

	return stats, nil
}

func (e *Engine) replayWAL(ctx context.Context, replay ReplayFunc, stats *RecoveryStats) error {
	reader, err := wal.NewReader(e.cfg.WAL.Dir)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if entry.Seq <= stats.FromSeq {
			stats.Skipped++
			continue
		}

		args, err := resp.DecodeCommand(entry.Record)
		if err != nil || len(args) == 0 {
			stats.Failed++
			e.logger.Warn("undecodable wal record", "seq", entry.Seq, "error", err)
			continue
		}

		if err := replay(ctx, args); err != nil {
			stats.Failed++
			e.logger.Warn("apply wal record failed",
				"seq", entry.Seq,
				"command", string(args[0]),
				"error", err)
			continue
		}
		stats.Applied++
	}
}

// Snapshot writes a snapshot of the store, prunes old snapshots and drops
// the WAL segments it covers.
//
// The caller must hold the global suspension: the store dump and the WAL
// sequence recorded with it have to describe the same state.
func (e *Engine) Snapshot(ctx context.Context) (*snapshot.Info, error) {
	startTime := time.Now()

	// Start a fresh segment so every earlier segment is fully covered.
	if err := e.wal.Rotate(); err != nil {
		return nil, fmt.Errorf("rotate wal: %w", err)
	}
	seq := e.wal.LastSeq()
	offset := e.wal.CurrentOffset()

	info, err := e.snapshot.Create(ctx, e.store, seq, offset)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	e.metrics.ObserveSnapshotWriteTime(time.Since(startTime))

	e.logger.Info("snapshot created",
		"id", info.ID,
		"keys", info.KeyCount,
		"wal_seq", info.WALSeq,
		"size_bytes", info.Size,
		"elapsed", time.Since(startTime))

	if removed, err := e.snapshot.Prune(); err != nil {
		e.logger.Warn("snapshot cleanup failed", "error", err)
	} else if removed > 0 {
		e.logger.Debug("old snapshots removed", "count", removed)
	}

	// Best-effort WAL compaction after snapshot.
	if removed, err := e.compactor.Compact(offset); err != nil {
		e.logger.Warn("wal compaction failed", "error", err)
	} else if removed > 0 {
		e.logger.Debug("wal segments compacted", "count", removed)
	}

	return info, nil
}

// Close flushes and closes the WAL, then the store.
func (e *Engine) Close() error {
	e.logger.Info("shutting down storage engine")

	walErr := e.wal.Close()
	if walErr != nil {
		e.logger.Error("close wal failed", "error", walErr)
	}
	storeErr := e.store.Close()
	if storeErr != nil {
		e.logger.Error("close store failed", "error", storeErr)
	}

	return errors.Join(walErr, storeErr)
}
