package wal

import (
	"errors"
	"fmt"
	"os"
)

// DefaultRetainCount is the default number of WAL files to retain after compaction.
const DefaultRetainCount = 3

// Compactor compacts WAL files to reduce disk usage.
type Compactor struct {
	walDir      string
	retainCount int
}

// CompactorOption configures the Compactor.
type CompactorOption func(*Compactor)

// WithRetainCount sets the number of WAL files to retain.
func WithRetainCount(count int) CompactorOption {
	return func(c *Compactor) {
		if count > 0 {
			c.retainCount = count
		}
	}
}

// NewCompactor creates a new WAL compactor.
func NewCompactor(walDir string, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		walDir:      walDir,
		retainCount: DefaultRetainCount,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Compact removes WAL segments that are fully covered by a snapshot taken
// at snapshotOffset, keeping at least retainCount segments. It returns the
// number of segments removed.
//
// snapshotOffset uses the composite format (segmentID<<32 | offsetWithinSegment);
// segments with an id below the snapshot's segment are covered.
func (c *Compactor) Compact(snapshotOffset uint64) (int, error) {
	segs, err := listSegments(c.walDir)
	if err != nil {
		return 0, err
	}

	snapshotSegmentID := snapshotOffset >> 32

	var toDelete []string
	for _, seg := range segs {
		if seg.id < snapshotSegmentID {
			toDelete = append(toDelete, seg.path)
		}
	}

	if len(segs)-len(toDelete) < c.retainCount {
		keepCount := c.retainCount - (len(segs) - len(toDelete))
		if keepCount > len(toDelete) {
			keepCount = len(toDelete)
		}
		toDelete = toDelete[:len(toDelete)-keepCount]
	}

	var errs []error
	removed := 0
	for _, path := range toDelete {
		if err := os.Remove(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		removed++
	}

	if len(errs) > 0 {
		return removed, fmt.Errorf("wal: failed to delete %d files: %w", len(errs), errors.Join(errs...))
	}

	return removed, nil
}

// TotalSize returns the total size of all WAL files in bytes.
func (c *Compactor) TotalSize() (int64, error) {
	segs, err := listSegments(c.walDir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, seg := range segs {
		info, err := os.Stat(seg.path)
		if err != nil {
			continue
		}
		total += info.Size()
	}

	return total, nil
}

// FileCount returns the number of WAL files.
func (c *Compactor) FileCount() (int, error) {
	segs, err := listSegments(c.walDir)
	if err != nil {
		return 0, err
	}
	return len(segs), nil
}
