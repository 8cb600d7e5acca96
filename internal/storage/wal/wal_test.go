package wal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func record(args ...string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "*%d\r\n", len(args))
	for _, a := range args {
		fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(a), a)
	}
	return b.Bytes()
}

func syncConfig(dir string) Config {
	cfg := DefaultConfig(dir)
	cfg.SyncMode = SyncModeSync
	return cfg
}

func readAll(t *testing.T, dir string) []*Entry {
	t.Helper()
	r, err := NewReader(dir)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	entries, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return entries
}

// ============================================================================
// Config
// ============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("x")
	if cfg.Dir != "x" {
		t.Fatalf("Dir = %q, want %q", cfg.Dir, "x")
	}
	if cfg.SyncMode != SyncModeSync {
		t.Fatalf("SyncMode = %q, want %q", cfg.SyncMode, SyncModeSync)
	}
	if cfg.BatchCount != DefaultBatchCount {
		t.Fatalf("BatchCount = %d, want %d", cfg.BatchCount, DefaultBatchCount)
	}
	if cfg.MaxFileSize != DefaultMaxFileSize {
		t.Fatalf("MaxFileSize = %d, want %d", cfg.MaxFileSize, DefaultMaxFileSize)
	}
}

func TestWriterDefaults(t *testing.T) {
	cfg := Config{Dir: "x"}
	applyDefaults(&cfg)

	if cfg.SyncMode != SyncModeSync {
		t.Errorf("SyncMode = %q, want %q", cfg.SyncMode, SyncModeSync)
	}
	if cfg.SyncInterval != DefaultSyncInterval {
		t.Errorf("SyncInterval = %v, want %v", cfg.SyncInterval, DefaultSyncInterval)
	}
	if cfg.MaxEntryCount != DefaultMaxEntryCount {
		t.Errorf("MaxEntryCount = %d, want %d", cfg.MaxEntryCount, DefaultMaxEntryCount)
	}
}

func TestWriter_EmptyDir(t *testing.T) {
	if _, err := NewWriter(Config{}); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

// ============================================================================
// Codec
// ============================================================================

func TestCodec_RoundTrip(t *testing.T) {
	in := &Entry{Type: EntryTypeCommand, Seq: 42, Timestamp: 1700000000123, Record: record("SET", "k", "v")}

	frame, err := encodeEntryFrame(in)
	if err != nil {
		t.Fatalf("encodeEntryFrame: %v", err)
	}

	out, err := decodeEntryFrame(frame[4:])
	if err != nil {
		t.Fatalf("decodeEntryFrame: %v", err)
	}
	if out.Seq != in.Seq || out.Timestamp != in.Timestamp || !bytes.Equal(out.Record, in.Record) {
		t.Errorf("decodeEntryFrame() = %+v, want %+v", out, in)
	}
}

func TestCodec_Errors(t *testing.T) {
	good, _ := encodeEntryFrame(&Entry{Type: EntryTypeCommand, Seq: 1, Record: record("DEL", "k")})

	flipped := append([]byte(nil), good[4:]...)
	flipped[len(flipped)-1] ^= 0xff

	badType := append([]byte(nil), good...)
	badType[8] = 9
	binary.BigEndian.PutUint32(badType[4:8], crc32.ChecksumIEEE(badType[8:]))

	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"too short", []byte{1, 2, 3}, ErrCorruptedEntry},
		{"checksum", flipped, ErrChecksumMismatch},
		{"type", badType[4:], ErrInvalidEntryType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeEntryFrame(tt.frame); !errors.Is(err, tt.want) {
				t.Errorf("decodeEntryFrame() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := encodeEntryFrame(&Entry{Type: EntryTypeUnspecified, Record: []byte("x")}); !errors.Is(err, ErrInvalidEntryType) {
		t.Errorf("encodeEntryFrame(unspecified) error = %v, want %v", err, ErrInvalidEntryType)
	}
	if _, err := encodeEntryFrame(&Entry{Type: EntryTypeCommand}); err == nil {
		t.Error("encodeEntryFrame(empty record) should fail")
	}
	if _, err := encodeEntryFrame(nil); err == nil {
		t.Error("encodeEntryFrame(nil) should fail")
	}
}

func TestEntryType_String(t *testing.T) {
	if got := EntryTypeCommand.String(); got != "command" {
		t.Errorf("String() = %q, want %q", got, "command")
	}
	if got := EntryType(7).String(); got != "unspecified" {
		t.Errorf("String() = %q, want %q", got, "unspecified")
	}
}

// ============================================================================
// Writer / Reader
// ============================================================================

func TestWriterReader_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	records := [][]byte{
		record("SET", "a", "1"),
		record("INCR", "a"),
		record("DEL", "a", "b"),
	}
	for i, rec := range records {
		if err := w.Append(rec); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if got := w.LastSeq(); got != 3 {
		t.Errorf("LastSeq() = %d, want 3", got)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := VerifyTrailerChecksum(filepath.Join(dir, "wal-00000001.log")); err != nil {
		t.Fatalf("VerifyTrailerChecksum: %v", err)
	}

	entries := readAll(t, dir)
	if len(entries) != len(records) {
		t.Fatalf("ReadAll() = %d entries, want %d", len(entries), len(records))
	}
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			t.Errorf("entry %d Seq = %d, want %d", i, e.Seq, i+1)
		}
		if !bytes.Equal(e.Record, records[i]) {
			t.Errorf("entry %d Record = %q, want %q", i, e.Record, records[i])
		}
		if e.Type != EntryTypeCommand {
			t.Errorf("entry %d Type = %v, want command", i, e.Type)
		}
	}
}

func TestWriter_SyncModeVisibleBeforeClose(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.Append(record("SET", "k", "v")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if got := len(readAll(t, dir)); got != 1 {
		t.Errorf("entries visible on disk = %d, want 1", got)
	}
}

func TestWriter_BatchMode(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SyncMode = SyncModeBatch
	cfg.BatchCount = 1000
	cfg.SyncInterval = time.Hour

	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		if err := w.Append(record("INCR", "n")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if got := len(readAll(t, dir)); got != 0 {
		t.Errorf("entries before Flush = %d, want 0", got)
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(readAll(t, dir)); got != 3 {
		t.Errorf("entries after Flush = %d, want 3", got)
	}
}

func TestWriter_BatchModeSyncLoop(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SyncMode = SyncModeBatch
	cfg.BatchCount = 1000
	cfg.SyncInterval = 10 * time.Millisecond

	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.Append(record("SET", "k", "v")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(readAll(t, dir)) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sync loop did not flush the buffered entry")
}

func TestWriter_RotationByEntryCount(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)
	cfg.MaxEntryCount = 1

	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Append(record("INCR", "n")); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	n, err := NewCompactor(dir).FileCount()
	if err != nil {
		t.Fatalf("FileCount: %v", err)
	}
	if n != 3 {
		t.Errorf("FileCount() = %d, want 3", n)
	}

	entries := readAll(t, dir)
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			t.Errorf("entry %d Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestWriter_Rotate(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	before := w.CurrentOffset() >> 32
	if err := w.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if got := w.CurrentOffset() >> 32; got != before {
		t.Errorf("Rotate() on empty segment moved to segment %d, want %d", got, before)
	}

	if err := w.Append(record("SET", "k", "v")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if got := w.CurrentOffset() >> 32; got != before+1 {
		t.Errorf("segment after Rotate() = %d, want %d", got, before+1)
	}
	if err := VerifyTrailerChecksum(filepath.Join(dir, formatSegmentFilename(before))); err != nil {
		t.Errorf("rotated segment not finalized: %v", err)
	}
}

func TestWriter_ResumesSequence(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Append(record("INCR", "n")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w2, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter (reopen): %v", err)
	}
	if got := w2.LastSeq(); got != 5 {
		t.Errorf("LastSeq() after reopen = %d, want 5", got)
	}
	if err := w2.Append(record("INCR", "n")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readAll(t, dir)
	if len(entries) != 6 {
		t.Fatalf("entries = %d, want 6", len(entries))
	}
	if got := entries[5].Seq; got != 6 {
		t.Errorf("last Seq = %d, want 6", got)
	}
}

func TestNewWriter_ContinuesOpenSegment(t *testing.T) {
	dir := t.TempDir()

	// An "open" segment: magic plus one entry, no checksum trailer.
	path := filepath.Join(dir, formatSegmentFilename(1))
	frame, err := encodeEntryFrame(NewCommandEntry(7, record("SET", "a", "1")))
	if err != nil {
		t.Fatalf("encodeEntryFrame: %v", err)
	}
	if err := os.WriteFile(path, append([]byte(MagicBytes), frame...), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if got := w.LastSeq(); got != 7 {
		t.Errorf("LastSeq() = %d, want 7", got)
	}
	if err := w.Append(record("SET", "b", "2")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := VerifyTrailerChecksum(path); err != nil {
		t.Fatalf("VerifyTrailerChecksum: %v", err)
	}
	entries := readAll(t, dir)
	if len(entries) != 2 || entries[1].Seq != 8 {
		t.Errorf("entries = %+v, want seq 7 then 8 in one segment", entries)
	}
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w, err := NewWriter(syncConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if err := w.Append(record("SET", "k", "v")); !errors.Is(err, ErrClosed) {
		t.Errorf("Append() after Close error = %v, want %v", err, ErrClosed)
	}
	if err := w.Rotate(); !errors.Is(err, ErrClosed) {
		t.Errorf("Rotate() after Close error = %v, want %v", err, ErrClosed)
	}
}

// ============================================================================
// Reader robustness
// ============================================================================

func TestReader_EmptyDirectory(t *testing.T) {
	r, err := NewReader(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Read() error = %v, want io.EOF", err)
	}
}

func TestReader_SkipsDamagedTail(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)

	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()
	for i := 0; i < 2; i++ {
		if err := w.Append(record("INCR", "n")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// Simulate a crash mid-frame: the segment stays open with garbage at the end.
	w.mu.Lock()
	_, _ = w.file.Write([]byte{0, 0, 0, 40, 1, 2})
	w.mu.Unlock()

	entries := readAll(t, dir)
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
}

func TestReader_SkipsBadMagicSegment(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, formatSegmentFilename(1)), []byte("NOTAWAL!garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	frame, _ := encodeEntryFrame(NewCommandEntry(1, record("SET", "k", "v")))
	if err := os.WriteFile(filepath.Join(dir, formatSegmentFilename(2)), append([]byte(MagicBytes), frame...), 0600); err != nil {
		t.Fatal(err)
	}

	entries := readAll(t, dir)
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestVerifyTrailerChecksum_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.log")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := VerifyTrailerChecksum(path); !errors.Is(err, ErrCorrupted) {
		t.Errorf("VerifyTrailerChecksum() error = %v, want %v", err, ErrCorrupted)
	}
}

// ============================================================================
// Compactor
// ============================================================================

func TestCompactor_Compact(t *testing.T) {
	tests := []struct {
		name        string
		segments    int
		snapshotSeg uint64
		retain      int
		wantLeft    int
	}{
		{"retain guard", 5, 4, 3, 3},
		{"all covered but active", 5, 5, 1, 1},
		{"nothing covered", 3, 1, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for i := 1; i <= tt.segments; i++ {
				p := filepath.Join(dir, formatSegmentFilename(uint64(i)))
				if err := os.WriteFile(p, []byte("x"), 0600); err != nil {
					t.Fatalf("write file: %v", err)
				}
			}

			c := NewCompactor(dir, WithRetainCount(tt.retain))
			removed, err := c.Compact(tt.snapshotSeg << 32)
			if err != nil {
				t.Fatalf("Compact: %v", err)
			}
			left, _ := c.FileCount()
			if left != tt.wantLeft {
				t.Errorf("FileCount() = %d, want %d", left, tt.wantLeft)
			}
			if removed != tt.segments-tt.wantLeft {
				t.Errorf("Compact() removed = %d, want %d", removed, tt.segments-tt.wantLeft)
			}
		})
	}
}

func TestCompactor_TotalSize(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 3; i++ {
		p := filepath.Join(dir, formatSegmentFilename(uint64(i)))
		if err := os.WriteFile(p, make([]byte, 100), 0600); err != nil {
			t.Fatal(err)
		}
	}
	// Non-WAL files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), make([]byte, 50), 0600); err != nil {
		t.Fatal(err)
	}

	c := NewCompactor(dir)
	size, err := c.TotalSize()
	if err != nil {
		t.Fatalf("TotalSize: %v", err)
	}
	if size != 300 {
		t.Errorf("TotalSize() = %d, want 300", size)
	}
}

func TestCompactor_NonexistentDir(t *testing.T) {
	c := NewCompactor(filepath.Join(t.TempDir(), "missing"))
	if _, err := c.Compact(10 << 32); err != nil {
		t.Errorf("Compact() on missing dir = %v, want nil", err)
	}
	if n, err := c.FileCount(); err != nil || n != 0 {
		t.Errorf("FileCount() = %d, %v, want 0, nil", n, err)
	}
}

func TestParseSegmentFilename(t *testing.T) {
	tests := []struct {
		name   string
		wantID uint64
		wantOK bool
	}{
		{"wal-00000001.log", 1, true},
		{"wal-00000123.log", 123, true},
		{"wal-abc.log", 0, false},
		{"snapshot-1.snap", 0, false},
		{"wal-00000001.txt", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := parseSegmentFilename(tt.name)
			if ok != tt.wantOK || (ok && id != tt.wantID) {
				t.Errorf("parseSegmentFilename(%q) = %d, %v, want %d, %v", tt.name, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}
