package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Magic bytes identify snapshot files.
var magicBytes = []byte("KVGSNAP\x01")

const (
	filePrefix    = "snapshot-"
	fileExtension = ".snap"
	checksumSize  = 32
	headerVersion = 1
	maxHeaderSize = 1 << 20

	DefaultRetentionCount = 3
)

type snapshotHeader struct {
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	WALSeq    uint64 `json:"wal_seq"`
	WALOffset uint64 `json:"wal_offset"`
}

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrNoSnapshots      = errors.New("snapshot: no snapshots available")
)

// Source writes a full image of a store.
type Source interface {
	Dump(ctx context.Context, w io.Writer) (int64, error)
}

// Target replaces its contents with an image written by a Source.
type Target interface {
	Restore(ctx context.Context, r io.Reader) (int64, error)
}

// Config configures the snapshot manager.
type Config struct {
	Dir string

	// RetentionCount is how many snapshots Prune keeps.
	RetentionCount int
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
	}
}

type Manager struct {
	cfg Config
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if cfg.RetentionCount <= 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}

	return &Manager{cfg: cfg}, nil
}

// Info contains metadata about a snapshot.
type Info struct {
	ID string `json:"id"`

	// WALSeq is the last log sequence number reflected in the snapshot.
	WALSeq uint64 `json:"wal_seq"`

	// WALOffset is the WAL composite offset at snapshot time.
	// Format: (segmentID<<32 | offsetWithinSegment).
	WALOffset uint64 `json:"wal_offset"`

	KeyCount  int64  `json:"key_count"`
	CreatedAt int64  `json:"created_at"`
	Size      int64  `json:"size"`
	Path      string `json:"path"`
	Checksum  string `json:"checksum"`
}

// Create writes a new snapshot of src.
//
// Layout:
//
//	[magic:8][HeaderLen:4][HeaderJSON][store dump][checksum:32]
//
// The caller must keep writers out of src for the duration (the store dump
// and walSeq have to describe the same state).
func (m *Manager) Create(ctx context.Context, src Source, walSeq, walOffset uint64) (*Info, error) {
	now := time.Now()
	id := filePrefix + ulid.Make().String()

	tempPath := filepath.Join(m.cfg.Dir, id+".tmp")
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	hash := sha256.New()
	bw := bufio.NewWriter(io.MultiWriter(file, hash))

	fail := func(format string, err error) (*Info, error) {
		file.Close()
		return nil, fmt.Errorf(format, err)
	}

	if _, err := bw.Write(magicBytes); err != nil {
		return fail("snapshot: write magic: %w", err)
	}

	hdrJSON, err := json.Marshal(snapshotHeader{
		Version:   headerVersion,
		CreatedAt: now.UnixMilli(),
		WALSeq:    walSeq,
		WALOffset: walOffset,
	})
	if err != nil {
		return fail("snapshot: marshal header: %w", err)
	}

	var hdrLen [4]byte
	binary.BigEndian.PutUint32(hdrLen[:], uint32(len(hdrJSON)))
	if _, err := bw.Write(hdrLen[:]); err != nil {
		return fail("snapshot: write header length: %w", err)
	}
	if _, err := bw.Write(hdrJSON); err != nil {
		return fail("snapshot: write header: %w", err)
	}

	keys, err := src.Dump(ctx, bw)
	if err != nil {
		return fail("snapshot: dump store: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fail("snapshot: flush: %w", err)
	}

	// Checksum trailer is not part of the hash.
	sum := hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		return fail("snapshot: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fail("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, err
	}

	finalPath := filepath.Join(m.cfg.Dir, id+fileExtension)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("snapshot: rename: %w", err)
	}

	return &Info{
		ID:        id,
		WALSeq:    walSeq,
		WALOffset: walOffset,
		KeyCount:  keys,
		CreatedAt: now.UnixMilli(),
		Size:      stat.Size(),
		Path:      finalPath,
		Checksum:  hex.EncodeToString(sum),
	}, nil
}

// Load restores dst from the newest valid snapshot. Snapshots that fail
// verification are skipped in favour of older ones; verification happens
// before dst is touched.
func (m *Manager) Load(ctx context.Context, dst Target) (*Info, error) {
	snapshots, err := m.List()
	if err != nil {
		return nil, err
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		info, err := m.loadFile(ctx, snapshots[i].Path, dst)
		if err == nil {
			return info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			continue
		}
		return nil, err
	}

	return nil, ErrNoSnapshots
}

func (m *Manager) loadFile(ctx context.Context, path string, dst Target) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() < int64(len(magicBytes))+4+checksumSize {
		return nil, ErrChecksumMismatch
	}

	dataLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, dataLen, checksumSize), expected); err != nil {
		return nil, err
	}
	if err := verify(sha256.New(), io.NewSectionReader(f, 0, dataLen), dataLen, expected); err != nil {
		return nil, err
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, dataLen))

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, ErrInvalidMagic
	}

	var hdrLenBuf [4]byte
	if _, err := io.ReadFull(br, hdrLenBuf[:]); err != nil {
		return nil, err
	}
	hdrLen := binary.BigEndian.Uint32(hdrLenBuf[:])
	if hdrLen == 0 || hdrLen > maxHeaderSize {
		return nil, fmt.Errorf("snapshot: bad header length %d", hdrLen)
	}
	hdrJSON := make([]byte, hdrLen)
	if _, err := io.ReadFull(br, hdrJSON); err != nil {
		return nil, err
	}

	var hdr snapshotHeader
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return nil, fmt.Errorf("snapshot: unsupported version %d", hdr.Version)
	}

	keys, err := dst.Restore(ctx, br)
	if err != nil {
		return nil, fmt.Errorf("snapshot: restore %s: %w", filepath.Base(path), err)
	}

	return &Info{
		ID:        strings.TrimSuffix(filepath.Base(path), fileExtension),
		WALSeq:    hdr.WALSeq,
		WALOffset: hdr.WALOffset,
		KeyCount:  keys,
		CreatedAt: hdr.CreatedAt,
		Size:      stat.Size(),
		Path:      path,
		Checksum:  hex.EncodeToString(expected),
	}, nil
}

func verify(h hash.Hash, r io.Reader, n int64, want []byte) error {
	if _, err := io.CopyN(h, r, n); err != nil {
		return err
	}
	if !bytes.Equal(h.Sum(nil), want) {
		return ErrChecksumMismatch
	}
	return nil
}

// List lists snapshot files oldest first (metadata only).
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExtension) {
			paths = append(paths, filepath.Join(m.cfg.Dir, name))
		}
	}
	// ULIDs sort lexicographically in creation order.
	sort.Strings(paths)

	var infos []*Info
	for _, p := range paths {
		stat, err := os.Stat(p)
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			ID:   strings.TrimSuffix(filepath.Base(p), fileExtension),
			Path: p,
			Size: stat.Size(),
		})
	}
	return infos, nil
}

// Prune keeps the newest RetentionCount snapshots and deletes the rest.
// It returns the number of files removed.
func (m *Manager) Prune() (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	if len(infos) <= m.cfg.RetentionCount {
		return 0, nil
	}

	var errs []error
	removed := 0
	for _, info := range infos[:len(infos)-m.cfg.RetentionCount] {
		if err := os.Remove(info.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
