// Package jobstate persists print progress snapshots so an interrupted job
// can be resumed.
package jobstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Extension is the file extension of snapshot files.
const Extension = ".pstate"

const (
	filePrefix = "print_state_"

	timestampLayout = "20060102_150405"
)

var requiredKeys = []string{"current_layer_index", "total_layers", "layer_files"}

var (
	// ErrNoSnapshots is returned by Latest when the store is empty.
	ErrNoSnapshots = errors.New("no saved snapshots")
	// ErrSnapshotNotFound is returned by Delete for a missing file.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Snapshot is the durable record of a job's progress.
type Snapshot struct {
	CurrentLayerIndex int      `json:"current_layer_index"`
	TotalLayers       int      `json:"total_layers"`
	LayerFiles        []string `json:"layer_files"`
	Timestamp         string   `json:"timestamp"`
	SaveTime          float64  `json:"save_time"`
}

// SavedAt returns SaveTime as a time.Time.
func (s *Snapshot) SavedAt() time.Time {
	sec, frac := math.Modf(s.SaveTime)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Meta summarizes a saved snapshot for listing.
type Meta struct {
	Path         string  `json:"file_path"`
	Timestamp    string  `json:"timestamp"`
	CurrentLayer int     `json:"current_layer"`
	TotalLayers  int     `json:"total_layers"`
	SaveTime     float64 `json:"save_time"`
}

// InvalidSnapshotError reports a snapshot file that cannot be used.
type InvalidSnapshotError struct {
	Path    string
	Missing []string
	Err     error
}

func (e *InvalidSnapshotError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("invalid snapshot %s: missing %s", e.Path, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("invalid snapshot %s: %v", e.Path, e.Err)
}

func (e *InvalidSnapshotError) Unwrap() error {
	return e.Err
}

// IsInvalidSnapshot reports whether err is an InvalidSnapshotError.
func IsInvalidSnapshot(err error) bool {
	var ise *InvalidSnapshotError
	return errors.As(err, &ise)
}

// WriteError reports a snapshot that could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write snapshot %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Store keeps snapshots as one file per save in a directory.
// Files are never modified after they are written.
type Store struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used to name and stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes snap to a new timestamp-named file and returns its path.
// Timestamp and SaveTime are filled in from the store's clock.
func (s *Store) Save(snap Snapshot) (string, error) {
	now := s.now()
	snap.Timestamp = now.Format(timestampLayout)
	snap.SaveTime = float64(now.UnixNano()) / 1e9
	if snap.LayerFiles == nil {
		snap.LayerFiles = []string{}
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", &WriteError{Path: s.dir, Err: err}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", &WriteError{Path: s.dir, Err: err}
	}

	base := filePrefix + snap.Timestamp
	for n := 0; ; n++ {
		name := base + Extension
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", base, n, Extension)
		}
		path := filepath.Join(s.dir, name)

		err := writeNew(path, data)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			s.logger.Error("failed to save snapshot", "path", path, "error", err)
			return "", &WriteError{Path: path, Err: err}
		}
		s.logger.Info("snapshot saved", "path", path, "layer", snap.CurrentLayerIndex, "total", snap.TotalLayers)
		return path, nil
	}
}

// writeNew writes data to a temp file and links it into place, so a reader
// never sees a partial snapshot and an existing file is never replaced.
func writeNew(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pstate-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return os.ErrExist
		}
		return fmt.Errorf("link snapshot: %w", err)
	}
	return nil
}

// Load reads and validates the snapshot at path.
func (s *Store) Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InvalidSnapshotError{Path: path, Err: err}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &InvalidSnapshotError{Path: path, Err: err}
	}
	var missing []string
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		s.logger.Error("invalid snapshot", "path", path, "missing", missing)
		return nil, &InvalidSnapshotError{Path: path, Missing: missing}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &InvalidSnapshotError{Path: path, Err: err}
	}
	if snap.CurrentLayerIndex < -1 || snap.CurrentLayerIndex >= len(snap.LayerFiles) {
		return nil, &InvalidSnapshotError{
			Path: path,
			Err:  fmt.Errorf("layer index %d out of range for %d files", snap.CurrentLayerIndex, len(snap.LayerFiles)),
		}
	}

	s.logger.Info("snapshot loaded", "path", path)
	return &snap, nil
}

// List returns the saved snapshots, newest first. Unreadable files are
// skipped.
func (s *Store) List() ([]Meta, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Meta{}, nil
		}
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}

	metas := []Meta{}
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), Extension) {
			continue
		}
		path := filepath.Join(s.dir, d.Name())
		meta, err := readMeta(path)
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", "path", path, "error", err)
			continue
		}
		metas = append(metas, meta)
	}

	slices.SortStableFunc(metas, func(a, b Meta) int {
		switch {
		case a.SaveTime > b.SaveTime:
			return -1
		case a.SaveTime < b.SaveTime:
			return 1
		}
		return strings.Compare(b.Path, a.Path)
	})
	return metas, nil
}

func readMeta(path string) (Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, err
	}
	raw := struct {
		Timestamp         *string `json:"timestamp"`
		CurrentLayerIndex *int    `json:"current_layer_index"`
		TotalLayers       int     `json:"total_layers"`
		SaveTime          float64 `json:"save_time"`
	}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Meta{}, err
	}

	meta := Meta{
		Path:         path,
		Timestamp:    "Unknown",
		CurrentLayer: 0,
		TotalLayers:  raw.TotalLayers,
		SaveTime:     raw.SaveTime,
	}
	if raw.Timestamp != nil {
		meta.Timestamp = *raw.Timestamp
	}
	if raw.CurrentLayerIndex != nil {
		meta.CurrentLayer = *raw.CurrentLayerIndex + 1
	}
	return meta, nil
}

// Latest returns the path of the newest snapshot.
func (s *Store) Latest() (string, error) {
	metas, err := s.List()
	if err != nil {
		return "", err
	}
	if len(metas) == 0 {
		return "", ErrNoSnapshots
	}
	return metas[0].Path, nil
}

// Delete removes the snapshot at path. Only files inside the store
// directory can be deleted.
func (s *Store) Delete(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve snapshot path: %w", err)
	}
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return fmt.Errorf("resolve snapshot directory: %w", err)
	}
	if filepath.Dir(abs) != dir || filepath.Ext(abs) != Extension {
		return fmt.Errorf("%s is not a snapshot in %s", path, s.dir)
	}

	if err := os.Remove(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("snapshot not found", "path", path)
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
		}
		return fmt.Errorf("delete snapshot: %w", err)
	}
	s.logger.Info("snapshot deleted", "path", path)
	return nil
}
