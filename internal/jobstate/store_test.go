package jobstate

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// fixedClock returns successive times one second apart starting at start.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}

var baseTime = time.Date(2026, 3, 14, 9, 26, 53, 500_000_000, time.Local)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	s := NewStore(dir, WithClock(fixedClock(baseTime, time.Second)))
	snap := Snapshot{
		CurrentLayerIndex: 2,
		TotalLayers:       4,
		LayerFiles:        []string{"/jobs/img_1.emd", "/jobs/img_2.emd", "/jobs/img_3.emd", "/jobs/img_4.emd"},
	}

	// Act
	path, err := s.Save(snap)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(path)

	// Assert
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if filepath.Base(path) != "print_state_20260314_092653.pstate" {
		t.Errorf("file name = %s", filepath.Base(path))
	}
	if got.CurrentLayerIndex != snap.CurrentLayerIndex || got.TotalLayers != snap.TotalLayers {
		t.Errorf("Load() = %+v, want %+v", got, snap)
	}
	if !slices.Equal(got.LayerFiles, snap.LayerFiles) {
		t.Errorf("LayerFiles = %v, want %v", got.LayerFiles, snap.LayerFiles)
	}
	if got.Timestamp != "20260314_092653" {
		t.Errorf("Timestamp = %q", got.Timestamp)
	}
	if d := got.SavedAt().Sub(baseTime).Abs(); d > time.Millisecond {
		t.Errorf("SavedAt() = %v, want %v", got.SavedAt(), baseTime)
	}
}

func TestStore_SaveNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, WithClock(func() time.Time { return baseTime }))

	first, err := s.Save(Snapshot{CurrentLayerIndex: 0, TotalLayers: 1, LayerFiles: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Save(Snapshot{CurrentLayerIndex: -1, TotalLayers: 1, LayerFiles: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatalf("both saves wrote %s", first)
	}
	if !strings.HasSuffix(second, "print_state_20260314_092653_1.pstate") {
		t.Errorf("second path = %s", second)
	}

	snap, err := s.Load(first)
	if err != nil {
		t.Fatal(err)
	}
	if snap.CurrentLayerIndex != 0 {
		t.Errorf("first snapshot was modified: index = %d", snap.CurrentLayerIndex)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestStore_SaveUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "states")
	if err := os.WriteFile(blocker, []byte("not a dir"), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(blocker)

	_, err := s.Save(Snapshot{LayerFiles: []string{"a"}})
	var we *WriteError
	if !errors.As(err, &we) {
		t.Errorf("Save() error = %v, want WriteError", err)
	}
}

func TestStore_LoadInvalid(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantMissing []string
	}{
		{
			name:        "missing index",
			content:     `{"total_layers": 2, "layer_files": ["a", "b"]}`,
			wantMissing: []string{"current_layer_index"},
		},
		{
			name:        "missing files and total",
			content:     `{"current_layer_index": 0}`,
			wantMissing: []string{"total_layers", "layer_files"},
		},
		{
			name:    "corrupt json",
			content: `{"current_layer_index": 0,`,
		},
		{
			name:    "wrong types",
			content: `{"current_layer_index": "one", "total_layers": 2, "layer_files": []}`,
		},
		{
			name:    "index out of range",
			content: `{"current_layer_index": 3, "total_layers": 2, "layer_files": ["a", "b"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "print_state_bad.pstate")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			_, err := NewStore(dir).Load(path)

			var ise *InvalidSnapshotError
			if !errors.As(err, &ise) {
				t.Fatalf("Load() error = %v, want InvalidSnapshotError", err)
			}
			if tt.wantMissing != nil && !slices.Equal(ise.Missing, tt.wantMissing) {
				t.Errorf("Missing = %v, want %v", ise.Missing, tt.wantMissing)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := NewStore(t.TempDir()).Load("/nonexistent/print_state.pstate")
		if !IsInvalidSnapshot(err) {
			t.Errorf("Load() error = %v, want InvalidSnapshotError", err)
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Load() error should wrap os.ErrNotExist")
		}
	})
}

func TestStore_List(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, WithClock(fixedClock(baseTime, time.Minute)))

	var paths []string
	for i := -1; i < 2; i++ {
		p, err := s.Save(Snapshot{CurrentLayerIndex: i, TotalLayers: 3, LayerFiles: []string{"a", "b", "c"}})
		if err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	if err := os.WriteFile(filepath.Join(dir, "print_state_broken.pstate"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	metas, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(metas) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(metas))
	}
	for i, want := range []string{paths[2], paths[1], paths[0]} {
		if metas[i].Path != want {
			t.Errorf("metas[%d].Path = %s, want %s", i, metas[i].Path, want)
		}
	}
	if metas[0].CurrentLayer != 2 || metas[2].CurrentLayer != 0 {
		t.Errorf("CurrentLayer should be 1-based: got %d and %d", metas[0].CurrentLayer, metas[2].CurrentLayer)
	}
	if metas[0].TotalLayers != 3 {
		t.Errorf("TotalLayers = %d, want 3", metas[0].TotalLayers)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest != paths[2] {
		t.Errorf("Latest() = %s, want %s", latest, paths[2])
	}
}

func TestStore_ListEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "never-created"))

	metas, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(metas) != 0 {
		t.Errorf("List() = %v, want empty", metas)
	}
	if _, err := s.Latest(); !errors.Is(err, ErrNoSnapshots) {
		t.Errorf("Latest() error = %v, want ErrNoSnapshots", err)
	}
}

func TestStore_Delete(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	path, err := s.Save(Snapshot{CurrentLayerIndex: 0, TotalLayers: 1, LayerFiles: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(path); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("snapshot still exists after Delete")
	}

	if err := s.Delete(path); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("second Delete() error = %v, want ErrSnapshotNotFound", err)
	}

	outside := filepath.Join(t.TempDir(), "print_state_x.pstate")
	if err := os.WriteFile(outside, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(outside); err == nil {
		t.Error("Delete() outside the store directory should fail")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("file outside the store was removed: %v", err)
	}
}
