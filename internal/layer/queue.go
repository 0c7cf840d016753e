// Package layer discovers per-layer job files and tracks the current layer.
package layer

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultExtension is the scancard job file extension.
const DefaultExtension = ".emd"

// Pattern selects how a layer number is parsed from a file name.
type Pattern string

const (
	// PatternImage matches img_<N><ext>.
	PatternImage Pattern = "img"
	// PatternLayer matches layer<N>, layer_<N> or layer-<N> anywhere in the name.
	PatternLayer Pattern = "layer"
)

// ParsePattern validates a pattern name. The empty string selects PatternImage.
func ParsePattern(s string) (Pattern, error) {
	switch Pattern(s) {
	case "", PatternImage:
		return PatternImage, nil
	case PatternLayer:
		return PatternLayer, nil
	}
	return "", fmt.Errorf("unknown layer pattern %q (want %q or %q)", s, PatternImage, PatternLayer)
}

func (p Pattern) regexp(ext string) *regexp.Regexp {
	if p == PatternLayer {
		return regexp.MustCompile(`(?i)layer[-_]?(\d+)`)
	}
	return regexp.MustCompile(`(?i)img_(\d+)` + regexp.QuoteMeta(ext))
}

// Queue is an ordered list of layer files with a cursor.
// A cursor of -1 means no layer has been started.
// Queue is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	files  []string
	cursor int

	pattern Pattern
	ext     string
	logger  *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithPattern sets the file name pattern used by Load.
func WithPattern(p Pattern) Option {
	return func(q *Queue) { q.pattern = p }
}

// WithExtension sets the job file extension used by Load.
func WithExtension(ext string) Option {
	return func(q *Queue) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if ext != "" {
			q.ext = ext
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewQueue returns an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		cursor:  -1,
		pattern: PatternImage,
		ext:     DefaultExtension,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

type entry struct {
	path     string
	name     string
	numbered bool
	num      int
	mtime    time.Time
}

// compareEntries orders numbered files by number before unnumbered files by
// modification time. Names break ties so the order is total.
func compareEntries(a, b entry) int {
	switch {
	case a.numbered && !b.numbered:
		return -1
	case !a.numbered && b.numbered:
		return 1
	case a.numbered:
		if c := cmp.Compare(a.num, b.num); c != 0 {
			return c
		}
	default:
		if c := a.mtime.Compare(b.mtime); c != 0 {
			return c
		}
	}
	return strings.Compare(a.name, b.name)
}

// Scan lists the job files in folder in layer order without touching any
// queue.
func Scan(folder string, pattern Pattern, ext string) ([]string, error) {
	dirents, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read layer folder: %w", err)
	}

	re := pattern.regexp(ext)
	var entries []entry
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), strings.ToLower(ext)) {
			continue
		}
		e := entry{path: filepath.Join(folder, d.Name()), name: d.Name()}
		if m := re.FindStringSubmatch(d.Name()); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				e.numbered = true
				e.num = n
			}
		}
		if !e.numbered {
			info, err := d.Info()
			if err != nil {
				return nil, fmt.Errorf("stat layer file: %w", err)
			}
			e.mtime = info.ModTime()
		}
		entries = append(entries, e)
	}

	slices.SortFunc(entries, compareEntries)

	files := make([]string, len(entries))
	for i, e := range entries {
		files[i] = e.path
	}
	return files, nil
}

// Load replaces the queue contents with the job files found in folder and
// resets the cursor. On error the queue is left unchanged.
func (q *Queue) Load(folder string) ([]string, error) {
	q.mu.Lock()
	pattern, ext := q.pattern, q.ext
	q.mu.Unlock()

	files, err := Scan(folder, pattern, ext)
	if err != nil {
		q.logger.Error("failed to load layer files", "folder", folder, "error", err)
		return nil, err
	}

	q.mu.Lock()
	q.files = files
	q.cursor = -1
	q.mu.Unlock()

	q.logger.Info("loaded layer files", "folder", folder, "count", len(files))
	return slices.Clone(files), nil
}

// Restore replaces the queue contents with files and moves the cursor to
// cursor. A cursor of -1 leaves the queue unstarted.
func (q *Queue) Restore(files []string, cursor int) error {
	if cursor < -1 || cursor >= len(files) {
		return fmt.Errorf("cursor %d out of range for %d layers", cursor, len(files))
	}
	q.mu.Lock()
	q.files = slices.Clone(files)
	q.cursor = cursor
	q.mu.Unlock()
	return nil
}

// Current returns the current layer file, or false before the first Advance.
func (q *Queue) Current() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor < 0 || q.cursor >= len(q.files) {
		return "", false
	}
	return q.files[q.cursor], true
}

// Advance moves to the next layer and returns it. When no layers remain it
// returns false and leaves the cursor unchanged.
func (q *Queue) Advance() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor+1 >= len(q.files) {
		q.logger.Info("no more layers")
		return "", false
	}
	q.cursor++
	q.logger.Info("advancing layer", "layer", q.cursor+1, "total", len(q.files))
	return q.files[q.cursor], true
}

// PeekNext returns the layer after the current one without moving.
func (q *Queue) PeekNext() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor+1 >= len(q.files) {
		return "", false
	}
	return q.files[q.cursor+1], true
}

// Reset moves the cursor back before the first layer.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.cursor = -1
	q.mu.Unlock()
}

// SetCursor moves the cursor to i. It reports false and leaves the cursor
// unchanged unless 0 <= i < Total().
func (q *Queue) SetCursor(i int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.files) {
		q.logger.Error("invalid layer index", "index", i, "total", len(q.files))
		return false
	}
	q.cursor = i
	return true
}

// Progress returns the share of layers started so far, 0 to 100.
func (q *Queue) Progress() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.files) == 0 || q.cursor < 0 {
		return 0
	}
	return int(math.Round(float64(q.cursor+1) / float64(len(q.files)) * 100))
}

// Total returns the number of layers.
func (q *Queue) Total() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.files)
}

// Cursor returns the index of the current layer, -1 before the first Advance.
func (q *Queue) Cursor() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// Files returns a copy of the layer files in order.
func (q *Queue) Files() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.files)
}

// State returns the files and cursor as one consistent view.
func (q *Queue) State() ([]string, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.files), q.cursor
}
