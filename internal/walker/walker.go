// Package walker enumerates files under a root directory.
//
// Every directory is visited files first, then subdirectories, each group in
// lexicographic order, so the output order only depends on the tree itself.
package walker

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

// DefaultMaxDepth bounds recursion when no WithMaxDepth option is given.
const DefaultMaxDepth = 64

// ImageExtensions is the default filter used for image discovery.
var ImageExtensions = []string{"jpg", "jpeg", "png", "gif", "tiff", "bmp"}

var (
	ErrTooDeep = fmt.Errorf("walker: maximum directory depth exceeded: %w", apperr.ErrResourceExhausted)
	ErrCycle   = fmt.Errorf("walker: directory cycle detected: %w", apperr.ErrResourceExhausted)
)

// Result holds the index-aligned names and relative folders of matched files.
type Result struct {
	Names   []string
	Folders []string
}

// Len returns the number of matched files.
func (r Result) Len() int { return len(r.Names) }

// Entries zips names and folders into FileEntry values.
func (r Result) Entries() []models.FileEntry {
	out := make([]models.FileEntry, len(r.Names))
	for i := range r.Names {
		out[i] = models.FileEntry{Name: r.Names[i], Folder: r.Folders[i]}
	}
	return out
}

// Option configures a search.
type Option func(*walker)

// WithExtensions restricts matches to the given lower-case extensions.
// Calling it with no extensions removes the filter.
func WithExtensions(exts ...string) Option {
	return func(w *walker) {
		if len(exts) == 0 {
			w.allowed = nil
			return
		}
		w.allowed = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			w.allowed[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
		}
	}
}

// WithMaxDepth sets the maximum directory depth below root.
func WithMaxDepth(n int) Option {
	return func(w *walker) {
		if n > 0 {
			w.maxDepth = n
		}
	}
}

// WithFollowSymlinks makes the walker descend into symlinked directories.
func WithFollowSymlinks(follow bool) Option {
	return func(w *walker) { w.follow = follow }
}

// WithLogger sets the logger used for progress messages.
func WithLogger(l *slog.Logger) Option {
	return func(w *walker) {
		if l != nil {
			w.logger = l
		}
	}
}

type walker struct {
	root      string
	allowed   map[string]struct{}
	maxDepth  int
	follow    bool
	logger    *slog.Logger
	ancestors map[string]struct{}
	result    Result
}

// Search walks root depth-first and returns every matching file.
func Search(root string, opts ...Option) (Result, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Result{}, fmt.Errorf("walker: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Result{}, fmt.Errorf("walker: stat root: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("walker: root is not a directory: %s", abs)
	}

	w := &walker{
		root:      abs,
		maxDepth:  DefaultMaxDepth,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		ancestors: make(map[string]struct{}),
		result:    Result{Names: []string{}, Folders: []string{}},
	}
	for _, opt := range opts {
		opt(w)
	}

	w.logger.Debug("walker: navigating", slog.String("root", abs))
	if err := w.walk(abs, 0); err != nil {
		return Result{}, err
	}
	return w.result, nil
}

// SearchImages is Search restricted to ImageExtensions.
func SearchImages(root string, opts ...Option) (Result, error) {
	return Search(root, append([]Option{WithExtensions(ImageExtensions...)}, opts...)...)
}

// Extension returns the lower-cased text after the last dot of name, or ""
// when name has no dot.
func Extension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// IsImage reports whether name carries one of ImageExtensions.
func IsImage(name string) bool {
	ext := Extension(name)
	for _, e := range ImageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (w *walker) walk(dir string, depth int) error {
	if depth > w.maxDepth {
		return fmt.Errorf("%w: %s", ErrTooDeep, dir)
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("walker: resolve %s: %w", dir, err)
	}
	if _, seen := w.ancestors[resolved]; seen {
		return fmt.Errorf("%w: %s", ErrCycle, dir)
	}
	w.ancestors[resolved] = struct{}{}
	defer delete(w.ancestors, resolved)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("walker: read dir %s: %w", dir, err)
	}

	folder := w.relFolder(dir)
	if depth > 0 {
		w.logger.Debug("walker: entering", slog.String("folder", folder), slog.Int("depth", depth))
	}

	var files, dirs []string
	for _, e := range entries {
		isDir, isFile, err := w.classify(dir, e)
		if err != nil {
			return err
		}
		switch {
		case isDir:
			dirs = append(dirs, e.Name())
		case isFile:
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	sort.Strings(dirs)

	for _, name := range files {
		if !w.match(name) {
			continue
		}
		w.result.Names = append(w.result.Names, name)
		w.result.Folders = append(w.result.Folders, folder)
	}
	for _, name := range dirs {
		if err := w.walk(filepath.Join(dir, name), depth+1); err != nil {
			return err
		}
	}
	return nil
}

// classify resolves symlinks: linked files always count as files, linked
// directories only when following is enabled.
func (w *walker) classify(dir string, e os.DirEntry) (isDir, isFile bool, err error) {
	if e.Type()&os.ModeSymlink == 0 {
		return e.IsDir(), e.Type().IsRegular(), nil
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	if err != nil {
		// Dangling link.
		w.logger.Debug("walker: skipping broken symlink", slog.String("name", e.Name()))
		return false, false, nil
	}
	if info.IsDir() {
		return w.follow, false, nil
	}
	return false, info.Mode().IsRegular(), nil
}

func (w *walker) match(name string) bool {
	if w.allowed == nil {
		return true
	}
	_, ok := w.allowed[Extension(name)]
	return ok
}

func (w *walker) relFolder(dir string) string {
	rel, err := filepath.Rel(w.root, dir)
	if err != nil || rel == "" {
		return "."
	}
	return filepath.ToSlash(rel)
}
