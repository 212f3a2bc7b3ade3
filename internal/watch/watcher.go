// Package watch turns filesystem notifications under a directory into
// file_created / file_updated / file_deleted events.
package watch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/dotcommander/missiontrack/pkg/recent"
)

// Sink receives classified file changes. *tracker.Tracker satisfies it.
type Sink interface {
	FileCreated(path string, lines int)
	FileUpdated(path, changes string)
	FileDeleted(path string)
}

// DefaultIgnoreDirs are directory names never descended into.
var DefaultIgnoreDirs = []string{".git", ".hg", ".svn", "node_modules", ".next", ".cache", "vendor"}

var ignoreSuffixes = []string{"~", ".swp", ".swx", ".tmp", "-wal", "-shm", "-journal", ".migrate.lock"}

// maxLineCountBytes bounds how much of a new file is read to count lines.
const maxLineCountBytes = 4 << 20

// Options configures a Watcher.
type Options struct {
	// Debounce collapses repeated notifications for the same path and kind.
	Debounce time.Duration
	// RatePerSec caps emitted events; excess events are dropped and counted.
	RatePerSec int
	IgnoreDirs []string
	// IgnorePaths are absolute files never reported (e.g. the journal).
	IgnorePaths []string
	Logger      *slog.Logger
}

// Watcher feeds a Sink from fsnotify.
type Watcher struct {
	root        string
	sink        Sink
	fsw         *fsnotify.Watcher
	seen        *recent.Cache
	limiter     *rate.Limiter
	ignoreDirs  map[string]struct{}
	ignorePaths map[string]struct{}
	logger      *slog.Logger

	emitted atomic.Int64
	dropped atomic.Int64
}

// New prepares a watcher for root. Nothing is watched until Run.
func New(root string, sink Sink, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", abs)
	}

	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 20
	}
	if opts.IgnoreDirs == nil {
		opts.IgnoreDirs = DefaultIgnoreDirs
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:        abs,
		sink:        sink,
		fsw:         fsw,
		seen:        recent.New(4096, opts.Debounce),
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec),
		ignoreDirs:  make(map[string]struct{}, len(opts.IgnoreDirs)),
		ignorePaths: make(map[string]struct{}, len(opts.IgnorePaths)),
		logger:      opts.Logger,
	}
	for _, d := range opts.IgnoreDirs {
		w.ignoreDirs[d] = struct{}{}
	}
	for _, p := range opts.IgnorePaths {
		if p, err := filepath.Abs(p); err == nil {
			w.ignorePaths[p] = struct{}{}
		}
	}
	return w, nil
}

// Root is the absolute directory being watched.
func (w *Watcher) Root() string { return w.root }

// Emitted counts events handed to the sink.
func (w *Watcher) Emitted() int64 { return w.emitted.Load() }

// Dropped counts events discarded by the rate limiter.
func (w *Watcher) Dropped() int64 { return w.dropped.Load() }

// Close releases the fsnotify watcher. Run calls it on return.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run watches until ctx is done, then closes the fsnotify watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.Close() }()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.logger.Info("watching", "root", w.root)

	prune := time.NewTicker(time.Minute)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-prune.C:
			w.seen.Prune()
		}
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Debug("watch add failed", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) skipDir(name string) bool {
	_, ok := w.ignoreDirs[name]
	return ok
}

func (w *Watcher) ignored(path string) bool {
	if _, ok := w.ignorePaths[path]; ok {
		return true
	}
	base := filepath.Base(path)
	for _, s := range ignoreSuffixes {
		if strings.HasSuffix(base, s) {
			return true
		}
	}
	for _, part := range strings.Split(w.rel(filepath.Dir(path)), string(filepath.Separator)) {
		if w.skipDir(part) {
			return true
		}
	}
	return false
}

func (w *Watcher) rel(path string) string {
	r, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return r
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := ev.Name
	if w.ignored(path) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if !w.skipDir(info.Name()) {
				_ = w.addRecursive(path)
			}
			return
		}
		// Editors follow a create with writes; fold those into the create.
		w.seen.Seen("updated:" + path)
		if w.admit("created:" + path) {
			w.sink.FileCreated(w.rel(path), countLines(path))
		}
	case ev.Has(fsnotify.Write):
		if w.admit("updated:" + path) {
			w.sink.FileUpdated(w.rel(path), sizeNote(path))
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.seen.Forget("created:" + path)
		w.seen.Forget("updated:" + path)
		if w.admit("deleted:" + path) {
			w.sink.FileDeleted(w.rel(path))
		}
	}
}

// admit applies debounce then the rate limit.
func (w *Watcher) admit(key string) bool {
	if w.seen.Seen(key) {
		return false
	}
	if !w.limiter.Allow() {
		n := w.dropped.Add(1)
		w.logger.Debug("watch event dropped by rate limit", "key", key, "dropped_total", n)
		return false
	}
	w.emitted.Add(1)
	return true
}

func countLines(path string) int {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the watched tree
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxLineCountBytes))
	if err != nil || len(data) == 0 {
		return 0
	}
	lines := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		lines++
	}
	return lines
}

func sizeNote(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d bytes", info.Size())
}
