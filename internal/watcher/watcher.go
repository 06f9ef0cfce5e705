// Package watcher observes one folder for newly added entries and reports
// each one after a write-stability window, so half-copied files are never
// handed to the pipeline. Pre-existing entries are never reported: a file
// dropped while the process was down is not replayed.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultDebounce is the write-stability window applied when the folder
// configuration does not set one.
const DefaultDebounce = 1500 * time.Millisecond

// Config describes one folder watch.
type Config struct {
	Dir          string
	Debounce     time.Duration // quiet period before an addition is reported
	PollInterval time.Duration // >0 switches from native events to polling
	Ignore       []string      // glob patterns matched against names relative to Dir
	OnFile       func(path string)
	Log          *slog.Logger
}

// Watcher reports additions in a single directory, one level deep.
type Watcher struct {
	dir      string
	debounce time.Duration
	poll     time.Duration
	ignore   []glob.Glob
	onFile   func(string)
	log      *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// New validates the configuration and compiles the ignore globs.
func New(cfg Config) (*Watcher, error) {
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving watch dir: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir %s is not a directory", dir)
	}

	globs := make([]glob.Glob, 0, len(cfg.Ignore))
	for _, pattern := range cfg.Ignore {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling ignore glob %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		poll:     cfg.PollInterval,
		ignore:   globs,
		onFile:   cfg.OnFile,
		log:      log,
		ready:    make(chan struct{}),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Ready is closed once the watch is established and events will be seen.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// markReady tolerates service restarts; the channel closes once.
func (w *Watcher) markReady() { w.readyOnce.Do(func() { close(w.ready) }) }

// Serve watches until ctx is done. It satisfies the supervisor's service
// contract and returns ctx.Err() on shutdown.
func (w *Watcher) Serve(ctx context.Context) error {
	if w.poll > 0 {
		return w.servePoll(ctx)
	}
	return w.serveNative(ctx)
}

// ignored matches the name of an entry, relative to the folder, against the
// configured globs.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range w.ignore {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// emit re-checks the entry and hands it to the pipeline. Entries that
// vanished during the stability window are dropped quietly.
func (w *Watcher) emit(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		w.log.Debug("addition vanished before stability", "path", path)
		return
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		w.log.Debug("skipping non-regular addition", "path", path)
		return
	}
	w.log.Debug("addition stable", "path", path)
	if w.onFile != nil {
		w.onFile(path)
	}
}

// observation is one addition inside its stability window. The generation
// guards against a stale timer firing for a path whose window was re-opened.
type observation struct {
	timer *time.Timer
	gen   int
}

type stableSignal struct {
	path string
	gen  int
}

// serveNative runs on filesystem events. Additions start a stability timer
// that every further write resets; the timer firing means the file has been
// quiet for the debounce window.
func (w *Watcher) serveNative(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.markReady()
	w.log.Info("watching folder", "dir", w.dir, "debounce", w.debounce)

	stable := make(chan stableSignal, 16)
	pending := map[string]*observation{}
	gen := 0
	defer func() {
		for _, obs := range pending {
			obs.timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sig := <-stable:
			obs, ok := pending[sig.path]
			if !ok || obs.gen != sig.gen {
				continue // the window was reopened or the entry removed
			}
			delete(pending, sig.path)
			w.emit(sig.path)

		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("event stream for %s closed", w.dir)
			}
			path := filepath.Clean(ev.Name)
			if w.ignored(path) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				// New addition: open its stability window.
				if obs, ok := pending[path]; ok {
					obs.timer.Stop()
				}
				gen++
				sig := stableSignal{path: path, gen: gen}
				pending[path] = &observation{
					gen: gen,
					timer: time.AfterFunc(w.debounce, func() {
						select {
						case stable <- sig:
						case <-ctx.Done():
						}
					}),
				}
			case ev.Has(fsnotify.Write):
				// Still being written; only additions already under
				// observation get their window extended. Writes to
				// pre-existing files are not additions.
				if obs, ok := pending[path]; ok {
					obs.timer.Reset(w.debounce)
				}
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				if obs, ok := pending[path]; ok {
					obs.timer.Stop()
					delete(pending, path)
				}
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("error stream for %s closed", w.dir)
			}
			w.log.Warn("watcher error", "dir", w.dir, "err", err)
		}
	}
}

type pollEntry struct {
	size       int64
	modTime    time.Time
	lastChange time.Time
	reported   bool
}

// servePoll scans the directory on an interval, for platforms where native
// events are unreliable. The initial scan seeds the known set so
// pre-existing entries are never reported.
func (w *Watcher) servePoll(ctx context.Context) error {
	known := map[string]*pollEntry{}

	seed, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	for _, de := range seed {
		known[filepath.Join(w.dir, de.Name())] = &pollEntry{reported: true}
	}
	w.markReady()
	w.log.Info("polling folder", "dir", w.dir, "interval", w.poll, "debounce", w.debounce)

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pollOnce(known)
		}
	}
}

func (w *Watcher) pollOnce(known map[string]*pollEntry) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("poll failed", "dir", w.dir, "err", err)
		return
	}
	now := time.Now()
	seen := make(map[string]bool, len(entries))

	for _, de := range entries {
		path := filepath.Join(w.dir, de.Name())
		seen[path] = true
		if w.ignored(path) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}

		entry, ok := known[path]
		if !ok {
			known[path] = &pollEntry{size: info.Size(), modTime: info.ModTime(), lastChange: now}
			continue
		}
		if entry.reported {
			continue
		}
		if info.Size() != entry.size || !info.ModTime().Equal(entry.modTime) {
			entry.size = info.Size()
			entry.modTime = info.ModTime()
			entry.lastChange = now
			continue
		}
		if now.Sub(entry.lastChange) >= w.debounce {
			entry.reported = true
			w.emit(path)
		}
	}

	for path := range known {
		if !seen[path] {
			delete(known, path)
		}
	}
}
