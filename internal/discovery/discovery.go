// Package discovery finds smartfolder.md files beneath configured root
// directories and keeps their folders attached while the files exist. Roots
// are rescanned on an interval; each discovered config file additionally
// gets its own native watcher so edits apply without waiting for the next
// sweep.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// ConfigName is the per-folder instruction file, matched case-insensitively.
const ConfigName = "smartfolder.md"

const (
	// DefaultInterval is the sweep period over the root directories.
	DefaultInterval = 5 * time.Second
	// StabilityWindow is the write-quiet period before an edited config
	// file is re-parsed.
	StabilityWindow = 500 * time.Millisecond
)

// DefaultIgnores prune directory trees no one keeps instruction files in.
var DefaultIgnores = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/.smartfolder/**",
}

// Callbacks receive folder lifecycle events. The config path identifies the
// smartfolder.md file; the folder is its containing directory.
type Callbacks struct {
	OnAdded   func(configPath, folder, prompt string)
	OnChanged func(configPath, folder, prompt string)
	OnRemoved func(configPath, folder string)
}

// Config describes one discovery service.
type Config struct {
	Roots    []string
	Interval time.Duration // DefaultInterval when zero
	Ignore   []string      // extra glob patterns on top of DefaultIgnores
	Callback Callbacks
	Log      *slog.Logger
}

type tracked struct {
	cancel  context.CancelFunc // nil while the file is rejected
	modTime time.Time          // of the last parse attempt
	valid   bool
}

// Discovery polls roots for config files and manages their per-file
// watchers.
type Discovery struct {
	roots    []string
	interval time.Duration
	ignore   []glob.Glob
	cb       Callbacks
	log      *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu    sync.Mutex
	known map[string]*tracked
	wg    sync.WaitGroup
}

// New validates the roots and compiles the ignore globs.
func New(cfg Config) (*Discovery, error) {
	if len(cfg.Roots) == 0 {
		return nil, errors.New("discovery needs at least one root directory")
	}
	roots := make([]string, 0, len(cfg.Roots))
	for _, r := range cfg.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolving root %s: %w", r, err)
		}
		roots = append(roots, abs)
	}

	patterns := append(append([]string{}, DefaultIgnores...), cfg.Ignore...)
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling ignore glob %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Discovery{
		roots:    roots,
		interval: interval,
		ignore:   globs,
		cb:       cfg.Callback,
		log:      log,
		ready:    make(chan struct{}),
		known:    map[string]*tracked{},
	}, nil
}

// Ready is closed after the first sweep completed.
func (d *Discovery) Ready() <-chan struct{} { return d.ready }

// Serve sweeps the roots until ctx is done.
func (d *Discovery) Serve(ctx context.Context) error {
	d.sweep(ctx)
	d.readyOnce.Do(func() { close(d.ready) })

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

// sweep walks every root, then diffs the found set against the known set.
func (d *Discovery) sweep(ctx context.Context) {
	found := map[string]bool{}
	for _, root := range d.roots {
		d.scanRoot(root, found)
	}

	d.mu.Lock()
	var added, removed []string
	for path := range found {
		if _, ok := d.known[path]; !ok {
			added = append(added, path)
		}
	}
	for path := range d.known {
		if !found[path] {
			removed = append(removed, path)
		}
	}
	d.mu.Unlock()

	for _, path := range added {
		d.attach(ctx, path)
	}
	for _, path := range removed {
		d.detach(path, true)
	}
	d.retryRejected(ctx, found)
}

// scanRoot collects config files under root into found. Symlinks are
// skipped at every level, the root included.
func (d *Discovery) scanRoot(root string, found map[string]bool) {
	info, err := os.Lstat(root)
	if err != nil {
		d.log.Warn("skipping root", "root", root, "err", err)
		return
	}
	if info.Mode()&os.ModeSymlink != 0 {
		d.log.Warn("skipping symlinked root", "root", root)
		return
	}
	if !info.IsDir() {
		d.log.Warn("root is not a directory", "root", root)
		return
	}

	err = filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				d.log.Warn("permission denied, skipping", "path", path)
				return nil
			}
			d.log.Warn("walk error, skipping", "path", path, "err", err)
			return nil
		}
		if de.Type()&fs.ModeSymlink != 0 {
			if de.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if de.IsDir() {
			if d.ignoredDir(path) {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(de.Name(), ConfigName) {
			return nil
		}
		if d.ignoredPath(path) {
			return nil
		}
		found[path] = true
		return nil
	})
	if err != nil {
		d.log.Warn("walking root failed", "root", root, "err", err)
	}
}

func (d *Discovery) ignoredPath(path string) bool {
	p := filepath.ToSlash(path)
	for _, g := range d.ignore {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// ignoredDir prunes whole directories. The trailing slash lets patterns of
// the form **/name/** match the directory itself.
func (d *Discovery) ignoredDir(path string) bool {
	p := filepath.ToSlash(path) + "/"
	for _, g := range d.ignore {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// attach parses a newly found config file and, when it is valid, reports
// the folder and starts the per-file watcher. Invalid files are remembered
// by modification time so they are re-tried only after an edit.
func (d *Discovery) attach(ctx context.Context, path string) {
	modTime := fileModTime(path)
	prompt, warnings, err := ParsePromptFile(path)
	for _, warning := range warnings {
		d.log.Warn("suspicious prompt", "config", path, "warning", warning)
	}
	if err != nil {
		d.log.Warn("rejecting smart folder config", "config", path, "err", err)
		d.mu.Lock()
		d.known[path] = &tracked{modTime: modTime}
		d.mu.Unlock()
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.known[path] = &tracked{cancel: cancel, modTime: modTime, valid: true}
	d.mu.Unlock()

	d.log.Info("smart folder discovered", "config", path)
	if d.cb.OnAdded != nil {
		d.cb.OnAdded(path, filepath.Dir(path), prompt)
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.watchFile(watchCtx, path)
	}()
}

// detach forgets a config file, stopping its watcher. When fire is set and
// the folder had been attached, OnRemoved is reported.
func (d *Discovery) detach(path string, fire bool) {
	d.mu.Lock()
	t, ok := d.known[path]
	if ok {
		delete(d.known, path)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	if fire && t.valid {
		d.log.Info("smart folder removed", "config", path)
		if d.cb.OnRemoved != nil {
			d.cb.OnRemoved(path, filepath.Dir(path))
		}
	}
}

// retryRejected re-parses previously rejected files whose content changed.
func (d *Discovery) retryRejected(ctx context.Context, found map[string]bool) {
	d.mu.Lock()
	var retry []string
	for path, t := range d.known {
		if t.valid || !found[path] {
			continue
		}
		if !fileModTime(path).Equal(t.modTime) {
			retry = append(retry, path)
		}
	}
	d.mu.Unlock()

	for _, path := range retry {
		d.detach(path, false)
		d.attach(ctx, path)
	}
}

// watchFile follows one config file: edits are re-parsed after a write
// stability window, deletion detaches the folder. Editors that replace the
// file on save look like a remove followed by a new inode, so a remove
// event with the file still present re-arms the watch instead of detaching.
func (d *Discovery) watchFile(ctx context.Context, path string) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		d.log.Warn("cannot watch config file", "config", path, "err", err)
		return
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(path); err != nil {
		d.log.Warn("cannot watch config file", "config", path, "err", err)
		return
	}

	stable := make(chan struct{}, 1)
	notify := func() {
		select {
		case stable <- struct{}{}:
		default:
		}
	}
	timer := time.AfterFunc(time.Hour, notify)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-stable:
			d.reparse(path)

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			switch {
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				if _, err := os.Lstat(path); err != nil {
					d.detach(path, true)
					return
				}
				// Atomic replace: watch the new inode and re-parse.
				_ = fw.Remove(path)
				if err := fw.Add(path); err != nil {
					d.detach(path, true)
					return
				}
				timer.Reset(StabilityWindow)
			case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create):
				timer.Reset(StabilityWindow)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			d.log.Warn("config watcher error", "config", path, "err", err)
		}
	}
}

// reparse handles an edited config file. A file that became invalid keeps
// its folder attached on the previous prompt; the problem is logged.
func (d *Discovery) reparse(path string) {
	prompt, warnings, err := ParsePromptFile(path)
	for _, warning := range warnings {
		d.log.Warn("suspicious prompt", "config", path, "warning", warning)
	}
	if err != nil {
		d.log.Warn("edited config no longer parses, keeping previous prompt", "config", path, "err", err)
		return
	}
	d.mu.Lock()
	if t, ok := d.known[path]; ok {
		t.modTime = fileModTime(path)
	}
	d.mu.Unlock()

	d.log.Info("smart folder instructions updated", "config", path)
	if d.cb.OnChanged != nil {
		d.cb.OnChanged(path, filepath.Dir(path), prompt)
	}
}

func fileModTime(path string) time.Time {
	info, err := os.Lstat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
