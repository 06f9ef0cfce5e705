package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/thejerf/suture/v4"

	"github.com/smartfolder/smartfolder/internal/config"
	"github.com/smartfolder/smartfolder/internal/queue"
	"github.com/smartfolder/smartfolder/internal/state"
	"github.com/smartfolder/smartfolder/internal/watcher"
)

// folderService runs one watched folder: it claims the folder's state
// directory, keeps its metadata current, and feeds watcher events into the
// shared queue.
type folderService struct {
	cfg     config.Folder
	store   *state.Store
	queue   *queue.Queue
	jobsCtx context.Context // outlives shutdown so in-flight jobs can drain
	log     *slog.Logger
	watch   *watcher.Watcher
}

func newFolderService(cfg config.Folder, store *state.Store, q *queue.Queue, jobsCtx context.Context, log *slog.Logger) (*folderService, error) {
	s := &folderService{
		cfg:     cfg,
		store:   store,
		queue:   q,
		jobsCtx: jobsCtx,
		log:     log,
	}
	w, err := watcher.New(watcher.Config{
		Dir:          cfg.Path,
		Debounce:     cfg.Debounce,
		PollInterval: cfg.PollInterval,
		Ignore:       cfg.Ignore,
		OnFile:       s.onFile,
		Log:          log,
	})
	if err != nil {
		return nil, err
	}
	s.watch = w
	return s, nil
}

// Ready is closed once the folder's watch is established.
func (s *folderService) Ready() <-chan struct{} { return s.watch.Ready() }

func (s *folderService) String() string { return "folder " + s.cfg.Path }

// Serve claims the folder and watches it until ctx is done. A folder held by
// another process is not retried; two daemons over one history file would
// double-process every drop.
func (s *folderService) Serve(ctx context.Context) error {
	dir, err := s.store.EnsureFolder(s.cfg.Path, s.cfg.Prompt)
	if err != nil {
		return fmt.Errorf("preparing state for %s: %w", s.cfg.Path, err)
	}

	lock := state.NewFolderLock(dir)
	held, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking state for %s: %w", s.cfg.Path, err)
	}
	if !held {
		s.log.Error("folder is watched by another process", "folder", s.cfg.Path)
		return fmt.Errorf("folder %s is locked by another process: %w", s.cfg.Path, suture.ErrDoNotRestart)
	}
	defer lock.Unlock()

	return s.watch.Serve(ctx)
}

func (s *folderService) onFile(path string) {
	s.queue.Enqueue(s.jobsCtx, queue.Job{
		Folder:   s.cfg.Path,
		FilePath: path,
		DryRun:   s.cfg.DryRun,
	})
}

// hub tracks the folder services under the supervisor so discovery can attach
// and detach folders at runtime.
type hub struct {
	sup     *suture.Supervisor
	store   *state.Store
	queue   *queue.Queue
	pipe    *pipeline
	jobsCtx context.Context
	log     *slog.Logger

	mu       sync.Mutex
	tokens   map[string]suture.ServiceToken
	services map[string]*folderService
}

func newHub(sup *suture.Supervisor, store *state.Store, q *queue.Queue, pipe *pipeline, jobsCtx context.Context, log *slog.Logger) *hub {
	return &hub{
		sup:      sup,
		store:    store,
		queue:    q,
		pipe:     pipe,
		jobsCtx:  jobsCtx,
		log:      log,
		tokens:   map[string]suture.ServiceToken{},
		services: map[string]*folderService{},
	}
}

// Attach starts watching a folder. Attaching a path that is already watched
// only refreshes its spec.
func (h *hub) Attach(cfg config.Folder) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tokens[cfg.Path]; ok {
		h.pipe.setFolder(cfg)
		return nil
	}

	svc, err := newFolderService(cfg, h.store, h.queue, h.jobsCtx, h.log)
	if err != nil {
		return err
	}
	h.pipe.setFolder(cfg)
	h.tokens[cfg.Path] = h.sup.Add(svc)
	h.services[cfg.Path] = svc
	return nil
}

// Update replaces a folder's spec for future jobs. The watcher keeps running;
// only the pipeline's view changes.
func (h *hub) Update(cfg config.Folder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tokens[cfg.Path]; !ok {
		return
	}
	h.pipe.setFolder(cfg)
}

// Detach stops watching a folder. A job already running finishes; jobs still
// queued behind it fail with a "no longer attached" record.
func (h *hub) Detach(path string) {
	h.mu.Lock()
	token, ok := h.tokens[path]
	if ok {
		delete(h.tokens, path)
		delete(h.services, path)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.sup.Remove(token)
	h.pipe.dropFolder(path)
}

// AwaitReady blocks until every currently attached folder watch is
// established, or ctx is done.
func (h *hub) AwaitReady(ctx context.Context) error {
	h.mu.Lock()
	services := make([]*folderService, 0, len(h.services))
	for _, svc := range h.services {
		services = append(services, svc)
	}
	h.mu.Unlock()

	for _, svc := range services {
		select {
		case <-svc.Ready():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
