// Package daemon wires the watching pipeline together and runs it: folder
// watchers and discovery under one supervision tree, a shared job queue, and
// the agent loop that processes each arriving file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/smartfolder/smartfolder/internal/agent"
	"github.com/smartfolder/smartfolder/internal/capability"
	"github.com/smartfolder/smartfolder/internal/config"
	"github.com/smartfolder/smartfolder/internal/discovery"
	"github.com/smartfolder/smartfolder/internal/llm"
	"github.com/smartfolder/smartfolder/internal/queue"
	"github.com/smartfolder/smartfolder/internal/state"
	"github.com/smartfolder/smartfolder/internal/suppress"
)

// Options configure one daemon run.
type Options struct {
	Config  *config.Config
	DryRun  bool         // forces dry-run on every folder regardless of config
	RunOnce bool         // start watchers, await readiness, then exit
	Client  llm.Client   // test hook; nil builds the gateway client
	Store   *state.Store // test hook; nil resolves SMARTFOLDER_HOME
	Log     *slog.Logger
}

// Run starts the daemon and blocks until a shutdown signal or, with RunOnce,
// until every watcher is established. In-flight jobs drain before it returns.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := opts.Store
	if store == nil {
		var err error
		store, err = state.NewStore()
		if err != nil {
			return err
		}
	}
	registry, err := capability.Load()
	if err != nil {
		return err
	}

	client := opts.Client
	if client == nil {
		apiKey := cfg.AI.APIKey
		if apiKey == "" {
			apiKey, err = llm.ResolveAPIKey()
			if err != nil {
				return err
			}
		}
		client = llm.NewGateway("", apiKey, log)
	}

	suppressor := suppress.New(0)
	pipe := newPipeline(cfg.AI, registry, agent.New(client, log), store, suppressor, log)
	q := queue.New(pipe.Process, suppressor, log)

	// Jobs get their own context so a shutdown stops intake without killing
	// work that already started.
	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	sup := suture.New("smartfolder", suture.Spec{
		EventHook: func(e suture.Event) { log.Warn("supervisor event", "event", e.String()) },
	})
	folders := newHub(sup, store, q, pipe, jobsCtx, log)

	var disc *discovery.Discovery
	if cfg.RootMode() {
		disc, err = discovery.New(discovery.Config{
			Roots:    cfg.Roots,
			Interval: cfg.DiscoveryInterval,
			Callback: discoveryCallbacks(folders, cfg, opts.DryRun, log),
			Log:      log,
		})
		if err != nil {
			return err
		}
		sup.Add(disc)
	} else {
		for _, folder := range cfg.Folders {
			if opts.DryRun {
				folder.DryRun = true
			}
			if err := folders.Attach(folder); err != nil {
				return fmt.Errorf("attaching %s: %w", folder.Path, err)
			}
		}
	}

	errCh := sup.ServeBackground(ctx)

	if opts.RunOnce {
		if err := awaitReady(ctx, disc, folders); err == nil {
			log.Info("run-once: watchers established, shutting down")
			cancel()
		}
	}

	err = <-errCh
	q.Shutdown()
	log.Info("shut down", "reason", err)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// discoveryCallbacks builds folder specs for discovered smart folders from
// the config's global defaults.
func discoveryCallbacks(folders *hub, cfg *config.Config, forceDryRun bool, log *slog.Logger) discovery.Callbacks {
	build := func(folder, prompt string) config.Folder {
		spec := cfg.Defaults
		spec.Path = folder
		spec.Prompt = prompt
		if cfg.AI.DefaultTools != nil && spec.Tools == nil {
			spec.Tools = cfg.AI.DefaultTools
		}
		if forceDryRun {
			spec.DryRun = true
		}
		return spec
	}
	return discovery.Callbacks{
		OnAdded: func(_, folder, prompt string) {
			if err := folders.Attach(build(folder, prompt)); err != nil {
				log.Error("cannot attach discovered folder", "folder", folder, "err", err)
			}
		},
		OnChanged: func(_, folder, prompt string) {
			folders.Update(build(folder, prompt))
		},
		OnRemoved: func(_, folder string) {
			folders.Detach(folder)
		},
	}
}

// awaitReady waits for the watch surface to be established: the first
// discovery sweep in root mode, every folder watcher otherwise.
func awaitReady(ctx context.Context, disc *discovery.Discovery, folders *hub) error {
	if disc != nil {
		select {
		case <-disc.Ready():
		case <-ctx.Done():
			return ctx.Err()
		}
		// Folders attached by the first sweep still need their watchers up.
		settle, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return folders.AwaitReady(settle)
	}
	return folders.AwaitReady(ctx)
}
