package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartfolder/smartfolder/internal/agent"
	"github.com/smartfolder/smartfolder/internal/capability"
	"github.com/smartfolder/smartfolder/internal/classify"
	"github.com/smartfolder/smartfolder/internal/config"
	"github.com/smartfolder/smartfolder/internal/content"
	"github.com/smartfolder/smartfolder/internal/metadata"
	"github.com/smartfolder/smartfolder/internal/prompt"
	"github.com/smartfolder/smartfolder/internal/queue"
	"github.com/smartfolder/smartfolder/internal/state"
	"github.com/smartfolder/smartfolder/internal/suppress"
	"github.com/smartfolder/smartfolder/internal/tools"
)

// pipeline turns one queued file event into an agent run and a history
// record. It holds the live folder specs so prompt edits from discovery apply
// to the next job without restarting anything.
type pipeline struct {
	ai         config.AI
	registry   *capability.Registry
	engine     *metadata.Engine
	provider   *content.Provider
	driver     *agent.Driver
	store      *state.Store
	suppressor *suppress.Suppressor
	log        *slog.Logger

	mu      sync.RWMutex
	folders map[string]config.Folder
}

func newPipeline(ai config.AI, registry *capability.Registry, driver *agent.Driver, store *state.Store, suppressor *suppress.Suppressor, log *slog.Logger) *pipeline {
	return &pipeline{
		ai:         ai,
		registry:   registry,
		engine:     metadata.NewEngine(log),
		provider:   content.NewProvider(content.Limits{}),
		driver:     driver,
		store:      store,
		suppressor: suppressor,
		log:        log,
		folders:    map[string]config.Folder{},
	}
}

func (p *pipeline) setFolder(f config.Folder) {
	p.mu.Lock()
	p.folders[f.Path] = f
	p.mu.Unlock()
}

func (p *pipeline) dropFolder(path string) {
	p.mu.Lock()
	delete(p.folders, path)
	p.mu.Unlock()
}

func (p *pipeline) folder(path string) (config.Folder, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.folders[path]
	return f, ok
}

// Process runs one job end to end and appends its history record. The
// returned error reflects the job result; the folder's chain continues either
// way.
func (p *pipeline) Process(ctx context.Context, job queue.Job) error {
	folder, ok := p.folder(job.Folder)
	if !ok {
		return fmt.Errorf("folder %s is no longer attached", job.Folder)
	}

	jobID := uuid.NewString()
	rel, err := filepath.Rel(job.Folder, job.FilePath)
	if err != nil {
		rel = filepath.Base(job.FilePath)
	}
	log := p.log.With("job", jobID, "folder", job.Folder, "file", rel)
	log.Info("processing file")

	if _, err := p.store.EnsureFolder(job.Folder, folder.Prompt); err != nil {
		log.Warn("updating folder metadata failed", "err", err)
	}

	result, runErr := p.run(ctx, log, folder, job)

	rec := state.HistoryRecord{Timestamp: time.Now().UTC(), JobID: jobID, File: rel}
	if runErr != nil {
		rec.Error = runErr.Error()
	} else {
		rec.Result = result
	}
	if err := p.store.AppendHistory(job.Folder, rec); err != nil {
		log.Warn("appending history failed", "err", err)
	}
	return runErr
}

func (p *pipeline) run(ctx context.Context, log *slog.Logger, folder config.Folder, job queue.Job) (json.RawMessage, error) {
	meta, err := p.engine.Extract(job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("extracting metadata: %w", err)
	}
	cat := classify.Parse(meta.Category)

	model := p.registry.Select(cat, meta.SizeBytes, p.ai.Model)
	log.Debug("model selected", "model", model.ID, "category", meta.Category, "size", meta.SizeBytes)

	c := p.provider.For(meta, model)
	if c.Note != "" {
		log.Debug("content degraded", "kind", c.Kind.String(), "note", c.Note)
	}

	toolset, err := tools.New(tools.Config{
		Root:     job.Folder,
		Names:    allowedTools(folder.Tools, cat),
		DryRun:   job.DryRun,
		OnChange: p.suppressor.Mark,
		Log:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("building toolset: %w", err)
	}

	parts, err := prompt.BuildUser(meta, c, toolset.Names())
	if err != nil {
		return nil, fmt.Errorf("building prompt: %w", err)
	}

	outcome, err := p.driver.Run(ctx, agent.Job{
		Model:        model.ID,
		System:       prompt.BuildSystem(job.Folder, folder.Prompt),
		UserParts:    parts,
		Toolset:      toolset,
		MaxToolCalls: p.ai.MaxToolCalls,
		Temperature:  p.ai.Temperature,
	})
	if err != nil {
		return nil, err
	}

	log.Info("file processed",
		"model", model.ID,
		"steps", outcome.Steps,
		"tool_calls", len(outcome.ToolResults),
		"tokens", outcome.Usage.TotalTokens,
	)
	result, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("encoding outcome: %w", err)
	}
	return result, nil
}

// allowedTools intersects the folder's configured tool subset with the tools
// that make sense for the file's category, keeping canonical order. A nil
// folder subset means all of them.
func allowedTools(configured []string, cat classify.Category) []string {
	forCat := tools.ForCategory(cat)
	if configured == nil {
		return forCat
	}
	picked := make(map[string]bool, len(configured))
	for _, name := range configured {
		picked[name] = true
	}
	// Never nil: a nil Names would tell the toolset to enable everything.
	names := make([]string, 0, len(forCat))
	for _, name := range forCat {
		if picked[name] {
			names = append(names, name)
		}
	}
	return names
}
