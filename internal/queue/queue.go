// Package queue serializes jobs per folder. Each watched folder has an
// independent chain: a newly enqueued job starts only after every earlier
// job for that folder finished, while different folders run in parallel.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smartfolder/smartfolder/internal/suppress"
)

// Job is one unit of work: a file that arrived in a watched folder.
type Job struct {
	Folder   string // absolute folder path
	FilePath string // absolute path of the arrived file
	DryRun   bool
}

// Runner processes one job. Errors are logged by the queue and never stop
// the folder's chain.
type Runner func(ctx context.Context, job Job) error

// Queue fans jobs out to per-folder chains.
type Queue struct {
	run      Runner
	suppress *suppress.Suppressor
	log      *slog.Logger

	mu     sync.Mutex
	tails  map[string]chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// New returns a Queue that executes jobs with run. The suppressor filters
// self-induced events at intake; nil disables that check.
func New(run Runner, sup *suppress.Suppressor, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		run:      run,
		suppress: sup,
		log:      log,
		tails:    map[string]chan struct{}{},
	}
}

// Enqueue appends a job to its folder's chain. It returns false when the
// job was dropped: the path is currently suppressed as a self-change, or the
// queue is shut down.
func (q *Queue) Enqueue(ctx context.Context, job Job) bool {
	if q.suppress != nil && q.suppress.IsSuppressed(job.FilePath) {
		q.log.Debug("dropping self-induced event", "folder", job.Folder, "file", job.FilePath)
		return false
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.Debug("queue shut down, dropping event", "folder", job.Folder, "file", job.FilePath)
		return false
	}
	prev := q.tails[job.Folder]
	done := make(chan struct{})
	q.tails[job.Folder] = done
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		defer close(done)

		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				q.log.Debug("job dropped, canceled while queued", "folder", job.Folder, "file", job.FilePath)
				return
			}
		}
		if ctx.Err() != nil {
			q.log.Debug("job dropped, canceled before start", "folder", job.Folder, "file", job.FilePath)
			return
		}

		start := time.Now()
		if err := q.run(ctx, job); err != nil {
			q.log.Error("job failed",
				"folder", job.Folder,
				"file", job.FilePath,
				"duration", time.Since(start).Round(time.Millisecond),
				"err", err,
			)
			return
		}
		q.log.Debug("job finished",
			"folder", job.Folder,
			"file", job.FilePath,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}()
	return true
}

// Shutdown stops intake and waits for every accepted job to finish. To drop
// queued jobs instead of draining them, cancel the context they were
// enqueued with first.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
