package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartfolder/smartfolder/internal/agent"
	"github.com/smartfolder/smartfolder/internal/capability"
	"github.com/smartfolder/smartfolder/internal/classify"
	"github.com/smartfolder/smartfolder/internal/config"
	"github.com/smartfolder/smartfolder/internal/llm"
	"github.com/smartfolder/smartfolder/internal/queue"
	"github.com/smartfolder/smartfolder/internal/state"
	"github.com/smartfolder/smartfolder/internal/suppress"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedClient plays back canned model turns.
type scriptedClient struct {
	t        *testing.T
	turns    []func(req llm.Request) (*llm.Response, error)
	calls    int
	requests []llm.Request
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	if c.calls >= len(c.turns) {
		c.t.Fatalf("unexpected model call %d", c.calls+1)
	}
	turn := c.turns[c.calls]
	c.calls++
	return turn(req)
}

func answer(text string) func(llm.Request) (*llm.Response, error) {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Message:      llm.Message{Role: llm.RoleAssistant, Content: llm.Plain(text)},
			FinishReason: "stop",
		}, nil
	}
}

func callTool(id, name, args string) func(llm.Request) (*llm.Response, error) {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Message: llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					ID:       id,
					Type:     "function",
					Function: llm.FunctionCall{Name: name, Arguments: args},
				}},
			},
			FinishReason: "tool_calls",
		}, nil
	}
}

type pipelineFixture struct {
	pipe       *pipeline
	store      *state.Store
	suppressor *suppress.Suppressor
	folder     string
}

func newFixture(t *testing.T, client llm.Client, folderCfg config.Folder) *pipelineFixture {
	t.Helper()
	registry, err := capability.Load()
	if err != nil {
		t.Fatalf("capability.Load: %v", err)
	}
	store := state.NewStoreWithHome(t.TempDir())
	sup := suppress.New(0)
	pipe := newPipeline(
		config.AI{Model: "openai/gpt-4o-mini", MaxToolCalls: 5},
		registry,
		agent.New(client, discardLog()),
		store,
		sup,
		discardLog(),
	)
	pipe.setFolder(folderCfg)
	if _, err := store.EnsureFolder(folderCfg.Path, folderCfg.Prompt); err != nil {
		t.Fatalf("EnsureFolder: %v", err)
	}
	return &pipelineFixture{pipe: pipe, store: store, suppressor: sup, folder: folderCfg.Path}
}

func TestProcess_RenameFlow(t *testing.T) {
	dir := t.TempDir()
	dropped := filepath.Join(dir, "scan.txt")
	if err := os.WriteFile(dropped, []byte("Invoice 2025-01 from ACME"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){
		callTool("c1", "rename_file", `{"from":"scan.txt","to":"2025-01-acme-invoice.txt"}`),
		answer("Renamed the invoice."),
	}}
	fx := newFixture(t, client, config.Folder{Path: dir, Prompt: "Rename files descriptively"})

	err := fx.pipe.Process(context.Background(), queue.Job{Folder: dir, FilePath: dropped})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	renamed := filepath.Join(dir, "2025-01-acme-invoice.txt")
	if _, err := os.Stat(renamed); err != nil {
		t.Errorf("rename did not happen: %v", err)
	}

	// Both sides of the rename must be suppressed so the watcher does not
	// re-process the agent's own change.
	if !fx.suppressor.IsSuppressed(dropped) || !fx.suppressor.IsSuppressed(renamed) {
		t.Error("renamed paths are not suppressed")
	}

	recs, err := fx.store.ReadHistory(dir, 0)
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("history records = %d, want 1", len(recs))
	}
	if recs[0].File != "scan.txt" {
		t.Errorf("record file = %q", recs[0].File)
	}
	if recs[0].Error != "" || recs[0].Result == nil {
		t.Errorf("record = %+v, want success", recs[0])
	}
	if !strings.Contains(string(recs[0].Result), "Renamed the invoice.") {
		t.Errorf("result missing final text: %s", recs[0].Result)
	}
}

func TestProcess_DryRunLeavesFileAlone(t *testing.T) {
	dir := t.TempDir()
	dropped := filepath.Join(dir, "scan.txt")
	if err := os.WriteFile(dropped, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){
		callTool("c1", "rename_file", `{"from":"scan.txt","to":"better.txt"}`),
		answer("done"),
	}}
	fx := newFixture(t, client, config.Folder{Path: dir, Prompt: "rename", DryRun: true})

	err := fx.pipe.Process(context.Background(), queue.Job{Folder: dir, FilePath: dropped, DryRun: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := os.Stat(dropped); err != nil {
		t.Errorf("dry run touched the file: %v", err)
	}

	recs, _ := fx.store.ReadHistory(dir, 0)
	if len(recs) != 1 {
		t.Fatalf("history records = %d", len(recs))
	}
	if !strings.Contains(string(recs[0].Result), "dry_run") {
		t.Errorf("result should carry the dry_run skip: %s", recs[0].Result)
	}
}

func TestProcess_ProviderFailureWritesErrorRecord(t *testing.T) {
	dir := t.TempDir()
	dropped := filepath.Join(dir, "scan.txt")
	if err := os.WriteFile(dropped, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){
		func(llm.Request) (*llm.Response, error) {
			return nil, context.DeadlineExceeded
		},
	}}
	fx := newFixture(t, client, config.Folder{Path: dir, Prompt: "rename"})

	err := fx.pipe.Process(context.Background(), queue.Job{Folder: dir, FilePath: dropped})
	if err == nil {
		t.Fatal("Process should surface the provider failure")
	}

	recs, _ := fx.store.ReadHistory(dir, 0)
	if len(recs) != 1 {
		t.Fatalf("history records = %d, want 1 error record", len(recs))
	}
	if recs[0].Error == "" {
		t.Errorf("record = %+v, want error", recs[0])
	}
}

func TestProcess_UnattachedFolderFails(t *testing.T) {
	dir := t.TempDir()
	client := &scriptedClient{t: t}
	fx := newFixture(t, client, config.Folder{Path: dir, Prompt: "x"})
	fx.pipe.dropFolder(dir)

	err := fx.pipe.Process(context.Background(), queue.Job{Folder: dir, FilePath: filepath.Join(dir, "a.txt")})
	if err == nil {
		t.Fatal("detached folder should fail")
	}
	if client.calls != 0 {
		t.Errorf("model was called %d times", client.calls)
	}
}

func TestProcess_ToolSubsetRestrictsAgent(t *testing.T) {
	dir := t.TempDir()
	dropped := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(dropped, []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){
		answer("nothing to do"),
	}}
	fx := newFixture(t, client, config.Folder{
		Path:   dir,
		Prompt: "organize",
		Tools:  []string{"rename_file", "move_file"},
	})

	if err := fx.pipe.Process(context.Background(), queue.Job{Folder: dir, FilePath: dropped}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	req := client.requests[0]
	if len(req.Tools) != 2 {
		t.Fatalf("len(Tools) = %d, want 2", len(req.Tools))
	}
	for _, def := range req.Tools {
		if name := def.Function.Name; name != "rename_file" && name != "move_file" {
			t.Errorf("unexpected tool %s", name)
		}
	}
}

func TestProcess_BumpsLastRun(t *testing.T) {
	dir := t.TempDir()
	dropped := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(dropped, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){answer("ok")}}
	fx := newFixture(t, client, config.Folder{Path: dir, Prompt: "x"})

	before, err := fx.store.Metadata(dir)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := fx.pipe.Process(context.Background(), queue.Job{Folder: dir, FilePath: dropped}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	after, err := fx.store.Metadata(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !after.LastRunAt.After(before.LastRunAt) {
		t.Errorf("lastRunAt not bumped: %v -> %v", before.LastRunAt, after.LastRunAt)
	}
	if !after.FirstWatchedAt.Equal(before.FirstWatchedAt) {
		t.Errorf("firstWatchedAt changed: %v -> %v", before.FirstWatchedAt, after.FirstWatchedAt)
	}
}

func TestAllowedTools(t *testing.T) {
	got := allowedTools([]string{"rename_file", "grep"}, classify.DetectName("report.pdf"))
	// PDF is binary: grep is not offered even though configured.
	if len(got) != 1 || got[0] != "rename_file" {
		t.Errorf("allowedTools = %v", got)
	}

	if got := allowedTools([]string{}, classify.DetectName("notes.txt")); len(got) != 0 {
		t.Errorf("empty subset must stay empty, got %v", got)
	}
}
