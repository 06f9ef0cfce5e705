package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartfolder/smartfolder/internal/llm"
	"github.com/smartfolder/smartfolder/internal/tools"
)

// scriptedClient plays back canned turns and records every request.
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
			Usage:        llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}
}

func callTools(calls ...llm.ToolCall) func(llm.Request) (*llm.Response, error) {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Message:      llm.Message{Role: llm.RoleAssistant, ToolCalls: calls},
			FinishReason: "tool_calls",
		}, nil
	}
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       id,
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}
}

func testToolset(t *testing.T, dir string) *tools.Toolset {
	t.Helper()
	ts, err := tools.New(tools.Config{
		Root: dir,
		Log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("tools.New: %v", err)
	}
	return ts
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_FinalTextWithoutTools(t *testing.T) {
	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){
		answer("Nothing to do here."),
	}}
	d := New(client, discardLog())

	out, err := d.Run(context.Background(), Job{
		Model:     "openai/gpt-4o-mini",
		System:    "sys",
		UserParts: []llm.Part{llm.TextPart("file arrived")},
		Toolset:   testToolset(t, t.TempDir()),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.FinalText != "Nothing to do here." {
		t.Errorf("FinalText = %q", out.FinalText)
	}
	if out.Steps != 1 || out.StepCapHit {
		t.Errorf("Steps = %d, StepCapHit = %v", out.Steps, out.StepCapHit)
	}
	if len(out.ToolResults) != 0 {
		t.Errorf("ToolResults = %v", out.ToolResults)
	}
	if out.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", out.Usage)
	}
}

func TestRun_ExecutesToolThenFinishes(t *testing.T) {
	dir := t.TempDir()
	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){
		callTools(toolCall("c1", "write_file", `{"path":"hello.txt","contents":"hi"}`)),
		answer("Created hello.txt."),
	}}
	d := New(client, discardLog())

	out, err := d.Run(context.Background(), Job{
		Model:     "openai/gpt-4o-mini",
		System:    "sys",
		UserParts: []llm.Part{llm.TextPart("make a file")},
		Toolset:   testToolset(t, dir),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.FinalText != "Created hello.txt." {
		t.Errorf("FinalText = %q", out.FinalText)
	}
	if len(out.ToolResults) != 1 || !out.ToolResults[0].OK {
		t.Fatalf("ToolResults = %+v", out.ToolResults)
	}
	got, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	if err != nil || string(got) != "hi" {
		t.Errorf("tool did not run: %q, %v", got, err)
	}

	// The second request must carry the tool result back to the model.
	second := client.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "c1" {
		t.Fatalf("last message = %+v", last)
	}
	if !strings.Contains(last.Content.Joined(), `"tool":"write_file"`) {
		t.Errorf("tool payload missing: %s", last.Content.Joined())
	}
}

func TestRun_ToolFailureIsFedBackNotFatal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "scan.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){
		callTools(toolCall("c1", "rename_file", `{"from":"scan.pdf","to":"report"}`)),
		callTools(toolCall("c2", "rename_file", `{"from":"scan.pdf","to":"report.pdf"}`)),
		answer("Renamed after fixing the extension."),
	}}
	d := New(client, discardLog())

	out, err := d.Run(context.Background(), Job{
		Model:     "openai/gpt-4o-mini",
		System:    "sys",
		UserParts: []llm.Part{llm.TextPart("rename it")},
		Toolset:   testToolset(t, dir),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.ToolResults) != 2 {
		t.Fatalf("ToolResults = %+v", out.ToolResults)
	}
	if out.ToolResults[0].OK || !out.ToolResults[1].OK {
		t.Errorf("first call should fail, second succeed: %+v", out.ToolResults)
	}

	// The failure payload must reach the model with the suggested name.
	second := client.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !strings.Contains(last.Content.Joined(), "report.pdf") {
		t.Errorf("suggestion missing from feedback: %s", last.Content.Joined())
	}
	if _, err := os.Stat(filepath.Join(dir, "report.pdf")); err != nil {
		t.Errorf("rename did not happen: %v", err)
	}
}

func TestRun_MultipleCallsRunInOrder(t *testing.T) {
	dir := t.TempDir()
	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){
		callTools(
			toolCall("c1", "create_folder", `{"path":"done"}`),
			toolCall("c2", "write_file", `{"path":"done/readme.md","contents":"moved"}`),
		),
		answer("ok"),
	}}
	d := New(client, discardLog())

	out, err := d.Run(context.Background(), Job{
		Model:     "openai/gpt-4o-mini",
		System:    "sys",
		UserParts: []llm.Part{llm.TextPart("organize")},
		Toolset:   testToolset(t, dir),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.ToolResults) != 2 || !out.ToolResults[0].OK || !out.ToolResults[1].OK {
		t.Fatalf("ToolResults = %+v", out.ToolResults)
	}
	if out.ToolResults[0].Tool != "create_folder" || out.ToolResults[1].Tool != "write_file" {
		t.Errorf("order = %s, %s", out.ToolResults[0].Tool, out.ToolResults[1].Tool)
	}
	if _, err := os.Stat(filepath.Join(dir, "done", "readme.md")); err != nil {
		t.Errorf("second tool depended on first: %v", err)
	}
}

func TestRun_StepCap(t *testing.T) {
	dir := t.TempDir()
	var turns []func(llm.Request) (*llm.Response, error)
	for i := 0; i < 5; i++ {
		turns = append(turns, callTools(toolCall(fmt.Sprintf("c%d", i), "head", `{"path":"absent.txt"}`)))
	}
	client := &scriptedClient{t: t, turns: turns}
	d := New(client, discardLog())

	out, err := d.Run(context.Background(), Job{
		Model:        "openai/gpt-4o-mini",
		System:       "sys",
		UserParts:    []llm.Part{llm.TextPart("loop forever")},
		Toolset:      testToolset(t, dir),
		MaxToolCalls: 3,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.StepCapHit {
		t.Error("StepCapHit should be set")
	}
	if out.Steps != 3 {
		t.Errorf("Steps = %d, want 3", out.Steps)
	}
	if client.calls != 3 {
		t.Errorf("model calls = %d, want 3", client.calls)
	}
}

func TestRun_ProviderErrorIsWrapped(t *testing.T) {
	boom := errors.New("bad gateway")
	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){
		func(llm.Request) (*llm.Response, error) { return nil, boom },
	}}
	d := New(client, discardLog())

	_, err := d.Run(context.Background(), Job{
		Model:     "openai/gpt-4o-mini",
		System:    "sys",
		UserParts: []llm.Part{llm.TextPart("x")},
		Toolset:   testToolset(t, t.TempDir()),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(err.Error(), "gateway may be unreachable") {
		t.Errorf("diagnostic missing: %v", err)
	}
}

func TestRun_SendsToolDefinitions(t *testing.T) {
	client := &scriptedClient{t: t, turns: []func(llm.Request) (*llm.Response, error){
		answer("done"),
	}}
	d := New(client, discardLog())

	if _, err := d.Run(context.Background(), Job{
		Model:     "openai/gpt-4o-mini",
		System:    "sys",
		UserParts: []llm.Part{llm.TextPart("x")},
		Toolset:   testToolset(t, t.TempDir()),
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	req := client.requests[0]
	if len(req.Tools) != 9 {
		t.Fatalf("len(Tools) = %d, want 9", len(req.Tools))
	}
	if req.Messages[0].Role != llm.RoleSystem || req.Messages[1].Role != llm.RoleUser {
		t.Errorf("message roles = %s, %s", req.Messages[0].Role, req.Messages[1].Role)
	}
}
