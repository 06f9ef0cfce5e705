// Package agent drives the bounded multi-turn loop between the model and
// the folder's toolset: send the prompt, execute whatever tools the model
// calls, feed the results back, and stop at a final answer or the step cap.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/smartfolder/smartfolder/internal/llm"
	"github.com/smartfolder/smartfolder/internal/tools"
)

// DefaultMaxToolCalls bounds the model round-trips of one job when the
// configuration does not say otherwise.
const DefaultMaxToolCalls = 10

// Job is everything one agent run needs.
type Job struct {
	Model        string
	System       string
	UserParts    []llm.Part
	Toolset      *tools.Toolset
	MaxToolCalls int     // round-trip cap; DefaultMaxToolCalls when zero
	Temperature  float64 // passed through to the model when non-zero
}

// Outcome is what a finished run reports back.
type Outcome struct {
	FinalText   string         `json:"finalText,omitempty"`
	ToolResults []tools.Result `json:"toolResults,omitempty"`
	Steps       int            `json:"steps"`
	StepCapHit  bool           `json:"stepCapHit,omitempty"`
	Usage       llm.Usage      `json:"usage"`
}

// Driver runs agent jobs against one model client.
type Driver struct {
	client llm.Client
	log    *slog.Logger
}

// New returns a Driver. A nil log falls back to the default logger.
func New(client llm.Client, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{client: client, log: log}
}

// Run executes the loop. Tool failures are not fatal: their error payloads
// go back to the model, which may retry or move on. A provider failure ends
// the run with a wrapped error.
func (d *Driver) Run(ctx context.Context, job Job) (*Outcome, error) {
	maxSteps := job.MaxToolCalls
	if maxSteps <= 0 {
		maxSteps = DefaultMaxToolCalls
	}

	messages := []llm.Message{
		llm.SystemMessage(job.System),
		llm.UserMessage(job.UserParts...),
	}
	out := &Outcome{}

	for out.Steps < maxSteps {
		resp, err := d.client.Complete(ctx, llm.Request{
			Model:       job.Model,
			Messages:    messages,
			Tools:       job.Toolset.ModelDefs(),
			Temperature: job.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("calling model %s: %w (the file type may not suit this model, the model name may be wrong, or the gateway may be unreachable)", job.Model, err)
		}
		out.Steps++
		out.Usage.PromptTokens += resp.Usage.PromptTokens
		out.Usage.CompletionTokens += resp.Usage.CompletionTokens
		out.Usage.TotalTokens += resp.Usage.TotalTokens

		messages = append(messages, resp.Message)
		if text := resp.Message.Content.Joined(); text != "" {
			out.FinalText = text
		}

		if len(resp.Message.ToolCalls) == 0 {
			d.log.Debug("agent finished", "model", job.Model, "steps", out.Steps)
			return out, nil
		}

		d.log.Debug("agent step",
			"model", job.Model,
			"step", out.Steps,
			"tool_calls", len(resp.Message.ToolCalls),
		)
		for _, call := range resp.Message.ToolCalls {
			result := job.Toolset.Execute(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
			out.ToolResults = append(out.ToolResults, result)
			messages = append(messages, llm.ToolResult(call.ID, string(result.Payload)))
		}
	}

	out.StepCapHit = true
	d.log.Warn("agent hit step cap", "model", job.Model, "steps", out.Steps)
	return out, nil
}
