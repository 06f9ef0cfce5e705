// Package llm defines the chat types spoken to the AI gateway and the
// Client interface the agent drives. The gateway exposes an OpenAI-style
// chat completions API across providers; model IDs carry a provider prefix
// such as openai/gpt-4o-mini.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Part is one element of a multi-part message body.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
	File     *FileData `json:"file,omitempty"`
}

// ImageURL carries an image as a data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// FileData carries an arbitrary file as base64 for models that take raw
// documents (PDF, audio, video).
type FileData struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Type: "text", Text: text}
}

// ImagePart builds an image part from raw bytes.
func ImagePart(mimeType string, data []byte) Part {
	url := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	return Part{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// FilePart builds a file part from raw bytes.
func FilePart(filename, mimeType string, data []byte) Part {
	return Part{Type: "file", File: &FileData{
		Filename: filename,
		FileData: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}}
}

// Content is a message body that serializes as either a plain string or a
// part array, matching what the gateway accepts per role.
type Content struct {
	Text  string
	Parts []Part
}

// Plain builds a string-form Content.
func Plain(text string) Content { return Content{Text: text} }

// Multi builds a part-array Content.
func Multi(parts ...Part) Content { return Content{Parts: parts} }

func (c Content) IsZero() bool { return c.Text == "" && c.Parts == nil }

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Parts = nil
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content is neither string nor part array: %w", err)
	}
	c.Parts = parts
	c.Text = ""
	return nil
}

// Joined returns the text of the content, concatenating text parts.
func (c Content) Joined() string {
	if c.Parts == nil {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one chat turn.
type Message struct {
	Role       string     `json:"role"`
	Content    Content    `json:"content,omitzero"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage builds a system turn.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: Plain(text)}
}

// UserMessage builds a user turn from parts.
func UserMessage(parts ...Part) Message {
	return Message{Role: RoleUser, Content: Multi(parts...)}
}

// ToolResult builds the tool turn answering a ToolCall.
func ToolResult(callID, text string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: Plain(text)}
}

// ToolDef declares one callable function to the model.
type ToolDef struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef is the name, description and JSON schema of a tool.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is one completion call.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []ToolDef `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Usage is the token accounting the gateway reports.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the assistant turn plus accounting.
type Response struct {
	Message      Message
	FinishReason string
	Usage        Usage
}

// Client completes chat requests. Implementations must be safe for
// concurrent use; folder queues run in parallel.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
