package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartfolder/smartfolder/internal/state"
)

func TestContent_MarshalString(t *testing.T) {
	msg := SystemMessage("hello")
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"role":"system","content":"hello"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestContent_MarshalParts(t *testing.T) {
	msg := UserMessage(TextPart("look"), ImagePart("image/png", []byte{1, 2, 3}))
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"type":"text"`) || !strings.Contains(s, `"type":"image_url"`) {
		t.Errorf("parts missing: %s", s)
	}
	if !strings.Contains(s, "data:image/png;base64,AQID") {
		t.Errorf("data url missing: %s", s)
	}
}

func TestContent_UnmarshalBothForms(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"assistant","content":"done"}`), &m); err != nil {
		t.Fatalf("Unmarshal string content: %v", err)
	}
	if m.Content.Joined() != "done" {
		t.Errorf("Joined = %q", m.Content.Joined())
	}

	if err := json.Unmarshal([]byte(`{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`), &m); err != nil {
		t.Fatalf("Unmarshal part content: %v", err)
	}
	if m.Content.Joined() != "ab" {
		t.Errorf("Joined = %q", m.Content.Joined())
	}
}

func TestMessage_OmitsEmptyContentWithToolCalls(t *testing.T) {
	m := Message{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "c1", Type: "function", Function: FunctionCall{Name: "f", Arguments: "{}"}}},
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), `"content"`) {
		t.Errorf("empty content should be omitted: %s", data)
	}
}

func TestGateway_Complete(t *testing.T) {
	var gotAuth string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      "rename_file",
							"arguments": `{"from":"a.txt","to":"b.txt"}`,
						},
					}},
				},
				"finish_reason": "tool_calls",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "sk-test", nil)
	resp, err := g.Complete(context.Background(), Request{
		Model:    "openai/gpt-4o-mini",
		Messages: []Message{SystemMessage("sys"), UserMessage(TextPart("hi"))},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "openai/gpt-4o-mini" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Function.Name != "rename_file" {
		t.Fatalf("tool calls = %+v", resp.Message.ToolCalls)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
}

func TestGateway_RetriesOn429(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, `{"error":{"message":"slow down"}}`, http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": "ok"},
				"finish_reason": "stop",
			}},
		})
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "k", nil)
	resp, err := g.Complete(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if resp.Message.Content.Joined() != "ok" {
		t.Errorf("content = %q", resp.Message.Content.Joined())
	}
}

func TestGateway_DoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"message":"unknown model"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "k", nil)
	_, err := g.Complete(context.Background(), Request{Model: "nope"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "unknown model") {
		t.Errorf("error should carry status and body: %v", err)
	}
}

func TestResolveAPIKey_Env(t *testing.T) {
	t.Setenv(APIKeyEnv, "sk-env")
	key, err := ResolveAPIKey()
	if err != nil {
		t.Fatalf("ResolveAPIKey: %v", err)
	}
	if key != "sk-env" {
		t.Errorf("key = %q", key)
	}
}

func TestResolveAPIKey_TokenFile(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	t.Setenv(state.HomeEnv, "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.MkdirAll(filepath.Join(home, ".smartfolder"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".smartfolder", "token"), []byte("sk-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	key, err := ResolveAPIKey()
	if err != nil {
		t.Fatalf("ResolveAPIKey: %v", err)
	}
	if key != "sk-file" {
		t.Errorf("key = %q", key)
	}
}

func TestResolveAPIKey_TokenFollowsStateHome(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	stateHome := t.TempDir()
	t.Setenv(state.HomeEnv, stateHome)
	// A token under ~/.smartfolder must be ignored when the state home moved.
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.MkdirAll(filepath.Join(home, ".smartfolder"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".smartfolder", "token"), []byte("sk-stale\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stateHome, "token"), []byte("sk-relocated\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	key, err := ResolveAPIKey()
	if err != nil {
		t.Fatalf("ResolveAPIKey: %v", err)
	}
	if key != "sk-relocated" {
		t.Errorf("key = %q, want sk-relocated", key)
	}
}

func TestResolveAPIKey_Missing(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	t.Setenv(state.HomeEnv, "")
	t.Setenv("HOME", t.TempDir())

	_, err := ResolveAPIKey()
	if err == nil {
		t.Fatal("expected error")
	}
}
