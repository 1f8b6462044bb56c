package completion

import (
	"encoding/json"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/scorecard-proxy/pkg/types"
)

func TestRequestEncode(t *testing.T) {
	t.Parallel()

	r := Request{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 2000,
		Messages:  types.Transcript{types.TextMessage(types.RoleUser, "hi")},
		Options:   json.RawMessage(`{"model":"shadowed","metadata":{"user_id":"u-1"},"tools":[{"name":"t"}]}`),
	}
	body, err := r.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	checks := map[string]string{
		"model":              "claude-haiku-4-5-20251001",
		"max_tokens":         "2000",
		"messages.#":         "1",
		"messages.0.role":    "user",
		"messages.0.content": "hi",
		"metadata.user_id":   "u-1",
		"tools.0.name":       "t",
	}
	for path, want := range checks {
		if got := gjson.GetBytes(body, path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestRequestEncode_NoOptions(t *testing.T) {
	t.Parallel()

	r := Request{Model: "m", MaxTokens: 1}
	body, err := r.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if !gjson.GetBytes(body, "messages").IsArray() {
		t.Errorf("messages should encode as an empty array, got %s", body)
	}
}

func TestRequestEncode_RejectsNonObjectOptions(t *testing.T) {
	t.Parallel()

	for _, opts := range []string{`[1,2]`, `"x"`, `{broken`} {
		r := Request{Model: "m", MaxTokens: 1, Options: json.RawMessage(opts)}
		if _, err := r.Encode(); err == nil {
			t.Errorf("Encode() with options %s should fail", opts)
		}
	}
}

func TestResponseAccessors(t *testing.T) {
	t.Parallel()

	r := &Response{StatusCode: 200, Body: []byte(`{"stop_reason":"pause_turn","content":[{"type":"server_tool_use","id":"s1"}]}`)}
	if !r.OK() {
		t.Error("200 should be OK")
	}
	if r.StopReason() != StopPauseTurn {
		t.Errorf("StopReason() = %q", r.StopReason())
	}
	if got := string(r.Content()); got != `[{"type":"server_tool_use","id":"s1"}]` {
		t.Errorf("Content() = %s", got)
	}

	empty := &Response{StatusCode: 404, Body: []byte(`{}`)}
	if empty.OK() {
		t.Error("404 should not be OK")
	}
	if empty.StopReason() != StopReasonAbsent {
		t.Errorf("StopReason() = %q, want empty", empty.StopReason())
	}
	if got := string(empty.Content()); got != `[]` {
		t.Errorf("Content() = %s, want []", got)
	}
}
