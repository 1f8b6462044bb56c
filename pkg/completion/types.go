package completion

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/MrWong99/scorecard-proxy/pkg/types"
)

// StopReason is the Messages API stop_reason value that drives the
// continuation state machine.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopPauseTurn    StopReason = "pause_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopSequence     StopReason = "stop_sequence"
	StopToolUse      StopReason = "tool_use"
	StopRefusal      StopReason = "refusal"
	StopReasonAbsent StopReason = ""
)

// Request is one invocation's completion request. It is owned by a single
// caller and never shared between concurrent invocations.
type Request struct {
	// Model is the model identifier sent upstream.
	Model string

	// MaxTokens caps the output tokens per round.
	MaxTokens int

	// Messages is the transcript. The driver appends assistant partials here.
	Messages types.Transcript

	// Options is a JSON object carrying every other field the caller supplied.
	// It is forwarded verbatim on every round. Nil means no extra options.
	Options json.RawMessage
}

// Encode renders the request body. Options are the base document; model,
// max_tokens and messages are set on top of it so a passthrough field can
// never shadow them.
func (r *Request) Encode() ([]byte, error) {
	body := []byte(`{}`)
	if len(r.Options) > 0 {
		if !gjson.ValidBytes(r.Options) || !gjson.ParseBytes(r.Options).IsObject() {
			return nil, fmt.Errorf("completion: options must be a JSON object")
		}
		body = append([]byte(nil), r.Options...)
	}

	msgs := r.Messages
	if msgs == nil {
		msgs = types.Transcript{}
	}
	rawMsgs, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("completion: encode messages: %w", err)
	}

	if body, err = sjson.SetBytes(body, "model", r.Model); err != nil {
		return nil, fmt.Errorf("completion: set model: %w", err)
	}
	if body, err = sjson.SetBytes(body, "max_tokens", r.MaxTokens); err != nil {
		return nil, fmt.Errorf("completion: set max_tokens: %w", err)
	}
	if body, err = sjson.SetRawBytes(body, "messages", rawMsgs); err != nil {
		return nil, fmt.Errorf("completion: set messages: %w", err)
	}
	return body, nil
}

// Response is a raw upstream reply. Body is kept byte for byte so it can be
// handed back to the caller unchanged.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// StopReason returns the stop_reason of the body, or [StopReasonAbsent].
func (r *Response) StopReason() StopReason {
	return StopReason(gjson.GetBytes(r.Body, "stop_reason").String())
}

// Content returns the raw content block array of the body. A missing content
// field yields an empty array so the continuation turn stays well-formed.
func (r *Response) Content() json.RawMessage {
	c := gjson.GetBytes(r.Body, "content")
	if !c.Exists() || !c.IsArray() {
		return json.RawMessage(`[]`)
	}
	return json.RawMessage(c.Raw)
}

// UpstreamError is returned when the completion endpoint answers with a
// non-2xx status. StatusCode and Body are exactly what the upstream sent.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Round      int
}

// Error implements error.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion: upstream returned status %d on round %d", e.StatusCode, e.Round)
}
