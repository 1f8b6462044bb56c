package completion_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/scorecard-proxy/pkg/completion"
	"github.com/MrWong99/scorecard-proxy/pkg/completion/mock"
	"github.com/MrWong99/scorecard-proxy/pkg/types"
)

const (
	endTurn   = `{"id":"msg_1","type":"message","role":"assistant","stop_reason":"end_turn","content":[{"type":"text","text":"done"}]}`
	pauseTurn = `{"id":"msg_p","type":"message","role":"assistant","stop_reason":"pause_turn","content":[{"type":"text","text":"partial"}]}`
	toolUse   = `{"id":"msg_t","type":"message","role":"assistant","stop_reason":"tool_use","content":[{"type":"tool_use","id":"tu_1","name":"lookup","input":{}}]}`
)

func newRequest() completion.Request {
	return completion.Request{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 2000,
		Messages:  types.Transcript{types.TextMessage(types.RoleUser, "Who won?")},
		Options:   json.RawMessage(`{"temperature":0.2,"system":"be brief"}`),
	}
}

func TestDrive_EndTurnFirstRound(t *testing.T) {
	t.Parallel()

	up := &mock.Upstream{Responses: []*completion.Response{mock.Reply(http.StatusOK, endTurn)}}
	res, err := completion.NewDriver(up).Drive(context.Background(), newRequest())
	if err != nil {
		t.Fatalf("Drive() error: %v", err)
	}

	if n := up.CallCount(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
	if res.Rounds != 1 || res.Outcome != completion.OutcomeDone {
		t.Errorf("rounds/outcome = %d/%s, want 1/done", res.Rounds, res.Outcome)
	}
	if string(res.Response.Body) != endTurn {
		t.Errorf("body changed:\n got %s\nwant %s", res.Response.Body, endTurn)
	}
}

func TestDrive_PausesThenEndTurn(t *testing.T) {
	t.Parallel()

	up := &mock.Upstream{Responses: []*completion.Response{
		mock.Reply(http.StatusOK, pauseTurn),
		mock.Reply(http.StatusOK, pauseTurn),
		mock.Reply(http.StatusOK, pauseTurn),
		mock.Reply(http.StatusOK, endTurn),
	}}
	req := newRequest()
	res, err := completion.NewDriver(up).Drive(context.Background(), req)
	if err != nil {
		t.Fatalf("Drive() error: %v", err)
	}

	if n := up.CallCount(); n != 4 {
		t.Fatalf("upstream calls = %d, want 4", n)
	}
	if res.Response.StatusCode != http.StatusOK || res.Outcome != completion.OutcomeDone {
		t.Errorf("status/outcome = %d/%s, want 200/done", res.Response.StatusCode, res.Outcome)
	}

	// Round k re-sends the original user turn plus k-1 assistant partials,
	// and every option survives unchanged.
	for k, call := range up.Calls {
		msgs := gjson.GetBytes(call.Body, "messages").Array()
		if len(msgs) != k+1 {
			t.Errorf("round %d: %d messages, want %d", k+1, len(msgs), k+1)
		}
		if msgs[0].Get("role").String() != "user" {
			t.Errorf("round %d: first message role = %s", k+1, msgs[0].Get("role"))
		}
		for _, m := range msgs[1:] {
			if m.Get("role").String() != "assistant" || m.Get("content.0.text").String() != "partial" {
				t.Errorf("round %d: unexpected continuation message %s", k+1, m.Raw)
			}
		}
		if got := gjson.GetBytes(call.Body, "model").String(); got != req.Model {
			t.Errorf("round %d: model = %q", k+1, got)
		}
		if got := gjson.GetBytes(call.Body, "max_tokens").Int(); got != 2000 {
			t.Errorf("round %d: max_tokens = %d", k+1, got)
		}
		if got := gjson.GetBytes(call.Body, "temperature").Float(); got != 0.2 {
			t.Errorf("round %d: temperature = %v", k+1, got)
		}
		if got := gjson.GetBytes(call.Body, "system").String(); got != "be brief" {
			t.Errorf("round %d: system = %q", k+1, got)
		}
	}

	if len(req.Messages) != 1 {
		t.Errorf("caller transcript mutated: %d messages", len(req.Messages))
	}
	if len(res.Transcript) != 4 {
		t.Errorf("result transcript = %d messages, want 4", len(res.Transcript))
	}
}

func TestDrive_NeverExceedsMaxRounds(t *testing.T) {
	t.Parallel()

	up := &mock.Upstream{Responses: []*completion.Response{mock.Reply(http.StatusOK, pauseTurn)}}
	res, err := completion.NewDriver(up).Drive(context.Background(), newRequest())
	if err != nil {
		t.Fatalf("Drive() error: %v", err)
	}

	if n := up.CallCount(); n != completion.MaxRounds {
		t.Errorf("upstream calls = %d, want %d", n, completion.MaxRounds)
	}
	if res.Outcome != completion.OutcomeExhausted {
		t.Errorf("outcome = %s, want exhausted", res.Outcome)
	}
	if string(res.Response.Body) != pauseTurn {
		t.Errorf("exhaustion should return the last response, got %s", res.Response.Body)
	}
}

func TestDrive_OtherStopReasonIsTerminal(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		toolUse,
		`{"stop_reason":"max_tokens","content":[]}`,
		`{"stop_reason":"refusal","content":[]}`,
		`{"content":[]}`,
	} {
		up := &mock.Upstream{Responses: []*completion.Response{
			mock.Reply(http.StatusOK, body),
			mock.Reply(http.StatusOK, endTurn),
		}}
		res, err := completion.NewDriver(up).Drive(context.Background(), newRequest())
		if err != nil {
			t.Fatalf("Drive(%s) error: %v", body, err)
		}
		if n := up.CallCount(); n != 1 {
			t.Errorf("Drive(%s): calls = %d, want 1", body, n)
		}
		if res.Outcome != completion.OutcomeOther || string(res.Response.Body) != body {
			t.Errorf("Drive(%s): outcome %s body %s", body, res.Outcome, res.Response.Body)
		}
	}
}

func TestDrive_UpstreamErrorShortCircuits(t *testing.T) {
	t.Parallel()

	errBody := `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`
	for k := 1; k <= completion.MaxRounds; k++ {
		var queue []*completion.Response
		for i := 1; i < k; i++ {
			queue = append(queue, mock.Reply(http.StatusOK, pauseTurn))
		}
		queue = append(queue, mock.Reply(529, errBody), mock.Reply(http.StatusOK, endTurn))

		up := &mock.Upstream{Responses: queue}
		_, err := completion.NewDriver(up).Drive(context.Background(), newRequest())

		var ue *completion.UpstreamError
		if !errors.As(err, &ue) {
			t.Fatalf("k=%d: error = %v, want *UpstreamError", k, err)
		}
		if ue.StatusCode != 529 || string(ue.Body) != errBody || ue.Round != k {
			t.Errorf("k=%d: got status %d round %d body %s", k, ue.StatusCode, ue.Round, ue.Body)
		}
		if n := up.CallCount(); n != k {
			t.Errorf("k=%d: upstream calls = %d, want %d", k, n, k)
		}
	}
}

func TestDrive_TransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	up := &mock.Upstream{Err: boom}
	_, err := completion.NewDriver(up).Drive(context.Background(), newRequest())
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
	var ue *completion.UpstreamError
	if errors.As(err, &ue) {
		t.Error("transport error must not be an *UpstreamError")
	}
}

func TestDrive_InvalidJSONBody(t *testing.T) {
	t.Parallel()

	up := &mock.Upstream{Responses: []*completion.Response{mock.Reply(http.StatusOK, "<html>gateway</html>")}}
	if _, err := completion.NewDriver(up).Drive(context.Background(), newRequest()); err == nil {
		t.Error("Drive() should fail on a non-JSON 2xx body")
	}
}
