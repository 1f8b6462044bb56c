// Package completion drives the Anthropic Messages API through paused turns.
//
// A [Driver] sends a [Request], inspects the stop_reason of each reply and,
// while the model reports "pause_turn", appends the partial assistant content
// to the transcript and sends the whole accumulated request again. It stops on
// "end_turn", on any other stop reason, on a non-2xx reply, or after
// [MaxRounds] rounds, whichever comes first.
//
// Each round re-sends the full transcript, so the total bytes sent grow
// quadratically with the size of the partials. The round bound keeps this
// finite.
package completion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/scorecard-proxy/pkg/types"
)

// MaxRounds bounds the number of upstream calls per invocation.
const MaxRounds = 5

const tracerName = "github.com/MrWong99/scorecard-proxy/pkg/completion"

// Outcome names the terminal state a [Driver.Drive] call reached.
type Outcome string

const (
	// OutcomeDone means the model finished its turn.
	OutcomeDone Outcome = "done"

	// OutcomeOther means the model stopped for another reason (tool use,
	// max tokens, refusal, ...). The response is returned as-is.
	OutcomeOther Outcome = "other"

	// OutcomeExhausted means every round ended in a pause. The last response
	// is returned; this is not an error.
	OutcomeExhausted Outcome = "exhausted"
)

// Result is the final state of a drive.
type Result struct {
	// Response is the last upstream reply, unchanged.
	Response *Response

	// Rounds is the number of upstream calls made.
	Rounds int

	// Outcome is the terminal state.
	Outcome Outcome

	// Transcript is the final accumulated message list, including any
	// assistant partials appended during continuation.
	Transcript types.Transcript
}

// Driver runs the continuation loop against an [Upstream].
// A Driver holds no per-invocation state and is safe for concurrent use.
type Driver struct {
	upstream Upstream
	log      *slog.Logger
}

// DriverOption configures a [Driver].
type DriverOption func(*Driver)

// WithLogger sets the logger used for round-level diagnostics.
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDriver creates a Driver sending through up.
func NewDriver(up Upstream, opts ...DriverOption) *Driver {
	d := &Driver{upstream: up, log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Drive issues req and follows paused turns. The caller's transcript is not
// modified; the driver works on its own copy.
//
// A non-2xx reply aborts immediately with an [*UpstreamError]. Transport
// failures and 2xx replies that are not JSON are returned as wrapped errors.
func (d *Driver) Drive(ctx context.Context, req Request) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "completion.Drive")
	defer span.End()

	req.Messages = req.Messages.Clone()

	res, err := d.drive(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("completion.rounds", res.Rounds),
		attribute.String("completion.outcome", string(res.Outcome)),
	)
	return res, nil
}

func (d *Driver) drive(ctx context.Context, req *Request) (*Result, error) {
	var last *Response
	for round := 1; round <= MaxRounds; round++ {
		resp, err := d.round(ctx, req, round)
		if err != nil {
			return nil, err
		}
		last = resp

		stop := resp.StopReason()
		d.log.DebugContext(ctx, "completion round finished",
			"round", round,
			"stop_reason", string(stop),
			"messages", len(req.Messages),
		)

		switch stop {
		case StopEndTurn:
			return &Result{Response: resp, Rounds: round, Outcome: OutcomeDone, Transcript: req.Messages}, nil
		case StopPauseTurn:
			req.Messages = append(req.Messages, types.Message{
				Role:    types.RoleAssistant,
				Content: resp.Content(),
			})
		default:
			return &Result{Response: resp, Rounds: round, Outcome: OutcomeOther, Transcript: req.Messages}, nil
		}
	}

	d.log.WarnContext(ctx, "completion still paused after max rounds; returning last response",
		"rounds", MaxRounds,
	)
	return &Result{Response: last, Rounds: MaxRounds, Outcome: OutcomeExhausted, Transcript: req.Messages}, nil
}

// round performs one upstream call.
func (d *Driver) round(ctx context.Context, req *Request, n int) (*Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "completion.round")
	defer span.End()
	span.SetAttributes(attribute.Int("completion.round", n))

	body, err := req.Encode()
	if err != nil {
		return nil, err
	}

	resp, err := d.upstream.Send(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("completion: round %d: %w", n, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if !resp.OK() {
		d.log.WarnContext(ctx, "upstream rejected completion request",
			"round", n,
			"status", resp.StatusCode,
		)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: resp.Body, Round: n}
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, fmt.Errorf("completion: round %d: upstream returned invalid JSON", n)
	}
	span.SetAttributes(attribute.String("completion.stop_reason", string(resp.StopReason())))
	return resp, nil
}
