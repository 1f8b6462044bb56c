// Package proxy is the inbound side of the scorecard proxy. It accepts a
// completion request, optionally fetches the scorecard page named by
// scorecardUrl and inlines its text into every user message, then drives the
// upstream completion through paused turns and returns the final reply.
//
// The same core serves two entry points: [Handler.Handle] takes a serverless
// [Event], and [Handler.ServeHTTP] adapts net/http to it.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/scorecard-proxy/internal/observe"
	"github.com/MrWong99/scorecard-proxy/pkg/completion"
	"github.com/MrWong99/scorecard-proxy/pkg/pagefetch"
	"github.com/MrWong99/scorecard-proxy/pkg/prompt"
	"github.com/MrWong99/scorecard-proxy/pkg/types"
)

// ErrMissingCredential is returned when no upstream API key is configured.
// Its text is the message clients receive.
var ErrMissingCredential = errors.New("ANTHROPIC_KEY not set")

const (
	// DefaultModel is used when the request names no model.
	DefaultModel = "claude-haiku-4-5-20251001"

	// DefaultMaxTokens is used when the request carries no (or zero) max_tokens.
	DefaultMaxTokens = 2000
)

// localFields are consumed here and never forwarded upstream as options.
// model, max_tokens and messages are forwarded, but through [completion.Request].
var localFields = []string{"scorecardUrl", "stream", "model", "max_tokens", "messages"}

// Error kinds reported on the scorecard.proxy.errors counter.
const (
	kindMethod    = "method"
	kindConfig    = "config"
	kindDecode    = "decode"
	kindPageFetch = "pagefetch"
	kindUpstream  = "upstream"
	kindInternal  = "internal"
)

// Fetcher retrieves a page and reduces it to bounded text.
// [*pagefetch.Client] satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*pagefetch.Page, error)
}

// inbound holds the transcript. The scalar fields the proxy interprets are
// read with gjson so loosely typed values never fail decoding.
type inbound struct {
	Messages types.Transcript `json:"messages"`
}

// Handler serves proxied completion requests. It holds no per-request state
// and is safe for concurrent use.
type Handler struct {
	driver           *completion.Driver
	fetcher          Fetcher
	defaultModel     string
	defaultMaxTokens int
	metrics          *observe.Metrics
	log              *slog.Logger
}

// Option configures a [Handler].
type Option func(*Handler)

// WithDefaults overrides the model and max_tokens used when a request omits
// them. Empty or non-positive values keep the built-in defaults.
func WithDefaults(model string, maxTokens int) Option {
	return func(h *Handler) {
		if model != "" {
			h.defaultModel = model
		}
		if maxTokens > 0 {
			h.defaultMaxTokens = maxTokens
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithLogger sets the base logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// New creates a Handler. A nil f falls back to a default [pagefetch.Client].
// A nil up means no credential is configured: every request is then answered
// with a 500 carrying [ErrMissingCredential] and no network call is made.
func New(up completion.Upstream, f Fetcher, opts ...Option) *Handler {
	h := &Handler{
		fetcher:          f,
		defaultModel:     DefaultModel,
		defaultMaxTokens: DefaultMaxTokens,
		log:              slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	if h.fetcher == nil {
		h.fetcher = pagefetch.New()
	}
	if up != nil {
		h.driver = completion.NewDriver(
			instrumentedUpstream{next: up, metrics: h.metrics},
			completion.WithLogger(h.log),
		)
	}
	return h
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ev, err := EventFromRequest(w, r)
	if err != nil {
		h.metrics.RecordProxyError(r.Context(), kindDecode)
		errorResponse(http.StatusInternalServerError, err.Error()).Write(w)
		return
	}
	h.Handle(r.Context(), ev).Write(w)
}

// Handle processes one invocation and always returns exactly one response.
func (h *Handler) Handle(ctx context.Context, ev Event) Response {
	ctx, span := observe.StartSpan(ctx, "proxy.Handle")
	defer span.End()

	h.metrics.ActiveRequests.Add(ctx, 1)
	defer h.metrics.ActiveRequests.Add(ctx, -1)

	resp, kind, err := h.handle(ctx, ev)
	if err != nil {
		observe.FailSpan(span, err)
		h.metrics.RecordProxyError(ctx, kind)
		observe.Logger(ctx).WarnContext(ctx, "proxy request failed",
			"kind", kind,
			"status", resp.StatusCode,
			"err", err,
		)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp
}

func (h *Handler) handle(ctx context.Context, ev Event) (Response, string, error) {
	if ev.HTTPMethod != http.MethodPost {
		return Response{StatusCode: http.StatusMethodNotAllowed}, kindMethod, fmt.Errorf("proxy: method %q not allowed", ev.HTTPMethod)
	}
	if h.driver == nil {
		return errorResponse(http.StatusInternalServerError, ErrMissingCredential.Error()), kindConfig, ErrMissingCredential
	}

	body, err := ev.RawBody()
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err.Error()), kindDecode, err
	}
	req, pageURL, err := h.decode(body)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err.Error()), kindDecode, err
	}

	if pageURL != "" {
		page, err := h.fetchPage(ctx, pageURL)
		if err != nil {
			var fe *pagefetch.FetchError
			if errors.As(err, &fe) {
				msg := fmt.Sprintf("Could not fetch scorecard page: %d", fe.StatusCode)
				return errorResponse(http.StatusBadGateway, msg), kindPageFetch, err
			}
			return errorResponse(http.StatusInternalServerError, err.Error()), kindPageFetch, err
		}
		req.Messages = prompt.Augment(req.Messages, page.Text)
	}

	res, err := h.driver.Drive(ctx, req)
	if err != nil {
		var ue *completion.UpstreamError
		if errors.As(err, &ue) {
			return Response{
				StatusCode: ue.StatusCode,
				Headers:    jsonHeaders(),
				Body:       string(ue.Body),
			}, kindUpstream, err
		}
		return errorResponse(http.StatusInternalServerError, err.Error()), kindInternal, err
	}

	h.metrics.RecordRounds(ctx, string(res.Outcome), res.Rounds)
	return Response{
		StatusCode: http.StatusOK,
		Headers:    jsonHeaders(),
		Body:       string(res.Response.Body),
	}, "", nil
}

// decode splits the inbound body into the completion request and the
// optional page URL. Every field the proxy does not interpret is kept as a
// passthrough option.
func (h *Handler) decode(body []byte) (completion.Request, string, error) {
	var in inbound
	if err := json.Unmarshal(body, &in); err != nil {
		return completion.Request{}, "", fmt.Errorf("proxy: invalid request body: %w", err)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return completion.Request{}, "", errors.New("proxy: request body must be a JSON object")
	}

	opts := body
	for _, field := range localFields {
		var err error
		if opts, err = sjson.DeleteBytes(opts, field); err != nil {
			return completion.Request{}, "", fmt.Errorf("proxy: stripping %s: %w", field, err)
		}
	}

	req := completion.Request{
		Model:     doc.Get("model").String(),
		MaxTokens: int(doc.Get("max_tokens").Int()),
		Messages:  in.Messages,
		Options:   opts,
	}
	if req.Model == "" {
		req.Model = h.defaultModel
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = h.defaultMaxTokens
	}
	return req, doc.Get("scorecardUrl").String(), nil
}

func (h *Handler) fetchPage(ctx context.Context, url string) (*pagefetch.Page, error) {
	start := time.Now()
	page, err := h.fetcher.Fetch(ctx, url)
	elapsed := time.Since(start).Seconds()

	status := "ok"
	var fe *pagefetch.FetchError
	switch {
	case errors.As(err, &fe):
		status = statusClass(fe.StatusCode)
	case err != nil:
		status = "error"
	}
	h.metrics.RecordPageFetch(ctx, status, elapsed)
	if err != nil {
		return nil, err
	}

	observe.Logger(ctx).DebugContext(ctx, "scorecard page fetched",
		"url", url,
		"chars", utf8.RuneCountInString(page.Text),
	)
	return page, nil
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

// errorResponse renders {"error":{"message":msg}}.
func errorResponse(status int, msg string) Response {
	body, _ := sjson.SetBytes([]byte(`{}`), "error.message", msg)
	return Response{StatusCode: status, Headers: jsonHeaders(), Body: string(body)}
}
