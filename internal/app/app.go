// Package app wires the scorecard proxy subsystems into a running server.
//
// New builds the page fetcher, the upstream client and the proxy handler
// from the config and mounts them on a chi router next to the health and
// metrics endpoints. Run serves until the context is cancelled and then
// shuts down gracefully.
//
// For testing, inject doubles via functional options (WithUpstream,
// WithFetcher, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/scorecard-proxy/internal/config"
	"github.com/MrWong99/scorecard-proxy/internal/health"
	"github.com/MrWong99/scorecard-proxy/internal/observe"
	"github.com/MrWong99/scorecard-proxy/internal/proxy"
	"github.com/MrWong99/scorecard-proxy/pkg/completion"
	"github.com/MrWong99/scorecard-proxy/pkg/pagefetch"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// App owns the HTTP surface of the proxy.
type App struct {
	cfg *config.Config

	upstream completion.Upstream
	fetcher  proxy.Fetcher
	metrics  *observe.Metrics
	gatherer prometheus.Gatherer
	log      *slog.Logger

	proxy  *proxy.Handler
	router chi.Router
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithUpstream injects the completion upstream instead of building an API
// client from config. It also counts as a configured credential.
func WithUpstream(u completion.Upstream) Option {
	return func(a *App) { a.upstream = u }
}

// WithFetcher injects the page fetcher instead of building one from config.
func WithFetcher(f proxy.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets the source for the metrics endpoint. Defaults to
// [prometheus.DefaultGatherer].
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// New creates an App from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.gatherer == nil {
		a.gatherer = prometheus.DefaultGatherer
	}

	if a.fetcher == nil {
		f, err := NewFetcher(cfg.Fetcher)
		if err != nil {
			return nil, fmt.Errorf("app: init fetcher: %w", err)
		}
		a.fetcher = f
	}
	if a.upstream == nil && cfg.HasCredential() {
		a.upstream = NewUpstream(cfg.Upstream)
	}
	if a.upstream == nil {
		a.log.Warn("no upstream credential configured; every proxied request will fail",
			"env", config.APIKeyEnv,
		)
	}

	a.proxy = proxy.New(a.upstream, a.fetcher,
		proxy.WithDefaults(cfg.Upstream.DefaultModel, cfg.Upstream.DefaultMaxTokens),
		proxy.WithMetrics(a.metrics),
		proxy.WithLogger(a.log),
	)
	a.router = a.routes()
	return a, nil
}

// NewFetcher builds a page fetcher from cfg.
func NewFetcher(cfg config.FetcherConfig) (*pagefetch.Client, error) {
	ex, err := pagefetch.ExtractorByName(string(cfg.Extractor))
	if err != nil {
		return nil, err
	}
	return pagefetch.New(
		pagefetch.WithExtractor(ex),
		pagefetch.WithUserAgent(cfg.UserAgent),
		pagefetch.WithAcceptLanguage(cfg.AcceptLanguage),
		pagefetch.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	), nil
}

// NewUpstream builds the completion API client from cfg.
func NewUpstream(cfg config.UpstreamConfig) *completion.Client {
	return completion.NewClient(cfg.APIKey,
		completion.WithBaseURL(cfg.BaseURL),
		completion.WithAPIVersion(cfg.APIVersion),
		completion.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
}

func (a *App) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(a.metrics))

	// Every method reaches the proxy so that it answers 405 itself.
	r.Handle(a.cfg.Server.FunctionPath, a.proxy)

	health.New(health.Credential(func() bool { return a.upstream != nil })).Register(r)

	if p := a.cfg.Telemetry.MetricsPath; p != "" {
		r.Method(http.MethodGet, p, promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Proxy returns the proxy handler, for serverless-style invocation.
func (a *App) Proxy() *proxy.Handler {
	return a.proxy
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the
// server down, waiting up to server.shutdown_timeout for in-flight requests.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", "addr", ln.Addr().String(), "function_path", a.cfg.Server.FunctionPath)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down", "timeout", a.cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("graceful shutdown did not complete", "err", err)
			_ = srv.Close()
			return fmt.Errorf("app: shutdown: %w", err)
		}
		a.log.Info("shutdown complete")
		return nil
	})
	return g.Wait()
}
