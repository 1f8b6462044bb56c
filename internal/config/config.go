// Package config provides the configuration schema and loader for the
// scorecard proxy.
package config

import (
	"time"

	"github.com/MrWong99/scorecard-proxy/pkg/completion"
	"github.com/MrWong99/scorecard-proxy/pkg/pagefetch"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Extractor selects the HTML-to-text reducer used by the page fetcher.
type Extractor string

const (
	// ExtractorRegex is the cheap regex-based reducer.
	ExtractorRegex Extractor = "regex"

	// ExtractorTokenizer walks the document with an HTML tokenizer.
	ExtractorTokenizer Extractor = "tokenizer"
)

// IsValid reports whether e names a built-in extractor.
func (e Extractor) IsValid() bool {
	return e == ExtractorRegex || e == ExtractorTokenizer
}

// APIKeyEnv is the environment variable holding the upstream credential.
const APIKeyEnv = "ANTHROPIC_KEY"

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8888").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// FunctionPath is the route the proxy handler is mounted on.
	FunctionPath string `yaml:"function_path"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig configures the completion endpoint.
type UpstreamConfig struct {
	// BaseURL is the API origin; "/v1/messages" is appended.
	BaseURL string `yaml:"base_url"`

	// APIVersion is sent as the anthropic-version header.
	APIVersion string `yaml:"api_version"`

	// APIKey is the credential. The ANTHROPIC_KEY environment variable
	// overrides it. Empty means every proxied request fails with 500.
	APIKey string `yaml:"api_key"`

	// DefaultModel is used when a request carries no model.
	DefaultModel string `yaml:"default_model"`

	// DefaultMaxTokens is used when a request carries no (or zero) max_tokens.
	DefaultMaxTokens int `yaml:"default_max_tokens"`

	// Timeout bounds each upstream call. Zero leaves it to the transport.
	Timeout time.Duration `yaml:"timeout"`
}

// FetcherConfig configures the scorecard page fetcher.
type FetcherConfig struct {
	UserAgent      string    `yaml:"user_agent"`
	AcceptLanguage string    `yaml:"accept_language"`
	Extractor      Extractor `yaml:"extractor"`

	// Timeout bounds the page fetch. Zero leaves it to the transport.
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// ServiceName is reported in telemetry resources.
	ServiceName string `yaml:"service_name"`

	// MetricsPath is where the Prometheus scrape endpoint is mounted.
	// Empty disables it.
	MetricsPath string `yaml:"metrics_path"`
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8888",
			LogLevel:        LogInfo,
			FunctionPath:    "/.netlify/functions/anthropic",
			ShutdownTimeout: 15 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:          completion.DefaultBaseURL,
			APIVersion:       completion.DefaultAPIVersion,
			DefaultModel:     "claude-haiku-4-5-20251001",
			DefaultMaxTokens: 2000,
		},
		Fetcher: FetcherConfig{
			UserAgent:      pagefetch.DefaultUserAgent,
			AcceptLanguage: pagefetch.DefaultAcceptLanguage,
			Extractor:      ExtractorRegex,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "scorecard-proxy",
			MetricsPath: "/metrics",
		},
	}
}

// HasCredential reports whether an upstream API key is configured.
func (c *Config) HasCredential() bool {
	return c.Upstream.APIKey != ""
}
