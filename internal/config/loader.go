package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path on top of [Defaults],
// applies the process environment and validates the result.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Defaults()
		ApplyEnv(cfg, os.LookupEnv)
		return cfg, Validate(cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Defaults] and
// validates the result. The environment is not consulted, which keeps tests
// hermetic.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment values onto cfg. lookup is usually
// [os.LookupEnv]. It is called once at process start; the handler never reads
// the environment itself.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(APIKeyEnv); ok && v != "" {
		cfg.Upstream.APIKey = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// A missing API key is not a validation error: the proxy still starts and
// answers every request with a configuration error.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !strings.HasPrefix(cfg.Server.FunctionPath, "/") {
		errs = append(errs, fmt.Errorf("server.function_path %q must start with /", cfg.Server.FunctionPath))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}

	// Upstream
	if u, err := url.Parse(cfg.Upstream.BaseURL); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url %q must be an absolute http(s) URL", cfg.Upstream.BaseURL))
	}
	if cfg.Upstream.APIVersion == "" {
		errs = append(errs, fmt.Errorf("upstream.api_version is required"))
	}
	if cfg.Upstream.DefaultModel == "" {
		errs = append(errs, fmt.Errorf("upstream.default_model is required"))
	}
	if cfg.Upstream.DefaultMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("upstream.default_max_tokens must be positive, got %d", cfg.Upstream.DefaultMaxTokens))
	}
	if cfg.Upstream.Timeout < 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must not be negative"))
	}

	// Fetcher
	if !cfg.Fetcher.Extractor.IsValid() {
		errs = append(errs, fmt.Errorf("fetcher.extractor %q is invalid; valid values: regex, tokenizer", cfg.Fetcher.Extractor))
	}
	if cfg.Fetcher.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fetcher.timeout must not be negative"))
	}

	// Telemetry
	if p := cfg.Telemetry.MetricsPath; p != "" {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", p))
		} else if p == cfg.Server.FunctionPath {
			errs = append(errs, fmt.Errorf("telemetry.metrics_path collides with server.function_path %q", p))
		}
	}

	return errors.Join(errs...)
}
