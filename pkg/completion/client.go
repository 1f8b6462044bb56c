package completion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultBaseURL is the Anthropic API origin.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the anthropic-version header value.
	DefaultAPIVersion = "2023-06-01"

	messagesPath = "/v1/messages"
)

// Upstream sends one encoded request body to the completion endpoint and
// returns the raw reply. A non-2xx status is not an error at this layer;
// only transport failures are.
type Upstream interface {
	Send(ctx context.Context, body []byte) (*Response, error)
}

// Client is the HTTP [Upstream] for the Anthropic Messages API.
// It is safe for concurrent use.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	apiVersion string
}

var _ Upstream = (*Client)(nil)

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for upstream calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBaseURL overrides [DefaultBaseURL].
func WithBaseURL(u string) ClientOption {
	return func(cl *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			cl.baseURL = u
		}
	}
}

// WithAPIVersion overrides [DefaultAPIVersion].
func WithAPIVersion(v string) ClientOption {
	return func(cl *Client) {
		if v != "" {
			cl.apiVersion = v
		}
	}
}

// NewClient creates a Client authenticating with apiKey.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		http:       http.DefaultClient,
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		apiVersion: DefaultAPIVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the full messages URL.
func (c *Client) Endpoint() string {
	return c.baseURL + messagesPath
}

// Send implements [Upstream].
func (c *Client) Send(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("completion: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion: sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("completion: reading response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
