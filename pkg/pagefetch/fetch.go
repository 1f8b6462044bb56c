// Package pagefetch retrieves a remote web page and reduces it to bounded
// plain text suitable for inlining into an LLM prompt.
//
// A [Client] issues exactly one GET per call with browser-like headers, fails
// with a [*FetchError] on a non-success status and never retries or caches.
// The text reduction is pluggable through [Extractor]; the default
// [RegexExtractor] is a cheap approximation, not a full HTML parser.
package pagefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MaxChars is the maximum number of characters (Unicode code points) of
// reduced text returned by [Client.Fetch]. Anything beyond is dropped.
const MaxChars = 30_000

const (
	// DefaultUserAgent mimics a desktop Chrome so origins serve the regular page.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultAcceptLanguage asks for the English variant of localised pages.
	DefaultAcceptLanguage = "en-US,en;q=0.9"

	acceptHTML = "text/html,application/xhtml+xml"
)

const tracerName = "github.com/MrWong99/scorecard-proxy/pkg/pagefetch"

// FetchError reports that the origin answered with a non-success status.
type FetchError struct {
	URL        string
	StatusCode int
}

// Error implements error.
func (e *FetchError) Error() string {
	return fmt.Sprintf("pagefetch: %s returned status %d", e.URL, e.StatusCode)
}

// Page is the reduced text of one fetched document.
type Page struct {
	// URL is the address that was requested.
	URL string

	// Text is the plain-text body, at most [MaxChars] characters.
	Text string
}

// Client fetches pages. The zero value is not usable; construct with [New].
// A Client is safe for concurrent use.
type Client struct {
	http           *http.Client
	extractor      Extractor
	userAgent      string
	acceptLanguage string
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (for tests or custom transports).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithExtractor replaces the HTML-to-text reducer.
func WithExtractor(e Extractor) Option {
	return func(cl *Client) {
		if e != nil {
			cl.extractor = e
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// WithAcceptLanguage overrides the Accept-Language header.
func WithAcceptLanguage(lang string) Option {
	return func(cl *Client) {
		if lang != "" {
			cl.acceptLanguage = lang
		}
	}
}

// New creates a Client. Without options it uses [http.DefaultClient] and
// [RegexExtractor].
func New(opts ...Option) *Client {
	c := &Client{
		http:           http.DefaultClient,
		extractor:      RegexExtractor{},
		userAgent:      DefaultUserAgent,
		acceptLanguage: DefaultAcceptLanguage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves rawURL and returns its reduced text. A non-2xx answer yields
// a [*FetchError]; transport and decoding failures are returned wrapped.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pagefetch.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url.full", rawURL))

	page, err := c.fetch(ctx, rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("pagefetch.chars", utf8.RuneCountInString(page.Text)))
	return page, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pagefetch: creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHTML)
	req.Header.Set("Accept-Language", c.acceptLanguage)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagefetch: fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pagefetch: reading %s: %w", rawURL, err)
	}

	text, err := c.extractor.Extract(body)
	if err != nil {
		return nil, err
	}
	return &Page{URL: rawURL, Text: Truncate(text, MaxChars)}, nil
}

// Truncate returns the first n characters of s. Invalid UTF-8 bytes count as
// one character each.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
