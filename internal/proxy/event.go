package proxy

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes caps inbound bodies read by [Handler.ServeHTTP]. It matches
// the synchronous payload limit of the serverless platforms this handler is
// deployed to.
const maxBodyBytes = 6 << 20

// Event is a serverless function invocation: the HTTP request as handed over
// by the platform.
type Event struct {
	HTTPMethod      string            `json:"httpMethod"`
	Path            string            `json:"path,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded,omitempty"`
}

// Response is the function's answer, returned to the platform.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
}

// RawBody returns the event body, decoding base64 when the platform flagged it.
func (e Event) RawBody() ([]byte, error) {
	if !e.IsBase64Encoded {
		return []byte(e.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(e.Body)
	if err != nil {
		return nil, fmt.Errorf("proxy: decoding base64 body: %w", err)
	}
	return b, nil
}

// EventFromRequest converts an HTTP request into an [Event]. Multi-valued
// headers are joined with ", ". The body is read up to maxBodyBytes.
func EventFromRequest(w http.ResponseWriter, r *http.Request) (Event, error) {
	ev := Event{
		HTTPMethod: r.Method,
		Path:       r.URL.Path,
		Headers:    make(map[string]string, len(r.Header)),
	}
	for k, v := range r.Header {
		ev.Headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	if r.Body == nil {
		return ev, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return ev, fmt.Errorf("proxy: reading request body: %w", err)
	}
	ev.Body = string(body)
	return ev, nil
}

// Write copies resp onto w.
func (resp Response) Write(w http.ResponseWriter) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		io.WriteString(w, resp.Body)
	}
}
