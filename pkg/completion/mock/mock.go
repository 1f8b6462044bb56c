// Package mock provides a test double for the completion.Upstream interface.
//
// Queue replies in Responses; each Send call pops the next one. When the queue
// runs dry the last reply is repeated, which makes "always paused" upstreams a
// one-liner. Every request body is recorded for later inspection.
//
// Example:
//
//	up := &mock.Upstream{Responses: []*completion.Response{
//	    mock.Reply(200, `{"stop_reason":"end_turn","content":[]}`),
//	}}
//	d := completion.NewDriver(up)
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/scorecard-proxy/pkg/completion"
)

var errNoResponses = errors.New("mock: no responses queued")

// Call records a single invocation of Send.
type Call struct {
	// Ctx is the context passed to Send.
	Ctx context.Context
	// Body is a copy of the request body passed to Send.
	Body []byte
}

// Upstream is a mock implementation of completion.Upstream.
type Upstream struct {
	mu sync.Mutex

	// Responses are returned in order, one per Send. The last entry repeats
	// once the queue is exhausted. An empty queue makes Send fail.
	Responses []*completion.Response

	// Err, if non-nil, is returned from Send instead of a response.
	Err error

	// Calls records every invocation of Send in order.
	Calls []Call

	next int
}

// Send records the call and returns the next queued response.
func (u *Upstream) Send(ctx context.Context, body []byte) (*completion.Response, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Calls = append(u.Calls, Call{Ctx: ctx, Body: append([]byte(nil), body...)})
	if u.Err != nil {
		return nil, u.Err
	}
	if len(u.Responses) == 0 {
		return nil, errNoResponses
	}
	i := min(u.next, len(u.Responses)-1)
	u.next++
	r := u.Responses[i]
	return &completion.Response{StatusCode: r.StatusCode, Body: append([]byte(nil), r.Body...)}, nil
}

// CallCount returns the number of Send invocations so far. Thread-safe.
func (u *Upstream) CallCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.Calls)
}

// Reset clears recorded calls and rewinds the response queue. Thread-safe.
func (u *Upstream) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Calls = nil
	u.next = 0
}

// Reply is a shorthand for building a queued response.
func Reply(status int, body string) *completion.Response {
	return &completion.Response{StatusCode: status, Body: []byte(body)}
}

// Ensure Upstream implements completion.Upstream at compile time.
var _ completion.Upstream = (*Upstream)(nil)
