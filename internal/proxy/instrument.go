package proxy

import (
	"context"
	"strconv"
	"time"

	"github.com/MrWong99/scorecard-proxy/internal/observe"
	"github.com/MrWong99/scorecard-proxy/pkg/completion"
)

// instrumentedUpstream records latency and status of every completion call.
type instrumentedUpstream struct {
	next    completion.Upstream
	metrics *observe.Metrics
}

func (u instrumentedUpstream) Send(ctx context.Context, body []byte) (*completion.Response, error) {
	start := time.Now()
	resp, err := u.next.Send(ctx, body)
	status := "error"
	if err == nil {
		status = statusClass(resp.StatusCode)
	}
	u.metrics.RecordUpstream(ctx, status, time.Since(start).Seconds())
	return resp, err
}

// statusClass maps 404 to "4xx".
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
