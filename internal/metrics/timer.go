package metrics

import (
	"strconv"
	"time"
)

// APITimer times one control-plane request.
type APITimer struct {
	endpoint string
	method   string
	start    time.Time
}

// NewAPITimer starts timing a request for the given route template.
func NewAPITimer(endpoint, method string) *APITimer {
	return &APITimer{endpoint: endpoint, method: method, start: time.Now()}
}

// Done records duration and count with the response status.
func (t *APITimer) Done(status int) {
	code := strconv.Itoa(status)
	APIRequestDuration.WithLabelValues(t.endpoint, t.method, code).Observe(time.Since(t.start).Seconds())
	APIRequestsTotal.WithLabelValues(t.endpoint, t.method, code).Inc()
}
