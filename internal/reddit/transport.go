package reddit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
)

// CostPerRequest is Reddit's commercial API pricing: 0.24 USD per 1000 calls.
const CostPerRequest = 0.00024

// ringCapacity bounds the in-memory record of recent requests.
const ringCapacity = 10000

// RequestRecord is one sanitized entry in the recent-request ring.
// Query strings are stripped so tokens never land in memory dumps.
type RequestRecord struct {
	Method  string
	Path    string
	Status  int
	Err     string
	Latency time.Duration
	At      time.Time
}

// RateSnapshot is the most recent X-Ratelimit header set observed.
type RateSnapshot struct {
	Remaining float64
	Used      float64
	ResetIn   time.Duration
	At        time.Time
}

// Stats is a counter snapshot, either lifetime or per-cycle.
type Stats struct {
	Requests        int64
	Errors          int64
	AvgResponseTime time.Duration
	CostUSD         float64
}

// CountingTransport wraps an http.RoundTripper and counts every outbound
// request. Logical call counts kept by the worker undercount because of
// pagination and retries; this transport is the authoritative counter.
type CountingTransport struct {
	base http.RoundTripper

	mu            sync.Mutex
	totalRequests int64
	totalErrors   int64
	totalLatency  time.Duration
	cycleRequests int64
	cycleErrors   int64
	cycleLatency  time.Duration

	ring     []RequestRecord
	ringHead int

	snapshot    RateSnapshot
	hasSnapshot bool
}

// NewCountingTransport wraps base (http.DefaultTransport when nil).
func NewCountingTransport(base http.RoundTripper) *CountingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &CountingTransport{base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *CountingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)

	rec := RequestRecord{
		Method:  req.Method,
		Path:    req.URL.Path,
		Latency: elapsed,
		At:      start,
	}

	t.mu.Lock()
	t.totalRequests++
	t.cycleRequests++
	t.totalLatency += elapsed
	t.cycleLatency += elapsed
	if err != nil {
		t.totalErrors++
		t.cycleErrors++
		rec.Err = err.Error()
	} else {
		rec.Status = resp.StatusCode
		t.observeHeadersLocked(resp)
	}
	t.pushLocked(rec)
	t.mu.Unlock()

	metrics.RedditRequestCost.Add(CostPerRequest)
	return resp, err
}

// observeHeadersLocked snapshots rate-limit headers when present.
func (t *CountingTransport) observeHeadersLocked(resp *http.Response) {
	remaining := resp.Header.Get("X-Ratelimit-Remaining")
	if remaining == "" {
		return
	}
	rem, err := strconv.ParseFloat(remaining, 64)
	if err != nil {
		return
	}
	used, _ := strconv.ParseFloat(resp.Header.Get("X-Ratelimit-Used"), 64)
	resetSecs, _ := strconv.ParseFloat(resp.Header.Get("X-Ratelimit-Reset"), 64)
	t.snapshot = RateSnapshot{
		Remaining: rem,
		Used:      used,
		ResetIn:   time.Duration(resetSecs * float64(time.Second)),
		At:        time.Now(),
	}
	t.hasSnapshot = true
	metrics.RedditBudgetRemaining.Set(rem)
}

func (t *CountingTransport) pushLocked(rec RequestRecord) {
	if len(t.ring) < ringCapacity {
		t.ring = append(t.ring, rec)
		return
	}
	t.ring[t.ringHead] = rec
	t.ringHead = (t.ringHead + 1) % ringCapacity
}

// Stats returns lifetime counters.
func (t *CountingTransport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return statsFrom(t.totalRequests, t.totalErrors, t.totalLatency)
}

// CycleStats returns the counters accumulated since the last ResetCycle.
func (t *CountingTransport) CycleStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return statsFrom(t.cycleRequests, t.cycleErrors, t.cycleLatency)
}

// ResetCycle returns the cycle snapshot and zeroes the per-cycle counters.
func (t *CountingTransport) ResetCycle() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := statsFrom(t.cycleRequests, t.cycleErrors, t.cycleLatency)
	t.cycleRequests = 0
	t.cycleErrors = 0
	t.cycleLatency = 0
	return s
}

// ResetAll zeroes every counter and the ring; reserved for a worker restart.
func (t *CountingTransport) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalRequests = 0
	t.totalErrors = 0
	t.totalLatency = 0
	t.cycleRequests = 0
	t.cycleErrors = 0
	t.cycleLatency = 0
	t.ring = nil
	t.ringHead = 0
}

// RecentRequests returns up to n of the most recent request records,
// oldest first.
func (t *CountingTransport) RecentRequests(n int) []RequestRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := len(t.ring)
	if n <= 0 || size == 0 {
		return nil
	}
	if n > size {
		n = size
	}
	out := make([]RequestRecord, 0, n)
	// ringHead points at the oldest entry once the ring is full
	start := 0
	if size == ringCapacity {
		start = t.ringHead
	}
	for i := size - n; i < size; i++ {
		out = append(out, t.ring[(start+i)%size])
	}
	return out
}

// Snapshot returns the latest rate-limit header observation.
func (t *CountingTransport) Snapshot() (RateSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot, t.hasSnapshot
}

func statsFrom(requests, errors int64, latency time.Duration) Stats {
	s := Stats{
		Requests: requests,
		Errors:   errors,
		CostUSD:  float64(requests) * CostPerRequest,
	}
	if requests > 0 {
		s.AvgResponseTime = latency / time.Duration(requests)
	}
	return s
}
