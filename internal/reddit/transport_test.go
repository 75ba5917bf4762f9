package reddit

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCountingTransportCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := NewCountingTransport(nil)
	client := &http.Client{Transport: transport}

	for i := 0; i < 5; i++ {
		resp, err := client.Get(srv.URL + "/r/golang/new.json")
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
	}

	stats := transport.Stats()
	if stats.Requests != 5 {
		t.Errorf("Requests = %d, want 5", stats.Requests)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
	wantCost := 5 * CostPerRequest
	if math.Abs(stats.CostUSD-wantCost) > 1e-12 {
		t.Errorf("CostUSD = %v, want %v", stats.CostUSD, wantCost)
	}
}

func TestCountingTransportRingStripsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := NewCountingTransport(nil)
	client := &http.Client{Transport: transport}

	resp, err := client.Get(srv.URL + "/r/golang/new.json?limit=100&after=t3_secret")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	recent := transport.RecentRequests(10)
	if len(recent) != 1 {
		t.Fatalf("RecentRequests = %d records, want 1", len(recent))
	}
	rec := recent[0]
	if rec.Path != "/r/golang/new.json" {
		t.Errorf("Path = %q, want query stripped", rec.Path)
	}
	if rec.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", rec.Status)
	}
}

func TestCountingTransportResetCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := NewCountingTransport(nil)
	client := &http.Client{Transport: transport}

	do := func(n int) {
		for i := 0; i < n; i++ {
			resp, err := client.Get(srv.URL + "/about.json")
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
		}
	}

	do(3)
	cycle := transport.ResetCycle()
	if cycle.Requests != 3 {
		t.Errorf("first cycle Requests = %d, want 3", cycle.Requests)
	}

	do(2)
	cycle = transport.ResetCycle()
	if cycle.Requests != 2 {
		t.Errorf("second cycle Requests = %d, want 2", cycle.Requests)
	}

	// lifetime counters survive cycle resets
	if total := transport.Stats(); total.Requests != 5 {
		t.Errorf("lifetime Requests = %d, want 5", total.Requests)
	}
}

func TestCountingTransportSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "42.0")
		w.Header().Set("X-Ratelimit-Used", "58")
		w.Header().Set("X-Ratelimit-Reset", "120")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := NewCountingTransport(nil)
	client := &http.Client{Transport: transport}

	if _, ok := transport.Snapshot(); ok {
		t.Fatal("snapshot should be absent before any request")
	}

	resp, err := client.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	snap, ok := transport.Snapshot()
	if !ok {
		t.Fatal("snapshot should be present after a response with headers")
	}
	if snap.Remaining != 42 {
		t.Errorf("Remaining = %v, want 42", snap.Remaining)
	}
	if snap.Used != 58 {
		t.Errorf("Used = %v, want 58", snap.Used)
	}
	if snap.ResetIn != 120*time.Second {
		t.Errorf("ResetIn = %v, want 120s", snap.ResetIn)
	}
}
