package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateRequestBodyCapsPost(t *testing.T) {
	var readErr error
	handler := ValidateRequestBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	// GET passes through unlimited
	req := httptest.NewRequest("GET", "/scrapers", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("GET: got %d", rr.Code)
	}

	// a normal start payload stays well under the cap
	body := strings.NewReader(`{"subreddits":["golang"],"client_id":"id"}`)
	req = httptest.NewRequest("POST", "/scrapers/start-flexible", body)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if readErr != nil {
		t.Errorf("small body read: %v", readErr)
	}

	// anything past 1MB is cut off mid-read
	huge := strings.NewReader(strings.Repeat("x", MaxRequestBodySize+1))
	req = httptest.NewRequest("POST", "/scrapers/start-flexible", huge)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if readErr == nil {
		t.Error("oversized body should error before EOF")
	}
}

func TestValidateSubredditName(t *testing.T) {
	sanitizer := &SanitizeInput{}

	valid := []string{"AskReddit", "golang", "test123", "my_subreddit", "a"}
	for _, name := range valid {
		if err := sanitizer.ValidateSubredditName(name); err != nil {
			t.Errorf("ValidateSubredditName(%q): %v", name, err)
		}
	}

	invalid := []string{
		"",
		"   ",
		"subreddit with spaces",
		"sub/reddit",
		"verylongsubredditname123",
		"sub-reddit",
		"r/golang",
	}
	for _, name := range invalid {
		if err := sanitizer.ValidateSubredditName(name); err == nil {
			t.Errorf("ValidateSubredditName(%q) should be rejected", name)
		}
	}
}
