package middleware

import (
	"fmt"
	"net/http"
	"strings"
)

// MaxRequestBodySize caps control-plane bodies at 1MB. The largest
// legitimate payload is a flexible start with 30 subreddit names plus
// credentials, well under a kilobyte.
const MaxRequestBodySize = 1 * 1024 * 1024

// ValidateRequestBody returns a middleware that bounds request body size.
func ValidateRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" || r.Method == "PATCH" {
			r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// SanitizeInput provides input sanitization utilities.
type SanitizeInput struct{}

// ValidateSubredditName validates a subreddit name against Reddit's
// naming rules before it reaches the supervisor or a Mongo query.
func (s *SanitizeInput) ValidateSubredditName(name string) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return fmt.Errorf("subreddit name cannot be empty")
	}

	if len(name) > 21 {
		return fmt.Errorf("subreddit name too long (max 21 characters)")
	}

	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return fmt.Errorf("subreddit name contains invalid characters")
		}
	}

	return nil
}
