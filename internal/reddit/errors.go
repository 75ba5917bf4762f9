package reddit

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// ErrorType classifies Reddit API failures.
type ErrorType int

const (
	ErrorUnknown ErrorType = iota
	ErrorRateLimited
	ErrorNotFound
	ErrorForbidden
	ErrorServerError
	ErrorBadRequest
	ErrorUnauthorized
	ErrorPrivateSubreddit
	ErrorBannedSubreddit
	ErrorQuarantined
)

// APIError is a Reddit API error with classification context.
type APIError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	return e.Message
}

type redditErrorResponse struct {
	Message string `json:"message"`
	Error   int    `json:"error"`
	Reason  string `json:"reason"`
}

// ClassifyError determines the error type from an HTTP response.
// The response body is consumed; callers must not read it again.
func ClassifyError(resp *http.Response) *APIError {
	if resp == nil {
		return &APIError{Type: ErrorUnknown, Message: "nil response"}
	}

	var bodyText string
	var redditErr redditErrorResponse
	if resp.Body != nil {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err == nil {
			bodyText = string(bodyBytes)
			_ = json.Unmarshal(bodyBytes, &redditErr)
		}
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Type: ErrorUnknown}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		apiErr.Type = ErrorRateLimited
		apiErr.Message = "rate limited by Reddit API"
		apiErr.Retryable = true

	case http.StatusNotFound:
		apiErr.Type = ErrorNotFound
		apiErr.Message = "resource not found (404)"
		if strings.Contains(bodyText, "private") || redditErr.Reason == "private" {
			apiErr.Type = ErrorPrivateSubreddit
			apiErr.Message = "subreddit is private"
		} else if strings.Contains(bodyText, "banned") || redditErr.Reason == "banned" {
			apiErr.Type = ErrorBannedSubreddit
			apiErr.Message = "subreddit is banned"
		}

	case http.StatusForbidden:
		apiErr.Type = ErrorForbidden
		apiErr.Message = "forbidden (403)"
		if strings.Contains(bodyText, "quarantined") || redditErr.Reason == "quarantined" {
			apiErr.Type = ErrorQuarantined
			apiErr.Message = "subreddit is quarantined"
		}

	case http.StatusUnauthorized:
		apiErr.Type = ErrorUnauthorized
		apiErr.Message = "unauthorized (401) - token may be expired"
		apiErr.Retryable = true

	case http.StatusBadRequest:
		apiErr.Type = ErrorBadRequest
		apiErr.Message = "bad request (400)"

	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		apiErr.Type = ErrorServerError
		apiErr.Message = "Reddit server error (5xx)"
		apiErr.Retryable = true

	default:
		if resp.StatusCode >= 500 {
			apiErr.Type = ErrorServerError
			apiErr.Message = "server error"
			apiErr.Retryable = true
		} else if resp.StatusCode >= 400 {
			apiErr.Type = ErrorBadRequest
			apiErr.Message = "client error"
		}
	}

	if redditErr.Message != "" {
		apiErr.Message += ": " + redditErr.Message
	} else if redditErr.Reason != "" {
		apiErr.Message += ": " + redditErr.Reason
	}

	return apiErr
}

// IsRetryable reports whether the call should be retried.
func IsRetryable(err *APIError) bool {
	return err != nil && err.Retryable
}

// IsPermanent reports whether the error cannot be fixed by retrying.
func IsPermanent(err *APIError) bool {
	if err == nil {
		return false
	}
	return err.Type == ErrorNotFound ||
		err.Type == ErrorPrivateSubreddit ||
		err.Type == ErrorBannedSubreddit ||
		err.Type == ErrorQuarantined ||
		err.Type == ErrorBadRequest ||
		err.Type == ErrorForbidden
}
