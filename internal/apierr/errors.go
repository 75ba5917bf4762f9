package apierr

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
)

// ErrorCode classifies an API error for clients and dashboards.
type ErrorCode string

const (
	// VALIDATION_ - request validation errors
	ErrValidationInvalidJSON  ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrValidationInvalidValue ErrorCode = "VALIDATION_INVALID_VALUE"

	// SCRAPER_ - fleet control errors
	ErrScraperNotFound    ErrorCode = "SCRAPER_NOT_FOUND"
	ErrScraperSpawnFailed ErrorCode = "SCRAPER_SPAWN_FAILED"
	ErrScraperTooMany     ErrorCode = "SCRAPER_TOO_MANY_SUBREDDITS"

	// ACCOUNT_ - credential vault errors
	ErrAccountNotFound ErrorCode = "ACCOUNT_NOT_FOUND"

	// SEARCH_ - vector search and discovery errors
	ErrSearchUnavailable ErrorCode = "SEARCH_UNAVAILABLE"
	ErrSearchFailed      ErrorCode = "SEARCH_FAILED"

	// SYSTEM_ - system and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemDatabase    ErrorCode = "SYSTEM_DATABASE"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"

	// RATE_LIMIT_ - control-plane rate limiting
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error is a structured API error. The wire shape is a bare
// {"detail": ..., "code": ..., "request_id": ...} object.
type Error struct {
	Detail    string    `json:"detail"`
	Code      ErrorCode `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	status    int
}

// New creates an API error with the given code, detail, and HTTP status.
func New(code ErrorCode, detail string, status int) *Error {
	return &Error{Code: code, Detail: detail, status: status}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Detail
}

// Status returns the HTTP status code.
func (e *Error) Status() int {
	return e.status
}

// WriteError writes the error as JSON.
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(err)
}

// Helper constructors for common errors.

func BadRequest(detail string) *Error {
	return New(ErrValidationInvalidValue, detail, http.StatusBadRequest)
}

func InvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Invalid JSON request body", http.StatusBadRequest)
}

func MissingField(field string) *Error {
	return New(ErrValidationMissingField, "Missing required field: "+field, http.StatusBadRequest)
}

func ScraperNotFound(name string) *Error {
	return New(ErrScraperNotFound, "Scraper not found: "+name, http.StatusNotFound)
}

func ScraperSpawnFailed(detail string) *Error {
	if detail == "" {
		detail = "Failed to start scraper"
	}
	return New(ErrScraperSpawnFailed, detail, http.StatusInternalServerError)
}

func TooManySubreddits(max int) *Error {
	return New(ErrScraperTooMany, "Too many subreddits for one scraper (max "+strconv.Itoa(max)+")", http.StatusBadRequest)
}

func AccountNotFound(name string) *Error {
	return New(ErrAccountNotFound, "Account not found: "+name, http.StatusNotFound)
}

func SearchUnavailable(detail string) *Error {
	if detail == "" {
		detail = "Search is not configured"
	}
	return New(ErrSearchUnavailable, detail, http.StatusServiceUnavailable)
}

func SearchFailed(detail string) *Error {
	if detail == "" {
		detail = "Search failed"
	}
	return New(ErrSearchFailed, detail, http.StatusInternalServerError)
}

func Internal(detail string) *Error {
	if detail == "" {
		detail = "Internal server error"
	}
	return New(ErrSystemInternal, detail, http.StatusInternalServerError)
}

func Database(detail string) *Error {
	if detail == "" {
		detail = "Database error"
	}
	return New(ErrSystemDatabase, detail, http.StatusInternalServerError)
}

func Unavailable(detail string) *Error {
	if detail == "" {
		detail = "Service unavailable"
	}
	return New(ErrSystemUnavailable, detail, http.StatusServiceUnavailable)
}

func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// GetRequestID extracts the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes the error with the request ID from context.
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err.RequestID = reqID
	}
	WriteError(w, err)
}
