package errorreporting

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

// Secrets this system actually handles: the Reddit credentials the
// supervisor injects into worker environments, the Mongo connection
// string, and the Azure OpenAI key. Scrubbed from every outgoing event.
var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	// worker env assignments (error output sometimes echoes the spawn env)
	{regexp.MustCompile(`(R_CLIENT_SECRET|R_PASSWORD|AZURE_OPENAI_API_KEY|SENTRY_DSN)=\S+`), "$1=[REDACTED]"},
	// Mongo URIs carry the database password in the userinfo part
	{regexp.MustCompile(`mongodb(\+srv)?://\S+`), "mongodb$1://[REDACTED]"},
	// Reddit OAuth bearer tokens
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_.-]{20,}`), "[REDACTED]"},
	// key/secret/password assignments in free-form log lines
	{regexp.MustCompile(`(?i)(api[_-]?key|client[_-]?secret|password|token)["\s:=]+[a-zA-Z0-9_\-./+]{8,}`), "$1=[REDACTED]"},
	// email addresses (moderator contacts can appear in API error bodies)
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[REDACTED]"},
}

// Init initializes Sentry error reporting
func Init(environment string) error {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		// Sentry is not configured, return without error
		return nil
	}

	sampleRate := 1.0
	if os.Getenv("ENV") == "production" {
		sampleRate = 0.1 // Sample 10% in production
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          getRelease(),
		TracesSampleRate: sampleRate,
		BeforeSend:       beforeSend,
		AttachStacktrace: true,
	})

	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	return nil
}

// getRelease returns the release version from environment or default
func getRelease() string {
	if release := os.Getenv("SENTRY_RELEASE"); release != "" {
		return release
	}
	if version := os.Getenv("SERVICE_VERSION"); version != "" {
		return version
	}
	return "dev"
}

// beforeSend scrubs credentials before an event leaves the process.
func beforeSend(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event.Exception != nil {
		for i := range event.Exception {
			event.Exception[i].Value = scrubSecrets(event.Exception[i].Value)
		}
	}

	if event.Message != "" {
		event.Message = scrubSecrets(event.Message)
	}

	if event.Extra != nil {
		for key, value := range event.Extra {
			if str, ok := value.(string); ok {
				event.Extra[key] = scrubSecrets(str)
			}
		}
	}

	if event.Request != nil {
		if event.Request.Headers != nil {
			delete(event.Request.Headers, "Authorization")
			delete(event.Request.Headers, "Cookie")
			delete(event.Request.Headers, "X-Api-Key")
		}
		event.Request.QueryString = ""
	}

	return event
}

func scrubSecrets(text string) string {
	result := text
	for _, p := range secretPatterns {
		result = p.re.ReplaceAllString(result, p.repl)
	}
	return result
}

// CaptureError captures an error and sends it to Sentry
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// Flush waits for all events to be sent to Sentry
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// ScrubPII exposes the secret scrubbing for callers that report raw
// text, like the panic-recovery middleware capturing stack dumps.
func ScrubPII(text string) string {
	return scrubSecrets(text)
}

// IsSentryEnabled returns true if Sentry is configured
func IsSentryEnabled() bool {
	return os.Getenv("SENTRY_DSN") != ""
}
