package secrets

import (
	"strings"
	"testing"
)

func TestValidateRequired(t *testing.T) {
	full := map[string]string{
		"R_CLIENT_ID":     "abc123",
		"R_CLIENT_SECRET": "secret123",
		"R_USERNAME":      "scraper_acct",
		"R_PASSWORD":      "pw",
	}
	if err := ValidateRequired(full); err != nil {
		t.Errorf("complete worker env should validate: %v", err)
	}

	if err := ValidateRequired(map[string]string{}); err != nil {
		t.Errorf("empty map has nothing to check: %v", err)
	}

	partial := map[string]string{
		"R_CLIENT_ID":     "abc123",
		"R_CLIENT_SECRET": "",
		"R_PASSWORD":      "",
	}
	err := ValidateRequired(partial)
	if err == nil {
		t.Fatal("blank credentials must be rejected")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if len(verr.Empty) != 2 {
		t.Errorf("empty keys = %v, want both blanks", verr.Empty)
	}
	msg := err.Error()
	if !strings.Contains(msg, "R_CLIENT_SECRET") || !strings.Contains(msg, "R_PASSWORD") {
		t.Errorf("error message should name the blank variables: %s", msg)
	}
}
