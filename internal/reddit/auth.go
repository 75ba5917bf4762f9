package reddit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/httpx"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/secrets"
)

const tokenURL = "https://www.reddit.com/api/v1/access_token"

// tokenSource handles the OAuth password-grant lifecycle for one account.
// Tokens are refreshed lazily with a 60s expiry buffer; the write path is
// double-checked so concurrent callers refresh at most once.
type tokenSource struct {
	mu          sync.RWMutex
	creds       Credentials
	client      *http.Client
	accessToken string
	tokenExpiry time.Time
}

func newTokenSource(creds Credentials, client *http.Client) *tokenSource {
	return &tokenSource{creds: creds, client: client}
}

// token returns a valid access token, refreshing if necessary.
func (ts *tokenSource) token() (string, error) {
	ts.mu.RLock()
	if ts.accessToken != "" && time.Now().Add(60*time.Second).Before(ts.tokenExpiry) {
		token := ts.accessToken
		ts.mu.RUnlock()
		return token, nil
	}
	ts.mu.RUnlock()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock
	if ts.accessToken != "" && time.Now().Add(60*time.Second).Before(ts.tokenExpiry) {
		return ts.accessToken, nil
	}
	return ts.refreshLocked()
}

// refreshLocked fetches a new access token. Must be called with the write lock held.
func (ts *tokenSource) refreshLocked() (string, error) {
	if ts.creds.ClientID == "" || ts.creds.ClientSecret == "" {
		return "", fmt.Errorf("oauth credentials not initialized")
	}
	if ts.creds.Username == "" || ts.creds.Password == "" {
		return "", fmt.Errorf("account username and password are required")
	}

	data := url.Values{}
	data.Set("grant_type", "password")
	data.Set("username", ts.creds.Username)
	data.Set("password", ts.creds.Password)

	build := func() (*http.Request, error) {
		req, _ := http.NewRequest("POST", tokenURL, strings.NewReader(data.Encode()))
		req.SetBasicAuth(ts.creds.ClientID, ts.creds.ClientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", ts.creds.UserAgent)
		return req, nil
	}

	resp, err := httpx.DoWithRetryFactory(ts.client, build, nil)
	if err != nil {
		logger.WithComponent("reddit").Error("failed to request access token", "err", err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		logger.WithComponent("reddit").Error("token request failed",
			"status", resp.Status, "client_id", secrets.Mask(ts.creds.ClientID))
		return "", fmt.Errorf("token request failed: %s", resp.Status)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("received empty access token")
	}

	// Renew 60s before expiry; short-lived tokens renew at half-life
	ts.accessToken = tokenResp.AccessToken
	expiryDuration := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiryDuration > 120*time.Second {
		expiryDuration -= 60 * time.Second
	} else {
		expiryDuration = expiryDuration / 2
	}
	ts.tokenExpiry = time.Now().Add(expiryDuration)

	logger.WithComponent("reddit").Info("obtained access token",
		"username", ts.creds.Username, "expires_in", expiryDuration.String())
	return ts.accessToken, nil
}
