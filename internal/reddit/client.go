package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/httpx"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
)

const defaultBaseURL = "https://oauth.reddit.com"

// Client is an authenticated Reddit API client for one account. All traffic
// runs through a CountingTransport, so pagination and retries are counted.
type Client struct {
	baseURL    string
	httpClient *http.Client
	transport  *CountingTransport
	governor   *Governor
	tokens     *tokenSource
	userAgent  string
}

// NewClient builds a client for the given account credentials.
func NewClient(creds Credentials, cfg *config.Config) *Client {
	if creds.UserAgent == "" {
		creds.UserAgent = cfg.UserAgent
	}
	transport := NewCountingTransport(nil)
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout, Transport: transport}
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
		transport:  transport,
		governor:   NewGovernor(transport, cfg.CrawlerRPS, cfg.CrawlerBurstSize),
		tokens:     newTokenSource(creds, &http.Client{Timeout: cfg.HTTPTimeout}),
		userAgent:  creds.UserAgent,
	}
}

// Transport exposes the counting transport for cycle accounting.
func (c *Client) Transport() *CountingTransport { return c.transport }

// SetBaseURLForTest points the client at a fake API host; for tests only.
func (c *Client) SetBaseURLForTest(u string) { c.baseURL = u }

// SetTokenForTest seeds a non-expiring access token; for tests only.
func (c *Client) SetTokenForTest(token string) {
	c.tokens.mu.Lock()
	c.tokens.accessToken = token
	c.tokens.tokenExpiry = time.Now().Add(24 * time.Hour)
	c.tokens.mu.Unlock()
}

// Governor exposes the budget governor for phase-level checks.
func (c *Client) Governor() *Governor { return c.governor }

// get issues an authenticated GET against the API host, paced by the
// governor's limiter, with light retries honoring Retry-After.
func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	token, err := c.tokens.token()
	if err != nil {
		return nil, err
	}
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", c.userAgent)
		return req, nil
	}
	pre := func(ctx context.Context, attempt int) error { return c.governor.Wait(ctx) }
	resp, err := httpx.DoWithRetryFactory(c.httpClient, build, pre)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		apiErr := ClassifyError(resp)
		resp.Body.Close()
		return nil, apiErr
	}
	return resp, nil
}

// getJSON decodes a GET response into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListPosts fetches up to limit posts for one sort method, paginating
// 100 per request. timeFilter applies only to top and controversial.
func (c *Client) ListPosts(ctx context.Context, subreddit, sort, timeFilter string, limit int) ([]Post, error) {
	subreddit = strings.ToLower(strings.TrimSpace(subreddit))
	if limit <= 0 {
		limit = 100
	}
	var posts []Post
	after := ""
	for len(posts) < limit {
		pageSize := limit - len(posts)
		if pageSize > 100 {
			pageSize = 100
		}
		q := url.Values{}
		q.Set("limit", fmt.Sprintf("%d", pageSize))
		q.Set("raw_json", "1")
		if after != "" {
			q.Set("after", after)
		}
		if (sort == "top" || sort == "controversial") && timeFilter != "" {
			q.Set("t", timeFilter)
		}
		var envelope listingEnvelope
		if err := c.getJSON(ctx, fmt.Sprintf("/r/%s/%s", subreddit, sort), q, &envelope); err != nil {
			return posts, err
		}
		for _, child := range envelope.Data.Children {
			if child.Kind != "t3" {
				continue
			}
			p := child.Data
			p.Subreddit = subreddit
			posts = append(posts, p)
		}
		if envelope.Data.After == "" || len(envelope.Data.Children) == 0 {
			break
		}
		after = envelope.Data.After
	}
	logger.WithComponent("reddit").Debug("fetched listing",
		"subreddit", subreddit, "sort", sort, "posts", len(posts))
	return posts, nil
}

// About fetches community descriptors.
func (c *Client) About(ctx context.Context, subreddit string) (*About, error) {
	var envelope aboutEnvelope
	if err := c.getJSON(ctx, fmt.Sprintf("/r/%s/about", strings.ToLower(subreddit)), nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// Rules fetches the community's posted rules.
func (c *Client) Rules(ctx context.Context, subreddit string) ([]Rule, error) {
	var envelope rulesEnvelope
	if err := c.getJSON(ctx, fmt.Sprintf("/r/%s/about/rules", strings.ToLower(subreddit)), nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Rules, nil
}

// PostRequirements fetches the community's posting guidelines text.
// Missing requirements are not an error; an empty string is returned.
func (c *Client) PostRequirements(ctx context.Context, subreddit string) (string, error) {
	var reqs struct {
		GuidelinesText string `json:"guidelines_text"`
	}
	err := c.getJSON(ctx, fmt.Sprintf("/api/v1/%s/post_requirements", strings.ToLower(subreddit)), nil, &reqs)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && IsPermanent(apiErr) {
			return "", nil
		}
		return "", err
	}
	return reqs.GuidelinesText, nil
}

// SearchSubreddits runs Reddit's subreddit search.
func (c *Client) SearchSubreddits(ctx context.Context, query string, limit int) ([]About, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("raw_json", "1")
	var envelope subredditListingEnvelope
	if err := c.getJSON(ctx, "/subreddits/search", q, &envelope); err != nil {
		return nil, err
	}
	out := make([]About, 0, len(envelope.Data.Children))
	for _, child := range envelope.Data.Children {
		out = append(out, child.Data)
	}
	return out, nil
}
