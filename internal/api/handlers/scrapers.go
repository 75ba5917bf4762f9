package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/onnwee/reddit-scraper-fleet/internal/apierr"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/middleware"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
	"github.com/onnwee/reddit-scraper-fleet/internal/utils"
)

const defaultLogLines = 100

// startFlexibleRequest is the create-or-update payload. Either subreddit or
// subreddits names the target; credentials come inline or from the vault.
type startFlexibleRequest struct {
	Subreddit      string   `json:"subreddit"`
	Subreddits     []string `json:"subreddits"`
	ScraperType    string   `json:"scraper_type"`
	AutoRestart    *bool    `json:"auto_restart"`
	PostsLimit     int      `json:"posts_limit"`
	ScrapeInterval int      `json:"scrape_interval"`
	CommentBatch   int      `json:"comment_batch"`
	SortingMethods []string `json:"sorting_methods"`

	SavedAccountName string                    `json:"saved_account_name"`
	Credentials      *store.AccountCredentials `json:"credentials"`
	SaveAccountAs    string                    `json:"save_account_as"`
}

// StartFlexible creates or updates a scraper instance and spawns its worker.
func StartFlexible(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startFlexibleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.InvalidJSON())
			return
		}

		targets := req.Subreddits
		if len(targets) == 0 && req.Subreddit != "" {
			targets = []string{req.Subreddit}
		}
		sanitize := &middleware.SanitizeInput{}
		var cleaned []string
		for _, t := range targets {
			if t = strings.ToLower(strings.TrimSpace(t)); t == "" {
				continue
			}
			if err := sanitize.ValidateSubredditName(t); err != nil {
				apierr.WriteErrorWithContext(w, r, apierr.BadRequest(err.Error()))
				return
			}
			cleaned = append(cleaned, t)
		}
		cleaned = utils.UniqueStrings(cleaned)
		if len(cleaned) == 0 {
			apierr.WriteErrorWithContext(w, r, apierr.MissingField("subreddit"))
			return
		}
		maxSubs := d.Cfg.Monitor.MaxSubredditsPerScraper
		if len(cleaned) > maxSubs {
			apierr.WriteErrorWithContext(w, r, apierr.TooManySubreddits(maxSubs))
			return
		}

		creds, apiErr := resolveCredentials(r, d, &req)
		if apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}

		scraperType := req.ScraperType
		if scraperType == "" {
			scraperType = "posts"
		}
		autoRestart := true
		if req.AutoRestart != nil {
			autoRestart = *req.AutoRestart
		}

		doc := store.ScraperDoc{
			Subreddit:      cleaned[0],
			Subreddits:     cleaned,
			ScraperType:    scraperType,
			AutoRestart:    autoRestart,
			Credentials:    *creds,
			PostsLimit:     orDefault(req.PostsLimit, d.Cfg.Scrape.PostsLimit),
			ScrapeInterval: orDefault(req.ScrapeInterval, int(d.Cfg.Scrape.ScrapeInterval.Seconds())),
			CommentBatch:   orDefault(req.CommentBatch, d.Cfg.Scrape.CommentBatch),
			SortingMethods: req.SortingMethods,
		}
		if len(doc.SortingMethods) == 0 {
			doc.SortingMethods = d.Cfg.Scrape.SortingMethods
		}

		if err := d.Fleet.Start(r.Context(), doc); err != nil {
			logger.ErrorContext(r.Context(), "scraper start failed", "subreddit", doc.Subreddit, "err", err)
			apierr.WriteErrorWithContext(w, r, apierr.ScraperSpawnFailed(err.Error()))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"subreddit":    doc.Subreddit,
			"subreddits":   doc.Subreddits,
			"scraper_type": doc.ScraperType,
			"status":       store.StatusRunning,
		})
	}
}

// resolveCredentials picks saved-account or inline credentials, optionally
// saving the inline set under a new vault name.
func resolveCredentials(r *http.Request, d *Deps, req *startFlexibleRequest) (*store.AccountCredentials, *apierr.Error) {
	if req.SavedAccountName != "" {
		account, err := d.Store.GetAccount(r.Context(), req.SavedAccountName)
		if err != nil {
			return nil, apierr.Database(err.Error())
		}
		if account == nil {
			return nil, apierr.AccountNotFound(req.SavedAccountName)
		}
		return &account.Credentials, nil
	}

	c := req.Credentials
	if c == nil || c.ClientID == "" || c.ClientSecret == "" || c.Username == "" || c.Password == "" {
		return nil, apierr.MissingField("credentials")
	}
	if req.SaveAccountAs != "" {
		if err := d.Store.SaveAccount(r.Context(), store.AccountDoc{
			AccountName: req.SaveAccountAs,
			Credentials: *c,
		}); err != nil {
			return nil, apierr.Database(err.Error())
		}
	}
	return c, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// scraperTypeParam reads the scraper_type query param, defaulting to posts.
func scraperTypeParam(r *http.Request) string {
	if t := r.URL.Query().Get("scraper_type"); t != "" {
		return t
	}
	return "posts"
}

// StopScraper terminates the worker for one instance.
func StopScraper(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subreddit := mux.Vars(r)["subreddit"]
		if err := d.Fleet.Stop(r.Context(), subreddit, scraperTypeParam(r)); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Internal(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"subreddit": subreddit, "status": store.StatusStopped})
	}
}

// RestartScraper tears down and respawns one instance.
func RestartScraper(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subreddit := mux.Vars(r)["subreddit"]
		if err := d.Fleet.Restart(r.Context(), subreddit, scraperTypeParam(r)); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Internal(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"subreddit": subreddit, "status": store.StatusRunning})
	}
}

// SetAutoRestart toggles the auto_restart flag.
func SetAutoRestart(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subreddit := mux.Vars(r)["subreddit"]
		enabled, err := strconv.ParseBool(r.URL.Query().Get("auto_restart"))
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.BadRequest("auto_restart must be true or false"))
			return
		}
		if err := d.Fleet.SetAutoRestart(r.Context(), subreddit, scraperTypeParam(r), enabled); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Internal(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"subreddit": subreddit, "auto_restart": enabled})
	}
}

// DeleteScraper tears down the worker and removes the row.
func DeleteScraper(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subreddit := mux.Vars(r)["subreddit"]
		if err := d.Fleet.Remove(r.Context(), subreddit, scraperTypeParam(r)); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Internal(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"subreddit": subreddit, "status": "deleted"})
	}
}

// scraperView is one list/status row with masked credentials and live state.
type scraperView struct {
	store.ScraperDoc
	Live   bool                             `json:"live"`
	Totals map[string]store.SubredditTotals `json:"totals,omitempty"`
}

// ListScrapers lists every instance with masked credentials, live handle
// state, and cached per-subreddit totals.
func ListScrapers(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := d.Store.ListScrapers(r.Context())
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
			return
		}
		views := make([]scraperView, 0, len(docs))
		for _, doc := range docs {
			doc.Credentials = maskedCredentials(doc.Credentials)
			view := scraperView{
				ScraperDoc: doc,
				Live:       d.Fleet.Alive(doc.Subreddit, doc.ScraperType),
				Totals:     make(map[string]store.SubredditTotals, len(doc.Subreddits)),
			}
			for _, name := range doc.Subreddits {
				totals, err := cachedTotals(r, d, name)
				if err != nil {
					apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
					return
				}
				view.Totals[name] = totals
			}
			views = append(views, view)
		}
		writeJSON(w, http.StatusOK, map[string]any{"scrapers": views, "count": len(views)})
	}
}

// ScraperStatus returns one instance's full state.
func ScraperStatus(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subreddit := mux.Vars(r)["subreddit"]
		scraperType := scraperTypeParam(r)
		doc, err := d.Store.GetScraper(r.Context(), subreddit, scraperType)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
			return
		}
		if doc == nil {
			apierr.WriteErrorWithContext(w, r, apierr.ScraperNotFound(subreddit))
			return
		}
		doc.Credentials = maskedCredentials(doc.Credentials)
		writeJSON(w, http.StatusOK, scraperView{
			ScraperDoc: *doc,
			Live:       d.Fleet.Alive(subreddit, scraperType),
		})
	}
}

// ScraperStats returns per-subreddit analytics for one instance. detailed=true
// adds a 24h usage aggregation window per subreddit.
func ScraperStats(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subreddit := mux.Vars(r)["subreddit"]
		scraperType := scraperTypeParam(r)
		detailed := r.URL.Query().Get("detailed") == "true"

		doc, err := d.Store.GetScraper(r.Context(), subreddit, scraperType)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
			return
		}
		if doc == nil {
			apierr.WriteErrorWithContext(w, r, apierr.ScraperNotFound(subreddit))
			return
		}

		perSubreddit := make(map[string]any, len(doc.Subreddits))
		for _, name := range doc.Subreddits {
			totals, err := cachedTotals(r, d, name)
			if err != nil {
				apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
				return
			}
			entry := map[string]any{"totals": totals}
			if detailed {
				window, err := d.Store.AggregateUsage(r.Context(), name, time.Now().Add(-24*time.Hour))
				if err != nil {
					apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
					return
				}
				entry["usage_24h"] = window
			}
			perSubreddit[name] = entry
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"subreddit":    doc.Subreddit,
			"scraper_type": doc.ScraperType,
			"metrics":      doc.Metrics,
			"subreddits":   perSubreddit,
		})
	}
}

// ScraperLogs tails the instance's worker log file.
func ScraperLogs(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subreddit := mux.Vars(r)["subreddit"]
		lines := defaultLogLines
		if raw := r.URL.Query().Get("lines"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				apierr.WriteErrorWithContext(w, r, apierr.BadRequest("lines must be a positive integer"))
				return
			}
			lines = n
		}
		tail, err := d.Fleet.TailLogs(subreddit, scraperTypeParam(r), lines)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.ScraperNotFound(subreddit))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"subreddit": subreddit, "lines": tail})
	}
}

// RestartAllFailed bulk-restarts every failed or errored instance.
func RestartAllFailed(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		restarted, err := d.Fleet.RestartAllFailed(r.Context())
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Internal(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"restarted": restarted})
	}
}

// StatusSummary counts instances by status.
func StatusSummary(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := d.Store.StatusSummary(r.Context())
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
	}
}
