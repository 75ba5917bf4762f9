package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/reddit-scraper-fleet/internal/apierr"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/reddit"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

const defaultSearchLimit = 10

type searchRequest struct {
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
	Persona bool   `json:"persona"`
}

// SearchSubreddits embeds the query text and runs a vector search over the
// enriched subreddit metadata.
func SearchSubreddits(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.InvalidJSON())
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			apierr.WriteErrorWithContext(w, r, apierr.MissingField("query"))
			return
		}
		if !d.Enricher.Enabled() {
			apierr.WriteErrorWithContext(w, r, apierr.SearchUnavailable("embedding provider not configured"))
			return
		}
		if req.Limit <= 0 {
			req.Limit = defaultSearchLimit
		}

		vector, err := d.Enricher.EmbedQuery(r.Context(), req.Query)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.SearchFailed(err.Error()))
			return
		}
		results, err := d.Store.SearchSubredditsByVector(r.Context(), vector, req.Limit, req.Persona)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.SearchFailed(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"query":   req.Query,
			"results": results,
			"count":   len(results),
		})
	}
}

// DiscoverSubreddits searches Reddit itself and upserts the discovered
// communities as metadata rows, queueing them for enrichment.
func DiscoverSubreddits(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("query"))
		if query == "" {
			apierr.WriteErrorWithContext(w, r, apierr.MissingField("query"))
			return
		}
		if d.Discoverer == nil {
			apierr.WriteErrorWithContext(w, r, apierr.SearchUnavailable("reddit credentials not configured"))
			return
		}
		limit := defaultSearchLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				apierr.WriteErrorWithContext(w, r, apierr.BadRequest("limit must be a positive integer"))
				return
			}
			limit = n
		}

		found, err := d.Discoverer.SearchSubreddits(r.Context(), query, limit)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.SearchFailed(err.Error()))
			return
		}

		names := make([]string, 0, len(found))
		for _, about := range found {
			doc := discoveredMetadata(about)
			if doc.SubredditName == "" {
				continue
			}
			if err := d.Store.UpsertSubredditMetadata(r.Context(), doc); err != nil {
				logger.ErrorContext(r.Context(), "discovered metadata upsert failed",
					"subreddit", doc.SubredditName, "err", err)
				continue
			}
			names = append(names, doc.SubredditName)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"query":      query,
			"discovered": names,
			"count":      len(names),
		})
	}
}

func discoveredMetadata(about reddit.About) store.MetadataDoc {
	return store.MetadataDoc{
		SubredditName:      strings.ToLower(about.DisplayName),
		Title:              about.Title,
		PublicDescription:  about.PublicDescription,
		Description:        about.Description,
		Subscribers:        about.Subscribers,
		ActiveUserCount:    about.ActiveUserCount,
		CreatedUTC:         about.CreatedUTC,
		Over18:             about.Over18,
		SubredditType:      about.SubredditType,
		AdvertiserCategory: about.AdvertiserCategory,
		Lang:               about.Lang,
		URL:                about.URL,
	}
}
