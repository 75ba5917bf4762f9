package handlers

import (
	"net/http"

	"github.com/onnwee/reddit-scraper-fleet/internal/apierr"
)

// EmbeddingStats reports enrichment progress by status.
func EmbeddingStats(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := d.Store.GetEmbeddingStats(r.Context())
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// EnrichmentWorkerStatus reports the enrichment worker state.
func EnrichmentWorkerStatus(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Enricher.Status())
	}
}

// EnrichmentWorkerProcess triggers one enrichment batch immediately.
func EnrichmentWorkerProcess(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !d.Enricher.Enabled() {
			apierr.WriteErrorWithContext(w, r, apierr.SearchUnavailable("embedding provider not configured"))
			return
		}
		processed, err := d.Enricher.ProcessNow(r.Context())
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Internal(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
	}
}
