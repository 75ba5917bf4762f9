package handlers

import (
	"net/http"
)

// Health reports DB connectivity, instance counts, and worker availability.
func Health(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		httpStatus := http.StatusOK

		dbOK := d.Store.Ping(r.Context()) == nil
		if !dbOK {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		var summary map[string]int64
		if dbOK {
			if s, err := d.Store.StatusSummary(r.Context()); err == nil {
				summary = s
			}
		}

		var suggestionsSynced int64
		if d.Suggestions != nil {
			suggestionsSynced = d.Suggestions.Stats().Synced
		}

		writeJSON(w, httpStatus, map[string]any{
			"status":             status,
			"database":           dbOK,
			"scrapers":           summary,
			"enrichment_enabled": d.Enricher != nil && d.Enricher.Enabled(),
			"suggestions_synced": suggestionsSynced,
		})
	}
}
