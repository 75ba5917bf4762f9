package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

// cachedTotals reads per-subreddit totals through the stats cache. A nil
// cache degrades to a direct read.
func cachedTotals(r *http.Request, d *Deps, subreddit string) (store.SubredditTotals, error) {
	key := "totals:" + subreddit
	if d.Cache != nil {
		if raw, ok := d.Cache.Get(key); ok {
			var totals store.SubredditTotals
			if err := json.Unmarshal(raw, &totals); err == nil {
				metrics.APICacheHits.WithLabelValues("totals").Inc()
				return totals, nil
			}
			d.Cache.Delete(key)
		}
		metrics.APICacheMisses.WithLabelValues("totals").Inc()
	}

	totals, err := d.Store.GetSubredditTotals(r.Context(), subreddit)
	if err != nil {
		return totals, err
	}
	if d.Cache != nil {
		if raw, err := json.Marshal(totals); err == nil {
			d.Cache.Set(key, raw, 0)
		}
	}
	return totals, nil
}
