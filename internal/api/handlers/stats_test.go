package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/reddit-scraper-fleet/internal/cache"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

func TestCachedTotalsHitSkipsStore(t *testing.T) {
	mc := cache.NewMockCache()
	want := store.SubredditTotals{Posts: 120, Comments: 3400, InitialDone: 1}
	raw, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	mc.Set("totals:golang", raw, 0)

	// Store is nil: a hit must be served entirely from the cache.
	d := &Deps{Cache: mc}
	r := httptest.NewRequest("GET", "/scrapers/golang/stats", nil)

	got, err := cachedTotals(r, d, "golang")
	if err != nil {
		t.Fatalf("cachedTotals: %v", err)
	}
	if got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}
}
