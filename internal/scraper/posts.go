package scraper

import (
	"context"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/httpx"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
	"github.com/onnwee/reddit-scraper-fleet/internal/reddit"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

// harvestPosts is phase A: fetch listings for every configured sort method,
// dedup across sorts, and land the batch with one bulk upsert. Returns the
// number of distinct posts observed this cycle.
func (w *Worker) harvestPosts(ctx context.Context, subreddit string) (int, error) {
	count, err := w.storage.CountPosts(ctx, subreddit)
	if err != nil {
		return 0, err
	}
	firstRun := count == 0

	seen := make(map[string]struct{})
	var batch []store.PostDoc

	for _, sortMethod := range w.cfg.SortingMethods {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		w.governor.CheckBudget(ctx, w.cfg.MinRemainingBudget)

		timeFilter := w.timeFilterFor(sortMethod, firstRun)
		w.countCall("posts_" + sortMethod)

		var posts []reddit.Post
		err := httpx.Retry(ctx, w.retryCfg.attempts, w.retryCfg.base, func(ctx context.Context) error {
			var listErr error
			posts, listErr = w.api.ListPosts(ctx, subreddit, sortMethod, timeFilter, w.cfg.PostsLimit)
			return listErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			// exhausted retries: record and skip this sort
			w.log.Warn("listing failed", "subreddit", subreddit, "sort", sortMethod, "err", err)
			metrics.ScrapePhaseErrors.WithLabelValues("posts").Inc()
			w.recordError(ctx, subreddit, "", "listing_failed", err.Error(), w.retryCfg.attempts)
			continue
		}

		for _, p := range posts {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			batch = append(batch, postDoc(p, subreddit, sortMethod))
		}

		w.sleep(ctx, w.cfg.InterSortDelay)
	}

	if len(batch) == 0 {
		return 0, nil
	}
	inserted, modified, err := w.storage.UpsertPosts(ctx, batch)
	if err != nil {
		return 0, err
	}
	metrics.PostsUpserted.Add(float64(len(batch)))
	w.log.Info("posts harvested",
		"subreddit", subreddit, "distinct", len(batch),
		"inserted", inserted, "modified", modified, "first_run", firstRun)
	return len(batch), nil
}

// timeFilterFor picks the listing time filter. On a subreddit's first run,
// top uses the wider bootstrap filter to pull historical coverage.
func (w *Worker) timeFilterFor(sortMethod string, firstRun bool) string {
	switch sortMethod {
	case "top":
		if firstRun {
			return w.cfg.InitialTopTimeFilter
		}
		return w.cfg.TopTimeFilter
	case "controversial":
		return w.cfg.ControversialTimeFilter
	default:
		return ""
	}
}

// postDoc materialises a post with the stable schema and zeroed
// comment-tracking fields; the store merges prior tracking on upsert.
func postDoc(p reddit.Post, subreddit, sortMethod string) store.PostDoc {
	return store.PostDoc{
		PostID:          p.ID,
		Subreddit:       subreddit,
		Title:           p.Title,
		Author:          p.Author,
		SelfText:        p.SelfText,
		URL:             p.URL,
		Permalink:       p.Permalink,
		Score:           p.Score,
		UpvoteRatio:     p.UpvoteRatio,
		NumComments:     p.NumComments,
		CreatedUTC:      p.CreatedUTC,
		CreatedDatetime: time.Unix(int64(p.CreatedUTC), 0).UTC(),
		IsSelf:          p.IsSelf,
		Over18:          p.Over18,
		Stickied:        p.Stickied,
		LinkFlair:       p.LinkFlair,
		Domain:          p.Domain,
		Distinguished:   p.Distinguished,
		SortMethod:      sortMethod,
		ScrapedAt:       time.Now().UTC(),
	}
}
