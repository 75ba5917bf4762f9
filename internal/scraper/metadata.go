package scraper

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/onnwee/reddit-scraper-fleet/internal/httpx"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
	"github.com/onnwee/reddit-scraper-fleet/internal/reddit"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

// excerptLen bounds the sample-post excerpt carried on metadata.
const excerptLen = 200

// refreshMetadata is phase C: refresh community descriptors, rules,
// guidelines, and sample posts, gated on the update interval.
func (w *Worker) refreshMetadata(ctx context.Context, subreddit string) error {
	meta, err := w.storage.GetSubredditMetadata(ctx, subreddit)
	if err != nil {
		return err
	}
	if meta != nil && time.Since(meta.LastUpdated) < w.cfg.SubredditUpdateInterval {
		return nil
	}

	w.governor.CheckBudget(ctx, w.cfg.MinRemainingBudget)

	w.countCall("about")
	var about *reddit.About
	err = httpx.Retry(ctx, w.retryCfg.attempts, w.retryCfg.base, func(ctx context.Context) error {
		var aboutErr error
		about, aboutErr = w.api.About(ctx, subreddit)
		return aboutErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn("metadata fetch failed", "subreddit", subreddit, "err", err)
		metrics.ScrapePhaseErrors.WithLabelValues("metadata").Inc()
		w.recordError(ctx, subreddit, "", "metadata_fetch_failed", err.Error(), w.retryCfg.attempts)
		return nil
	}

	// rules, guidelines, and samples are best-effort
	w.countCall("rules")
	rules, err := w.api.Rules(ctx, subreddit)
	if err != nil {
		w.log.Warn("rules fetch failed", "subreddit", subreddit, "err", err)
	}

	w.countCall("post_requirements")
	guidelines, err := w.api.PostRequirements(ctx, subreddit)
	if err != nil {
		w.log.Warn("guidelines fetch failed", "subreddit", subreddit, "err", err)
	}

	w.countCall("sample_posts")
	samples, err := w.api.ListPosts(ctx, subreddit, "top", "month", w.cfg.SamplePostsLimit)
	if err != nil {
		w.log.Warn("sample posts fetch failed", "subreddit", subreddit, "err", err)
	}

	doc := metadataDoc(subreddit, about, rules, guidelines, samples)
	return w.storage.UpsertSubredditMetadata(ctx, doc)
}

// metadataDoc assembles a metadata document from the fetched pieces.
func metadataDoc(subreddit string, about *reddit.About, rules []reddit.Rule, guidelines string, samples []reddit.Post) store.MetadataDoc {
	doc := store.MetadataDoc{
		SubredditName:      subreddit,
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
		GuidelinesText:     guidelines,
	}

	var rulesText strings.Builder
	for i, r := range rules {
		doc.Rules = append(doc.Rules, store.RuleDoc{
			ShortName:   r.ShortName,
			Description: r.Description,
			Kind:        r.Kind,
			Priority:    r.Priority,
		})
		if i > 0 {
			rulesText.WriteString("\n")
		}
		rulesText.WriteString(r.ShortName)
		if r.Description != "" {
			rulesText.WriteString(": ")
			rulesText.WriteString(r.Description)
		}
	}
	doc.RulesText = rulesText.String()

	for _, p := range samples {
		doc.SamplePostsTitles = append(doc.SamplePostsTitles, p.Title)
		doc.SamplePosts = append(doc.SamplePosts, store.SamplePostDoc{
			Title:   p.Title,
			Excerpt: truncateExcerpt(p.SelfText, excerptLen),
			Score:   p.Score,
		})
	}
	return doc
}

// truncateExcerpt bounds s to max bytes without splitting a UTF-8 sequence.
func truncateExcerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
