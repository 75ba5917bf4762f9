package scraper

import (
	"context"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/httpx"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
	"github.com/onnwee/reddit-scraper-fleet/internal/reddit"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

// refreshComments is phase B: fetch comment trees for the priority-ordered
// candidate batch, bulk-write, then verify and mark. Returns the number of
// new comments collected.
func (w *Worker) refreshComments(ctx context.Context, subreddit string) (int, error) {
	candidates, err := w.storage.CommentCandidates(ctx, subreddit, w.cfg.CommentBatch)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var batch []store.CommentDoc
	claimed := make(map[string]int, len(candidates))
	failed := make(map[string]struct{})

	for _, cand := range candidates {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		w.governor.CheckBudget(ctx, w.cfg.MinRemainingBudget)

		stored, err := w.storage.StoredCommentIDs(ctx, cand.PostID)
		if err != nil {
			return 0, err
		}

		w.countCall("comments")
		var tree []reddit.CommentNode
		err = httpx.Retry(ctx, w.retryCfg.attempts, w.retryCfg.base, func(ctx context.Context) error {
			var fetchErr error
			tree, fetchErr = w.api.CommentTree(ctx, cand.PostID, w.cfg.ReplaceMoreLimit)
			return fetchErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			w.log.Warn("comment fetch failed", "post_id", cand.PostID, "err", err)
			metrics.ScrapePhaseErrors.WithLabelValues("comments").Inc()
			w.recordError(ctx, subreddit, cand.PostID, "comment_fetch_failed", err.Error(), w.retryCfg.attempts)
			failed[cand.PostID] = struct{}{}
			continue
		}

		docs := collectComments(tree, stored, w.cfg.MaxCommentDepth, cand.PostID, subreddit)
		claimed[cand.PostID] = len(docs)
		batch = append(batch, docs...)

		w.sleep(ctx, w.cfg.InterPostDelay)
	}

	if len(batch) > 0 {
		if _, _, err := w.storage.UpsertComments(ctx, batch); err != nil {
			return 0, err
		}
		metrics.CommentsUpserted.Add(float64(len(batch)))
	}

	// Partition candidates and verify initial scrapes before marking.
	// A post that claimed N>0 comments but shows 0 in the store is a
	// ghost; it must not be marked, so the next cycle retries it.
	var initialOK, updates []string
	for _, cand := range candidates {
		if _, skip := failed[cand.PostID]; skip {
			continue
		}
		if cand.InitialCommentsScraped {
			updates = append(updates, cand.PostID)
			continue
		}
		if claimed[cand.PostID] > 0 {
			count, err := w.storage.CountComments(ctx, cand.PostID)
			if err != nil {
				return 0, err
			}
			if count == 0 {
				w.log.Error("ghost post detected", "post_id", cand.PostID, "claimed", claimed[cand.PostID])
				metrics.GhostPostsDetected.Inc()
				w.recordError(ctx, subreddit, cand.PostID, "verification_failed",
					"comments claimed but none persisted", 0)
				continue
			}
		}
		// claimed-zero initials are legitimately empty; mark them done
		initialOK = append(initialOK, cand.PostID)
	}

	if err := w.storage.MarkPostsCommentState(ctx, initialOK, true); err != nil {
		return 0, err
	}
	if err := w.storage.MarkPostsCommentState(ctx, updates, false); err != nil {
		return 0, err
	}

	w.log.Info("comments refreshed",
		"subreddit", subreddit, "candidates", len(candidates),
		"new_comments", len(batch), "initial_marked", len(initialOK), "updated", len(updates))
	return len(batch), nil
}

// collectComments depth-first walks a comment tree, materialising unseen
// nodes. Seen nodes are not re-materialised, but their replies are still
// walked so late-arriving nested comments are collected. Recursion stops
// at maxDepth.
func collectComments(tree []reddit.CommentNode, stored map[string]struct{}, maxDepth int, postID, subreddit string) []store.CommentDoc {
	var out []store.CommentDoc
	now := time.Now().UTC()
	var walk func(nodes []reddit.CommentNode)
	walk = func(nodes []reddit.CommentNode) {
		for _, node := range nodes {
			if node.Depth >= maxDepth {
				continue
			}
			if _, seen := stored[node.ID]; !seen {
				out = append(out, store.CommentDoc{
					CommentID:       node.ID,
					PostID:          postID,
					Subreddit:       subreddit,
					Author:          node.Author,
					Body:            node.Body,
					Score:           node.Score,
					Depth:           node.Depth,
					ParentID:        node.ParentID,
					ParentType:      node.ParentType,
					CreatedUTC:      node.CreatedUTC,
					CreatedDatetime: time.Unix(int64(node.CreatedUTC), 0).UTC(),
					ScrapedAt:       now,
				})
			}
			walk(node.Replies)
		}
	}
	walk(tree)
	return out
}
