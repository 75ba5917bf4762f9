package store

import (
	"testing"
	"time"
)

func TestMergeTracking(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name     string
		doc      PostDoc
		existing trackingFields
		want     PostDoc
	}{
		{
			name:     "fresh harvest keeps scraped flags",
			doc:      PostDoc{PostID: "a"},
			existing: trackingFields{CommentsScraped: true, InitialCommentsScraped: true},
			want:     PostDoc{PostID: "a", CommentsScraped: true, InitialCommentsScraped: true},
		},
		{
			name:     "no prior tracking leaves zero values",
			doc:      PostDoc{PostID: "a"},
			existing: trackingFields{},
			want:     PostDoc{PostID: "a"},
		},
		{
			name:     "stored fetch time wins when newer",
			doc:      PostDoc{PostID: "a", LastCommentFetchTime: &earlier},
			existing: trackingFields{LastCommentFetchTime: &now},
			want:     PostDoc{PostID: "a", LastCommentFetchTime: &now},
		},
		{
			name:     "incoming fetch time wins when newer",
			doc:      PostDoc{PostID: "a", LastCommentFetchTime: &now},
			existing: trackingFields{LastCommentFetchTime: &earlier},
			want:     PostDoc{PostID: "a", LastCommentFetchTime: &now},
		},
		{
			name:     "scraped-at carried when incoming is nil",
			doc:      PostDoc{PostID: "a"},
			existing: trackingFields{CommentsScrapedAt: &earlier},
			want:     PostDoc{PostID: "a", CommentsScrapedAt: &earlier},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeTracking(tt.doc, tt.existing)
			if got.CommentsScraped != tt.want.CommentsScraped {
				t.Errorf("CommentsScraped = %v, want %v", got.CommentsScraped, tt.want.CommentsScraped)
			}
			if got.InitialCommentsScraped != tt.want.InitialCommentsScraped {
				t.Errorf("InitialCommentsScraped = %v, want %v", got.InitialCommentsScraped, tt.want.InitialCommentsScraped)
			}
			if !equalTimePtr(got.LastCommentFetchTime, tt.want.LastCommentFetchTime) {
				t.Errorf("LastCommentFetchTime = %v, want %v", got.LastCommentFetchTime, tt.want.LastCommentFetchTime)
			}
			if !equalTimePtr(got.CommentsScrapedAt, tt.want.CommentsScrapedAt) {
				t.Errorf("CommentsScrapedAt = %v, want %v", got.CommentsScrapedAt, tt.want.CommentsScrapedAt)
			}
		})
	}
}

func TestMergeTrackingNeverResets(t *testing.T) {
	// A zeroed incoming doc merged over a fully-tracked post must come out
	// fully tracked, no matter how often the merge repeats.
	now := time.Now().UTC()
	existing := trackingFields{
		CommentsScraped:        true,
		InitialCommentsScraped: true,
		LastCommentFetchTime:   &now,
		CommentsScrapedAt:      &now,
	}
	doc := PostDoc{PostID: "a"}
	for i := 0; i < 3; i++ {
		doc = MergeTracking(PostDoc{PostID: "a"}, existing)
	}
	if !doc.CommentsScraped || !doc.InitialCommentsScraped {
		t.Fatalf("tracking flags reset: %+v", doc)
	}
	if doc.LastCommentFetchTime == nil || doc.CommentsScrapedAt == nil {
		t.Fatalf("tracking timestamps reset: %+v", doc)
	}
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func TestIsCommentCandidate(t *testing.T) {
	now := time.Now().UTC()
	stale := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name string
		post PostDoc
		want bool
	}{
		{"never scraped", PostDoc{InitialCommentsScraped: false}, true},
		{"initial done but no fetch time", PostDoc{InitialCommentsScraped: true}, true},
		{"high traffic fresh", PostDoc{InitialCommentsScraped: true, NumComments: 150, LastCommentFetchTime: stale(time.Hour)}, false},
		{"high traffic stale", PostDoc{InitialCommentsScraped: true, NumComments: 150, LastCommentFetchTime: stale(3 * time.Hour)}, true},
		{"mid traffic fresh", PostDoc{InitialCommentsScraped: true, NumComments: 50, LastCommentFetchTime: stale(5 * time.Hour)}, false},
		{"mid traffic stale", PostDoc{InitialCommentsScraped: true, NumComments: 50, LastCommentFetchTime: stale(7 * time.Hour)}, true},
		{"low traffic fresh", PostDoc{InitialCommentsScraped: true, NumComments: 5, LastCommentFetchTime: stale(23 * time.Hour)}, false},
		{"low traffic stale", PostDoc{InitialCommentsScraped: true, NumComments: 5, LastCommentFetchTime: stale(25 * time.Hour)}, true},
		{"boundary 100 comments uses mid tier", PostDoc{InitialCommentsScraped: true, NumComments: 100, LastCommentFetchTime: stale(3 * time.Hour)}, false},
		{"boundary 20 comments uses low tier", PostDoc{InitialCommentsScraped: true, NumComments: 20, LastCommentFetchTime: stale(7 * time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCommentCandidate(tt.post, now); got != tt.want {
				t.Errorf("IsCommentCandidate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortCandidates(t *testing.T) {
	posts := []PostDoc{
		{PostID: "scraped-big", InitialCommentsScraped: true, NumComments: 500, CreatedUTC: 100},
		{PostID: "new-small", InitialCommentsScraped: false, NumComments: 3, CreatedUTC: 50},
		{PostID: "new-big", InitialCommentsScraped: false, NumComments: 200, CreatedUTC: 10},
		{PostID: "new-big-newer", InitialCommentsScraped: false, NumComments: 200, CreatedUTC: 90},
		{PostID: "scraped-small", InitialCommentsScraped: true, NumComments: 1, CreatedUTC: 999},
	}

	SortCandidates(posts)

	want := []string{"new-big-newer", "new-big", "new-small", "scraped-big", "scraped-small"}
	for i, id := range want {
		if posts[i].PostID != id {
			t.Fatalf("position %d = %s, want %s (order: %v)", i, posts[i].PostID, id, ids(posts))
		}
	}
}

func ids(posts []PostDoc) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.PostID
	}
	return out
}
