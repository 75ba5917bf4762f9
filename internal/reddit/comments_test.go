package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
)

const commentsPayload = `[
  {"kind": "Listing", "data": {"children": [
    {"kind": "t3", "data": {"id": "abc", "title": "post"}}
  ]}},
  {"kind": "Listing", "data": {"children": [
    {"kind": "t1", "data": {
      "id": "c1", "author": "alice", "body": "top level", "score": 10,
      "created_utc": 1700000000, "parent_id": "t3_abc",
      "replies": {"kind": "Listing", "data": {"children": [
        {"kind": "t1", "data": {
          "id": "c2", "author": "bob", "body": "reply", "score": 5,
          "created_utc": 1700000100, "parent_id": "t1_c1",
          "replies": ""
        }}
      ]}}
    }},
    {"kind": "more", "data": {"children": ["c9", "c10"]}}
  ]}}
]`

const morechildrenPayload = `{"json": {"data": {"things": [
  {"kind": "t1", "data": {
    "id": "c9", "author": "carol", "body": "late arrival", "score": 1,
    "created_utc": 1700000200, "parent_id": "t1_c2"
  }},
  {"kind": "t1", "data": {
    "id": "c10", "author": "dave", "body": "orphan", "score": 2,
    "created_utc": 1700000300, "parent_id": "t1_unknown"
  }}
]}}}`

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		UserAgent:        "test-agent",
		HTTPTimeout:      5 * time.Second,
		CrawlerRPS:       1000,
		CrawlerBurstSize: 10,
	}
	c := NewClient(Credentials{
		ClientID: "id", ClientSecret: "secret",
		Username: "user", Password: "pass", UserAgent: "test-agent",
	}, cfg)
	c.SetBaseURLForTest(srv.URL)
	c.SetTokenForTest("test-token")
	return c, srv
}

func TestCommentTreeParsing(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/comments/abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(commentsPayload))
	}))

	tree, err := c.CommentTree(context.Background(), "abc", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree) != 1 {
		t.Fatalf("got %d roots, want 1", len(tree))
	}

	root := tree[0]
	if root.ID != "c1" || root.Depth != 0 {
		t.Errorf("root = %s depth %d, want c1 depth 0", root.ID, root.Depth)
	}
	if root.ParentType != "post" || root.ParentID != "abc" {
		t.Errorf("root parent = %s/%s, want post/abc", root.ParentType, root.ParentID)
	}
	if len(root.Replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(root.Replies))
	}

	reply := root.Replies[0]
	if reply.ID != "c2" || reply.Depth != 1 {
		t.Errorf("reply = %s depth %d, want c2 depth 1", reply.ID, reply.Depth)
	}
	if reply.ParentType != "comment" || reply.ParentID != "c1" {
		t.Errorf("reply parent = %s/%s, want comment/c1", reply.ParentType, reply.ParentID)
	}
}

func TestCommentTreeExpandMore(t *testing.T) {
	var moreCalls int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/comments/abc":
			_, _ = w.Write([]byte(commentsPayload))
		case "/api/morechildren":
			moreCalls++
			if got := r.URL.Query().Get("link_id"); got != "t3_abc" {
				t.Errorf("link_id = %q, want t3_abc", got)
			}
			_, _ = w.Write([]byte(morechildrenPayload))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	tree, err := c.CommentTree(context.Background(), "abc", -1)
	if err != nil {
		t.Fatal(err)
	}
	if moreCalls != 1 {
		t.Fatalf("morechildren calls = %d, want 1", moreCalls)
	}

	// c9 attaches under its known parent c2 at depth 2; c10's parent is
	// unknown, so it lands at the top level.
	if len(tree) != 2 {
		t.Fatalf("got %d roots, want 2 (original + orphan)", len(tree))
	}
	nested := tree[0].Replies[0].Replies
	if len(nested) != 1 || nested[0].ID != "c9" || nested[0].Depth != 2 {
		t.Errorf("nested expansion = %+v, want c9 at depth 2", nested)
	}
	if tree[1].ID != "c10" {
		t.Errorf("orphan root = %s, want c10", tree[1].ID)
	}
}

func TestCommentTreeSkipMore(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/morechildren" {
			t.Error("morechildren must not be called with limit 0")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(commentsPayload))
	}))

	tree, err := c.CommentTree(context.Background(), "abc", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree) != 1 {
		t.Fatalf("got %d roots, want 1", len(tree))
	}
}
