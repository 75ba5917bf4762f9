package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
)

// moreBatchSize is Reddit's cap on IDs per morechildren call.
const moreBatchSize = 100

type commentThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type commentListing struct {
	Data struct {
		Children []commentThing `json:"children"`
	} `json:"data"`
}

type commentData struct {
	ID         string          `json:"id"`
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	Score      int             `json:"score"`
	CreatedUTC float64         `json:"created_utc"`
	ParentID   string          `json:"parent_id"`
	Replies    json.RawMessage `json:"replies"`
}

type moreData struct {
	Children []string `json:"children"`
}

type treeNode struct {
	CommentNode
	children []*treeNode
}

// CommentTree fetches the full comment tree of a submission.
// "More comments" placeholders are expanded according to replaceMoreLimit:
// -1 expands all, 0 skips them, N caps the number of expansion calls.
func (c *Client) CommentTree(ctx context.Context, postID string, replaceMoreLimit int) ([]CommentNode, error) {
	q := url.Values{}
	q.Set("limit", "500")
	q.Set("raw_json", "1")
	resp, err := c.get(ctx, "/comments/"+postID, q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var listings []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("unexpected comments response for post %s", postID)
	}
	var comments commentListing
	if err := json.Unmarshal(listings[1], &comments); err != nil {
		return nil, err
	}

	var moreIDs []string
	roots := parseCommentThings(comments.Data.Children, 0, &moreIDs)

	index := make(map[string]*treeNode)
	indexNodes(roots, index)

	if replaceMoreLimit != 0 && len(moreIDs) > 0 {
		roots = c.expandMore(ctx, postID, roots, index, moreIDs, replaceMoreLimit)
	}

	out := make([]CommentNode, 0, len(roots))
	for _, n := range roots {
		out = append(out, materialize(n))
	}
	return out, nil
}

// expandMore drains the morechildren queue, attaching fetched comments under
// their parents when known and at the top level otherwise.
func (c *Client) expandMore(ctx context.Context, postID string, roots []*treeNode, index map[string]*treeNode, queue []string, limit int) []*treeNode {
	calls := 0
	for len(queue) > 0 && (limit < 0 || calls < limit) {
		batch := queue
		if len(batch) > moreBatchSize {
			batch = batch[:moreBatchSize]
		}
		queue = queue[len(batch):]

		q := url.Values{}
		q.Set("api_type", "json")
		q.Set("link_id", "t3_"+postID)
		q.Set("children", strings.Join(batch, ","))
		q.Set("raw_json", "1")

		var moreResp struct {
			JSON struct {
				Data struct {
					Things []commentThing `json:"things"`
				} `json:"data"`
			} `json:"json"`
		}
		if err := c.getJSON(ctx, "/api/morechildren", q, &moreResp); err != nil {
			logger.WithComponent("reddit").Warn("morechildren expansion failed",
				"post_id", postID, "err", err)
			break
		}
		calls++

		for _, thing := range moreResp.JSON.Data.Things {
			switch thing.Kind {
			case "more":
				var md moreData
				if json.Unmarshal(thing.Data, &md) == nil {
					queue = append(queue, md.Children...)
				}
			case "t1":
				var cd commentData
				if json.Unmarshal(thing.Data, &cd) != nil || cd.ID == "" {
					continue
				}
				node := nodeFromComment(cd, 0)
				if parent, ok := index[strings.TrimPrefix(cd.ParentID, "t1_")]; ok && strings.HasPrefix(cd.ParentID, "t1_") {
					node.Depth = parent.Depth + 1
					parent.children = append(parent.children, node)
				} else {
					roots = append(roots, node)
				}
				index[node.ID] = node
			}
		}
	}
	return roots
}

// parseCommentThings converts raw listing children into tree nodes,
// collecting "more" placeholder IDs along the way.
func parseCommentThings(things []commentThing, depth int, moreIDs *[]string) []*treeNode {
	var nodes []*treeNode
	for _, thing := range things {
		switch thing.Kind {
		case "more":
			var md moreData
			if json.Unmarshal(thing.Data, &md) == nil {
				*moreIDs = append(*moreIDs, md.Children...)
			}
		case "t1":
			var cd commentData
			if json.Unmarshal(thing.Data, &cd) != nil || cd.ID == "" {
				continue
			}
			node := nodeFromComment(cd, depth)
			if len(cd.Replies) > 2 { // "" or null when absent
				var replies commentListing
				if json.Unmarshal(cd.Replies, &replies) == nil {
					node.children = parseCommentThings(replies.Data.Children, depth+1, moreIDs)
				}
			}
			nodes = append(nodes, node)
		}
	}
	return nodes
}

func nodeFromComment(cd commentData, depth int) *treeNode {
	parentType := "comment"
	if strings.HasPrefix(cd.ParentID, "t3_") {
		parentType = "post"
	}
	return &treeNode{
		CommentNode: CommentNode{
			ID:         cd.ID,
			Author:     cd.Author,
			Body:       cd.Body,
			Score:      cd.Score,
			CreatedUTC: cd.CreatedUTC,
			ParentID:   strings.TrimPrefix(strings.TrimPrefix(cd.ParentID, "t1_"), "t3_"),
			ParentType: parentType,
			Depth:      depth,
		},
	}
}

func indexNodes(nodes []*treeNode, index map[string]*treeNode) {
	for _, n := range nodes {
		index[n.ID] = n
		indexNodes(n.children, index)
	}
}

func materialize(n *treeNode) CommentNode {
	out := n.CommentNode
	out.Replies = make([]CommentNode, 0, len(n.children))
	for _, child := range n.children {
		out.Replies = append(out.Replies, materialize(child))
	}
	return out
}
