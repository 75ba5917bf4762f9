package reddit

// Credentials identifies one Reddit account used by a scraper instance.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// Post holds the fields of a submission we persist.
type Post struct {
	ID           string  `json:"id"`
	Subreddit    string  `json:"subreddit"`
	Title        string  `json:"title"`
	Author       string  `json:"author"`
	SelfText     string  `json:"selftext"`
	URL          string  `json:"url"`
	Permalink    string  `json:"permalink"`
	Score        int     `json:"score"`
	UpvoteRatio  float64 `json:"upvote_ratio"`
	NumComments  int     `json:"num_comments"`
	CreatedUTC   float64 `json:"created_utc"`
	IsSelf       bool    `json:"is_self"`
	Over18       bool    `json:"over_18"`
	Stickied     bool    `json:"stickied"`
	LinkFlair    string  `json:"link_flair_text"`
	Domain       string  `json:"domain"`
	Distinguished string `json:"distinguished"`
}

// CommentNode is one node of a submission's comment tree. Depth is
// assigned during parsing, starting at 0 for top-level comments.
type CommentNode struct {
	ID         string
	Author     string
	Body       string
	Score      int
	CreatedUTC float64
	ParentID   string
	ParentType string // "post" or "comment"
	Depth      int
	Replies    []CommentNode
}

// About holds community descriptors from /r/{sub}/about.
type About struct {
	DisplayName        string  `json:"display_name"`
	Title              string  `json:"title"`
	PublicDescription  string  `json:"public_description"`
	Description        string  `json:"description"`
	Subscribers        int64   `json:"subscribers"`
	ActiveUserCount    int64   `json:"active_user_count"`
	CreatedUTC         float64 `json:"created_utc"`
	Over18             bool    `json:"over18"`
	SubredditType      string  `json:"subreddit_type"`
	AdvertiserCategory string  `json:"advertiser_category"`
	Lang               string  `json:"lang"`
	URL                string  `json:"url"`
}

// Rule is one entry of a community's posted rules.
type Rule struct {
	ShortName   string `json:"short_name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Priority    int    `json:"priority"`
	ViolationReason string `json:"violation_reason"`
}

// listingEnvelope is the generic wrapper Reddit uses for listings.
type listingEnvelope struct {
	Data struct {
		Children []struct {
			Kind string          `json:"kind"`
			Data Post            `json:"data"`
		} `json:"children"`
		After string `json:"after"`
	} `json:"data"`
}

type aboutEnvelope struct {
	Data About `json:"data"`
}

type rulesEnvelope struct {
	Rules []Rule `json:"rules"`
}

type subredditListingEnvelope struct {
	Data struct {
		Children []struct {
			Data About `json:"data"`
		} `json:"children"`
		After string `json:"after"`
	} `json:"data"`
}
