package types

import "time"

// Post is a normalised record of one platform post.
//
// For a repost, PostID, Body, CreatedAt, URL, engagement counters and
// AuthorHandle all describe the original post; ReposterHandle carries the
// account whose timeline surfaced it. A repost therefore occupies the same
// row as the original it re-broadcasts.
type Post struct {
	PostID         string    `json:"post_id"`
	AuthorHandle   string    `json:"author_handle"`
	AuthorName     string    `json:"author_name,omitempty"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	URL            string    `json:"url"`
	Replies        int       `json:"replies"`
	Reposts        int       `json:"reposts"`
	Likes          int       `json:"likes"`
	IsRepost       bool      `json:"is_repost"`
	OriginalAuthor string    `json:"original_author,omitempty"`
	ReposterHandle string    `json:"reposter_handle,omitempty"`
	Truncated      bool      `json:"truncated"`
	HarvestedAt    time.Time `json:"harvested_at"`
}

// Account is a platform handle plus whatever profile metadata the harvest
// managed to observe.
type Account struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name,omitempty"`
}

// HarvestBatch is the output of one account harvest: the account record and
// every post collected before time-window filtering.
type HarvestBatch struct {
	Account Account `json:"account"`
	Posts   []Post  `json:"posts"`
}
