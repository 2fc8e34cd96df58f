package harvest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHarvester(drv Driver, params Params) *Harvester {
	h := New(drv, DefaultProfile(), params, "https://x.com", zap.NewNop())
	h.settleTimeout = 5 * time.Millisecond
	h.settlePoll = time.Millisecond
	h.idleSleep = time.Millisecond
	h.expandDelay = time.Millisecond
	h.initialWait = 50 * time.Millisecond
	return h
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"0", 0},
		{"423", 423},
		{"1,234", 1234},
		{"12 345", 12345},
		{"1.2K", 1200},
		{"1.2k", 1200},
		{"5.7M", 5700000},
		{"3m", 3000000},
		{"  42  ", 42},
		{"junk", 0},
		{"-5", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseMetric(tt.input), "input %q", tt.input)
	}
}

func TestIsTruncated(t *testing.T) {
	assert.True(t, isTruncated("clipped body…", false))
	assert.True(t, isTruncated("clipped body...", false))
	assert.True(t, isTruncated("anything", true))
	assert.False(t, isTruncated("full body", false))
	assert.True(t, isTruncated("clipped body… ", false))
}

func TestAuthorFromStatusURL(t *testing.T) {
	handle, canonical := authorFromStatusURL("https://x.com/bob/status/42?s=20&t=abc")
	assert.Equal(t, "bob", handle)
	assert.Equal(t, "https://x.com/bob/status/42", canonical)

	handle, _ = authorFromStatusURL("https://x.com/search?q=42")
	assert.Empty(t, handle)
}

func TestNormalizeOriginalPost(t *testing.T) {
	h := newTestHarvester(nil, DefaultParams())

	post, err := h.normalize(rawArticle{
		ID:       "1786001",
		URL:      "https://x.com/alice/status/1786001",
		Datetime: "2024-05-01T12:00:00Z",
		Text:     "hello world",
		Replies:  "3",
		Reposts:  "1.1K",
		Likes:    "12,345",
	}, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, "1786001", post.PostID)
	assert.Equal(t, "alice", post.AuthorHandle)
	assert.Equal(t, "hello world", post.Body)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), post.CreatedAt)
	assert.Equal(t, 3, post.Replies)
	assert.Equal(t, 1100, post.Reposts)
	assert.Equal(t, 12345, post.Likes)
	assert.False(t, post.IsRepost)
	assert.False(t, post.Truncated)
	assert.True(t, len(post.URL) > 0 && post.URL[len(post.URL)-len("/status/1786001"):] == "/status/1786001")
}

func TestNormalizeRequiresNumericIdentity(t *testing.T) {
	h := newTestHarvester(nil, DefaultParams())

	_, err := h.normalize(rawArticle{ID: ""}, time.Now())
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = h.normalize(rawArticle{ID: "abc123"}, time.Now())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestNormalizeRepostClassification(t *testing.T) {
	h := newTestHarvester(nil, DefaultParams())

	// Social-context badge with a repost phrase classifies.
	post, err := h.normalize(rawArticle{
		ID:          "42",
		URL:         "https://x.com/bob/status/42",
		SocialBadge: true,
		SocialText:  "alice reposted",
		SocialHref:  "/alice",
		Handles:     []string{"alice", "bob"},
	}, time.Now())
	require.NoError(t, err)
	assert.True(t, post.IsRepost)
	assert.Equal(t, "bob", post.OriginalAuthor)

	// A pinned-post badge has no anchor and no repost phrase.
	post, err = h.normalize(rawArticle{
		ID:          "43",
		URL:         "https://x.com/alice/status/43",
		SocialBadge: true,
		SocialText:  "Pinned",
	}, time.Now())
	require.NoError(t, err)
	assert.False(t, post.IsRepost)

	// Two handles alone never classify; thread replies look like this.
	post, err = h.normalize(rawArticle{
		ID:      "44",
		URL:     "https://x.com/alice/status/44",
		Handles: []string{"alice", "bob"},
	}, time.Now())
	require.NoError(t, err)
	assert.False(t, post.IsRepost)
}

func TestResolveOriginalAuthorFallbacks(t *testing.T) {
	// Canonical path wins.
	assert.Equal(t, "bob", resolveOriginalAuthor(rawArticle{}, "bob"))

	// Second distinct handle, skipping the reposter from the social anchor.
	got := resolveOriginalAuthor(rawArticle{
		SocialHref: "/alice",
		Handles:    []string{"alice", "bob"},
	}, "")
	assert.Equal(t, "bob", got)

	// Mention inside the social-context text as last resort.
	got = resolveOriginalAuthor(rawArticle{
		SocialText: "reposted from @carol today",
	}, "")
	assert.Equal(t, "carol", got)

	assert.Empty(t, resolveOriginalAuthor(rawArticle{}, ""))
}

func TestCleanHandle(t *testing.T) {
	assert.Equal(t, "alice", cleanHandle("@alice"))
	assert.Equal(t, "alice_99", cleanHandle(" alice_99 "))
	assert.Empty(t, cleanHandle("not a handle"))
	assert.Empty(t, cleanHandle("waaaaaay_too_long_handle"))
}
