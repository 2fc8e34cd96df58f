package harvest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile()

	assert.Equal(t, `article[data-testid="tweet"]`, p.Selectors.Article)
	assert.Equal(t, `[data-testid="tweetText"]`, p.Selectors.PostText)
	assert.NotEmpty(t, p.Selectors.SocialContext)
	assert.NotEmpty(t, p.Phrases.Reposted)
	assert.NotEmpty(t, p.Phrases.Unavailable)
}

func TestLoadProfileNoPath(t *testing.T) {
	p, err := LoadProfile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile(), p)
}

func TestLoadProfileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
selectors:
  article: 'div[data-testid="cellInnerDiv"] article'
  spinner: '.loading'
phrases:
  unavailable:
    - "page not found"
`), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, `div[data-testid="cellInnerDiv"] article`, p.Selectors.Article)
	assert.Equal(t, `.loading`, p.Selectors.Spinner)
	assert.Equal(t, `[data-testid="tweetText"]`, p.Selectors.PostText,
		"unset fields keep their defaults")
	assert.Equal(t, []string{"page not found"}, p.Phrases.Unavailable)
	assert.Equal(t, DefaultProfile().Phrases.Reposted, p.Phrases.Reposted)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadProfileBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selectors: [not, a, map]"), 0o644))

	_, err := LoadProfile(path)
	assert.Error(t, err)
}

func TestMatchesAny(t *testing.T) {
	phrases := []string{"account suspended", "doesn't exist"}

	assert.True(t, matchesAny("This Account Doesn't Exist, sorry", phrases))
	assert.True(t, matchesAny("ACCOUNT SUSPENDED", phrases))
	assert.False(t, matchesAny("everything is fine", phrases))
	assert.False(t, matchesAny("", phrases))
	assert.False(t, matchesAny("anything", nil))
}
