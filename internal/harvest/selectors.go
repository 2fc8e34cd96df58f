package harvest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Selectors holds every CSS selector the harvester touches. The platform
// changes its DOM frequently; all fragile strings live here (and in Phrases)
// so nothing else in the codebase has to know about them.
type Selectors struct {
	Article       string `yaml:"article"`
	PostText      string `yaml:"post_text"`
	Time          string `yaml:"time"`
	StatusLink    string `yaml:"status_link"`
	UserName      string `yaml:"user_name"`
	ProfileName   string `yaml:"profile_name"`
	SocialContext string `yaml:"social_context"`
	ShowMore      string `yaml:"show_more"`
	Spinner       string `yaml:"spinner"`
	Reply         string `yaml:"reply"`
	Repost        string `yaml:"repost"`
	Like          string `yaml:"like"`
}

// Phrases are the localised strings the harvester matches against page
// text. Matching is case-insensitive on both sides.
type Phrases struct {
	// Reposted marks the social-context badge of a repost.
	Reposted []string `yaml:"reposted"`
	// Unavailable identifies dead, suspended or restricted profiles.
	Unavailable []string `yaml:"unavailable"`
}

// Profile bundles selectors and phrases, optionally overridden from a YAML
// file when the platform shifts under us between releases.
type Profile struct {
	Selectors Selectors `yaml:"selectors"`
	Phrases   Phrases   `yaml:"phrases"`
}

// DefaultProfile returns the built-in selector set for the current DOM.
func DefaultProfile() *Profile {
	return &Profile{
		Selectors: Selectors{
			Article:       `article[data-testid="tweet"]`,
			PostText:      `[data-testid="tweetText"]`,
			Time:          `time`,
			StatusLink:    `a[href*="/status/"]`,
			UserName:      `[data-testid="User-Name"]`,
			ProfileName:   `[data-testid="UserName"]`,
			SocialContext: `[data-testid="socialContext"]`,
			ShowMore:      `[data-testid="tweet-text-show-more-link"]`,
			Spinner:       `[role="progressbar"]`,
			Reply:         `[data-testid="reply"]`,
			Repost:        `[data-testid="retweet"]`,
			Like:          `[data-testid="like"]`,
		},
		Phrases: Phrases{
			Reposted: []string{
				"reposted",
				"retweeted",
				"hat repostet",
				"a reposté",
				"reposteó",
				"repostou",
			},
			Unavailable: []string{
				"this account doesn't exist",
				"account suspended",
				"something went wrong",
				"these posts are protected",
				"caution: this account is temporarily restricted",
			},
		},
	}
}

// LoadProfile overlays the YAML file at path onto the defaults. Empty
// fields in the file keep their default values.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selector profile: %w", err)
	}

	var override Profile
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse selector profile: %w", err)
	}

	mergeSelectors(&p.Selectors, override.Selectors)
	if len(override.Phrases.Reposted) > 0 {
		p.Phrases.Reposted = override.Phrases.Reposted
	}
	if len(override.Phrases.Unavailable) > 0 {
		p.Phrases.Unavailable = override.Phrases.Unavailable
	}

	return p, nil
}

func mergeSelectors(dst *Selectors, src Selectors) {
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	set(&dst.Article, src.Article)
	set(&dst.PostText, src.PostText)
	set(&dst.Time, src.Time)
	set(&dst.StatusLink, src.StatusLink)
	set(&dst.UserName, src.UserName)
	set(&dst.ProfileName, src.ProfileName)
	set(&dst.SocialContext, src.SocialContext)
	set(&dst.ShowMore, src.ShowMore)
	set(&dst.Spinner, src.Spinner)
	set(&dst.Reply, src.Reply)
	set(&dst.Repost, src.Repost)
	set(&dst.Like, src.Like)
}

// matchesAny reports whether text contains any of the phrases,
// case-insensitively.
func matchesAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
