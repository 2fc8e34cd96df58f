package harvest

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rookeryhq/rookery/internal/types"
)

// rawArticle is the JSON shape the in-page extraction script returns for one
// post article node.
type rawArticle struct {
	ID           string   `json:"id"`
	URL          string   `json:"url"`
	Datetime     string   `json:"datetime"`
	Text         string   `json:"text"`
	HasShowMore  bool     `json:"hasShowMore"`
	Replies      string   `json:"replies"`
	Reposts      string   `json:"reposts"`
	Likes        string   `json:"likes"`
	AuthorHandle string   `json:"authorHandle"`
	AuthorName   string   `json:"authorName"`
	SocialText   string   `json:"socialText"`
	SocialHref   string   `json:"socialHref"`
	Handles      []string `json:"handles"`
	SocialBadge  bool     `json:"socialBadge"`
}

// handleRe validates platform handles.
var handleRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// statusPathRe picks the author and id out of a canonical status path.
var statusPathRe = regexp.MustCompile(`^/([A-Za-z0-9_]{1,15})/status/(\d+)`)

// extractArticleJS is the per-article extraction function shared by the
// timeline and single-post scripts. This is the one place that walks the
// platform's DOM; everything downstream sees rawArticle JSON.
// Receives an article element, returns a record or null.
func extractArticleJS(sel Selectors) string {
	return fmt.Sprintf(`
	(el) => {
		// Identity: prefer the status anchor that wraps the <time> node.
		const anchors = Array.from(el.querySelectorAll(%[1]q));
		let statusLink = anchors.find(a => a.querySelector('time')) || anchors[0];
		if (!statusLink) return null;
		const m = statusLink.pathname.match(/\/status\/(\d+)/);
		if (!m) return null;
		const id = m[1];
		const url = statusLink.origin + statusLink.pathname;

		const timeEl = statusLink.querySelector('time') || el.querySelector(%[2]q);
		const datetime = timeEl ? (timeEl.getAttribute('datetime') || '') : '';

		// Body: the tagged text block, else the first child carrying a
		// language attribute.
		let textEl = el.querySelector(%[3]q) || el.querySelector('[lang]');
		const text = textEl ? textEl.textContent : '';
		const hasShowMore = !!el.querySelector(%[4]q);

		const getMetric = (selector) => {
			const metricEl = el.querySelector(selector);
			if (!metricEl) return '0';
			const ariaLabel = metricEl.getAttribute('aria-label');
			if (ariaLabel) {
				const match = ariaLabel.match(/^([\d,.  ]+[KkMm]?)/);
				if (match) return match[1];
			}
			return (metricEl.textContent || '').trim() || '0';
		};
		const replies = getMetric(%[5]q);
		const reposts = getMetric(%[6]q);
		const likes = getMetric(%[7]q);

		// Author identity from the user-name header.
		let authorHandle = '';
		let authorName = '';
		const userNameEl = el.querySelector(%[8]q);
		if (userNameEl) {
			for (const span of userNameEl.querySelectorAll('span')) {
				const t = (span.textContent || '').trim();
				if (!t) continue;
				if (t.startsWith('@')) {
					if (!authorHandle) authorHandle = t.slice(1);
				} else if (!authorName) {
					authorName = t;
				}
			}
			if (!authorHandle) {
				const profileLink = userNameEl.querySelector('a[href^="/"]');
				if (profileLink) authorHandle = profileLink.pathname.split('/')[1] || '';
			}
		}

		// Repost signals.
		const socialEl = el.querySelector(%[9]q);
		const socialText = socialEl ? (socialEl.textContent || '') : '';
		let socialHref = '';
		if (socialEl) {
			const socialAnchor = socialEl.closest('a[href^="/"]') || socialEl.querySelector('a[href^="/"]');
			if (socialAnchor) socialHref = socialAnchor.pathname;
		}
		const socialBadge = !!socialEl && socialText !== '';

		// Distinct profile handles referenced by direct anchors.
		const handles = [];
		for (const a of el.querySelectorAll('a[href^="/"]')) {
			const seg = a.pathname.split('/').filter(Boolean);
			if (seg.length === 1 && /^[A-Za-z0-9_]{1,15}$/.test(seg[0]) && !handles.includes(seg[0])) {
				handles.push(seg[0]);
			}
		}

		return { id, url, datetime, text, hasShowMore, replies, reposts, likes,
			authorHandle, authorName, socialText, socialHref, handles, socialBadge };
	}`,
		sel.StatusLink, sel.Time, sel.PostText, sel.ShowMore,
		sel.Reply, sel.Repost, sel.Like,
		sel.UserName, sel.SocialContext)
}

// timelineExtractScript extracts every article not yet marked as seen and
// tags each one so the next scroll pass skips it. The tag is the concrete
// form of the seen-element set: a recycled DOM node loses it and is simply
// re-extracted, then deduplicated by post id.
func timelineExtractScript(sel Selectors) string {
	return fmt.Sprintf(`
	(() => {
		const extract = %s;
		const results = [];
		for (const el of document.querySelectorAll(%q)) {
			if (el.dataset.rkSeen) continue;
			el.dataset.rkSeen = '1';
			try {
				const rec = extract(el);
				if (rec) results.push(rec);
			} catch (e) { /* recycled mid-walk, next pass catches it */ }
		}
		return results;
	})()`, extractArticleJS(sel), sel.Article)
}

// singleArticleScript extracts the first article on a dedicated post page.
func singleArticleScript(sel Selectors) string {
	return fmt.Sprintf(`
	(() => {
		const extract = %s;
		const el = document.querySelector(%q);
		if (!el) return [];
		try {
			const rec = extract(el);
			return rec ? [rec] : [];
		} catch (e) { return []; }
	})()`, extractArticleJS(sel), sel.Article)
}

// bodyByIDScript re-reads the text block of the article containing the given
// status id, used after an inline expansion click.
func bodyByIDScript(sel Selectors, postID string) string {
	return fmt.Sprintf(`
	(() => {
		for (const el of document.querySelectorAll(%q)) {
			const a = el.querySelector('a[href*="/status/%s"]');
			if (!a) continue;
			const textEl = el.querySelector(%q) || el.querySelector('[lang]');
			return textEl ? textEl.textContent : '';
		}
		return '';
	})()`, sel.Article, postID, sel.PostText)
}

// clickShowMoreScript clicks the show-more control inside the article with
// the given status id. Returns true when a control was found.
func clickShowMoreScript(sel Selectors, postID string) string {
	return fmt.Sprintf(`
	(() => {
		for (const el of document.querySelectorAll(%q)) {
			const a = el.querySelector('a[href*="/status/%s"]');
			if (!a) continue;
			const more = el.querySelector(%q);
			if (more) { more.click(); return true; }
			return false;
		}
		return false;
	})()`, sel.Article, postID, sel.ShowMore)
}

// longestTextScript is the last-resort expansion: concatenate span and
// anchor texts of the first article's text block and let the caller keep
// the longest variant.
func longestTextScript(sel Selectors) string {
	return fmt.Sprintf(`
	(() => {
		const el = document.querySelector(%q);
		if (!el) return '';
		const textEl = el.querySelector(%q) || el.querySelector('[lang]');
		if (!textEl) return '';
		let joined = '';
		for (const node of textEl.querySelectorAll('span, a, img')) {
			if (node.tagName === 'IMG') { joined += node.getAttribute('alt') || ''; continue; }
			if (node.children.length === 0) joined += node.textContent || '';
		}
		const plain = textEl.textContent || '';
		return joined.length > plain.length ? joined : plain;
	})()`, sel.Article, sel.PostText)
}

// profileNameScript reads the display name from the profile header, falling
// back to the document title up to the first parenthesis.
func profileNameScript(sel Selectors) string {
	return fmt.Sprintf(`
	(() => {
		const header = document.querySelector(%q);
		if (header) {
			for (const span of header.querySelectorAll('span')) {
				const t = (span.textContent || '').trim();
				if (t && !t.startsWith('@')) return t;
			}
		}
		return (document.title.split('(')[0] || '').trim();
	})()`, sel.ProfileName)
}

// pageMetrics is the JSON shape of the scroll-settle probe.
type pageMetrics struct {
	DocHeight    int  `json:"docHeight"`
	Articles     int  `json:"articles"`
	NearBottom   bool `json:"nearBottom"`
	SpinnerShown bool `json:"spinnerShown"`
}

func pageMetricsScript(sel Selectors) string {
	return fmt.Sprintf(`
	(() => ({
		docHeight: document.documentElement.scrollHeight,
		articles: document.querySelectorAll(%q).length,
		nearBottom: (window.innerHeight + window.scrollY) >= document.documentElement.scrollHeight - 300,
		spinnerShown: !!document.querySelector(%q)
	}))()`, sel.Article, sel.Spinner)
}

// parseMetric converts abbreviated engagement strings like "1.2K", "5.7M",
// "1,234" or "12 345" to integers. Unknown or empty input decodes to 0.
func parseMetric(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	// Locale separators: commas, regular/narrow no-break spaces.
	for _, sep := range []string{",", " ", " ", " "} {
		s = strings.ReplaceAll(s, sep, "")
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(strings.ToUpper(s), "K"):
		multiplier = 1_000
		s = s[:len(s)-1]
	case strings.HasSuffix(strings.ToUpper(s), "M"):
		multiplier = 1_000_000
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0
	}
	return int(value * multiplier)
}

// isTruncated reports whether body text indicates a clipped post.
func isTruncated(text string, hasShowMore bool) bool {
	trimmed := strings.TrimSpace(text)
	return hasShowMore ||
		strings.HasSuffix(trimmed, "…") ||
		strings.HasSuffix(trimmed, "...")
}

// normalize converts a raw article record into a Post. It returns
// ErrNoIdentity when no numeric status id could be recovered.
func (h *Harvester) normalize(raw rawArticle, now time.Time) (types.Post, error) {
	if raw.ID == "" || !isDigits(raw.ID) {
		return types.Post{}, ErrNoIdentity
	}

	author, canonicalURL := authorFromStatusURL(raw.URL)
	if author == "" {
		author = cleanHandle(raw.AuthorHandle)
	}

	post := types.Post{
		PostID:       raw.ID,
		AuthorHandle: author,
		AuthorName:   strings.TrimSpace(raw.AuthorName),
		Body:         raw.Text,
		CreatedAt:    h.dates.Parse(raw.Datetime),
		URL:          canonicalURL,
		Replies:      parseMetric(raw.Replies),
		Reposts:      parseMetric(raw.Reposts),
		Likes:        parseMetric(raw.Likes),
		Truncated:    isTruncated(raw.Text, raw.HasShowMore),
		HarvestedAt:  now,
	}

	// Repost classification. The social-context badge (or a phrase match on
	// its text) is the authoritative signal; the bare two-handles heuristic
	// misfires on thread replies, so it never classifies on its own.
	if raw.SocialBadge && (matchesAny(raw.SocialText, h.profile.Phrases.Reposted) || raw.SocialHref != "") {
		post.IsRepost = true
		post.OriginalAuthor = resolveOriginalAuthor(raw, author)
	}

	return post, nil
}

// resolveOriginalAuthor determines the authored account of a repost. The
// canonical status path is authoritative; the social-context anchor and
// handle list only back it up when the path was unreadable.
func resolveOriginalAuthor(raw rawArticle, statusAuthor string) string {
	if statusAuthor != "" {
		return statusAuthor
	}

	// Social-context anchor names the reposter, not the author, so it is
	// only consulted to rule handles out.
	reposter := ""
	if m := strings.Split(strings.Trim(raw.SocialHref, "/"), "/"); len(m) > 0 && handleRe.MatchString(m[0]) {
		reposter = m[0]
	}
	for _, h := range raw.Handles {
		if !handleRe.MatchString(h) {
			continue
		}
		if !strings.EqualFold(h, reposter) {
			return h
		}
	}

	// Last resort: the first @mention inside the social-context text.
	if i := strings.Index(raw.SocialText, "@"); i >= 0 {
		rest := raw.SocialText[i+1:]
		end := 0
		for end < len(rest) && isHandleChar(rest[end]) {
			end++
		}
		if h := rest[:end]; handleRe.MatchString(h) {
			return h
		}
	}
	return ""
}

// authorFromStatusURL extracts the author handle from a canonical status URL
// and returns the URL with any query stripped.
func authorFromStatusURL(raw string) (handle, canonical string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	if m := statusPathRe.FindStringSubmatch(u.Path); m != nil {
		return m[1], u.String()
	}
	return "", u.String()
}

func cleanHandle(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "@")
	if !handleRe.MatchString(s) {
		return ""
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isHandleChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
