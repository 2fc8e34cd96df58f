// Package harvest implements the per-account scroll-and-extract pipeline:
// discovery on the virtualised timeline, post extraction, repost resolution
// through a throwaway tab, deduplication and time-window filtering.
package harvest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rookeryhq/rookery/internal/dateparse"
	"github.com/rookeryhq/rookery/internal/types"
)

// Page is the read/drive surface of one browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Eval(ctx context.Context, js string, out any) error
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	ScrollBy(ctx context.Context, dy int) error
}

// Tab is a disposable secondary page.
type Tab interface {
	Page
	Close()
}

// Driver is the browser capability the harvester needs: a primary tab plus
// the ability to open throwaway tabs for repost resolution. The timeline
// tab is never navigated away once loaded, so scroll progress survives.
type Driver interface {
	Page
	OpenTab(ctx context.Context) (Tab, error)
}

// Params bounds one account harvest.
type Params struct {
	HoursWindow         int
	MaxPostsReturned    int
	MaxScrolls          int
	MaxConsecutiveNoNew int
	CollectCap          int
	ExpandTruncated     bool
}

// DefaultParams returns the documented loop defaults.
func DefaultParams() Params {
	return Params{
		HoursWindow:         24,
		MaxPostsReturned:    15,
		MaxScrolls:          40,
		MaxConsecutiveNoNew: 5,
		CollectCap:          100,
		ExpandTruncated:     true,
	}
}

// Result is the outcome of one account harvest. Posts is filtered by the
// time window, sorted newest-first and capped; All carries every collected
// post so the store accumulates history beyond the window.
type Result struct {
	Account types.Account
	Posts   []types.Post
	All     []types.Post
}

// Harvester drives one browser session across accounts, one at a time.
type Harvester struct {
	drv     Driver
	profile *Profile
	dates   *dateparse.Parser
	params  Params
	logger  *zap.Logger
	baseURL string

	// timing knobs, shrunk in tests
	initialWait   time.Duration
	settleTimeout time.Duration
	settlePoll    time.Duration
	idleSleep     time.Duration
	expandDelay   time.Duration

	now func() time.Time
}

// New creates a harvester over drv. baseURL is the platform origin,
// e.g. "https://x.com".
func New(drv Driver, profile *Profile, params Params, baseURL string, logger *zap.Logger) *Harvester {
	return &Harvester{
		drv:     drv,
		profile: profile,
		dates:   dateparse.New(logger),
		params:  params,
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),

		initialWait:   15 * time.Second,
		settleTimeout: 7 * time.Second,
		settlePoll:    250 * time.Millisecond,
		idleSleep:     time.Second,
		expandDelay:   400 * time.Millisecond,

		now: time.Now,
	}
}

// HarvestAccount runs the bounded scroll-and-extract loop for one handle.
//
// An unavailable account (not found, suspended, restricted) is not an
// error: the result is empty and the account record still carries the
// handle so the caller can bump its row.
func (h *Harvester) HarvestAccount(ctx context.Context, handle string) (*Result, error) {
	profileURL := h.baseURL + "/" + handle

	if err := h.navigateWithRetry(ctx, profileURL); err != nil {
		return nil, err
	}

	if err := h.drv.WaitVisible(ctx, h.profile.Selectors.Article, h.initialWait); err != nil {
		source, srcErr := h.drv.PageSource(ctx)
		if srcErr == nil && matchesAny(source, h.profile.Phrases.Unavailable) {
			h.logger.Info("account unavailable", zap.String("handle", handle))
			return &Result{Account: types.Account{Handle: handle, DisplayName: handle}}, nil
		}
		return nil, fmt.Errorf("profile %s never rendered: %w", handle, err)
	}

	account := types.Account{Handle: handle, DisplayName: h.profileDisplayName(ctx)}

	collected := h.scrollAndCollect(ctx, handle)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filtered := filterWindow(collected, h.now().UTC(), h.params.HoursWindow)
	sortNewestFirst(filtered)
	if len(filtered) > h.params.MaxPostsReturned {
		filtered = filtered[:h.params.MaxPostsReturned]
	}

	h.logger.Info("account harvested",
		zap.String("handle", handle),
		zap.Int("collected", len(collected)),
		zap.Int("in_window", len(filtered)))

	return &Result{Account: account, Posts: filtered, All: collected}, nil
}

// navigateWithRetry loads a URL, retrying once on failure.
func (h *Harvester) navigateWithRetry(ctx context.Context, url string) error {
	err := h.drv.Navigate(ctx, url)
	if err == nil || ctx.Err() != nil {
		return err
	}
	h.logger.Warn("navigation failed, retrying once", zap.String("url", url), zap.Error(err))
	return h.drv.Navigate(ctx, url)
}

func (h *Harvester) profileDisplayName(ctx context.Context) string {
	var name string
	if err := h.drv.Eval(ctx, profileNameScript(h.profile.Selectors), &name); err != nil {
		h.logger.Debug("profile display name unreadable", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(name)
}

// scrollAndCollect is the discovery loop: scroll, wait for the timeline to
// grow, extract unseen articles, resolve reposts, and stop when any bound
// trips.
func (h *Harvester) scrollAndCollect(ctx context.Context, handle string) []types.Post {
	var collected []types.Post
	seenIDs := make(map[string]struct{})
	noNewStreak := 0

	for scrolls := 0; scrolls < h.params.MaxScrolls &&
		noNewStreak < h.params.MaxConsecutiveNoNew &&
		len(collected) < h.params.CollectCap; scrolls++ {

		if ctx.Err() != nil {
			return collected
		}

		before, ok := h.metrics(ctx)
		if !ok {
			return collected
		}

		if err := h.drv.ScrollBy(ctx, 1000); err != nil {
			h.logger.Warn("scroll failed", zap.Error(err))
			return collected
		}

		after := h.settle(ctx, before)

		added := 0
		for _, raw := range h.extractUnseen(ctx) {
			post, err := h.normalize(raw, h.now().UTC())
			if err != nil {
				continue
			}
			if _, dup := seenIDs[post.PostID]; dup {
				continue
			}

			if post.IsRepost {
				original, err := h.resolveOriginal(ctx, post)
				if err != nil {
					h.logger.Warn("skipping unresolvable repost",
						zap.String("post_id", post.PostID), zap.Error(err))
					seenIDs[post.PostID] = struct{}{}
					continue
				}
				post = original
				post.IsRepost = true
				post.OriginalAuthor = original.AuthorHandle
				post.ReposterHandle = handle
			} else if post.Truncated && h.params.ExpandTruncated {
				post = h.expandInline(ctx, post)
			}

			// A repost may resolve to an id already collected via another
			// article; dedup on the canonical id, not the element.
			if _, dup := seenIDs[post.PostID]; dup {
				continue
			}
			seenIDs[post.PostID] = struct{}{}
			collected = append(collected, post)
			added++

			if len(collected) >= h.params.CollectCap {
				break
			}
		}

		if added == 0 {
			noNewStreak++
		} else {
			noNewStreak = 0
		}

		if after.NearBottom && !after.SpinnerShown && noNewStreak >= h.params.MaxConsecutiveNoNew {
			break
		}
	}

	return collected
}

// settle waits up to settleTimeout for the scroll to take effect: either
// more articles or a meaningfully taller document. When neither happens it
// idles briefly and lets the outer loop decide.
func (h *Harvester) settle(ctx context.Context, before pageMetrics) pageMetrics {
	deadline := time.Now().Add(h.settleTimeout)
	last := before

	for time.Now().Before(deadline) {
		if !sleepCtx(ctx, h.settlePoll) {
			return last
		}
		m, ok := h.metrics(ctx)
		if !ok {
			return last
		}
		last = m
		if m.Articles > before.Articles || m.DocHeight > before.DocHeight+100 {
			return m
		}
	}

	sleepCtx(ctx, h.idleSleep)
	return last
}

func (h *Harvester) metrics(ctx context.Context) (pageMetrics, bool) {
	var m pageMetrics
	if err := h.drv.Eval(ctx, pageMetricsScript(h.profile.Selectors), &m); err != nil {
		h.logger.Warn("page metrics probe failed", zap.Error(err))
		return pageMetrics{}, false
	}
	return m, true
}

func (h *Harvester) extractUnseen(ctx context.Context) []rawArticle {
	var raws []rawArticle
	if err := h.drv.Eval(ctx, timelineExtractScript(h.profile.Selectors), &raws); err != nil {
		h.logger.Warn("timeline extraction failed", zap.Error(err))
		return nil
	}
	return raws
}

// expandInline clicks the show-more control of a truncated post on the
// timeline and re-reads the body. Expansion is best-effort; on any failure
// the clipped body stands and keeps its truncated flag.
func (h *Harvester) expandInline(ctx context.Context, post types.Post) types.Post {
	sel := h.profile.Selectors

	var clicked bool
	if err := h.drv.Eval(ctx, clickShowMoreScript(sel, post.PostID), &clicked); err != nil || !clicked {
		return post
	}
	sleepCtx(ctx, h.expandDelay)

	var body string
	if err := h.drv.Eval(ctx, bodyByIDScript(sel, post.PostID), &body); err != nil {
		return post
	}
	if len(body) > len(post.Body) {
		post.Body = body
		post.Truncated = isTruncated(body, false)
	}
	return post
}

// filterWindow keeps posts whose creation time falls within the last
// hoursWindow hours of now. A zero window keeps nothing.
func filterWindow(posts []types.Post, now time.Time, hoursWindow int) []types.Post {
	if hoursWindow <= 0 {
		return nil
	}
	cutoff := now.Add(-time.Duration(hoursWindow) * time.Hour)
	var out []types.Post
	for _, p := range posts {
		if !p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

func sortNewestFirst(posts []types.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

// sleepCtx sleeps for d unless ctx ends first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
