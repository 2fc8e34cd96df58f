package harvest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rookeryhq/rookery/internal/types"
)

// postWait bounds the wait for the article on a dedicated post page.
const postWait = 15 * time.Second

// resolveOriginal fetches the canonical fields of a reposted post from its
// own page. It opens a throwaway tab so the timeline tab keeps its scroll
// position; the tab is closed before returning no matter what.
//
// seed carries the identity extracted from the timeline article: the
// canonical status URL already names the original author and post id.
func (h *Harvester) resolveOriginal(ctx context.Context, seed types.Post) (types.Post, error) {
	if seed.URL == "" {
		return types.Post{}, fmt.Errorf("%w: no canonical url for %s", ErrRepostUnresolved, seed.PostID)
	}

	tab, err := h.drv.OpenTab(ctx)
	if err != nil {
		return types.Post{}, fmt.Errorf("%w: %v", ErrRepostUnresolved, err)
	}
	defer tab.Close()

	if err := tab.Navigate(ctx, seed.URL); err != nil {
		return types.Post{}, fmt.Errorf("%w: %v", ErrRepostUnresolved, err)
	}
	if err := tab.WaitVisible(ctx, h.profile.Selectors.Article, postWait); err != nil {
		return types.Post{}, fmt.Errorf("%w: %v", ErrRepostUnresolved, err)
	}

	original, err := h.extractSingle(ctx, tab)
	if err != nil {
		return types.Post{}, err
	}

	if original.Truncated && h.params.ExpandTruncated {
		original = h.expandOnPostPage(ctx, tab, original)
	}

	h.logger.Debug("repost resolved",
		zap.String("post_id", original.PostID),
		zap.String("author", original.AuthorHandle))

	return original, nil
}

// extractSingle runs the extraction script against the first article on a
// dedicated post page.
func (h *Harvester) extractSingle(ctx context.Context, tab Page) (types.Post, error) {
	var raws []rawArticle
	if err := tab.Eval(ctx, singleArticleScript(h.profile.Selectors), &raws); err != nil {
		return types.Post{}, fmt.Errorf("%w: %v", ErrRepostUnresolved, err)
	}
	if len(raws) == 0 {
		return types.Post{}, fmt.Errorf("%w: no article rendered", ErrRepostUnresolved)
	}

	post, err := h.normalize(raws[0], h.now().UTC())
	if err != nil {
		return types.Post{}, fmt.Errorf("%w: %v", ErrRepostUnresolved, err)
	}

	// The dedicated page shows the post itself, never a repost shell.
	post.IsRepost = false
	post.OriginalAuthor = ""
	return post, nil
}

// expandOnPostPage tries the show-more control, then falls back to a JS
// concatenation over the text block's fragments, keeping the longest body
// observed.
func (h *Harvester) expandOnPostPage(ctx context.Context, tab Page, post types.Post) types.Post {
	sel := h.profile.Selectors

	if err := tab.Click(ctx, sel.ShowMore, 2*time.Second); err == nil {
		sleepCtx(ctx, h.expandDelay)
		if expanded, err := h.extractSingle(ctx, tab); err == nil && len(expanded.Body) > len(post.Body) {
			expanded.IsRepost = post.IsRepost
			post = expanded
		}
	}

	if post.Truncated {
		var joined string
		if err := tab.Eval(ctx, longestTextScript(sel), &joined); err == nil && len(joined) > len(post.Body) {
			post.Body = joined
			post.Truncated = isTruncated(joined, false)
		}
	}

	return post
}
