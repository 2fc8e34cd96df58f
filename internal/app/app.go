// Package app wires the harvest pipeline together and runs accounts
// strictly sequentially over one browser session.
package app

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/rookeryhq/rookery/internal/browser"
	"github.com/rookeryhq/rookery/internal/cache"
	"github.com/rookeryhq/rookery/internal/config"
	"github.com/rookeryhq/rookery/internal/harvest"
	"github.com/rookeryhq/rookery/internal/store"
	"github.com/rookeryhq/rookery/internal/types"
)

// sessionDriver adapts the concrete browser session to the harvester's
// driver interface.
type sessionDriver struct {
	*browser.Session
}

func (d sessionDriver) OpenTab(ctx context.Context) (harvest.Tab, error) {
	return d.Session.OpenTab(ctx)
}

// App runs one harvest cycle across the configured accounts.
type App struct {
	cfg          *config.Config
	session      *browser.Session
	store        *store.Store
	cache        *cache.Cache
	profile      *harvest.Profile
	logger       *zap.Logger
	forceRefresh bool
}

func New(cfg *config.Config, session *browser.Session, st *store.Store, ca *cache.Cache,
	profile *harvest.Profile, forceRefresh bool, logger *zap.Logger) *App {
	return &App{
		cfg:          cfg,
		session:      session,
		store:        st,
		cache:        ca,
		profile:      profile,
		logger:       logger,
		forceRefresh: forceRefresh,
	}
}

// Run harvests every handle in order. A failure on one account never blocks
// the next; only cancellation stops the cycle early.
func (a *App) Run(ctx context.Context, handles []string) error {
	hc := a.cfg.Harvest
	params := harvest.Params{
		HoursWindow:         hc.HoursWindow,
		MaxPostsReturned:    hc.MaxPostsReturned,
		MaxScrolls:          hc.MaxScrolls,
		MaxConsecutiveNoNew: hc.MaxConsecutiveNoNew,
		CollectCap:          hc.CollectCap,
		ExpandTruncated:     hc.ExpandTruncated,
	}

	h := harvest.New(sessionDriver{a.session}, a.profile, params, a.cfg.BaseURL, a.logger)

	if hc.Shuffle {
		handles = shuffled(handles)
	}

	for i, handle := range handles {
		if err := ctx.Err(); err != nil {
			return err
		}

		if i > 0 {
			if !a.pause(ctx) {
				return ctx.Err()
			}
		}

		a.harvestOne(ctx, h, handle)
	}

	return ctx.Err()
}

// harvestOne runs cache check, harvest and persistence for one account.
// Errors are account-local: logged, never propagated.
func (a *App) harvestOne(ctx context.Context, h *harvest.Harvester, handle string) {
	if posts, hit := a.cache.Read(handle, a.cfg.Harvest.HoursWindow, a.forceRefresh); hit {
		a.logger.Info("serving cached harvest",
			zap.String("handle", handle), zap.Int("posts", len(posts)))
		return
	}

	result, err := h.HarvestAccount(ctx, handle)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		a.logger.Warn("account harvest failed, moving on",
			zap.String("handle", handle), zap.Error(err))
		return
	}

	// The store gets the unfiltered collection so history accumulates
	// beyond the window.
	batch := types.HarvestBatch{Account: result.Account, Posts: result.All}
	rows, err := a.store.SaveBatch(ctx, batch)
	if err != nil {
		a.logger.Warn("persist failed, batch rolled back",
			zap.String("handle", handle), zap.Error(err))
		return
	}

	if err := a.cache.Write(handle, a.cfg.Harvest.HoursWindow, result.Posts); err != nil {
		a.logger.Warn("cache write failed", zap.String("handle", handle), zap.Error(err))
	}

	a.logger.Info("account committed",
		zap.String("handle", handle),
		zap.Int("posts", len(batch.Posts)),
		zap.Int64("rows", rows))
}

// pause sleeps a bounded random interval between accounts. Returns false on
// cancellation.
func (a *App) pause(ctx context.Context) bool {
	min, max := a.cfg.Pause.MinSeconds, a.cfg.Pause.MaxSeconds
	d := time.Duration(min) * time.Second
	if max > min {
		d += time.Duration(rand.Intn((max-min)*1000)) * time.Millisecond
	}
	a.logger.Debug("inter-account pause", zap.Duration("sleep", d))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func shuffled(handles []string) []string {
	out := make([]string, len(handles))
	copy(out, handles)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
