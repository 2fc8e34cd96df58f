package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/rookeryhq/rookery/internal/browser"
)

// loginTimeout is how long the operator gets to complete the login by hand.
const loginTimeout = 5 * time.Minute

// InteractiveLogin opens a visible browser on the platform's login page,
// waits for the operator to finish logging in, then captures and stores the
// session cookies. With a persistent profile the cookies also land in the
// profile, so subsequent headless runs are authenticated either way.
func InteractiveLogin(ctx context.Context, cfg browser.Config, baseURL string, store *CookieStore, logger *zap.Logger) error {
	cfg.Headless = false

	sess, err := browser.NewSession(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start login browser: %w", err)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, baseURL+"/login"); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	logger.Info("complete the login in the browser window")

	cookies, err := waitForLogin(ctx, sess, baseURL)
	if err != nil {
		return err
	}

	if err := store.Save(cookies); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	logger.Info("login captured", zap.Int("cookies", len(cookies)))
	return nil
}

// waitForLogin polls until the browser lands on the home timeline with a
// session cookie set.
func waitForLogin(ctx context.Context, sess *browser.Session, baseURL string) ([]*network.Cookie, error) {
	timeout := time.After(loginTimeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("login timeout exceeded")
		case <-ticker.C:
			url, err := sess.CurrentURL(ctx)
			if err != nil {
				continue
			}
			if !strings.HasPrefix(url, baseURL+"/home") {
				continue
			}

			cookies, err := extractCookies(ctx, sess)
			if err != nil {
				continue
			}
			for _, c := range cookies {
				if c.Name == "auth_token" && c.Value != "" {
					return cookies, nil
				}
			}
		}
	}
}

func extractCookies(ctx context.Context, sess *browser.Session) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := sess.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	return cookies, err
}
