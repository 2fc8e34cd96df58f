package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// navigateDeadline is the hard page-load deadline.
const navigateDeadline = 60 * time.Second

// stealthScript runs before any page script on every new document. It
// neutralises the detection signals the platform is known to probe:
// the webdriver marker, empty plugin/language lists and the
// notification-permission mismatch headless Chrome exhibits.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
if (window.navigator.permissions && window.navigator.permissions.query) {
	const originalQuery = window.navigator.permissions.query.bind(window.navigator.permissions);
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications'
			? Promise.resolve({ state: Notification.permission })
			: originalQuery(parameters)
	);
}
`

// Config controls session construction.
type Config struct {
	Headless   bool
	ProfileDir string
	UserAgent  string
}

// Page is a handle on one browser tab. All operations honour the passed
// context, so a user interrupt is observable at every suspension point.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// Session owns the Chrome process and its primary tab.
type Session struct {
	Page
	allocCancel context.CancelFunc
}

// NewSession launches Chrome with stealth options and returns a session
// anchored on its primary tab. ctx bounds the lifetime of the whole browser.
func NewSession(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, Options(cfg.Headless, cfg.ProfileDir, cfg.UserAgent)...)

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		Page:        Page{ctx: tabCtx, cancel: tabCancel, logger: logger},
		allocCancel: allocCancel,
	}

	// Force Chrome startup and install the stealth patches before the
	// first navigation.
	if err := s.applyStealth(cfg.UserAgent); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	logger.Info("browser session started",
		zap.Bool("headless", cfg.Headless),
		zap.Bool("persistent_profile", cfg.ProfileDir != ""))

	return s, nil
}

// applyStealth registers the on-new-document patches and the user-agent
// override on the session's primary tab.
func (s *Session) applyStealth(userAgent string) error {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return chromedp.Run(s.ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		emulation.SetUserAgentOverride(userAgent),
	)
}

// Close shuts down the browser.
func (s *Session) Close() {
	s.cancel()
	s.allocCancel()
	if s.logger != nil {
		s.logger.Info("browser session closed")
	}
}

// OpenTab creates a fresh tab in the same browser. The caller must Close it.
// The new tab gets its own stealth patches; new targets do not inherit them.
func (s *Session) OpenTab(ctx context.Context) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.ctx)

	tab := &Page{ctx: tabCtx, cancel: tabCancel, logger: s.logger}
	err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	// Honour caller cancellation while the tab is in use.
	go func() {
		select {
		case <-ctx.Done():
			tabCancel()
		case <-tabCtx.Done():
		}
	}()

	return tab, nil
}

// InjectCookies installs previously captured session cookies. Used for
// ephemeral sessions where no persistent profile carries the login.
func (s *Session) InjectCookies(ctx context.Context, cookies []*network.Cookie) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithSameSite(c.SameSite).
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

// Run executes raw chromedp actions on this page, bounded by the caller
// context. Escape hatch for devtools-protocol work like cookie capture.
func (p *Page) Run(ctx context.Context, actions ...chromedp.Action) error {
	return p.run(ctx, actions...)
}

// run executes chromedp actions on this page, bounded by the caller context.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx := p.ctx
	if ctx != nil {
		var cancel context.CancelFunc
		opCtx, cancel = mergeContext(p.ctx, ctx)
		defer cancel()
	}
	return chromedp.Run(opCtx, actions...)
}

// mergeContext derives a chromedp-compatible context from the page context
// that is additionally cancelled when the caller context ends.
func mergeContext(pageCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(pageCtx)
	go func() {
		select {
		case <-callerCtx.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}

// Close releases the tab.
func (p *Page) Close() {
	p.cancel()
}

// domReadyExpr is the readiness gate for navigation: the DOM is parsed
// once readyState leaves "loading", well before the load event on pages
// that stream media and scripts.
const domReadyExpr = `document.readyState === "interactive" || document.readyState === "complete"`

// Navigate loads url, blocking until the document reaches readyState
// "interactive" or the 60 s hard deadline.
func (p *Page) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := context.WithTimeout(ctx, navigateDeadline)
	defer cancel()

	err := p.run(opCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errText, _, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return fmt.Errorf("%s", errText)
			}
			return nil
		}),
		chromedp.Poll(domReadyExpr, nil),
	)
	if err != nil {
		if classified := classifyDeadline(err, opCtx, ErrNavigationTimeout); classified == ErrNavigationTimeout {
			return fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
		}
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	return nil
}

// WaitVisible resolves once at least one element matching selector is
// present and visible, or fails with ErrWaitTimeout.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.run(opCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		if classified := classifyDeadline(err, opCtx, ErrWaitTimeout); classified == ErrWaitTimeout {
			return fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
		}
		return err
	}
	return nil
}

// Click clicks the first element matching selector.
func (p *Page) Click(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.run(opCtx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		if classified := classifyDeadline(err, opCtx, ErrWaitTimeout); classified == ErrWaitTimeout {
			return fmt.Errorf("%w: click %s", ErrWaitTimeout, selector)
		}
		if IsStale(err) {
			return fmt.Errorf("%w: click %s", ErrStaleElement, selector)
		}
		return err
	}
	return nil
}

// Eval runs js in page context and unmarshals the JSON-serialisable result
// into out. Pass nil to discard the result.
func (p *Page) Eval(ctx context.Context, js string, out any) error {
	if out == nil {
		return p.run(ctx, chromedp.Evaluate(js, nil))
	}
	return p.run(ctx, chromedp.Evaluate(js, out))
}

// CurrentURL returns the focused document's location.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// PageSource returns the full rendered document markup.
func (p *Page) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// ScrollBy scrolls the viewport vertically by dy pixels.
func (p *Page) ScrollBy(ctx context.Context, dy int) error {
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", dy), nil))
}

// ScrollTop returns the current vertical scroll offset.
func (p *Page) ScrollTop(ctx context.Context) (int, error) {
	var top int
	if err := p.run(ctx, chromedp.Evaluate("Math.round(window.scrollY)", &top)); err != nil {
		return 0, err
	}
	return top, nil
}
