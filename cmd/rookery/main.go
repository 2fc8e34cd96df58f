// Command rookery harvests recent posts from a list of accounts on a
// JavaScript-heavy social platform and persists them to PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rookeryhq/rookery/internal/accounts"
	"github.com/rookeryhq/rookery/internal/app"
	"github.com/rookeryhq/rookery/internal/auth"
	"github.com/rookeryhq/rookery/internal/browser"
	"github.com/rookeryhq/rookery/internal/cache"
	"github.com/rookeryhq/rookery/internal/config"
	"github.com/rookeryhq/rookery/internal/harvest"
	"github.com/rookeryhq/rookery/internal/scheduler"
	"github.com/rookeryhq/rookery/internal/store"
)

const (
	exitOK        = 0
	exitFatal     = 1
	exitInterrupt = 130
)

type options struct {
	Config       string `short:"c" long:"config" env:"ROOKERY_CONFIG" description:"Path to TOML config file"`
	Accounts     string `short:"a" long:"accounts" env:"ROOKERY_ACCOUNTS" description:"Path to the account list file"`
	ForceRefresh bool   `long:"force-refresh" env:"ROOKERY_FORCE_REFRESH" description:"Bypass cached harvest snapshots"`
	Schedule     string `long:"schedule" env:"ROOKERY_SCHEDULE" description:"Cron expression for periodic runs (runs once when absent)"`
	Login        bool   `long:"login" description:"Open a visible browser to log in, capture the session, and exit"`
	Headful      bool   `long:"headful" description:"Run the harvest browser with a visible window"`
	Debug        bool   `long:"debug" env:"ROOKERY_DEBUG" description:"Enable debug logging"`
}

func main() {
	os.Exit(run())
}

func run() int {
	// A .env next to the binary is a convenience for store credentials.
	_ = godotenv.Load()

	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return exitOK
		}
		return exitFatal
	}

	logger := newLogger(opts.Debug)
	defer logger.Sync()

	cfg, err := config.Load(opts.Config)
	if err != nil {
		logger.Error("configuration invalid", zap.Error(err))
		return exitFatal
	}
	if opts.Headful {
		cfg.Browser.Headless = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browserCfg := browser.Config{
		Headless:   cfg.Browser.Headless,
		ProfileDir: cfg.Browser.ProfilePath,
		UserAgent:  cfg.Browser.UserAgent,
	}

	cookieStore := auth.NewCookieStore(cookiesPath(cfg))

	if opts.Login {
		if err := auth.InteractiveLogin(ctx, browserCfg, cfg.BaseURL, cookieStore, logger); err != nil {
			if ctx.Err() != nil {
				return exitInterrupt
			}
			logger.Error("login failed", zap.Error(err))
			return exitFatal
		}
		return exitOK
	}

	if opts.Accounts == "" {
		logger.Error("no account list given (--accounts)")
		return exitFatal
	}
	handles, err := accounts.Load(opts.Accounts, logger)
	if err != nil {
		logger.Error("account list unusable", zap.Error(err))
		return exitFatal
	}
	logger.Info("account list loaded", zap.Int("handles", len(handles)))

	profile, err := harvest.LoadProfile(cfg.Browser.SelectorsPath)
	if err != nil {
		logger.Error("selector profile unusable", zap.Error(err))
		return exitFatal
	}

	st, err := store.Open(store.Config{
		Host:     cfg.Store.Host,
		Port:     cfg.Store.Port,
		User:     cfg.Store.User,
		Password: cfg.Store.Password,
		Database: cfg.Store.Database,
		SSLMode:  cfg.Store.SSLMode,
	}, logger)
	if err != nil {
		logger.Error("store unavailable", zap.Error(err))
		return exitFatal
	}

	session, err := browser.NewSession(ctx, browserCfg, logger)
	if err != nil {
		st.Close()
		logger.Error("browser unavailable", zap.Error(err))
		return exitFatal
	}
	// Shutdown order on every path: browser first, then store.
	defer st.Close()
	defer session.Close()

	// Without a persistent profile the session needs the captured cookies.
	if cfg.Browser.ProfilePath == "" && cookieStore.IsValid() {
		if stored, err := cookieStore.Load(); err == nil {
			if err := session.InjectCookies(ctx, stored.Cookies); err != nil {
				logger.Warn("cookie injection failed, continuing logged out", zap.Error(err))
			}
		}
	}

	ca := cache.New(cfg.Cache.Dir, cfg.Cache.TTLHours, cfg.Cache.Enabled, logger)
	a := app.New(cfg, session, st, ca, profile, opts.ForceRefresh, logger)

	if opts.Schedule != "" {
		return runScheduled(ctx, a, handles, opts.Schedule, logger)
	}

	if err := a.Run(ctx, handles); err != nil {
		if ctx.Err() != nil {
			logger.Info("interrupted, shutting down")
			return exitInterrupt
		}
		logger.Error("harvest cycle failed", zap.Error(err))
		return exitFatal
	}
	return exitOK
}

// runScheduled blocks running harvest cycles on the cron expression until
// interrupted.
func runScheduled(ctx context.Context, a *app.App, handles []string, spec string, logger *zap.Logger) int {
	sched := scheduler.New(ctx, logger)
	if err := sched.AddJob("harvest", spec, func(jobCtx context.Context) error {
		return a.Run(jobCtx, handles)
	}); err != nil {
		logger.Error("invalid schedule", zap.Error(err))
		return exitFatal
	}

	sched.Start()
	logger.Info("scheduler running", zap.String("schedule", spec))

	<-ctx.Done()
	<-sched.Stop().Done()
	logger.Info("interrupted, shutting down")
	return exitInterrupt
}

func newLogger(debug bool) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(exitFatal)
	}
	return logger
}

func cookiesPath(cfg *config.Config) string {
	if cfg.Browser.CookiesPath != "" {
		return cfg.Browser.CookiesPath
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "cookies.json"
	}
	return filepath.Join(dir, "rookery", "cookies.json")
}
