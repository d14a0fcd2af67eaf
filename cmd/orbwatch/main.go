package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/alejandrodnm/orbwatch/config"
	"github.com/alejandrodnm/orbwatch/internal/adapters/feed"
	"github.com/alejandrodnm/orbwatch/internal/adapters/notify"
	"github.com/alejandrodnm/orbwatch/internal/adapters/storage"
	"github.com/alejandrodnm/orbwatch/internal/adapters/yahoo"
	"github.com/alejandrodnm/orbwatch/internal/application/engine"
	"github.com/alejandrodnm/orbwatch/internal/application/session"
	"github.com/alejandrodnm/orbwatch/internal/domain"
	"github.com/alejandrodnm/orbwatch/internal/domain/breakout"
	"github.com/alejandrodnm/orbwatch/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "tick the session clock, run one poll cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	history := flag.Duration("history", 0, "print the alert journal for the last duration (e.g. 24h) and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	console := notify.NewConsole()

	if *history > 0 {
		if err := printHistory(cfg, console, *history); err != nil {
			slog.Error("history failed", "err", err)
			os.Exit(1)
		}
		return
	}

	symbols := domain.NormalizeSymbols(cfg.Symbols)
	state := session.NewState(symbols)

	ctrl, err := session.NewController(session.Config{
		Open:        cfg.Session.Open,
		Close:       cfg.Session.Close,
		Timezone:    cfg.Session.Timezone,
		TradingDays: cfg.Session.TradingDays,
		AlertFrom:   cfg.Session.AlertFrom,
		AlertUntil:  cfg.Session.AlertUntil,
	}, state)
	if err != nil {
		slog.Error("invalid session window", "err", err)
		os.Exit(1)
	}

	policy, err := breakout.Parse(cfg.Engine.Policy)
	if err != nil {
		slog.Error("invalid policy", "err", err)
		os.Exit(1)
	}

	slog.Info("orbwatch starting",
		"config", *configPath,
		"symbols", len(symbols),
		"policy", policy.Name(),
		"session", cfg.Session.Open+"-"+cfg.Session.Close,
		"timezone", cfg.Session.Timezone,
		"interval", cfg.PollInterval(),
		"once", *once,
	)

	var notifiers notify.Multi
	if cfg.Notify.Console {
		notifiers = append(notifiers, console)
	}
	dests := toDestinations(cfg.Destinations())
	if token := cfg.Secrets.TelegramBotToken; token != "" {
		if len(dests) == 0 {
			slog.Warn("telegram token set but no chat ids configured")
		} else {
			notifiers = append(notifiers, notify.NewTelegram(token, cfg.Notify.Telegram.APIBase, cfg.Notify.Telegram.Prefix))
			slog.Info("telegram notifier enabled", "chats", len(dests))
		}
	}

	var hub *feed.Hub
	if cfg.Feed.Enabled {
		hub = feed.NewHub(cfg.Feed.History)
		notifiers = append(notifiers, hub)
	}

	var journal ports.AlertJournal
	if cfg.Storage.Enabled {
		store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
		journal = store
	}

	engCfg := engine.DefaultConfig()
	engCfg.Interval = cfg.PollInterval()
	engCfg.Workers = cfg.Engine.Workers
	engCfg.FetchTimeout = cfg.FetchTimeout()
	engCfg.NotifyTimeout = cfg.NotifyTimeout()
	engCfg.Destinations = dests

	source := yahoo.NewClient(cfg.API.YahooBase, cfg.API.RatePerSec)
	eng := engine.New(engCfg, state, ctrl, policy, source, notifiers, journal)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// La ventana tiene que estar evaluada antes del primer ciclo.
	ctrl.Tick(time.Now())

	if *once {
		report := eng.RunCycle(ctx)
		if report.Skipped {
			slog.Info("session not open, nothing polled", "window", report.Window.String())
			return
		}
		console.PrintStates(symbols, state.Snapshot())
		slog.Info("cycle complete",
			"polled", report.Polled,
			"failed", report.Failed,
			"alerts", len(report.Alerts),
			"duration", report.Duration.Round(time.Millisecond),
		)
		return
	}

	var wg sync.WaitGroup

	var srv *http.Server
	if hub != nil {
		srv = &http.Server{Addr: cfg.Feed.Addr, Handler: hub.Handler(), ReadHeaderTimeout: 10 * time.Second}
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("alert feed listening", "addr", cfg.Feed.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("feed server failed", "err", err)
				cancel()
			}
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		ctrl.Run(ctx, cfg.Resolution())
	}()
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil {
			slog.Error("engine exited with error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		stop()
		hub.Close()
	}
	wg.Wait()

	slog.Info("orbwatch stopped cleanly")
}

func toDestinations(ids []string) []domain.Destination {
	out := make([]domain.Destination, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Destination(id))
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
