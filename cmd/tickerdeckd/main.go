package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tickerdeck/tickerdeck/internal/alerts"
	"github.com/tickerdeck/tickerdeck/internal/api"
	"github.com/tickerdeck/tickerdeck/internal/auth"
	"github.com/tickerdeck/tickerdeck/internal/config"
	"github.com/tickerdeck/tickerdeck/internal/feed"
	"github.com/tickerdeck/tickerdeck/internal/feedwatch"
	"github.com/tickerdeck/tickerdeck/internal/quotes"
	"github.com/tickerdeck/tickerdeck/internal/settings"
	"github.com/tickerdeck/tickerdeck/internal/subs"
	"github.com/tickerdeck/tickerdeck/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory (e.g. ui/dist); leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("tickerdeckd starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Deck.HTTPPort,
		"auth_mode", cfg.Deck.Auth.Mode,
		"feed_endpoint", cfg.Deck.Feed.Endpoint,
		"quote_ttl", cfg.Deck.Quotes.TTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Subscription controller — the admission and eviction core.
	controller := subs.New()

	// Quote cache with background TTL eviction.
	quoteStore := quotes.New(cfg.Deck.Quotes.TTL)
	go quoteStore.Run(ctx)

	// Base-limit setting, adjustable at runtime via the API and config reload.
	settingStore := settings.NewStore(cfg.Deck.Subscriptions.DefaultBaseLimit)

	// Feed-provider health watcher. Idles when no metrics endpoint is set.
	watcher := feedwatch.New(cfg.Deck.FeedHealth)
	go watcher.Run(ctx)

	// Alerts engine plus the eviction-rate meter feeding its evictions_pm field.
	alertEngine := alerts.New(cfg.Deck.Alerts)
	meter := alerts.NewMeter()

	// Upstream feed connection. Without an endpoint the deck still serves
	// REST and WebSocket state; there are just no live ticks.
	var sender *feed.Sender
	if cfg.Deck.Feed.Endpoint != "" {
		sender = feed.New(cfg.Deck.Feed, func(q quotes.Quote) {
			quoteStore.Put(q)
		})
		go func() {
			if err := sender.Run(ctx); err != nil {
				slog.Error("feed connection closed", "err", err)
			}
		}()
	}

	// The API subscribes keys upstream as they are registered; evictions
	// unsubscribe them via the controller subscriber below.
	deps := api.Deps{
		Controller: controller,
		Quotes:     quoteStore,
		Settings:   settingStore,
		Feed:       watcher,
		Alerts:     alertEngine,
		Sender:     sender,
	}

	// WebSocket hub — broadcasts the dashboard snapshot to UI clients. The
	// hub is handed a Clients hook onto itself so its own connection count
	// shows up in the snapshots it broadcasts.
	var hub *ws.Hub
	deps.Clients = func() int {
		if hub == nil {
			return 0
		}
		return hub.Count()
	}
	hub = ws.New(deps, cfg.Deck.Broadcast.Interval)
	go hub.Run(ctx)

	// Every eviction batch fans out to the feed (unsubscribe upstream), the
	// quote cache (drop stale entries), the meter (alert rates) and the hub
	// (immediate UI update). Runs inside the controller's notification path,
	// so none of these call back into it.
	controller.Subscribe(func(b subs.Batch) {
		if b.Empty() {
			return
		}
		if sender != nil {
			sender.ApplyEvictions(b)
		}
		quoteStore.Delete(append(b.Fast, b.Slow...)...)
		meter.Add(len(b.Fast) + len(b.Slow))
		hub.NotifyEvictions(b)
	})

	// Rule evaluation rides the broadcast interval.
	go evaluateAlerts(ctx, cfg.Deck.Broadcast.Interval, alertEngine, meter, controller, watcher)

	// Config hot-reload: only the runtime-tunable base limit is applied live.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			settingStore.Set(next.Deck.Subscriptions.DefaultBaseLimit)
			slog.Info("config reloaded",
				"base_limit", next.Deck.Subscriptions.DefaultBaseLimit)
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	// Combined HTTP server: REST API + WebSocket hub, behind API-key auth.
	apiHandler := auth.Middleware(
		cfg.Deck.Auth.Mode,
		cfg.Deck.Auth.EffectiveHeader(),
		cfg.Deck.Auth.Key(),
		api.New(deps),
	)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/ws/stream", hub)

	// Optional: serve the pre-built dashboard UI from a local directory.
	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			// SPA fallback: if the requested file doesn't exist, serve index.html.
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Deck.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Deck.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("tickerdeckd shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}

// evaluateAlerts samples controller, meter and feed state on every tick and
// runs the alert rules against it.
func evaluateAlerts(
	ctx context.Context,
	interval time.Duration,
	engine *alerts.Engine,
	meter *alerts.Meter,
	controller *subs.Controller,
	watcher *feedwatch.Watcher,
) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m := controller.Metrics()
			health := watcher.Health()
			engine.Evaluate(alerts.Stats{
				FastFillPct:   fillPct(m.Counts.Fast, m.Limits.Fast),
				SlowFillPct:   fillPct(m.Counts.Slow, m.Limits.Slow),
				EvictionsPM:   meter.RatePM(),
				FeedUptimePct: health.UptimePct,
				FeedState:     health.State,
			})
		}
	}
}

func fillPct(count, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(count) / float64(limit) * 100
}
