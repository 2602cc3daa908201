package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/marketdeck/feedcore/internal/coalesce"
	"github.com/marketdeck/feedcore/internal/config"
	"github.com/marketdeck/feedcore/internal/crosshair"
	"github.com/marketdeck/feedcore/internal/feed"
	"github.com/marketdeck/feedcore/internal/metrics"
	"github.com/marketdeck/feedcore/internal/profile"
	"github.com/marketdeck/feedcore/internal/quotes"
	"github.com/marketdeck/feedcore/internal/registry"
	"github.com/marketdeck/feedcore/internal/snapshot"
	"github.com/marketdeck/feedcore/internal/tickstore"
	"github.com/marketdeck/feedcore/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feedcore.local.yaml", "path to config file")
	flag.Parse()

	// Local overrides for ${VAR} expansion in the config file.
	godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting feedcored",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_url", cfg.Feed.URL,
		"market", cfg.Feed.Market,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	// Core state: volume profiles feed off the tick store, the
	// coalescer turns store writes into render frames.
	book := profile.NewBook(cfg.Profile.BinWidth)
	store := tickstore.New(book, m, logger)

	subs := registry.New(registry.Config{
		ReleaseDebounce: cfg.Registry.ReleaseDebounce,
		ChangeBuffer:    cfg.Registry.ChangeBuffer,
	}, m, logger)
	defer subs.Close()

	coalescer := coalesce.New(
		coalesce.NewFrameScheduler(cfg.Render.FrameInterval),
		m,
		logger,
	)
	defer coalescer.Close()

	store.SetListener(coalescer.Mark)

	bus := crosshair.NewBus(m, logger)

	// Quote snapshot client
	quoteClient := quotes.NewClient(
		cfg.Quotes.BaseURL,
		cfg.Quotes.APIKey,
		quotes.WithLogger(logger),
		quotes.WithTimeout(cfg.Quotes.Timeout),
		quotes.WithRetries(cfg.Quotes.MaxRetries, time.Second),
	)

	// Feed connection manager
	transport := feed.NewWSTransport(feed.ClientConfig{
		PingInterval: cfg.Feed.PingInterval,
		PingTimeout:  cfg.Feed.ReadTimeout,
		BufferSize:   cfg.Feed.BufferSize,
	}, logger)

	manager := feed.NewManager(feed.Config{
		URL:           cfg.Feed.URL,
		Market:        cfg.Feed.Market,
		BackoffBase:   cfg.Feed.ReconnectBaseDelay,
		BackoffMax:    cfg.Feed.ReconnectMaxDelay,
		BackoffJitter: cfg.Feed.ReconnectJitter,
	}, transport, subs, store, m, logger)

	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start feed manager", "error", err)
		os.Exit(1)
	}
	defer stopComponent(manager.Stop, logger, "feed manager")

	// Snapshot poller
	poller := snapshot.New(snapshot.Config{
		Interval:    cfg.Snapshot.Interval,
		BatchSize:   cfg.Snapshot.BatchSize,
		Concurrency: cfg.Snapshot.Concurrency,
		Timeout:     cfg.Snapshot.Timeout,
	}, quoteClient, subs, store, m, logger)

	if err := poller.Start(ctx); err != nil {
		logger.Error("failed to start snapshot poller", "error", err)
		os.Exit(1)
	}
	defer stopComponent(poller.Stop, logger, "snapshot poller")

	// Health and metrics server
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.Handle("/health", healthHandler(manager, store, subs, bus))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server",
			"port", cfg.Metrics.Port,
			"metrics_path", cfg.Metrics.Path,
		)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("feedcored running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("feedcored stopped")
}

func stopComponent(stop func(context.Context) error, logger *slog.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("component did not stop cleanly", "component", name, "error", err)
	}
}

// healthHandler reports component liveness. The feed state here is
// observational; stale prices render dimmed rather than blank, so a
// reconnecting feed is "degraded", not "unhealthy".
func healthHandler(manager *feed.Manager, store *tickstore.Store, subs *registry.Registry, bus *crosshair.Bus) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats := manager.Stats()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		active := subs.ActiveTokens()
		health.Components["feed"] = map[string]any{
			"state":      stats.State.String(),
			"subscribed": stats.Subscribed,
		}
		health.Components["tick_store"] = map[string]any{
			"tokens": store.Len(),
		}
		health.Components["subscriptions"] = map[string]any{
			"active": len(active),
		}
		health.Components["crosshair"] = map[string]any{
			"groups": bus.Groups(),
		}

		if len(active) > 0 && !manager.IsConnected() {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	})
}
