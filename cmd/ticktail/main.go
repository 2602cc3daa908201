// ticktail subscribes to the given tokens and tails coalesced render
// frames to the console. It exercises the same registry, feed and
// coalescer wiring the daemon uses, one process, no HTTP surface.
//
// Usage: go run ./cmd/ticktail --config configs/feedcore.local.yaml NSE:RELIANCE NSE:TCS
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/marketdeck/feedcore/internal/coalesce"
	"github.com/marketdeck/feedcore/internal/config"
	"github.com/marketdeck/feedcore/internal/feed"
	"github.com/marketdeck/feedcore/internal/model"
	"github.com/marketdeck/feedcore/internal/registry"
	"github.com/marketdeck/feedcore/internal/tickstore"
)

func main() {
	configPath := flag.String("config", "configs/feedcore.local.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full tick JSON")
	flag.Parse()

	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ticktail [flags] TOKEN [TOKEN...]")
		os.Exit(2)
	}

	tokens := make([]model.Token, 0, flag.NArg())
	for _, arg := range flag.Args() {
		token, err := model.NormalizeToken(arg)
		if err != nil {
			logger.Error("bad token", "arg", arg, "error", err)
			os.Exit(2)
		}
		tokens = append(tokens, token)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	store := tickstore.New(nil, nil, logger)

	subs := registry.New(registry.Config{
		ReleaseDebounce: cfg.Registry.ReleaseDebounce,
		ChangeBuffer:    cfg.Registry.ChangeBuffer,
	}, nil, logger)
	defer subs.Close()

	coalescer := coalesce.New(
		coalesce.NewFrameScheduler(cfg.Render.FrameInterval),
		nil,
		logger,
	)
	defer coalescer.Close()

	store.SetListener(coalescer.Mark)

	// Print one line per token per frame, not per tick.
	coalescer.Register(func(dirty []model.Token) {
		for _, token := range dirty {
			tick, ok := store.Get(token)
			if !ok {
				continue
			}
			if *verbose {
				data, _ := json.Marshal(tick)
				fmt.Println(string(data))
				continue
			}
			fmt.Printf("%-20s  ltp=%.2f  chg=%+.2f (%.2f%%)  vol=%d  ts=%d\n",
				tick.Token, tick.LTP, tick.Change, tick.ChangePct, tick.Volume, tick.Timestamp)
		}
	})

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
	}, transport, subs, store, nil, logger)

	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start feed manager", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		manager.Stop(stopCtx)
	}()

	for _, token := range tokens {
		subs.Subscribe(token)
	}

	logger.Info("tailing", "tokens", len(tokens), "feed_url", cfg.Feed.URL)

	<-ctx.Done()
}
