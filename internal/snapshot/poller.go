package snapshot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marketdeck/feedcore/internal/metrics"
	"github.com/marketdeck/feedcore/internal/model"
)

// TokenSource provides the tokens to snapshot. The subscription
// registry satisfies this.
type TokenSource interface {
	ActiveTokens() []model.Token
}

// Fetcher fetches batched quote snapshots. The quotes client
// satisfies this.
type Fetcher interface {
	GetQuotes(ctx context.Context, tokens []model.Token) ([]model.Tick, error)
}

// Sink merges snapshot ticks. The tick store satisfies this; its
// last-timestamp-wins rule keeps stale snapshots from clobbering
// fresher live ticks.
type Sink interface {
	ApplySnapshot(ticks []model.Tick) int
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 5s)
	BatchSize   int           // Tokens per request (default: 50)
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Second,
		BatchSize:   50,
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// Poller periodically snapshots all subscribed tokens via the quote
// REST API, covering feed warm-up and reconnect gaps.
type Poller struct {
	cfg     Config
	fetcher Fetcher
	source  TokenSource
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, fetcher Fetcher, source TokenSource, sink Sink, m *metrics.Metrics, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		source:  source,
		sink:    sink,
		logger:  logger,
		metrics: m,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started",
		"interval", p.cfg.Interval,
		"batch_size", p.cfg.BatchSize,
	)

	return nil
}

// Stop gracefully shuts down the poller. In-flight fetches are
// cancelled; their results never reach the sink.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start so newly subscribed tokens render
	// before the first stream tick arrives.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll snapshots every subscribed token in concurrent batches.
func (p *Poller) pollAll() {
	start := time.Now()

	tokens := p.source.ActiveTokens()
	if len(tokens) == 0 {
		p.logger.Debug("no subscribed tokens to snapshot")
		return
	}

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var applied, errCount atomic.Int64

	for _, batch := range p.batches(tokens) {
		wg.Add(1)
		go func(batch []model.Token) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			n, err := p.pollBatch(batch)
			if err != nil {
				p.logger.Warn("snapshot batch failed",
					"tokens", len(batch),
					"err", err,
				)
				p.metrics.SnapshotErrors.Inc()
				errCount.Add(1)
				return
			}

			p.metrics.SnapshotFetches.Inc()
			applied.Add(int64(n))
		}(batch)
	}

	wg.Wait()

	p.logger.Info("snapshot cycle complete",
		"tokens", len(tokens),
		"applied", applied.Load(),
		"errors", errCount.Load(),
		"duration", time.Since(start),
	)
}

// pollBatch fetches one batch and merges it into the sink.
func (p *Poller) pollBatch(batch []model.Token) (int, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	ticks, err := p.fetcher.GetQuotes(ctx, batch)
	if err != nil {
		return 0, err
	}

	// Discard results that raced a shutdown.
	if p.ctx.Err() != nil {
		return 0, p.ctx.Err()
	}

	return p.sink.ApplySnapshot(ticks), nil
}

// batches splits tokens into BatchSize chunks.
func (p *Poller) batches(tokens []model.Token) [][]model.Token {
	var out [][]model.Token
	for i := 0; i < len(tokens); i += p.cfg.BatchSize {
		end := i + p.cfg.BatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, tokens[i:end])
	}
	return out
}
