package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedURL             = "wss://stream.marketdeck.io/v1/ticks"
	DefaultQuotesURL           = "https://api.marketdeck.io"
	DefaultQuoteTimeout        = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultReconnectBaseDelay  = 500 * time.Millisecond
	DefaultReconnectMaxDelay   = 30 * time.Second
	DefaultReconnectJitter     = 0.2
	DefaultPingInterval        = 15 * time.Second
	DefaultReadTimeout         = 60 * time.Second
	DefaultBufferSize          = 4096
	DefaultReleaseDebounce     = 300 * time.Millisecond
	DefaultChangeBuffer        = 256
	DefaultFrameInterval       = 16 * time.Millisecond
	DefaultBinWidth            = 0.05
	DefaultSnapshotInterval    = 5 * time.Second
	DefaultSnapshotBatchSize   = 50
	DefaultSnapshotConcurrency = 4
	DefaultSnapshotTimeout     = 10 * time.Second
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
)

func (c *DaemonConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.ReconnectJitter == 0 {
		c.Feed.ReconnectJitter = DefaultReconnectJitter
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.ReadTimeout == 0 {
		c.Feed.ReadTimeout = DefaultReadTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultBufferSize
	}

	// Quotes defaults
	if c.Quotes.BaseURL == "" {
		c.Quotes.BaseURL = DefaultQuotesURL
	}
	if c.Quotes.Timeout == 0 {
		c.Quotes.Timeout = DefaultQuoteTimeout
	}
	if c.Quotes.MaxRetries == 0 {
		c.Quotes.MaxRetries = DefaultMaxRetries
	}

	// Registry defaults
	if c.Registry.ReleaseDebounce == 0 {
		c.Registry.ReleaseDebounce = DefaultReleaseDebounce
	}
	if c.Registry.ChangeBuffer == 0 {
		c.Registry.ChangeBuffer = DefaultChangeBuffer
	}

	// Render defaults
	if c.Render.FrameInterval == 0 {
		c.Render.FrameInterval = DefaultFrameInterval
	}

	// Profile defaults
	if c.Profile.BinWidth == 0 {
		c.Profile.BinWidth = DefaultBinWidth
	}

	// Snapshot defaults
	if c.Snapshot.Interval == 0 {
		c.Snapshot.Interval = DefaultSnapshotInterval
	}
	if c.Snapshot.BatchSize == 0 {
		c.Snapshot.BatchSize = DefaultSnapshotBatchSize
	}
	if c.Snapshot.Concurrency == 0 {
		c.Snapshot.Concurrency = DefaultSnapshotConcurrency
	}
	if c.Snapshot.Timeout == 0 {
		c.Snapshot.Timeout = DefaultSnapshotTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
