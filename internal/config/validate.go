package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *DaemonConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if c.Feed.Market == "" {
		return errors.New("feed.market is required")
	}
	if c.Feed.ReconnectBaseDelay > c.Feed.ReconnectMaxDelay {
		return fmt.Errorf("feed.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Feed.ReconnectBaseDelay, c.Feed.ReconnectMaxDelay)
	}
	if c.Feed.ReconnectJitter < 0 || c.Feed.ReconnectJitter >= 1 {
		return fmt.Errorf("feed.reconnect_jitter must be in [0, 1), got %v", c.Feed.ReconnectJitter)
	}

	if c.Quotes.BaseURL == "" {
		return errors.New("quotes.base_url is required")
	}

	if c.Registry.ReleaseDebounce < 0 {
		return errors.New("registry.release_debounce must be >= 0")
	}
	if c.Registry.ChangeBuffer < 1 {
		return errors.New("registry.change_buffer must be >= 1")
	}

	if c.Render.FrameInterval < time.Millisecond || c.Render.FrameInterval > time.Second {
		return fmt.Errorf("render.frame_interval must be between 1ms and 1s, got %v", c.Render.FrameInterval)
	}

	if c.Profile.BinWidth <= 0 {
		return errors.New("profile.bin_width must be > 0")
	}

	if c.Snapshot.BatchSize < 1 {
		return errors.New("snapshot.batch_size must be >= 1")
	}
	if c.Snapshot.Concurrency < 1 {
		return errors.New("snapshot.concurrency must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
