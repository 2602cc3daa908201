package config

import "time"

// DaemonConfig is the root configuration for a feedcore daemon.
type DaemonConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Quotes   QuotesConfig   `yaml:"quotes"`
	Registry RegistryConfig `yaml:"registry"`
	Render   RenderConfig   `yaml:"render"`
	Profile  ProfileConfig  `yaml:"profile"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this daemon.
type InstanceConfig struct {
	ID  string `yaml:"id"`
	Env string `yaml:"env"`
}

// FeedConfig holds the streaming feed connection settings.
type FeedConfig struct {
	URL                string        `yaml:"url"`
	Market             string        `yaml:"market"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ReconnectJitter    float64       `yaml:"reconnect_jitter"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// QuotesConfig holds the quote snapshot REST API settings.
type QuotesConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// RegistryConfig holds subscription registry settings.
type RegistryConfig struct {
	ReleaseDebounce time.Duration `yaml:"release_debounce"`
	ChangeBuffer    int           `yaml:"change_buffer"`
}

// RenderConfig holds render coalescer settings.
type RenderConfig struct {
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// ProfileConfig holds volume profile settings.
type ProfileConfig struct {
	BinWidth float64 `yaml:"bin_width"`
}

// SnapshotConfig holds snapshot poller settings.
type SnapshotConfig struct {
	Interval    time.Duration `yaml:"interval"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
