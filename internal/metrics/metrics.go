package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus instruments for the realtime core.
type Metrics struct {
	// Tick store
	TicksApplied prometheus.Counter
	StaleWrites  prometheus.Counter

	// Feed connection manager
	ParseErrors     prometheus.Counter
	TicksSkipped    prometheus.Counter
	Reconnects      prometheus.Counter
	ConnectionState prometheus.Gauge // 0=disconnected 1=connecting 2=connected 3=reconnecting

	// Subscription registry
	ActiveSubscriptions prometheus.Gauge
	DebouncedRemoves    prometheus.Counter

	// Render coalescer
	FramesFlushed prometheus.Counter
	FrameTokens   prometheus.Histogram

	// Snapshot poller
	SnapshotFetches prometheus.Counter
	SnapshotErrors  prometheus.Counter

	// Crosshair sync bus
	CrosshairPublishes prometheus.Counter
}

// New creates all metrics and registers them on reg. A nil reg skips
// registration; the instruments still work, which keeps tests free of
// global registry collisions.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedcore_ticks_applied_total",
			Help: "Total ticks applied to the tick store",
		}),
		StaleWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedcore_stale_writes_total",
			Help: "Writes dropped by the last-timestamp-wins rule",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedcore_parse_errors_total",
			Help: "Inbound feed frames dropped as malformed",
		}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedcore_ticks_skipped_total",
			Help: "Tick entries skipped inside otherwise valid frames",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedcore_feed_reconnects_total",
			Help: "Feed reconnection attempts",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedcore_feed_connection_state",
			Help: "Feed connection state (0=disconnected 1=connecting 2=connected 3=reconnecting)",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedcore_active_subscriptions",
			Help: "Tokens with a positive refcount",
		}),
		DebouncedRemoves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedcore_debounced_removes_total",
			Help: "Unsubscribe requests cancelled by a resubscribe inside the debounce window",
		}),
		FramesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedcore_frames_flushed_total",
			Help: "Coalesced frame flushes delivered to consumers",
		}),
		FrameTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedcore_frame_tokens",
			Help:    "Dirty tokens delivered per coalesced frame",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		SnapshotFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedcore_snapshot_fetches_total",
			Help: "REST quote snapshot fetches",
		}),
		SnapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedcore_snapshot_errors_total",
			Help: "REST quote snapshot fetch failures",
		}),
		CrosshairPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedcore_crosshair_publishes_total",
			Help: "Crosshair cursor publishes across all sync groups",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TicksApplied,
			m.StaleWrites,
			m.ParseErrors,
			m.TicksSkipped,
			m.Reconnects,
			m.ConnectionState,
			m.ActiveSubscriptions,
			m.DebouncedRemoves,
			m.FramesFlushed,
			m.FrameTokens,
			m.SnapshotFetches,
			m.SnapshotErrors,
			m.CrosshairPublishes,
		)
	}

	return m
}
