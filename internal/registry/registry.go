package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/marketdeck/feedcore/internal/metrics"
	"github.com/marketdeck/feedcore/internal/model"
)

// EventType classifies a subscription change event.
type EventType string

const (
	// EventAdd asks the feed manager to add a token to the live feed.
	EventAdd EventType = "add"
	// EventRemove asks the feed manager to drop a token from the feed.
	EventRemove EventType = "remove"
)

// Change is a subscription change event consumed by the feed manager.
type Change struct {
	Token model.Token
	Type  EventType
}

// Config holds Subscription Registry configuration.
type Config struct {
	// ReleaseDebounce is how long a refcount may sit at zero before the
	// remove event is emitted. A resubscribe inside the window cancels
	// the removal, avoiding feed churn on fast page navigation.
	ReleaseDebounce time.Duration

	// ChangeBuffer is the capacity of the Changes channel.
	ChangeBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReleaseDebounce: 300 * time.Millisecond,
		ChangeBuffer:    256,
	}
}

// Registry reference-counts interest in instrument tokens from multiple
// simultaneous UI consumers and decides when the upstream feed should
// grow or shrink. It is the only writer to refcounts.
type Registry struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	refcounts map[model.Token]int
	pending   map[model.Token]*time.Timer
	changes   chan Change
	closed    bool
}

// New creates a Registry.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if cfg.ReleaseDebounce <= 0 {
		cfg.ReleaseDebounce = DefaultConfig().ReleaseDebounce
	}
	if cfg.ChangeBuffer <= 0 {
		cfg.ChangeBuffer = DefaultConfig().ChangeBuffer
	}
	return &Registry{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		refcounts: make(map[model.Token]int),
		pending:   make(map[model.Token]*time.Timer),
		changes:   make(chan Change, cfg.ChangeBuffer),
	}
}

// Changes returns the change-event channel consumed by the feed
// manager. Closed by Close.
func (r *Registry) Changes() <-chan Change {
	return r.changes
}

// Subscribe increments the refcount for each token. Every 0→1
// transition emits an add event, including a resubscribe that cancels
// a pending removal: a reconnect may have rebuilt the wire set without
// the token while its removal was pending, so the add must always be
// requested. The feed manager skips adds for tokens already on the
// wire, making the extra event harmless on a healthy connection.
func (r *Registry) Subscribe(tokens ...model.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	for _, token := range tokens {
		r.refcounts[token]++
		if r.refcounts[token] != 1 {
			continue
		}

		if timer, ok := r.pending[token]; ok {
			timer.Stop()
			delete(r.pending, token)
			r.metrics.DebouncedRemoves.Inc()
			r.logger.Debug("resubscribe cancelled pending removal", "token", token)
		}

		r.emitLocked(Change{Token: token, Type: EventAdd})
	}

	r.metrics.ActiveSubscriptions.Set(float64(len(r.refcounts)))
}

// Unsubscribe decrements the refcount for each token. A →0 transition
// schedules a debounced remove event. Unsubscribing a token with no
// refcount is a consumer defect: it is logged and ignored, the count
// never goes negative.
func (r *Registry) Unsubscribe(tokens ...model.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	for _, token := range tokens {
		count, ok := r.refcounts[token]
		if !ok || count <= 0 {
			r.logger.Warn("unsubscribe without matching subscribe", "token", token)
			continue
		}

		count--
		if count > 0 {
			r.refcounts[token] = count
			continue
		}

		delete(r.refcounts, token)
		r.scheduleRemoveLocked(token)
	}

	r.metrics.ActiveSubscriptions.Set(float64(len(r.refcounts)))
}

// Refcount returns the current refcount for a token.
func (r *Registry) Refcount(token model.Token) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refcounts[token]
}

// ActiveTokens returns every token with a positive refcount. The feed
// manager resends this full set after a reconnect.
func (r *Registry) ActiveTokens() []model.Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens := make([]model.Token, 0, len(r.refcounts))
	for token := range r.refcounts {
		tokens = append(tokens, token)
	}
	return tokens
}

// Close cancels all pending removal timers and closes the change
// channel. No events are emitted after Close returns.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for token, timer := range r.pending {
		timer.Stop()
		delete(r.pending, token)
	}
	close(r.changes)
}

// scheduleRemoveLocked arms the debounced removal timer for a token.
func (r *Registry) scheduleRemoveLocked(token model.Token) {
	if _, ok := r.pending[token]; ok {
		return
	}
	r.pending[token] = time.AfterFunc(r.cfg.ReleaseDebounce, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.closed {
			return
		}
		if _, ok := r.pending[token]; !ok {
			// Cancelled by a resubscribe that raced the timer.
			return
		}
		delete(r.pending, token)

		if r.refcounts[token] > 0 {
			return
		}
		r.emitLocked(Change{Token: token, Type: EventRemove})
	})
}

// emitLocked sends a change event without blocking. The channel is
// sized for normal operation; a full channel means the feed manager is
// wedged, and dropping with a warning beats deadlocking consumers.
func (r *Registry) emitLocked(change Change) {
	select {
	case r.changes <- change:
	default:
		r.logger.Warn("change channel full, dropping event",
			"token", change.Token,
			"type", change.Type,
		)
	}
}
