package coalesce

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marketdeck/feedcore/internal/metrics"
	"github.com/marketdeck/feedcore/internal/model"
)

// DefaultFrameInterval approximates one animation frame at 60fps.
const DefaultFrameInterval = 16 * time.Millisecond

// Consumer receives the deduplicated dirty-token set once per flushed
// frame. The slice is shared between consumers and must be treated as
// read-only; consumers read the latest values back from the tick store.
type Consumer func(dirty []model.Token)

// Handle identifies a registered consumer.
type Handle = uuid.UUID

// Scheduler defers a flush to the next frame boundary. The returned
// cancel function stops a flush that has not fired yet.
type Scheduler interface {
	Schedule(fn func()) (cancel func())
}

// frameScheduler schedules on a fixed frame interval.
type frameScheduler struct {
	interval time.Duration
}

// NewFrameScheduler returns the default timer-backed Scheduler.
func NewFrameScheduler(interval time.Duration) Scheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return frameScheduler{interval: interval}
}

func (s frameScheduler) Schedule(fn func()) func() {
	t := time.AfterFunc(s.interval, fn)
	return func() { t.Stop() }
}

// Coalescer batches bursts of tick store writes into a single delivery
// per frame. A burst of K writes for one token between two frames
// yields exactly one delivery; consumers then read only the latest
// value, so the render pipeline is never saturated by the feed.
type Coalescer struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	sched   Scheduler

	mu        sync.Mutex
	dirty     map[model.Token]struct{}
	consumers map[Handle]Consumer
	pending   bool
	cancel    func()
	closed    bool
}

// New creates a Coalescer. A nil scheduler gets the default frame
// scheduler.
func New(sched Scheduler, m *metrics.Metrics, logger *slog.Logger) *Coalescer {
	if sched == nil {
		sched = NewFrameScheduler(DefaultFrameInterval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Coalescer{
		logger:    logger,
		metrics:   m,
		sched:     sched,
		dirty:     make(map[model.Token]struct{}),
		consumers: make(map[Handle]Consumer),
	}
}

// Mark records a dirty token and schedules a flush on the next frame
// if one is not already pending. Safe to call from the store's write
// path; it never blocks on consumers.
func (c *Coalescer) Mark(token model.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.dirty[token] = struct{}{}
	if c.pending {
		return
	}
	c.pending = true
	c.cancel = c.sched.Schedule(c.flush)
}

// Register adds a visual consumer and returns its handle.
func (c *Coalescer) Register(fn Consumer) Handle {
	h := uuid.New()

	c.mu.Lock()
	c.consumers[h] = fn
	c.mu.Unlock()

	return h
}

// Unregister removes a consumer. Removing the last consumer cancels a
// pending flush; a flush already in flight simply finds no observers,
// which is harmless.
func (c *Coalescer) Unregister(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.consumers, h)
	if len(c.consumers) == 0 && c.pending && c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.pending = false
	}
}

// Close cancels any pending flush and drops all consumers.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.pending = false
	c.consumers = make(map[Handle]Consumer)
	c.dirty = make(map[model.Token]struct{})
}

// flush delivers the dirty set to all registered consumers and clears
// it. A mark arriving after the set is taken schedules the next frame.
func (c *Coalescer) flush() {
	c.mu.Lock()

	c.pending = false
	c.cancel = nil

	if c.closed || len(c.dirty) == 0 {
		c.mu.Unlock()
		return
	}

	tokens := make([]model.Token, 0, len(c.dirty))
	for token := range c.dirty {
		tokens = append(tokens, token)
	}
	c.dirty = make(map[model.Token]struct{})

	consumers := make([]Consumer, 0, len(c.consumers))
	for _, fn := range c.consumers {
		consumers = append(consumers, fn)
	}
	c.mu.Unlock()

	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	for _, fn := range consumers {
		fn(tokens)
	}

	c.metrics.FramesFlushed.Inc()
	c.metrics.FrameTokens.Observe(float64(len(tokens)))
}
