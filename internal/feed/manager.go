package feed

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marketdeck/feedcore/internal/metrics"
	"github.com/marketdeck/feedcore/internal/model"
	"github.com/marketdeck/feedcore/internal/registry"
)

// Config holds Feed Connection Manager configuration.
type Config struct {
	URL    string // Feed endpoint
	Market string // Market namespace this manager owns (log context)

	BackoffBase   time.Duration // First reconnect delay
	BackoffMax    time.Duration // Reconnect delay cap
	BackoffJitter float64       // Jitter fraction applied to each delay
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BackoffBase:   500 * time.Millisecond,
		BackoffMax:    30 * time.Second,
		BackoffJitter: 0.2,
	}
}

// SubscriptionSource is the registry-facing contract: the live set of
// subscribed tokens and the change events that mutate it.
type SubscriptionSource interface {
	ActiveTokens() []model.Token
	Changes() <-chan registry.Change
}

// TickSink receives parsed ticks. The tick store satisfies this.
type TickSink interface {
	Apply(model.Tick) bool
}

// command is the upstream subscribe/unsubscribe wire format.
type command struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Tokens []string `json:"tokens"`
}

// Stats is an observational snapshot for UI badges and debug handlers.
type Stats struct {
	State      model.ConnState
	Subscribed int // Tokens currently on the wire
}

// Manager owns the single live feed connection for one market
// namespace. It mirrors the registry's subscribed-token set upstream,
// reconnects with bounded exponential backoff, and writes parsed ticks
// into the tick store. Its connection state is observational only;
// no consumer may gate correctness-critical logic on it.
type Manager struct {
	cfg       Config
	transport Transport
	subs      SubscriptionSource
	sink      TickSink
	logger    *slog.Logger
	metrics   *metrics.Metrics

	state atomic.Int32

	mu     sync.Mutex
	onWire int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(cfg Config, transport Transport, subs SubscriptionSource, sink TickSink, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	def := DefaultConfig()
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.BackoffJitter < 0 || cfg.BackoffJitter >= 1 {
		cfg.BackoffJitter = def.BackoffJitter
	}
	return &Manager{
		cfg:       cfg,
		transport: transport,
		subs:      subs,
		sink:      sink,
		logger:    logger.With("market", cfg.Market),
		metrics:   m,
	}
}

// Start launches the connection loop.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.setState(model.Disconnected)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("feed manager started", "url", m.cfg.URL)
	return nil
}

// Stop shuts the manager down, cancelling any pending backoff timer.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("feed manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current connection state.
func (m *Manager) State() model.ConnState {
	return model.ConnState(m.state.Load())
}

// IsConnected reports whether the feed is currently connected.
func (m *Manager) IsConnected() bool {
	return m.State() == model.Connected
}

// Stats returns an observational snapshot.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	onWire := m.onWire
	m.mu.Unlock()
	return Stats{State: m.State(), Subscribed: onWire}
}

// run is the connection loop: Disconnected until tokens exist, then
// Connecting/Connected, and Reconnecting with backoff on faults until
// success or the subscribed set empties.
func (m *Manager) run() {
	defer m.wg.Done()

	changes := m.subs.Changes()
	failures := 0

	for {
		if m.ctx.Err() != nil {
			return
		}

		if len(m.subs.ActiveTokens()) == 0 {
			m.setState(model.Disconnected)
			if !m.waitForInterest(changes) {
				return
			}
			failures = 0
		}

		if failures > 0 {
			m.setState(model.Reconnecting)
			m.metrics.Reconnects.Inc()
			if !m.backoffWait(failures, changes) {
				return
			}
			if len(m.subs.ActiveTokens()) == 0 {
				continue
			}
		}

		m.setState(model.Connecting)
		conn, err := m.transport.Dial(m.ctx, m.cfg.URL)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.logger.Warn("feed dial failed", "error", err)
			failures++
			continue
		}

		cont, healthy := m.session(conn, changes)
		if !cont {
			return
		}
		if healthy {
			failures = 0
		} else {
			failures = 1
		}
	}
}

// waitForInterest blocks in the Disconnected state until a token is
// subscribed.
func (m *Manager) waitForInterest(changes <-chan registry.Change) bool {
	for {
		select {
		case <-m.ctx.Done():
			return false
		case change, ok := <-changes:
			if !ok {
				return false
			}
			if change.Type == registry.EventAdd && len(m.subs.ActiveTokens()) > 0 {
				return true
			}
		}
	}
}

// backoffWait sleeps the jittered exponential delay for the given
// failure count. Change events arriving during the wait are drained;
// the loop re-reads the active set afterwards. Cancellable by ctx.
func (m *Manager) backoffWait(failures int, changes <-chan registry.Change) bool {
	shift := failures - 1
	if shift > 10 {
		shift = 10
	}
	delay := m.cfg.BackoffBase * (1 << shift)
	if delay > m.cfg.BackoffMax || delay <= 0 {
		delay = m.cfg.BackoffMax
	}
	if m.cfg.BackoffJitter > 0 {
		factor := 1 - m.cfg.BackoffJitter + 2*m.cfg.BackoffJitter*rand.Float64()
		delay = time.Duration(float64(delay) * factor)
	}

	m.logger.Info("reconnect backoff", "delay", delay, "failures", failures)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return false
		case <-timer.C:
			return true
		case _, ok := <-changes:
			if !ok {
				return false
			}
		}
	}
}

// session runs one connected feed session. The full current token set
// is sent first: the upstream feed has no memory of subscriptions
// across a dropped connection, so a diff would silently lose tokens.
// Returns cont=false when the manager should exit entirely, and
// healthy=false when the session ended on a transport fault.
func (m *Manager) session(conn Conn, changes <-chan registry.Change) (cont, healthy bool) {
	defer func() {
		conn.Close()
		m.mu.Lock()
		m.onWire = 0
		m.mu.Unlock()
	}()

	tokens := m.subs.ActiveTokens()
	if len(tokens) == 0 {
		return true, true
	}

	if err := m.sendCommand(conn, "subscribe", tokens); err != nil {
		m.logger.Warn("initial subscribe failed", "error", err)
		return true, false
	}

	current := make(map[model.Token]struct{}, len(tokens))
	for _, token := range tokens {
		current[token] = struct{}{}
	}
	m.trackOnWire(len(current))

	m.setState(model.Connected)
	m.logger.Info("feed connected", "tokens", len(current))

	for {
		select {
		case <-m.ctx.Done():
			return false, true

		case err := <-conn.Errors():
			m.logger.Warn("feed transport fault", "error", err)
			return true, false

		case data, ok := <-conn.Messages():
			if !ok {
				m.logger.Warn("feed closed by upstream")
				return true, false
			}
			m.handleFrame(data)

		case change, ok := <-changes:
			if !ok {
				return false, true
			}
			switch change.Type {
			case registry.EventAdd:
				if _, on := current[change.Token]; on {
					continue
				}
				if err := m.sendCommand(conn, "subscribe", []model.Token{change.Token}); err != nil {
					m.logger.Warn("subscribe failed", "token", change.Token, "error", err)
					return true, false
				}
				current[change.Token] = struct{}{}
				m.trackOnWire(len(current))

			case registry.EventRemove:
				if _, on := current[change.Token]; !on {
					continue
				}
				if err := m.sendCommand(conn, "unsubscribe", []model.Token{change.Token}); err != nil {
					m.logger.Warn("unsubscribe failed", "token", change.Token, "error", err)
					return true, false
				}
				delete(current, change.Token)
				m.trackOnWire(len(current))

				if len(current) == 0 {
					m.logger.Info("subscribed set empty, releasing feed")
					return true, true
				}
			}
		}
	}
}

// handleFrame parses one inbound frame and applies its ticks. A
// malformed frame is dropped and logged; it never disrupts other
// tokens or the connection.
func (m *Manager) handleFrame(data []byte) {
	ticks, skipped, err := model.ParseTicks(data)
	if err != nil {
		if errors.Is(err, model.ErrNotTickFrame) || errors.Is(err, model.ErrEmptyFrame) {
			return
		}
		m.metrics.ParseErrors.Inc()
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}
	if skipped > 0 {
		m.metrics.TicksSkipped.Add(float64(skipped))
		m.logger.Debug("skipped malformed tick entries", "count", skipped)
	}

	for _, tick := range ticks {
		m.sink.Apply(tick)
	}
}

func (m *Manager) sendCommand(conn Conn, action string, tokens []model.Token) error {
	raw := make([]string, len(tokens))
	for i, token := range tokens {
		raw[i] = string(token)
	}
	return conn.Send(command{Action: action, Tokens: raw})
}

func (m *Manager) trackOnWire(n int) {
	m.mu.Lock()
	m.onWire = n
	m.mu.Unlock()
}

func (m *Manager) setState(s model.ConnState) {
	old := model.ConnState(m.state.Swap(int32(s)))
	m.metrics.ConnectionState.Set(float64(s))
	if old != s {
		m.logger.Info("feed state changed", "from", old, "to", s)
	}
}
