package tickstore

import (
	"log/slog"
	"sync"

	"github.com/marketdeck/feedcore/internal/metrics"
	"github.com/marketdeck/feedcore/internal/model"
	"github.com/marketdeck/feedcore/internal/profile"
)

// Store is the in-memory keyed cache of the latest known tick per
// instrument token. It is owned by the application shell for the
// process lifetime and is the single merge point for live feed pushes
// and REST snapshot seeds.
//
// Conflict resolution is last-timestamp-wins: a write is applied only
// if its timestamp is not older than the stored one, so an in-flight
// snapshot response fetched before the feed connected cannot overwrite
// a newer live tick.
type Store struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu         sync.RWMutex
	ticks      map[model.Token]model.Tick
	lastCumVol map[model.Token]int64

	// listener is the change-notification hook, consumed only by the
	// render coalescer. Set once at wiring time.
	listenerMu sync.RWMutex
	listener   func(model.Token)

	// profiles receives cumulative-volume deltas from live ticks.
	profiles *profile.Book
}

// New creates a Store. profiles may be nil when no volume-profile
// overlay is mounted.
func New(profiles *profile.Book, m *metrics.Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Store{
		logger:     logger,
		metrics:    m,
		ticks:      make(map[model.Token]model.Tick),
		lastCumVol: make(map[model.Token]int64),
		profiles:   profiles,
	}
}

// SetListener installs the change-notification hook. The listener is
// invoked once per applied write, after the store's own state is
// updated and outside the store lock.
func (s *Store) SetListener(fn func(model.Token)) {
	s.listenerMu.Lock()
	s.listener = fn
	s.listenerMu.Unlock()
}

// Get returns the latest known tick for a token.
func (s *Store) Get(token model.Token) (model.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.ticks[token]
	return t, ok
}

// Len returns the number of tokens with a known tick.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ticks)
}

// Apply writes a live tick. Returns true if the write was applied,
// false if it lost to a newer stored tick. Applied ticks additionally
// feed the volume-profile overlay with the cumulative-volume delta at
// the tick's price level; the first tick for a token is a zero-delta
// baseline (no backfill assumed).
func (s *Store) Apply(tick model.Tick) bool {
	s.mu.Lock()

	prev, known := s.ticks[tick.Token]
	if known && tick.Timestamp < prev.Timestamp {
		s.mu.Unlock()
		s.metrics.StaleWrites.Inc()
		return false
	}
	s.ticks[tick.Token] = tick

	var volDelta int64
	lastVol, hasBaseline := s.lastCumVol[tick.Token]
	if hasBaseline && tick.Volume > lastVol {
		volDelta = tick.Volume - lastVol
	}
	s.lastCumVol[tick.Token] = tick.Volume

	s.mu.Unlock()

	if volDelta > 0 && s.profiles != nil {
		s.profiles.Add(tick.Token, tick.LTP, float64(volDelta))
	}

	s.metrics.TicksApplied.Inc()
	s.notify(tick.Token)
	return true
}

// ApplySnapshot seeds the store from a REST quote snapshot. Rows losing
// to a newer stored tick are silently dropped. Snapshot rows never feed
// the volume profile: the overlay accumulates live deltas only, and the
// cumulative-volume baseline is owned by the live feed.
func (s *Store) ApplySnapshot(ticks []model.Tick) (applied int) {
	for _, tick := range ticks {
		s.mu.Lock()
		prev, known := s.ticks[tick.Token]
		if known && tick.Timestamp < prev.Timestamp {
			s.mu.Unlock()
			s.metrics.StaleWrites.Inc()
			continue
		}
		s.ticks[tick.Token] = tick
		s.mu.Unlock()

		applied++
		s.notify(tick.Token)
	}
	return applied
}

func (s *Store) notify(token model.Token) {
	s.listenerMu.RLock()
	fn := s.listener
	s.listenerMu.RUnlock()
	if fn != nil {
		fn(token)
	}
}
