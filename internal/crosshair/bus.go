package crosshair

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/marketdeck/feedcore/internal/metrics"
	"github.com/marketdeck/feedcore/internal/model"
)

// Handler receives a cursor published to the panel's sync group.
type Handler func(model.Cursor)

// group is a sync-group record. It exists only while at least one
// panel is registered under its id; lastCursor is overwritten on every
// publish and never queued.
type group struct {
	lastCursor model.Cursor
	hasCursor  bool
	panels     map[string]Handler
}

// Bus is the crosshair sync bus: a small pub/sub channel keyed by sync
// group id that lets independently mounted chart panels share a cursor
// position without parent-child coupling. Publishing never touches
// tick state.
type Bus struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	groups map[string]*group
}

// NewBus creates a Bus.
func NewBus(m *metrics.Metrics, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Bus{
		logger:  logger,
		metrics: m,
		groups:  make(map[string]*group),
	}
}

// Subscribe registers a panel's handler under a group id and returns
// the matching unsubscribe function. A handler registered after a
// publish never sees that cursor, only subsequent ones.
func (b *Bus) Subscribe(groupID, panelID string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	g, ok := b.groups[groupID]
	if !ok {
		g = &group{panels: make(map[string]Handler)}
		b.groups[groupID] = g
	}
	if _, dup := g.panels[panelID]; dup {
		b.logger.Warn("panel already registered in sync group",
			"group", groupID,
			"panel", panelID,
		)
	}
	g.panels[panelID] = h
	b.mu.Unlock()

	return func() { b.remove(groupID, panelID) }
}

// Publish overwrites the group's last cursor and synchronously invokes
// every handler currently registered in the group except the
// originating panel. Groups are fully isolated from one another.
func (b *Bus) Publish(groupID, originPanelID string, cursor model.Cursor) {
	b.mu.Lock()
	g, ok := b.groups[groupID]
	if !ok {
		b.mu.Unlock()
		return
	}
	g.lastCursor = cursor
	g.hasCursor = true

	ids := make([]string, 0, len(g.panels))
	for id := range g.panels {
		if id != originPanelID {
			ids = append(ids, id)
		}
	}
	b.mu.Unlock()

	sort.Strings(ids)

	for _, id := range ids {
		// Re-check membership per delivery so a panel that switched
		// groups mid-publish never receives a stale cross-group cursor.
		b.mu.Lock()
		var h Handler
		if g, ok := b.groups[groupID]; ok {
			h = g.panels[id]
		}
		b.mu.Unlock()

		if h != nil {
			h(cursor)
		}
	}

	b.metrics.CrosshairPublishes.Inc()
}

// Move switches a panel from one group to another in a single bus
// operation, so no delivery can observe the panel in both groups.
// Returns the unsubscribe function for the new membership.
func (b *Bus) Move(panelID, fromGroup, toGroup string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.removeLocked(fromGroup, panelID)

	g, ok := b.groups[toGroup]
	if !ok {
		g = &group{panels: make(map[string]Handler)}
		b.groups[toGroup] = g
	}
	g.panels[panelID] = h
	b.mu.Unlock()

	return func() { b.remove(toGroup, panelID) }
}

// Groups returns the number of live sync groups.
func (b *Bus) Groups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups)
}

func (b *Bus) remove(groupID, panelID string) {
	b.mu.Lock()
	b.removeLocked(groupID, panelID)
	b.mu.Unlock()
}

// removeLocked drops a panel from a group and reaps the group when its
// last panel leaves.
func (b *Bus) removeLocked(groupID, panelID string) {
	g, ok := b.groups[groupID]
	if !ok {
		return
	}
	delete(g.panels, panelID)
	if len(g.panels) == 0 {
		delete(b.groups, groupID)
	}
}
