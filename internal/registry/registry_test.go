package registry

import (
	"testing"
	"time"

	"github.com/marketdeck/feedcore/internal/model"
)

const reliance = model.Token("NSE:RELIANCE")

func newTestRegistry(debounce time.Duration) *Registry {
	return New(Config{ReleaseDebounce: debounce, ChangeBuffer: 16}, nil, nil)
}

// drain collects change events until the timeout elapses.
func drain(r *Registry, wait time.Duration) []Change {
	var out []Change
	deadline := time.After(wait)
	for {
		select {
		case c := <-r.Changes():
			out = append(out, c)
		case <-deadline:
			return out
		}
	}
}

func TestRegistry_RefcountSequence(t *testing.T) {
	r := newTestRegistry(time.Hour) // debounce never fires in this test
	defer r.Close()

	r.Subscribe(reliance)
	r.Subscribe(reliance)
	r.Subscribe(reliance)
	r.Unsubscribe(reliance)

	if got := r.Refcount(reliance); got != 2 {
		t.Errorf("Refcount = %d, want 2 (3 subscribes - 1 unsubscribe)", got)
	}
}

func TestRegistry_NeverNegative(t *testing.T) {
	r := newTestRegistry(time.Hour)
	defer r.Close()

	r.Unsubscribe(reliance)
	r.Unsubscribe(reliance)

	if got := r.Refcount(reliance); got != 0 {
		t.Errorf("Refcount = %d, want 0", got)
	}

	r.Subscribe(reliance)
	if got := r.Refcount(reliance); got != 1 {
		t.Errorf("Refcount = %d, want 1", got)
	}
}

func TestRegistry_AddEmittedOnFirstSubscribe(t *testing.T) {
	r := newTestRegistry(time.Hour)
	defer r.Close()

	r.Subscribe(reliance)
	r.Subscribe(reliance) // no second add

	events := drain(r, 50*time.Millisecond)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != EventAdd || events[0].Token != reliance {
		t.Errorf("event = %+v, want add for %s", events[0], reliance)
	}
}

func TestRegistry_RemoveDebounced(t *testing.T) {
	r := newTestRegistry(30 * time.Millisecond)
	defer r.Close()

	r.Subscribe(reliance)
	<-r.Changes() // add

	r.Unsubscribe(reliance)

	// Inside the window: nothing yet.
	select {
	case c := <-r.Changes():
		t.Fatalf("premature event %+v before debounce elapsed", c)
	case <-time.After(10 * time.Millisecond):
	}

	// After the window: remove arrives.
	select {
	case c := <-r.Changes():
		if c.Type != EventRemove {
			t.Errorf("event = %+v, want remove", c)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("remove event never emitted")
	}
}

func TestRegistry_ResubscribeCancelsRemove(t *testing.T) {
	r := newTestRegistry(50 * time.Millisecond)
	defer r.Close()

	r.Subscribe(reliance)
	<-r.Changes() // add

	r.Unsubscribe(reliance)
	time.Sleep(10 * time.Millisecond)
	r.Subscribe(reliance) // inside the window

	// The remove is cancelled; the add is re-emitted because the wire
	// set may have been rebuilt without the token in the meantime.
	events := drain(r, 150*time.Millisecond)
	if len(events) != 1 {
		t.Fatalf("got events %+v, want exactly one add", events)
	}
	if events[0].Type != EventAdd || events[0].Token != reliance {
		t.Errorf("event = %+v, want add for %s", events[0], reliance)
	}
	if got := r.Refcount(reliance); got != 1 {
		t.Errorf("Refcount = %d, want 1", got)
	}
}

func TestRegistry_TwoPanelsScenario(t *testing.T) {
	r := newTestRegistry(30 * time.Millisecond)
	defer r.Close()

	// Panel A and panel B both mount watching the same token.
	r.Subscribe(reliance) // A
	r.Subscribe(reliance) // B
	if got := r.Refcount(reliance); got != 2 {
		t.Fatalf("Refcount = %d, want 2", got)
	}

	// A unmounts: feed stays open.
	r.Unsubscribe(reliance)
	if got := r.Refcount(reliance); got != 1 {
		t.Fatalf("Refcount = %d, want 1", got)
	}

	// B unmounts: refcount hits zero, remove arrives after debounce.
	r.Unsubscribe(reliance)
	events := drain(r, 150*time.Millisecond)

	var removes int
	for _, e := range events {
		if e.Type == EventRemove {
			removes++
		}
	}
	if removes != 1 {
		t.Errorf("got %d remove events, want exactly 1: %+v", removes, events)
	}
}

func TestRegistry_ActiveTokens(t *testing.T) {
	r := newTestRegistry(time.Hour)
	defer r.Close()

	r.Subscribe("NSE:RELIANCE", "NSE:INFY", "NSE:TCS")
	r.Unsubscribe("NSE:TCS")

	active := r.ActiveTokens()
	if len(active) != 2 {
		t.Fatalf("len(ActiveTokens) = %d, want 2", len(active))
	}
	set := make(map[model.Token]bool)
	for _, tok := range active {
		set[tok] = true
	}
	if !set["NSE:RELIANCE"] || !set["NSE:INFY"] {
		t.Errorf("ActiveTokens = %v", active)
	}
}

func TestRegistry_CloseCancelsPendingTimers(t *testing.T) {
	r := newTestRegistry(20 * time.Millisecond)

	r.Subscribe(reliance)
	<-r.Changes()
	r.Unsubscribe(reliance)
	r.Close()

	// The channel is closed; no remove may arrive after Close.
	time.Sleep(50 * time.Millisecond)
	if c, ok := <-r.Changes(); ok {
		t.Errorf("got event %+v after Close", c)
	}
}

func TestRegistry_SubscribeAfterCloseIsNoop(t *testing.T) {
	r := newTestRegistry(time.Hour)
	r.Close()

	r.Subscribe(reliance)
	r.Unsubscribe(reliance)

	if got := r.Refcount(reliance); got != 0 {
		t.Errorf("Refcount = %d after Close, want 0", got)
	}
}
