package coalesce

import (
	"sync"
	"testing"

	"github.com/marketdeck/feedcore/internal/model"
	"github.com/marketdeck/feedcore/internal/tickstore"
)

// manualScheduler lets tests control exactly when a frame fires.
type manualScheduler struct {
	mu        sync.Mutex
	fn        func()
	scheduled int
	cancelled int
}

func (s *manualScheduler) Schedule(fn func()) func() {
	s.mu.Lock()
	s.fn = fn
	s.scheduled++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.fn = nil
		s.cancelled++
		s.mu.Unlock()
	}
}

// Fire runs the pending frame callback, if any.
func (s *manualScheduler) Fire() {
	s.mu.Lock()
	fn := s.fn
	s.fn = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func TestCoalescer_BurstYieldsSingleDelivery(t *testing.T) {
	sched := &manualScheduler{}
	c := New(sched, nil, nil)

	var deliveries [][]model.Token
	c.Register(func(dirty []model.Token) {
		cp := make([]model.Token, len(dirty))
		copy(cp, dirty)
		deliveries = append(deliveries, cp)
	})

	for i := 0; i < 100; i++ {
		c.Mark("NSE:RELIANCE")
	}

	if sched.scheduled != 1 {
		t.Errorf("scheduled = %d, want 1 (single pending frame)", sched.scheduled)
	}

	sched.Fire()

	if len(deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(deliveries))
	}
	if len(deliveries[0]) != 1 || deliveries[0][0] != "NSE:RELIANCE" {
		t.Errorf("delivered = %v, want [NSE:RELIANCE]", deliveries[0])
	}
}

func TestCoalescer_DeliversLatestValueFromStore(t *testing.T) {
	sched := &manualScheduler{}
	c := New(sched, nil, nil)
	store := tickstore.New(nil, nil, nil)
	store.SetListener(c.Mark)

	var got model.Tick
	c.Register(func(dirty []model.Token) {
		got, _ = store.Get(dirty[0])
	})

	// N ticks inside one frame: the consumer must observe only the
	// last value, never an intermediate one.
	store.Apply(model.Tick{Token: "NSE:RELIANCE", LTP: 100, Timestamp: 1})
	store.Apply(model.Tick{Token: "NSE:RELIANCE", LTP: 101, Timestamp: 2})
	store.Apply(model.Tick{Token: "NSE:RELIANCE", LTP: 102, Timestamp: 3})

	sched.Fire()

	if got.LTP != 102 {
		t.Errorf("consumer saw LTP %v, want 102 (latest)", got.LTP)
	}
}

func TestCoalescer_DedupAcrossTokens(t *testing.T) {
	sched := &manualScheduler{}
	c := New(sched, nil, nil)

	var delivered []model.Token
	c.Register(func(dirty []model.Token) { delivered = dirty })

	c.Mark("NSE:INFY")
	c.Mark("NSE:RELIANCE")
	c.Mark("NSE:INFY")
	sched.Fire()

	if len(delivered) != 2 {
		t.Fatalf("delivered %v, want 2 distinct tokens", delivered)
	}
	// Deliveries are sorted for determinism.
	if delivered[0] != "NSE:INFY" || delivered[1] != "NSE:RELIANCE" {
		t.Errorf("delivered = %v", delivered)
	}
}

func TestCoalescer_MarkAfterFlushSchedulesAgain(t *testing.T) {
	sched := &manualScheduler{}
	c := New(sched, nil, nil)

	var count int
	c.Register(func([]model.Token) { count++ })

	c.Mark("NSE:RELIANCE")
	sched.Fire()
	c.Mark("NSE:RELIANCE")
	sched.Fire()

	if count != 2 {
		t.Errorf("deliveries = %d, want 2", count)
	}
	if sched.scheduled != 2 {
		t.Errorf("scheduled = %d, want 2", sched.scheduled)
	}
}

func TestCoalescer_UnregisterLastConsumerCancelsPending(t *testing.T) {
	sched := &manualScheduler{}
	c := New(sched, nil, nil)

	h := c.Register(func([]model.Token) { t.Error("delivery after unregister") })
	c.Mark("NSE:RELIANCE")
	c.Unregister(h)

	if sched.cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", sched.cancelled)
	}
	sched.Fire() // no-op: callback was cancelled
}

func TestCoalescer_UnregisteredConsumerSkipped(t *testing.T) {
	sched := &manualScheduler{}
	c := New(sched, nil, nil)

	var aCalls, bCalls int
	ha := c.Register(func([]model.Token) { aCalls++ })
	c.Register(func([]model.Token) { bCalls++ })

	c.Mark("NSE:RELIANCE")
	c.Unregister(ha) // b remains, frame stays scheduled
	sched.Fire()

	if aCalls != 0 {
		t.Errorf("unregistered consumer called %d times", aCalls)
	}
	if bCalls != 1 {
		t.Errorf("remaining consumer called %d times, want 1", bCalls)
	}
}

func TestCoalescer_FlushWithNoConsumersHarmless(t *testing.T) {
	sched := &manualScheduler{}
	c := New(sched, nil, nil)

	c.Mark("NSE:RELIANCE")
	sched.Fire() // spurious flush with zero observers must not panic

	c.Mark("NSE:INFY")
	if sched.scheduled != 2 {
		t.Errorf("scheduled = %d, want 2", sched.scheduled)
	}
}

func TestCoalescer_MarkAfterCloseIgnored(t *testing.T) {
	sched := &manualScheduler{}
	c := New(sched, nil, nil)
	c.Close()

	c.Mark("NSE:RELIANCE")
	if sched.scheduled != 0 {
		t.Errorf("scheduled = %d after Close, want 0", sched.scheduled)
	}
}
