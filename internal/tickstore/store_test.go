package tickstore

import (
	"testing"

	"github.com/marketdeck/feedcore/internal/model"
	"github.com/marketdeck/feedcore/internal/profile"
)

func tick(token model.Token, ltp float64, vol, ts int64) model.Tick {
	return model.Tick{Token: token, LTP: ltp, Volume: vol, Timestamp: ts}
}

func TestStore_GetUnknown(t *testing.T) {
	s := New(nil, nil, nil)
	if _, ok := s.Get("NSE:RELIANCE"); ok {
		t.Error("expected no tick for unknown token")
	}
}

func TestStore_LastTimestampWins(t *testing.T) {
	s := New(nil, nil, nil)

	// Live tick at t2 arrives first, snapshot at t1 < t2 second.
	live := tick("NSE:RELIANCE", 2850.0, 100, 2000)
	snap := tick("NSE:RELIANCE", 2840.0, 90, 1000)

	if !s.Apply(live) {
		t.Fatal("live tick should apply")
	}
	if n := s.ApplySnapshot([]model.Tick{snap}); n != 0 {
		t.Errorf("ApplySnapshot applied %d rows, want 0", n)
	}

	got, _ := s.Get("NSE:RELIANCE")
	if got.LTP != 2850.0 {
		t.Errorf("LTP = %v, want live value 2850.0", got.LTP)
	}
}

func TestStore_EqualTimestampApplies(t *testing.T) {
	s := New(nil, nil, nil)
	s.Apply(tick("NSE:INFY", 1800.0, 10, 1000))
	if !s.Apply(tick("NSE:INFY", 1801.0, 11, 1000)) {
		t.Error("equal-timestamp write should apply")
	}
	got, _ := s.Get("NSE:INFY")
	if got.LTP != 1801.0 {
		t.Errorf("LTP = %v, want 1801.0", got.LTP)
	}
}

func TestStore_SnapshotSeedsBeforeLive(t *testing.T) {
	s := New(nil, nil, nil)

	snap := tick("NSE:TCS", 4100.0, 50, 1000)
	if n := s.ApplySnapshot([]model.Tick{snap}); n != 1 {
		t.Fatalf("ApplySnapshot applied %d rows, want 1", n)
	}

	live := tick("NSE:TCS", 4105.0, 60, 2000)
	if !s.Apply(live) {
		t.Fatal("newer live tick should apply over snapshot")
	}
	got, _ := s.Get("NSE:TCS")
	if got.LTP != 4105.0 {
		t.Errorf("LTP = %v, want 4105.0", got.LTP)
	}
}

func TestStore_ListenerPerAppliedWrite(t *testing.T) {
	s := New(nil, nil, nil)
	var seen []model.Token
	s.SetListener(func(tok model.Token) { seen = append(seen, tok) })

	s.Apply(tick("NSE:RELIANCE", 2850.0, 100, 2000))
	s.Apply(tick("NSE:RELIANCE", 2840.0, 90, 1000)) // stale, dropped
	s.ApplySnapshot([]model.Tick{tick("NSE:INFY", 1800.0, 10, 1000)})

	if len(seen) != 2 {
		t.Fatalf("listener fired %d times, want 2 (stale write must not notify)", len(seen))
	}
	if seen[0] != "NSE:RELIANCE" || seen[1] != "NSE:INFY" {
		t.Errorf("seen = %v", seen)
	}
}

func TestStore_VolumeDeltaAccumulation(t *testing.T) {
	book := profile.NewBook(1.0)
	s := New(book, nil, nil)

	// First tick establishes a zero-delta baseline: nothing reaches
	// the profile yet.
	s.Apply(tick("NSE:RELIANCE", 100.5, 1000, 1000))
	if res := book.Profile("NSE:RELIANCE"); res.TotalVolume != 0 {
		t.Fatalf("TotalVolume after baseline tick = %v, want 0", res.TotalVolume)
	}

	// V1 -> V2 adds exactly V2-V1 to the bin at the tick's price.
	s.Apply(tick("NSE:RELIANCE", 100.7, 1600, 2000))
	res := book.Profile("NSE:RELIANCE")
	if res.TotalVolume != 600 {
		t.Fatalf("TotalVolume = %v, want 600 (V2-V1)", res.TotalVolume)
	}
	if len(res.Bins) != 1 || res.Bins[0].PriceLow != 100 {
		t.Fatalf("Bins = %+v, want single bin [100,101)", res.Bins)
	}

	// Another delta at a different price goes to its own bin.
	s.Apply(tick("NSE:RELIANCE", 101.2, 1850, 3000))
	res = book.Profile("NSE:RELIANCE")
	if res.TotalVolume != 850 {
		t.Errorf("TotalVolume = %v, want 850", res.TotalVolume)
	}
}

func TestStore_VolumeBaselineNotRewound(t *testing.T) {
	book := profile.NewBook(1.0)
	s := New(book, nil, nil)

	s.Apply(tick("NSE:SBIN", 800.5, 1000, 1000))
	s.Apply(tick("NSE:SBIN", 800.5, 2000, 2000))
	// Cumulative volume going backwards (exchange correction) must not
	// produce a negative delta.
	s.Apply(tick("NSE:SBIN", 800.5, 1500, 3000))

	res := book.Profile("NSE:SBIN")
	if res.TotalVolume != 1000 {
		t.Errorf("TotalVolume = %v, want 1000", res.TotalVolume)
	}
}

func TestStore_SnapshotDoesNotFeedProfile(t *testing.T) {
	book := profile.NewBook(1.0)
	s := New(book, nil, nil)

	s.ApplySnapshot([]model.Tick{tick("NSE:TCS", 4100.0, 5000, 1000)})
	s.ApplySnapshot([]model.Tick{tick("NSE:TCS", 4101.0, 9000, 2000)})

	if res := book.Profile("NSE:TCS"); res.TotalVolume != 0 {
		t.Errorf("TotalVolume = %v, want 0 (snapshots never feed bins)", res.TotalVolume)
	}
}
