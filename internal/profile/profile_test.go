package profile

import (
	"math"
	"testing"
)

func TestBook_AddAccumulates(t *testing.T) {
	b := NewBook(1.0)

	b.Add("NSE:RELIANCE", 100.5, 300)
	b.Add("NSE:RELIANCE", 100.9, 200) // Same bin [100, 101)
	b.Add("NSE:RELIANCE", 101.1, 50)  // Next bin

	res := b.Profile("NSE:RELIANCE")
	if len(res.Bins) != 2 {
		t.Fatalf("len(Bins) = %d, want 2", len(res.Bins))
	}
	if res.Bins[0].Volume != 500 {
		t.Errorf("bin[0].Volume = %v, want 500 (additive, not replaced)", res.Bins[0].Volume)
	}
	if res.Bins[1].Volume != 50 {
		t.Errorf("bin[1].Volume = %v, want 50", res.Bins[1].Volume)
	}
	if res.TotalVolume != 550 {
		t.Errorf("TotalVolume = %v, want 550", res.TotalVolume)
	}
}

func TestBook_IgnoresNonPositiveDeltas(t *testing.T) {
	b := NewBook(1.0)
	b.Add("NSE:TCS", 100, 0)
	b.Add("NSE:TCS", 100, -10)
	b.Add("NSE:TCS", math.NaN(), 10)

	res := b.Profile("NSE:TCS")
	if len(res.Bins) != 0 {
		t.Errorf("len(Bins) = %d, want 0", len(res.Bins))
	}
	if !math.IsNaN(res.POCPrice) {
		t.Errorf("POCPrice = %v, want NaN for empty profile", res.POCPrice)
	}
}

func TestBook_POC(t *testing.T) {
	b := NewBook(1.0)
	b.Add("NSE:INFY", 99.5, 100)
	b.Add("NSE:INFY", 100.5, 400)
	b.Add("NSE:INFY", 101.5, 200)

	res := b.Profile("NSE:INFY")
	if res.POCPrice != 100.5 {
		t.Errorf("POCPrice = %v, want 100.5", res.POCPrice)
	}
}

func TestBook_ValueAreaCoversTarget(t *testing.T) {
	b := NewBook(1.0)
	volumes := map[float64]float64{
		95.5: 10, 96.5: 20, 97.5: 100, 98.5: 300, 99.5: 150, 100.5: 60, 101.5: 10,
	}
	for price, vol := range volumes {
		b.Add("NSE:SBIN", price, vol)
	}

	res := b.Profile("NSE:SBIN")

	// Sum the volume inside [ValueAreaLow, ValueAreaHigh).
	var inArea float64
	for _, bin := range res.Bins {
		if bin.PriceLow >= res.ValueAreaLow && bin.PriceHigh <= res.ValueAreaHigh {
			inArea += bin.Volume
		}
	}
	if inArea < res.TotalVolume*DefaultValueAreaRatio {
		t.Errorf("value area volume %v < 70%% of total %v", inArea, res.TotalVolume)
	}
	// Value area must contain the POC.
	if res.POCPrice < res.ValueAreaLow || res.POCPrice > res.ValueAreaHigh {
		t.Errorf("POC %v outside value area [%v, %v]", res.POCPrice, res.ValueAreaLow, res.ValueAreaHigh)
	}
}

func TestBook_TokensIsolated(t *testing.T) {
	b := NewBook(1.0)
	b.Add("NSE:RELIANCE", 100.5, 100)
	b.Add("NSE:TCS", 4000.5, 500)

	res := b.Profile("NSE:RELIANCE")
	if res.TotalVolume != 100 {
		t.Errorf("TotalVolume = %v, want 100", res.TotalVolume)
	}
}

func TestBook_Reset(t *testing.T) {
	b := NewBook(1.0)
	b.Add("NSE:RELIANCE", 100.5, 100)
	b.Reset("NSE:RELIANCE")

	if res := b.Profile("NSE:RELIANCE"); len(res.Bins) != 0 {
		t.Errorf("len(Bins) = %d after Reset, want 0", len(res.Bins))
	}
}
