package profile

import (
	"math"
	"sort"
	"sync"

	"github.com/marketdeck/feedcore/internal/model"
)

// DefaultValueAreaRatio is the share of total volume the value area
// must cover around the point of control.
const DefaultValueAreaRatio = 0.70

// Bin is one price bucket of an intraday volume profile.
type Bin struct {
	PriceLow  float64
	PriceHigh float64
	Volume    float64
}

// Result is a computed profile for one token.
type Result struct {
	Bins          []Bin
	POCPrice      float64 // Mid price of the max-volume bin; NaN when empty
	ValueAreaHigh float64
	ValueAreaLow  float64
	TotalVolume   float64
}

// Book accumulates per-token volume profiles from live volume deltas.
// Volume is only ever added to a bin, never replaced; the tick store
// computes the cumulative-volume deltas that feed it.
type Book struct {
	mu    sync.RWMutex
	width float64
	bins  map[model.Token]map[int64]float64
}

// NewBook creates a Book with the given price bin width.
func NewBook(binWidth float64) *Book {
	if binWidth <= 0 {
		binWidth = 0.05
	}
	return &Book{
		width: binWidth,
		bins:  make(map[model.Token]map[int64]float64),
	}
}

// Add accumulates a volume delta into the bin containing price.
// Non-positive deltas and non-finite prices are ignored.
func (b *Book) Add(token model.Token, price, volumeDelta float64) {
	if volumeDelta <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}

	idx := int64(math.Floor(price / b.width))

	b.mu.Lock()
	defer b.mu.Unlock()

	tb, ok := b.bins[token]
	if !ok {
		tb = make(map[int64]float64)
		b.bins[token] = tb
	}
	tb[idx] += volumeDelta
}

// Reset clears the profile for a token (session rollover).
func (b *Book) Reset(token model.Token) {
	b.mu.Lock()
	delete(b.bins, token)
	b.mu.Unlock()
}

// Profile computes the current profile for a token: sorted bins, point
// of control, and the value area covering DefaultValueAreaRatio of
// total volume expanded from the POC toward the larger neighbor.
func (b *Book) Profile(token model.Token) Result {
	b.mu.RLock()
	tb := b.bins[token]
	indices := make([]int64, 0, len(tb))
	for idx := range tb {
		indices = append(indices, idx)
	}
	volumes := make(map[int64]float64, len(tb))
	for idx, v := range tb {
		volumes[idx] = v
	}
	b.mu.RUnlock()

	if len(indices) == 0 {
		return Result{POCPrice: math.NaN()}
	}

	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	// Densify into a contiguous slice so the value-area expansion can
	// walk adjacent bins, including empty gaps.
	lo, hi := indices[0], indices[len(indices)-1]
	n := int(hi - lo + 1)
	dense := make([]float64, n)
	var total float64
	for idx, v := range volumes {
		dense[int(idx-lo)] = v
		total += v
	}
	pocOffset := 0
	for off, v := range dense {
		if v > dense[pocOffset] {
			pocOffset = off
		}
	}

	vaLo, vaHi := valueAreaOffsets(dense, pocOffset, total*DefaultValueAreaRatio)

	res := Result{
		Bins:        make([]Bin, 0, len(indices)),
		TotalVolume: total,
	}
	for _, idx := range indices {
		res.Bins = append(res.Bins, Bin{
			PriceLow:  float64(idx) * b.width,
			PriceHigh: float64(idx+1) * b.width,
			Volume:    volumes[idx],
		})
	}
	res.POCPrice = (float64(lo+int64(pocOffset)) + 0.5) * b.width
	res.ValueAreaLow = float64(lo+int64(vaLo)) * b.width
	res.ValueAreaHigh = float64(lo+int64(vaHi)+1) * b.width

	return res
}

// valueAreaOffsets expands from the POC toward the neighbor with more
// volume until the cumulative volume reaches target.
func valueAreaOffsets(volumes []float64, poc int, target float64) (lo, hi int) {
	lo, hi = poc, poc
	cumulative := volumes[poc]
	left, right := poc-1, poc+1

	for cumulative < target && (left >= 0 || right < len(volumes)) {
		leftVol := -1.0
		if left >= 0 {
			leftVol = volumes[left]
		}
		rightVol := -1.0
		if right < len(volumes) {
			rightVol = volumes[right]
		}
		if rightVol > leftVol {
			cumulative += rightVol
			hi = right
			right++
		} else {
			cumulative += leftVol
			lo = left
			left--
		}
	}

	return lo, hi
}
