package pricehistory

import "math"

type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

// stableBand is the combined trend magnitude, in percent, treated as flat
const stableBand = 1.0

type Trend struct {
	CombinedTrendPct float64   `json:"combined_trend_pct"`
	ShortTermPct     float64   `json:"short_term_pct"`
	LongTermPct      float64   `json:"long_term_pct"`
	VolatilityPct    float64   `json:"volatility_pct"`
	Direction        Direction `json:"direction"`
	Points           int       `json:"points"`
}

// ComputeTrend summarises the reconstructed timeline. It returns nil for
// fewer than two observations, and also when compaction has merged them into
// a single point.
func ComputeTrend(h *History) *Trend {
	if h == nil || h.TotalObservationCount < 2 {
		return nil
	}
	tl := h.Timeline()
	if len(tl) < 2 {
		return nil
	}

	longTerm := relativeChange(tl[0].Price, tl[len(tl)-1].Price)
	shortTerm := longTerm
	if len(h.Recent) >= 2 {
		shortTerm = relativeChange(h.Recent[0].Price, h.Recent[len(h.Recent)-1].Price)
	}

	var sum float64
	for _, p := range tl {
		sum += p.Price
	}
	mean := sum / float64(len(tl))
	var variance float64
	for _, p := range tl {
		d := p.Price - mean
		variance += d * d
	}
	variance /= float64(len(tl))
	volatility := 0.0
	if mean > 0 {
		volatility = math.Sqrt(variance) / mean * 100
	}

	combined := 0.7*shortTerm + 0.3*longTerm
	direction := DirectionStable
	if math.Abs(combined) > stableBand {
		if combined > 0 {
			direction = DirectionUp
		} else {
			direction = DirectionDown
		}
	}

	return &Trend{
		CombinedTrendPct: combined,
		ShortTermPct:     shortTerm,
		LongTermPct:      longTerm,
		VolatilityPct:    volatility,
		Direction:        direction,
		Points:           len(tl),
	}
}

func relativeChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to - from) / from * 100
}
