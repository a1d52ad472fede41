// Package pricehistory keeps a per-property price series that compacts itself
// as it ages: raw points for six months, monthly buckets to two years,
// quarterly buckets to five years and yearly buckets beyond. Large moves are
// kept raw forever.
package pricehistory

import (
	"sort"
	"time"
)

// MajorChangeThreshold is the absolute percentage move retained uncompacted
const MajorChangeThreshold = 10.0

// PricePoint is either a raw observation (Count 1, High == Low == Price) or a
// compacted bucket whose Date is the start of its period and Price the
// count-weighted average.
type PricePoint struct {
	Date      time.Time `json:"date"`
	Price     float64   `json:"price"`
	Source    string    `json:"source,omitempty"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Count     int       `json:"count"`
	Change    float64   `json:"change,omitempty"`
	ChangePct float64   `json:"change_pct,omitempty"`
}

func (p PricePoint) weight() int {
	if p.Count <= 0 {
		return 1
	}
	return p.Count
}

// History is exclusively owned by one property record
type History struct {
	Recent       []PricePoint `json:"recent"`
	Monthly      []PricePoint `json:"monthly"`
	Quarterly    []PricePoint `json:"quarterly"`
	Yearly       []PricePoint `json:"yearly"`
	MajorChanges []PricePoint `json:"major_changes"`

	FirstListedDate       time.Time `json:"first_listed_date"`
	LastUpdated           time.Time `json:"last_updated"`
	TotalObservationCount int       `json:"total_observation_count"`

	// Price of the observation dated LastUpdated. Compaction never touches
	// it, so changes are always measured against a raw observation.
	LastPrice float64 `json:"last_price,omitempty"`
}

func New() *History {
	return &History{
		Recent:       []PricePoint{},
		Monthly:      []PricePoint{},
		Quarterly:    []PricePoint{},
		Yearly:       []PricePoint{},
		MajorChanges: []PricePoint{},
	}
}

// Timeline reconstructs the series coarsest-first. Points sharing a date keep
// the finer-grained one.
func (h *History) Timeline() []PricePoint {
	if h == nil {
		return nil
	}
	all := make([]PricePoint, 0, len(h.Yearly)+len(h.Quarterly)+len(h.Monthly)+len(h.Recent))
	all = append(all, h.Yearly...)
	all = append(all, h.Quarterly...)
	all = append(all, h.Monthly...)
	all = append(all, h.Recent...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })

	out := all[:0]
	for _, p := range all {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// Latest returns up to n of the most recent timeline points
func (h *History) Latest(n int) []PricePoint {
	tl := h.Timeline()
	if n > 0 && len(tl) > n {
		tl = tl[len(tl)-n:]
	}
	if tl == nil {
		return []PricePoint{}
	}
	return append([]PricePoint(nil), tl...)
}

// Clone deep-copies the history
func (h *History) Clone() *History {
	if h == nil {
		return nil
	}
	c := *h
	c.Recent = append([]PricePoint{}, h.Recent...)
	c.Monthly = append([]PricePoint{}, h.Monthly...)
	c.Quarterly = append([]PricePoint{}, h.Quarterly...)
	c.Yearly = append([]PricePoint{}, h.Yearly...)
	c.MajorChanges = append([]PricePoint{}, h.MajorChanges...)
	return &c
}

func insertSorted(points []PricePoint, p PricePoint) []PricePoint {
	i := sort.Search(len(points), func(i int) bool { return points[i].Date.After(p.Date) })
	points = append(points, PricePoint{})
	copy(points[i+1:], points[i:])
	points[i] = p
	return points
}
