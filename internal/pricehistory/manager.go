package pricehistory

import (
	"sort"
	"time"
)

// Manager applies observations and compaction against an injectable clock
type Manager struct {
	now func() time.Time
}

func NewManager(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{now: now}
}

// AddObservation records a price. The change against the latest raw
// observation is stored on the observation, and moves of 10% or more are
// also kept in MajorChanges. The history is compacted afterwards.
func (m *Manager) AddObservation(h *History, price float64, date time.Time, source string) *History {
	if h == nil {
		h = New()
	}
	obs := PricePoint{
		Date:   date,
		Price:  price,
		Source: source,
		High:   price,
		Low:    price,
		Count:  1,
	}

	latest := !date.Before(h.LastUpdated)
	var prior PricePoint
	var ok bool
	if latest && h.LastPrice > 0 {
		prior, ok = PricePoint{Date: h.LastUpdated, Price: h.LastPrice}, true
	} else {
		// Backfilled dates and histories without a raw anchor use the timeline
		prior, ok = precedingPoint(h.Timeline(), date)
	}
	if ok && prior.Price > 0 {
		obs.Change = price - prior.Price
		obs.ChangePct = obs.Change / prior.Price * 100
		if obs.ChangePct >= MajorChangeThreshold || obs.ChangePct <= -MajorChangeThreshold {
			h.MajorChanges = insertSorted(h.MajorChanges, obs)
		}
	}
	if latest {
		h.LastPrice = price
	}

	h.Recent = insertSorted(h.Recent, obs)
	h.TotalObservationCount++
	if h.FirstListedDate.IsZero() || date.Before(h.FirstListedDate) {
		h.FirstListedDate = date
	}
	if date.After(h.LastUpdated) {
		h.LastUpdated = date
	}

	m.CompactIfNeeded(h)
	return h
}

func precedingPoint(timeline []PricePoint, date time.Time) (PricePoint, bool) {
	for i := len(timeline) - 1; i >= 0; i-- {
		if !timeline[i].Date.After(date) {
			return timeline[i], true
		}
	}
	return PricePoint{}, false
}

// CompactIfNeeded moves aged points one tier coarser: raw points older than
// six months into months, months older than two years into quarters, quarters
// older than five years into years. Running it again with the same clock is a
// no-op.
func (m *Manager) CompactIfNeeded(h *History) {
	if h == nil {
		return
	}
	now := m.now()

	var moved []PricePoint
	h.Recent, moved = splitOlder(h.Recent, now.AddDate(0, -6, 0))
	h.Monthly = mergeInto(h.Monthly, moved, monthStart)

	h.Monthly, moved = splitOlder(h.Monthly, now.AddDate(-2, 0, 0))
	h.Quarterly = mergeInto(h.Quarterly, moved, quarterStart)

	h.Quarterly, moved = splitOlder(h.Quarterly, now.AddDate(-5, 0, 0))
	h.Yearly = mergeInto(h.Yearly, moved, yearStart)
}

// splitOlder partitions a date-sorted tier into points at or after the cutoff
// and points before it
func splitOlder(points []PricePoint, cutoff time.Time) ([]PricePoint, []PricePoint) {
	var kept, older []PricePoint
	for _, p := range points {
		if p.Date.Before(cutoff) {
			older = append(older, p)
		} else {
			kept = append(kept, p)
		}
	}
	if kept == nil {
		kept = []PricePoint{}
	}
	return kept, older
}

func mergeInto(buckets []PricePoint, moved []PricePoint, period func(time.Time) time.Time) []PricePoint {
	if len(moved) == 0 {
		return buckets
	}
	byStart := make(map[int64]int, len(buckets))
	for i, b := range buckets {
		byStart[b.Date.Unix()] = i
	}

	for _, p := range moved {
		start := period(p.Date)
		i, ok := byStart[start.Unix()]
		if !ok {
			buckets = append(buckets, PricePoint{
				Date:   start,
				Price:  p.Price,
				Source: p.Source,
				High:   p.High,
				Low:    p.Low,
				Count:  p.weight(),
			})
			byStart[start.Unix()] = len(buckets) - 1
			continue
		}
		b := &buckets[i]
		bw, pw := b.weight(), p.weight()
		b.Price = (b.Price*float64(bw) + p.Price*float64(pw)) / float64(bw+pw)
		if p.High > b.High {
			b.High = p.High
		}
		if p.Low < b.Low {
			b.Low = p.Low
		}
		b.Count = bw + pw
	}

	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].Date.Before(buckets[j].Date) })
	return buckets
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func quarterStart(t time.Time) time.Time {
	t = t.UTC()
	q := (int(t.Month()) - 1) / 3
	return time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
}

func yearStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Migrate replays a legacy flat list of observations in date order
func (m *Manager) Migrate(legacy []PricePoint) *History {
	sorted := append([]PricePoint(nil), legacy...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	h := New()
	for _, p := range sorted {
		if p.Price <= 0 {
			continue
		}
		m.AddObservation(h, p.Price, p.Date, p.Source)
	}
	return h
}
