package search

import "propertylist/server/internal/models"

// Select picks the top n of a ranked list. Slots are filled tier by tier in
// rank order: candidates in the query's urbanisation, then those only in its
// neighbourhood, then the rest. When the urbanisation tier alone fills every
// slot and holds more than diversifyAbove candidates, the slots are
// diversified across property type, size category and price bracket.
func Select(ranked []Scored, n, diversifyAbove int) []Scored {
	if n <= 0 || len(ranked) == 0 {
		return nil
	}

	var urbanisation, neighbourhood, others []Scored
	for _, s := range ranked {
		switch {
		case s.SameUrbanisation:
			urbanisation = append(urbanisation, s)
		case s.LocationMatched:
			neighbourhood = append(neighbourhood, s)
		default:
			others = append(others, s)
		}
	}

	if len(urbanisation) >= n && diversifyAbove > 0 && len(urbanisation) > diversifyAbove {
		return diversify(urbanisation, n)
	}
	out := make([]Scored, 0, n)
	for _, tier := range [][]Scored{urbanisation, neighbourhood, others} {
		if len(out) == n {
			break
		}
		out = append(out, head(tier, n-len(out))...)
	}
	return out
}

func head(s []Scored, n int) []Scored {
	if len(s) > n {
		s = s[:n]
	}
	return append([]Scored(nil), s...)
}

type profile struct {
	propertyType models.PropertyType
	size         models.SizeCategory
	bracket      models.PriceBracket
}

// diversify greedily takes, in rank order, candidates that add a property
// type, size category or price bracket not yet represented, then fills the
// remaining slots by rank. The result stays in rank order.
func diversify(pool []Scored, n int) []Scored {
	types := make(map[models.PropertyType]bool)
	sizes := make(map[models.SizeCategory]bool)
	brackets := make(map[models.PriceBracket]bool)
	picked := make([]bool, len(pool))
	count := 0

	for i, s := range pool {
		if count == n {
			break
		}
		p := profileOf(s.Record)
		if types[p.propertyType] && sizes[p.size] && brackets[p.bracket] {
			continue
		}
		types[p.propertyType] = true
		sizes[p.size] = true
		brackets[p.bracket] = true
		picked[i] = true
		count++
	}
	for i := range pool {
		if count == n {
			break
		}
		if !picked[i] {
			picked[i] = true
			count++
		}
	}

	out := make([]Scored, 0, n)
	for i, s := range pool {
		if picked[i] {
			out = append(out, s)
		}
	}
	return out
}

func profileOf(p *models.PropertyRecord) profile {
	area, _ := p.RelevantArea()
	return profile{
		propertyType: p.PropertyType,
		size:         models.SizeCategoryFor(area),
		bracket:      models.PriceBracketFor(p.Price),
	}
}
