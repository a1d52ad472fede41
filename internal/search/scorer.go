package search

import (
	"math"
	"sort"

	"propertylist/server/internal/models"
)

const (
	baseScore          = 1.0
	urbanisationBonus  = 5.0
	neighbourhoodBonus = 3.0
	typeBonus          = 2.0
	bedroomExactBonus  = 1.5
	bedroomNearBonus   = 0.75
	bathroomExactBonus = 1.0
	bathroomNearBonus  = 0.5
	centralityMaxBonus = 1.0
)

// Scored is a filtered candidate with its relevance
type Scored struct {
	Candidate
	Score            float64
	LocationMatched  bool
	SameUrbanisation bool
}

// Score computes the relevance of a candidate against the original query
func Score(c *models.SearchCriteria, cand Candidate) float64 {
	p := cand.Record
	score := baseScore

	if sameLocation(c.Urbanisation, p.Urbanisation) {
		score += urbanisationBonus
	}
	if sameLocation(c.Neighbourhood, p.Neighbourhood) {
		score += neighbourhoodBonus
	}
	if c.PropertyType != "" && c.PropertyType == p.PropertyType {
		score += typeBonus
	}

	if c.Bedrooms > 0 {
		switch diff := p.Bedrooms - c.Bedrooms; {
		case diff == 0:
			score += bedroomExactBonus
		case diff == 1 || diff == -1:
			score += bedroomNearBonus
		}
	}
	if c.Bathrooms > 0 {
		switch diff := math.Abs(p.Bathrooms - c.Bathrooms); {
		case diff == 0:
			score += bathroomExactBonus
		case diff <= 1:
			score += bathroomNearBonus
		}
	}

	score += centrality(p.Price, c.MinPrice, c.MaxPrice)
	if area, _ := p.RelevantArea(); area > 0 {
		score += centrality(area, c.MinArea, c.MaxArea)
	}

	if cand.HasDistance {
		score += distanceBonus(cand.Distance)
	}
	return score
}

// centrality is 1 at the middle of [min, max] falling to 0 at either bound.
// Open-ended bands contribute nothing.
func centrality(v, min, max float64) float64 {
	if min <= 0 || max <= 0 || max < min {
		return 0
	}
	center := (min + max) / 2
	half := (max - min) / 2
	if half == 0 {
		if v == center {
			return centralityMaxBonus
		}
		return 0
	}
	return math.Max(0, centralityMaxBonus-math.Abs(v-center)/half)
}

func distanceBonus(km float64) float64 {
	switch {
	case km <= 1:
		return 2.0
	case km <= 2:
		return 1.5
	case km <= 3:
		return 1.0
	case km <= 5:
		return 0.5
	}
	return 0
}

// Rank scores the pool and orders it by score descending, then distance
// ascending. Candidates that still tie keep their pool order.
func Rank(c *models.SearchCriteria, pool []Candidate) []Scored {
	ranked := make([]Scored, len(pool))
	for i, cand := range pool {
		p := cand.Record
		sameUrb := sameLocation(c.Urbanisation, p.Urbanisation)
		ranked[i] = Scored{
			Candidate:        cand,
			Score:            Score(c, cand),
			LocationMatched:  sameUrb || sameLocation(c.Neighbourhood, p.Neighbourhood),
			SameUrbanisation: sameUrb,
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Distance < ranked[j].Distance
	})
	return ranked
}
