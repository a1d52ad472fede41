// Package search finds comparable properties. A query is expanded into
// progressively relaxed strategies, each strategy's index candidates are
// filtered, and the union of survivors is scored and selected.
package search

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"propertylist/server/internal/index"
	"propertylist/server/internal/models"
)

// Source is the read view of the store a search runs against. The caller
// keeps it consistent for the duration of Find.
type Source interface {
	Record(id string) (*models.PropertyRecord, bool)
	Intersect(limit int, terms ...index.Term) []string
	MatchKeywords(keywords string) (map[string]struct{}, error)
}

type Options struct {
	MaxResults         int
	MaxBucketScan      int
	DiversifyThreshold int
}

// StrategyStats reports what one strategy contributed
type StrategyStats struct {
	Name       string `json:"name"`
	Candidates int    `json:"candidates"`
	Passed     int    `json:"passed"`
	Added      int    `json:"added"`
}

type Result struct {
	Comparables []models.ComparableView `json:"comparables"`
	TotalFound  int                     `json:"total_found"`
	Strategies  []StrategyStats         `json:"strategies"`
	Rejections  Rejections              `json:"rejections"`
}

func emptyResult() *Result {
	return &Result{
		Comparables: []models.ComparableView{},
		Strategies:  []StrategyStats{},
		Rejections:  Rejections{},
	}
}

type Engine struct {
	opts   Options
	logger *logrus.Logger
}

func NewEngine(opts Options, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 12
	}
	if opts.DiversifyThreshold <= 0 {
		opts.DiversifyThreshold = 8
	}
	return &Engine{opts: opts, logger: logger}
}

type strategyOutcome struct {
	candidates int
	passed     []Candidate
	rejections Rejections
}

// Find runs every strategy for the query and returns the selected comparables
// with the number of distinct candidates that passed filtering.
func (e *Engine) Find(ctx context.Context, src Source, criteria models.SearchCriteria) (*Result, error) {
	res := emptyResult()
	if unknown := criteria.Normalize(); len(unknown) > 0 {
		e.logger.WithFields(logrus.Fields{
			"city":    criteria.City,
			"unknown": unknown,
		}).Warn("Ignoring unrecognised search criteria values")
	}
	if criteria.Contradictory() {
		e.logger.WithFields(logrus.Fields{
			"city": criteria.City,
		}).Debug("Contradictory search criteria, returning no comparables")
		return res, nil
	}

	var keywordHits map[string]struct{}
	if criteria.Keywords != "" {
		hits, err := src.MatchKeywords(criteria.Keywords)
		if err != nil {
			return nil, fmt.Errorf("failed to match keywords: %w", err)
		}
		keywordHits = hits
	}

	strategies := Plan(criteria)
	outcomes := make([]strategyOutcome, len(strategies))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = e.runStrategy(src, s, keywordHits)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to run search strategies: %w", err)
	}

	// Union in strategy order so location-scoped strategies contribute first
	seen := make(map[string]bool)
	var pool []Candidate
	for i, out := range outcomes {
		added := 0
		for _, cand := range out.passed {
			if seen[cand.Record.ID] {
				continue
			}
			seen[cand.Record.ID] = true
			pool = append(pool, cand)
			added++
		}
		res.Rejections.add(out.rejections)
		res.Strategies = append(res.Strategies, StrategyStats{
			Name:       strategies[i].Name,
			Candidates: out.candidates,
			Passed:     len(out.passed),
			Added:      added,
		})
	}
	res.TotalFound = len(pool)

	n := criteria.MaxResults
	if n <= 0 {
		n = e.opts.MaxResults
	}
	selected := Select(Rank(&criteria, pool), n, e.opts.DiversifyThreshold)
	for _, s := range selected {
		var distance *float64
		if s.HasDistance {
			d := s.Distance
			distance = &d
		}
		res.Comparables = append(res.Comparables, models.NewComparableView(s.Record, s.Score, distance, s.LocationMatched))
	}

	e.logger.WithFields(logrus.Fields{
		"city":        criteria.City,
		"type":        criteria.PropertyType,
		"total_found": res.TotalFound,
		"returned":    len(res.Comparables),
	}).Debug("Comparable search completed")
	return res, nil
}

func (e *Engine) runStrategy(src Source, s Strategy, keywordHits map[string]struct{}) strategyOutcome {
	out := strategyOutcome{rejections: Rejections{}}
	terms := s.Terms()
	if len(terms) == 0 {
		return out
	}

	var ids []string
	if keywordHits != nil {
		for _, id := range src.Intersect(0, terms...) {
			if _, ok := keywordHits[id]; ok {
				ids = append(ids, id)
			}
		}
		if e.opts.MaxBucketScan > 0 && len(ids) > e.opts.MaxBucketScan {
			ids = ids[:e.opts.MaxBucketScan]
		}
	} else {
		ids = src.Intersect(e.opts.MaxBucketScan, terms...)
	}
	out.candidates = len(ids)

	for _, id := range ids {
		p, ok := src.Record(id)
		if !ok {
			continue
		}
		cand, reason, ok := Filter(s, p)
		if !ok {
			out.rejections[reason]++
			continue
		}
		out.passed = append(out.passed, cand)
	}
	return out
}
