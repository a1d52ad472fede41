package index

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"propertylist/server/internal/models"
)

const textField = "text"

// TextIndex is an in-memory keyword index over each record's search text
type TextIndex struct {
	idx bleve.Index
}

func NewTextIndex() (*TextIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create text index: %w", err)
	}
	return &TextIndex{idx: idx}, nil
}

func (t *TextIndex) Index(p *models.PropertyRecord) error {
	if err := t.idx.Index(p.ID, map[string]interface{}{textField: p.SearchText}); err != nil {
		return fmt.Errorf("failed to index text for %s: %w", p.ID, err)
	}
	return nil
}

func (t *TextIndex) Delete(id string) error {
	if err := t.idx.Delete(id); err != nil {
		return fmt.Errorf("failed to remove text for %s: %w", id, err)
	}
	return nil
}

// Match returns the IDs whose search text contains every keyword
func (t *TextIndex) Match(keywords string, limit int) (map[string]struct{}, error) {
	keywords = models.NormalizeKey(keywords)
	out := make(map[string]struct{})
	if keywords == "" {
		return out, nil
	}
	if limit <= 0 {
		count, err := t.idx.DocCount()
		if err != nil {
			return nil, fmt.Errorf("failed to count text index: %w", err)
		}
		limit = int(count)
	}

	q := bleve.NewMatchQuery(keywords)
	q.SetField(textField)
	q.SetOperator(query.MatchQueryOperatorAnd)
	res, err := t.idx.Search(bleve.NewSearchRequestOptions(q, limit, 0, false))
	if err != nil {
		return nil, fmt.Errorf("failed to search text index: %w", err)
	}
	for _, hit := range res.Hits {
		out[hit.ID] = struct{}{}
	}
	return out, nil
}

func (t *TextIndex) Close() error {
	return t.idx.Close()
}
