package search

import (
	"context"
	"strings"

	"kanban/api/internal/store"
)

type cardFinder interface {
	SearchCards(ctx context.Context, text string, limit int) ([]store.Card, error)
}

// SQL implements Searcher with a case-insensitive substring match in the
// database. It is the fallback when Meilisearch is unavailable.
type SQL struct {
	cards cardFinder
}

func NewSQL(cards cardFinder) *SQL {
	return &SQL{cards: cards}
}

// Healthy always returns true: without the database nothing else works either.
func (s *SQL) Healthy() bool {
	return true
}

func (s *SQL) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	cards, err := s.cards.SearchCards(ctx, q.Text, normalizeLimit(q.Limit))
	if err != nil {
		return nil, 0, err
	}
	results := make([]Result, 0, len(cards))
	for _, card := range cards {
		results = append(results, Result{
			ID:          card.ID,
			ListID:      card.ListID,
			Title:       card.Title,
			Description: card.Description,
		})
	}
	return results, len(results), nil
}
