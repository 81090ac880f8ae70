// Package search finds cards by text. Meilisearch serves queries when it is
// configured and healthy; the database answers otherwise.
package search

import "context"

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID          int64  `json:"id"`
	ListID      int64  `json:"list_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Query describes a search request.
type Query struct {
	Text  string
	Limit int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push cards into a search index.
type Indexer interface {
	IndexCards(cards []CardRecord) error
	DeleteCards(ids []int64) error
}

// CardRecord is the data we index for a card.
type CardRecord struct {
	ID          int64  `json:"id"`
	ListID      int64  `json:"list_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
