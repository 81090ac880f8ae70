package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	log "github.com/sirupsen/logrus"
)

const idxCards = "kanban_cards"

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	logger  log.FieldLogger
}

// NewMeili creates a Meilisearch client and configures the card index. An
// unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey string, logger log.FieldLogger) *Meili {
	if logger == nil {
		logger = log.StandardLogger()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		logger: logger.WithField("component", "search"),
	}

	if _, err := m.client.Health(); err != nil {
		m.logger.WithError(err).WithField("url", url).Warn("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxCards,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.WithError(err).Debug("create card index (may already exist)")
	}

	index := m.client.Index(idxCards)
	filterable := []interface{}{"list_id"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.WithError(err).Warn("update filterable attributes")
	}
	searchable := []string{"title", "description"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.WithError(err).Warn("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: idxCards,
			Query:    q.Text,
			Limit:    int64(normalizeLimit(q.Limit)),
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:          decodeInt(hit, "id"),
		ListID:      decodeInt(hit, "list_id"),
		Title:       decodeString(hit, "title"),
		Description: decodeString(hit, "description"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

// IndexCards adds or updates cards in the search index.
func (m *Meili) IndexCards(cards []CardRecord) error {
	if len(cards) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCards).AddDocuments(cards, nil)
	return err
}

// DeleteCards removes cards from the search index.
func (m *Meili) DeleteCards(ids []int64) error {
	index := m.client.Index(idxCards)
	for _, id := range ids {
		if _, err := index.DeleteDocument(strconv.FormatInt(id, 10), nil); err != nil {
			return fmt.Errorf("delete card %d: %w", id, err)
		}
	}
	return nil
}
