package search

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

type index interface {
	Searcher
	Indexer
}

// Service is the facade that tries Meilisearch first and falls back to SQL.
type Service struct {
	primary  index
	fallback Searcher
	logger   log.FieldLogger

	// Index writes run one at a time in call order, so a delete queued
	// after an index of the same card always lands last.
	mu       sync.Mutex
	queue    []func()
	draining bool
	pending  sync.WaitGroup
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback *SQL, logger log.FieldLogger) *Service {
	var primary index
	if meili != nil {
		primary = meili
	}
	return newService(primary, fallback, logger)
}

func newService(primary index, fallback Searcher, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{primary: primary, fallback: fallback, logger: logger.WithField("component", "search")}
}

// Search tries Meilisearch if healthy, otherwise falls back to the database.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
		}
		s.logger.WithError(err).Warn("meilisearch error, falling back to sql")
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
}

// IndexCard queues a card for indexing (fire-and-forget to Meilisearch).
func (s *Service) IndexCard(card CardRecord) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	s.async(func() {
		if err := s.primary.IndexCards([]CardRecord{card}); err != nil {
			s.logger.WithError(err).WithField("card_id", card.ID).Warn("index card")
		}
	})
}

// DeleteCards queues the cards' removal from the index (fire-and-forget).
func (s *Service) DeleteCards(ids []int64) {
	if len(ids) == 0 || s.primary == nil || !s.primary.Healthy() {
		return
	}
	s.async(func() {
		if err := s.primary.DeleteCards(ids); err != nil {
			s.logger.WithError(err).WithField("card_ids", ids).Warn("delete cards from index")
		}
	})
}

// ReindexAll pushes every card into Meilisearch. Called at startup.
func (s *Service) ReindexAll(cards []CardRecord) {
	if s.primary == nil || !s.primary.Healthy() || len(cards) == 0 {
		return
	}
	if err := s.primary.IndexCards(cards); err != nil {
		s.logger.WithError(err).Warn("reindex cards")
	}
}

// Wait blocks until every queued index write has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) async(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.pending.Add(1)
	s.mu.Unlock()
	go s.drain()
}

func (s *Service) drain() {
	defer s.pending.Done()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
