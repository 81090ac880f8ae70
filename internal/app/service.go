package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban/api/internal/boardcache"
	"kanban/api/internal/ordering"
	"kanban/api/internal/search"
	"kanban/api/internal/store"
)

type List struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Position  int64     `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

type Card struct {
	ID          int64     `json:"id"`
	ListID      int64     `json:"list_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Position    int64     `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BoardList is a list decorated with its cards in position order.
type BoardList struct {
	List
	Cards []Card `json:"cards"`
}

type Board struct {
	Lists []BoardList `json:"lists"`
}

type ListInput struct {
	Title string `json:"title"`
}

type CreateCardInput struct {
	ListID      *int64  `json:"list_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// EditCardInput is a partial update; nil fields keep their current value.
type EditCardInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type MoveCardInput struct {
	TargetListID *int64 `json:"target_list_id"`
	Position     *int64 `json:"position"`
}

type boardStore interface {
	ListLists(context.Context) ([]store.List, error)
	ListCards(context.Context) ([]store.Card, error)
	GetCard(context.Context, int64) (store.Card, error)
	UpdateListTitle(context.Context, int64, string) (store.List, error)
	UpdateCard(context.Context, int64, string, string, time.Time) (store.Card, error)
	DeleteCard(context.Context, int64) error
	Atomic(context.Context, func(*store.Tx) error) error
	Ping(context.Context) error
}

type boardCache interface {
	Fetch(ctx context.Context, load func(context.Context) ([]byte, error)) ([]byte, error)
	Invalidate(ctx context.Context)
}

type cardIndex interface {
	Search(ctx context.Context, q search.Query) (search.Response, error)
	IndexCard(card search.CardRecord)
	DeleteCards(ids []int64)
	ReindexAll(cards []search.CardRecord)
}

type Service struct {
	store  boardStore
	cache  boardCache
	search cardIndex
	logger log.FieldLogger
}

// New wires the board service. cache may be nil; a nil search service falls
// back to querying the store directly.
func New(dataStore *store.Store, cache *boardcache.Cache, searchService *search.Service, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if searchService == nil {
		searchService = search.NewService(nil, search.NewSQL(dataStore), logger)
	}
	svc := &Service{store: dataStore, search: searchService, logger: logger}
	if cache != nil {
		svc.cache = cache
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Board reads every list with its cards, both in position order.
func (s *Service) Board(ctx context.Context) (Board, error) {
	lists, err := s.store.ListLists(ctx)
	if err != nil {
		return Board{}, err
	}
	cards, err := s.store.ListCards(ctx)
	if err != nil {
		return Board{}, err
	}

	byList := make(map[int64][]Card, len(lists))
	for _, card := range cards {
		byList[card.ListID] = append(byList[card.ListID], toCard(card))
	}

	board := Board{Lists: make([]BoardList, 0, len(lists))}
	for _, list := range lists {
		listCards := byList[list.ID]
		if listCards == nil {
			listCards = []Card{}
		}
		board.Lists = append(board.Lists, BoardList{List: toList(list), Cards: listCards})
	}
	return board, nil
}

// BoardJSON returns the serialized board, served from the cache when one is
// configured.
func (s *Service) BoardJSON(ctx context.Context) ([]byte, error) {
	load := func(ctx context.Context) ([]byte, error) {
		board, err := s.Board(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(board)
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Fetch(ctx, load)
}

func (s *Service) CreateList(ctx context.Context, input ListInput) (List, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return List{}, validationError("Title is required")
	}

	var created store.List
	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		position, err := ordering.Append(ctx, tx, ordering.Lists())
		if err != nil {
			return err
		}
		created, err = tx.InsertList(ctx, title, position, store.Now())
		return err
	})
	if err != nil {
		return List{}, err
	}

	s.invalidate(ctx)
	return toList(created), nil
}

func (s *Service) RenameList(ctx context.Context, id int64, input ListInput) (List, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return List{}, validationError("Title is required")
	}

	updated, err := s.store.UpdateListTitle(ctx, id, title)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return List{}, notFound("List not found")
		}
		return List{}, err
	}

	s.invalidate(ctx)
	return toList(updated), nil
}

// DeleteList removes a list and every card it owns. Sibling lists keep their
// positions.
func (s *Service) DeleteList(ctx context.Context, id int64) error {
	var removed []int64
	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		if err := ordering.LockAll(ctx, tx, ordering.Lists(), ordering.CardsIn(id)); err != nil {
			return err
		}
		ids, err := tx.CardIDsInList(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteCardsInList(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteList(ctx, id); err != nil {
			return err
		}
		removed = ids
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("List not found")
		}
		return err
	}

	s.invalidate(ctx)
	s.search.DeleteCards(removed)
	return nil
}

func (s *Service) CreateCard(ctx context.Context, input CreateCardInput) (Card, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Card{}, validationError("Title is required")
	}
	if input.ListID == nil || *input.ListID == 0 {
		return Card{}, validationError("list_id is required")
	}
	listID := *input.ListID
	description := ""
	if input.Description != nil {
		description = strings.TrimSpace(*input.Description)
	}

	var created store.Card
	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetList(ctx, listID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("List not found")
			}
			return err
		}
		position, err := ordering.Append(ctx, tx, ordering.CardsIn(listID))
		if err != nil {
			return err
		}
		now := store.Now()
		created, err = tx.InsertCard(ctx, store.Card{
			ListID:      listID,
			Title:       title,
			Description: description,
			Position:    position,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		return err
	})
	if err != nil {
		return Card{}, err
	}

	s.invalidate(ctx)
	s.search.IndexCard(toRecord(created))
	return toCard(created), nil
}

func (s *Service) EditCard(ctx context.Context, id int64, input EditCardInput) (Card, error) {
	existing, err := s.store.GetCard(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Card{}, notFound("Card not found")
		}
		return Card{}, err
	}

	title := existing.Title
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
	}
	description := existing.Description
	if input.Description != nil {
		description = strings.TrimSpace(*input.Description)
	}
	if title == "" {
		return Card{}, validationError("Title cannot be empty")
	}

	updated, err := s.store.UpdateCard(ctx, id, title, description, store.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Card{}, notFound("Card not found")
		}
		return Card{}, err
	}

	s.invalidate(ctx)
	s.search.IndexCard(toRecord(updated))
	return toCard(updated), nil
}

func (s *Service) DeleteCard(ctx context.Context, id int64) error {
	if err := s.store.DeleteCard(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Card not found")
		}
		return err
	}

	s.invalidate(ctx)
	s.search.DeleteCards([]int64{id})
	return nil
}

// MoveCard places a card into the target list at the given position,
// shifting the cards at or after it. Within one atomic unit.
//
// Both fields are required and position must be non-negative (400
// VALIDATION_ERROR otherwise). A position past the end is stored as given.
func (s *Service) MoveCard(ctx context.Context, id int64, input MoveCardInput) error {
	if input.TargetListID == nil || input.Position == nil {
		return validationError("target_list_id and position are required")
	}
	if *input.Position < 0 {
		return validationError("position must be non-negative")
	}
	targetListID, position := *input.TargetListID, *input.Position

	var moved store.Card
	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		card, err := tx.GetCard(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("Card not found")
			}
			return err
		}
		// Source and target together, so opposite cross-list moves queue
		// instead of each waiting on rows the other is shifting.
		if err := ordering.LockAll(ctx, tx, ordering.CardsIn(card.ListID), ordering.CardsIn(targetListID)); err != nil {
			return err
		}
		locked := card.ListID
		if card, err = tx.GetCard(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("Card not found")
			}
			return err
		}
		if card.ListID != locked {
			if err := tx.Lock(ctx, ordering.CardsIn(card.ListID)); err != nil {
				return err
			}
		}
		if _, err := tx.GetList(ctx, targetListID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("Target list not found")
			}
			return err
		}
		if err := ordering.MoveTo(ctx, tx, ordering.CardsIn(targetListID), id, position); err != nil {
			return err
		}
		if err := tx.TouchCard(ctx, id, store.Now()); err != nil {
			return err
		}
		card.ListID = targetListID
		card.Position = position
		moved = card
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx)
	s.search.IndexCard(toRecord(moved))
	return nil
}

// SearchCards matches text against card titles and descriptions.
func (s *Service) SearchCards(ctx context.Context, text string, limit int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, validationError("Query is required")
	}
	return s.search.Search(ctx, search.Query{Text: text, Limit: limit})
}

// Reindex pushes every stored card to the search index.
func (s *Service) Reindex(ctx context.Context) error {
	cards, err := s.store.ListCards(ctx)
	if err != nil {
		return err
	}
	records := make([]search.CardRecord, 0, len(cards))
	for _, card := range cards {
		records = append(records, toRecord(card))
	}
	s.search.ReindexAll(records)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	// The mutation has committed; a cancelled request must still bump the
	// generation.
	s.cache.Invalidate(context.WithoutCancel(ctx))
}

func toList(item store.List) List {
	return List{ID: item.ID, Title: item.Title, Position: item.Position, CreatedAt: item.CreatedAt}
}

func toCard(item store.Card) Card {
	return Card{
		ID:          item.ID,
		ListID:      item.ListID,
		Title:       item.Title,
		Description: item.Description,
		Position:    item.Position,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func toRecord(item store.Card) search.CardRecord {
	return search.CardRecord{
		ID:          item.ID,
		ListID:      item.ListID,
		Title:       item.Title,
		Description: item.Description,
	}
}
