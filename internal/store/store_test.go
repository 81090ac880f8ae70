package store_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"kanban/api/internal/ordering"
	"kanban/api/internal/store"
	"kanban/api/internal/store/storetest"
)

// backends runs every contract test against SQLite, and Postgres when
// KANBAN_TEST_DATABASE_URL is set.
func backends(t *testing.T) map[string]func(t testing.TB) *store.Store {
	t.Helper()
	return storetest.Backends(t)
}

func TestListsComeBackInPositionOrder(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			storetest.SeedList(t, s, "Done", 7)
			storetest.SeedList(t, s, "Todo", 0)
			storetest.SeedList(t, s, "Doing", 3)

			lists, err := s.ListLists(ctx)
			if err != nil {
				t.Fatalf("ListLists: %v", err)
			}
			got := make([]string, 0, len(lists))
			for _, item := range lists {
				got = append(got, item.Title)
			}
			if strings.Join(got, ",") != "Todo,Doing,Done" {
				t.Fatalf("unexpected order: %v", got)
			}
			if lists[0].CreatedAt.IsZero() {
				t.Fatal("expected created_at to be populated")
			}
		})
	}
}

func TestInsertCardRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			list := storetest.SeedList(t, s, "Todo", 0)

			now := store.Now()
			card, err := s.InsertCard(ctx, store.Card{
				ListID:      list.ID,
				Title:       "Write docs",
				Description: "for the board",
				Position:    4,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				t.Fatalf("InsertCard: %v", err)
			}
			if card.ID == 0 {
				t.Fatal("expected generated id")
			}

			fetched, err := s.GetCard(ctx, card.ID)
			if err != nil {
				t.Fatalf("GetCard: %v", err)
			}
			if fetched.Title != "Write docs" || fetched.Description != "for the board" || fetched.Position != 4 || fetched.ListID != list.ID {
				t.Fatalf("unexpected card: %+v", fetched)
			}
			if !fetched.UpdatedAt.Equal(now) {
				t.Fatalf("expected updated_at %v, got %v", now, fetched.UpdatedAt)
			}
		})
	}
}

func TestMissingRowsReportNotFound(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			if _, err := s.GetList(ctx, 99); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("GetList: expected ErrNotFound, got %v", err)
			}
			if _, err := s.GetCard(ctx, 99); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("GetCard: expected ErrNotFound, got %v", err)
			}
			if _, err := s.UpdateListTitle(ctx, 99, "x"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("UpdateListTitle: expected ErrNotFound, got %v", err)
			}
			if _, err := s.UpdateCard(ctx, 99, "x", "", store.Now()); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("UpdateCard: expected ErrNotFound, got %v", err)
			}
			if err := s.DeleteList(ctx, 99); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("DeleteList: expected ErrNotFound, got %v", err)
			}
			if err := s.DeleteCard(ctx, 99); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("DeleteCard: expected ErrNotFound, got %v", err)
			}
			if err := s.Place(ctx, ordering.CardsIn(1), 99, 0); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("Place: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestDeletingListCascadesToCards(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			doomed := storetest.SeedList(t, s, "Doomed", 0)
			kept := storetest.SeedList(t, s, "Kept", 1)
			storetest.SeedCard(t, s, doomed.ID, "a", 0)
			storetest.SeedCard(t, s, doomed.ID, "b", 1)
			survivor := storetest.SeedCard(t, s, kept.ID, "c", 0)

			if err := s.DeleteList(ctx, doomed.ID); err != nil {
				t.Fatalf("DeleteList: %v", err)
			}

			cards, err := s.ListCards(ctx)
			if err != nil {
				t.Fatalf("ListCards: %v", err)
			}
			if len(cards) != 1 || cards[0].ID != survivor.ID {
				t.Fatalf("expected only the survivor card, got %+v", cards)
			}
		})
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			list := storetest.SeedList(t, s, "Todo", 0)
			card := storetest.SeedCard(t, s, list.ID, "a", 0)

			boom := errors.New("boom")
			err := s.Atomic(ctx, func(tx *store.Tx) error {
				if err := tx.Lock(ctx, ordering.CardsIn(list.ID)); err != nil {
					return err
				}
				if err := tx.Place(ctx, ordering.CardsIn(list.ID), card.ID, 42); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected boom, got %v", err)
			}

			fetched, err := s.GetCard(ctx, card.ID)
			if err != nil {
				t.Fatalf("GetCard: %v", err)
			}
			if fetched.Position != 0 {
				t.Fatalf("expected rollback to keep position 0, got %d", fetched.Position)
			}
		})
	}
}

func TestPlaceMovesCardAcrossContainers(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			from := storetest.SeedList(t, s, "From", 0)
			to := storetest.SeedList(t, s, "To", 1)
			card := storetest.SeedCard(t, s, from.ID, "a", 0)

			err := s.Atomic(ctx, func(tx *store.Tx) error {
				return tx.Place(ctx, ordering.CardsIn(to.ID), card.ID, 5)
			})
			if err != nil {
				t.Fatalf("Atomic: %v", err)
			}

			siblings, err := s.Siblings(ctx, ordering.CardsIn(to.ID))
			if err != nil {
				t.Fatalf("Siblings: %v", err)
			}
			if len(siblings) != 1 || siblings[0].ID != card.ID || siblings[0].Position != 5 {
				t.Fatalf("unexpected siblings: %+v", siblings)
			}
			left, err := s.Siblings(ctx, ordering.CardsIn(from.ID))
			if err != nil {
				t.Fatalf("Siblings: %v", err)
			}
			if len(left) != 0 {
				t.Fatalf("expected source list to be empty, got %+v", left)
			}
		})
	}
}

func TestSearchCardsMatchesTitleAndDescription(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			list := storetest.SeedList(t, s, "Todo", 0)
			storetest.SeedCard(t, s, list.ID, "Fix LOGIN bug", 0)
			other := storetest.SeedCard(t, s, list.ID, "Write docs", 1)
			if _, err := s.UpdateCard(ctx, other.ID, other.Title, "mention the login flow", store.Now()); err != nil {
				t.Fatalf("UpdateCard: %v", err)
			}
			storetest.SeedCard(t, s, list.ID, "100% coverage", 2)

			found, err := s.SearchCards(ctx, "login", 10)
			if err != nil {
				t.Fatalf("SearchCards: %v", err)
			}
			if len(found) != 2 {
				t.Fatalf("expected 2 matches, got %+v", found)
			}

			found, err = s.SearchCards(ctx, "%", 10)
			if err != nil {
				t.Fatalf("SearchCards: %v", err)
			}
			if len(found) != 1 || found[0].Title != "100% coverage" {
				t.Fatalf("expected literal %% match only, got %+v", found)
			}
		})
	}
}

func TestDeleteCardsInListCounts(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()
	list := storetest.SeedList(t, s, "Todo", 0)
	storetest.SeedCard(t, s, list.ID, "a", 0)
	storetest.SeedCard(t, s, list.ID, "b", 1)

	ids, err := s.CardIDsInList(ctx, list.ID)
	if err != nil {
		t.Fatalf("CardIDsInList: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}

	var removed int64
	err = s.Atomic(ctx, func(tx *store.Tx) error {
		var err error
		removed, err = tx.DeleteCardsInList(ctx, list.ID)
		return err
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
}

// interleavedTx runs before once, right before the first Shift, through the
// same transaction.
type interleavedTx struct {
	*store.Tx
	before func(tx *store.Tx) error
}

func (w *interleavedTx) Shift(ctx context.Context, c ordering.Container, from, exclude int64) error {
	if w.before != nil {
		before := w.before
		w.before = nil
		if err := before(w.Tx); err != nil {
			return err
		}
	}
	return w.Tx.Shift(ctx, c, from, exclude)
}

func TestMoveLeavesDepartedSiblingsAlone(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			todo := storetest.SeedList(t, s, "Todo", 0)
			done := storetest.SeedList(t, s, "Done", 1)
			first := storetest.SeedCard(t, s, todo.ID, "first", 0)
			leaving := storetest.SeedCard(t, s, todo.ID, "leaving", 1)
			deleted := storetest.SeedCard(t, s, todo.ID, "deleted", 2)
			mover := storetest.SeedCard(t, s, done.ID, "mover", 0)

			err := s.Atomic(ctx, func(tx *store.Tx) error {
				w := &interleavedTx{Tx: tx, before: func(tx *store.Tx) error {
					if err := tx.Place(ctx, ordering.CardsIn(done.ID), leaving.ID, 5); err != nil {
						return err
					}
					return tx.DeleteCard(ctx, deleted.ID)
				}}
				return ordering.MoveTo(ctx, w, ordering.CardsIn(todo.ID), mover.ID, 0)
			})
			if err != nil {
				t.Fatalf("MoveTo: %v", err)
			}

			got, err := s.GetCard(ctx, leaving.ID)
			if err != nil {
				t.Fatalf("GetCard: %v", err)
			}
			if got.ListID != done.ID || got.Position != 5 {
				t.Fatalf("departed card rewritten: list %d position %d", got.ListID, got.Position)
			}

			siblings, err := s.Siblings(ctx, ordering.CardsIn(todo.ID))
			if err != nil {
				t.Fatalf("Siblings: %v", err)
			}
			want := []ordering.Sibling{{ID: mover.ID, Position: 0}, {ID: first.ID, Position: 1}}
			if len(siblings) != len(want) || siblings[0] != want[0] || siblings[1] != want[1] {
				t.Fatalf("expected %+v, got %+v", want, siblings)
			}
		})
	}
}
