package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"kanban/api/internal/ordering"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rows holds the single-row operations shared by Store and Tx.
type rows struct {
	q       queryer
	dialect Dialect
}

// Store persists lists and cards. It holds no ordering logic: positions are
// written exactly as given.
type Store struct {
	rows
	db *sql.DB
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{rows: rows{q: db, dialect: dialect}, db: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping verifies the database connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx is one atomic unit. Every read and write made through it commits or
// rolls back together.
type Tx struct {
	rows
	tx *sql.Tx
}

// Atomic runs fn inside a transaction, committing when fn returns nil.
func (s *Store) Atomic(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	tx := &Tx{rows: rows{q: sqlTx, dialect: s.dialect}, tx: sqlTx}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Lock serializes writers of one container until the transaction ends.
// SQLite transactions are opened IMMEDIATE and already hold the write lock.
func (t *Tx) Lock(ctx context.Context, c ordering.Container) error {
	if t.dialect != DialectPostgres {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, c.String()); err != nil {
		return fmt.Errorf("lock %s: %w", c, err)
	}
	return nil
}

const (
	listColumns = "id, title, position, created_at"
	cardColumns = "id, list_id, title, description, position, created_at, updated_at"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanList(row scanner) (List, error) {
	var (
		item      List
		createdAt timestamp
	)
	if err := row.Scan(&item.ID, &item.Title, &item.Position, &createdAt); err != nil {
		return List{}, err
	}
	item.CreatedAt = createdAt.Time
	return item, nil
}

func scanCard(row scanner) (Card, error) {
	var (
		item      Card
		createdAt timestamp
		updatedAt timestamp
	)
	if err := row.Scan(&item.ID, &item.ListID, &item.Title, &item.Description, &item.Position, &createdAt, &updatedAt); err != nil {
		return Card{}, err
	}
	item.CreatedAt = createdAt.Time
	item.UpdatedAt = updatedAt.Time
	return item, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r rows) ListLists(ctx context.Context) ([]List, error) {
	result, err := r.q.QueryContext(ctx, `SELECT `+listColumns+` FROM lists ORDER BY position ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer result.Close()

	items := make([]List, 0)
	for result.Next() {
		item, err := scanList(result)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		items = append(items, item)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	return items, nil
}

// ListCards returns every card on the board ordered by position.
func (r rows) ListCards(ctx context.Context) ([]Card, error) {
	return r.queryCards(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY position ASC, id ASC`)
}

func (r rows) ListCardsInList(ctx context.Context, listID int64) ([]Card, error) {
	return r.queryCards(ctx, r.dialect.rebind(`SELECT `+cardColumns+` FROM cards WHERE list_id = ? ORDER BY position ASC, id ASC`), listID)
}

// SearchCards matches text case-insensitively against card titles and
// descriptions.
func (r rows) SearchCards(ctx context.Context, text string, limit int) ([]Card, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(text))) + "%"
	return r.queryCards(ctx, r.dialect.rebind(`
		SELECT `+cardColumns+`
		FROM cards
		WHERE LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'
		ORDER BY list_id ASC, position ASC, id ASC
		LIMIT ?
	`), pattern, pattern, limit)
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func (r rows) queryCards(ctx context.Context, query string, args ...any) ([]Card, error) {
	result, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer result.Close()

	items := make([]Card, 0)
	for result.Next() {
		item, err := scanCard(result)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		items = append(items, item)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return items, nil
}

func (r rows) GetList(ctx context.Context, id int64) (List, error) {
	item, err := scanList(r.q.QueryRowContext(ctx, r.dialect.rebind(`SELECT `+listColumns+` FROM lists WHERE id = ?`), id))
	if err != nil {
		return List{}, notFound(err)
	}
	return item, nil
}

func (r rows) GetCard(ctx context.Context, id int64) (Card, error) {
	item, err := scanCard(r.q.QueryRowContext(ctx, r.dialect.rebind(`SELECT `+cardColumns+` FROM cards WHERE id = ?`), id))
	if err != nil {
		return Card{}, notFound(err)
	}
	return item, nil
}

func (r rows) CardIDsInList(ctx context.Context, listID int64) ([]int64, error) {
	result, err := r.q.QueryContext(ctx, r.dialect.rebind(`SELECT id FROM cards WHERE list_id = ?`), listID)
	if err != nil {
		return nil, fmt.Errorf("list card ids: %w", err)
	}
	defer result.Close()

	ids := make([]int64, 0)
	for result.Next() {
		var id int64
		if err := result.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan card id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate card ids: %w", err)
	}
	return ids, nil
}

func (r rows) InsertList(ctx context.Context, title string, position int64, createdAt time.Time) (List, error) {
	item, err := scanList(r.q.QueryRowContext(ctx, r.dialect.rebind(`
		INSERT INTO lists (title, position, created_at)
		VALUES (?, ?, ?)
		RETURNING `+listColumns), title, position, createdAt.UTC()))
	if err != nil {
		return List{}, fmt.Errorf("insert list: %w", err)
	}
	return item, nil
}

func (r rows) InsertCard(ctx context.Context, card Card) (Card, error) {
	item, err := scanCard(r.q.QueryRowContext(ctx, r.dialect.rebind(`
		INSERT INTO cards (list_id, title, description, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+cardColumns),
		card.ListID, card.Title, card.Description, card.Position, card.CreatedAt.UTC(), card.UpdatedAt.UTC()))
	if err != nil {
		return Card{}, fmt.Errorf("insert card: %w", err)
	}
	return item, nil
}

func (r rows) UpdateListTitle(ctx context.Context, id int64, title string) (List, error) {
	item, err := scanList(r.q.QueryRowContext(ctx, r.dialect.rebind(`
		UPDATE lists SET title = ? WHERE id = ?
		RETURNING `+listColumns), title, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return List{}, ErrNotFound
		}
		return List{}, fmt.Errorf("update list: %w", err)
	}
	return item, nil
}

func (r rows) UpdateCard(ctx context.Context, id int64, title, description string, updatedAt time.Time) (Card, error) {
	item, err := scanCard(r.q.QueryRowContext(ctx, r.dialect.rebind(`
		UPDATE cards SET title = ?, description = ?, updated_at = ? WHERE id = ?
		RETURNING `+cardColumns), title, description, updatedAt.UTC(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Card{}, ErrNotFound
		}
		return Card{}, fmt.Errorf("update card: %w", err)
	}
	return item, nil
}

func (r rows) TouchCard(ctx context.Context, id int64, updatedAt time.Time) error {
	return r.execOne(ctx, "touch card", `UPDATE cards SET updated_at = ? WHERE id = ?`, updatedAt.UTC(), id)
}

func (r rows) DeleteList(ctx context.Context, id int64) error {
	return r.execOne(ctx, "delete list", `DELETE FROM lists WHERE id = ?`, id)
}

// DeleteCardsInList removes every card of a list and reports how many went.
func (r rows) DeleteCardsInList(ctx context.Context, listID int64) (int64, error) {
	result, err := r.q.ExecContext(ctx, r.dialect.rebind(`DELETE FROM cards WHERE list_id = ?`), listID)
	if err != nil {
		return 0, fmt.Errorf("delete cards: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete cards: %w", err)
	}
	return count, nil
}

func (r rows) DeleteCard(ctx context.Context, id int64) error {
	return r.execOne(ctx, "delete card", `DELETE FROM cards WHERE id = ?`, id)
}

// Siblings returns the members of a container sorted by position.
func (r rows) Siblings(ctx context.Context, c ordering.Container) ([]ordering.Sibling, error) {
	var (
		result *sql.Rows
		err    error
	)
	switch c.Kind {
	case ordering.KindList:
		result, err = r.q.QueryContext(ctx, `SELECT id, position FROM lists ORDER BY position ASC, id ASC`)
	case ordering.KindCard:
		result, err = r.q.QueryContext(ctx, r.dialect.rebind(`SELECT id, position FROM cards WHERE list_id = ? ORDER BY position ASC, id ASC`), c.ListID)
	default:
		return nil, fmt.Errorf("unknown container kind %q", c.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("list siblings in %s: %w", c, err)
	}
	defer result.Close()

	siblings := make([]ordering.Sibling, 0)
	for result.Next() {
		var s ordering.Sibling
		if err := result.Scan(&s.ID, &s.Position); err != nil {
			return nil, fmt.Errorf("scan sibling: %w", err)
		}
		siblings = append(siblings, s)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate siblings: %w", err)
	}
	return siblings, nil
}

// Shift moves every member of c at or after from, except exclude, one
// position later. Rows that left c before the statement runs are untouched.
func (r rows) Shift(ctx context.Context, c ordering.Container, from, exclude int64) error {
	var err error
	switch c.Kind {
	case ordering.KindList:
		_, err = r.q.ExecContext(ctx, r.dialect.rebind(`UPDATE lists SET position = position + 1 WHERE position >= ? AND id <> ?`), from, exclude)
	case ordering.KindCard:
		_, err = r.q.ExecContext(ctx, r.dialect.rebind(`UPDATE cards SET position = position + 1 WHERE list_id = ? AND position >= ? AND id <> ?`), c.ListID, from, exclude)
	default:
		return fmt.Errorf("unknown container kind %q", c.Kind)
	}
	if err != nil {
		return fmt.Errorf("shift %s: %w", c, err)
	}
	return nil
}

// Place writes an item's container key and position.
func (r rows) Place(ctx context.Context, c ordering.Container, id, position int64) error {
	switch c.Kind {
	case ordering.KindList:
		return r.execOne(ctx, "place list", `UPDATE lists SET position = ? WHERE id = ?`, position, id)
	case ordering.KindCard:
		return r.execOne(ctx, "place card", `UPDATE cards SET list_id = ?, position = ? WHERE id = ?`, c.ListID, position, id)
	default:
		return fmt.Errorf("unknown container kind %q", c.Kind)
	}
}

func (r rows) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
