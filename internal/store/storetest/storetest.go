// Package storetest opens throwaway stores for tests in other packages.
package storetest

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"kanban/api/internal/store"
)

// PostgresEnv names a disposable Postgres database for contract tests.
const PostgresEnv = "KANBAN_TEST_DATABASE_URL"

// MemoryDSN is a private in-memory SQLite database with foreign keys on.
const MemoryDSN = "file::memory:?_foreign_keys=on&_txlock=immediate"

// NewSQLite returns a migrated in-memory store closed at test cleanup.
func NewSQLite(t testing.TB) *store.Store {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(ctx, store.DialectSQLite, MemoryDSN)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrations, err := store.Migrations(store.DialectSQLite, "")
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if err := store.ApplyMigrations(ctx, db, store.DialectSQLite, migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store.New(db, store.DialectSQLite)
}

// Backends returns an opener per store every contract test should run
// against: SQLite always, Postgres when PostgresEnv is set.
func Backends(t testing.TB) map[string]func(t testing.TB) *store.Store {
	t.Helper()
	out := map[string]func(t testing.TB) *store.Store{
		"sqlite": NewSQLite,
	}
	if dsn := strings.TrimSpace(os.Getenv(PostgresEnv)); dsn != "" {
		out["postgres"] = func(t testing.TB) *store.Store { return NewPostgres(t, dsn) }
	}
	return out
}

// NewPostgres migrates a fresh schema in the database at dsn and returns a
// store whose connections all use it. The schema is dropped at cleanup, so
// packages can share one database.
func NewPostgres(t testing.TB, dsn string) *store.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	admin, err := store.Open(ctx, store.DialectPostgres, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	schema := "kanban_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.ExecContext(ctx, `CREATE SCHEMA `+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), `DROP SCHEMA IF EXISTS `+schema+` CASCADE`)
		_ = admin.Close()
	})

	db, err := store.Open(ctx, store.DialectPostgres, withSearchPath(t, dsn, schema))
	if err != nil {
		t.Fatalf("open postgres schema %s: %v", schema, err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrations, err := store.Migrations(store.DialectPostgres, "")
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if err := store.ApplyMigrations(ctx, db, store.DialectPostgres, migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store.New(db, store.DialectPostgres)
}

func withSearchPath(t testing.TB, dsn, schema string) string {
	t.Helper()
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse %s: %v", PostgresEnv, err)
	}
	query := parsed.Query()
	query.Set("search_path", schema)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// SeedList inserts a list at an explicit position.
func SeedList(t testing.TB, s *store.Store, title string, position int64) store.List {
	t.Helper()
	item, err := s.InsertList(context.Background(), title, position, store.Now())
	if err != nil {
		t.Fatalf("seed list %q: %v", title, err)
	}
	return item
}

// SeedCard inserts a card at an explicit position.
func SeedCard(t testing.TB, s *store.Store, listID int64, title string, position int64) store.Card {
	t.Helper()
	now := store.Now()
	item, err := s.InsertCard(context.Background(), store.Card{
		ListID:    listID,
		Title:     title,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed card %q: %v", title, err)
	}
	return item
}
