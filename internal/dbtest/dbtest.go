//go:build integration

// Package dbtest opens a real Postgres connection for the integration
// suites gated behind the `integration` build tag, truncating every table
// between tests so each one starts from an empty schema.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/cloutcards/pokerhouse/internal/db"
)

// Open returns a schema-applied connection backed by TEST_DATABASE_URL,
// skipping the calling test when that variable isn't set.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	conn, err := db.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	Truncate(t, conn)
	return conn
}

// Truncate clears every domain table so tests don't observe state left
// behind by a previous run.
func Truncate(t *testing.T, conn *sql.DB) {
	t.Helper()
	const stmt = `TRUNCATE TABLE
		events, pots, hand_actions, hand_players, hands,
		table_seat_sessions, poker_tables, escrow_balances
		RESTART IDENTITY CASCADE`
	if _, err := conn.Exec(stmt); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
