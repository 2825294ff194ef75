// Package db owns the Postgres connection pool and its embedded schema.
package db

import (
	"context"
	_ "embed"
	"time"

	"database/sql"

	_ "github.com/lib/pq"

	"github.com/cloutcards/pokerhouse/internal/apperr"
)

//go:embed schema.sql
var schema string

// Open dials dsn, applies schema.sql, and tunes the pool for the
// connection-count Postgres plans this service runs against tend to cap.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "open postgres", err)
	}

	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, apperr.Wrap(apperr.InternalFatal, "ping postgres", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, apperr.Wrap(apperr.InternalFatal, "apply schema", err)
	}

	return conn, nil
}
