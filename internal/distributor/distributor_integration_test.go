//go:build integration

package distributor_test

import (
	"context"
	"math/big"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloutcards/pokerhouse/internal/dbtest"
	"github.com/cloutcards/pokerhouse/internal/distributor"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/signer"
	"github.com/cloutcards/pokerhouse/internal/table"
)

const testMnemonic = "test test test test test test test test test test test junk"
const wallet = "0x1111111111111111111111111111111111111111"

func TestStreamTableReplaysBacklogSinceLastEventID(t *testing.T) {
	conn := dbtest.Open(t)
	dsn := os.Getenv("TEST_DATABASE_URL")
	ctx := context.Background()

	sgn, err := signer.New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	log := eventlog.New(conn, sgn, big.NewInt(31337), 1)
	ledger := escrow.New(conn, log)
	tableSvc := table.New(conn, ledger, log)

	tbl, err := tableSvc.CreateTable(ctx, table.CreateTableInput{
		Name: "sse-backlog", MinimumBuyIn: big.NewInt(1), MaximumBuyIn: big.NewInt(1_000_000_000_000),
		SmallBlind: big.NewInt(1), BigBlind: big.NewInt(2), MaxSeatCount: 6, ActionTimeoutSeconds: 30, HandStartDelaySeconds: 5,
	}, wallet)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	var firstEventID int64
	if err := conn.QueryRowContext(ctx, `SELECT min(event_id) FROM events WHERE table_id = $1`, tbl.ID).Scan(&firstEventID); err != nil {
		t.Fatalf("query first event id: %v", err)
	}

	if _, err := ledger.Credit(ctx, wallet, big.NewInt(1_000_000_000), "0xabc", 1, time.Now().UTC()); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := tableSvc.JoinTable(ctx, wallet, table.JoinInput{TableID: tbl.ID, SeatNumber: 0, BuyInGwei: big.NewInt(500_000)}); err != nil {
		t.Fatalf("JoinTable: %v", err)
	}

	dist := distributor.New(dsn, log, zerolog.Nop())
	streamCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	rec := httptest.NewRecorder()
	_ = dist.StreamTable(streamCtx, rec, tbl.ID, firstEventID)

	if !strings.Contains(rec.Body.String(), "join_table") {
		t.Fatalf("expected the replayed backlog to contain the join_table event, got body: %s", rec.Body.String())
	}
}
