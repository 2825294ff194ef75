//go:build integration

package views_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/cloutcards/pokerhouse/internal/dbtest"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/signer"
	"github.com/cloutcards/pokerhouse/internal/table"
	"github.com/cloutcards/pokerhouse/internal/views"
)

const testMnemonic = "test test test test test test test test test test test junk"
const wallet = "0x1111111111111111111111111111111111111111"

func TestSolvencyWithoutChainBridgeReportsNegativeHeldDifference(t *testing.T) {
	conn := dbtest.Open(t)
	sgn, err := signer.New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	log := eventlog.New(conn, sgn, big.NewInt(31337), 1)
	ledger := escrow.New(conn, log)
	tableSvc := table.New(conn, ledger, log)
	viewsSvc := views.New(conn, log, ledger, tableSvc, nil)

	ctx := context.Background()
	if _, err := ledger.Credit(ctx, wallet, big.NewInt(1_000_000), "0xaaa", 1, time.Now().UTC()); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	sol, err := viewsSvc.Solvency(ctx)
	if err != nil {
		t.Fatalf("Solvency: %v", err)
	}
	if sol.ChainBridgeEnabled {
		t.Fatalf("expected the chain bridge to be reported disabled when nil")
	}
	if sol.ContractBalanceGwei.Sign() != 0 {
		t.Fatalf("expected a zero contract balance when the chain bridge is disabled")
	}
	if sol.TotalEscrowGwei.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("got total escrow %v want 1000000", sol.TotalEscrowGwei)
	}
	want := new(big.Int).Neg(big.NewInt(1_000_000))
	if sol.DifferenceGwei.Cmp(want) != 0 {
		t.Fatalf("got difference %v want %v", sol.DifferenceGwei, want)
	}
}

func TestStatsCountsEscrowWallets(t *testing.T) {
	conn := dbtest.Open(t)
	sgn, err := signer.New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	log := eventlog.New(conn, sgn, big.NewInt(31337), 1)
	ledger := escrow.New(conn, log)
	tableSvc := table.New(conn, ledger, log)
	viewsSvc := views.New(conn, log, ledger, tableSvc, nil)

	ctx := context.Background()
	if _, err := ledger.Credit(ctx, wallet, big.NewInt(1), "0xbbb", 1, time.Now().UTC()); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	st, err := viewsSvc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalWallets != 1 {
		t.Fatalf("got %d wallets want 1", st.TotalWallets)
	}
}
