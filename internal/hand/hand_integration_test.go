//go:build integration

package hand_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/cloutcards/pokerhouse/internal/dbtest"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/hand"
	"github.com/cloutcards/pokerhouse/internal/signer"
	"github.com/cloutcards/pokerhouse/internal/table"
)

const testMnemonic = "test test test test test test test test test test test junk"
const walletA = "0x1111111111111111111111111111111111111111"
const walletB = "0x2222222222222222222222222222222222222222"

func seatTwoPlayers(t *testing.T, ctx context.Context, tableSvc *table.Service, ledger *escrow.Ledger, tableID int64) {
	t.Helper()
	for i, w := range []string{walletA, walletB} {
		if _, err := ledger.Credit(ctx, w, big.NewInt(10_000_000_000), w+"-deposit", int64(i+1), time.Now().UTC()); err != nil {
			t.Fatalf("Credit(%s): %v", w, err)
		}
		if _, err := tableSvc.JoinTable(ctx, w, table.JoinInput{TableID: tableID, SeatNumber: i, BuyInGwei: big.NewInt(1_000_000_000)}); err != nil {
			t.Fatalf("JoinTable(%s): %v", w, err)
		}
	}
}

func TestMaybeStartHandDealsToTwoFundedSeats(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()

	sgn, err := signer.New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	log := eventlog.New(conn, sgn, big.NewInt(31337), 1)
	ledger := escrow.New(conn, log)
	tableSvc := table.New(conn, ledger, log)
	handSvc := hand.New(conn, ledger, log, tableSvc, "0xhouse0000000000000000000000000000000000")

	tbl, err := tableSvc.CreateTable(ctx, table.CreateTableInput{
		Name: "heads-up", MinimumBuyIn: big.NewInt(1), MaximumBuyIn: big.NewInt(1_000_000_000_000),
		SmallBlind: big.NewInt(1_000_000), BigBlind: big.NewInt(2_000_000), MaxSeatCount: 2,
		ActionTimeoutSeconds: 30, HandStartDelaySeconds: 0,
	}, walletA)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	seatTwoPlayers(t, ctx, tableSvc, ledger, tbl.ID)

	h, err := handSvc.MaybeStartHand(ctx, tbl.ID)
	if err != nil {
		t.Fatalf("MaybeStartHand: %v", err)
	}
	if h == nil {
		t.Fatalf("expected a hand to start with two funded seats")
	}
	if h.Status != domain.HandPreFlop {
		t.Fatalf("got status %v want pre-flop", h.Status)
	}

	current, players, err := handSvc.CurrentHand(ctx, tbl.ID)
	if err != nil {
		t.Fatalf("CurrentHand: %v", err)
	}
	if current == nil {
		t.Fatalf("expected CurrentHand to return the hand just started")
	}
	if len(players) != 2 {
		t.Fatalf("got %d players want 2", len(players))
	}
}

func TestFoldEndsHandImmediately(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()

	sgn, err := signer.New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	log := eventlog.New(conn, sgn, big.NewInt(31337), 1)
	ledger := escrow.New(conn, log)
	tableSvc := table.New(conn, ledger, log)
	handSvc := hand.New(conn, ledger, log, tableSvc, "0xhouse0000000000000000000000000000000000")

	tbl, err := tableSvc.CreateTable(ctx, table.CreateTableInput{
		Name: "heads-up-fold", MinimumBuyIn: big.NewInt(1), MaximumBuyIn: big.NewInt(1_000_000_000_000),
		SmallBlind: big.NewInt(1_000_000), BigBlind: big.NewInt(2_000_000), MaxSeatCount: 2,
		ActionTimeoutSeconds: 30, HandStartDelaySeconds: 0,
	}, walletA)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	seatTwoPlayers(t, ctx, tableSvc, ledger, tbl.ID)

	h, err := handSvc.MaybeStartHand(ctx, tbl.ID)
	if err != nil || h == nil {
		t.Fatalf("MaybeStartHand: hand=%v err=%v", h, err)
	}

	toAct := walletA
	if h.CurrentActionSeat != nil && *h.CurrentActionSeat == 1 {
		toAct = walletB
	}
	if err := handSvc.Action(ctx, toAct, hand.ActionInput{HandID: h.ID, ActionType: domain.ActionFold}); err != nil {
		t.Fatalf("Action(fold): %v", err)
	}

	current, _, err := handSvc.CurrentHand(ctx, tbl.ID)
	if err != nil {
		t.Fatalf("CurrentHand: %v", err)
	}
	if current != nil {
		t.Fatalf("expected no hand in progress after a heads-up fold, got %+v", current)
	}
}
