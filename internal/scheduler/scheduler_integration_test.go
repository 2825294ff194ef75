//go:build integration

package scheduler_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloutcards/pokerhouse/internal/dbtest"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/hand"
	"github.com/cloutcards/pokerhouse/internal/scheduler"
	"github.com/cloutcards/pokerhouse/internal/signer"
	"github.com/cloutcards/pokerhouse/internal/table"
)

const testMnemonic = "test test test test test test test test test test test junk"
const walletA = "0x1111111111111111111111111111111111111111"
const walletB = "0x2222222222222222222222222222222222222222"

func TestSchedulerAutoFoldsAnExpiredActionWindow(t *testing.T) {
	conn := dbtest.Open(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sgn, err := signer.New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	log := eventlog.New(conn, sgn, big.NewInt(31337), 1)
	ledger := escrow.New(conn, log)
	tableSvc := table.New(conn, ledger, log)
	handSvc := hand.New(conn, ledger, log, tableSvc, "0xhouse0000000000000000000000000000000000")
	sched := scheduler.New(tableSvc, handSvc, zerolog.Nop())

	tbl, err := tableSvc.CreateTable(ctx, table.CreateTableInput{
		Name: "timeout-sweep", MinimumBuyIn: big.NewInt(1), MaximumBuyIn: big.NewInt(1_000_000_000_000),
		SmallBlind: big.NewInt(1_000_000), BigBlind: big.NewInt(2_000_000), MaxSeatCount: 2,
		ActionTimeoutSeconds: 30, HandStartDelaySeconds: 60,
	}, walletA)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i, w := range []string{walletA, walletB} {
		if _, err := ledger.Credit(ctx, w, big.NewInt(10_000_000_000), w+"-d", int64(i+1), time.Now().UTC()); err != nil {
			t.Fatalf("Credit: %v", err)
		}
		if _, err := tableSvc.JoinTable(ctx, w, table.JoinInput{TableID: tbl.ID, SeatNumber: i, BuyInGwei: big.NewInt(1_000_000_000)}); err != nil {
			t.Fatalf("JoinTable: %v", err)
		}
	}

	h, err := handSvc.MaybeStartHand(ctx, tbl.ID)
	if err != nil || h == nil {
		t.Fatalf("MaybeStartHand: hand=%v err=%v", h, err)
	}

	if _, err := conn.ExecContext(ctx, `UPDATE hands SET action_timeout_at = now() - interval '1 minute' WHERE id = $1`, h.ID); err != nil {
		t.Fatalf("force-expire action timeout: %v", err)
	}

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		current, _, err := handSvc.CurrentHand(ctx, tbl.ID)
		if err != nil {
			t.Fatalf("CurrentHand: %v", err)
		}
		if current == nil {
			break // heads-up auto-fold ended the hand
		}
		select {
		case <-deadline:
			t.Fatalf("scheduler did not auto-fold the expired seat in time")
		case <-time.After(100 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
