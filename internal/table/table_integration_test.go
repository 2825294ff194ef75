//go:build integration

package table_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloutcards/pokerhouse/internal/dbtest"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/signer"
	"github.com/cloutcards/pokerhouse/internal/table"
)

const testMnemonic = "test test test test test test test test test test test junk"
const wallet = "0x1111111111111111111111111111111111111111"

func newServices(t *testing.T) (*table.Service, *escrow.Ledger) {
	conn := dbtest.Open(t)
	sgn, err := signer.New(testMnemonic, 31337)
	require.NoError(t, err)
	log := eventlog.New(conn, sgn, big.NewInt(31337), 1)
	ledger := escrow.New(conn, log)
	return table.New(conn, ledger, log), ledger
}

func TestCreateAndJoinTable(t *testing.T) {
	svc, ledger := newServices(t)
	ctx := context.Background()

	tbl, err := svc.CreateTable(ctx, table.CreateTableInput{
		Name:                  "heads-up",
		MinimumBuyIn:          big.NewInt(1_000_000_000),
		MaximumBuyIn:          big.NewInt(10_000_000_000),
		SmallBlind:            big.NewInt(1_000_000),
		BigBlind:              big.NewInt(2_000_000),
		PerHandRakeBps:        250,
		MaxSeatCount:          6,
		ActionTimeoutSeconds:  30,
		HandStartDelaySeconds: 5,
	}, wallet)
	require.NoError(t, err)
	require.True(t, tbl.IsActive)

	_, err = ledger.Credit(ctx, wallet, big.NewInt(5_000_000_000), "0xdeadbeef", 1, time.Now().UTC())
	require.NoError(t, err)

	sess, err := svc.JoinTable(ctx, wallet, table.JoinInput{
		TableID:    tbl.ID,
		SeatNumber: 0,
		BuyInGwei:  big.NewInt(2_000_000_000),
	})
	require.NoError(t, err)
	require.Equal(t, 0, sess.SeatNumber)
	require.Equal(t, big.NewInt(2_000_000_000), sess.TableBalanceGwei)

	bal, err := ledger.Get(ctx, wallet)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(3_000_000_000), bal.BalanceGwei)

	sessions, err := svc.ActiveSessions(ctx, tbl.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestTotalActiveBalanceSumsSeatedChips(t *testing.T) {
	svc, ledger := newServices(t)
	ctx := context.Background()

	tbl, err := svc.CreateTable(ctx, table.CreateTableInput{
		Name: "sum-test", MinimumBuyIn: big.NewInt(1), MaximumBuyIn: big.NewInt(1_000_000_000_000),
		SmallBlind: big.NewInt(1), BigBlind: big.NewInt(2), MaxSeatCount: 6, ActionTimeoutSeconds: 30, HandStartDelaySeconds: 5,
	}, wallet)
	require.NoError(t, err)

	_, err = ledger.Credit(ctx, wallet, big.NewInt(1_000_000), "0xabc", 1, time.Now().UTC())
	require.NoError(t, err)
	_, err = svc.JoinTable(ctx, wallet, table.JoinInput{TableID: tbl.ID, SeatNumber: 0, BuyInGwei: big.NewInt(500_000)})
	require.NoError(t, err)

	total, err := svc.TotalActiveBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500_000), total)
}
