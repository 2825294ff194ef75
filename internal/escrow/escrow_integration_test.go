//go:build integration

package escrow_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloutcards/pokerhouse/internal/dbtest"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/signer"
)

const testMnemonic = "test test test test test test test test test test test junk"
const wallet = "0x1111111111111111111111111111111111111111"

func newLedger(t *testing.T) *escrow.Ledger {
	conn := dbtest.Open(t)
	sgn, err := signer.New(testMnemonic, 31337)
	require.NoError(t, err)
	log := eventlog.New(conn, sgn, big.NewInt(31337), 1)
	return escrow.New(conn, log)
}

func TestCreditAccumulatesBalance(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	_, err := l.Credit(ctx, wallet, big.NewInt(1_000_000), "0xaaa", 1, time.Now().UTC())
	require.NoError(t, err)
	_, err = l.Credit(ctx, wallet, big.NewInt(500_000), "0xbbb", 2, time.Now().UTC())
	require.NoError(t, err)

	bal, err := l.Get(ctx, wallet)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_500_000), bal.BalanceGwei)
}

func TestAlreadyIngestedDetectsRecordedTxHash(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	_, err := l.Credit(ctx, wallet, big.NewInt(1_000_000), "0xccc", 1, time.Now().UTC())
	require.NoError(t, err)

	ingested, err := l.AlreadyIngested(ctx, domain.KindDeposit, "0xccc")
	require.NoError(t, err)
	require.True(t, ingested)

	ingested, err = l.AlreadyIngested(ctx, domain.KindDeposit, "0xddd")
	require.NoError(t, err)
	require.False(t, ingested)
}

func TestTotalBalanceSumsAllWallets(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	_, err := l.Credit(ctx, wallet, big.NewInt(1_000_000), "0x111", 1, time.Now().UTC())
	require.NoError(t, err)
	_, err = l.Credit(ctx, "0x2222222222222222222222222222222222222222", big.NewInt(2_000_000), "0x222", 2, time.Now().UTC())
	require.NoError(t, err)

	total, err := l.TotalBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(3_000_000), total)
}
