package withdrawal

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/escrow"
)

// fakeDigestComputer never gets called on the validation paths exercised
// here; it panics if it is, so a test that trips it is a test that
// validated the wrong thing.
type fakeDigestComputer struct{}

func (fakeDigestComputer) ComputeWithdrawDigest(ctx context.Context, from, to common.Address, amountWei *big.Int, expiry int64) ([32]byte, *big.Int, error) {
	panic("ComputeWithdrawDigest should not be called for a request rejected during validation")
}

func newTestService() *Service {
	return New(escrow.New(nil, nil), nil, nil, fakeDigestComputer{})
}

func TestSignWithdrawalRejectsMismatchedRecipient(t *testing.T) {
	s := newTestService()
	_, err := s.SignWithdrawal(context.Background(), "0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222", big.NewInt(1), 300)
	require.Error(t, err)
	require.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestSignWithdrawalRejectsInvalidAddress(t *testing.T) {
	s := newTestService()
	_, err := s.SignWithdrawal(context.Background(), "not-an-address", "not-an-address", big.NewInt(1), 300)
	require.Error(t, err)
	require.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestSignWithdrawalRejectsNonPositiveAmount(t *testing.T) {
	s := newTestService()
	_, err := s.SignWithdrawal(context.Background(), "0x1111111111111111111111111111111111111111", "0x1111111111111111111111111111111111111111", big.NewInt(0), 300)
	require.Error(t, err)
	require.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestSignWithdrawalRejectsNonPositiveExpiry(t *testing.T) {
	s := newTestService()
	_, err := s.SignWithdrawal(context.Background(), "0x1111111111111111111111111111111111111111", "0x1111111111111111111111111111111111111111", big.NewInt(1), 0)
	require.Error(t, err)
	require.Equal(t, apperr.Validation, apperr.KindOf(err))
}
