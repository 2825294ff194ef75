// Package withdrawal implements the withdrawal signer (component D): it
// computes the escrow contract's withdrawal digest, reserves a pending
// withdrawal against the ledger, and signs the authorization the caller
// submits on-chain.
package withdrawal

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/signer"
	"github.com/cloutcards/pokerhouse/internal/walletaddr"
)

// gweiToWei matches the bridge's wei-per-gwei floor division constant
// (§6 "Event ingestion converts wei→gwei by floor-dividing by 10⁹"), run
// in reverse here since the contract digest is computed over wei.
var gweiToWei = big.NewInt(1_000_000_000)

// DigestComputer is the outbound pure call into the escrow contract
// (§6 "computeWithdrawDigest"). The chain bridge supplies the concrete
// implementation; this package only depends on the seam, matching the
// table/hand ActiveHandParticipant inversion elsewhere in this tree.
type DigestComputer interface {
	ComputeWithdrawDigest(ctx context.Context, from, to common.Address, amountWei *big.Int, expiry int64) (digest [32]byte, nonce *big.Int, err error)
}

type Service struct {
	escrow *escrow.Ledger
	log    *eventlog.Log
	signer *signer.Signer
	chain  DigestComputer
}

func New(ledger *escrow.Ledger, log *eventlog.Log, sgn *signer.Signer, chain DigestComputer) *Service {
	return &Service{escrow: ledger, log: log, signer: sgn, chain: chain}
}

// Result is the authorization a caller submits to the escrow contract's
// withdraw entrypoint.
type Result struct {
	Nonce  *big.Int
	Expiry time.Time
	Sig    signer.Signature
}

// SignWithdrawal implements §4.4: from must equal to, the amount must be
// covered by the caller's balance, and only one withdrawal may be pending
// per wallet at a time.
func (s *Service) SignWithdrawal(ctx context.Context, from, to string, amountGwei *big.Int, expirySeconds int64) (*Result, error) {
	from = walletaddr.Normalize(from)
	to = walletaddr.Normalize(to)
	if from != to {
		return nil, apperr.Validationf("withdrawal recipient must equal payer")
	}
	if !walletaddr.Valid(from) {
		return nil, apperr.Validationf("invalid wallet address")
	}
	if amountGwei.Sign() <= 0 {
		return nil, apperr.Validationf("withdrawal amount must be positive")
	}
	if expirySeconds <= 0 {
		return nil, apperr.Validationf("expiry must be positive")
	}

	amountWei := new(big.Int).Mul(amountGwei, gweiToWei)
	expiresAt := time.Now().UTC().Add(time.Duration(expirySeconds) * time.Second)
	fromAddr := common.HexToAddress(from)

	digest, nonce, err := s.chain.ComputeWithdrawDigest(ctx, fromAddr, fromAddr, amountWei, expiresAt.Unix())
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamTransient, "compute withdraw digest", err)
	}

	tx, err := s.escrow.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	pending, err := s.escrow.HasPendingWithdrawalTx(ctx, tx, from, now)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, apperr.Conflictf("wallet %s already has a pending withdrawal", from)
	}

	bal, err := s.escrow.GetTx(ctx, tx, from)
	if err != nil {
		return nil, err
	}
	if bal.BalanceGwei.Cmp(amountGwei) < 0 {
		return nil, apperr.Conflictf("withdrawal amount exceeds escrow balance")
	}

	if err := s.escrow.ReservePendingWithdrawalTx(ctx, tx, from, nonce, expiresAt); err != nil {
		return nil, err
	}

	payload, err := eventlog.Canonicalize(eventlog.M{
		"walletAddress": from,
		"toAddress":     to,
		"amountGwei":    amountGwei,
		"amountWei":     amountWei,
		"nonce":         nonce,
		"expiry":        expiresAt,
		"digest":        hexDigest(digest),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.InvariantBreak, "canonicalize withdrawal_request payload", err)
	}
	if _, err := s.log.AppendInTransaction(ctx, tx, domain.KindWithdrawalRequest, payload, &from, nonce, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "commit withdrawal_request", err)
	}

	sig, err := s.signer.SignDigest(digest)
	if err != nil {
		return nil, err
	}

	return &Result{Nonce: nonce, Expiry: expiresAt, Sig: sig}, nil
}

func hexDigest(d [32]byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(d)*2)
	out[0], out[1] = '0', 'x'
	for i, b := range d {
		out[2+i*2] = hextable[b>>4]
		out[3+i*2] = hextable[b&0x0f]
	}
	return string(out)
}
