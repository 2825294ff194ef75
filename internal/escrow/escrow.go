// Package escrow implements the per-wallet balance ledger (component B):
// deposits, internal debits/credits used by seating, and withdrawal
// reservation/settlement. Every mutation is atomic with its event.
package escrow

import (
	"context"
	"database/sql"
	"math/big"
	"strings"
	"time"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
)

type Ledger struct {
	db  *sql.DB
	log *eventlog.Log
}

func New(db *sql.DB, log *eventlog.Log) *Ledger {
	return &Ledger{db: db, log: log}
}

// Get returns wallet's balance; a wallet with no row gets a zero balance,
// not a NotFound, and no row is inserted for it.
func (l *Ledger) Get(ctx context.Context, wallet string) (*domain.EscrowBalance, error) {
	return l.get(ctx, l.db, strings.ToLower(wallet))
}

// GetWithPending is the same read, named separately because callers that
// only need §6's playerEscrowBalance "pending withdrawal view" call this
// one — the fields returned are identical; the name documents intent.
func (l *Ledger) GetWithPending(ctx context.Context, wallet string) (*domain.EscrowBalance, error) {
	return l.Get(ctx, wallet)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *Ledger) get(ctx context.Context, q querier, wallet string) (*domain.EscrowBalance, error) {
	row := q.QueryRowContext(ctx, `
		SELECT wallet, balance_gwei, next_withdrawal_nonce, withdrawal_signature_expiry
		FROM escrow_balances WHERE wallet = $1
	`, wallet)

	var (
		bal        string
		nonceStr   sql.NullString
		expiry     sql.NullTime
	)
	b := &domain.EscrowBalance{Wallet: wallet}
	err := row.Scan(&b.Wallet, &bal, &nonceStr, &expiry)
	if err == sql.ErrNoRows {
		b.BalanceGwei = big.NewInt(0)
		return b, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "load escrow balance", err)
	}
	n := new(big.Int)
	n.SetString(bal, 10)
	b.BalanceGwei = n
	if nonceStr.Valid {
		nn := new(big.Int)
		nn.SetString(nonceStr.String, 10)
		b.NextWithdrawalNonce = nn
	}
	if expiry.Valid {
		t := expiry.Time
		b.WithdrawalSignatureExpiry = &t
	}
	return b, nil
}

// getForUpdateTx locks the row (or a zero row if none exists yet) inside
// tx, inserting a zero balance first if necessary so the lock is real.
func (l *Ledger) getForUpdateTx(ctx context.Context, tx *sql.Tx, wallet string) (*domain.EscrowBalance, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_balances (wallet, balance_gwei) VALUES ($1, '0')
		ON CONFLICT (wallet) DO NOTHING
	`, wallet)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "ensure escrow row", err)
	}
	row := tx.QueryRowContext(ctx, `
		SELECT wallet, balance_gwei, next_withdrawal_nonce, withdrawal_signature_expiry
		FROM escrow_balances WHERE wallet = $1 FOR UPDATE
	`, wallet)
	var (
		bal      string
		nonceStr sql.NullString
		expiry   sql.NullTime
	)
	b := &domain.EscrowBalance{Wallet: wallet}
	if err := row.Scan(&b.Wallet, &bal, &nonceStr, &expiry); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "lock escrow balance", err)
	}
	n := new(big.Int)
	n.SetString(bal, 10)
	b.BalanceGwei = n
	if nonceStr.Valid {
		nn := new(big.Int)
		nn.SetString(nonceStr.String, 10)
		b.NextWithdrawalNonce = nn
	}
	if expiry.Valid {
		t := expiry.Time
		b.WithdrawalSignatureExpiry = &t
	}
	return b, nil
}

func (l *Ledger) setBalanceTx(ctx context.Context, tx *sql.Tx, wallet string, balance *big.Int) error {
	_, err := tx.ExecContext(ctx, `UPDATE escrow_balances SET balance_gwei = $2 WHERE wallet = $1`, wallet, balance.String())
	if err != nil {
		return apperr.Wrap(apperr.InternalFatal, "update escrow balance", err)
	}
	return nil
}

// depositIdempotent reports whether an event of kind already recorded
// txHash, whichever wallet it credited, using the teacher's "look up by natural key, no-op if found"
// idiom (grounded in staking.go's idempotent validator registration)
// rather than a unique-constraint-and-catch-error idiom.
func depositIdempotent(ctx context.Context, tx *sql.Tx, kind domain.EventKind, txHash string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM events WHERE kind = $1 AND payload_json LIKE '%' || $2 || '%')
	`, string(kind), txHash).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.InternalFatal, "idempotency check", err)
	}
	return exists, nil
}

// Credit applies an on-chain deposit, idempotent by txHash (§4.2, §4.3).
func (l *Ledger) Credit(ctx context.Context, wallet string, amountGwei *big.Int, txHash string, blockNumber int64, blockTs time.Time) (*domain.Event, error) {
	wallet = strings.ToLower(wallet)
	if amountGwei.Sign() <= 0 {
		return nil, apperr.Validationf("deposit amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "begin deposit tx", err)
	}
	defer tx.Rollback()

	already, err := depositIdempotent(ctx, tx, domain.KindDeposit, txHash)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, nil
	}

	bal, err := l.getForUpdateTx(ctx, tx, wallet)
	if err != nil {
		return nil, err
	}
	newBal := new(big.Int).Add(bal.BalanceGwei, amountGwei)
	if err := l.setBalanceTx(ctx, tx, wallet, newBal); err != nil {
		return nil, err
	}

	payload, err := eventlog.Canonicalize(eventlog.M{
		"walletAddress":   wallet,
		"amountGwei":      amountGwei,
		"txHash":          txHash,
		"blockNumber":     big.NewInt(blockNumber),
		"blockTimestamp":  blockTs,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.InvariantBreak, "canonicalize deposit payload", err)
	}
	ev, err := l.log.AppendInTransaction(ctx, tx, domain.KindDeposit, payload, &wallet, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "commit deposit", err)
	}
	return ev, nil
}

// DebitTx deducts amount from wallet inside the caller's transaction
// (used internally by table seating; it appends no event of its own — the
// caller's join_table/rebuy event carries the economic meaning).
func (l *Ledger) DebitTx(ctx context.Context, tx *sql.Tx, wallet string, amount *big.Int) error {
	wallet = strings.ToLower(wallet)
	bal, err := l.getForUpdateTx(ctx, tx, wallet)
	if err != nil {
		return err
	}
	if bal.BalanceGwei.Cmp(amount) < 0 {
		return apperr.Conflictf("insufficient escrow balance")
	}
	return l.setBalanceTx(ctx, tx, wallet, new(big.Int).Sub(bal.BalanceGwei, amount))
}

// CreditTx is the inverse of DebitTx, used by standUp and by settlement's
// rake credit to the house wallet.
func (l *Ledger) CreditTx(ctx context.Context, tx *sql.Tx, wallet string, amount *big.Int) error {
	wallet = strings.ToLower(wallet)
	bal, err := l.getForUpdateTx(ctx, tx, wallet)
	if err != nil {
		return err
	}
	return l.setBalanceTx(ctx, tx, wallet, new(big.Int).Add(bal.BalanceGwei, amount))
}

// HasPendingWithdrawalTx reports whether wallet currently has a pending
// withdrawal, re-reading the row inside tx (§5 "signWithdrawal re-reads").
func (l *Ledger) HasPendingWithdrawalTx(ctx context.Context, tx *sql.Tx, wallet string, now time.Time) (bool, error) {
	bal, err := l.getForUpdateTx(ctx, tx, strings.ToLower(wallet))
	if err != nil {
		return false, err
	}
	return bal.PendingWithdrawal(now), nil
}

// ReservePendingWithdrawalTx sets the nonce/expiry reservation. Callers
// must have already checked HasPendingWithdrawalTx in the same transaction.
func (l *Ledger) ReservePendingWithdrawalTx(ctx context.Context, tx *sql.Tx, wallet string, nonce *big.Int, expiry time.Time) error {
	wallet = strings.ToLower(wallet)
	_, err := tx.ExecContext(ctx, `
		UPDATE escrow_balances SET next_withdrawal_nonce = $2, withdrawal_signature_expiry = $3 WHERE wallet = $1
	`, wallet, nonce.String(), expiry)
	if err != nil {
		return apperr.Wrap(apperr.InternalFatal, "reserve withdrawal", err)
	}
	return nil
}

// ApplyWithdrawalExecuted applies a chain-confirmed withdrawal: clears the
// reservation and saturates the balance at zero (the chain is authoritative
// even if our bookkeeping drifted — §4.3 nonce invariant note).
func (l *Ledger) ApplyWithdrawalExecuted(ctx context.Context, wallet string, amountGwei *big.Int, nonce *big.Int, txHash string, blockNumber int64, blockTs time.Time, onNonceMismatch func(stored, event *big.Int)) (*domain.Event, error) {
	wallet = strings.ToLower(wallet)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "begin withdrawal-executed tx", err)
	}
	defer tx.Rollback()

	already, err := depositIdempotent(ctx, tx, domain.KindWithdrawalExecuted, txHash)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, nil
	}

	bal, err := l.getForUpdateTx(ctx, tx, wallet)
	if err != nil {
		return nil, err
	}
	if bal.NextWithdrawalNonce != nil && bal.NextWithdrawalNonce.Cmp(nonce) != 0 && onNonceMismatch != nil {
		onNonceMismatch(bal.NextWithdrawalNonce, nonce)
	}

	newBal := new(big.Int).Sub(bal.BalanceGwei, amountGwei)
	if newBal.Sign() < 0 {
		newBal = big.NewInt(0)
	}
	if err := l.setBalanceTx(ctx, tx, wallet, newBal); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE escrow_balances SET next_withdrawal_nonce = NULL, withdrawal_signature_expiry = NULL WHERE wallet = $1
	`, wallet); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "clear withdrawal reservation", err)
	}

	payload, err := eventlog.Canonicalize(eventlog.M{
		"walletAddress":  wallet,
		"amountGwei":     amountGwei,
		"nonce":          nonce,
		"txHash":         txHash,
		"blockNumber":    big.NewInt(blockNumber),
		"blockTimestamp": blockTs,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.InvariantBreak, "canonicalize withdrawal_executed payload", err)
	}
	ev, err := l.log.AppendInTransaction(ctx, tx, domain.KindWithdrawalExecuted, payload, &wallet, nonce, nil)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "commit withdrawal-executed", err)
	}
	return ev, nil
}

// AlreadyIngested reports whether an event of kind already recorded txHash,
// read outside any transaction. The chain bridge uses this for its
// reprocess dry-run path; Credit/ApplyWithdrawalExecuted re-check inside
// their own transaction before actually applying a change.
func (l *Ledger) AlreadyIngested(ctx context.Context, kind domain.EventKind, txHash string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM events WHERE kind = $1 AND payload_json LIKE '%' || $2 || '%')
	`, string(kind), txHash).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.InternalFatal, "idempotency check", err)
	}
	return exists, nil
}

// TotalBalance sums every wallet's balance_gwei, the escrow half of the
// solvency check (§4.9). balance_gwei is stored as arbitrary-precision text
// (§6 "large integers as decimal strings"), so the sum is done in Go rather
// than relying on a numeric SQL aggregate.
func (l *Ledger) TotalBalance(ctx context.Context) (*big.Int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT balance_gwei FROM escrow_balances`)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "list escrow balances", err)
	}
	defer rows.Close()
	total := big.NewInt(0)
	for rows.Next() {
		var bal string
		if err := rows.Scan(&bal); err != nil {
			return nil, apperr.Wrap(apperr.InternalFatal, "scan escrow balance", err)
		}
		n := new(big.Int)
		n.SetString(bal, 10)
		total.Add(total, n)
	}
	return total, rows.Err()
}

// DB exposes the underlying pool for callers (withdrawal signer) that need
// to compose escrow reads/writes with their own transaction.
func (l *Ledger) DB() *sql.DB { return l.db }

// BeginTx starts a new transaction on the ledger's pool, a thin pass-
// through used by components (table, hand, withdrawal) that need to start
// their own transaction before calling the Tx-suffixed methods above.
func (l *Ledger) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "begin tx", err)
	}
	return tx, nil
}

// GetTx reads a balance within an existing transaction without locking
// (non-mutating read, e.g. for validation before a lock is taken).
func (l *Ledger) GetTx(ctx context.Context, tx *sql.Tx, wallet string) (*domain.EscrowBalance, error) {
	return l.get(ctx, tx, strings.ToLower(wallet))
}

// LockTx exposes getForUpdateTx for other packages that must serialize on
// the escrow row (e.g. rebuy/standUp per §5).
func (l *Ledger) LockTx(ctx context.Context, tx *sql.Tx, wallet string) (*domain.EscrowBalance, error) {
	return l.getForUpdateTx(ctx, tx, strings.ToLower(wallet))
}
