// Package views implements component J: the read-only, non-authoritative
// projections served alongside the mutating table/hand/withdrawal services
// — solvency, the verifiable event feed, and per-hand audit history.
package views

import (
	"context"
	"database/sql"
	"math/big"
	"time"

	"github.com/lib/pq"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/table"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	maxHandHistory   = 100
)

// ContractBalanceReader is the chain bridge's read seam; kept separate so
// this package never imports chainbridge directly. A nil Service.chain
// means the bridge is disabled (§6 "absent CLOUTCARDS_CONTRACT_ADDRESS
// disables the chain bridge"), and Solvency reports a zero contract
// balance in that case.
type ContractBalanceReader interface {
	ContractBalanceGwei(ctx context.Context) (*big.Int, error)
}

type Service struct {
	db     *sql.DB
	log    *eventlog.Log
	escrow *escrow.Ledger
	table  *table.Service
	chain  ContractBalanceReader
}

func New(db *sql.DB, log *eventlog.Log, ledger *escrow.Ledger, tableSvc *table.Service, chain ContractBalanceReader) *Service {
	return &Service{db: db, log: log, escrow: ledger, table: tableSvc, chain: chain}
}

// Solvency is the §4.9 accounting identity: the contract's on-chain
// balance must be at least what's held in escrow plus what's sitting on
// active tables. The difference is undistributed rake still on contract.
type Solvency struct {
	TotalEscrowGwei     *big.Int
	TotalTableGwei      *big.Int
	ContractBalanceGwei *big.Int
	DifferenceGwei      *big.Int
	ChainBridgeEnabled  bool
}

func (s *Service) Solvency(ctx context.Context) (*Solvency, error) {
	totalEscrow, err := s.escrow.TotalBalance(ctx)
	if err != nil {
		return nil, err
	}
	totalTable, err := s.table.TotalActiveBalance(ctx)
	if err != nil {
		return nil, err
	}

	contractBalance := big.NewInt(0)
	enabled := s.chain != nil
	if enabled {
		contractBalance, err = s.chain.ContractBalanceGwei(ctx)
		if err != nil {
			return nil, err
		}
	}

	held := new(big.Int).Add(totalEscrow, totalTable)
	diff := new(big.Int).Sub(contractBalance, held)
	return &Solvency{
		TotalEscrowGwei:     totalEscrow,
		TotalTableGwei:      totalTable,
		ContractBalanceGwei: contractBalance,
		DifferenceGwei:      diff,
		ChainBridgeEnabled:  enabled,
	}, nil
}

// VerifiedEvent pairs a logged event with a fresh signature check against
// the trusted key, done per row rather than trusted from storage.
type VerifiedEvent struct {
	Event    *domain.Event
	Verified bool
}

// VerifyEvents returns page (1-indexed) of limit events newest-first, each
// with its signature re-verified (`/api/verify/events`).
func (s *Service) VerifyEvents(ctx context.Context, page, limit int) ([]VerifiedEvent, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	offset := (page - 1) * limit

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id FROM events ORDER BY event_id DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "list event ids", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Wrap(apperr.InternalFatal, "scan event id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, apperr.Wrap(apperr.InternalFatal, "iterate event ids", err)
	}
	rows.Close()

	out := make([]VerifiedEvent, 0, len(ids))
	for _, id := range ids {
		ev, err := s.log.ByID(ctx, id)
		if err != nil {
			return nil, err
		}
		ok, err := s.log.Verify(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, VerifiedEvent{Event: ev, Verified: ok})
	}
	return out, nil
}

// TailEvents is the unverified admin event tail (`/events?limit`).
func (s *Service) TailEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	return s.log.Tail(ctx, limit)
}

// Stats is the `/api/verify/stats` aggregate snapshot: coarse counters a
// dashboard polls rather than walking the full event log.
type Stats struct {
	TotalEvents     int64
	TotalHands      int64
	CompletedHands  int64
	ActiveTables    int64
	TotalWallets    int64
	TotalVolumeGwei *big.Int
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{TotalVolumeGwei: big.NewInt(0)}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM events`).Scan(&st.TotalEvents); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "count events", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM hands`).Scan(&st.TotalHands); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "count hands", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM hands WHERE status = 'COMPLETED'`).Scan(&st.CompletedHands); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "count completed hands", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM poker_tables WHERE is_active`).Scan(&st.ActiveTables); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "count active tables", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM escrow_balances`).Scan(&st.TotalWallets); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "count wallets", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT amount FROM pots`)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "sum pot volume", err)
	}
	defer rows.Close()
	for rows.Next() {
		var amount int64
		if err := rows.Scan(&amount); err != nil {
			return nil, apperr.Wrap(apperr.InternalFatal, "scan pot amount", err)
		}
		st.TotalVolumeGwei.Add(st.TotalVolumeGwei, big.NewInt(amount))
	}
	return st, rows.Err()
}

// ActivityBucket is one hour in the `/api/verify/activity` time series.
type ActivityBucket struct {
	HourStart time.Time
	HandCount int64
}

// Activity returns hourly hand-start counts over the last 24 hours,
// oldest first.
func (s *Service) Activity(ctx context.Context) ([]ActivityBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('hour', started_at) AS hour, count(*)
		FROM hands
		WHERE started_at >= now() - interval '24 hours'
		GROUP BY hour
		ORDER BY hour ASC
	`)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "query hand activity", err)
	}
	defer rows.Close()
	var out []ActivityBucket
	for rows.Next() {
		var b ActivityBucket
		if err := rows.Scan(&b.HourStart, &b.HandCount); err != nil {
			return nil, apperr.Wrap(apperr.InternalFatal, "scan activity bucket", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// HandPlayerSummary is one seat's standing in a hand, for history display.
// HoleCards is nil unless the hand has completed — the same commit-reveal
// gate the schema already applies to shuffle_seed/deck_nonce.
type HandPlayerSummary struct {
	SeatNumber     int
	WalletAddress  string
	Status         string
	TotalCommitted int64
	HoleCards      []int32
}

type PotSummary struct {
	PotNumber      int
	AmountGwei     int64
	RakeAmountGwei int64
	EligibleSeats  []int64
	WinnerSeats    []int64
}

// HandSummary is one row of `/api/tables/:id/handHistory`. ShuffleSeed and
// DeckNonce are nil until the hand is COMPLETED.
type HandSummary struct {
	ID              int64
	TableID         int64
	Status          string
	DealerPosition  int
	CommunityCards  []int32
	ShuffleSeedHash []byte
	ShuffleSeed     *string
	DeckNonce       *string
	StartedAt       time.Time
	CompletedAt     *time.Time
	Players         []HandPlayerSummary
	Pots            []PotSummary
}

// HandHistory returns the most recent completed hands for a table,
// newest first.
func (s *Service) HandHistory(ctx context.Context, tableID int64, limit int) ([]HandSummary, error) {
	if limit <= 0 || limit > maxHandHistory {
		limit = maxHandHistory
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_id, status, dealer_position, community_cards,
		       shuffle_seed_hash, shuffle_seed, deck_nonce, started_at, completed_at
		FROM hands
		WHERE table_id = $1 AND status = 'COMPLETED'
		ORDER BY id DESC
		LIMIT $2
	`, tableID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "list hand history", err)
	}
	var out []HandSummary
	for rows.Next() {
		var h HandSummary
		var cards []int32
		if err := rows.Scan(&h.ID, &h.TableID, &h.Status, &h.DealerPosition, pq.Array(&cards),
			&h.ShuffleSeedHash, &h.ShuffleSeed, &h.DeckNonce, &h.StartedAt, &h.CompletedAt); err != nil {
			rows.Close()
			return nil, apperr.Wrap(apperr.InternalFatal, "scan hand history row", err)
		}
		h.CommunityCards = cards
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, apperr.Wrap(apperr.InternalFatal, "iterate hand history", err)
	}
	rows.Close()

	for i := range out {
		if err := s.fillHandDetail(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// HandDetail is one hand plus its full player and pot breakdown, for
// `/api/hands/:id/events`'s companion header.
func (s *Service) HandDetail(ctx context.Context, handID int64) (*HandSummary, error) {
	var h HandSummary
	var cards []int32
	err := s.db.QueryRowContext(ctx, `
		SELECT id, table_id, status, dealer_position, community_cards,
		       shuffle_seed_hash, shuffle_seed, deck_nonce, started_at, completed_at
		FROM hands WHERE id = $1
	`, handID).Scan(&h.ID, &h.TableID, &h.Status, &h.DealerPosition, pq.Array(&cards),
		&h.ShuffleSeedHash, &h.ShuffleSeed, &h.DeckNonce, &h.StartedAt, &h.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("hand %d not found", handID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "lookup hand", err)
	}
	h.CommunityCards = cards
	if err := s.fillHandDetail(ctx, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *Service) fillHandDetail(ctx context.Context, h *HandSummary) error {
	complete := h.Status == "COMPLETED"

	prows, err := s.db.QueryContext(ctx, `
		SELECT seat_number, wallet_address, status, total_committed, hole_card0, hole_card1
		FROM hand_players WHERE hand_id = $1 ORDER BY seat_number ASC
	`, h.ID)
	if err != nil {
		return apperr.Wrap(apperr.InternalFatal, "list hand players", err)
	}
	for prows.Next() {
		var p HandPlayerSummary
		var c0, c1 int32
		if err := prows.Scan(&p.SeatNumber, &p.WalletAddress, &p.Status, &p.TotalCommitted, &c0, &c1); err != nil {
			prows.Close()
			return apperr.Wrap(apperr.InternalFatal, "scan hand player", err)
		}
		if complete {
			p.HoleCards = []int32{c0, c1}
		}
		h.Players = append(h.Players, p)
	}
	if err := prows.Err(); err != nil {
		prows.Close()
		return apperr.Wrap(apperr.InternalFatal, "iterate hand players", err)
	}
	prows.Close()

	potRows, err := s.db.QueryContext(ctx, `
		SELECT pot_number, amount, rake_amount, eligible_seat_numbers, winner_seat_numbers
		FROM pots WHERE hand_id = $1 ORDER BY pot_number ASC
	`, h.ID)
	if err != nil {
		return apperr.Wrap(apperr.InternalFatal, "list pots", err)
	}
	defer potRows.Close()
	for potRows.Next() {
		var pt PotSummary
		var eligible, winners []int64
		if err := potRows.Scan(&pt.PotNumber, &pt.AmountGwei, &pt.RakeAmountGwei, pq.Array(&eligible), pq.Array(&winners)); err != nil {
			return apperr.Wrap(apperr.InternalFatal, "scan pot", err)
		}
		pt.EligibleSeats = eligible
		pt.WinnerSeats = winners
		h.Pots = append(h.Pots, pt)
	}
	return potRows.Err()
}

// HandEvents is the per-hand audit trail (`/api/hands/:id/events`): every
// signed event recorded under this hand's table, filtered to its id.
func (s *Service) HandEvents(ctx context.Context, handID int64, limit int) ([]*domain.Event, error) {
	var tableID int64
	err := s.db.QueryRowContext(ctx, `SELECT table_id FROM hands WHERE id = $1`, handID).Scan(&tableID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("hand %d not found", handID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "lookup hand table", err)
	}
	if limit <= 0 || limit > maxPageLimit*2 {
		limit = maxPageLimit * 2
	}
	return s.log.ByHand(ctx, tableID, handID, limit)
}
