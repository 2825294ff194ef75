// Package hand implements the hand state machine (component F): shuffle
// commit/reveal, blind posting, the betting rounds, side-pot construction,
// and showdown settlement. Grounded on apps/chain/internal/app/poker.go's
// in-memory state.Table/state.Hand mutators from the teacher — adapted from
// fixed 9-seat arrays to a table's configured seat count, and from an
// in-process ABCI app to one hand-row-per-transaction persistence.
package hand

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/lib/pq"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/table"
)

type Service struct {
	db          *sql.DB
	escrow      *escrow.Ledger
	log         *eventlog.Log
	table       *table.Service
	houseWallet string
}

func New(db *sql.DB, escrowLedger *escrow.Ledger, log *eventlog.Log, tableSvc *table.Service, houseWallet string) *Service {
	return &Service{db: db, escrow: escrowLedger, log: log, table: tableSvc, houseWallet: houseWallet}
}

// state is the in-memory working copy of a hand and its seated players,
// loaded FOR UPDATE at the top of every mutating operation and written back
// in full before commit — the same load/mutate/persist shape the teacher
// used for its in-process table, translated to a SQL transaction boundary.
type state struct {
	table      *domain.PokerTable
	hand       *domain.Hand
	bySeat     map[int]*domain.HandPlayer
	maxSeat    int
	bigBlind   uint64
	sessionBySeat map[int]*domain.TableSeatSession
}

// nextOccupiedSeatWithStack walks clockwise over seated (not hand-player)
// sessions, used before a hand's HandPlayer rows exist yet (button rotation,
// blind-seat assignment).
func nextOccupiedSeatWithStack(sessionBySeat map[int]*domain.TableSeatSession, maxSeat, from int) int {
	for step := 1; step <= maxSeat; step++ {
		i := (from + step) % maxSeat
		sess, ok := sessionBySeat[i]
		if ok && sess.TableBalanceGwei.Sign() > 0 {
			return i
		}
	}
	return from
}

func needsToAct(hand *domain.Hand, p *domain.HandPlayer) bool {
	if p.Status != domain.PlayerActive {
		return false
	}
	return p.ActedInInterval != hand.IntervalID || p.StreetCommitted != hand.CurrentBet
}

func (s *state) nextActiveToAct(from int) int {
	for step := 1; step <= s.maxSeat; step++ {
		i := (from + step) % s.maxSeat
		p, ok := s.bySeat[i]
		if !ok {
			continue
		}
		if needsToAct(s.hand, p) {
			return i
		}
	}
	return -1
}

func toCall(hand *domain.Hand, p *domain.HandPlayer) uint64 {
	if hand.CurrentBet <= p.StreetCommitted {
		return 0
	}
	return hand.CurrentBet - p.StreetCommitted
}

func (s *state) countNotFolded() int {
	n := 0
	for _, p := range s.bySeat {
		if p.Status != domain.PlayerFolded {
			n++
		}
	}
	return n
}

func (s *state) countWithChips() int {
	n := 0
	for seat, p := range s.bySeat {
		if p.Status == domain.PlayerFolded {
			continue
		}
		if sess := s.sessionBySeat[seat]; sess != nil && sess.TableBalanceGwei.Sign() > 0 {
			n++
		}
	}
	return n
}

func gweiBig(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

func int32Slice(ids []uint8) []int32 {
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out
}

func uint8Slice(ids []int32) []uint8 {
	out := make([]uint8, len(ids))
	for i, id := range ids {
		out[i] = uint8(id)
	}
	return out
}

// loadActiveHandTx locks and returns tableID's non-completed hand plus its
// players, or nil if no hand is in progress.
func (s *Service) loadActiveHandTx(ctx context.Context, tx *sql.Tx, tableID int64) (*state, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, table_id, status, round, dealer_position, small_blind_seat, big_blind_seat, current_action_seat,
		       current_bet, min_raise_size, interval_id, deck, deck_position, community_cards,
		       shuffle_seed_hash, shuffle_seed, deck_nonce, action_timeout_at, started_at, completed_at
		FROM hands WHERE table_id = $1 AND status <> 'COMPLETED' ORDER BY id DESC LIMIT 1 FOR UPDATE
	`, tableID)
	h, err := scanHand(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "load active hand", err)
	}
	return s.hydrate(ctx, tx, h)
}

func (s *Service) loadHandByIDTx(ctx context.Context, tx *sql.Tx, handID int64) (*state, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, table_id, status, round, dealer_position, small_blind_seat, big_blind_seat, current_action_seat,
		       current_bet, min_raise_size, interval_id, deck, deck_position, community_cards,
		       shuffle_seed_hash, shuffle_seed, deck_nonce, action_timeout_at, started_at, completed_at
		FROM hands WHERE id = $1 FOR UPDATE
	`, handID)
	h, err := scanHand(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("hand %d not found", handID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "load hand", err)
	}
	return s.hydrate(ctx, tx, h)
}

func (s *Service) hydrate(ctx context.Context, tx *sql.Tx, h *domain.Hand) (*state, error) {
	t, err := s.table.LockTableTx(ctx, tx, h.TableID)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT hand_id, seat_number, wallet_address, status, street_committed, total_committed, acted_in_interval, hole_card0, hole_card1
		FROM hand_players WHERE hand_id = $1
	`, h.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "load hand players", err)
	}
	defer rows.Close()

	bySeat := map[int]*domain.HandPlayer{}
	for rows.Next() {
		p := &domain.HandPlayer{}
		var status string
		if err := rows.Scan(&p.HandID, &p.SeatNumber, &p.WalletAddress, &status, &p.StreetCommitted, &p.TotalCommitted, &p.ActedInInterval, &p.HoleCards[0], &p.HoleCards[1]); err != nil {
			return nil, apperr.Wrap(apperr.InternalFatal, "scan hand player", err)
		}
		p.Status = domain.PlayerStatus(status)
		bySeat[p.SeatNumber] = p
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "iterate hand players", err)
	}

	sessions, err := s.table.ActiveSessionsTx(ctx, tx, h.TableID)
	if err != nil {
		return nil, err
	}
	sessionBySeat := map[int]*domain.TableSeatSession{}
	for _, sess := range sessions {
		sessionBySeat[sess.SeatNumber] = sess
	}

	return &state{table: t, hand: h, bySeat: bySeat, maxSeat: t.MaxSeatCount, bigBlind: t.BigBlind.Uint64(), sessionBySeat: sessionBySeat}, nil
}

func scanHand(row *sql.Row) (*domain.Hand, error) {
	h := &domain.Hand{}
	var round sql.NullString
	var currentActionSeat sql.NullInt64
	var deckIDs, communityIDs pq.Int32Array
	var shuffleSeedHash []byte
	var shuffleSeed, deckNonce sql.NullString
	var actionTimeoutAt, completedAt sql.NullTime
	if err := row.Scan(&h.ID, &h.TableID, &h.Status, &round, &h.DealerPosition, &h.SmallBlindSeat, &h.BigBlindSeat,
		&currentActionSeat, &h.CurrentBet, &h.MinRaiseSize, &h.IntervalID, &deckIDs, &h.DeckPosition, &communityIDs,
		&shuffleSeedHash, &shuffleSeed, &deckNonce, &actionTimeoutAt, &h.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	if round.Valid {
		r := domain.Round(round.String)
		h.Round = &r
	}
	if currentActionSeat.Valid {
		v := int(currentActionSeat.Int64)
		h.CurrentActionSeat = &v
	}
	h.Deck = uint8Slice(deckIDs)
	h.CommunityCards = uint8Slice(communityIDs)
	copy(h.ShuffleSeedHash[:], shuffleSeedHash)
	if shuffleSeed.Valid {
		v := shuffleSeed.String
		h.ShuffleSeed = &v
	}
	if deckNonce.Valid {
		v := deckNonce.String
		h.DeckNonce = &v
	}
	if actionTimeoutAt.Valid {
		v := actionTimeoutAt.Time
		h.ActionTimeoutAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		h.CompletedAt = &v
	}
	return h, nil
}

// persistTx writes every mutable column of the hand row and upserts each
// seated player's row. Called at the end of every operation that mutated
// s, after that operation's event append and in the same transaction
// (finishHand calls it too, so an action that ends the hand writes twice).
func (s *Service) persistTx(ctx context.Context, tx *sql.Tx, st *state) error {
	h := st.hand
	var round *string
	if h.Round != nil {
		v := string(*h.Round)
		round = &v
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE hands SET status = $2, round = $3, current_action_seat = $4, current_bet = $5, min_raise_size = $6,
		       interval_id = $7, deck_position = $8, community_cards = $9, shuffle_seed = $10, deck_nonce = $11,
		       action_timeout_at = $12, completed_at = $13
		WHERE id = $1
	`, h.ID, string(h.Status), round, h.CurrentActionSeat, h.CurrentBet, h.MinRaiseSize, h.IntervalID, h.DeckPosition,
		pq.Array(int32Slice(h.CommunityCards)), h.ShuffleSeed, h.DeckNonce, h.ActionTimeoutAt, h.CompletedAt)
	if err != nil {
		return apperr.Wrap(apperr.InternalFatal, "persist hand", err)
	}

	for _, p := range st.bySeat {
		if _, err := tx.ExecContext(ctx, `
			UPDATE hand_players SET status = $3, street_committed = $4, total_committed = $5, acted_in_interval = $6
			WHERE hand_id = $1 AND seat_number = $2
		`, p.HandID, p.SeatNumber, string(p.Status), p.StreetCommitted, p.TotalCommitted, p.ActedInInterval); err != nil {
			return apperr.Wrap(apperr.InternalFatal, "persist hand player", err)
		}
	}
	return nil
}

// recordActionTx appends one row to the per-hand audit trail (§3
// HandAction). amount is nil for FOLD/CHECK; BET is stored as RAISE per
// the HandAction.action enum, matching the teacher's DB-vs-event-kind
// split in §4.6.2 ("record RAISE-in-DB with eventActionType=BET").
func (s *Service) recordActionTx(ctx context.Context, tx *sql.Tx, handID int64, seat int, round domain.Round, action domain.ActionType, amount *uint64) error {
	stored := action
	if stored == domain.ActionBet {
		stored = domain.ActionRaise
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO hand_actions (hand_id, seat_number, round, action, amount, ts)
		VALUES ($1, $2, $3, $4, $5, now())
	`, handID, seat, string(round), string(stored), amount)
	if err != nil {
		return apperr.Wrap(apperr.InternalFatal, "record hand action", err)
	}
	return nil
}

func randomHex(n int) (string, []byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", nil, apperr.Wrap(apperr.InternalFatal, "read random bytes", err)
	}
	return fmt.Sprintf("%x", b), b, nil
}

// IsWalletInLiveHand implements table.ActiveHandParticipant.
func (s *Service) IsWalletInLiveHand(ctx context.Context, tx *sql.Tx, tableID int64, wallet string) (bool, error) {
	var status sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT hp.status FROM hand_players hp
		JOIN hands h ON h.id = hp.hand_id
		WHERE h.table_id = $1 AND h.status <> 'COMPLETED' AND hp.wallet_address = $2
	`, tableID, wallet).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.InternalFatal, "check wallet live hand", err)
	}
	return status.String == string(domain.PlayerActive) || status.String == string(domain.PlayerAllIn), nil
}
