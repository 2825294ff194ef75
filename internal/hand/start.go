package hand

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/cards"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
)

// MaybeStartHand is the opportunistic entry point called after join/rebuy/
// standUp/settle commits (§4.5, §4.6.7): it starts a new hand at tableID if
// none is running and at least two funded seats are occupied, after the
// table's configured hand-start delay has elapsed. It is a no-op, not an
// error, when conditions aren't met.
func (s *Service) MaybeStartHand(ctx context.Context, tableID int64) (*domain.Hand, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "begin maybe-start tx", err)
	}
	defer tx.Rollback()

	existing, err := s.loadActiveHandTx(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	t, err := s.table.LockTableTx(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, nil
	}
	sessions, err := s.table.ActiveSessionsTx(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	funded := 0
	for _, sess := range sessions {
		if sess.TableBalanceGwei.Cmp(t.BigBlind) >= 0 {
			funded++
		}
	}
	if funded < 2 {
		return nil, nil
	}

	lastDealer, lastCompletedAt, err := s.lastHandInfoTx(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	if lastCompletedAt != nil {
		delay := time.Duration(t.HandStartDelaySeconds) * time.Second
		if time.Since(*lastCompletedAt) < delay {
			return nil, nil
		}
	}

	h, err := s.startHandTx(ctx, tx, t, sessions, lastDealer)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "commit start hand", err)
	}
	return h, nil
}

func (s *Service) lastHandInfoTx(ctx context.Context, tx *sql.Tx, tableID int64) (*int, *time.Time, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT dealer_position, completed_at FROM hands WHERE table_id = $1 AND status = 'COMPLETED' ORDER BY id DESC LIMIT 1
	`, tableID)
	var dealer int
	var completedAt sql.NullTime
	err := row.Scan(&dealer, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.InternalFatal, "load last hand info", err)
	}
	var ts *time.Time
	if completedAt.Valid {
		v := completedAt.Time
		ts = &v
	}
	return &dealer, ts, nil
}

func (s *Service) startHandTx(ctx context.Context, tx *sql.Tx, t *domain.PokerTable, sessions []*domain.TableSeatSession, lastDealer *int) (*domain.Hand, error) {
	sessionBySeat := map[int]*domain.TableSeatSession{}
	for _, sess := range sessions {
		if sess.TableBalanceGwei.Cmp(t.BigBlind) >= 0 {
			sessionBySeat[sess.SeatNumber] = sess
		}
	}
	if len(sessionBySeat) < 2 {
		return nil, apperr.Invariantf("startHand requires at least two seats funded to the big blind")
	}

	dealer := 0
	if lastDealer != nil {
		dealer = nextOccupiedSeatWithStack(sessionBySeat, t.MaxSeatCount, *lastDealer)
	} else {
		seats := make([]int, 0, len(sessionBySeat))
		for seat := range sessionBySeat {
			seats = append(seats, seat)
		}
		dealer = minInt(seats)
	}

	sbSeat, bbSeat := blindSeats(sessionBySeat, t.MaxSeatCount, dealer)

	seed, seedBytes, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	nonceHex, nonceBytes, err := randomHex(8)
	if err != nil {
		return nil, err
	}
	deck := cards.ShuffledDeck(seedBytes, nonceBytes)
	commitment := cards.CommitmentHash(deck)

	now := time.Now().UTC()
	h := &domain.Hand{
		TableID:         t.ID,
		Status:          domain.HandPreFlop,
		DealerPosition:  dealer,
		SmallBlindSeat:  sbSeat,
		BigBlindSeat:    bbSeat,
		MinRaiseSize:    t.BigBlind.Uint64() - t.SmallBlind.Uint64(),
		Deck:            cards.ToIDs(deck),
		ShuffleSeedHash: commitment,
		StartedAt:       now,
	}
	r := domain.RoundPreFlop
	h.Round = &r

	row := tx.QueryRowContext(ctx, `
		INSERT INTO hands (table_id, status, round, dealer_position, small_blind_seat, big_blind_seat, current_bet,
		                    min_raise_size, interval_id, deck, deck_position, community_cards, shuffle_seed_hash,
		                    shuffle_seed_plain, deck_nonce_plain, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,0,$8,0,'{}',$9,$10,$11,$12) RETURNING id
	`, h.TableID, string(h.Status), string(*h.Round), h.DealerPosition, h.SmallBlindSeat, h.BigBlindSeat,
		h.MinRaiseSize, pq.Array(int32Slice(h.Deck)), commitment[:], seed, nonceHex, h.StartedAt)
	if err := row.Scan(&h.ID); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "insert hand", err)
	}

	st := &state{table: t, hand: h, bySeat: map[int]*domain.HandPlayer{}, maxSeat: t.MaxSeatCount, bigBlind: t.BigBlind.Uint64(), sessionBySeat: sessionBySeat}

	// Deal-in order starts at the small blind (or the button heads-up).
	order := []int{}
	cur := sbSeat
	for {
		if _, ok := sessionBySeat[cur]; ok {
			order = append(order, cur)
		}
		cur = (cur + 1) % t.MaxSeatCount
		if cur == sbSeat {
			break
		}
	}
	if len(order) == 0 {
		order = []int{sbSeat}
	}

	deckPos := 0
	for _, seat := range order {
		p := &domain.HandPlayer{HandID: h.ID, SeatNumber: seat, WalletAddress: sessionBySeat[seat].WalletAddress, Status: domain.PlayerActive, ActedInInterval: -1}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO hand_players (hand_id, seat_number, wallet_address, status, street_committed, total_committed, acted_in_interval, hole_card0, hole_card1)
			VALUES ($1,$2,$3,$4,0,0,-1,0,0)
		`, p.HandID, p.SeatNumber, p.WalletAddress, string(p.Status)); err != nil {
			return nil, apperr.Wrap(apperr.InternalFatal, "insert hand player", err)
		}
		st.bySeat[seat] = p
	}
	for c := 0; c < 2; c++ {
		for _, seat := range order {
			p := st.bySeat[seat]
			p.HoleCards[c] = h.Deck[deckPos]
			deckPos++
		}
	}
	h.DeckPosition = deckPos

	if err := postBlind(st, sbSeat, t.SmallBlind.Uint64()); err != nil {
		return nil, err
	}
	if err := postBlind(st, bbSeat, t.BigBlind.Uint64()); err != nil {
		return nil, err
	}
	sbPosted := st.bySeat[sbSeat].StreetCommitted
	bbPosted := st.bySeat[bbSeat].StreetCommitted
	if err := s.recordActionTx(ctx, tx, h.ID, sbSeat, domain.RoundPreFlop, domain.ActionPostBlind, &sbPosted); err != nil {
		return nil, err
	}
	if err := s.recordActionTx(ctx, tx, h.ID, bbSeat, domain.RoundPreFlop, domain.ActionPostBlind, &bbPosted); err != nil {
		return nil, err
	}
	h.CurrentBet = st.bySeat[bbSeat].StreetCommitted
	h.IntervalID = 1

	// Heads-up this wraps straight back to the dealer/SB, satisfying "first
	// to act pre-flop is the dealer/SB" without a special case.
	nextSeat := st.nextActiveToAct(bbSeat)
	h.CurrentActionSeat = &nextSeat
	timeout := now.Add(time.Duration(t.ActionTimeoutSeconds) * time.Second)
	h.ActionTimeoutAt = &timeout

	for _, p := range st.bySeat {
		if _, err := tx.ExecContext(ctx, `
			UPDATE hand_players SET hole_card0 = $3, hole_card1 = $4, street_committed = $5, total_committed = $6, acted_in_interval = $7
			WHERE hand_id = $1 AND seat_number = $2
		`, p.HandID, p.SeatNumber, p.HoleCards[0], p.HoleCards[1], p.StreetCommitted, p.TotalCommitted, p.ActedInInterval); err != nil {
			return nil, apperr.Wrap(apperr.InternalFatal, "update dealt hand player", err)
		}
		if err := s.table.DebitSessionTx(ctx, tx, sessionBySeat[p.SeatNumber].ID, gweiBig(p.TotalCommitted)); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE hands SET current_bet = $2, interval_id = $3, deck_position = $4, current_action_seat = $5, action_timeout_at = $6
		WHERE id = $1
	`, h.ID, h.CurrentBet, h.IntervalID, h.DeckPosition, h.CurrentActionSeat, h.ActionTimeoutAt); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "update hand dealt state", err)
	}

	seatPayload := make([]eventlog.M, 0, len(order))
	for _, seat := range order {
		p := st.bySeat[seat]
		seatPayload = append(seatPayload, eventlog.M{
			"seatNumber": seat,
			"player":     p.WalletAddress,
		})
	}
	payload, _ := eventlog.Canonicalize(eventlog.M{
		"kind": "hand_start",
		"hand": eventlog.M{
			"id":                h.ID,
			"tableId":           t.ID,
			"dealerSeat":        dealer,
			"smallBlindSeat":    sbSeat,
			"bigBlindSeat":      bbSeat,
			"shuffleSeedHash":   cards.HexCommitment(commitment),
			"seats":             seatPayload,
		},
	})
	if _, err := s.log.AppendInTransaction(ctx, tx, domain.KindHandStart, payload, nil, nil, &t.ID); err != nil {
		return nil, err
	}

	return h, nil
}

func minInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// blindSeats mirrors the teacher's blindSeats: heads-up the button posts
// small blind, otherwise small/big blind sit left of the button.
func blindSeats(sessionBySeat map[int]*domain.TableSeatSession, maxSeat, dealer int) (sb int, bb int) {
	if len(sessionBySeat) == 2 {
		sb = dealer
		bb = nextOccupiedSeatWithStack(sessionBySeat, maxSeat, sb)
		return sb, bb
	}
	sb = nextOccupiedSeatWithStack(sessionBySeat, maxSeat, dealer)
	bb = nextOccupiedSeatWithStack(sessionBySeat, maxSeat, sb)
	return sb, bb
}

func postBlind(st *state, seat int, amount uint64) error {
	p, ok := st.bySeat[seat]
	if !ok {
		return apperr.Invariantf("blind seat %d has no dealt player", seat)
	}
	sess := st.sessionBySeat[seat]
	stack := sess.TableBalanceGwei.Uint64()
	put := amount
	if put > stack {
		put = stack
	}
	p.StreetCommitted += put
	p.TotalCommitted += put
	if put == stack {
		p.Status = domain.PlayerAllIn
	}
	return nil
}
