package hand

import (
	"context"
	"database/sql"
	"math/big"
	"strings"
	"time"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/cards"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
)

func cardStrings(ids []uint8) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = cards.Card(id).String()
	}
	return out
}

// commitToPot moves delta gwei from seat's session balance into the hand's
// pot bookkeeping. applyCall/applyBetTo mutate the in-memory session
// balance directly (to keep availableStack math correct
// for the rest of the same action); this persists that mutation to the
// row the session really lives in before the transaction commits.
func (s *Service) commitToPot(ctx context.Context, tx *sql.Tx, sessionID int64, delta uint64) error {
	if delta == 0 {
		return nil
	}
	return s.table.DebitSessionTx(ctx, tx, sessionID, gweiBig(delta))
}

type ActionInput struct {
	HandID     int64
	ActionType domain.ActionType
	AmountGwei uint64 // the new total street commitment (BetTo), for BET/RAISE; ALL_IN ignores it and commits the whole table balance
}

// Action validates and applies one betting action, grounded on the
// teacher's applyAction/applyBetTo/applyCall/applyCheck/applyFold
// (apps/chain/internal/app/poker.go). It then opportunistically advances
// the round, runs out the board, or settles the hand in the same
// transaction (§4.6.2-§4.6.6).
func (s *Service) Action(ctx context.Context, wallet string, in ActionInput) error {
	wallet = strings.ToLower(wallet)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.InternalFatal, "begin action tx", err)
	}
	defer tx.Rollback()

	st, err := s.loadHandByIDTx(ctx, tx, in.HandID)
	if err != nil {
		return err
	}
	if st.hand.Status == domain.HandCompleted {
		return apperr.Conflictf("hand %d already completed", in.HandID)
	}
	if st.hand.CurrentActionSeat == nil {
		return apperr.Conflictf("hand %d is not awaiting an action", in.HandID)
	}
	seat := *st.hand.CurrentActionSeat
	p, ok := st.bySeat[seat]
	if !ok || p.WalletAddress != wallet {
		return apperr.Validationf("wallet is not on action")
	}
	if p.Status != domain.PlayerActive {
		return apperr.Invariantf("seat %d is not eligible to act", seat)
	}
	if st.hand.ActionTimeoutAt != nil && time.Now().UTC().After(*st.hand.ActionTimeoutAt) {
		return apperr.Conflictf("action window has expired; waiting on the timeout sweep")
	}

	committedBefore := p.TotalCommitted
	switch in.ActionType {
	case domain.ActionFold:
		applyFold(st.hand, p)
	case domain.ActionCheck:
		if err := applyCheck(st.hand, p); err != nil {
			return err
		}
	case domain.ActionCall:
		if err := applyCall(st, p); err != nil {
			return err
		}
	case domain.ActionRaise:
		// RAISE against an unopened betting round is auto-promoted to BET
		// (§6 /action).
		if st.hand.CurrentBet == 0 && in.AmountGwei == 0 {
			return apperr.Validationf("bet amount must be positive")
		}
		if err := applyBetTo(st, p, in.AmountGwei); err != nil {
			return err
		}
	case domain.ActionBet:
		if st.hand.CurrentBet != 0 {
			return apperr.Validationf("a bet is already open; use RAISE")
		}
		if in.AmountGwei == 0 {
			return apperr.Validationf("bet amount must be positive")
		}
		if err := applyBetTo(st, p, in.AmountGwei); err != nil {
			return err
		}
	case domain.ActionAllIn:
		sess := st.sessionBySeat[seat]
		shove := p.StreetCommitted + sess.TableBalanceGwei.Uint64()
		switch {
		case st.hand.CurrentBet == 0:
			if err := applyBetTo(st, p, shove); err != nil {
				return err
			}
		case shove > st.hand.CurrentBet:
			if err := applyBetTo(st, p, shove); err != nil {
				return err
			}
		default:
			if err := applyCall(st, p); err != nil {
				return err
			}
		}
	default:
		return apperr.Validationf("unknown action type %q", in.ActionType)
	}

	delta := p.TotalCommitted - committedBefore
	if err := s.commitToPot(ctx, tx, st.sessionBySeat[seat].ID, delta); err != nil {
		return err
	}

	var recordedAmount *uint64
	if delta > 0 {
		recordedAmount = &delta
	}
	if err := s.recordActionTx(ctx, tx, st.hand.ID, seat, *st.hand.Round, in.ActionType, recordedAmount); err != nil {
		return err
	}

	var amountPayload any
	if recordedAmount != nil {
		amountPayload = gweiBig(*recordedAmount)
	}
	payload, _ := eventlog.Canonicalize(eventlog.M{
		"kind":    "bet",
		"handId":  st.hand.ID,
		"seat":    seat,
		"player":  wallet,
		"action":  string(in.ActionType),
		"amount":  amountPayload,
		"isAllIn": p.Status == domain.PlayerAllIn,
	})
	if _, err := s.log.AppendInTransaction(ctx, tx, domain.KindBet, payload, &wallet, nil, &st.table.ID); err != nil {
		return err
	}

	if err := s.maybeAdvance(ctx, tx, st); err != nil {
		return err
	}
	if err := s.persistTx(ctx, tx, st); err != nil {
		return err
	}
	return tx.Commit()
}

func applyFold(h *domain.Hand, p *domain.HandPlayer) {
	p.Status = domain.PlayerFolded
	p.ActedInInterval = h.IntervalID
}

func applyCheck(h *domain.Hand, p *domain.HandPlayer) error {
	if toCall(h, p) != 0 {
		return apperr.Validationf("check is not legal when facing a bet")
	}
	p.ActedInInterval = h.IntervalID
	return nil
}

func applyCall(st *state, p *domain.HandPlayer) error {
	need := toCall(st.hand, p)
	if need == 0 {
		return apperr.Validationf("call is not legal when facing no bet")
	}
	sess := st.sessionBySeat[p.SeatNumber]
	stack := sess.TableBalanceGwei.Uint64()
	pay := need
	if pay > stack {
		pay = stack
	}
	p.StreetCommitted += pay
	p.TotalCommitted += pay
	sess.TableBalanceGwei = new(big.Int).SetUint64(stack - pay)
	if pay == stack {
		p.Status = domain.PlayerAllIn
	}
	p.ActedInInterval = st.hand.IntervalID
	return nil
}

// applyBetTo sets p's street commitment to desiredCommit, grounded on the
// teacher's applyBetTo — preserving the short-all-in-doesn't-reopen-action
// invariant: an under-minraise all-in raise updates BetTo but does not bump
// IntervalID or MinRaiseSize, so players who already acted this interval
// may only call or fold, not re-raise (§4.6.2 edge case).
func applyBetTo(st *state, p *domain.HandPlayer, desiredCommit uint64) error {
	h := st.hand
	sess := st.sessionBySeat[p.SeatNumber]
	availableStack := sess.TableBalanceGwei.Uint64()
	currentCommit := p.StreetCommitted
	if desiredCommit <= currentCommit {
		return apperr.Validationf("bet must exceed current commitment")
	}
	maxCommit := currentCommit + availableStack
	if desiredCommit > maxCommit {
		return apperr.Validationf("bet exceeds available chips")
	}
	isAllIn := desiredCommit == maxCommit

	currentBetTo := h.CurrentBet
	if desiredCommit <= currentBetTo {
		return apperr.Validationf("bet must exceed the current bet; use call or check")
	}
	if p.ActedInInterval == h.IntervalID {
		return apperr.Invariantf("seat already acted since the last full raise")
	}

	raiseSize := desiredCommit - currentBetTo
	minBet := st.bigBlind

	if currentBetTo == 0 {
		if desiredCommit < minBet && !isAllIn {
			return apperr.Validationf("bet below the big blind")
		}
		h.IntervalID++
		p.ActedInInterval = h.IntervalID
		if desiredCommit >= minBet {
			h.MinRaiseSize = desiredCommit
		} else {
			h.MinRaiseSize = minBet
		}
		h.CurrentBet = desiredCommit
	} else {
		if raiseSize < h.MinRaiseSize {
			if !isAllIn {
				return apperr.Validationf("raise below the minimum raise size")
			}
			p.ActedInInterval = h.IntervalID
			h.CurrentBet = desiredCommit
		} else {
			h.IntervalID++
			h.MinRaiseSize = raiseSize
			h.CurrentBet = desiredCommit
			p.ActedInInterval = h.IntervalID
		}
	}

	delta := desiredCommit - currentCommit
	p.StreetCommitted += delta
	p.TotalCommitted += delta
	sess.TableBalanceGwei = new(big.Int).SetUint64(availableStack - delta)
	if isAllIn {
		p.Status = domain.PlayerAllIn
	}
	return nil
}

func streetComplete(st *state) bool {
	for _, p := range st.bySeat {
		if p.Status != domain.PlayerActive {
			continue
		}
		if p.StreetCommitted != st.hand.CurrentBet {
			return false
		}
		if p.ActedInInterval != st.hand.IntervalID {
			return false
		}
	}
	return true
}

func maxCommitThisStreet(st *state) uint64 {
	var m uint64
	for _, p := range st.bySeat {
		if p.StreetCommitted > m {
			m = p.StreetCommitted
		}
	}
	return m
}

func secondMaxCommitThisStreet(st *state, max uint64) uint64 {
	var second uint64
	for _, p := range st.bySeat {
		if p.StreetCommitted == max {
			continue
		}
		if p.StreetCommitted > second {
			second = p.StreetCommitted
		}
	}
	return second
}

// returnUncalledStreetExcess refunds the part of a lone highest bet that no
// other live seat could call, mirroring the teacher's
// returnUncalledStreetExcess before a street or hand ends.
func (s *Service) returnUncalledStreetExcess(ctx context.Context, tx *sql.Tx, st *state) error {
	max := maxCommitThisStreet(st)
	if max == 0 {
		return nil
	}
	second := secondMaxCommitThisStreet(st, max)
	if second == max {
		return nil
	}
	maxSeat := -1
	for seat, p := range st.bySeat {
		if p.StreetCommitted != max {
			continue
		}
		if maxSeat != -1 {
			return nil
		}
		maxSeat = seat
	}
	if maxSeat == -1 {
		return nil
	}
	excess := max - second
	if excess == 0 {
		return nil
	}
	p := st.bySeat[maxSeat]
	p.StreetCommitted -= excess
	p.TotalCommitted -= excess
	if p.Status == domain.PlayerAllIn {
		p.Status = domain.PlayerActive
	}
	sess := st.sessionBySeat[maxSeat]
	sess.TableBalanceGwei = new(big.Int).Add(sess.TableBalanceGwei, gweiBig(excess))
	return s.table.CreditSessionTx(ctx, tx, sess.ID, gweiBig(excess))
}

func resetStreet(st *state) {
	h := st.hand
	h.CurrentBet = 0
	h.MinRaiseSize = st.bigBlind
	h.IntervalID++
	for _, p := range st.bySeat {
		p.StreetCommitted = 0
		p.ActedInInterval = -1
	}
}

var nextRound = map[domain.Round]domain.Round{
	domain.RoundPreFlop: domain.RoundFlop,
	domain.RoundFlop:    domain.RoundTurn,
	domain.RoundTurn:    domain.RoundRiver,
}

var cardsDealtForRound = map[domain.Round]int{
	domain.RoundFlop: 3,
	domain.RoundTurn: 1,
	domain.RoundRiver: 1,
}

func (s *Service) revealNext(st *state, round domain.Round) []uint8 {
	n := cardsDealtForRound[round]
	var dealt []uint8
	for i := 0; i < n && st.hand.DeckPosition < len(st.hand.Deck); i++ {
		c := st.hand.Deck[st.hand.DeckPosition]
		st.hand.CommunityCards = append(st.hand.CommunityCards, c)
		dealt = append(dealt, c)
		st.hand.DeckPosition++
	}
	return dealt
}

// appendCommunityCards records the cards just dealt for round plus the
// cumulative board, per §4.6.3.
func (s *Service) appendCommunityCards(ctx context.Context, tx *sql.Tx, st *state, round domain.Round, newCards []uint8) error {
	if len(newCards) == 0 {
		return nil
	}
	payload, _ := eventlog.Canonicalize(eventlog.M{
		"kind":              "community_cards",
		"handId":            st.hand.ID,
		"round":             string(round),
		"communityCards":    cardStrings(newCards),
		"allCommunityCards": cardStrings(st.hand.CommunityCards),
	})
	_, err := s.log.AppendInTransaction(ctx, tx, domain.KindCommunityCards, payload, nil, nil, &st.table.ID)
	return err
}

// maybeAdvance decides, after one action was applied, whether to keep
// awaiting the next actor, advance to the next street, run out the board
// (fewer than two contenders still have chips), or settle the hand
// (teacher's maybeAdvance).
func (s *Service) maybeAdvance(ctx context.Context, tx *sql.Tx, st *state) error {
	if st.countNotFolded() <= 1 {
		return s.completeByFolds(ctx, tx, st)
	}
	if !streetComplete(st) {
		seat := st.nextActiveToAct(*st.hand.CurrentActionSeat)
		st.hand.CurrentActionSeat = &seat
		if seat != -1 {
			timeout := time.Now().UTC().Add(time.Duration(st.table.ActionTimeoutSeconds) * time.Second)
			st.hand.ActionTimeoutAt = &timeout
			return nil
		}
	}

	if err := s.returnUncalledStreetExcess(ctx, tx, st); err != nil {
		return err
	}

	if *st.hand.Round == domain.RoundRiver {
		return s.runoutAndSettle(ctx, tx, st)
	}
	if st.countWithChips() < 2 {
		return s.runoutAndSettle(ctx, tx, st)
	}

	advanceStreet(st)
	round := *st.hand.Round
	dealt := s.revealNext(st, round)
	if err := s.appendCommunityCards(ctx, tx, st, round, dealt); err != nil {
		return err
	}

	seat := st.nextActiveToAct(st.hand.DealerPosition)
	if seat == -1 {
		return s.runoutAndSettle(ctx, tx, st)
	}
	st.hand.CurrentActionSeat = &seat
	timeout := time.Now().UTC().Add(time.Duration(st.table.ActionTimeoutSeconds) * time.Second)
	st.hand.ActionTimeoutAt = &timeout
	return nil
}

func advanceStreet(st *state) {
	h := st.hand
	r := nextRound[*h.Round]
	h.Round = &r
	switch r {
	case domain.RoundFlop:
		h.Status = domain.HandFlop
	case domain.RoundTurn:
		h.Status = domain.HandTurn
	case domain.RoundRiver:
		h.Status = domain.HandRiver
	}
	resetStreet(st)
}
