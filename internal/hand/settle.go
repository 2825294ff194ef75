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
	"github.com/cloutcards/pokerhouse/internal/holdem"
)

// completeByFolds awards the entire pot to the single remaining seat when
// every other seat has folded (teacher's completeByFolds), skipping
// showdown evaluation entirely.
func (s *Service) completeByFolds(ctx context.Context, tx *sql.Tx, st *state) error {
	if err := s.returnUncalledStreetExcess(ctx, tx, st); err != nil {
		return err
	}

	var winnerSeat = -1
	for seat, p := range st.bySeat {
		if p.Status != domain.PlayerFolded {
			winnerSeat = seat
			break
		}
	}
	if winnerSeat == -1 {
		return apperr.Invariantf("hand %d has no remaining seat to award", st.hand.ID)
	}

	var potTotal uint64
	for _, p := range st.bySeat {
		potTotal += p.TotalCommitted
	}
	rake := rakeAmount(potTotal, st.table.PerHandRakeBps)
	award := potTotal - rake

	if err := s.table.CreditSessionTx(ctx, tx, st.sessionBySeat[winnerSeat].ID, gweiBig(award)); err != nil {
		return err
	}
	if err := s.creditRake(ctx, tx, rake); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pots (hand_id, pot_number, amount, rake_amount, eligible_seat_numbers, winner_seat_numbers)
		VALUES ($1, 0, $2, $3, $4, $5)
	`, st.hand.ID, potTotal, rake, pq.Array(pqIntArray([]int{winnerSeat})), pq.Array(pqIntArray([]int{winnerSeat}))); err != nil {
		return apperr.Wrap(apperr.InternalFatal, "insert fold pot", err)
	}

	return s.finishHand(ctx, tx, st, "folds", []potResult{{potNumber: 0, amount: potTotal, rake: rake, eligible: []int{winnerSeat}, winners: []int{winnerSeat}}})
}

type potResult struct {
	potNumber int
	amount    uint64
	rake      uint64
	eligible  []int
	winners   []int
}

// runoutAndSettle deals any remaining community cards, computes side pots,
// evaluates showdown hands, and awards every pot — grounded on the
// teacher's runoutAndSettleHand/settleKnownShowdown.
func (s *Service) runoutAndSettle(ctx context.Context, tx *sql.Tx, st *state) error {
	h := st.hand
	for round := *h.Round; round != domain.RoundRiver && len(h.CommunityCards) < 5; {
		round = nextRound[round]
		h.Round = &round
		dealt := s.revealNext(st, round)
		if err := s.appendCommunityCards(ctx, tx, st, round, dealt); err != nil {
			return err
		}
	}
	for len(h.CommunityCards) < 5 && h.DeckPosition < len(h.Deck) {
		h.CommunityCards = append(h.CommunityCards, h.Deck[h.DeckPosition])
		h.DeckPosition++
	}

	totalCommit := map[int]uint64{}
	eligible := map[int]bool{}
	for seat, p := range st.bySeat {
		totalCommit[seat] = p.TotalCommitted
		eligible[seat] = p.Status != domain.PlayerFolded
	}
	tiers := computeSidePots(totalCommit, eligible)

	board, err := boardCards(h.CommunityCards)
	if err != nil {
		return apperr.Wrap(apperr.InvariantBreak, "decode board cards", err)
	}

	results := make([]potResult, 0, len(tiers))
	for i, tier := range tiers {
		if tier.amount == 0 || len(tier.eligible) == 0 {
			continue
		}
		var winners []int
		if len(tier.eligible) == 1 {
			winners = []int{tier.eligible[0]}
		} else {
			holeBySeat := make(map[int][2]cards.Card, len(tier.eligible))
			for _, seat := range tier.eligible {
				p := st.bySeat[seat]
				holeBySeat[seat] = [2]cards.Card{cards.Card(p.HoleCards[0]), cards.Card(p.HoleCards[1])}
			}
			winners, err = holdem.Winners(board, holeBySeat)
			if err != nil {
				return apperr.Wrap(apperr.InvariantBreak, "evaluate showdown", err)
			}
		}

		rake := rakeAmount(tier.amount, st.table.PerHandRakeBps)
		award := tier.amount - rake
		share := award / uint64(len(winners))
		rem := award % uint64(len(winners))
		for idx, seat := range winners {
			give := share
			if idx == 0 {
				give += rem
			}
			if err := s.table.CreditSessionTx(ctx, tx, st.sessionBySeat[seat].ID, gweiBig(give)); err != nil {
				return err
			}
		}
		if err := s.creditRake(ctx, tx, rake); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pots (hand_id, pot_number, amount, rake_amount, eligible_seat_numbers, winner_seat_numbers)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, h.ID, i, tier.amount, rake, pq.Array(pqIntArray(tier.eligible)), pq.Array(pqIntArray(winners))); err != nil {
			return apperr.Wrap(apperr.InternalFatal, "insert pot", err)
		}
		results = append(results, potResult{potNumber: i, amount: tier.amount, rake: rake, eligible: tier.eligible, winners: winners})
	}

	return s.finishHand(ctx, tx, st, "showdown", results)
}

func boardCards(ids []uint8) ([]cards.Card, error) {
	if len(ids) != 5 {
		return nil, apperr.Invariantf("expected 5 board cards at settlement, got %d", len(ids))
	}
	return cards.FromIDs(ids), nil
}

func rakeAmount(pot uint64, bps int) uint64 {
	return pot * uint64(bps) / 10000
}

func (s *Service) creditRake(ctx context.Context, tx *sql.Tx, rake uint64) error {
	if rake == 0 {
		return nil
	}
	return s.escrow.CreditTx(ctx, tx, s.houseWallet, gweiBig(rake))
}

// finishHand reveals the shuffle seed/nonce, marks the hand COMPLETED, and
// appends hand_end. It is the single exit path shared by completeByFolds
// and runoutAndSettle.
func (s *Service) finishHand(ctx context.Context, tx *sql.Tx, st *state, reason string, results []potResult) error {
	h := st.hand
	seed, nonce, err := s.revealSeedTx(ctx, tx, h.ID)
	if err != nil {
		return err
	}
	h.ShuffleSeed = &seed
	h.DeckNonce = &nonce
	h.Status = domain.HandCompleted
	h.Round = nil
	h.CurrentActionSeat = nil
	h.ActionTimeoutAt = nil
	now := time.Now().UTC()
	h.CompletedAt = &now

	potPayload := make([]eventlog.M, 0, len(results))
	for _, r := range results {
		potPayload = append(potPayload, eventlog.M{
			"potNumber": r.potNumber,
			"amount":    gweiBig(r.amount),
			"rake":      gweiBig(r.rake),
			"eligible":  r.eligible,
			"winners":   r.winners,
		})
	}
	payload, _ := eventlog.Canonicalize(eventlog.M{
		"kind":           "hand_end",
		"handId":         h.ID,
		"reason":         reason,
		"communityCards": cards.DeckString(mustBoard(h.CommunityCards)),
		"shuffleSeed":    seed,
		"deckNonce":      nonce,
		"pots":           potPayload,
	})
	if _, err := s.log.AppendInTransaction(ctx, tx, domain.KindHandEnd, payload, nil, nil, &st.table.ID); err != nil {
		return err
	}
	return s.persistTx(ctx, tx, st)
}

func mustBoard(ids []uint8) []cards.Card {
	return cards.FromIDs(ids)
}

func (s *Service) revealSeedTx(ctx context.Context, tx *sql.Tx, handID int64) (string, string, error) {
	var seed, nonce string
	err := tx.QueryRowContext(ctx, `SELECT shuffle_seed_plain, deck_nonce_plain FROM hands WHERE id = $1`, handID).Scan(&seed, &nonce)
	if err != nil {
		return "", "", apperr.Wrap(apperr.InternalFatal, "reveal shuffle seed", err)
	}
	return seed, nonce, nil
}

func pqIntArray(xs []int) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return out
}
