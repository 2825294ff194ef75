package hand

import (
	"context"
	"time"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
)

// ExpireIfTimedOut is the scheduler's system-initiated counterpart to
// Action (§4.7 action-timeout auto-fold). It folds the seat on action iff
// its action window has elapsed, and is a no-op otherwise — safe to call
// on every tick for every table with a live hand.
func (s *Service) ExpireIfTimedOut(ctx context.Context, tableID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperr.Wrap(apperr.InternalFatal, "begin timeout tx", err)
	}
	defer tx.Rollback()

	st, err := s.loadActiveHandTx(ctx, tx, tableID)
	if err != nil {
		return false, err
	}
	if st == nil || st.hand.CurrentActionSeat == nil || st.hand.ActionTimeoutAt == nil {
		return false, nil
	}
	if time.Now().UTC().Before(*st.hand.ActionTimeoutAt) {
		return false, nil
	}

	seat := *st.hand.CurrentActionSeat
	p, ok := st.bySeat[seat]
	if !ok || p.Status != domain.PlayerActive {
		// Already resolved by a prior sweep or an in-time action; clear the
		// stale timeout and move on.
		st.hand.ActionTimeoutAt = nil
		if err := s.persistTx(ctx, tx, st); err != nil {
			return false, err
		}
		return false, tx.Commit()
	}

	applyFold(st.hand, p)
	if err := s.recordActionTx(ctx, tx, st.hand.ID, seat, *st.hand.Round, domain.ActionFold, nil); err != nil {
		return false, err
	}

	payload, _ := eventlog.Canonicalize(eventlog.M{
		"kind":    "bet",
		"handId":  st.hand.ID,
		"seat":    seat,
		"player":  p.WalletAddress,
		"action":  string(domain.ActionFold),
		"amount":  nil,
		"isAllIn": false,
	})
	if _, err := s.log.AppendInTransaction(ctx, tx, domain.KindBet, payload, &p.WalletAddress, nil, &st.table.ID); err != nil {
		return false, err
	}

	if err := s.maybeAdvance(ctx, tx, st); err != nil {
		return false, err
	}
	if err := s.persistTx(ctx, tx, st); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, apperr.Wrap(apperr.InternalFatal, "commit timeout fold", err)
	}
	return true, nil
}
