package hand

import (
	"context"
	"database/sql"
	"time"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
)

// CurrentHand is the read-only counterpart to loadActiveHandTx used by the
// HTTP layer's /currentHand and /watchCurrentHand (§6); it takes no lock,
// since a poller has no mutation to make atomic with the read.
func (s *Service) CurrentHand(ctx context.Context, tableID int64) (*domain.Hand, []*domain.HandPlayer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, table_id, status, round, dealer_position, small_blind_seat, big_blind_seat, current_action_seat,
		       current_bet, min_raise_size, interval_id, deck, deck_position, community_cards,
		       shuffle_seed_hash, shuffle_seed, deck_nonce, action_timeout_at, started_at, completed_at
		FROM hands WHERE table_id = $1 AND status <> 'COMPLETED' ORDER BY id DESC LIMIT 1
	`, tableID)
	h, err := scanHand(row)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.InternalFatal, "load current hand", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT hand_id, seat_number, wallet_address, status, street_committed, total_committed, acted_in_interval, hole_card0, hole_card1
		FROM hand_players WHERE hand_id = $1 ORDER BY seat_number ASC
	`, h.ID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.InternalFatal, "load current hand players", err)
	}
	defer rows.Close()

	var players []*domain.HandPlayer
	for rows.Next() {
		p := &domain.HandPlayer{}
		var status string
		if err := rows.Scan(&p.HandID, &p.SeatNumber, &p.WalletAddress, &status, &p.StreetCommitted, &p.TotalCommitted, &p.ActedInInterval, &p.HoleCards[0], &p.HoleCards[1]); err != nil {
			return nil, nil, apperr.Wrap(apperr.InternalFatal, "scan current hand player", err)
		}
		p.Status = domain.PlayerStatus(status)
		players = append(players, p)
	}
	return h, players, rows.Err()
}

// NextHandEstimate reports, for a table with no hand in progress, the
// earliest time a new hand could start per its configured hand-start delay
// (§6 "next-hand timing info"). Returns nil if a hand is already live or no
// hand has completed yet.
func (s *Service) NextHandEstimate(ctx context.Context, t *domain.PokerTable) (*time.Time, error) {
	h, _, err := s.CurrentHand(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if h != nil {
		return nil, nil
	}
	var completedAt sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT completed_at FROM hands WHERE table_id = $1 AND status = 'COMPLETED' ORDER BY id DESC LIMIT 1
	`, t.ID).Scan(&completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "load last completed hand", err)
	}
	if !completedAt.Valid {
		return nil, nil
	}
	next := completedAt.Time.Add(time.Duration(t.HandStartDelaySeconds) * time.Second)
	return &next, nil
}
