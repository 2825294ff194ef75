// Package table implements poker-table records and per-wallet seat
// sessions (component E): creation/activation, join/rebuy/stand-up.
package table

import (
	"context"
	"database/sql"
	"math/big"
	"strings"
	"time"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
)

type Service struct {
	db     *sql.DB
	escrow *escrow.Ledger
	log    *eventlog.Log
}

func New(db *sql.DB, escrowLedger *escrow.Ledger, log *eventlog.Log) *Service {
	return &Service{db: db, escrow: escrowLedger, log: log}
}

type CreateTableInput struct {
	Name                 string
	MinimumBuyIn         *big.Int
	MaximumBuyIn         *big.Int
	SmallBlind           *big.Int
	BigBlind             *big.Int
	PerHandRakeBps       int
	MaxSeatCount         int
	ActionTimeoutSeconds int
	HandStartDelaySeconds int
}

func validateTableInput(in CreateTableInput) error {
	if in.Name == "" {
		return apperr.Validationf("table name is required")
	}
	if in.SmallBlind == nil || in.BigBlind == nil || in.SmallBlind.Sign() <= 0 || in.BigBlind.Sign() <= 0 {
		return apperr.Validationf("blinds must be positive")
	}
	if in.SmallBlind.Cmp(in.BigBlind) > 0 {
		return apperr.Validationf("smallBlind must be <= bigBlind")
	}
	if in.MinimumBuyIn == nil || in.MaximumBuyIn == nil || in.MinimumBuyIn.Sign() <= 0 || in.MaximumBuyIn.Sign() <= 0 {
		return apperr.Validationf("buy-in range must be positive")
	}
	if in.MinimumBuyIn.Cmp(in.MaximumBuyIn) > 0 {
		return apperr.Validationf("minimumBuyIn must be <= maximumBuyIn")
	}
	if in.PerHandRakeBps < 0 || in.PerHandRakeBps > 10000 {
		return apperr.Validationf("perHandRake must be within 0..10000 bps")
	}
	if in.MaxSeatCount <= 0 || in.MaxSeatCount > 8 {
		return apperr.Validationf("maxSeatCount must be within 1..8")
	}
	return nil
}

func (s *Service) CreateTable(ctx context.Context, in CreateTableInput, admin string) (*domain.PokerTable, error) {
	if err := validateTableInput(in); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "begin create-table tx", err)
	}
	defer tx.Rollback()

	t := &domain.PokerTable{
		Name:                  in.Name,
		MinimumBuyIn:          in.MinimumBuyIn,
		MaximumBuyIn:          in.MaximumBuyIn,
		SmallBlind:            in.SmallBlind,
		BigBlind:              in.BigBlind,
		PerHandRakeBps:        in.PerHandRakeBps,
		MaxSeatCount:          in.MaxSeatCount,
		IsActive:              true,
		ActionTimeoutSeconds:  in.ActionTimeoutSeconds,
		HandStartDelaySeconds: in.HandStartDelaySeconds,
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO poker_tables (name, minimum_buy_in, maximum_buy_in, small_blind, big_blind, per_hand_rake_bps, max_seat_count, is_active, action_timeout_seconds, hand_start_delay_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE,$8,$9) RETURNING id
	`, t.Name, t.MinimumBuyIn.String(), t.MaximumBuyIn.String(), t.SmallBlind.String(), t.BigBlind.String(), t.PerHandRakeBps, t.MaxSeatCount, t.ActionTimeoutSeconds, t.HandStartDelaySeconds)
	if err := row.Scan(&t.ID); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "insert poker_table", err)
	}

	payload, _ := eventlog.Canonicalize(eventlog.M{
		"kind":  "create_table",
		"admin": strings.ToLower(admin),
		"table": eventlog.M{
			"id":                    t.ID,
			"name":                  t.Name,
			"minimumBuyIn":          t.MinimumBuyIn,
			"maximumBuyIn":          t.MaximumBuyIn,
			"smallBlind":            t.SmallBlind,
			"bigBlind":              t.BigBlind,
			"perHandRake":           t.PerHandRakeBps,
			"maxSeatCount":          t.MaxSeatCount,
			"actionTimeoutSeconds":  t.ActionTimeoutSeconds,
			"handStartDelaySeconds": t.HandStartDelaySeconds,
		},
	})
	adminLower := strings.ToLower(admin)
	if _, err := s.log.AppendInTransaction(ctx, tx, domain.KindCreateTable, payload, &adminLower, nil, &t.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "commit create-table", err)
	}
	return t, nil
}

// UpdateActive forbids no-op transitions (§4.5) and appends
// table_activated/table_deactivated.
func (s *Service) UpdateActive(ctx context.Context, tableID int64, isActive bool, admin string) (*domain.PokerTable, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "begin update-active tx", err)
	}
	defer tx.Rollback()

	t, err := s.getTx(ctx, tx, tableID, true)
	if err != nil {
		return nil, err
	}
	if t.IsActive == isActive {
		return nil, apperr.Conflictf("table %d is already %s", tableID, activeWord(isActive))
	}
	if _, err := tx.ExecContext(ctx, `UPDATE poker_tables SET is_active = $2 WHERE id = $1`, tableID, isActive); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "update table active", err)
	}
	t.IsActive = isActive

	kind := domain.KindTableDeactivated
	if isActive {
		kind = domain.KindTableActivated
	}
	payload, _ := eventlog.Canonicalize(eventlog.M{
		"kind":  string(kind),
		"admin": strings.ToLower(admin),
		"table": eventlog.M{"id": t.ID, "name": t.Name},
	})
	adminLower := strings.ToLower(admin)
	if _, err := s.log.AppendInTransaction(ctx, tx, kind, payload, &adminLower, nil, &t.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "commit update-active", err)
	}
	return t, nil
}

func activeWord(b bool) string {
	if b {
		return "active"
	}
	return "inactive"
}

func (s *Service) GetTable(ctx context.Context, tableID int64) (*domain.PokerTable, error) {
	return s.getTx(ctx, s.db, tableID, false)
}

// LockTableTx exposes getTx FOR UPDATE to the hand package, which must
// serialize on a table's configuration while it starts a new hand (§5).
func (s *Service) LockTableTx(ctx context.Context, tx *sql.Tx, tableID int64) (*domain.PokerTable, error) {
	return s.getTx(ctx, tx, tableID, true)
}

// ActiveSessionsTx is LockTableTx's counterpart for seat sessions: the hand
// package locks every active session at a table before dealing a new hand
// so a concurrent join/standUp can't race hand start.
func (s *Service) ActiveSessionsTx(ctx context.Context, tx *sql.Tx, tableID int64) ([]*domain.TableSeatSession, error) {
	return s.activeSessionsTx(ctx, tx, tableID, true)
}

// DebitSessionTx and CreditSessionTx let the hand package move chips
// between a session's table balance and the pot during settlement without
// touching escrow (escrow only moves at join/rebuy/standUp, §4.5/§4.6).
func (s *Service) DebitSessionTx(ctx context.Context, tx *sql.Tx, sessionID int64, amount *big.Int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE table_seat_sessions SET table_balance_gwei = (table_balance_gwei::numeric - $2)::text
		WHERE id = $1 AND (table_balance_gwei::numeric - $2) >= 0
	`, sessionID, amount.String())
	if err != nil {
		return apperr.Wrap(apperr.InternalFatal, "debit session balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.InternalFatal, "debit session rows affected", err)
	}
	if n == 0 {
		return apperr.Invariantf("session %d has insufficient table balance", sessionID)
	}
	return nil
}

func (s *Service) CreditSessionTx(ctx context.Context, tx *sql.Tx, sessionID int64, amount *big.Int) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE table_seat_sessions SET table_balance_gwei = (table_balance_gwei::numeric + $2)::text WHERE id = $1
	`, sessionID, amount.String()); err != nil {
		return apperr.Wrap(apperr.InternalFatal, "credit session balance", err)
	}
	return nil
}

// SessionBySeatTx loads the active session occupying tableID/seat, if any.
func (s *Service) SessionBySeatTx(ctx context.Context, tx *sql.Tx, tableID int64, seat int) (*domain.TableSeatSession, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, table_id, wallet_address, seat_number, table_balance_gwei, twitter_handle, twitter_avatar_url, joined_at, left_at, is_active
		FROM table_seat_sessions WHERE table_id = $1 AND seat_number = $2 AND is_active = TRUE
	`, tableID, seat)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "load session by seat", err)
	}
	defer rows.Close()
	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Service) getTx(ctx context.Context, q execQuerier, tableID int64, forUpdate bool) (*domain.PokerTable, error) {
	query := `
		SELECT id, name, minimum_buy_in, maximum_buy_in, small_blind, big_blind, per_hand_rake_bps, max_seat_count, is_active, action_timeout_seconds, hand_start_delay_seconds
		FROM poker_tables WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	row := q.QueryRowContext(ctx, query, tableID)
	t := &domain.PokerTable{}
	var minBuy, maxBuy, sb, bb string
	if err := row.Scan(&t.ID, &t.Name, &minBuy, &maxBuy, &sb, &bb, &t.PerHandRakeBps, &t.MaxSeatCount, &t.IsActive, &t.ActionTimeoutSeconds, &t.HandStartDelaySeconds); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFoundf("table %d not found", tableID)
		}
		return nil, apperr.Wrap(apperr.InternalFatal, "load table", err)
	}
	t.MinimumBuyIn = bigFrom(minBuy)
	t.MaximumBuyIn = bigFrom(maxBuy)
	t.SmallBlind = bigFrom(sb)
	t.BigBlind = bigFrom(bb)
	return t, nil
}

// TotalActiveBalance sums table_balance_gwei across every active session,
// the table half of the solvency check (§4.9).
func (s *Service) TotalActiveBalance(ctx context.Context) (*big.Int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_balance_gwei FROM table_seat_sessions WHERE is_active`)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "list active session balances", err)
	}
	defer rows.Close()
	total := big.NewInt(0)
	for rows.Next() {
		var bal string
		if err := rows.Scan(&bal); err != nil {
			return nil, apperr.Wrap(apperr.InternalFatal, "scan session balance", err)
		}
		n := new(big.Int)
		n.SetString(bal, 10)
		total.Add(total, n)
	}
	return total, rows.Err()
}

func bigFrom(s string) *big.Int {
	n := new(big.Int)
	n.SetString(s, 10)
	return n
}

func (s *Service) ListTables(ctx context.Context) ([]*domain.PokerTable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, minimum_buy_in, maximum_buy_in, small_blind, big_blind, per_hand_rake_bps, max_seat_count, is_active, action_timeout_seconds, hand_start_delay_seconds
		FROM poker_tables ORDER BY id ASC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "list tables", err)
	}
	defer rows.Close()
	var out []*domain.PokerTable
	for rows.Next() {
		t := &domain.PokerTable{}
		var minBuy, maxBuy, sb, bb string
		if err := rows.Scan(&t.ID, &t.Name, &minBuy, &maxBuy, &sb, &bb, &t.PerHandRakeBps, &t.MaxSeatCount, &t.IsActive, &t.ActionTimeoutSeconds, &t.HandStartDelaySeconds); err != nil {
			return nil, apperr.Wrap(apperr.InternalFatal, "scan table row", err)
		}
		t.MinimumBuyIn = bigFrom(minBuy)
		t.MaximumBuyIn = bigFrom(maxBuy)
		t.SmallBlind = bigFrom(sb)
		t.BigBlind = bigFrom(bb)
		out = append(out, t)
	}
	return out, rows.Err()
}

// LastSeatActivityAt returns the most recent join/leave timestamp across
// every session tableID has ever had, and false if it has never had one.
func (s *Service) LastSeatActivityAt(ctx context.Context, tableID int64) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT MAX(GREATEST(joined_at, COALESCE(left_at, joined_at))) FROM table_seat_sessions WHERE table_id = $1
	`, tableID)
	var last sql.NullTime
	if err := row.Scan(&last); err != nil {
		return time.Time{}, false, apperr.Wrap(apperr.InternalFatal, "load last seat activity", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return last.Time, true, nil
}

// ActiveSessions returns every active session at tableID.
func (s *Service) ActiveSessions(ctx context.Context, tableID int64) ([]*domain.TableSeatSession, error) {
	return s.activeSessionsTx(ctx, s.db, tableID, false)
}

func (s *Service) activeSessionsTx(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, tableID int64, forUpdate bool) ([]*domain.TableSeatSession, error) {
	query := `
		SELECT id, table_id, wallet_address, seat_number, table_balance_gwei, twitter_handle, twitter_avatar_url, joined_at, left_at, is_active
		FROM table_seat_sessions WHERE table_id = $1 AND is_active = TRUE`
	if forUpdate {
		query += " FOR UPDATE"
	}
	rows, err := q.QueryContext(ctx, query, tableID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "list active sessions", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]*domain.TableSeatSession, error) {
	var out []*domain.TableSeatSession
	for rows.Next() {
		sess := &domain.TableSeatSession{}
		var bal string
		var twHandle, twAvatar sql.NullString
		var leftAt sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.TableID, &sess.WalletAddress, &sess.SeatNumber, &bal, &twHandle, &twAvatar, &sess.JoinedAt, &leftAt, &sess.IsActive); err != nil {
			return nil, apperr.Wrap(apperr.InternalFatal, "scan session row", err)
		}
		sess.TableBalanceGwei = bigFrom(bal)
		if twHandle.Valid {
			v := twHandle.String
			sess.TwitterHandle = &v
		}
		if twAvatar.Valid {
			v := twAvatar.String
			sess.TwitterAvatarURL = &v
		}
		if leftAt.Valid {
			v := leftAt.Time
			sess.LeftAt = &v
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SessionForWallet returns wallet's active session at any table, or nil.
func (s *Service) SessionForWallet(ctx context.Context, wallet string) (*domain.TableSeatSession, error) {
	return s.sessionForWalletTx(ctx, s.db, wallet, false)
}

func (s *Service) sessionForWalletTx(ctx context.Context, q execQuerier, wallet string, forUpdate bool) (*domain.TableSeatSession, error) {
	query := `
		SELECT id, table_id, wallet_address, seat_number, table_balance_gwei, twitter_handle, twitter_avatar_url, joined_at, left_at, is_active
		FROM table_seat_sessions WHERE wallet_address = $1 AND is_active = TRUE`
	if forUpdate {
		query += " FOR UPDATE"
	}
	row := q.QueryRowContext(ctx, query, strings.ToLower(wallet))
	sess := &domain.TableSeatSession{}
	var bal string
	var twHandle, twAvatar sql.NullString
	var leftAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.TableID, &sess.WalletAddress, &sess.SeatNumber, &bal, &twHandle, &twAvatar, &sess.JoinedAt, &leftAt, &sess.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "load session for wallet", err)
	}
	sess.TableBalanceGwei = bigFrom(bal)
	if twHandle.Valid {
		v := twHandle.String
		sess.TwitterHandle = &v
	}
	if twAvatar.Valid {
		v := twAvatar.String
		sess.TwitterAvatarURL = &v
	}
	if leftAt.Valid {
		v := leftAt.Time
		sess.LeftAt = &v
	}
	return sess, nil
}

type JoinInput struct {
	TableID       int64
	SeatNumber    int
	BuyInGwei     *big.Int
	TwitterHandle *string
	TwitterAvatar *string
}

// JoinTable seats wallet; it does not itself attempt to start a hand — the
// caller (the game orchestrator) does that after commit, per §4.5.
func (s *Service) JoinTable(ctx context.Context, wallet string, in JoinInput) (*domain.TableSeatSession, error) {
	wallet = strings.ToLower(wallet)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "begin join tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	pending, err := s.escrow.HasPendingWithdrawalTx(ctx, tx, wallet, now)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, apperr.Conflictf("withdrawal pending")
	}

	existing, err := s.sessionForWalletTx(ctx, tx, wallet, true)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflictf("wallet already seated")
	}

	t, err := s.getTx(ctx, tx, in.TableID, true)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, apperr.Conflictf("table is not active")
	}
	if in.SeatNumber < 0 || in.SeatNumber >= t.MaxSeatCount {
		return nil, apperr.Validationf("invalid seat number")
	}
	if in.BuyInGwei.Cmp(t.MinimumBuyIn) < 0 || in.BuyInGwei.Cmp(t.MaximumBuyIn) > 0 {
		return nil, apperr.Validationf("buy-in outside [min, max]")
	}

	seatTaken, err := s.seatOccupiedTx(ctx, tx, in.TableID, in.SeatNumber)
	if err != nil {
		return nil, err
	}
	if seatTaken {
		return nil, apperr.Conflictf("seat occupied")
	}

	if err := s.escrow.DebitTx(ctx, tx, wallet, in.BuyInGwei); err != nil {
		return nil, err
	}

	sess := &domain.TableSeatSession{
		TableID:          in.TableID,
		WalletAddress:    wallet,
		SeatNumber:       in.SeatNumber,
		TableBalanceGwei: in.BuyInGwei,
		TwitterHandle:    in.TwitterHandle,
		TwitterAvatarURL: in.TwitterAvatar,
		JoinedAt:         now,
		IsActive:         true,
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO table_seat_sessions (table_id, wallet_address, seat_number, table_balance_gwei, twitter_handle, twitter_avatar_url, joined_at, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE) RETURNING id
	`, sess.TableID, sess.WalletAddress, sess.SeatNumber, sess.TableBalanceGwei.String(), sess.TwitterHandle, sess.TwitterAvatarURL, sess.JoinedAt)
	if err := row.Scan(&sess.ID); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "insert seat session", err)
	}

	payload, _ := eventlog.Canonicalize(eventlog.M{
		"kind":              "join_table",
		"player":            wallet,
		"table":             eventlog.M{"id": t.ID, "name": t.Name},
		"seatNumber":        sess.SeatNumber,
		"buyInAmountGwei":   sess.TableBalanceGwei,
		"twitterHandle":     orEmpty(sess.TwitterHandle),
		"twitterAvatarUrl":  orEmpty(sess.TwitterAvatarURL),
		"isRebuy":           false,
	})
	if _, err := s.log.AppendInTransaction(ctx, tx, domain.KindJoinTable, payload, &wallet, nil, &t.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "commit join", err)
	}
	return sess, nil
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Service) seatOccupiedTx(ctx context.Context, tx *sql.Tx, tableID int64, seat int) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM table_seat_sessions WHERE table_id = $1 AND seat_number = $2 AND is_active = TRUE)
	`, tableID, seat).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.InternalFatal, "check seat occupied", err)
	}
	return exists, nil
}

// ActiveHandParticipant is implemented by the hand package's state reader,
// injected to avoid an import cycle (table must not import hand).
type ActiveHandParticipant interface {
	// IsWalletInLiveHand reports whether wallet currently holds an ACTIVE
	// or ALL_IN seat in tableID's non-completed hand, if one exists.
	IsWalletInLiveHand(ctx context.Context, tx *sql.Tx, tableID int64, wallet string) (bool, error)
}

type RebuyInput struct {
	TableID    int64
	AmountGwei *big.Int
}

// Rebuy tops up an existing session. The caller passes a hand-liveness
// checker rather than this package importing the hand state machine
// directly; it rejects a wallet holding an ACTIVE or ALL_IN seat in the
// table's live hand. A seat that has already folded in that hand can rebuy.
func (s *Service) Rebuy(ctx context.Context, wallet string, in RebuyInput, liveness ActiveHandParticipant) (*domain.TableSeatSession, error) {
	wallet = strings.ToLower(wallet)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "begin rebuy tx", err)
	}
	defer tx.Rollback()

	sess, err := s.sessionForWalletTx(ctx, tx, wallet, true)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.TableID != in.TableID {
		return nil, apperr.Conflictf("no active session at table %d", in.TableID)
	}

	if liveness != nil {
		inHand, err := liveness.IsWalletInLiveHand(ctx, tx, in.TableID, wallet)
		if err != nil {
			return nil, err
		}
		if inHand {
			return nil, apperr.Conflictf("cannot rebuy while seated in an active hand")
		}
	}

	t, err := s.getTx(ctx, tx, in.TableID, false)
	if err != nil {
		return nil, err
	}
	newBalance := new(big.Int).Add(sess.TableBalanceGwei, in.AmountGwei)
	if newBalance.Cmp(t.MaximumBuyIn) > 0 {
		return nil, apperr.Validationf("rebuy would exceed table maximum buy-in")
	}

	now := time.Now().UTC()
	pending, err := s.escrow.HasPendingWithdrawalTx(ctx, tx, wallet, now)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, apperr.Conflictf("withdrawal pending")
	}

	if err := s.escrow.DebitTx(ctx, tx, wallet, in.AmountGwei); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE table_seat_sessions SET table_balance_gwei = $2 WHERE id = $1`, sess.ID, newBalance.String()); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "update session balance", err)
	}
	sess.TableBalanceGwei = newBalance

	payload, _ := eventlog.Canonicalize(eventlog.M{
		"kind":            "join_table",
		"player":          wallet,
		"table":           eventlog.M{"id": t.ID, "name": t.Name},
		"seatNumber":      sess.SeatNumber,
		"buyInAmountGwei": in.AmountGwei,
		"isRebuy":         true,
	})
	if _, err := s.log.AppendInTransaction(ctx, tx, domain.KindJoinTable, payload, &wallet, nil, &t.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "commit rebuy", err)
	}
	return sess, nil
}

type StandUpInput struct {
	TableID int64
}

// StandUp rejects a player holding an ACTIVE or ALL_IN seat in a live hand
// (§4.5, E3): an ACTIVE player must fold first, and an ALL_IN player cannot
// stand up until the hand completes.
func (s *Service) StandUp(ctx context.Context, wallet string, in StandUpInput, liveness ActiveHandParticipant) error {
	wallet = strings.ToLower(wallet)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.InternalFatal, "begin stand-up tx", err)
	}
	defer tx.Rollback()

	sess, err := s.sessionForWalletTx(ctx, tx, wallet, true)
	if err != nil {
		return err
	}
	if sess == nil || sess.TableID != in.TableID {
		return apperr.Conflictf("no active session at table %d", in.TableID)
	}

	if liveness != nil {
		inHand, err := liveness.IsWalletInLiveHand(ctx, tx, in.TableID, wallet)
		if err != nil {
			return err
		}
		if inHand {
			return apperr.Conflictf("must fold before standing up")
		}
	}

	t, err := s.getTx(ctx, tx, in.TableID, false)
	if err != nil {
		return err
	}

	if err := s.escrow.CreditTx(ctx, tx, wallet, sess.TableBalanceGwei); err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE table_seat_sessions SET is_active = FALSE, left_at = $2 WHERE id = $1`, sess.ID, now); err != nil {
		return apperr.Wrap(apperr.InternalFatal, "deactivate session", err)
	}

	payload, _ := eventlog.Canonicalize(eventlog.M{
		"kind":             "leave_table",
		"player":           wallet,
		"table":            eventlog.M{"id": t.ID, "name": t.Name},
		"seatNumber":       sess.SeatNumber,
		"finalBalanceGwei": sess.TableBalanceGwei,
		"twitterHandle":    orEmpty(sess.TwitterHandle),
		"twitterAvatarUrl": orEmpty(sess.TwitterAvatarURL),
	})
	if _, err := s.log.AppendInTransaction(ctx, tx, domain.KindLeaveTable, payload, &wallet, nil, &t.ID); err != nil {
		return err
	}
	return tx.Commit()
}
