// Package eventlog implements the signed, append-only event log (component
// A) and its three read operations. Every append happens inside the same
// *sql.Tx as the domain mutation that caused it (§4.1) — the log is the
// only authority on "what happened" (§5).
package eventlog

import (
	"context"
	"database/sql"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/signer"
)

// Log appends, signs, and reads events. It holds no mutable state beyond
// its collaborators.
type Log struct {
	db         *sql.DB
	signer     *signer.Signer
	chainID    *big.Int
	teeVersion int
}

func New(db *sql.DB, s *signer.Signer, chainID *big.Int, teeVersion int) *Log {
	return &Log{db: db, signer: s, chainID: chainID, teeVersion: teeVersion}
}

// AppendInTransaction signs and inserts one event row, returning the
// assigned eventId. tableID is the routing key extracted by the caller (see
// §4.8 — normally parsed out of payload's `table.id`, but components that
// already know the numeric id pass it directly to avoid re-parsing JSON).
func (l *Log) AppendInTransaction(ctx context.Context, tx *sql.Tx, kind domain.EventKind, payloadJSON string, player *string, nonce *big.Int, tableID *int64) (*domain.Event, error) {
	digest, sig, err := l.signer.Sign(string(kind), payloadJSON, nonce)
	if err != nil {
		return nil, err
	}

	var playerNorm *string
	if player != nil {
		lower := strings.ToLower(*player)
		playerNorm = &lower
	}

	var nonceStr *string
	if nonce != nil {
		s := nonce.String()
		nonceStr = &s
	}

	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx, `
		INSERT INTO events (block_ts, kind, payload_json, digest, sig_r, sig_s, sig_v, nonce, player, table_id, tee_version, tee_pubkey, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING event_id
	`, now, string(kind), payloadJSON, digest[:], sig.R[:], sig.S[:], sig.V, nonceStr, playerNorm, tableID, l.teeVersion, l.signer.PublicKey().Hex(), now)

	var eventID int64
	if err := row.Scan(&eventID); err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "insert event", err)
	}

	ev := &domain.Event{
		EventID:     eventID,
		BlockTs:     now,
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Digest:      digest,
		SigR:        sig.R,
		SigS:        sig.S,
		SigV:        sig.V,
		Nonce:       nonce,
		Player:      playerNorm,
		TableID:     tableID,
		TeeVersion:  l.teeVersion,
		TeePubkey:   l.signer.PublicKey().Hex(),
		IngestedAt:  now,
	}
	return ev, nil
}

// Tail returns the most recent `limit` events in descending id order.
func (l *Log) Tail(ctx context.Context, limit int) ([]*domain.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, block_ts, kind, payload_json, digest, sig_r, sig_s, sig_v, nonce, player, table_id, tee_version, tee_pubkey, ingested_at
		FROM events ORDER BY event_id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "tail events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ByHand returns every event whose payload references handId, in ascending
// id order. Hand routing is done by the hand package tagging its own
// events with the table id and filtering in Go, since handId is not a
// first-class indexed column (only tableId is, per §4.8).
func (l *Log) ByHand(ctx context.Context, tableID int64, handID int64, limit int) ([]*domain.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, block_ts, kind, payload_json, digest, sig_r, sig_s, sig_v, nonce, player, table_id, tee_version, tee_pubkey, ingested_at
		FROM events WHERE table_id = $1 ORDER BY event_id ASC LIMIT $2
	`, tableID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "events by hand", err)
	}
	defer rows.Close()
	all, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Event, 0, len(all))
	id := strconv.FormatInt(handID, 10)
	for _, e := range all {
		// hand_start nests the id as hand.id; bet, community_cards and
		// hand_end carry it as a top-level handId.
		needle := `"handId":` + id
		if e.Kind == domain.KindHandStart {
			needle = `"id":` + id
		}
		i := strings.Index(e.PayloadJSON, needle)
		if i < 0 {
			continue
		}
		if end := i + len(needle); end < len(e.PayloadJSON) && (e.PayloadJSON[end] == ',' || e.PayloadJSON[end] == '}') {
			out = append(out, e)
		}
	}
	return out, nil
}

// ByTableSince returns up to limit events for tableID with eventId >
// afterEventID, ascending — the backbone of both SSE resume (§4.8) and
// paginated per-table history.
func (l *Log) ByTableSince(ctx context.Context, tableID int64, afterEventID int64, limit int) ([]*domain.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, block_ts, kind, payload_json, digest, sig_r, sig_s, sig_v, nonce, player, table_id, tee_version, tee_pubkey, ingested_at
		FROM events WHERE table_id = $1 AND event_id > $2 ORDER BY event_id ASC LIMIT $3
	`, tableID, afterEventID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "events by table since", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ByID loads a single event row, used by the distributor to hydrate a
// notification into a full event before writing it to an SSE stream.
func (l *Log) ByID(ctx context.Context, eventID int64) (*domain.Event, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT event_id, block_ts, kind, payload_json, digest, sig_r, sig_s, sig_v, nonce, player, table_id, tee_version, tee_pubkey, ingested_at
		FROM events WHERE event_id = $1
	`, eventID)
	e, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFoundf("event %d not found", eventID)
		}
		return nil, apperr.Wrap(apperr.InternalFatal, "load event", err)
	}
	return e, nil
}

// Verify recomputes e's digest and recovers the signer, comparing it to the
// trusted key's published address (property 1, §8).
func (l *Log) Verify(e *domain.Event) (bool, error) {
	sig := signer.Signature{R: e.SigR, S: e.SigS, V: e.SigV}
	return signer.Verify(l.chainID, string(e.Kind), e.PayloadJSON, e.Nonce, sig, l.signer.PublicKey())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*domain.Event, error) {
	var (
		e                     domain.Event
		kind                  string
		digest, sigR, sigS    []byte
		sigV                  int
		nonceStr, playerStr   sql.NullString
		tableID               sql.NullInt64
	)
	if err := r.Scan(&e.EventID, &e.BlockTs, &kind, &e.PayloadJSON, &digest, &sigR, &sigS, &sigV, &nonceStr, &playerStr, &tableID, &e.TeeVersion, &e.TeePubkey, &e.IngestedAt); err != nil {
		return nil, err
	}
	e.Kind = domain.EventKind(kind)
	copy(e.Digest[:], digest)
	copy(e.SigR[:], sigR)
	copy(e.SigS[:], sigS)
	e.SigV = uint8(sigV)
	if nonceStr.Valid {
		n := new(big.Int)
		n.SetString(nonceStr.String, 10)
		e.Nonce = n
	}
	if playerStr.Valid {
		p := playerStr.String
		e.Player = &p
	}
	if tableID.Valid {
		t := tableID.Int64
		e.TableID = &t
	}
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*domain.Event, error) {
	var out []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.InternalFatal, "scan event row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

