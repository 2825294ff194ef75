package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/cards"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/hand"
	"github.com/cloutcards/pokerhouse/internal/walletaddr"
)

// handJSON renders the full hand view (§6 "full hand view"); ownWallet, if
// non-empty, reveals that seat's own hole cards, never anyone else's.
func handJSON(h *domain.Hand, players []*domain.HandPlayer, ownWallet string) M {
	var round *string
	if h.Round != nil {
		v := string(*h.Round)
		round = &v
	}
	playerRows := make([]M, 0, len(players))
	for _, p := range players {
		row := M{
			"seatNumber":      p.SeatNumber,
			"walletAddress":   walletaddr.Checksum(p.WalletAddress),
			"status":          string(p.Status),
			"streetCommitted": p.StreetCommitted,
			"totalCommitted":  p.TotalCommitted,
		}
		if ownWallet != "" && walletaddr.Equal(ownWallet, p.WalletAddress) {
			row["holeCards"] = cardStringsExported(p.HoleCards[:])
		}
		playerRows = append(playerRows, row)
	}
	return M{
		"id":                h.ID,
		"tableId":           h.TableID,
		"status":            string(h.Status),
		"round":             round,
		"dealerPosition":    h.DealerPosition,
		"smallBlindSeat":    h.SmallBlindSeat,
		"bigBlindSeat":      h.BigBlindSeat,
		"currentActionSeat": h.CurrentActionSeat,
		"currentBet":        h.CurrentBet,
		"minRaiseSize":      h.MinRaiseSize,
		"communityCards":    cardStringsExported(h.CommunityCards),
		"shuffleSeedHash":   hexBytes(h.ShuffleSeedHash[:]),
		"shuffleSeed":       h.ShuffleSeed,
		"deckNonce":         h.DeckNonce,
		"actionTimeoutAt":   isoMillisPtr(h.ActionTimeoutAt),
		"startedAt":         isoMillis(h.StartedAt),
		"completedAt":       isoMillisPtr(h.CompletedAt),
		"players":           playerRows,
	}
}

func cardStringsExported(ids []uint8) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = cards.Card(id).String()
	}
	return out
}

func (s *Server) tableIDFromQuery(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get("tableId"), 10, 64)
	if err != nil {
		return 0, apperr.Validationf("tableId is required")
	}
	return id, nil
}

func (s *Server) handleCurrentHand(w http.ResponseWriter, r *http.Request, wallet string) {
	tableID, err := s.tableIDFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h, players, err := s.hand.CurrentHand(r.Context(), tableID)
	if err != nil {
		writeError(w, err)
		return
	}
	if h == nil {
		writeJSON(w, http.StatusOK, M{"hand": nil})
		return
	}
	writeJSON(w, http.StatusOK, M{"hand": handJSON(h, players, wallet)})
}

func (s *Server) handleWatchCurrentHand(w http.ResponseWriter, r *http.Request) {
	tableID, err := s.tableIDFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h, players, err := s.hand.CurrentHand(r.Context(), tableID)
	if err != nil {
		writeError(w, err)
		return
	}
	if h == nil {
		writeJSON(w, http.StatusOK, M{"hand": nil})
		return
	}
	writeJSON(w, http.StatusOK, M{"hand": handJSON(h, players, "")})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, wallet string) {
	var body struct {
		TableID    int64  `json:"tableId"`
		Action     string `json:"action"`
		AmountGwei uint64 `json:"amountGwei"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Validationf("malformed request body"))
		return
	}
	h, _, err := s.hand.CurrentHand(r.Context(), body.TableID)
	if err != nil {
		writeError(w, err)
		return
	}
	if h == nil {
		writeError(w, apperr.NotFoundf("no hand in progress at table %d", body.TableID))
		return
	}
	if err := s.hand.Action(r.Context(), wallet, hand.ActionInput{
		HandID: h.ID, ActionType: domain.ActionType(body.Action), AmountGwei: body.AmountGwei,
	}); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.hand.MaybeStartHand(r.Context(), body.TableID); err != nil {
		s.log.Warn().Err(err).Int64("tableId", body.TableID).Msg("maybe-start after action")
	}
	writeJSON(w, http.StatusOK, M{"ok": true})
}
