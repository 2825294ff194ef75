package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/views"
	"github.com/cloutcards/pokerhouse/internal/walletaddr"
)

func eventJSON(e *domain.Event) M {
	var player *string
	if e.Player != nil {
		v := walletaddr.Checksum(*e.Player)
		player = &v
	}
	return M{
		"eventId":     e.EventID,
		"blockTs":     isoMillis(e.BlockTs),
		"kind":        string(e.Kind),
		"payload":     rawJSON(e.PayloadJSON),
		"digest":      hexBytes(e.Digest[:]),
		"nonce":       bigString(e.Nonce),
		"player":      player,
		"tableId":     e.TableID,
		"teeVersion":  e.TeeVersion,
		"teePubkey":   e.TeePubkey,
		"ingestedAt":  isoMillis(e.IngestedAt),
	}
}

func (s *Server) handleEventsTail(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	events, err := s.views.TailEvents(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]M, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON(e))
	}
	writeJSON(w, http.StatusOK, M{"events": out})
}

func (s *Server) handleVerifyEvents(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)
	verified, err := s.views.VerifyEvents(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]M, 0, len(verified))
	for _, v := range verified {
		row := eventJSON(v.Event)
		row["signatureValid"] = v.Verified
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, M{"events": out, "page": page, "limit": limit})
}

func (s *Server) handleSolvency(w http.ResponseWriter, r *http.Request) {
	sol, err := s.views.Solvency(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, M{
		"totalEscrowGwei":     bigString(sol.TotalEscrowGwei),
		"totalTableGwei":      bigString(sol.TotalTableGwei),
		"contractBalanceGwei": bigString(sol.ContractBalanceGwei),
		"differenceGwei":      bigString(sol.DifferenceGwei),
		"chainBridgeEnabled":  sol.ChainBridgeEnabled,
	})
}

func (s *Server) handleVerifyStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.views.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, M{
		"totalEvents":     st.TotalEvents,
		"totalHands":      st.TotalHands,
		"completedHands":  st.CompletedHands,
		"activeTables":    st.ActiveTables,
		"totalWallets":    st.TotalWallets,
		"totalVolumeGwei": bigString(st.TotalVolumeGwei),
	})
}

func (s *Server) handleVerifyActivity(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.views.Activity(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]M, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, M{"hourStart": isoMillis(b.HourStart), "handCount": b.HandCount})
	}
	writeJSON(w, http.StatusOK, M{"activity": out})
}

func handSummaryJSON(h views.HandSummary) M {
	players := make([]M, 0, len(h.Players))
	for _, p := range h.Players {
		row := M{
			"seatNumber":     p.SeatNumber,
			"walletAddress":  walletaddr.Checksum(p.WalletAddress),
			"status":         p.Status,
			"totalCommitted": p.TotalCommitted,
		}
		if p.HoleCards != nil {
			row["holeCards"] = p.HoleCards
		}
		players = append(players, row)
	}
	pots := make([]M, 0, len(h.Pots))
	for _, pt := range h.Pots {
		pots = append(pots, M{
			"potNumber":     pt.PotNumber,
			"amountGwei":    pt.AmountGwei,
			"rakeAmountGwei": pt.RakeAmountGwei,
			"eligibleSeats": pt.EligibleSeats,
			"winnerSeats":   pt.WinnerSeats,
		})
	}
	return M{
		"id":              h.ID,
		"tableId":         h.TableID,
		"status":          h.Status,
		"dealerPosition":  h.DealerPosition,
		"communityCards":  h.CommunityCards,
		"shuffleSeedHash": hexBytes(h.ShuffleSeedHash),
		"shuffleSeed":     h.ShuffleSeed,
		"deckNonce":       h.DeckNonce,
		"startedAt":       isoMillis(h.StartedAt),
		"completedAt":     isoMillisPtr(h.CompletedAt),
		"players":         players,
		"pots":            pots,
	}
}

func (s *Server) handleHandHistory(w http.ResponseWriter, r *http.Request) {
	tableID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, apperr.Validationf("invalid table id"))
		return
	}
	limit := queryInt(r, "limit", 20)
	hands, err := s.views.HandHistory(r.Context(), tableID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]M, 0, len(hands))
	for _, h := range hands {
		out = append(out, handSummaryJSON(h))
	}
	writeJSON(w, http.StatusOK, M{"hands": out})
}

func (s *Server) handleHandEvents(w http.ResponseWriter, r *http.Request) {
	handID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, apperr.Validationf("invalid hand id"))
		return
	}
	detail, err := s.views.HandDetail(r.Context(), handID)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := queryInt(r, "limit", 200)
	events, err := s.views.HandEvents(r.Context(), handID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]M, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON(e))
	}
	writeJSON(w, http.StatusOK, M{"hand": handSummaryJSON(*detail), "events": out})
}

func (s *Server) handleReprocessEvents(w http.ResponseWriter, r *http.Request) {
	if s.chain == nil {
		writeError(w, apperr.New(apperr.Conflict, "chain bridge is disabled"))
		return
	}
	from := uint64(queryInt(r, "fromBlock", 0))
	dryRun := r.URL.Query().Get("dryRun") == "true"
	var to *uint64
	if v := r.URL.Query().Get("toBlock"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, apperr.Validationf("invalid toBlock"))
			return
		}
		to = &parsed
	}
	summary, err := s.chain.ReprocessEvents(r.Context(), from, to, dryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func rawJSON(s string) M {
	// payload_json is already canonical JSON; re-decode it into M so it
	// nests naturally in the response instead of being double-encoded.
	var m M
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return M{"_raw": s}
	}
	return m
}
