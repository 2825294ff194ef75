package httpapi

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/table"
	"github.com/cloutcards/pokerhouse/internal/walletaddr"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, M{"status": "ok"})
}

func (s *Server) handleAdmins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, M{"admins": s.cfg.AdminAddresses})
}

func (s *Server) handleSessionMessage(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("address")
	if !walletaddr.Valid(addr) {
		writeError(w, apperr.Validationf("address is required"))
		return
	}
	msg := fmt.Sprintf("Sign on to Clout Cards with address %s", walletaddr.Checksum(addr))
	writeJSON(w, http.StatusOK, M{"message": msg})
}

func (s *Server) handleTeePublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, M{"publicKey": s.signer.PublicKey().Hex()})
}

func parseBigString(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, apperr.Validationf("expected a decimal integer string, got %q", raw)
	}
	return v, nil
}

func tableJSON(t *domain.PokerTable, nextHandAt *string) M {
	return M{
		"id":                    t.ID,
		"name":                  t.Name,
		"minimumBuyIn":          bigString(t.MinimumBuyIn),
		"maximumBuyIn":          bigString(t.MaximumBuyIn),
		"smallBlind":            bigString(t.SmallBlind),
		"bigBlind":              bigString(t.BigBlind),
		"perHandRakeBps":        t.PerHandRakeBps,
		"maxSeatCount":          t.MaxSeatCount,
		"isActive":              t.IsActive,
		"actionTimeoutSeconds":  t.ActionTimeoutSeconds,
		"handStartDelaySeconds": t.HandStartDelaySeconds,
		"nextHandAt":            nextHandAt,
	}
}

func (s *Server) handlePokerTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.table.ListTables(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]M, 0, len(tables))
	for _, t := range tables {
		var nextHandAt *string
		if next, err := s.hand.NextHandEstimate(r.Context(), t); err == nil && next != nil {
			v := isoMillis(*next)
			nextHandAt = &v
		}
		out = append(out, tableJSON(t, nextHandAt))
	}
	writeJSON(w, http.StatusOK, M{"tables": out})
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name                  string `json:"name"`
		MinimumBuyIn          string `json:"minimumBuyIn"`
		MaximumBuyIn          string `json:"maximumBuyIn"`
		SmallBlind            string `json:"smallBlind"`
		BigBlind              string `json:"bigBlind"`
		PerHandRakeBps        int    `json:"perHandRakeBps"`
		MaxSeatCount          int    `json:"maxSeatCount"`
		ActionTimeoutSeconds  int    `json:"actionTimeoutSeconds"`
		HandStartDelaySeconds int    `json:"handStartDelaySeconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Validationf("malformed request body"))
		return
	}
	minBuyIn, err := parseBigString(body.MinimumBuyIn)
	if err != nil {
		writeError(w, err)
		return
	}
	maxBuyIn, err := parseBigString(body.MaximumBuyIn)
	if err != nil {
		writeError(w, err)
		return
	}
	sb, err := parseBigString(body.SmallBlind)
	if err != nil {
		writeError(w, err)
		return
	}
	bb, err := parseBigString(body.BigBlind)
	if err != nil {
		writeError(w, err)
		return
	}

	admin := r.Header.Get(headerAdmin)
	if admin == "" {
		admin = r.Header.Get(headerWallet)
	}
	t, err := s.table.CreateTable(r.Context(), table.CreateTableInput{
		Name: body.Name, MinimumBuyIn: minBuyIn, MaximumBuyIn: maxBuyIn, SmallBlind: sb, BigBlind: bb,
		PerHandRakeBps: body.PerHandRakeBps, MaxSeatCount: body.MaxSeatCount,
		ActionTimeoutSeconds: body.ActionTimeoutSeconds, HandStartDelaySeconds: body.HandStartDelaySeconds,
	}, admin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tableJSON(t, nil))
}

func (s *Server) handleUpdateTableStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, apperr.Validationf("invalid table id"))
		return
	}
	var body struct {
		IsActive bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Validationf("malformed request body"))
		return
	}
	admin := r.Header.Get(headerAdmin)
	if admin == "" {
		admin = r.Header.Get(headerWallet)
	}
	t, err := s.table.UpdateActive(r.Context(), id, body.IsActive, admin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tableJSON(t, nil))
}

func sessionJSON(sess *domain.TableSeatSession) M {
	return M{
		"id":               sess.ID,
		"tableId":          sess.TableID,
		"walletAddress":    walletaddr.Checksum(sess.WalletAddress),
		"seatNumber":       sess.SeatNumber,
		"tableBalanceGwei": bigString(sess.TableBalanceGwei),
		"twitterHandle":    sess.TwitterHandle,
		"twitterAvatarUrl": sess.TwitterAvatarURL,
		"joinedAt":         isoMillis(sess.JoinedAt),
		"leftAt":           isoMillisPtr(sess.LeftAt),
		"isActive":         sess.IsActive,
	}
}

func (s *Server) handleTablePlayers(w http.ResponseWriter, r *http.Request) {
	tableID, err := strconv.ParseInt(r.URL.Query().Get("tableId"), 10, 64)
	if err != nil {
		writeError(w, apperr.Validationf("tableId is required"))
		return
	}
	sessions, err := s.table.ActiveSessions(r.Context(), tableID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]M, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionJSON(sess))
	}
	writeJSON(w, http.StatusOK, M{"players": out})
}

func (s *Server) handleJoinTable(w http.ResponseWriter, r *http.Request, wallet string) {
	var body struct {
		TableID       int64   `json:"tableId"`
		SeatNumber    int     `json:"seatNumber"`
		BuyInGwei     string  `json:"buyInGwei"`
		TwitterHandle *string `json:"twitterHandle"`
		TwitterAvatar *string `json:"twitterAvatarUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Validationf("malformed request body"))
		return
	}
	buyIn, err := parseBigString(body.BuyInGwei)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.table.JoinTable(r.Context(), wallet, table.JoinInput{
		TableID: body.TableID, SeatNumber: body.SeatNumber, BuyInGwei: buyIn,
		TwitterHandle: body.TwitterHandle, TwitterAvatar: body.TwitterAvatar,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.hand.MaybeStartHand(r.Context(), body.TableID); err != nil {
		s.log.Warn().Err(err).Int64("tableId", body.TableID).Msg("maybe-start after join")
	}
	writeJSON(w, http.StatusOK, sessionJSON(sess))
}

func (s *Server) handleStandUp(w http.ResponseWriter, r *http.Request, wallet string) {
	var body struct {
		TableID int64 `json:"tableId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Validationf("malformed request body"))
		return
	}
	if err := s.table.StandUp(r.Context(), wallet, table.StandUpInput{TableID: body.TableID}, s.hand); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, M{"ok": true})
}

func (s *Server) handleRebuy(w http.ResponseWriter, r *http.Request, wallet string) {
	var body struct {
		TableID    int64  `json:"tableId"`
		AmountGwei string `json:"amountGwei"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Validationf("malformed request body"))
		return
	}
	amount, err := parseBigString(body.AmountGwei)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.table.Rebuy(r.Context(), wallet, table.RebuyInput{TableID: body.TableID, AmountGwei: amount}, s.hand)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(sess))
}
