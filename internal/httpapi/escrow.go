package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/walletaddr"
)

func balanceJSON(b *domain.EscrowBalance) M {
	return M{
		"walletAddress":             walletaddr.Checksum(b.Wallet),
		"balanceGwei":               bigString(b.BalanceGwei),
		"nextWithdrawalNonce":       bigString(b.NextWithdrawalNonce),
		"withdrawalSignatureExpiry": isoMillisPtr(b.WithdrawalSignatureExpiry),
		"pendingWithdrawal":         b.WithdrawalSignatureExpiry != nil,
	}
}

func (s *Server) handleEscrowBalance(w http.ResponseWriter, r *http.Request, wallet string) {
	addr := r.URL.Query().Get("walletAddress")
	if !walletaddr.Valid(addr) {
		writeError(w, apperr.Validationf("walletAddress is required"))
		return
	}
	bal, err := s.escrow.GetWithPending(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON(bal))
}

func (s *Server) handleSignWithdrawal(w http.ResponseWriter, r *http.Request, wallet string) {
	var body struct {
		AmountGwei    string `json:"amountGwei"`
		ExpirySeconds int64  `json:"expirySeconds"`
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
	if body.ExpirySeconds <= 0 {
		body.ExpirySeconds = 300
	}
	res, err := s.withdrawal.SignWithdrawal(r.Context(), wallet, wallet, amount, body.ExpirySeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, M{
		"nonce":  bigString(res.Nonce),
		"expiry": isoMillis(res.Expiry),
		"v":      res.Sig.V,
		"r":      hexBytes(res.Sig.R[:]),
		"s":      hexBytes(res.Sig.S[:]),
	})
}
