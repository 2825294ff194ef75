package httpapi

import (
	"net/http"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/walletaddr"
)

// Identity is established by external middleware (§6 "auth handled by
// external middleware the core trusts") and forwarded as headers; the core
// only reads and normalizes them.
const (
	headerWallet = "X-Wallet-Address"
	headerAdmin  = "X-Admin-Address"
)

func (s *Server) isAdmin(addr string) bool {
	norm := walletaddr.Normalize(addr)
	for _, a := range s.cfg.AdminAddresses {
		if walletaddr.Normalize(a) == norm {
			return true
		}
	}
	return false
}

// requireWallet rejects requests missing a syntactically valid wallet
// identity header before the handler runs.
func (s *Server) requireWallet(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet := r.Header.Get(headerWallet)
		if !walletaddr.Valid(wallet) {
			writeError(w, apperr.New(apperr.Unauthorized, "missing or invalid wallet identity"))
			return
		}
		next(w, r, walletaddr.Normalize(wallet))
	}
}

// requireAdmin rejects requests whose identity isn't in ADMIN_ADDRESSES.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr := r.Header.Get(headerAdmin)
		if addr == "" {
			addr = r.Header.Get(headerWallet)
		}
		if !s.isAdmin(addr) {
			writeError(w, apperr.New(apperr.Unauthorized, "admin identity required"))
			return
		}
		next(w, r)
	}
}
