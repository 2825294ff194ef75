package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloutcards/pokerhouse/internal/config"
)

func newTestServer(admins ...string) *Server {
	return &Server{cfg: &config.Config{AdminAddresses: admins}}
}

func TestIsAdminIsCaseInsensitive(t *testing.T) {
	s := newTestServer("0xDE0B295669A9FD93D5F28D9EC85E40F4CB697BAE")
	if !s.isAdmin("0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae") {
		t.Fatalf("expected admin match regardless of case")
	}
	if s.isAdmin("0x1111111111111111111111111111111111111111") {
		t.Fatalf("did not expect a non-admin address to match")
	}
}

func TestRequireWalletRejectsMissingHeader(t *testing.T) {
	s := newTestServer()
	called := false
	h := s.requireWallet(func(w http.ResponseWriter, r *http.Request, wallet string) {
		called = true
	})
	req := httptest.NewRequest(http.MethodGet, "/currentHand", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	if called {
		t.Fatalf("did not expect the handler to run without a wallet header")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAdminFallsBackToWalletHeader(t *testing.T) {
	s := newTestServer("0x1111111111111111111111111111111111111111")
	called := false
	h := s.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	req := httptest.NewRequest(http.MethodPost, "/createTable", nil)
	req.Header.Set(headerWallet, "0x1111111111111111111111111111111111111111")
	rec := httptest.NewRecorder()
	h(rec, req)
	if !called {
		t.Fatalf("expected admin handler to run when wallet header is an admin address")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d want %d", rec.Code, http.StatusOK)
	}
}
