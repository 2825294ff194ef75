//go:build integration

package httpapi_test

import (
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cloutcards/pokerhouse/internal/config"
	"github.com/cloutcards/pokerhouse/internal/dbtest"
	"github.com/cloutcards/pokerhouse/internal/distributor"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/hand"
	"github.com/cloutcards/pokerhouse/internal/httpapi"
	"github.com/cloutcards/pokerhouse/internal/signer"
	"github.com/cloutcards/pokerhouse/internal/table"
	"github.com/cloutcards/pokerhouse/internal/views"
)

const testMnemonic = "test test test test test test test test test test test junk"
const adminWallet = "0x1111111111111111111111111111111111111111"

func TestHealthAndCreateTable(t *testing.T) {
	conn := dbtest.Open(t)
	sgn, err := signer.New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	log := eventlog.New(conn, sgn, big.NewInt(31337), 1)
	ledger := escrow.New(conn, log)
	tableSvc := table.New(conn, ledger, log)
	handSvc := hand.New(conn, ledger, log, tableSvc, "0xhouse0000000000000000000000000000000000")
	viewsSvc := views.New(conn, log, ledger, tableSvc, nil)
	dist := distributor.New("", log, zerolog.Nop())
	cfg := &config.Config{AdminAddresses: []string{adminWallet}, CorsOrigin: "*"}
	srv := httpapi.New(cfg, tableSvc, handSvc, ledger, nil, sgn, viewsSvc, dist, nil, zerolog.Nop())
	router := srv.Router()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("GET /health: got status %d", rec.Code)
	}

	body := `{"name":"api-table","minimumBuyIn":"1","maximumBuyIn":"1000000000000","smallBlind":"1","bigBlind":"2","maxSeatCount":6,"actionTimeoutSeconds":30,"handStartDelaySeconds":5}`

	req = httptest.NewRequest("POST", "/createTable", strings.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Fatalf("POST /createTable without admin header: got status %d want 401", rec.Code)
	}

	req = httptest.NewRequest("POST", "/createTable", strings.NewReader(body))
	req.Header.Set("X-Admin-Address", adminWallet)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("POST /createTable: got status %d, body %s", rec.Code, rec.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created table: %v", err)
	}
	if created["name"] != "api-table" {
		t.Fatalf("got %v want api-table", created["name"])
	}

	req = httptest.NewRequest("GET", "/pokerTables", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("GET /pokerTables: got status %d", rec.Code)
	}
	var listed struct {
		Tables []map[string]any `json:"tables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode pokerTables: %v", err)
	}
	if len(listed.Tables) != 1 {
		t.Fatalf("got %d tables want 1", len(listed.Tables))
	}
}

func TestEscrowBalanceRequiresWalletIdentity(t *testing.T) {
	conn := dbtest.Open(t)
	sgn, err := signer.New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	log := eventlog.New(conn, sgn, big.NewInt(31337), 1)
	ledger := escrow.New(conn, log)
	tableSvc := table.New(conn, ledger, log)
	handSvc := hand.New(conn, ledger, log, tableSvc, "0xhouse0000000000000000000000000000000000")
	viewsSvc := views.New(conn, log, ledger, tableSvc, nil)
	dist := distributor.New("", log, zerolog.Nop())
	cfg := &config.Config{AdminAddresses: []string{adminWallet}, CorsOrigin: "*"}
	srv := httpapi.New(cfg, tableSvc, handSvc, ledger, nil, sgn, viewsSvc, dist, nil, zerolog.Nop())
	router := srv.Router()

	req := httptest.NewRequest("GET", "/playerEscrowBalance?walletAddress=0x1111111111111111111111111111111111111111", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Fatalf("got status %d want 401 without X-Wallet-Address", rec.Code)
	}

	req.Header.Set("X-Wallet-Address", "0x1111111111111111111111111111111111111111")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("got status %d want 200 with a valid wallet header, body %s", rec.Code, rec.Body.String())
	}
}
