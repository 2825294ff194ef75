// Package httpapi wires the core's services onto the inbound HTTP surface
// of §6: a gorilla/mux router with rs/cors applied, JSON in and out, and a
// uniform error envelope mapped from apperr.Kind.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/cloutcards/pokerhouse/internal/chainbridge"
	"github.com/cloutcards/pokerhouse/internal/config"
	"github.com/cloutcards/pokerhouse/internal/distributor"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/hand"
	"github.com/cloutcards/pokerhouse/internal/signer"
	"github.com/cloutcards/pokerhouse/internal/table"
	"github.com/cloutcards/pokerhouse/internal/views"
	"github.com/cloutcards/pokerhouse/internal/withdrawal"
)

type Server struct {
	cfg        *config.Config
	table      *table.Service
	hand       *hand.Service
	escrow     *escrow.Ledger
	withdrawal *withdrawal.Service
	signer     *signer.Signer
	views      *views.Service
	dist       *distributor.Distributor
	chain      *chainbridge.Bridge // nil when the chain bridge is disabled
	log        zerolog.Logger
}

func New(cfg *config.Config, tableSvc *table.Service, handSvc *hand.Service, ledger *escrow.Ledger,
	withdrawalSvc *withdrawal.Service, sgn *signer.Signer, viewsSvc *views.Service,
	dist *distributor.Distributor, chain *chainbridge.Bridge, logger zerolog.Logger) *Server {
	return &Server{
		cfg: cfg, table: tableSvc, hand: handSvc, escrow: ledger, withdrawal: withdrawalSvc,
		signer: sgn, views: viewsSvc, dist: dist, chain: chain,
		log: logger.With().Str("component", "httpapi").Logger(),
	}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/admins", s.handleAdmins).Methods(http.MethodGet)
	r.HandleFunc("/sessionMessage", s.handleSessionMessage).Methods(http.MethodGet)
	r.HandleFunc("/tee/publicKey", s.handleTeePublicKey).Methods(http.MethodGet)

	r.HandleFunc("/pokerTables", s.handlePokerTables).Methods(http.MethodGet)
	r.HandleFunc("/createTable", s.requireAdmin(s.handleCreateTable)).Methods(http.MethodPost)
	r.HandleFunc("/admin/tables/{id}/status", s.requireAdmin(s.handleUpdateTableStatus)).Methods(http.MethodPost)
	r.HandleFunc("/tablePlayers", s.handleTablePlayers).Methods(http.MethodGet)

	r.HandleFunc("/joinTable", s.requireWallet(s.handleJoinTable)).Methods(http.MethodPost)
	r.HandleFunc("/standUp", s.requireWallet(s.handleStandUp)).Methods(http.MethodPost)
	r.HandleFunc("/rebuy", s.requireWallet(s.handleRebuy)).Methods(http.MethodPost)

	r.HandleFunc("/currentHand", s.requireWallet(s.handleCurrentHand)).Methods(http.MethodGet)
	r.HandleFunc("/watchCurrentHand", s.handleWatchCurrentHand).Methods(http.MethodGet)
	r.HandleFunc("/action", s.requireWallet(s.handleAction)).Methods(http.MethodPost)

	r.HandleFunc("/playerEscrowBalance", s.requireWallet(s.handleEscrowBalance)).Methods(http.MethodGet)
	r.HandleFunc("/signEscrowWithdrawal", s.requireWallet(s.handleSignWithdrawal)).Methods(http.MethodPost)

	r.HandleFunc("/events", s.requireAdmin(s.handleEventsTail)).Methods(http.MethodGet)
	r.HandleFunc("/api/verify/events", s.handleVerifyEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/tables/{tableId}/events", s.handleTableStream).Methods(http.MethodGet)

	r.HandleFunc("/admin/reprocessEvents", s.requireAdmin(s.handleReprocessEvents)).Methods(http.MethodPost)
	r.HandleFunc("/api/accounting/solvency", s.requireAdmin(s.handleSolvency)).Methods(http.MethodGet)
	r.HandleFunc("/api/verify/stats", s.handleVerifyStats).Methods(http.MethodGet)
	r.HandleFunc("/api/verify/activity", s.handleVerifyActivity).Methods(http.MethodGet)
	r.HandleFunc("/api/tables/{id}/handHistory", s.handleHandHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/hands/{id}/events", s.handleHandEvents).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.CorsOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
