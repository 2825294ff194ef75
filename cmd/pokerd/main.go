package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cloutcards/pokerhouse/internal/chainbridge"
	"github.com/cloutcards/pokerhouse/internal/config"
	"github.com/cloutcards/pokerhouse/internal/db"
	"github.com/cloutcards/pokerhouse/internal/distributor"
	"github.com/cloutcards/pokerhouse/internal/escrow"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
	"github.com/cloutcards/pokerhouse/internal/hand"
	"github.com/cloutcards/pokerhouse/internal/httpapi"
	"github.com/cloutcards/pokerhouse/internal/scheduler"
	"github.com/cloutcards/pokerhouse/internal/signer"
	"github.com/cloutcards/pokerhouse/internal/table"
	"github.com/cloutcards/pokerhouse/internal/views"
	"github.com/cloutcards/pokerhouse/internal/withdrawal"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:   "pokerd",
		Short: "trusted backend for the on-chain poker service",
	}
	root.AddCommand(newServeCmd(logger))
	root.AddCommand(newReprocessCmd(logger))

	if err := root.Execute(); err != nil {
		logger.Fatal().Err(err).Msg("pokerd exited")
	}
}

// wiring is every long-lived component the core needs, assembled once by
// bootstrap and shared between the serve and reprocess commands.
type wiring struct {
	cfg   *config.Config
	table *table.Service
	hand  *hand.Service
	esc   *escrow.Ledger
	wd    *withdrawal.Service
	sgn   *signer.Signer
	views *views.Service
	dist  *distributor.Distributor
	chain *chainbridge.Bridge
}

func bootstrap(ctx context.Context, logger zerolog.Logger) (*wiring, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	sgn, err := signer.New(cfg.Mnemonic, cfg.ChainID)
	if err != nil {
		return nil, err
	}

	log := eventlog.New(conn, sgn, big.NewInt(cfg.ChainID), cfg.TeeVersion)
	escLedger := escrow.New(conn, log)
	tableSvc := table.New(conn, escLedger, log)
	houseWallet := strings.ToLower(sgn.PublicKey().Hex())
	handSvc := hand.New(conn, escLedger, log, tableSvc, houseWallet)

	chainBridge, err := chainbridge.Dial(cfg.RPCURL, cfg.ContractAddress, escLedger, logger)
	if err != nil {
		return nil, err
	}

	var digestComputer withdrawal.DigestComputer
	if chainBridge != nil {
		digestComputer = chainBridge
	}
	wd := withdrawal.New(escLedger, log, sgn, digestComputer)

	var balanceReader views.ContractBalanceReader
	if chainBridge != nil {
		balanceReader = chainBridge
	}
	viewsSvc := views.New(conn, log, escLedger, tableSvc, balanceReader)

	dist := distributor.New(cfg.DatabaseURL, log, logger)

	return &wiring{cfg: cfg, table: tableSvc, hand: handSvc, esc: escLedger, wd: wd, sgn: sgn, views: viewsSvc, dist: dist, chain: chainBridge}, nil
}

func newServeCmd(logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API, schedulers, chain bridge, and event distributor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			w, err := bootstrap(ctx, logger)
			if err != nil {
				return err
			}

			sched := scheduler.New(w.table, w.hand, logger)
			go sched.Run(ctx)

			if w.chain != nil {
				go w.chain.Run(ctx)
			} else {
				logger.Warn().Msg("chain bridge disabled, no CLOUTCARDS_CONTRACT_ADDRESS configured")
			}

			go func() {
				if err := w.dist.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("event distributor stopped")
				}
			}()

			srv := httpapi.New(w.cfg, w.table, w.hand, w.esc, w.wd, w.sgn, w.views, w.dist, w.chain, logger)
			httpServer := &http.Server{
				Addr:         fmt.Sprintf(":%d", w.cfg.AppPort),
				Handler:      srv.Router(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 0, // SSE streams hold the connection open indefinitely
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			logger.Info().Int("port", w.cfg.AppPort).Msg("listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}

func newReprocessCmd(logger zerolog.Logger) *cobra.Command {
	var fromBlock, toBlock uint64
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "replay a block range of chain events through the escrow ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := bootstrap(ctx, logger)
			if err != nil {
				return err
			}
			if w.chain == nil {
				return fmt.Errorf("chain bridge is disabled, nothing to reprocess")
			}
			var to *uint64
			if toBlock != 0 {
				to = &toBlock
			}
			summary, err := w.chain.ReprocessEvents(ctx, fromBlock, to, dryRun)
			if err != nil {
				return err
			}
			for status, count := range summary.Counts {
				logger.Info().Str("status", string(status)).Int("count", count).Msg("reprocess summary")
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&fromBlock, "from-block", 0, "first block to replay")
	cmd.Flags().Uint64Var(&toBlock, "to-block", 0, "last block to replay (0 = chain head)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be ingested without writing")
	return cmd
}
