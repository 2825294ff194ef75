// Package scheduler runs component G's background sweeps on one shared
// ticker: action-timeout auto-fold, delayed hand start and idle-table
// quiescence. They are opportunistic sweeps over every active table,
// tolerant of races against concurrently-arriving player actions.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/hand"
	"github.com/cloutcards/pokerhouse/internal/table"
)

const (
	tickPeriod = 1500 * time.Millisecond
	// quiescenceFactor matches SPEC_FULL.md's idle-table sweep: dormant once
	// a table has had nobody seated for handStartDelaySeconds * 20.
	quiescenceFactor = 20
)

type Scheduler struct {
	table *table.Service
	hand  *hand.Service
	log   zerolog.Logger
}

func New(tableSvc *table.Service, handSvc *hand.Service, logger zerolog.Logger) *Scheduler {
	return &Scheduler{table: tableSvc, hand: handSvc, log: logger.With().Str("component", "scheduler").Logger()}
}

// Run ticks every ~1.5s until ctx is cancelled, sweeping every table for an
// expired action window and for an overdue hand start.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	tables, err := s.table.ListTables(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("list tables for scheduler sweep")
		return
	}
	for _, t := range tables {
		if !t.IsActive {
			continue
		}
		s.sweepTimeout(ctx, t.ID)
		s.sweepHandStart(ctx, t.ID)
		s.sweepQuiescence(ctx, t)
	}
}

// sweepQuiescence logs a table as dormant once it has gone quiet for
// handStartDelaySeconds * quiescenceFactor with nobody seated. It never
// mutates isActive, which stays an admin-only transition (§4.5).
func (s *Scheduler) sweepQuiescence(ctx context.Context, t *domain.PokerTable) {
	sessions, err := s.table.ActiveSessions(ctx, t.ID)
	if err != nil {
		s.log.Warn().Err(err).Int64("tableId", t.ID).Msg("quiescence sweep: list active sessions")
		return
	}
	if len(sessions) > 0 {
		return
	}
	lastActivity, ok, err := s.table.LastSeatActivityAt(ctx, t.ID)
	if err != nil {
		s.log.Warn().Err(err).Int64("tableId", t.ID).Msg("quiescence sweep: load last seat activity")
		return
	}
	if !ok {
		return
	}
	threshold := time.Duration(t.HandStartDelaySeconds*quiescenceFactor) * time.Second
	if time.Since(lastActivity) < threshold {
		return
	}
	s.log.Info().Int64("tableId", t.ID).Time("lastActivity", lastActivity).Msg("table is dormant")
}

func (s *Scheduler) sweepTimeout(ctx context.Context, tableID int64) {
	folded, err := s.hand.ExpireIfTimedOut(ctx, tableID)
	if err != nil {
		// A race against a just-in-time player action surfaces as Conflict
		// or NotFound here; both are expected and not worth logging above
		// Debug (§7 "Timeouts from the scheduler are idempotent").
		if apperr.Is(err, apperr.Conflict) || apperr.Is(err, apperr.NotFound) {
			s.log.Debug().Err(err).Int64("tableId", tableID).Msg("timeout sweep raced a player action")
			return
		}
		s.log.Warn().Err(err).Int64("tableId", tableID).Msg("action-timeout sweep")
		return
	}
	if folded {
		s.log.Debug().Int64("tableId", tableID).Msg("auto-folded timed-out seat")
	}
}

func (s *Scheduler) sweepHandStart(ctx context.Context, tableID int64) {
	h, err := s.hand.MaybeStartHand(ctx, tableID)
	if err != nil {
		s.log.Warn().Err(err).Int64("tableId", tableID).Msg("delayed hand-start sweep")
		return
	}
	if h != nil {
		s.log.Debug().Int64("tableId", tableID).Int64("handId", h.ID).Msg("started hand")
	}
}
