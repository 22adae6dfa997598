package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/setupdesk/setup-desk/internal/store"
)

var sweepCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// sweeper periodically fails pending requests that were abandoned before
// reaching a terminal state, for example after a crash mid-install.
type sweeper struct {
	store      *store.Store
	schedule   cron.Schedule
	staleAfter time.Duration
	logger     *slog.Logger
}

func newSweeper(sqlStore *store.Store, cronExpr string, staleAfter time.Duration, logger *slog.Logger) (*sweeper, error) {
	cronExpr = strings.Join(strings.Fields(cronExpr), " ")
	if cronExpr == "" {
		cronExpr = "*/15 * * * *"
	}
	schedule, err := sweepCronParser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule: %w", err)
	}
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &sweeper{
		store:      sqlStore,
		schedule:   schedule,
		staleAfter: staleAfter,
		logger:     logger,
	}, nil
}

func (s *sweeper) Start(ctx context.Context) error {
	s.logger.Info("stale request sweeper started", "stale_after", s.staleAfter)
	for {
		next := s.schedule.Next(time.Now().UTC())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("stale request sweeper stopped")
			return nil
		case <-timer.C:
			s.sweep(ctx)
		}
	}
}

func (s *sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.staleAfter)
	swept, err := s.store.FailStalePending(ctx, cutoff)
	if err != nil {
		s.logger.Error("stale request sweep failed", "error", err)
		return
	}
	if swept > 0 {
		s.logger.Info("stale requests failed", "count", swept, "older_than", cutoff)
	}
}
