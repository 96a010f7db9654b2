// Package cleanup removes stale waiting trades on a schedule. The sweep is
// the only caller allowed to hard-delete records outside a reconcile cycle,
// and it always consults the protection registry first.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"chart-advisor/internal/database"
	"chart-advisor/internal/events"
	"chart-advisor/internal/logging"
	"chart-advisor/internal/protection"

	"github.com/robfig/cron/v3"
)

// DefaultMaxAge is how long a waiting trade may sit untriggered before the
// sweep removes it.
const DefaultMaxAge = 72 * time.Hour

// DefaultSchedule runs the sweep every 15 minutes.
const DefaultSchedule = "*/15 * * * *"

// Config holds sweeper tunables.
type Config struct {
	// MaxAge is the stale cutoff for waiting trades.
	MaxAge time.Duration
	// Schedule is a cron expression for the sweep cadence.
	Schedule string
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Examined int `json:"examined"`
	Deleted  int `json:"deleted"`
	Blocked  int `json:"blocked"`
	Failed   int `json:"failed"`
}

// Sweeper deletes stale waiting trades that are not protected.
type Sweeper struct {
	store    database.TradeStore
	registry *protection.Registry
	bus      *events.Bus
	cfg      Config
	cron     *cron.Cron
	logger   *logging.Logger
}

// NewSweeper creates a sweeper. bus may be nil. Zero-value config fields
// get defaults.
func NewSweeper(store database.TradeStore, registry *protection.Registry, bus *events.Bus, cfg Config) *Sweeper {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	return &Sweeper{
		store:    store,
		registry: registry,
		bus:      bus,
		cfg:      cfg,
		logger:   logging.WithComponent("cleanup"),
	}
}

// Start schedules the recurring sweep. It returns an error only when the
// cron expression cannot be parsed.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.WithError(err).Error("cleanup sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info("cleanup sweep scheduled", "schedule", s.cfg.Schedule, "max_age", s.cfg.MaxAge.String())
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one pass: every waiting trade older than MaxAge is deleted
// unless the protection registry refuses. Refusals are logged and counted,
// never silently dropped.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().Add(-s.cfg.MaxAge)
	stale, err := s.store.ListStaleWaiting(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale trades: %w", err)
	}

	result := &SweepResult{Examined: len(stale)}
	for _, trade := range stale {
		log := logging.CleanupContext(trade.ID, trade.Ticker, trade.Timeframe)

		if err := s.registry.Guard(trade.ID); err != nil {
			result.Blocked++
			log.WithError(err).Warn("stale trade protected, skipping delete")
			s.publish(events.CleanupBlocked, trade, err.Error())
			continue
		}

		if err := s.store.DeleteTrade(ctx, trade.ID); err != nil {
			result.Failed++
			log.WithError(err).Error("failed to delete stale trade")
			continue
		}

		result.Deleted++
		log.Info("stale waiting trade deleted", "age", time.Since(trade.CreatedAt).String())
		s.publish(events.CleanupDeleted, trade, "")
	}

	if result.Examined > 0 {
		s.logger.Info("cleanup sweep finished",
			"examined", result.Examined, "deleted", result.Deleted,
			"blocked", result.Blocked, "failed", result.Failed)
	}
	return result, nil
}

func (s *Sweeper) publish(eventType events.Type, trade *database.TradeRecord, reason string) {
	if s.bus == nil {
		return
	}
	data := map[string]interface{}{"trade": trade}
	if reason != "" {
		data["reason"] = reason
	}
	s.bus.Publish(events.Event{Type: eventType, Data: data})
}
