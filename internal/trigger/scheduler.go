// Package trigger implements the cron-based maintenance schedule: periodic
// history rotation and audit-record retention, independent of query traffic.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/foyer-io/foyer/internal/audit"
	"github.com/foyer-io/foyer/internal/history"
)

// Default maintenance schedule: daily at 03:00 local time, well away from
// typical household activity.
const DefaultMaintenanceCron = "0 3 * * *"

// Scheduler runs the maintenance jobs on a cron schedule.
type Scheduler struct {
	cron          *cron.Cron
	history       *history.Store
	records       *audit.Store
	retentionDays int
}

// NewScheduler creates a scheduler over the history store and audit records.
// Cron expressions use the standard 5-field format: minute hour day-of-month
// month day-of-week.
func NewScheduler(hist *history.Store, records *audit.Store, retentionDays int) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		history:       hist,
		records:       records,
		retentionDays: retentionDays,
	}
}

// Register adds the maintenance job under the given cron expression.
func (s *Scheduler) Register(spec string) error {
	if spec == "" {
		spec = DefaultMaintenanceCron
	}
	_, err := s.cron.AddFunc(spec, s.runMaintenance)
	if err != nil {
		return fmt.Errorf("registering maintenance cron %q: %w", spec, err)
	}
	return nil
}

// runMaintenance enforces the retention bounds. The history rotation here is
// the second trigger for the same invariant the query path checks; a quiet
// house must not accumulate a stale transcript just because nobody spoke.
func (s *Scheduler) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log.Info().Msg("maintenance_started")

	s.history.Rotate()
	if err := s.history.Persist(); err != nil {
		log.Error().Err(err).Msg("history_persist_failed")
	}

	if s.records != nil {
		purged, err := s.records.PurgeOlderThan(ctx, s.retentionDays)
		if err != nil {
			log.Error().Err(err).Msg("audit_purge_failed")
		} else if purged > 0 {
			log.Info().Int64("purged", purged).Int("retention_days", s.retentionDays).Msg("audit_records_purged")
		}
	}

	log.Info().Msg("maintenance_finished")
}

// Start begins executing registered cron jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries (for testing).
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
