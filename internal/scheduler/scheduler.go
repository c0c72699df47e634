// Package scheduler runs periodic store maintenance: sweeping expired
// reference-signal rows and compacting the database.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/pageforge/pageforge/internal/store"
)

// Default schedules. The sweep runs often because reference rows go stale
// within minutes; vacuum is a daily housekeeping pass.
const (
	DefaultSweepSpec  = "*/10 * * * *"
	DefaultVacuumSpec = "30 3 * * *"
)

// Maintenance schedules recurring cleanup jobs against the store.
type Maintenance struct {
	store  store.Store
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	started bool
}

// NewMaintenance creates a maintenance scheduler with the given cron specs
// (defaults applied when empty).
func NewMaintenance(s store.Store, logger *slog.Logger, sweepSpec, vacuumSpec string) (*Maintenance, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sweepSpec == "" {
		sweepSpec = DefaultSweepSpec
	}
	if vacuumSpec == "" {
		vacuumSpec = DefaultVacuumSpec
	}

	m := &Maintenance{
		store:  s,
		logger: logger,
		cron:   cron.New(),
	}
	if _, err := m.cron.AddFunc(sweepSpec, m.sweepReferences); err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", sweepSpec, err)
	}
	if _, err := m.cron.AddFunc(vacuumSpec, m.vacuum); err != nil {
		return nil, fmt.Errorf("vacuum schedule %q: %w", vacuumSpec, err)
	}
	return m, nil
}

// Start launches the schedule. Idempotent.
func (m *Maintenance) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.cron.Start()
	m.started = true
	m.logger.Info("maintenance scheduler started")
}

// Stop halts the schedule and waits for running jobs to finish.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.started = false
	m.logger.Info("maintenance scheduler stopped")
}

// sweepReferences deletes expired reference-signal rows.
func (m *Maintenance) sweepReferences() {
	ctx := context.Background()
	purged, err := m.store.PurgeExpiredReferences(ctx)
	if err != nil {
		m.logger.Error("reference sweep failed", slog.String("error", err.Error()))
		return
	}
	if purged > 0 {
		m.logger.Info("expired reference rows purged", slog.Int64("count", purged))
	}
}

// vacuum compacts the database.
func (m *Maintenance) vacuum() {
	ctx := context.Background()
	if err := m.store.Vacuum(ctx); err != nil {
		m.logger.Error("vacuum failed", slog.String("error", err.Error()))
	}
}
