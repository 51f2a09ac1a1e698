package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron"
)

// MaintenanceSchedule configures the cron expressions driving embed,
// consolidate, and prune. Empty expressions disable that job, matching
// spec.md's "maintenance is configuration-driven" posture.
type MaintenanceSchedule struct {
	EmbedCron       string // e.g. "*/5 * * * *"
	ConsolidateCron string // e.g. "0 */6 * * *"
	PruneCron       string // e.g. "0 3 * * *"
	PruneHorizonDays int
}

// Maintenance runs Embed/Consolidate/Prune on the configured cron
// expressions, mirroring the teacher's ticker-driven Scheduler.Run loop but
// cron-expressed, since sub-daily/weekly cadences don't fit a fixed
// interval well.
type Maintenance struct {
	engine *Engine
	sched  MaintenanceSchedule
	logger *slog.Logger
	cron   *cron.Cron
}

// NewMaintenance builds a Maintenance runner. Call Start to begin ticking,
// Stop to halt.
func NewMaintenance(engine *Engine, sched MaintenanceSchedule, logger *slog.Logger) *Maintenance {
	return &Maintenance{engine: engine, sched: sched, logger: logger, cron: cron.New()}
}

// Start registers the configured jobs and begins the cron scheduler.
// Returns an error if any cron expression fails to parse.
func (m *Maintenance) Start(ctx context.Context) error {
	if m.sched.EmbedCron != "" {
		if err := m.cron.AddFunc(m.sched.EmbedCron, func() { m.runEmbed(ctx) }); err != nil {
			return err
		}
	}
	if m.sched.ConsolidateCron != "" {
		if err := m.cron.AddFunc(m.sched.ConsolidateCron, func() { m.runConsolidate() }); err != nil {
			return err
		}
	}
	if m.sched.PruneCron != "" {
		if err := m.cron.AddFunc(m.sched.PruneCron, func() { m.runPrune() }); err != nil {
			return err
		}
	}
	m.logger.Info("retrieval maintenance scheduler started",
		"embed_cron", m.sched.EmbedCron, "consolidate_cron", m.sched.ConsolidateCron, "prune_cron", m.sched.PruneCron)
	m.cron.Start()
	return nil
}

// Stop halts the cron scheduler; a job already running is not waited for.
func (m *Maintenance) Stop() {
	m.cron.Stop()
	m.logger.Info("retrieval maintenance scheduler stopped")
}

func (m *Maintenance) runEmbed(ctx context.Context) {
	result, err := m.engine.Embed(ctx, Filters{}, false, false)
	if err != nil {
		m.logger.Error("maintenance embed failed", "error", err)
		return
	}
	m.logger.Info("maintenance embed complete", "candidates", result.Candidates, "embedded", result.Embedded, "failed", result.Failed)
}

func (m *Maintenance) runConsolidate() {
	result, err := m.engine.Consolidate(Filters{}, false)
	if err != nil {
		m.logger.Error("maintenance consolidate failed", "error", err)
		return
	}
	m.logger.Info("maintenance consolidate complete", "clusters", result.ClustersFound, "superseded", result.GlyphsSuperseded)
}

func (m *Maintenance) runPrune() {
	horizonDays := m.sched.PruneHorizonDays
	if horizonDays <= 0 {
		horizonDays = 90
	}
	result, err := m.engine.store.Prune(time.Duration(horizonDays)*24*time.Hour, false)
	if err != nil {
		m.logger.Error("maintenance prune failed", "error", err)
		return
	}
	m.logger.Info("maintenance prune complete", "candidates", result.Candidates, "deleted", result.Deleted)
}
