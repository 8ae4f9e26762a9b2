package cleanup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vidknora/vidknora/internal/logger"
)

// memoryConsolidationStaleThreshold mirrors §4.12.4: conversations
// with no activity in the last 24h are eligible for consolidation.
const memoryConsolidationStaleThreshold = 24 * time.Hour

// Scheduler drives Jobs on a fixed cron schedule (spec §4.12).
type Scheduler struct {
	jobs *Jobs
	cron *cron.Cron
}

// NewScheduler constructs a Scheduler over jobs. Start must be called
// to begin running the registered entries.
func NewScheduler(jobs *Jobs) *Scheduler {
	return &Scheduler{jobs: jobs, cron: cron.New()}
}

// Register adds every periodic job at its spec-mandated cadence:
// stale-video GC hourly, orphan-file GC and quota reconciliation and
// memory consolidation daily (spec §4.12).
func (s *Scheduler) Register() error {
	entries := []struct {
		spec string
		run  func(ctx context.Context)
	}{
		{"0 * * * *", func(ctx context.Context) {
			if _, err := s.jobs.CleanupStaleVideos(ctx); err != nil {
				logger.GetLogger(ctx).Errorf("stale video cleanup job failed: %v", err)
			}
		}},
		{"15 2 * * *", func(ctx context.Context) {
			if _, err := s.jobs.CleanupOrphanedFiles(ctx); err != nil {
				logger.GetLogger(ctx).Errorf("orphaned file cleanup job failed: %v", err)
			}
		}},
		{"30 3 * * *", func(ctx context.Context) {
			if _, err := s.jobs.ReconcileStorageQuotas(ctx); err != nil {
				logger.GetLogger(ctx).Errorf("quota reconciliation job failed: %v", err)
			}
		}},
		{"45 3 * * *", func(ctx context.Context) {
			if _, err := s.jobs.ConsolidateMemory(ctx, memoryConsolidationStaleThreshold); err != nil {
				logger.GetLogger(ctx).Errorf("memory consolidation job failed: %v", err)
			}
		}},
	}

	for _, e := range entries {
		run := e.run
		if _, err := s.cron.AddFunc(e.spec, func() { run(context.Background()) }); err != nil {
			return err
		}
	}
	return nil
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }
