package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"delegated-groups/internal/domain"
)

// schedulerActor is attributed on audit entries written by background runs.
var schedulerActor = CallerIdentity{Username: "scheduler"}

// Scheduler runs the stale-group prune and membership sync on cron
// schedules.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	pruner     *Pruner
	audit      *AuditService
	logger     *slog.Logger
	mu         sync.Mutex // serializes sync against prune
}

func NewScheduler(reconciler *Reconciler, pruner *Pruner, audit *AuditService, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		reconciler: reconciler,
		pruner:     pruner,
		audit:      audit,
		logger:     logger,
	}
}

// Start registers the two jobs and starts the cron loop. Either schedule may
// be empty to disable that job. The sync job prunes stale groups first so
// reconciliation never expands rules for groups that no longer exist.
func (s *Scheduler) Start(syncSchedule, pruneSchedule string) error {
	if syncSchedule != "" {
		if _, err := s.cron.AddFunc(syncSchedule, func() {
			ctx := context.Background()
			if _, err := s.RunPrune(ctx); err != nil {
				s.logger.Error("pre-sync prune failed", "error", err)
			}
			s.RunSync(ctx)
		}); err != nil {
			return err
		}
		s.logger.Info("scheduled membership sync", "schedule", syncSchedule)
	}
	if pruneSchedule != "" {
		if _, err := s.cron.AddFunc(pruneSchedule, func() {
			s.RunPrune(context.Background())
		}); err != nil {
			return err
		}
		s.logger.Info("scheduled stale-group prune", "schedule", pruneSchedule)
	}
	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron loop.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// RunSync runs one reconciliation pass and audits the outcome. It is also
// the backing for the manual /ops/sync trigger.
func (s *Scheduler) RunSync(ctx context.Context) (*SyncSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, err := s.reconciler.Run(ctx)
	if err != nil {
		s.logger.Error("sync run failed", "error", err)
		s.audit.RecordFailure(ctx, schedulerActor, domain.AuditSyncRun, "", "", err.Error(), "")
		return nil, err
	}
	s.audit.Record(ctx, schedulerActor, domain.AuditSyncRun, "", "", marshalDetails(summary), "")
	return summary, nil
}

// RunPrune runs one prune pass across all systems and audits the outcome.
func (s *Scheduler) RunPrune(ctx context.Context) (*PruneSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, err := s.pruner.PruneAll(ctx)
	if err != nil {
		s.logger.Error("prune run failed", "error", err)
		s.audit.RecordFailure(ctx, schedulerActor, domain.AuditPruneRun, "", "", err.Error(), "")
		return nil, err
	}
	s.audit.Record(ctx, schedulerActor, domain.AuditPruneRun, "", "", marshalDetails(summary), "")
	return summary, nil
}

func marshalDetails(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
