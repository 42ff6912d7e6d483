package app

import (
	"context"
	"time"

	pkgcron "github.com/vocalingo/core/internal/pkg/cron"
	"github.com/vocalingo/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const (
	finishedTaskRetention = 7 * 24 * time.Hour
	stuckEvaluationAfter  = 30 * time.Minute
	stuckScanSize         = 500
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, svc services, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	jobs := []pkgcron.Job{
		{
			Name:        "cleanup_tasks",
			Description: "Delete finished evaluation tasks older than 7 days",
			Interval:    6 * time.Hour,
			Fn:          cleanupTasks(svc.tasks, time.Now, cronLogger),
		},
		{
			Name:        "fail_stuck_evaluations",
			Description: "Mark evaluations stuck in progress for 30 minutes as failed",
			Interval:    10 * time.Minute,
			Fn:          failStuckEvaluations(svc.tasks, time.Now, cronLogger),
		},
	}
	for _, job := range jobs {
		if err := sched.Register(job); err != nil {
			cronLogger.Warn("cron job not registered", zap.String("job", job.Name), zap.Error(err))
		}
	}
}

func cleanupTasks(tasks *taskqueue.Service, now func() time.Time, logger *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := tasks.DeleteFinished(ctx, now().Add(-finishedTaskRetention))
		if err != nil {
			logger.Warn("task cleanup failed", zap.Error(err))
			return err
		}
		logger.Info("task cleanup done", zap.Int("deleted", n))
		return nil
	}
}

// failStuckEvaluations fails jobs whose worker died mid-run so polling
// clients stop waiting.
func failStuckEvaluations(tasks *taskqueue.Service, now func() time.Time, logger *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		status := taskqueue.TaskEvaluating
		stuck, _, err := tasks.List(ctx, "", &status, 1, stuckScanSize)
		if err != nil {
			return err
		}
		cutoff := now().Add(-stuckEvaluationAfter)
		failed := 0
		for _, t := range stuck {
			if t.UpdatedAt.After(cutoff) {
				continue
			}
			if err := tasks.UpdateStatus(ctx, t.ID, taskqueue.TaskFailed, nil, "evaluation timed out"); err != nil {
				logger.Warn("stuck task not updated", zap.String("task", t.ID), zap.Error(err))
				continue
			}
			failed++
		}
		if failed > 0 {
			logger.Info("stuck evaluations failed", zap.Int("count", failed))
		}
		return nil
	}
}
