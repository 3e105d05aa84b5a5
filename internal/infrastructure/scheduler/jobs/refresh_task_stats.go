package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH TASK STATS JOB
// ══════════════════════════════════════════════════════════════════════════════

// statsBatchSize - сколько задач пересчитывается за страницу.
const statsBatchSize = 200

// RefreshTaskStatsJob recomputes success rate and average rating for
// active tasks from their reviewed enrollments. The denormalized
// columns feed list views and the reward-ratio recommendation factor
// without aggregate queries on the hot path.
type RefreshTaskStatsJob struct {
	taskRepo       task.Repository
	enrollmentRepo enrollment.Repository
	logger         *slog.Logger
}

// NewRefreshTaskStatsJob creates the job.
func NewRefreshTaskStatsJob(
	taskRepo task.Repository,
	enrollmentRepo enrollment.Repository,
	logger *slog.Logger,
) *RefreshTaskStatsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshTaskStatsJob{
		taskRepo:       taskRepo,
		enrollmentRepo: enrollmentRepo,
		logger:         logger,
	}
}

// Name implements scheduler.Job.
func (j *RefreshTaskStatsJob) Name() string { return "refresh_task_stats" }

// Run pages through active tasks and rewrites their aggregates.
func (j *RefreshTaskStatsJob) Run(ctx context.Context) error {
	var refreshed, failed int

	for offset := 0; ; offset += statsBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		tasks, err := j.taskRepo.List(ctx, task.ListFilter{
			Status: task.StatusActive,
			Limit:  statsBatchSize,
			Offset: offset,
		})
		if err != nil {
			return fmt.Errorf("refresh_task_stats: failed to list tasks: %w", err)
		}
		if len(tasks) == 0 {
			break
		}

		for _, t := range tasks {
			stats, err := j.enrollmentRepo.StatsByTask(ctx, t.ID)
			if err != nil {
				failed++
				j.logger.Error("failed to aggregate task stats", "task_id", t.ID, "error", err)
				continue
			}
			if stats.Attempts == 0 {
				continue
			}
			if err := j.taskRepo.UpdateStats(ctx, t.ID, stats.SuccessRate(), stats.AverageScore); err != nil {
				failed++
				j.logger.Error("failed to store task stats", "task_id", t.ID, "error", err)
				continue
			}
			refreshed++
		}

		if len(tasks) < statsBatchSize {
			break
		}
	}

	j.logger.Info("task stats refreshed", "tasks", refreshed, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("refresh_task_stats: %d tasks failed", failed)
	}
	return nil
}
