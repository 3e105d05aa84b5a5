// Package jobs contains the scheduled background jobs for EduStake.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/ledger"
	"github.com/edustake/edustake-core/internal/domain/recommendation"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE TASKS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ExpireTasksJob closes tasks whose enrollment deadline has passed.
// For each expired task it refunds the unpaid part of the teacher's
// reward pool, refunds stakes of enrollments that never reached review,
// and drops the task from recommendations.
type ExpireTasksJob struct {
	taskRepo           task.Repository
	enrollmentRepo     enrollment.Repository
	ledgerRepo         ledger.Repository
	recommendationRepo recommendation.Repository
	eventPublisher     shared.EventPublisher
	logger             *slog.Logger
}

// NewExpireTasksJob creates the job.
func NewExpireTasksJob(
	taskRepo task.Repository,
	enrollmentRepo enrollment.Repository,
	ledgerRepo ledger.Repository,
	recommendationRepo recommendation.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *ExpireTasksJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpireTasksJob{
		taskRepo:           taskRepo,
		enrollmentRepo:     enrollmentRepo,
		ledgerRepo:         ledgerRepo,
		recommendationRepo: recommendationRepo,
		eventPublisher:     eventPublisher,
		logger:             logger,
	}
}

// Name implements scheduler.Job.
func (j *ExpireTasksJob) Name() string { return "expire_tasks" }

// Run expires due tasks and settles the money they still hold.
func (j *ExpireTasksJob) Run(ctx context.Context) error {
	now := time.Now().UTC()

	expired, err := j.taskRepo.ExpireDue(ctx, now)
	if err != nil {
		return fmt.Errorf("expire_tasks: failed to expire due tasks: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	var failed int
	for _, taskID := range expired {
		if err := j.settleExpired(ctx, taskID); err != nil {
			failed++
			j.logger.Error("failed to settle expired task", "task_id", taskID, "error", err)
		}
	}

	j.logger.Info("tasks expired", "count", len(expired), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("expire_tasks: %d of %d settlements failed", failed, len(expired))
	}
	return nil
}

// settleExpired releases the funds one expired task still holds.
func (j *ExpireTasksJob) settleExpired(ctx context.Context, taskID string) error {
	t, err := j.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	// Stakes of seats that never reached review go back to students.
	active, err := j.enrollmentRepo.List(ctx, enrollment.ListFilter{
		TaskID: taskID,
		Status: enrollment.StatusActive,
	})
	if err != nil {
		return err
	}
	for _, enr := range active {
		if err := j.refundSeat(ctx, enr); err != nil {
			return err
		}
	}

	// Rewards already paid out stay paid; the rest of the pool returns.
	stats, err := j.enrollmentRepo.StatsByTask(ctx, taskID)
	if err != nil {
		return err
	}
	unpaid := t.RewardPool() - t.RewardAmount*shared.Amount(stats.Passing)
	if unpaid > 0 {
		refund, err := ledger.NewEntry(uuid.NewString(), t.TeacherID, ledger.EntryRefund,
			unpaid, fmt.Sprintf("reward pool refund for expired %q", t.Title))
		if err != nil {
			return err
		}
		refund.ForEnrollment(t.ID, "")
		if err := j.ledgerRepo.Append(ctx, refund); err != nil {
			return err
		}
	}

	if err := j.recommendationRepo.DeleteByTask(ctx, taskID); err != nil && !shared.IsNotFound(err) {
		return err
	}

	_ = j.eventPublisher.Publish(shared.NewBaseEvent(shared.EventTaskExpired, taskID))
	return nil
}

// refundSeat cancels one abandoned enrollment and returns its stake.
func (j *ExpireTasksJob) refundSeat(ctx context.Context, enr *enrollment.Enrollment) error {
	if err := enr.Cancel(); err != nil {
		return err
	}
	if err := j.enrollmentRepo.UpdateStatusCAS(ctx, enr, enrollment.StatusActive); err != nil {
		// Someone submitted or cancelled concurrently; their path
		// handles the stake.
		if shared.IsRetryable(err) || shared.IsNotFound(err) {
			return nil
		}
		return err
	}

	refund, err := ledger.NewEntry(uuid.NewString(), enr.StudentID, ledger.EntryRefund,
		enr.StakeLocked, "stake refund after task expiry")
	if err != nil {
		return err
	}
	refund.ForEnrollment(enr.TaskID, enr.ID)
	if err := j.ledgerRepo.Append(ctx, refund); err != nil {
		return err
	}

	_ = j.eventPublisher.Publish(shared.NewBaseEvent(shared.EventEnrollmentCancelled, enr.ID))
	return nil
}
