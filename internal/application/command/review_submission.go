package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/ledger"
	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
	"github.com/edustake/edustake-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW SUBMISSION COMMAND
// Reviewing settles the seat: the student's stake is refunded or
// forfeited, the reward is paid on a pass, and the teacher's unpaid
// reward share comes back on a fail. All ledger movements for one
// review commit in a single atomic batch.
// ══════════════════════════════════════════════════════════════════════════════

// ReviewSubmissionCommand contains the data to review a submission.
type ReviewSubmissionCommand struct {
	EnrollmentID string
	ReviewerID   string

	// Score is the review score, 1 to 5 stars.
	Score int

	// Feedback is optional free-form review text.
	Feedback string
}

// Validate validates the command.
func (c ReviewSubmissionCommand) Validate() error {
	if c.EnrollmentID == "" {
		return errors.New("review_submission: enrollment_id is required")
	}
	if c.ReviewerID == "" {
		return errors.New("review_submission: reviewer_id is required")
	}
	if c.Score < 1 || c.Score > 5 {
		return shared.ErrInvalidReviewScore
	}
	return nil
}

// ReviewSubmissionResult contains the result of a review.
type ReviewSubmissionResult struct {
	Enrollment *enrollment.Enrollment
	Settlement ledger.Settlement

	// BadgeEligible indicates a 5-star review that can mint a badge.
	BadgeEligible bool

	// TaskCompleted indicates the review settled the last open seat.
	TaskCompleted bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ReviewSubmissionHandler handles the ReviewSubmissionCommand.
type ReviewSubmissionHandler struct {
	enrollmentRepo enrollment.Repository
	taskRepo       task.Repository
	profileRepo    profile.Repository
	ledgerRepo     ledger.Repository
	eventPublisher shared.EventPublisher

	// retrier re-drives the settlement batch through transient ledger
	// failures before the claim is rolled back.
	retrier *retry.Retrier
}

// NewReviewSubmissionHandler creates a new ReviewSubmissionHandler.
func NewReviewSubmissionHandler(
	enrollmentRepo enrollment.Repository,
	taskRepo task.Repository,
	profileRepo profile.Repository,
	ledgerRepo ledger.Repository,
	eventPublisher shared.EventPublisher,
) *ReviewSubmissionHandler {
	return &ReviewSubmissionHandler{
		enrollmentRepo: enrollmentRepo,
		taskRepo:       taskRepo,
		profileRepo:    profileRepo,
		ledgerRepo:     ledgerRepo,
		eventPublisher: eventPublisher,
		retrier:        retry.SettlementRetrier(),
	}
}

// Handle executes the review submission command.
func (h *ReviewSubmissionHandler) Handle(ctx context.Context, cmd ReviewSubmissionCommand) (*ReviewSubmissionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("review_submission: validation failed: %w", err)
	}

	enr, err := h.enrollmentRepo.GetByID(ctx, cmd.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("review_submission: failed to get enrollment: %w", err)
	}

	t, err := h.taskRepo.GetByID(ctx, enr.TaskID)
	if err != nil {
		return nil, fmt.Errorf("review_submission: failed to get task: %w", err)
	}
	if t.TeacherID != cmd.ReviewerID {
		return nil, shared.NewDomainError("enrollment", "Review", shared.ErrForbidden,
			"only the publishing teacher can review")
	}

	now := time.Now().UTC()
	if err := enr.Review(cmd.Score, cmd.Feedback, now); err != nil {
		return nil, err
	}

	settlement, err := ledger.ComputeSettlement(enr.StakeLocked, t.RewardAmount, cmd.Score)
	if err != nil {
		return nil, err
	}

	// Claim the review first: the compare-and-set is what makes a
	// concurrent double review lose instead of settling twice.
	if err := h.enrollmentRepo.UpdateStatusCAS(ctx, enr, enrollment.StatusCompleted); err != nil {
		return nil, fmt.Errorf("review_submission: failed to claim review: %w", err)
	}

	if err := h.settle(ctx, enr, t, settlement); err != nil {
		// The batch never committed. Release the claim so the same
		// review can be retried; otherwise the stake stays locked in a
		// reviewed-but-unsettled enrollment with no way back.
		if revertErr := enr.RevertReview(); revertErr == nil {
			_ = h.enrollmentRepo.UpdateStatusCAS(ctx, enr, enrollment.StatusReviewed)
		}
		return nil, err
	}

	if err := h.applyProfileEffects(ctx, enr, t, cmd.Score); err != nil {
		return nil, err
	}

	if enr.IsPassing() {
		if err := h.taskRepo.RecordSuccess(ctx, t.ID); err != nil {
			return nil, fmt.Errorf("review_submission: failed to record success: %w", err)
		}
	}

	taskCompleted, err := h.maybeCompleteTask(ctx, t)
	if err != nil {
		return nil, err
	}

	badgeEligible := enr.IsBadgeEligible()

	reviewed := shared.NewEnrollmentReviewedEvent(enr.ID, enr.TaskID, enr.StudentID, cmd.Score, badgeEligible)
	_ = h.eventPublisher.Publish(reviewed)

	settled := shared.NewSettlementAppliedEvent(enr.ID, enr.StudentID, t.TeacherID,
		int64(settlement.Refund), int64(settlement.Reward), int64(settlement.Penalty))
	_ = h.eventPublisher.Publish(settled)

	return &ReviewSubmissionResult{
		Enrollment:    enr,
		Settlement:    settlement,
		BadgeEligible: badgeEligible,
		TaskCompleted: taskCompleted,
	}, nil
}

// settle writes all ledger movements for one review as a single batch.
func (h *ReviewSubmissionHandler) settle(
	ctx context.Context,
	enr *enrollment.Enrollment,
	t *task.Task,
	s ledger.Settlement,
) error {
	var entries []*ledger.Entry

	add := func(userID string, entryType ledger.EntryType, amount shared.Amount, memo string) error {
		if amount == 0 {
			return nil
		}
		entry, err := ledger.NewEntry(uuid.NewString(), userID, entryType, amount, memo)
		if err != nil {
			return err
		}
		entry.ForEnrollment(t.ID, enr.ID)
		entries = append(entries, entry)
		return nil
	}

	if err := add(enr.StudentID, ledger.EntryRefund, s.Refund, "stake refund after review"); err != nil {
		return err
	}
	if err := add(enr.StudentID, ledger.EntryReward, s.Reward,
		fmt.Sprintf("reward for %q", t.Title)); err != nil {
		return err
	}
	if err := add(t.TeacherID, ledger.EntryPenalty, s.Penalty, "forfeited student stake"); err != nil {
		return err
	}
	if s.Reward == 0 {
		// Failing seat: the reward share locked at publication comes
		// back to the teacher.
		if err := add(t.TeacherID, ledger.EntryRefund, t.RewardAmount,
			"unpaid reward share returned"); err != nil {
			return err
		}
	}

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		if err := h.ledgerRepo.AppendBatch(ctx, entries); err != nil {
			if shared.IsValidation(err) || errors.Is(err, shared.ErrInsufficient) {
				return retry.Permanent(err)
			}
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("review_submission: %w: %v", shared.ErrSettlementFailure, err)
	}
	return nil
}

// applyProfileEffects updates counters and reputations after a review.
// Review scores move both reputations: the student's as work quality,
// the teacher's as teaching outcome quality.
func (h *ReviewSubmissionHandler) applyProfileEffects(
	ctx context.Context,
	enr *enrollment.Enrollment,
	t *task.Task,
	score int,
) error {
	student, err := h.profileRepo.GetByID(ctx, enr.StudentID)
	if err != nil {
		return fmt.Errorf("review_submission: failed to get student: %w", err)
	}
	if enr.IsPassing() {
		student.RecordCompletion()
	}
	if err := student.ApplyReviewScore(score); err != nil {
		return err
	}
	if err := h.profileRepo.Update(ctx, student); err != nil {
		return fmt.Errorf("review_submission: failed to update student: %w", err)
	}

	teacher, err := h.profileRepo.GetByID(ctx, t.TeacherID)
	if err != nil {
		return fmt.Errorf("review_submission: failed to get teacher: %w", err)
	}
	if err := teacher.ApplyReviewScore(score); err != nil {
		return err
	}
	if err := h.profileRepo.Update(ctx, teacher); err != nil {
		return fmt.Errorf("review_submission: failed to update teacher: %w", err)
	}
	return nil
}

// maybeCompleteTask closes the task once every seat is reviewed.
func (h *ReviewSubmissionHandler) maybeCompleteTask(ctx context.Context, t *task.Task) (bool, error) {
	counts, err := h.enrollmentRepo.CountByTask(ctx, t.ID)
	if err != nil {
		return false, fmt.Errorf("review_submission: failed to count enrollments: %w", err)
	}
	if counts[enrollment.StatusReviewed] < t.MaxStudents {
		return false, nil
	}

	if err := h.taskRepo.UpdateStatus(ctx, t.ID, task.StatusActive, task.StatusCompleted); err != nil {
		if errors.Is(err, shared.ErrConcurrentModification) {
			return false, nil
		}
		return false, fmt.Errorf("review_submission: failed to complete task: %w", err)
	}
	t.Status = task.StatusCompleted

	_ = h.eventPublisher.Publish(shared.NewBaseEvent(shared.EventTaskCompleted, t.ID))
	return true, nil
}
