package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/ledger"
	"github.com/edustake/edustake-core/internal/domain/recommendation"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANCEL TASK COMMAND
// A teacher can withdraw a task that nobody enrolled in; the locked
// reward pool is refunded in full.
// ══════════════════════════════════════════════════════════════════════════════

// CancelTaskCommand contains the data to cancel a task.
type CancelTaskCommand struct {
	TaskID    string
	TeacherID string
}

// Validate validates the command.
func (c CancelTaskCommand) Validate() error {
	if c.TaskID == "" {
		return errors.New("cancel_task: task_id is required")
	}
	if c.TeacherID == "" {
		return errors.New("cancel_task: teacher_id is required")
	}
	return nil
}

// CancelTaskResult contains the result of cancelling a task.
type CancelTaskResult struct {
	Task *task.Task

	// PoolRefunded is the reward pool returned to the teacher.
	PoolRefunded shared.Amount
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CancelTaskHandler handles the CancelTaskCommand.
type CancelTaskHandler struct {
	taskRepo           task.Repository
	ledgerRepo         ledger.Repository
	recommendationRepo recommendation.Repository
	eventPublisher     shared.EventPublisher
}

// NewCancelTaskHandler creates a new CancelTaskHandler.
func NewCancelTaskHandler(
	taskRepo task.Repository,
	ledgerRepo ledger.Repository,
	recommendationRepo recommendation.Repository,
	eventPublisher shared.EventPublisher,
) *CancelTaskHandler {
	return &CancelTaskHandler{
		taskRepo:           taskRepo,
		ledgerRepo:         ledgerRepo,
		recommendationRepo: recommendationRepo,
		eventPublisher:     eventPublisher,
	}
}

// Handle executes the cancel task command.
func (h *CancelTaskHandler) Handle(ctx context.Context, cmd CancelTaskCommand) (*CancelTaskResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("cancel_task: validation failed: %w", err)
	}

	t, err := h.taskRepo.GetByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, fmt.Errorf("cancel_task: failed to get task: %w", err)
	}
	if t.TeacherID != cmd.TeacherID {
		return nil, shared.NewDomainError("task", "Cancel", shared.ErrForbidden,
			"only the publishing teacher can cancel a task")
	}

	if err := t.Cancel(); err != nil {
		return nil, err
	}

	// Compare-and-set so a concurrent enrollment cannot slip into a
	// task that is being withdrawn.
	if err := h.taskRepo.UpdateStatus(ctx, t.ID, task.StatusActive, task.StatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel_task: failed to cancel: %w", err)
	}

	pool := t.RewardPool()
	refund, err := ledger.NewEntry(uuid.NewString(), t.TeacherID, ledger.EntryRefund, pool,
		fmt.Sprintf("reward pool refund for cancelled %q", t.Title))
	if err != nil {
		return nil, err
	}
	refund.ForEnrollment(t.ID, "")

	if err := h.ledgerRepo.Append(ctx, refund); err != nil {
		return nil, fmt.Errorf("cancel_task: failed to refund reward pool: %w", err)
	}

	// Cancelled tasks must stop appearing in recommendations.
	if err := h.recommendationRepo.DeleteByTask(ctx, t.ID); err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("cancel_task: failed to drop recommendations: %w", err)
	}

	_ = h.eventPublisher.Publish(shared.NewBaseEvent(shared.EventTaskCancelled, t.ID))

	return &CancelTaskResult{Task: t, PoolRefunded: pool}, nil
}
