package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/ledger"
	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE TASK COMMAND
// Publishing a task locks the teacher's reward pool (reward * seats) in
// the ledger before the task becomes visible to students.
// ══════════════════════════════════════════════════════════════════════════════

// CreateTaskCommand contains the data to publish a task.
type CreateTaskCommand struct {
	TeacherID   string
	Title       string
	Description string
	Difficulty  task.Difficulty

	// Category groups the task in catalog filters (optional).
	Category string

	// Tags are free-form labels attached by the teacher.
	Tags []string

	// RewardAmount is the per-student reward in EDU.
	RewardAmount shared.Amount

	// StakeRequired is the per-student stake in EDU.
	StakeRequired shared.Amount

	MaxStudents int

	// MaxAttempts bounds retries per student (0 means unlimited).
	MaxAttempts int

	// TimeLimitMinutes bounds each attempt (0 means unbounded).
	TimeLimitMinutes int

	// ExpiresAt is the enrollment deadline (zero means no deadline).
	ExpiresAt time.Time
}

// Validate validates the command.
func (c CreateTaskCommand) Validate() error {
	if c.TeacherID == "" {
		return errors.New("create_task: teacher_id is required")
	}
	if c.Title == "" {
		return errors.New("create_task: title is required")
	}
	if !c.Difficulty.IsValid() {
		return fmt.Errorf("create_task: unknown difficulty: %s", c.Difficulty)
	}
	if c.RewardAmount <= 0 || c.StakeRequired <= 0 {
		return errors.New("create_task: reward_amount and stake_required must be positive")
	}
	if c.MaxStudents <= 0 {
		return errors.New("create_task: max_students must be positive")
	}
	if c.MaxAttempts < 0 {
		return errors.New("create_task: max_attempts cannot be negative")
	}
	if c.TimeLimitMinutes < 0 {
		return errors.New("create_task: time_limit_minutes cannot be negative")
	}
	return nil
}

// CreateTaskResult contains the result of publishing a task.
type CreateTaskResult struct {
	Task *task.Task

	// PoolLocked is the total reward pool locked in the ledger.
	PoolLocked shared.Amount
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateTaskHandler handles the CreateTaskCommand.
type CreateTaskHandler struct {
	taskRepo       task.Repository
	profileRepo    profile.Repository
	ledgerRepo     ledger.Repository
	eventPublisher shared.EventPublisher
}

// NewCreateTaskHandler creates a new CreateTaskHandler.
func NewCreateTaskHandler(
	taskRepo task.Repository,
	profileRepo profile.Repository,
	ledgerRepo ledger.Repository,
	eventPublisher shared.EventPublisher,
) *CreateTaskHandler {
	return &CreateTaskHandler{
		taskRepo:       taskRepo,
		profileRepo:    profileRepo,
		ledgerRepo:     ledgerRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the create task command.
func (h *CreateTaskHandler) Handle(ctx context.Context, cmd CreateTaskCommand) (*CreateTaskResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_task: validation failed: %w", err)
	}

	teacher, err := h.profileRepo.GetByID(ctx, cmd.TeacherID)
	if err != nil {
		return nil, fmt.Errorf("create_task: failed to get teacher: %w", err)
	}
	if !teacher.Active {
		return nil, shared.ErrProfileDeactivated
	}
	if !teacher.Role.CanTeach() {
		return nil, shared.NewDomainError("task", "Create", shared.ErrForbidden,
			"only teachers can publish tasks")
	}

	t, err := task.NewTask(uuid.NewString(), teacher.ID, cmd.Title, cmd.Description,
		cmd.Difficulty, cmd.RewardAmount, cmd.StakeRequired, cmd.MaxStudents)
	if err != nil {
		return nil, err
	}
	t.Category = strings.TrimSpace(cmd.Category)
	t.Tags = cmd.Tags
	t.MaxAttempts = cmd.MaxAttempts
	t.TimeLimitMinutes = cmd.TimeLimitMinutes
	t.ExpiresAt = cmd.ExpiresAt

	// Lock the reward pool first. If the teacher cannot cover it, the
	// task never becomes visible.
	pool := t.RewardPool()
	lock, err := ledger.NewEntry(uuid.NewString(), teacher.ID, ledger.EntryStake, pool,
		fmt.Sprintf("reward pool for %q", t.Title))
	if err != nil {
		return nil, err
	}
	lock.ForEnrollment(t.ID, "")

	if err := h.ledgerRepo.Append(ctx, lock); err != nil {
		return nil, fmt.Errorf("create_task: failed to lock reward pool: %w", err)
	}

	if err := h.taskRepo.Create(ctx, t); err != nil {
		// Release the pool; the task was never published.
		refund, _ := ledger.NewEntry(uuid.NewString(), teacher.ID, ledger.EntryRefund, pool,
			"reward pool released: task creation failed")
		if refund != nil {
			refund.ForEnrollment(t.ID, "")
			_ = h.ledgerRepo.Append(ctx, refund)
		}
		return nil, fmt.Errorf("create_task: failed to create task: %w", err)
	}

	teacher.RecordTaskCreated()
	if err := h.profileRepo.Update(ctx, teacher); err != nil {
		return nil, fmt.Errorf("create_task: failed to update teacher: %w", err)
	}

	_ = h.eventPublisher.Publish(shared.NewBaseEvent(shared.EventTaskCreated, t.ID))

	return &CreateTaskResult{Task: t, PoolLocked: pool}, nil
}
