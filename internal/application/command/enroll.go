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
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL COMMAND
// Taking a seat is the race-prone operation of the marketplace: the
// seat counter is the single authority on capacity, so the handler
// reserves the seat first and rolls it back if anything downstream
// fails.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollCommand contains the data to enroll in a task.
type EnrollCommand struct {
	TaskID    string
	StudentID string
}

// Validate validates the command.
func (c EnrollCommand) Validate() error {
	if c.TaskID == "" {
		return errors.New("enroll: task_id is required")
	}
	if c.StudentID == "" {
		return errors.New("enroll: student_id is required")
	}
	return nil
}

// EnrollResult contains the result of enrolling.
type EnrollResult struct {
	Enrollment *enrollment.Enrollment

	// StakeLocked is the amount locked from the student's balance.
	StakeLocked shared.Amount

	// SeatsTaken and SeatsTotal reflect capacity after this enrollment.
	SeatsTaken int
	SeatsTotal int
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EnrollHandler handles the EnrollCommand.
type EnrollHandler struct {
	enrollmentRepo enrollment.Repository
	taskRepo       task.Repository
	profileRepo    profile.Repository
	ledgerRepo     ledger.Repository
	eventPublisher shared.EventPublisher
}

// NewEnrollHandler creates a new EnrollHandler.
func NewEnrollHandler(
	enrollmentRepo enrollment.Repository,
	taskRepo task.Repository,
	profileRepo profile.Repository,
	ledgerRepo ledger.Repository,
	eventPublisher shared.EventPublisher,
) *EnrollHandler {
	return &EnrollHandler{
		enrollmentRepo: enrollmentRepo,
		taskRepo:       taskRepo,
		profileRepo:    profileRepo,
		ledgerRepo:     ledgerRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the enroll command.
func (h *EnrollHandler) Handle(ctx context.Context, cmd EnrollCommand) (*EnrollResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("enroll: validation failed: %w", err)
	}

	student, err := h.profileRepo.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("enroll: failed to get student: %w", err)
	}
	if !student.Active {
		return nil, shared.ErrProfileDeactivated
	}
	if !student.Role.CanStudy() {
		return nil, shared.NewDomainError("enrollment", "Enroll", shared.ErrForbidden,
			"only students can enroll in tasks")
	}

	t, err := h.taskRepo.GetByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, fmt.Errorf("enroll: failed to get task: %w", err)
	}
	if t.TeacherID == student.ID {
		return nil, shared.NewDomainError("enrollment", "Enroll", shared.ErrForbidden,
			"teachers cannot enroll in their own task")
	}

	now := time.Now().UTC()
	if !t.IsOpenForEnrollment(now) {
		if !t.HasCapacity() {
			return nil, shared.ErrCapacityExceeded
		}
		return nil, shared.ErrTaskNotActive
	}

	// Check funds before touching the seat counter. The definitive
	// guard is the stake append below; this just fails fast.
	balance, err := h.ledgerRepo.GetBalance(ctx, student.ID)
	if err != nil {
		return nil, fmt.Errorf("enroll: failed to get balance: %w", err)
	}
	if balance.Available < t.StakeRequired {
		return nil, shared.ErrInsufficientStake
	}

	// Reserve the seat atomically; this is where concurrent enrollments
	// on the last seat are decided.
	seats, err := h.taskRepo.ReserveSeat(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	enr, err := h.createEnrollment(ctx, t, student, now)
	if err != nil {
		_ = h.taskRepo.ReleaseSeat(ctx, t.ID)
		return nil, err
	}

	// From here the seat is committed: the enrollment row and the stake
	// exist, so nothing may release the seat anymore. The attempt
	// counter is a profile statistic and stays best-effort.
	student.RecordAttempt()
	_ = h.profileRepo.Update(ctx, student)

	event := shared.NewStudentEnrolledEvent(enr.ID, t.ID, student.ID, int64(t.StakeRequired))
	_ = h.eventPublisher.Publish(event)
	_ = h.eventPublisher.Publish(shared.NewBaseEvent(shared.EventStakeLocked, enr.ID))

	return &EnrollResult{
		Enrollment:  enr,
		StakeLocked: t.StakeRequired,
		SeatsTaken:  seats.CurrentStudents,
		SeatsTotal:  seats.MaxStudents,
	}, nil
}

// createEnrollment locks the stake and persists the enrollment. The
// caller releases the reserved seat if this fails.
func (h *EnrollHandler) createEnrollment(
	ctx context.Context,
	t *task.Task,
	student *profile.Profile,
	now time.Time,
) (*enrollment.Enrollment, error) {
	enr, err := enrollment.NewEnrollment(uuid.NewString(), t.ID, student.ID, t.StakeRequired)
	if err != nil {
		return nil, err
	}
	if t.TimeLimitMinutes > 0 {
		enr.Deadline = now.Add(time.Duration(t.TimeLimitMinutes) * time.Minute)
	}

	stake, err := ledger.NewEntry(uuid.NewString(), student.ID, ledger.EntryStake, t.StakeRequired,
		fmt.Sprintf("stake for %q", t.Title))
	if err != nil {
		return nil, err
	}
	stake.ForEnrollment(t.ID, enr.ID)

	if err := h.ledgerRepo.Append(ctx, stake); err != nil {
		return nil, fmt.Errorf("enroll: failed to lock stake: %w", err)
	}

	if err := h.enrollmentRepo.Create(ctx, enr); err != nil {
		// Unlock the stake; the enrollment never existed.
		refund, _ := ledger.NewEntry(uuid.NewString(), student.ID, ledger.EntryRefund,
			t.StakeRequired, "stake released: enrollment failed")
		if refund != nil {
			refund.ForEnrollment(t.ID, enr.ID)
			_ = h.ledgerRepo.Append(ctx, refund)
		}
		if shared.IsAlreadyExists(err) {
			return nil, shared.ErrDuplicateEnrollment
		}
		return nil, fmt.Errorf("enroll: failed to create enrollment: %w", err)
	}

	return enr, nil
}
