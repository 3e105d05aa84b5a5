package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/ledger"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANCEL ENROLLMENT COMMAND
// A student can withdraw before submitting; the stake comes back in
// full and the seat reopens.
// ══════════════════════════════════════════════════════════════════════════════

// CancelEnrollmentCommand contains the data to cancel an enrollment.
type CancelEnrollmentCommand struct {
	EnrollmentID string
	StudentID    string
}

// Validate validates the command.
func (c CancelEnrollmentCommand) Validate() error {
	if c.EnrollmentID == "" {
		return errors.New("cancel_enrollment: enrollment_id is required")
	}
	if c.StudentID == "" {
		return errors.New("cancel_enrollment: student_id is required")
	}
	return nil
}

// CancelEnrollmentResult contains the result of cancelling.
type CancelEnrollmentResult struct {
	Enrollment *enrollment.Enrollment

	// StakeRefunded is the amount returned to the student.
	StakeRefunded shared.Amount
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CancelEnrollmentHandler handles the CancelEnrollmentCommand.
type CancelEnrollmentHandler struct {
	enrollmentRepo enrollment.Repository
	taskRepo       task.Repository
	ledgerRepo     ledger.Repository
	eventPublisher shared.EventPublisher
}

// NewCancelEnrollmentHandler creates a new CancelEnrollmentHandler.
func NewCancelEnrollmentHandler(
	enrollmentRepo enrollment.Repository,
	taskRepo task.Repository,
	ledgerRepo ledger.Repository,
	eventPublisher shared.EventPublisher,
) *CancelEnrollmentHandler {
	return &CancelEnrollmentHandler{
		enrollmentRepo: enrollmentRepo,
		taskRepo:       taskRepo,
		ledgerRepo:     ledgerRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the cancel enrollment command.
func (h *CancelEnrollmentHandler) Handle(ctx context.Context, cmd CancelEnrollmentCommand) (*CancelEnrollmentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("cancel_enrollment: validation failed: %w", err)
	}

	enr, err := h.enrollmentRepo.GetByID(ctx, cmd.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("cancel_enrollment: failed to get enrollment: %w", err)
	}
	if enr.StudentID != cmd.StudentID {
		return nil, shared.NewDomainError("enrollment", "Cancel", shared.ErrForbidden,
			"only the enrolled student can cancel")
	}

	if err := enr.Cancel(); err != nil {
		return nil, err
	}

	if err := h.enrollmentRepo.UpdateStatusCAS(ctx, enr, enrollment.StatusActive); err != nil {
		return nil, fmt.Errorf("cancel_enrollment: failed to persist: %w", err)
	}

	if err := h.taskRepo.ReleaseSeat(ctx, enr.TaskID); err != nil {
		return nil, fmt.Errorf("cancel_enrollment: failed to release seat: %w", err)
	}

	refund, err := ledger.NewEntry(uuid.NewString(), enr.StudentID, ledger.EntryRefund,
		enr.StakeLocked, "stake refund after cancellation")
	if err != nil {
		return nil, err
	}
	refund.ForEnrollment(enr.TaskID, enr.ID)

	if err := h.ledgerRepo.Append(ctx, refund); err != nil {
		return nil, fmt.Errorf("cancel_enrollment: failed to refund stake: %w", err)
	}

	_ = h.eventPublisher.Publish(shared.NewBaseEvent(shared.EventEnrollmentCancelled, enr.ID))

	return &CancelEnrollmentResult{Enrollment: enr, StakeRefunded: enr.StakeLocked}, nil
}
