package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT SOLUTION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SubmitSolutionCommand contains the data to submit a solution.
type SubmitSolutionCommand struct {
	EnrollmentID string
	StudentID    string

	// SubmissionText is the solution body.
	SubmissionText string
}

// Validate validates the command.
func (c SubmitSolutionCommand) Validate() error {
	if c.EnrollmentID == "" {
		return errors.New("submit_solution: enrollment_id is required")
	}
	if c.StudentID == "" {
		return errors.New("submit_solution: student_id is required")
	}
	return nil
}

// SubmitSolutionResult contains the result of submitting.
type SubmitSolutionResult struct {
	Enrollment *enrollment.Enrollment
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitSolutionHandler handles the SubmitSolutionCommand.
type SubmitSolutionHandler struct {
	enrollmentRepo enrollment.Repository
	eventPublisher shared.EventPublisher
}

// NewSubmitSolutionHandler creates a new SubmitSolutionHandler.
func NewSubmitSolutionHandler(
	enrollmentRepo enrollment.Repository,
	eventPublisher shared.EventPublisher,
) *SubmitSolutionHandler {
	return &SubmitSolutionHandler{
		enrollmentRepo: enrollmentRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the submit solution command.
func (h *SubmitSolutionHandler) Handle(ctx context.Context, cmd SubmitSolutionCommand) (*SubmitSolutionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_solution: validation failed: %w", err)
	}

	enr, err := h.enrollmentRepo.GetByID(ctx, cmd.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("submit_solution: failed to get enrollment: %w", err)
	}
	if enr.StudentID != cmd.StudentID {
		return nil, shared.NewDomainError("enrollment", "Submit", shared.ErrForbidden,
			"only the enrolled student can submit")
	}

	now := time.Now().UTC()
	if enr.IsOverdue(now) {
		return nil, shared.NewDomainError("enrollment", "Submit", shared.ErrInvalidState,
			"the attempt deadline has passed")
	}

	if err := enr.Submit(cmd.SubmissionText, now); err != nil {
		return nil, err
	}

	if err := h.enrollmentRepo.UpdateStatusCAS(ctx, enr, enrollment.StatusActive); err != nil {
		return nil, fmt.Errorf("submit_solution: failed to persist: %w", err)
	}

	event := shared.NewSolutionSubmittedEvent(enr.ID, enr.TaskID, enr.StudentID)
	_ = h.eventPublisher.Publish(event)

	return &SubmitSolutionResult{Enrollment: enr}, nil
}
