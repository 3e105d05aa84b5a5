package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/question"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASK QUESTION COMMAND
// Only students with a live (active or completed) enrollment on the
// task may open a question thread with its teacher.
// ══════════════════════════════════════════════════════════════════════════════

// AskQuestionCommand contains the data to ask a question.
type AskQuestionCommand struct {
	TaskID    string
	StudentID string

	// QuestionText is the question body.
	QuestionText string
}

// Validate validates the command.
func (c AskQuestionCommand) Validate() error {
	if c.TaskID == "" {
		return errors.New("ask_question: task_id is required")
	}
	if c.StudentID == "" {
		return errors.New("ask_question: student_id is required")
	}
	return nil
}

// AskQuestionResult contains the result of asking.
type AskQuestionResult struct {
	Question *question.Question
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AskQuestionHandler handles the AskQuestionCommand.
type AskQuestionHandler struct {
	questionRepo   question.Repository
	enrollmentRepo enrollment.Repository
	eventPublisher shared.EventPublisher
}

// NewAskQuestionHandler creates a new AskQuestionHandler.
func NewAskQuestionHandler(
	questionRepo question.Repository,
	enrollmentRepo enrollment.Repository,
	eventPublisher shared.EventPublisher,
) *AskQuestionHandler {
	return &AskQuestionHandler{
		questionRepo:   questionRepo,
		enrollmentRepo: enrollmentRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the ask question command.
func (h *AskQuestionHandler) Handle(ctx context.Context, cmd AskQuestionCommand) (*AskQuestionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("ask_question: validation failed: %w", err)
	}

	// The gate: a question needs a live enrollment behind it.
	enr, err := h.enrollmentRepo.GetActiveByTaskAndStudent(ctx, cmd.TaskID, cmd.StudentID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrQuestionNotAllowed
		}
		return nil, fmt.Errorf("ask_question: failed to check enrollment: %w", err)
	}
	if enr.Status != enrollment.StatusActive && enr.Status != enrollment.StatusCompleted {
		return nil, shared.ErrQuestionNotAllowed
	}

	q, err := question.NewQuestion(uuid.NewString(), cmd.TaskID, cmd.StudentID, cmd.QuestionText)
	if err != nil {
		return nil, err
	}

	if err := h.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("ask_question: failed to create question: %w", err)
	}

	event := shared.NewRowChangedEvent(shared.EventQuestionChanged, shared.ChangeInsert,
		q.ID, q.TaskID, q.StudentID, map[string]interface{}{
			"id":            q.ID,
			"task_id":       q.TaskID,
			"student_id":    q.StudentID,
			"question_text": q.QuestionText,
			"created_at":    q.CreatedAt,
		})
	_ = h.eventPublisher.Publish(event)

	return &AskQuestionResult{Question: q}, nil
}
