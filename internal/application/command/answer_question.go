package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/question"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANSWER QUESTION COMMAND
// Any teaching profile may answer; the task's own teacher is flagged so
// the thread can distinguish the author from outside mentors. Every
// answer is appended to the history, never overwritten.
// ══════════════════════════════════════════════════════════════════════════════

// AnswerQuestionCommand contains the data to answer a question.
type AnswerQuestionCommand struct {
	QuestionID string
	AnswererID string

	// AnswerText is the answer body.
	AnswerText string
}

// Validate validates the command.
func (c AnswerQuestionCommand) Validate() error {
	if c.QuestionID == "" {
		return errors.New("answer_question: question_id is required")
	}
	if c.AnswererID == "" {
		return errors.New("answer_question: answerer_id is required")
	}
	return nil
}

// AnswerQuestionResult contains the result of answering.
type AnswerQuestionResult struct {
	Question *question.Question
	Answer   *question.Answer
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AnswerQuestionHandler handles the AnswerQuestionCommand.
type AnswerQuestionHandler struct {
	questionRepo   question.Repository
	taskRepo       task.Repository
	profileRepo    profile.Repository
	eventPublisher shared.EventPublisher
}

// NewAnswerQuestionHandler creates a new AnswerQuestionHandler.
func NewAnswerQuestionHandler(
	questionRepo question.Repository,
	taskRepo task.Repository,
	profileRepo profile.Repository,
	eventPublisher shared.EventPublisher,
) *AnswerQuestionHandler {
	return &AnswerQuestionHandler{
		questionRepo:   questionRepo,
		taskRepo:       taskRepo,
		profileRepo:    profileRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the answer question command.
func (h *AnswerQuestionHandler) Handle(ctx context.Context, cmd AnswerQuestionCommand) (*AnswerQuestionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("answer_question: validation failed: %w", err)
	}

	q, err := h.questionRepo.GetByID(ctx, cmd.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("answer_question: failed to get question: %w", err)
	}

	t, err := h.taskRepo.GetByID(ctx, q.TaskID)
	if err != nil {
		return nil, fmt.Errorf("answer_question: failed to get task: %w", err)
	}

	answerer, err := h.profileRepo.GetByID(ctx, cmd.AnswererID)
	if err != nil {
		return nil, fmt.Errorf("answer_question: failed to get answerer: %w", err)
	}
	if !answerer.Role.CanTeach() {
		return nil, shared.ErrAnswererNotEligible
	}

	ans, err := question.NewAnswer(uuid.NewString(), q.ID, answerer.ID,
		cmd.AnswerText, answerer.ID == t.TeacherID)
	if err != nil {
		return nil, err
	}

	if err := h.questionRepo.AddAnswer(ctx, ans); err != nil {
		return nil, fmt.Errorf("answer_question: failed to persist: %w", err)
	}
	if err := q.AddAnswer(ans); err != nil {
		return nil, err
	}

	event := shared.NewRowChangedEvent(shared.EventAnswerChanged, shared.ChangeInsert,
		ans.ID, q.TaskID, q.StudentID, map[string]interface{}{
			"id":              ans.ID,
			"question_id":     q.ID,
			"answer_text":     ans.AnswerText,
			"answered_by":     ans.ResponderID,
			"is_from_teacher": ans.IsFromTeacher,
			"created_at":      ans.CreatedAt,
		})
	_ = h.eventPublisher.Publish(event)

	return &AnswerQuestionResult{Question: q, Answer: ans}, nil
}
