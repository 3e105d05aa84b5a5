package question

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the question storage contract.
type Repository interface {
	// Create persists a new question.
	Create(ctx context.Context, q *Question) error

	// GetByID returns a question by ID with its answers loaded oldest
	// first, or ErrQuestionNotFound.
	GetByID(ctx context.Context, id string) (*Question, error)

	// AddAnswer appends an answer to an existing question. Returns
	// ErrQuestionNotFound when the question does not exist.
	AddAnswer(ctx context.Context, a *Answer) error

	// ListThread returns the (task, student) thread, oldest first, with
	// answers loaded oldest first.
	ListThread(ctx context.Context, taskID, studentID string) ([]*Question, error)

	// ListUnansweredForTeacher returns open questions across the
	// teacher's tasks, oldest first.
	ListUnansweredForTeacher(ctx context.Context, teacherID string, limit int) ([]*Question, error)

	// CountUnanswered returns the number of open questions on a task.
	CountUnanswered(ctx context.Context, taskID string) (int, error)
}
