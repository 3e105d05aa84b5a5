package recommendation

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the explanation storage contract. One explanation
// per (student, task) pair: Upsert replaces on conflict, so repeated
// recomputation is idempotent.
type Repository interface {
	// Upsert inserts the explanation, replacing any previous one for the
	// same (student, task) pair.
	Upsert(ctx context.Context, x *Explanation) error

	// GetByStudentAndTask returns the stored explanation, or
	// ErrExplanationNotFound.
	GetByStudentAndTask(ctx context.Context, studentID, taskID string) (*Explanation, error)

	// ListByStudent returns the student's explanations, highest
	// relevance first.
	ListByStudent(ctx context.Context, studentID string, limit int) ([]*Explanation, error)

	// DeleteByTask removes all explanations for a task that left the
	// open state.
	DeleteByTask(ctx context.Context, taskID string) error
}
