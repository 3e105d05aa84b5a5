package enrollment

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// ListFilter narrows enrollment listings. Zero values mean "no filter".
type ListFilter struct {
	TaskID    string
	StudentID string
	Status    Status
	Limit     int
	Offset    int
}

// TaskStats aggregates review outcomes for one task.
type TaskStats struct {
	// Attempts counts all non-cancelled enrollments.
	Attempts int

	// Reviewed counts settled seats; Passing counts those scored 4+.
	Reviewed int
	Passing  int

	// AverageScore is the mean review score over reviewed seats.
	AverageScore float64
}

// SuccessRate is the share of attempts that passed, in percent.
func (s TaskStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Passing) / float64(s.Attempts) * 100
}

// Repository defines the enrollment storage contract.
//
// Create must enforce the one-active-enrollment-per-(task, student)
// invariant with a partial unique constraint, and state changes must go
// through UpdateStatusCAS so a lost race surfaces as
// ErrConcurrentTransition instead of a silent overwrite.
type Repository interface {
	// Create persists a new enrollment.
	// Returns ErrDuplicateEnrollment when a non-cancelled enrollment
	// already exists for the (task, student) pair.
	Create(ctx context.Context, e *Enrollment) error

	// GetByID returns an enrollment by ID, or ErrEnrollmentNotFound.
	GetByID(ctx context.Context, id string) (*Enrollment, error)

	// GetActiveByTaskAndStudent returns the student's live (active or
	// completed) enrollment on a task, or ErrEnrollmentNotFound.
	GetActiveByTaskAndStudent(ctx context.Context, taskID, studentID string) (*Enrollment, error)

	// UpdateStatusCAS persists the entity's current state only when the
	// stored status still equals expected. Returns ErrConcurrentTransition
	// on a lost race.
	UpdateStatusCAS(ctx context.Context, e *Enrollment, expected Status) error

	// List returns enrollments matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Enrollment, error)

	// ListAwaitingReview returns completed enrollments for a teacher's
	// tasks, oldest submission first.
	ListAwaitingReview(ctx context.Context, teacherID string, limit int) ([]*Enrollment, error)

	// ListOverdue returns active enrollments past their deadline.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Enrollment, error)

	// CountByTask returns per-status counts for one task.
	CountByTask(ctx context.Context, taskID string) (map[Status]int, error)

	// StatsByTask aggregates review outcomes for one task.
	StatsByTask(ctx context.Context, taskID string) (TaskStats, error)
}
