package task

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// ListFilter narrows task listings. Zero values mean "no filter".
type ListFilter struct {
	Status     Status
	Difficulty Difficulty
	TeacherID  string
	Category   string

	// OnlyOpen keeps only tasks that are active, unexpired and have
	// at least one free seat.
	OnlyOpen bool

	Limit  int
	Offset int
}

// SeatCounters is the capacity snapshot returned by seat operations.
type SeatCounters struct {
	CurrentStudents int
	MaxStudents     int
}

// Repository defines the task storage contract. Seat operations must be
// atomic: ReserveSeat is the single enforcement point of the capacity
// invariant under concurrent enrollment.
type Repository interface {
	// Create persists a new task.
	Create(ctx context.Context, t *Task) error

	// GetByID returns a task by ID, or ErrTaskNotFound.
	GetByID(ctx context.Context, id string) (*Task, error)

	// Update persists mutable fields of an existing task.
	Update(ctx context.Context, t *Task) error

	// UpdateStatus transitions status only when the stored status matches
	// expected. Returns ErrConcurrentModification on a lost race.
	UpdateStatus(ctx context.Context, id string, expected, next Status) error

	// ReserveSeat atomically increments CurrentStudents while the task is
	// active and below capacity, counting the attempt. Returns
	// ErrCapacityExceeded when full and ErrTaskNotActive when the task is
	// no longer open.
	ReserveSeat(ctx context.Context, id string) (SeatCounters, error)

	// ReleaseSeat atomically decrements CurrentStudents after a cancelled
	// enrollment and uncounts the attempt. Never drops a counter below zero.
	ReleaseSeat(ctx context.Context, id string) error

	// RecordSuccess counts one passing review against the task.
	RecordSuccess(ctx context.Context, id string) error

	// List returns tasks matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Task, error)

	// ListOpenForEnrollment returns enrollable tasks for the
	// recommendation engine.
	ListOpenForEnrollment(ctx context.Context, now time.Time, limit int) ([]*Task, error)

	// ExpireDue marks active tasks whose deadline passed as expired and
	// returns the affected task IDs. Used by the scheduler.
	ExpireDue(ctx context.Context, now time.Time) ([]string, error)

	// UpdateStats writes recomputed success rate and average rating.
	UpdateStats(ctx context.Context, id string, successRate, averageRating float64) error

	// Count returns the number of tasks matching the filter.
	Count(ctx context.Context, filter ListFilter) (int, error)
}
