// Package task contains the domain model for staked learning tasks.
// A task is published by a teacher who locks a reward pool; students
// reserve seats by locking their own stake.
package task

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Difficulty is the declared difficulty of a task. It feeds the
// recommendation engine's difficulty_match factor.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// IsValid reports whether the difficulty is one of the known values.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusActive - accepting enrollments (subject to capacity and expiry).
	StatusActive Status = "active"
	// StatusCompleted - all seats reviewed, reward pool fully settled.
	StatusCompleted Status = "completed"
	// StatusCancelled - withdrawn by the teacher before any enrollment.
	StatusCancelled Status = "cancelled"
	// StatusExpired - deadline passed with open seats remaining.
	StatusExpired Status = "expired"
)

// IsValid reports whether the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: TASK
// ══════════════════════════════════════════════════════════════════════════════

// Task is a published learning task with a staked reward pool.
//
// Invariants:
//   - CurrentStudents never exceeds MaxStudents.
//   - RewardAmount and StakeRequired are strictly positive.
//   - SuccessfulCompletions never exceeds TotalAttempts.
//   - The teacher's locked pool is RewardAmount * MaxStudents and is
//     released per-seat at settlement time.
type Task struct {
	ID          string
	TeacherID   string
	Title       string
	Description string

	// Category groups the task in catalog filters (optional).
	Category string

	// Tags are free-form labels attached by the teacher.
	Tags []string

	Difficulty Difficulty
	Status     Status

	// RewardAmount is the EDU reward paid per student on a passing review.
	RewardAmount shared.Amount

	// StakeRequired is the EDU stake a student must lock to enroll.
	StakeRequired shared.Amount

	// MaxStudents is the seat capacity; CurrentStudents counts taken seats.
	MaxStudents     int
	CurrentStudents int

	// MaxAttempts bounds retries per student (0 means unlimited).
	MaxAttempts int

	// TotalAttempts counts every seat ever reserved;
	// SuccessfulCompletions counts passing reviews.
	TotalAttempts         int
	SuccessfulCompletions int

	// TimeLimitMinutes bounds a single attempt (0 means unbounded).
	TimeLimitMinutes int

	// ExpiresAt is the enrollment deadline (zero value means no deadline).
	ExpiresAt time.Time

	// SuccessRate is the share of reviewed enrollments that passed,
	// in percent. Recomputed by the background stats job.
	SuccessRate float64

	// AverageRating is the mean review score across reviewed seats.
	AverageRating float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTask creates a task in the active state.
func NewTask(id, teacherID, title, description string, difficulty Difficulty,
	reward, stake shared.Amount, maxStudents int) (*Task, error) {

	t := &Task{
		ID:            id,
		TeacherID:     teacherID,
		Title:         strings.TrimSpace(title),
		Description:   strings.TrimSpace(description),
		Difficulty:    difficulty,
		Status:        StatusActive,
		RewardAmount:  reward,
		StakeRequired: stake,
		MaxStudents:   maxStudents,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	return t, nil
}

// Validate checks the task invariants.
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task: id is required")
	}
	if t.TeacherID == "" {
		return errors.New("task: teacher id is required")
	}
	if t.Title == "" {
		return errors.New("task: title is required")
	}
	if len(t.Title) > 200 {
		return fmt.Errorf("task: title too long: %d characters", len(t.Title))
	}
	if !t.Difficulty.IsValid() {
		return fmt.Errorf("task: invalid difficulty %q", t.Difficulty)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("task: invalid status %q", t.Status)
	}
	if t.RewardAmount <= 0 || t.StakeRequired <= 0 {
		return shared.ErrInvalidAmount
	}
	if t.MaxStudents <= 0 {
		return shared.ErrInvalidCapacity
	}
	if t.CurrentStudents < 0 || t.CurrentStudents > t.MaxStudents {
		return shared.ErrCapacityExceeded
	}
	if t.MaxAttempts < 0 || t.TotalAttempts < 0 || t.SuccessfulCompletions < 0 {
		return shared.ErrNegativeValue
	}
	if t.SuccessfulCompletions > t.TotalAttempts {
		return fmt.Errorf("task: successful completions (%d) cannot exceed attempts (%d)",
			t.SuccessfulCompletions, t.TotalAttempts)
	}
	if len(t.Category) > 50 {
		return fmt.Errorf("task: category too long: %d characters", len(t.Category))
	}
	if t.TimeLimitMinutes < 0 {
		return shared.ErrNegativeValue
	}
	return nil
}

// RewardPool is the total amount the teacher locks on publication.
func (t *Task) RewardPool() shared.Amount {
	return t.RewardAmount * shared.Amount(t.MaxStudents)
}

// RewardRatio is reward divided by required stake. Ratios above 1.5
// count as favorable for recommendations.
func (t *Task) RewardRatio() float64 {
	if t.StakeRequired == 0 {
		return 0
	}
	return float64(t.RewardAmount) / float64(t.StakeRequired)
}

// HasCapacity reports whether at least one seat remains.
func (t *Task) HasCapacity() bool {
	return t.CurrentStudents < t.MaxStudents
}

// IsExpired reports whether the enrollment deadline has passed.
func (t *Task) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// IsOpenForEnrollment reports whether a student may take a seat right now.
func (t *Task) IsOpenForEnrollment(now time.Time) bool {
	return t.Status == StatusActive && t.HasCapacity() && !t.IsExpired(now)
}

// Cancel withdraws the task. Only an active task with no taken seats
// can be cancelled; the teacher's pool is refunded by the caller.
func (t *Task) Cancel() error {
	if t.Status != StatusActive {
		return shared.ErrTaskNotActive
	}
	if t.CurrentStudents > 0 {
		return shared.NewDomainError("task", "Cancel", shared.ErrInvalidState,
			"cannot cancel a task with enrolled students")
	}
	t.Status = StatusCancelled
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete marks the task finished once every seat has been reviewed.
func (t *Task) Complete() error {
	if t.Status != StatusActive {
		return shared.ErrTaskNotActive
	}
	t.Status = StatusCompleted
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Expire transitions an active task past its deadline.
func (t *Task) Expire() error {
	if t.Status != StatusActive {
		return shared.ErrTaskNotActive
	}
	t.Status = StatusExpired
	t.UpdatedAt = time.Now().UTC()
	return nil
}
