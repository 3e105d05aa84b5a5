// Package enrollment contains the domain model for a student's staked
// attempt at a task. The enrollment lifecycle is a strict state machine;
// every transition is guarded both here and by a compare-and-set in the
// persistence layer.
package enrollment

import (
	"errors"
	"strings"
	"time"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of an enrollment.
type Status string

const (
	// StatusActive - seat taken, stake locked, work in progress.
	StatusActive Status = "active"
	// StatusCompleted - solution submitted, awaiting review.
	StatusCompleted Status = "completed"
	// StatusReviewed - teacher scored the submission, stake settled.
	StatusReviewed Status = "reviewed"
	// StatusCancelled - student withdrew before submitting, stake refunded.
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusReviewed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusReviewed || s == StatusCancelled
}

// transitions is the complete set of legal state changes.
var transitions = map[Status][]Status{
	StatusActive:    {StatusCompleted, StatusCancelled},
	StatusCompleted: {StatusReviewed},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

// Enrollment is one student's staked seat on one task.
//
// Invariants:
//   - At most one non-cancelled enrollment per (task, student) pair.
//   - StakeLocked is fixed at enrollment time and never changes.
//   - Score is set exactly once, by the reviewing teacher.
type Enrollment struct {
	ID        string
	TaskID    string
	StudentID string
	Status    Status

	// StakeLocked is the EDU amount locked when the seat was taken.
	StakeLocked shared.Amount

	// SubmissionText is the student's solution (set on submit).
	SubmissionText string
	SubmittedAt    time.Time

	// Score is the review score 1-5 (0 while unreviewed).
	Score          int
	ReviewFeedback string
	ReviewedAt     time.Time

	// Deadline bounds the attempt when the task has a time limit
	// (zero value means unbounded).
	Deadline time.Time

	EnrolledAt time.Time
	UpdatedAt  time.Time
}

// NewEnrollment creates an active enrollment with the stake locked.
func NewEnrollment(id, taskID, studentID string, stake shared.Amount) (*Enrollment, error) {
	if id == "" || taskID == "" || studentID == "" {
		return nil, errors.New("enrollment: id, task id and student id are required")
	}
	if stake <= 0 {
		return nil, shared.ErrInvalidAmount
	}

	now := time.Now().UTC()
	return &Enrollment{
		ID:          id,
		TaskID:      taskID,
		StudentID:   studentID,
		Status:      StatusActive,
		StakeLocked: stake,
		EnrolledAt:  now,
		UpdatedAt:   now,
	}, nil
}

// transition applies a guarded state change.
func (e *Enrollment) transition(to Status) error {
	if !CanTransition(e.Status, to) {
		return shared.ErrInvalidStateTransition
	}
	e.Status = to
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Submit records the solution and moves the enrollment to completed.
func (e *Enrollment) Submit(text string, now time.Time) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return shared.ErrEmptySubmission
	}
	if err := e.transition(StatusCompleted); err != nil {
		return err
	}
	e.SubmissionText = text
	e.SubmittedAt = now.UTC()
	return nil
}

// Review records the teacher's score and moves the enrollment to reviewed.
func (e *Enrollment) Review(score int, feedback string, now time.Time) error {
	if score < 1 || score > 5 {
		return shared.ErrInvalidReviewScore
	}
	if e.Status != StatusCompleted {
		return shared.ErrEnrollmentNotReviewable
	}
	if err := e.transition(StatusReviewed); err != nil {
		return err
	}
	e.Score = score
	e.ReviewFeedback = strings.TrimSpace(feedback)
	e.ReviewedAt = now.UTC()
	return nil
}

// RevertReview releases a claimed review back to completed and clears
// the score. Review requires a completed enrollment, so without this
// rollback a review whose settlement never committed would leave the
// stake stranded in a reviewed-but-unsettled seat forever.
func (e *Enrollment) RevertReview() error {
	if e.Status != StatusReviewed {
		return shared.ErrInvalidStateTransition
	}
	e.Status = StatusCompleted
	e.Score = 0
	e.ReviewFeedback = ""
	e.ReviewedAt = time.Time{}
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel withdraws an active enrollment.
func (e *Enrollment) Cancel() error {
	return e.transition(StatusCancelled)
}

// IsPassing reports whether the review score releases the full stake.
// Scores of 4 and 5 pass; lower scores forfeit part of the stake.
func (e *Enrollment) IsPassing() bool {
	return e.Status == StatusReviewed && e.Score >= 4
}

// IsBadgeEligible reports whether the review earned an excellence badge.
func (e *Enrollment) IsBadgeEligible() bool {
	return e.Status == StatusReviewed && e.Score == 5
}

// IsOverdue reports whether a bounded attempt has run past its deadline.
func (e *Enrollment) IsOverdue(now time.Time) bool {
	return e.Status == StatusActive && !e.Deadline.IsZero() && now.After(e.Deadline)
}
