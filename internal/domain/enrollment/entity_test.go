package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

func newTestEnrollment(t *testing.T) *Enrollment {
	t.Helper()
	e, err := NewEnrollment("enr1", "task1", "student1", 50)
	assert.NoError(t, err)
	return e
}

func TestNewEnrollment(t *testing.T) {
	e := newTestEnrollment(t)
	assert.Equal(t, StatusActive, e.Status)
	assert.Equal(t, shared.Amount(50), e.StakeLocked)
	assert.False(t, e.EnrolledAt.IsZero())
}

func TestNewEnrollment_RejectsZeroStake(t *testing.T) {
	_, err := NewEnrollment("enr1", "task1", "student1", 0)
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusCompleted))
	assert.True(t, CanTransition(StatusActive, StatusCancelled))
	assert.True(t, CanTransition(StatusCompleted, StatusReviewed))

	// Everything else is illegal.
	assert.False(t, CanTransition(StatusActive, StatusReviewed))
	assert.False(t, CanTransition(StatusCompleted, StatusCancelled))
	assert.False(t, CanTransition(StatusCompleted, StatusActive))
	assert.False(t, CanTransition(StatusReviewed, StatusActive))
	assert.False(t, CanTransition(StatusReviewed, StatusCompleted))
	assert.False(t, CanTransition(StatusCancelled, StatusActive))
}

func TestSubmit(t *testing.T) {
	e := newTestEnrollment(t)
	now := time.Now().UTC()

	err := e.Submit("my solution", now)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, e.Status)
	assert.Equal(t, "my solution", e.SubmissionText)
	assert.Equal(t, now, e.SubmittedAt)
}

func TestSubmit_RejectsEmptyText(t *testing.T) {
	e := newTestEnrollment(t)
	err := e.Submit("   ", time.Now())
	assert.ErrorIs(t, err, shared.ErrEmptySubmission)
	assert.Equal(t, StatusActive, e.Status)
}

func TestSubmit_RejectsDoubleSubmit(t *testing.T) {
	e := newTestEnrollment(t)
	assert.NoError(t, e.Submit("first", time.Now()))

	err := e.Submit("second", time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	assert.Equal(t, "first", e.SubmissionText)
}

func TestReview(t *testing.T) {
	e := newTestEnrollment(t)
	assert.NoError(t, e.Submit("solution", time.Now()))

	err := e.Review(4, "good work", time.Now())
	assert.NoError(t, err)
	assert.Equal(t, StatusReviewed, e.Status)
	assert.Equal(t, 4, e.Score)
	assert.Equal(t, "good work", e.ReviewFeedback)
	assert.True(t, e.IsPassing())
	assert.False(t, e.IsBadgeEligible())
}

func TestReview_RequiresSubmission(t *testing.T) {
	e := newTestEnrollment(t)
	err := e.Review(5, "", time.Now())
	assert.ErrorIs(t, err, shared.ErrEnrollmentNotReviewable)
}

func TestReview_RejectsOutOfRangeScore(t *testing.T) {
	e := newTestEnrollment(t)
	assert.NoError(t, e.Submit("solution", time.Now()))

	assert.ErrorIs(t, e.Review(0, "", time.Now()), shared.ErrInvalidReviewScore)
	assert.ErrorIs(t, e.Review(6, "", time.Now()), shared.ErrInvalidReviewScore)
	assert.Equal(t, StatusCompleted, e.Status)
}

func TestReview_FiveStarsIsBadgeEligible(t *testing.T) {
	e := newTestEnrollment(t)
	assert.NoError(t, e.Submit("solution", time.Now()))
	assert.NoError(t, e.Review(5, "excellent", time.Now()))

	assert.True(t, e.IsBadgeEligible())
	assert.True(t, e.IsPassing())
}

func TestRevertReview(t *testing.T) {
	e := newTestEnrollment(t)
	assert.NoError(t, e.Submit("solution", time.Now()))
	assert.NoError(t, e.Review(3, "needs work", time.Now()))

	assert.NoError(t, e.RevertReview())
	assert.Equal(t, StatusCompleted, e.Status)
	assert.Zero(t, e.Score)
	assert.Empty(t, e.ReviewFeedback)
	assert.True(t, e.ReviewedAt.IsZero())

	// The seat is reviewable again after the rollback.
	assert.NoError(t, e.Review(4, "better", time.Now()))
}

func TestRevertReview_RequiresClaimedReview(t *testing.T) {
	e := newTestEnrollment(t)
	assert.ErrorIs(t, e.RevertReview(), shared.ErrInvalidStateTransition)

	assert.NoError(t, e.Submit("solution", time.Now()))
	assert.ErrorIs(t, e.RevertReview(), shared.ErrInvalidStateTransition)
}

func TestCancel(t *testing.T) {
	e := newTestEnrollment(t)
	assert.NoError(t, e.Cancel())
	assert.Equal(t, StatusCancelled, e.Status)
	assert.True(t, e.Status.IsTerminal())
}

func TestCancel_RejectsAfterSubmit(t *testing.T) {
	e := newTestEnrollment(t)
	assert.NoError(t, e.Submit("solution", time.Now()))
	assert.ErrorIs(t, e.Cancel(), shared.ErrInvalidStateTransition)
}

func TestIsOverdue(t *testing.T) {
	e := newTestEnrollment(t)
	now := time.Now().UTC()

	// Unbounded attempts never go overdue.
	assert.False(t, e.IsOverdue(now))

	e.Deadline = now.Add(-time.Minute)
	assert.True(t, e.IsOverdue(now))

	// Terminal states are never overdue.
	assert.NoError(t, e.Cancel())
	assert.False(t, e.IsOverdue(now))
}
