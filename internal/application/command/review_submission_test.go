package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// reviewEnv seeds a teacher with a one-seat task, enrolls a student and
// submits a solution, leaving the enrollment ready for review.
func reviewEnv(t *testing.T, maxStudents int) (*testEnv, *ReviewSubmissionHandler, string) {
	t.Helper()
	env := newTestEnv()
	env.seedProfile("teacher1", "0xaaaa3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b",
		profile.RoleTeacher, 5000)
	env.seedProfile("student1", "0xbbbb3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b",
		profile.RoleStudent, 1000)
	env.seedTask("task1", "teacher1", 200, 90, maxStudents)

	enroll := NewEnrollHandler(env.enrollments, env.tasks, env.profiles, env.entries, env.publisher)
	enrolled, err := enroll.Handle(context.Background(), EnrollCommand{TaskID: "task1", StudentID: "student1"})
	assert.NoError(t, err)

	submit := NewSubmitSolutionHandler(env.enrollments, env.publisher)
	_, err = submit.Handle(context.Background(), SubmitSolutionCommand{
		EnrollmentID:   enrolled.Enrollment.ID,
		StudentID:      "student1",
		SubmissionText: "goroutines and channels, annotated",
	})
	assert.NoError(t, err)

	handler := NewReviewSubmissionHandler(env.enrollments, env.tasks, env.profiles, env.entries, env.publisher)
	return env, handler, enrolled.Enrollment.ID
}

func TestSubmitSolution_RejectsForeignAndEmpty(t *testing.T) {
	env := newTestEnv()
	env.seedProfile("teacher1", "0xaaaa3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b",
		profile.RoleTeacher, 5000)
	env.seedProfile("student1", "0xbbbb3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b",
		profile.RoleStudent, 1000)
	env.seedTask("task1", "teacher1", 200, 50, 2)

	enroll := NewEnrollHandler(env.enrollments, env.tasks, env.profiles, env.entries, env.publisher)
	enrolled, err := enroll.Handle(context.Background(), EnrollCommand{TaskID: "task1", StudentID: "student1"})
	assert.NoError(t, err)

	submit := NewSubmitSolutionHandler(env.enrollments, env.publisher)

	_, err = submit.Handle(context.Background(), SubmitSolutionCommand{
		EnrollmentID:   enrolled.Enrollment.ID,
		StudentID:      "intruder",
		SubmissionText: "stolen work",
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = submit.Handle(context.Background(), SubmitSolutionCommand{
		EnrollmentID:   enrolled.Enrollment.ID,
		StudentID:      "student1",
		SubmissionText: "   ",
	})
	assert.ErrorIs(t, err, shared.ErrEmptySubmission)
}

func TestReview_PassingScoreRefundsStakeAndPaysReward(t *testing.T) {
	env, handler, enrID := reviewEnv(t, 1)

	result, err := handler.Handle(context.Background(), ReviewSubmissionCommand{
		EnrollmentID: enrID,
		ReviewerID:   "teacher1",
		Score:        5,
		Feedback:     "excellent",
	})
	assert.NoError(t, err)
	assert.Equal(t, enrollment.StatusReviewed, result.Enrollment.Status)
	assert.Equal(t, shared.Amount(90), result.Settlement.Refund)
	assert.Equal(t, shared.Amount(200), result.Settlement.Reward)
	assert.Equal(t, shared.Amount(0), result.Settlement.Penalty)
	assert.True(t, result.BadgeEligible)
	assert.True(t, result.TaskCompleted)

	// Student: 1000 grant - 90 stake + 90 refund + 200 reward.
	balance, err := env.entries.GetBalance(context.Background(), "student1")
	assert.NoError(t, err)
	assert.Equal(t, shared.Amount(1200), balance.Available)
	assert.Equal(t, shared.Amount(0), balance.Locked)

	// Teacher keeps the pool locked away: 5000 - 200 reward pool.
	teacherBalance, err := env.entries.GetBalance(context.Background(), "teacher1")
	assert.NoError(t, err)
	assert.Equal(t, shared.Amount(4800), teacherBalance.Available)

	student, err := env.profiles.GetByID(context.Background(), "student1")
	assert.NoError(t, err)
	assert.Equal(t, 1, student.TotalTasksCompleted)
	assert.InDelta(t, 65.0, float64(student.Reputation), 0.001)

	assert.Len(t, env.publisher.byType(shared.EventEnrollmentReviewed), 1)
	assert.Len(t, env.publisher.byType(shared.EventSettlementApplied), 1)
}

func TestReview_FailingScoreSplitsStakeAndReturnsReward(t *testing.T) {
	env, handler, enrID := reviewEnv(t, 1)

	result, err := handler.Handle(context.Background(), ReviewSubmissionCommand{
		EnrollmentID: enrID,
		ReviewerID:   "teacher1",
		Score:        2,
		Feedback:     "missed the deadlock case",
	})
	assert.NoError(t, err)
	assert.Equal(t, shared.Amount(30), result.Settlement.Refund)
	assert.Equal(t, shared.Amount(60), result.Settlement.Penalty)
	assert.Equal(t, shared.Amount(0), result.Settlement.Reward)
	assert.False(t, result.BadgeEligible)

	// Student: 1000 - 90 + 30 refund.
	balance, err := env.entries.GetBalance(context.Background(), "student1")
	assert.NoError(t, err)
	assert.Equal(t, shared.Amount(940), balance.Available)

	// Teacher: 5000 - 200 pool + 60 penalty + 200 unpaid reward returned.
	teacherBalance, err := env.entries.GetBalance(context.Background(), "teacher1")
	assert.NoError(t, err)
	assert.Equal(t, shared.Amount(5060), teacherBalance.Available)

	// A failing score is still a finished attempt, not a completion.
	student, err := env.profiles.GetByID(context.Background(), "student1")
	assert.NoError(t, err)
	assert.Equal(t, 0, student.TotalTasksCompleted)
	assert.Equal(t, 1, student.TotalTasksAttempted)

	stored, err := env.tasks.GetByID(context.Background(), "task1")
	assert.NoError(t, err)
	assert.Equal(t, 0, stored.SuccessfulCompletions)
}

func TestReview_PassingScoreCountsTaskSuccess(t *testing.T) {
	env, handler, enrID := reviewEnv(t, 1)

	_, err := handler.Handle(context.Background(), ReviewSubmissionCommand{
		EnrollmentID: enrID,
		ReviewerID:   "teacher1",
		Score:        4,
	})
	assert.NoError(t, err)

	stored, err := env.tasks.GetByID(context.Background(), "task1")
	assert.NoError(t, err)
	assert.Equal(t, 1, stored.TotalAttempts)
	assert.Equal(t, 1, stored.SuccessfulCompletions)
}

func TestReview_FailedSettlementReleasesClaimForRetry(t *testing.T) {
	env, handler, enrID := reviewEnv(t, 1)
	env.entries.failBatch = true

	_, err := handler.Handle(context.Background(), ReviewSubmissionCommand{
		EnrollmentID: enrID,
		ReviewerID:   "teacher1",
		Score:        5,
		Feedback:     "excellent",
	})
	assert.ErrorIs(t, err, shared.ErrSettlementFailure)

	// The claim must be rolled back, or the stake stays locked forever.
	stored, err := env.enrollments.GetByID(context.Background(), enrID)
	assert.NoError(t, err)
	assert.Equal(t, enrollment.StatusCompleted, stored.Status)
	assert.Equal(t, 0, stored.Score)

	balance, err := env.entries.GetBalance(context.Background(), "student1")
	assert.NoError(t, err)
	assert.Equal(t, shared.Amount(90), balance.Locked)

	// Once the ledger recovers, the same review goes through.
	env.entries.failBatch = false
	result, err := handler.Handle(context.Background(), ReviewSubmissionCommand{
		EnrollmentID: enrID,
		ReviewerID:   "teacher1",
		Score:        5,
		Feedback:     "excellent",
	})
	assert.NoError(t, err)
	assert.Equal(t, enrollment.StatusReviewed, result.Enrollment.Status)

	balance, err = env.entries.GetBalance(context.Background(), "student1")
	assert.NoError(t, err)
	assert.Equal(t, shared.Amount(1200), balance.Available)
	assert.Equal(t, shared.Amount(0), balance.Locked)
}

func TestReview_OnlyTaskTeacherMayReview(t *testing.T) {
	env, handler, enrID := reviewEnv(t, 1)
	env.seedProfile("teacher2", "0xcccc3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b",
		profile.RoleTeacher, 5000)

	_, err := handler.Handle(context.Background(), ReviewSubmissionCommand{
		EnrollmentID: enrID,
		ReviewerID:   "teacher2",
		Score:        5,
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestReview_DoubleReviewSettlesOnce(t *testing.T) {
	env, handler, enrID := reviewEnv(t, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = handler.Handle(context.Background(), ReviewSubmissionCommand{
				EnrollmentID: enrID,
				ReviewerID:   "teacher1",
				Score:        5,
			})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		// The loser fails either at the compare-and-set or, if it read
		// after the winner wrote, at the reviewable check.
		lostRace := errors.Is(err, shared.ErrConcurrentModification) ||
			errors.Is(err, shared.ErrInvalidState)
		assert.True(t, lostRace, "unexpected error: %v", err)
	}
	assert.Equal(t, 1, won, "the compare-and-set lets exactly one review settle")

	// Exactly one refund + one reward, never doubled.
	balance, err := env.entries.GetBalance(context.Background(), "student1")
	assert.NoError(t, err)
	assert.Equal(t, shared.Amount(1200), balance.Available)
}

func TestReview_LastReviewCompletesTaskAndUpdatesStats(t *testing.T) {
	env, handler, enrID := reviewEnv(t, 1)

	result, err := handler.Handle(context.Background(), ReviewSubmissionCommand{
		EnrollmentID: enrID,
		ReviewerID:   "teacher1",
		Score:        4,
	})
	assert.NoError(t, err)
	assert.True(t, result.TaskCompleted)

	stored, err := env.tasks.GetByID(context.Background(), "task1")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, stored.Status)

	stats, err := env.enrollments.StatsByTask(context.Background(), "task1")
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Reviewed)
	assert.Equal(t, 1, stats.Passing)
	assert.InDelta(t, 100.0, stats.SuccessRate(), 0.001)
}

func TestReview_RequiresSubmittedWork(t *testing.T) {
	env := newTestEnv()
	env.seedProfile("teacher1", "0xaaaa3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b",
		profile.RoleTeacher, 5000)
	env.seedProfile("student1", "0xbbbb3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b",
		profile.RoleStudent, 1000)
	env.seedTask("task1", "teacher1", 200, 90, 1)

	enroll := NewEnrollHandler(env.enrollments, env.tasks, env.profiles, env.entries, env.publisher)
	enrolled, err := enroll.Handle(context.Background(), EnrollCommand{TaskID: "task1", StudentID: "student1"})
	assert.NoError(t, err)

	handler := NewReviewSubmissionHandler(env.enrollments, env.tasks, env.profiles, env.entries, env.publisher)
	_, err = handler.Handle(context.Background(), ReviewSubmissionCommand{
		EnrollmentID: enrolled.Enrollment.ID,
		ReviewerID:   "teacher1",
		Score:        5,
	})
	assert.ErrorIs(t, err, shared.ErrEnrollmentNotReviewable)
}
