package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/ledger"
	"github.com/edustake/edustake-core/internal/domain/recommendation"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// Stubs embed the interfaces so unused methods panic loudly.

type stubTaskRepo struct {
	task.Repository
	tasks      map[string]*task.Task
	expiredIDs []string
}

func (s *stubTaskRepo) ExpireDue(context.Context, time.Time) ([]string, error) {
	return s.expiredIDs, nil
}

func (s *stubTaskRepo) GetByID(_ context.Context, id string) (*task.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, shared.ErrTaskNotFound
	}
	return t, nil
}

type stubEnrollmentRepo struct {
	enrollment.Repository
	byTask map[string][]*enrollment.Enrollment
	stats  map[string]enrollment.TaskStats
}

func (s *stubEnrollmentRepo) List(_ context.Context, f enrollment.ListFilter) ([]*enrollment.Enrollment, error) {
	var out []*enrollment.Enrollment
	for _, e := range s.byTask[f.TaskID] {
		if f.Status == "" || e.Status == f.Status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubEnrollmentRepo) UpdateStatusCAS(_ context.Context, e *enrollment.Enrollment, expected enrollment.Status) error {
	return nil
}

func (s *stubEnrollmentRepo) StatsByTask(_ context.Context, taskID string) (enrollment.TaskStats, error) {
	return s.stats[taskID], nil
}

type stubLedgerRepo struct {
	ledger.Repository
	entries []*ledger.Entry
}

func (s *stubLedgerRepo) Append(_ context.Context, e *ledger.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubLedgerRepo) refundsFor(userID string) shared.Amount {
	var total shared.Amount
	for _, e := range s.entries {
		if e.UserID == userID && e.Type == ledger.EntryRefund {
			total += e.Amount
		}
	}
	return total
}

type stubRecommendationRepo struct {
	recommendation.Repository
	deleted []string
}

func (s *stubRecommendationRepo) DeleteByTask(_ context.Context, taskID string) error {
	s.deleted = append(s.deleted, taskID)
	return nil
}

type stubPublisher struct {
	events []shared.Event
}

func (s *stubPublisher) Publish(e shared.Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *stubPublisher) countByType(t shared.EventType) int {
	var n int
	for _, e := range s.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

func mustEnrollment(t *testing.T, id, taskID, studentID string, stake shared.Amount) *enrollment.Enrollment {
	t.Helper()
	e, err := enrollment.NewEnrollment(id, taskID, studentID, stake)
	require.NoError(t, err)
	return e
}

func TestExpireTasks_RefundsStakesAndUnpaidPool(t *testing.T) {
	// Reward 100 x 3 seats = 300 pool; one passing review already paid 100.
	tk, err := task.NewTask("task1", "teacher1", "Deploy a contract", "desc",
		task.DifficultyBeginner, 100, 50, 3)
	require.NoError(t, err)

	abandoned := mustEnrollment(t, "enr1", "task1", "student1", 50)

	taskRepo := &stubTaskRepo{
		tasks:      map[string]*task.Task{"task1": tk},
		expiredIDs: []string{"task1"},
	}
	enrollRepo := &stubEnrollmentRepo{
		byTask: map[string][]*enrollment.Enrollment{"task1": {abandoned}},
		stats:  map[string]enrollment.TaskStats{"task1": {Attempts: 2, Reviewed: 1, Passing: 1}},
	}
	ledgerRepo := &stubLedgerRepo{}
	recRepo := &stubRecommendationRepo{}
	pub := &stubPublisher{}

	job := NewExpireTasksJob(taskRepo, enrollRepo, ledgerRepo, recRepo, pub, nil)
	require.NoError(t, job.Run(context.Background()))

	// Student gets the stake back, teacher gets the 200 EDU not paid out.
	assert.Equal(t, shared.Amount(50), ledgerRepo.refundsFor("student1"))
	assert.Equal(t, shared.Amount(200), ledgerRepo.refundsFor("teacher1"))
	assert.Equal(t, enrollment.StatusCancelled, abandoned.Status)

	assert.Equal(t, []string{"task1"}, recRepo.deleted)
	assert.Equal(t, 1, pub.countByType(shared.EventTaskExpired))
	assert.Equal(t, 1, pub.countByType(shared.EventEnrollmentCancelled))
}

func TestExpireTasks_FullyPaidPoolRefundsNothingToTeacher(t *testing.T) {
	tk, err := task.NewTask("task1", "teacher1", "Write property tests", "desc",
		task.DifficultyBeginner, 100, 50, 2)
	require.NoError(t, err)

	taskRepo := &stubTaskRepo{
		tasks:      map[string]*task.Task{"task1": tk},
		expiredIDs: []string{"task1"},
	}
	enrollRepo := &stubEnrollmentRepo{
		stats: map[string]enrollment.TaskStats{"task1": {Attempts: 2, Reviewed: 2, Passing: 2}},
	}
	ledgerRepo := &stubLedgerRepo{}
	pub := &stubPublisher{}

	job := NewExpireTasksJob(taskRepo, enrollRepo, ledgerRepo, &stubRecommendationRepo{}, pub, nil)
	require.NoError(t, job.Run(context.Background()))

	assert.Empty(t, ledgerRepo.entries)
	assert.Equal(t, 1, pub.countByType(shared.EventTaskExpired))
}

func TestExpireTasks_NothingDueIsANoop(t *testing.T) {
	taskRepo := &stubTaskRepo{}
	ledgerRepo := &stubLedgerRepo{}
	pub := &stubPublisher{}

	job := NewExpireTasksJob(taskRepo, &stubEnrollmentRepo{}, ledgerRepo, &stubRecommendationRepo{}, pub, nil)
	require.NoError(t, job.Run(context.Background()))

	assert.Empty(t, ledgerRepo.entries)
	assert.Empty(t, pub.events)
}
