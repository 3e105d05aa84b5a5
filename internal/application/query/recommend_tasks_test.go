package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/recommendation"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ─────────────────────────────────────────────────────────────────────────────
// Стабы: встраивание интерфейса оставляет нереализованные методы
// паникующими, тест использует только нужные.
// ─────────────────────────────────────────────────────────────────────────────

type stubTaskRepo struct {
	task.Repository
	open []*task.Task
}

func (s *stubTaskRepo) ListOpenForEnrollment(context.Context, time.Time, int) ([]*task.Task, error) {
	return s.open, nil
}

type stubProfileRepo struct {
	profile.Repository
	profiles map[string]*profile.Profile
}

func (s *stubProfileRepo) GetByID(_ context.Context, id string) (*profile.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p, nil
}

type stubRecommendationRepo struct {
	recommendation.Repository
	upserts map[string]*recommendation.Explanation // key student|task
	calls   int
}

func (s *stubRecommendationRepo) Upsert(_ context.Context, x *recommendation.Explanation) error {
	if s.upserts == nil {
		s.upserts = make(map[string]*recommendation.Explanation)
	}
	s.calls++
	s.upserts[x.StudentID+"|"+x.TaskID] = x
	return nil
}

func mustProfile(t *testing.T, id, wallet string, role profile.Role) *profile.Profile {
	t.Helper()
	p, err := profile.NewProfile(id, shared.WalletAddress(wallet), role, profile.Username("user_"+id))
	require.NoError(t, err)
	return p
}

func mustTask(t *testing.T, id, teacherID string, reward, stake shared.Amount) *task.Task {
	t.Helper()
	tk, err := task.NewTask(id, teacherID, "Build a rate limiter", "Sliding window over Redis",
		task.DifficultyBeginner, reward, stake, 3)
	require.NoError(t, err)
	return tk
}

func TestRecommendTasks_RanksByRelevance(t *testing.T) {
	student := mustProfile(t, "student1", "0x1111111111111111111111111111111111111111", profile.RoleStudent)
	goodTeacher := mustProfile(t, "teacher1", "0x2222222222222222222222222222222222222222", profile.RoleTeacher)
	goodTeacher.Reputation = 80

	// Три фактора: совпадение уровня, ratio 2.0, репутация учителя.
	strong := mustTask(t, "task-strong", "teacher1", 200, 100)
	// Один фактор: только совпадение уровня (ratio 1.0, репутация 50).
	plainTeacher := mustProfile(t, "teacher2", "0x3333333333333333333333333333333333333333", profile.RoleTeacher)
	weak := mustTask(t, "task-weak", "teacher2", 100, 100)

	recRepo := &stubRecommendationRepo{}
	h := NewRecommendTasksHandler(
		&stubTaskRepo{open: []*task.Task{weak, strong}},
		&stubProfileRepo{profiles: map[string]*profile.Profile{
			"student1": student, "teacher1": goodTeacher, "teacher2": plainTeacher,
		}},
		recRepo,
	)

	result, err := h.Handle(context.Background(), RecommendTasksQuery{StudentID: "student1"})
	require.NoError(t, err)

	require.Len(t, result.Tasks, 2)
	assert.Equal(t, "task-strong", result.Tasks[0].TaskID)
	assert.Equal(t, 75, result.Tasks[0].RelevanceScore)
	assert.Equal(t, "task-weak", result.Tasks[1].TaskID)
	assert.Equal(t, 25, result.Tasks[1].RelevanceScore)
	assert.Equal(t, "beginner", result.SkillTier)

	// Объяснения сохранены для обеих рекомендаций.
	assert.Len(t, recRepo.upserts, 2)
	stored := recRepo.upserts["student1|task-strong"]
	require.NotNil(t, stored)
	assert.Contains(t, stored.Explanation, "This task was recommended because")
}

func TestRecommendTasks_SkipsOwnTasks(t *testing.T) {
	both := mustProfile(t, "hybrid1", "0x4444444444444444444444444444444444444444", profile.RoleBoth)
	both.Reputation = 80
	own := mustTask(t, "task-own", "hybrid1", 300, 100)

	recRepo := &stubRecommendationRepo{}
	h := NewRecommendTasksHandler(
		&stubTaskRepo{open: []*task.Task{own}},
		&stubProfileRepo{profiles: map[string]*profile.Profile{"hybrid1": both}},
		recRepo,
	)

	result, err := h.Handle(context.Background(), RecommendTasksQuery{StudentID: "hybrid1"})
	require.NoError(t, err)
	assert.Empty(t, result.Tasks)
	assert.Empty(t, recRepo.upserts)
}

func TestRecommendTasks_RecomputeOverwritesExplanations(t *testing.T) {
	student := mustProfile(t, "student1", "0x1111111111111111111111111111111111111111", profile.RoleStudent)
	teacher := mustProfile(t, "teacher1", "0x2222222222222222222222222222222222222222", profile.RoleTeacher)
	teacher.Reputation = 80
	tk := mustTask(t, "task1", "teacher1", 200, 100)

	recRepo := &stubRecommendationRepo{}
	h := NewRecommendTasksHandler(
		&stubTaskRepo{open: []*task.Task{tk}},
		&stubProfileRepo{profiles: map[string]*profile.Profile{
			"student1": student, "teacher1": teacher,
		}},
		recRepo,
	)

	_, err := h.Handle(context.Background(), RecommendTasksQuery{StudentID: "student1"})
	require.NoError(t, err)
	_, err = h.Handle(context.Background(), RecommendTasksQuery{StudentID: "student1"})
	require.NoError(t, err)

	// Пересчёт обновляет существующую строку, а не добавляет вторую.
	assert.Equal(t, 2, recRepo.calls)
	assert.Len(t, recRepo.upserts, 1)
}

func TestRecommendTasks_HonorsLimit(t *testing.T) {
	student := mustProfile(t, "student1", "0x1111111111111111111111111111111111111111", profile.RoleStudent)
	teacher := mustProfile(t, "teacher1", "0x2222222222222222222222222222222222222222", profile.RoleTeacher)
	teacher.Reputation = 80

	profiles := map[string]*profile.Profile{"student1": student, "teacher1": teacher}
	open := make([]*task.Task, 0, 5)
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		open = append(open, mustTask(t, id, "teacher1", 200, 100))
	}

	h := NewRecommendTasksHandler(
		&stubTaskRepo{open: open},
		&stubProfileRepo{profiles: profiles},
		&stubRecommendationRepo{},
	)

	// Лимит по умолчанию 3.
	result, err := h.Handle(context.Background(), RecommendTasksQuery{StudentID: "student1"})
	require.NoError(t, err)
	assert.Len(t, result.Tasks, 3)

	result, err = h.Handle(context.Background(), RecommendTasksQuery{StudentID: "student1", Limit: 5})
	require.NoError(t, err)
	assert.Len(t, result.Tasks, 5)
}

func TestRecommendTasks_RequiresStudentID(t *testing.T) {
	h := NewRecommendTasksHandler(&stubTaskRepo{}, &stubProfileRepo{}, &stubRecommendationRepo{})

	_, err := h.Handle(context.Background(), RecommendTasksQuery{})
	assert.Error(t, err)
}
