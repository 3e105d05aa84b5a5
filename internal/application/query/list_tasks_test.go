package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustake/edustake-core/internal/domain/task"
)

type stubListTaskRepo struct {
	task.Repository
	tasks  []*task.Task
	filter task.ListFilter
}

func (s *stubListTaskRepo) List(_ context.Context, filter task.ListFilter) ([]*task.Task, error) {
	s.filter = filter
	return s.tasks, nil
}

func (s *stubListTaskRepo) Count(context.Context, task.ListFilter) (int, error) {
	return len(s.tasks), nil
}

func catalogTask(t *testing.T, id, category string) *task.Task {
	t.Helper()
	tk, err := task.NewTask(id, "teacher1", "Build a rate limiter", "Sliding window over Redis",
		task.DifficultyBeginner, 200, 100, 3)
	require.NoError(t, err)
	tk.Category = category
	tk.Tags = []string{"redis", "rate-limiting"}
	tk.MaxAttempts = 2
	tk.TotalAttempts = 4
	tk.SuccessfulCompletions = 3
	return tk
}

func TestListTasks_PassesCategoryFilter(t *testing.T) {
	repo := &stubListTaskRepo{tasks: []*task.Task{catalogTask(t, "t1", "backend")}}
	h := NewListTasksHandler(repo)

	result, err := h.Handle(context.Background(), ListTasksQuery{Category: "backend"})
	require.NoError(t, err)

	assert.Equal(t, "backend", repo.filter.Category)
	require.Len(t, result.Tasks, 1)

	// Каталожные поля доезжают до DTO.
	dto := result.Tasks[0]
	assert.Equal(t, "backend", dto.Category)
	assert.Equal(t, []string{"redis", "rate-limiting"}, dto.Tags)
	assert.Equal(t, 2, dto.MaxAttempts)
	assert.Equal(t, 4, dto.TotalAttempts)
	assert.Equal(t, 3, dto.SuccessfulCompletions)
}

func TestListTasks_RejectsUnknownStatus(t *testing.T) {
	h := NewListTasksHandler(&stubListTaskRepo{})

	_, err := h.Handle(context.Background(), ListTasksQuery{Status: "archived"})
	assert.Error(t, err)
}
