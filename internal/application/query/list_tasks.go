package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edustake/edustake-core/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST TASKS QUERY
// Каталог задач маркетплейса с фильтрами по статусу, сложности и
// учителю.
// ══════════════════════════════════════════════════════════════════════════════

// ListTasksQuery содержит параметры запроса каталога.
type ListTasksQuery struct {
	// Status - фильтр по статусу (пустая строка = все).
	Status string

	// Difficulty - фильтр по сложности (пустая строка = все).
	Difficulty string

	// TeacherID - фильтр по учителю (пустая строка = все).
	TeacherID string

	// Category - фильтр по категории каталога (пустая строка = все).
	Category string

	// OnlyOpen - только задачи, доступные для записи прямо сейчас.
	OnlyOpen bool

	// Limit - количество записей (по умолчанию 20, максимум 100).
	Limit int

	// Offset - смещение для пагинации.
	Offset int
}

// Validate проверяет корректность параметров запроса.
func (q *ListTasksQuery) Validate() error {
	if q.Status != "" && !task.Status(q.Status).IsValid() {
		return fmt.Errorf("list_tasks: unknown status: %s", q.Status)
	}
	if q.Difficulty != "" && !task.Difficulty(q.Difficulty).IsValid() {
		return fmt.Errorf("list_tasks: unknown difficulty: %s", q.Difficulty)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return errors.New("list_tasks: limit and offset cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// TaskDTO - DTO задачи каталога.
type TaskDTO struct {
	// ID - ID задачи.
	ID string `json:"id"`

	// TeacherID - ID учителя.
	TeacherID string `json:"teacher_id"`

	// Title - заголовок.
	Title string `json:"title"`

	// Description - описание.
	Description string `json:"description"`

	// Category - категория каталога.
	Category string `json:"category,omitempty"`

	// Tags - метки, проставленные учителем.
	Tags []string `json:"tags,omitempty"`

	// Difficulty - сложность.
	Difficulty string `json:"difficulty"`

	// Status - статус жизненного цикла.
	Status string `json:"status"`

	// RewardAmount - награда за выполнение.
	RewardAmount int64 `json:"reward_amount"`

	// StakeRequired - требуемый стейк.
	StakeRequired int64 `json:"stake_required"`

	// SeatsTaken / SeatsTotal - занятость мест.
	SeatsTaken int `json:"seats_taken"`
	SeatsTotal int `json:"seats_total"`

	// MaxAttempts - лимит попыток на студента (0 = без лимита).
	MaxAttempts int `json:"max_attempts"`

	// TotalAttempts / SuccessfulCompletions - счётчики попыток.
	TotalAttempts         int `json:"total_attempts"`
	SuccessfulCompletions int `json:"successful_completions"`

	// SuccessRate - доля успешных ревью в процентах.
	SuccessRate float64 `json:"success_rate"`

	// AverageRating - средняя оценка ревью.
	AverageRating float64 `json:"average_rating"`

	// ExpiresAt - дедлайн записи (nil = без дедлайна).
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// CreatedAt - когда задача опубликована.
	CreatedAt time.Time `json:"created_at"`
}

// ListTasksResult содержит результат запроса каталога.
type ListTasksResult struct {
	// Tasks - задачи, новые первыми.
	Tasks []TaskDTO `json:"tasks"`

	// TotalCount - общее количество задач по фильтру.
	TotalCount int `json:"total_count"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ListTasksHandler обрабатывает ListTasksQuery.
type ListTasksHandler struct {
	taskRepo task.Repository
}

// NewListTasksHandler создаёт новый ListTasksHandler.
func NewListTasksHandler(taskRepo task.Repository) *ListTasksHandler {
	return &ListTasksHandler{taskRepo: taskRepo}
}

// Handle выполняет запрос каталога.
func (h *ListTasksHandler) Handle(ctx context.Context, q ListTasksQuery) (*ListTasksResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter := task.ListFilter{
		Status:     task.Status(q.Status),
		Difficulty: task.Difficulty(q.Difficulty),
		TeacherID:  q.TeacherID,
		Category:   q.Category,
		OnlyOpen:   q.OnlyOpen,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}

	tasks, err := h.taskRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list_tasks: failed to list: %w", err)
	}

	total, err := h.taskRepo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list_tasks: failed to count: %w", err)
	}

	result := &ListTasksResult{
		Tasks:      make([]TaskDTO, 0, len(tasks)),
		TotalCount: total,
	}
	for _, t := range tasks {
		dto := TaskDTO{
			ID:            t.ID,
			TeacherID:     t.TeacherID,
			Title:         t.Title,
			Description:   t.Description,
			Category:      t.Category,
			Tags:          t.Tags,
			Difficulty:    string(t.Difficulty),
			Status:        string(t.Status),
			RewardAmount:  int64(t.RewardAmount),
			StakeRequired: int64(t.StakeRequired),
			SeatsTaken:    t.CurrentStudents,
			SeatsTotal:    t.MaxStudents,
			MaxAttempts:   t.MaxAttempts,

			TotalAttempts:         t.TotalAttempts,
			SuccessfulCompletions: t.SuccessfulCompletions,
			SuccessRate:           t.SuccessRate,
			AverageRating:         t.AverageRating,
			CreatedAt:             t.CreatedAt,
		}
		if !t.ExpiresAt.IsZero() {
			expires := t.ExpiresAt
			dto.ExpiresAt = &expires
		}
		result.Tasks = append(result.Tasks, dto)
	}

	return result, nil
}
