// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/recommendation"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMMEND TASKS QUERY
// Подбирает открытые задачи для студента по четырём факторам и
// сохраняет объяснение для каждой рекомендации. Пересчёт идемпотентен:
// повторный запрос заменяет прежние объяснения.
// ══════════════════════════════════════════════════════════════════════════════

// RecommendTasksQuery содержит параметры запроса рекомендаций.
type RecommendTasksQuery struct {
	// StudentID - внутренний ID студента.
	StudentID string

	// Limit - максимум рекомендаций (по умолчанию 3, максимум 20).
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q *RecommendTasksQuery) Validate() error {
	if q.StudentID == "" {
		return errors.New("recommend_tasks: student_id is required")
	}
	if q.Limit < 0 {
		return errors.New("recommend_tasks: limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 3
	}
	if q.Limit > 20 {
		q.Limit = 20
	}
	return nil
}

// RecommendedTaskDTO - DTO рекомендованной задачи.
type RecommendedTaskDTO struct {
	// TaskID - ID задачи.
	TaskID string `json:"task_id"`

	// Title - заголовок задачи.
	Title string `json:"title"`

	// Difficulty - сложность задачи.
	Difficulty string `json:"difficulty"`

	// RewardAmount - награда за выполнение.
	RewardAmount int64 `json:"reward_amount"`

	// StakeRequired - требуемый стейк.
	StakeRequired int64 `json:"stake_required"`

	// RelevanceScore - релевантность 0-100 (25 за каждый фактор).
	RelevanceScore int `json:"relevance_score"`

	// Explanation - человекочитаемое объяснение рекомендации.
	Explanation string `json:"explanation"`

	// Factors - сработавшие факторы и их значения.
	Factors map[string]any `json:"factors"`
}

// RecommendTasksResult содержит результат запроса рекомендаций.
type RecommendTasksResult struct {
	// StudentID - ID студента.
	StudentID string `json:"student_id"`

	// SkillTier - уровень студента на момент расчёта.
	SkillTier string `json:"skill_tier"`

	// Tasks - рекомендации, отсортированные по релевантности.
	Tasks []RecommendedTaskDTO `json:"tasks"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// candidatePoolSize - сколько открытых задач рассматривается за проход.
const candidatePoolSize = 50

// RecommendTasksHandler обрабатывает RecommendTasksQuery.
type RecommendTasksHandler struct {
	taskRepo           task.Repository
	profileRepo        profile.Repository
	recommendationRepo recommendation.Repository
}

// NewRecommendTasksHandler создаёт новый RecommendTasksHandler.
func NewRecommendTasksHandler(
	taskRepo task.Repository,
	profileRepo profile.Repository,
	recommendationRepo recommendation.Repository,
) *RecommendTasksHandler {
	return &RecommendTasksHandler{
		taskRepo:           taskRepo,
		profileRepo:        profileRepo,
		recommendationRepo: recommendationRepo,
	}
}

// Handle выполняет запрос рекомендаций.
func (h *RecommendTasksHandler) Handle(ctx context.Context, q RecommendTasksQuery) (*RecommendTasksResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	student, err := h.profileRepo.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("recommend_tasks: failed to get student: %w", err)
	}

	now := time.Now().UTC()
	candidates, err := h.taskRepo.ListOpenForEnrollment(ctx, now, candidatePoolSize)
	if err != nil {
		return nil, fmt.Errorf("recommend_tasks: failed to list open tasks: %w", err)
	}

	// Учителя подтягиваются один раз на всех кандидатов.
	teachers := make(map[string]*profile.Profile)
	for _, t := range candidates {
		if _, ok := teachers[t.TeacherID]; ok {
			continue
		}
		teacher, err := h.profileRepo.GetByID(ctx, t.TeacherID)
		if err != nil {
			if shared.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("recommend_tasks: failed to get teacher: %w", err)
		}
		teachers[t.TeacherID] = teacher
	}

	var scored []*recommendation.Explanation
	byTask := make(map[string]*task.Task)
	for _, t := range candidates {
		// Собственные задачи студенту не рекомендуются.
		if t.TeacherID == student.ID {
			continue
		}
		x := recommendation.Score(uuid.NewString(), student, t, teachers[t.TeacherID])
		scored = append(scored, x)
		byTask[t.ID] = t
	}

	// Стабильная сортировка: релевантность по убыванию, затем свежесть задачи.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RelevanceScore != scored[j].RelevanceScore {
			return scored[i].RelevanceScore > scored[j].RelevanceScore
		}
		return byTask[scored[i].TaskID].CreatedAt.After(byTask[scored[j].TaskID].CreatedAt)
	})

	if len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}

	result := &RecommendTasksResult{
		StudentID:   student.ID,
		SkillTier:   string(student.SkillTier()),
		Tasks:       make([]RecommendedTaskDTO, 0, len(scored)),
		GeneratedAt: now,
	}

	for _, x := range scored {
		if err := h.recommendationRepo.Upsert(ctx, x); err != nil {
			return nil, fmt.Errorf("recommend_tasks: failed to store explanation: %w", err)
		}

		t := byTask[x.TaskID]
		result.Tasks = append(result.Tasks, RecommendedTaskDTO{
			TaskID:         t.ID,
			Title:          t.Title,
			Difficulty:     string(t.Difficulty),
			RewardAmount:   int64(t.RewardAmount),
			StakeRequired:  int64(t.StakeRequired),
			RelevanceScore: x.RelevanceScore,
			Explanation:    x.Explanation,
			Factors:        x.Factors,
		})
	}

	return result, nil
}
