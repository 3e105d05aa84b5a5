// Package postgres implements the PostgreSQL persistence layer for EduStake.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// TASK REPOSITORY IMPLEMENTATION
// The seat counter lives in the tasks row. ReserveSeat is a single
// conditional UPDATE, so capacity holds no matter how many enrollments
// race for the last seat.
// ══════════════════════════════════════════════════════════════════════════════

// TaskRepository implements task.Repository for PostgreSQL.
type TaskRepository struct {
	conn *Connection
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(conn *Connection) *TaskRepository {
	return &TaskRepository{conn: conn}
}

const taskColumns = `id, teacher_id, title, description, category, tags,
	   difficulty, status, reward_amount, stake_required, max_students,
	   current_students, max_attempts, total_attempts, successful_completions,
	   time_limit_minutes, expires_at, success_rate, average_rating,
	   created_at, updated_at`

// Create persists a new task.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	query := `
		INSERT INTO tasks (
			id, teacher_id, title, description, category, tags,
			difficulty, status, reward_amount, stake_required, max_students,
			current_students, max_attempts, total_attempts, successful_completions,
			time_limit_minutes, expires_at, success_rate, average_rating,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		          $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.conn.Exec(ctx, query,
		t.ID,
		t.TeacherID,
		t.Title,
		t.Description,
		t.Category,
		t.Tags,
		string(t.Difficulty),
		string(t.Status),
		int64(t.RewardAmount),
		int64(t.StakeRequired),
		t.MaxStudents,
		t.CurrentStudents,
		t.MaxAttempts,
		t.TotalAttempts,
		t.SuccessfulCompletions,
		t.TimeLimitMinutes,
		nullableTime(t.ExpiresAt),
		t.SuccessRate,
		t.AverageRating,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID returns a task by ID.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return r.scanTask(r.conn.QueryRow(ctx, query, id))
}

// Update persists mutable fields of an existing task.
func (r *TaskRepository) Update(ctx context.Context, t *task.Task) error {
	query := `
		UPDATE tasks SET
			title = $1,
			description = $2,
			category = $3,
			tags = $4,
			difficulty = $5,
			status = $6,
			max_attempts = $7,
			time_limit_minutes = $8,
			expires_at = $9,
			updated_at = $10
		WHERE id = $11
	`

	tag, err := r.conn.Exec(ctx, query,
		t.Title,
		t.Description,
		t.Category,
		t.Tags,
		string(t.Difficulty),
		string(t.Status),
		t.MaxAttempts,
		t.TimeLimitMinutes,
		nullableTime(t.ExpiresAt),
		t.UpdatedAt,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrTaskNotFound
	}
	return nil
}

// UpdateStatus transitions status only when the stored status matches expected.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, expected, next task.Status) error {
	query := `
		UPDATE tasks SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	tag, err := r.conn.Exec(ctx, query, string(next), id, string(expected))
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or a lost status race. Tell them apart.
		var exists bool
		if err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`, id).
			Scan(&exists); err != nil {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
		if !exists {
			return shared.ErrTaskNotFound
		}
		return shared.ErrConcurrentModification
	}
	return nil
}

// ReserveSeat atomically takes one seat while the task is active and
// below capacity.
func (r *TaskRepository) ReserveSeat(ctx context.Context, id string) (task.SeatCounters, error) {
	query := `
		UPDATE tasks
		SET current_students = current_students + 1,
		    total_attempts = total_attempts + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND current_students < max_students
		RETURNING current_students, max_students
	`

	var counters task.SeatCounters
	err := r.conn.QueryRow(ctx, query, id).Scan(&counters.CurrentStudents, &counters.MaxStudents)
	if err == nil {
		return counters, nil
	}
	if !IsNoRows(err) {
		return task.SeatCounters{}, fmt.Errorf("failed to reserve seat: %w", err)
	}

	// The guard rejected: figure out which invariant blocked it.
	var status string
	var current, max int
	err = r.conn.QueryRow(ctx,
		`SELECT status, current_students, max_students FROM tasks WHERE id = $1`, id).
		Scan(&status, &current, &max)
	if err != nil {
		if IsNoRows(err) {
			return task.SeatCounters{}, shared.ErrTaskNotFound
		}
		return task.SeatCounters{}, fmt.Errorf("failed to inspect task: %w", err)
	}
	if status != string(task.StatusActive) {
		return task.SeatCounters{}, shared.ErrTaskNotActive
	}
	return task.SeatCounters{}, shared.ErrCapacityExceeded
}

// ReleaseSeat returns one seat after a cancelled enrollment.
func (r *TaskRepository) ReleaseSeat(ctx context.Context, id string) error {
	query := `
		UPDATE tasks
		SET current_students = current_students - 1,
		    total_attempts = GREATEST(total_attempts - 1, 0),
		    updated_at = NOW()
		WHERE id = $1 AND current_students > 0
	`

	if _, err := r.conn.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	return nil
}

// RecordSuccess counts one passing review against the task.
func (r *TaskRepository) RecordSuccess(ctx context.Context, id string) error {
	query := `
		UPDATE tasks
		SET successful_completions = successful_completions + 1, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.conn.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to record success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrTaskNotFound
	}
	return nil
}

// List returns tasks matching the filter, newest first.
func (r *TaskRepository) List(ctx context.Context, filter task.ListFilter) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`

	where, args := taskFilter(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

// ListOpenForEnrollment returns enrollable tasks for the recommendation engine.
func (r *TaskRepository) ListOpenForEnrollment(ctx context.Context, now time.Time, limit int) ([]*task.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = 'active'
		  AND current_students < max_students
		  AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open tasks: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

// ExpireDue marks active tasks whose deadline passed as expired.
func (r *TaskRepository) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE tasks
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING id
	`

	rows, err := r.conn.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateStats writes recomputed success rate and average rating.
func (r *TaskRepository) UpdateStats(ctx context.Context, id string, successRate, averageRating float64) error {
	query := `
		UPDATE tasks SET success_rate = $1, average_rating = $2, updated_at = NOW()
		WHERE id = $3
	`

	tag, err := r.conn.Exec(ctx, query, successRate, averageRating, id)
	if err != nil {
		return fmt.Errorf("failed to update task stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrTaskNotFound
	}
	return nil
}

// Count returns the number of tasks matching the filter.
func (r *TaskRepository) Count(ctx context.Context, filter task.ListFilter) (int, error) {
	query := `SELECT COUNT(*) FROM tasks`
	where, args := taskFilter(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	if err := r.conn.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func taskFilter(filter task.ListFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Difficulty != "" {
		args = append(args, string(filter.Difficulty))
		clauses = append(clauses, fmt.Sprintf("difficulty = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		clauses = append(clauses, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.OnlyOpen {
		clauses = append(clauses,
			"status = 'active'",
			"current_students < max_students",
			"(expires_at IS NULL OR expires_at > NOW())")
	}
	return strings.Join(clauses, " AND "), args
}

func (r *TaskRepository) scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	var difficulty, status string
	var reward, stake int64
	var expiresAt *time.Time

	err := row.Scan(
		&t.ID,
		&t.TeacherID,
		&t.Title,
		&t.Description,
		&t.Category,
		&t.Tags,
		&difficulty,
		&status,
		&reward,
		&stake,
		&t.MaxStudents,
		&t.CurrentStudents,
		&t.MaxAttempts,
		&t.TotalAttempts,
		&t.SuccessfulCompletions,
		&t.TimeLimitMinutes,
		&expiresAt,
		&t.SuccessRate,
		&t.AverageRating,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	t.Difficulty = task.Difficulty(difficulty)
	t.Status = task.Status(status)
	t.RewardAmount = shared.Amount(reward)
	t.StakeRequired = shared.Amount(stake)
	if expiresAt != nil {
		t.ExpiresAt = *expiresAt
	}
	return &t, nil
}

func (r *TaskRepository) scanTasks(rows pgx.Rows) ([]*task.Task, error) {
	var out []*task.Task
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
