// Package postgres implements the PostgreSQL persistence layer for EduStake.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY IMPLEMENTATION
// A partial unique index on (task_id, student_id) WHERE status != 'cancelled'
// backs the one-live-attempt invariant; the status column carries a
// compare-and-set so concurrent transitions lose cleanly.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository for PostgreSQL.
type EnrollmentRepository struct {
	conn *Connection
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

const enrollmentColumns = `id, task_id, student_id, status, stake_locked,
	   submission_text, submitted_at, score, review_feedback, reviewed_at,
	   deadline, enrolled_at, updated_at`

// Create persists a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	query := `
		INSERT INTO enrollments (
			id, task_id, student_id, status, stake_locked,
			submission_text, submitted_at, score, review_feedback, reviewed_at,
			deadline, enrolled_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.conn.Exec(ctx, query,
		e.ID,
		e.TaskID,
		e.StudentID,
		string(e.Status),
		int64(e.StakeLocked),
		e.SubmissionText,
		nullableTime(e.SubmittedAt),
		e.Score,
		e.ReviewFeedback,
		nullableTime(e.ReviewedAt),
		nullableTime(e.Deadline),
		e.EnrolledAt,
		e.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateEnrollment
		}
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// GetByID returns an enrollment by ID.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	return r.scanEnrollment(r.conn.QueryRow(ctx, query, id))
}

// GetActiveByTaskAndStudent returns the student's live enrollment on a task.
func (r *EnrollmentRepository) GetActiveByTaskAndStudent(ctx context.Context, taskID, studentID string) (*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE task_id = $1 AND student_id = $2 AND status IN ('active', 'completed')
	`
	return r.scanEnrollment(r.conn.QueryRow(ctx, query, taskID, studentID))
}

// UpdateStatusCAS persists the entity only when the stored status still
// equals expected.
func (r *EnrollmentRepository) UpdateStatusCAS(ctx context.Context, e *enrollment.Enrollment, expected enrollment.Status) error {
	query := `
		UPDATE enrollments SET
			status = $1,
			submission_text = $2,
			submitted_at = $3,
			score = $4,
			review_feedback = $5,
			reviewed_at = $6,
			updated_at = $7
		WHERE id = $8 AND status = $9
	`

	tag, err := r.conn.Exec(ctx, query,
		string(e.Status),
		e.SubmissionText,
		nullableTime(e.SubmittedAt),
		e.Score,
		e.ReviewFeedback,
		nullableTime(e.ReviewedAt),
		e.UpdatedAt,
		e.ID,
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM enrollments WHERE id = $1)`, e.ID).
			Scan(&exists); err != nil {
			return fmt.Errorf("failed to check enrollment existence: %w", err)
		}
		if !exists {
			return shared.ErrEnrollmentNotFound
		}
		return shared.ErrConcurrentTransition
	}
	return nil
}

// List returns enrollments matching the filter, newest first.
func (r *EnrollmentRepository) List(ctx context.Context, filter enrollment.ListFilter) ([]*enrollment.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments`

	var clauses []string
	var args []interface{}
	if filter.TaskID != "" {
		args = append(args, filter.TaskID)
		clauses = append(clauses, fmt.Sprintf("task_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		clauses = append(clauses, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY enrolled_at DESC"
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
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	return r.scanEnrollments(rows)
}

// ListAwaitingReview returns completed enrollments for a teacher's tasks,
// oldest submission first.
func (r *EnrollmentRepository) ListAwaitingReview(ctx context.Context, teacherID string, limit int) ([]*enrollment.Enrollment, error) {
	query := `
		SELECT e.id, e.task_id, e.student_id, e.status, e.stake_locked,
			   e.submission_text, e.submitted_at, e.score, e.review_feedback, e.reviewed_at,
			   e.deadline, e.enrolled_at, e.updated_at
		FROM enrollments e
		JOIN tasks t ON t.id = e.task_id
		WHERE t.teacher_id = $1 AND e.status = 'completed'
		ORDER BY e.submitted_at
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, teacherID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments awaiting review: %w", err)
	}
	defer rows.Close()

	return r.scanEnrollments(rows)
}

// ListOverdue returns active enrollments past their deadline.
func (r *EnrollmentRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE status = 'active' AND deadline IS NOT NULL AND deadline <= $1
		ORDER BY deadline
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue enrollments: %w", err)
	}
	defer rows.Close()

	return r.scanEnrollments(rows)
}

// CountByTask returns per-status counts for one task.
func (r *EnrollmentRepository) CountByTask(ctx context.Context, taskID string) (map[enrollment.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM enrollments WHERE task_id = $1 GROUP BY status`

	rows, err := r.conn.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to count enrollments: %w", err)
	}
	defer rows.Close()

	counts := make(map[enrollment.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment count: %w", err)
		}
		counts[enrollment.Status(status)] = count
	}
	return counts, rows.Err()
}

// StatsByTask computes reviewed/passing aggregates for one task.
func (r *EnrollmentRepository) StatsByTask(ctx context.Context, taskID string) (enrollment.TaskStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status != 'cancelled') AS attempts,
			COUNT(*) FILTER (WHERE status = 'reviewed') AS reviewed,
			COUNT(*) FILTER (WHERE status = 'reviewed' AND score >= 4) AS passing,
			COALESCE(AVG(score) FILTER (WHERE status = 'reviewed'), 0) AS average_score
		FROM enrollments
		WHERE task_id = $1
	`

	var stats enrollment.TaskStats
	err := r.conn.QueryRow(ctx, query, taskID).Scan(
		&stats.Attempts, &stats.Reviewed, &stats.Passing, &stats.AverageScore)
	if err != nil {
		return enrollment.TaskStats{}, fmt.Errorf("failed to compute task stats: %w", err)
	}
	return stats, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *EnrollmentRepository) scanEnrollment(row pgx.Row) (*enrollment.Enrollment, error) {
	var e enrollment.Enrollment
	var status string
	var stake int64
	var submittedAt, reviewedAt, deadline *time.Time

	err := row.Scan(
		&e.ID,
		&e.TaskID,
		&e.StudentID,
		&status,
		&stake,
		&e.SubmissionText,
		&submittedAt,
		&e.Score,
		&e.ReviewFeedback,
		&reviewedAt,
		&deadline,
		&e.EnrolledAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	e.Status = enrollment.Status(status)
	e.StakeLocked = shared.Amount(stake)
	if submittedAt != nil {
		e.SubmittedAt = *submittedAt
	}
	if reviewedAt != nil {
		e.ReviewedAt = *reviewedAt
	}
	if deadline != nil {
		e.Deadline = *deadline
	}
	return &e, nil
}

func (r *EnrollmentRepository) scanEnrollments(rows pgx.Rows) ([]*enrollment.Enrollment, error) {
	var out []*enrollment.Enrollment
	for rows.Next() {
		e, err := r.scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
