// Package postgres implements the PostgreSQL persistence layer for EduStake.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edustake/edustake-core/internal/domain/question"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUESTION REPOSITORY IMPLEMENTATION
// Answers live in their own table; a question is unanswered when no
// answers row references it.
// ══════════════════════════════════════════════════════════════════════════════

// QuestionRepository implements question.Repository for PostgreSQL.
type QuestionRepository struct {
	conn *Connection
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(conn *Connection) *QuestionRepository {
	return &QuestionRepository{conn: conn}
}

const questionColumns = `id, task_id, student_id, question_text, created_at, updated_at`

const answerColumns = `id, question_id, responder_id, is_from_teacher, answer_text, created_at`

// Create persists a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *question.Question) error {
	query := `
		INSERT INTO questions (
			id, task_id, student_id, question_text, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.conn.Exec(ctx, query,
		q.ID,
		q.TaskID,
		q.StudentID,
		q.QuestionText,
		q.CreatedAt,
		q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

// GetByID returns a question by ID with its answers loaded oldest first.
func (r *QuestionRepository) GetByID(ctx context.Context, id string) (*question.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	q, err := r.scanQuestion(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE question_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := r.scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		q.Answers = append(q.Answers, a)
	}
	return q, rows.Err()
}

// AddAnswer appends an answer row and touches the parent question in
// one statement, so the question's updated_at always tracks its thread.
func (r *QuestionRepository) AddAnswer(ctx context.Context, a *question.Answer) error {
	query := `
		WITH ins AS (
			INSERT INTO answers (id, question_id, responder_id, is_from_teacher, answer_text, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING question_id
		)
		UPDATE questions SET updated_at = NOW() WHERE id = (SELECT question_id FROM ins)
	`

	tag, err := r.conn.Exec(ctx, query,
		a.ID,
		a.QuestionID,
		a.ResponderID,
		a.IsFromTeacher,
		a.AnswerText,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrQuestionNotFound
	}
	return nil
}

// ListThread returns the (task, student) thread, oldest first, with
// answers attached oldest first.
func (r *QuestionRepository) ListThread(ctx context.Context, taskID, studentID string) ([]*question.Question, error) {
	query := `
		SELECT ` + questionColumns + `
		FROM questions
		WHERE task_id = $1 AND student_id = $2
		ORDER BY created_at
	`

	rows, err := r.conn.Query(ctx, query, taskID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list question thread: %w", err)
	}
	defer rows.Close()

	questions, err := r.scanQuestions(rows)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return questions, nil
	}

	answerQuery := `
		SELECT a.id, a.question_id, a.responder_id, a.is_from_teacher, a.answer_text, a.created_at
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE q.task_id = $1 AND q.student_id = $2
		ORDER BY a.created_at, a.id
	`

	answerRows, err := r.conn.Query(ctx, answerQuery, taskID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread answers: %w", err)
	}
	defer answerRows.Close()

	byID := make(map[string]*question.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	for answerRows.Next() {
		a, err := r.scanAnswer(answerRows)
		if err != nil {
			return nil, err
		}
		if q, ok := byID[a.QuestionID]; ok {
			q.Answers = append(q.Answers, a)
		}
	}
	return questions, answerRows.Err()
}

// ListUnansweredForTeacher returns open questions across the teacher's
// tasks, oldest first.
func (r *QuestionRepository) ListUnansweredForTeacher(ctx context.Context, teacherID string, limit int) ([]*question.Question, error) {
	query := `
		SELECT q.id, q.task_id, q.student_id, q.question_text, q.created_at, q.updated_at
		FROM questions q
		JOIN tasks t ON t.id = q.task_id
		WHERE t.teacher_id = $1
		  AND NOT EXISTS (SELECT 1 FROM answers a WHERE a.question_id = q.id)
		ORDER BY q.created_at
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, teacherID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unanswered questions: %w", err)
	}
	defer rows.Close()

	return r.scanQuestions(rows)
}

// CountUnanswered returns the number of open questions on a task.
func (r *QuestionRepository) CountUnanswered(ctx context.Context, taskID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM questions q
		WHERE q.task_id = $1
		  AND NOT EXISTS (SELECT 1 FROM answers a WHERE a.question_id = q.id)
	`

	var count int
	if err := r.conn.QueryRow(ctx, query, taskID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unanswered questions: %w", err)
	}
	return count, nil
}

func (r *QuestionRepository) scanQuestion(row pgx.Row) (*question.Question, error) {
	var q question.Question

	err := row.Scan(
		&q.ID,
		&q.TaskID,
		&q.StudentID,
		&q.QuestionText,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}
	return &q, nil
}

func (r *QuestionRepository) scanAnswer(row pgx.Row) (*question.Answer, error) {
	var a question.Answer

	err := row.Scan(
		&a.ID,
		&a.QuestionID,
		&a.ResponderID,
		&a.IsFromTeacher,
		&a.AnswerText,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan answer: %w", err)
	}
	return &a, nil
}

func (r *QuestionRepository) scanQuestions(rows pgx.Rows) ([]*question.Question, error) {
	var out []*question.Question
	for rows.Next() {
		q, err := r.scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
