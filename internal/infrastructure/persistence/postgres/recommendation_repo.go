// Package postgres implements the PostgreSQL persistence layer for EduStake.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edustake/edustake-core/internal/domain/recommendation"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMMENDATION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RecommendationRepository implements recommendation.Repository for PostgreSQL.
type RecommendationRepository struct {
	conn *Connection
}

// NewRecommendationRepository creates a new RecommendationRepository.
func NewRecommendationRepository(conn *Connection) *RecommendationRepository {
	return &RecommendationRepository{conn: conn}
}

// Upsert inserts the explanation, replacing any previous one for the
// same (student, task) pair.
func (r *RecommendationRepository) Upsert(ctx context.Context, x *recommendation.Explanation) error {
	query := `
		INSERT INTO recommendations (
			id, student_id, task_id, explanation, relevance_score, factors, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id, task_id) DO UPDATE SET
			explanation = EXCLUDED.explanation,
			relevance_score = EXCLUDED.relevance_score,
			factors = EXCLUDED.factors,
			created_at = EXCLUDED.created_at
	`

	factorsJSON, err := json.Marshal(x.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}

	_, err = r.conn.Exec(ctx, query,
		x.ID,
		x.StudentID,
		x.TaskID,
		x.Explanation,
		x.RelevanceScore,
		factorsJSON,
		x.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert recommendation: %w", err)
	}
	return nil
}

// GetByStudentAndTask returns the stored explanation.
func (r *RecommendationRepository) GetByStudentAndTask(ctx context.Context, studentID, taskID string) (*recommendation.Explanation, error) {
	query := `
		SELECT id, student_id, task_id, explanation, relevance_score, factors, created_at
		FROM recommendations
		WHERE student_id = $1 AND task_id = $2
	`
	return r.scanExplanation(r.conn.QueryRow(ctx, query, studentID, taskID))
}

// ListByStudent returns the student's explanations, highest relevance first.
func (r *RecommendationRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]*recommendation.Explanation, error) {
	query := `
		SELECT id, student_id, task_id, explanation, relevance_score, factors, created_at
		FROM recommendations
		WHERE student_id = $1
		ORDER BY relevance_score DESC, created_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var out []*recommendation.Explanation
	for rows.Next() {
		x, err := r.scanExplanation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// DeleteByTask removes all explanations for a task that left the open state.
func (r *RecommendationRepository) DeleteByTask(ctx context.Context, taskID string) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM recommendations WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to delete recommendations: %w", err)
	}
	return nil
}

func (r *RecommendationRepository) scanExplanation(row pgx.Row) (*recommendation.Explanation, error) {
	var x recommendation.Explanation
	var factorsJSON []byte

	err := row.Scan(
		&x.ID,
		&x.StudentID,
		&x.TaskID,
		&x.Explanation,
		&x.RelevanceScore,
		&factorsJSON,
		&x.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrExplanationNotFound
		}
		return nil, fmt.Errorf("failed to scan recommendation: %w", err)
	}

	if len(factorsJSON) > 0 {
		if err := json.Unmarshal(factorsJSON, &x.Factors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal factors: %w", err)
		}
	}
	return &x, nil
}
