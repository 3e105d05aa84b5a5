// Package postgres implements the PostgreSQL persistence layer for EduStake.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edustake/edustake-core/internal/domain/badge"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository implements badge.Repository for PostgreSQL.
// The unique constraint on enrollment_id backs the one-badge-per-enrollment
// invariant.
type BadgeRepository struct {
	conn *Connection
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

const badgeColumns = `id, student_id, teacher_id, task_id, enrollment_id,
	   title, description, image_url, skill_verified,
	   token_id, blockchain_network, anchor_tx_hash, minted_at`

// Create persists a minted badge.
func (r *BadgeRepository) Create(ctx context.Context, b *badge.Badge) error {
	query := `
		INSERT INTO badges (
			id, student_id, teacher_id, task_id, enrollment_id,
			title, description, image_url, skill_verified,
			token_id, blockchain_network, anchor_tx_hash, minted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.conn.Exec(ctx, query,
		b.ID,
		b.StudentID,
		b.TeacherID,
		b.TaskID,
		b.EnrollmentID,
		b.Title,
		b.Description,
		b.ImageURL,
		b.SkillVerified,
		b.TokenID,
		b.BlockchainNetwork,
		b.AnchorTxHash,
		b.MintedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateBadge
		}
		return fmt.Errorf("failed to create badge: %w", err)
	}
	return nil
}

// GetByID returns a badge by ID.
func (r *BadgeRepository) GetByID(ctx context.Context, id string) (*badge.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badges WHERE id = $1`
	return r.scanBadge(r.conn.QueryRow(ctx, query, id))
}

// GetByEnrollment returns the badge minted for an enrollment.
func (r *BadgeRepository) GetByEnrollment(ctx context.Context, enrollmentID string) (*badge.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badges WHERE enrollment_id = $1`
	return r.scanBadge(r.conn.QueryRow(ctx, query, enrollmentID))
}

// ExistsForEnrollment reports whether a badge was already minted.
func (r *BadgeRepository) ExistsForEnrollment(ctx context.Context, enrollmentID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM badges WHERE enrollment_id = $1)`, enrollmentID).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check badge existence: %w", err)
	}
	return exists, nil
}

// ListByStudent returns the student's badges, newest first.
func (r *BadgeRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]*badge.Badge, error) {
	query := `
		SELECT ` + badgeColumns + `
		FROM badges
		WHERE student_id = $1
		ORDER BY minted_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	var out []*badge.Badge
	for rows.Next() {
		b, err := r.scanBadge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CountByStudent returns the student's badge count.
func (r *BadgeRepository) CountByStudent(ctx context.Context, studentID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM badges WHERE student_id = $1`, studentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count badges: %w", err)
	}
	return count, nil
}

func (r *BadgeRepository) scanBadge(row pgx.Row) (*badge.Badge, error) {
	var b badge.Badge
	err := row.Scan(
		&b.ID,
		&b.StudentID,
		&b.TeacherID,
		&b.TaskID,
		&b.EnrollmentID,
		&b.Title,
		&b.Description,
		&b.ImageURL,
		&b.SkillVerified,
		&b.TokenID,
		&b.BlockchainNetwork,
		&b.AnchorTxHash,
		&b.MintedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrBadgeNotFound
		}
		return nil, fmt.Errorf("failed to scan badge: %w", err)
	}
	return &b, nil
}
