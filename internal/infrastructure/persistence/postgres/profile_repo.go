// Package postgres implements the PostgreSQL persistence layer for EduStake.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements profile.Repository for PostgreSQL.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

const profileColumns = `id, wallet_address, role, username, bio, avatar_url,
	   reputation, total_tasks_created, total_tasks_completed, total_tasks_attempted,
	   token_balance, active, created_at, updated_at`

// Create persists a new profile.
func (r *ProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	query := `
		INSERT INTO profiles (
			id, wallet_address, role, username, bio, avatar_url,
			reputation, total_tasks_created, total_tasks_completed, total_tasks_attempted,
			token_balance, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.conn.Exec(ctx, query,
		p.ID,
		p.WalletAddress.String(),
		string(p.Role),
		string(p.Username),
		p.Bio,
		p.AvatarURL,
		float64(p.Reputation),
		p.TotalTasksCreated,
		p.TotalTasksCompleted,
		p.TotalTasksAttempted,
		int64(p.TokenBalance),
		p.Active,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrProfileAlreadyExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByID returns a profile by internal ID.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return r.scanProfile(r.conn.QueryRow(ctx, query, id))
}

// GetByWallet returns a profile by wallet address.
func (r *ProfileRepository) GetByWallet(ctx context.Context, wallet shared.WalletAddress) (*profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE wallet_address = $1`
	return r.scanProfile(r.conn.QueryRow(ctx, query, wallet.String()))
}

// Update persists a modified profile.
func (r *ProfileRepository) Update(ctx context.Context, p *profile.Profile) error {
	query := `
		UPDATE profiles SET
			role = $1,
			username = $2,
			bio = $3,
			avatar_url = $4,
			reputation = $5,
			total_tasks_created = $6,
			total_tasks_completed = $7,
			total_tasks_attempted = $8,
			token_balance = $9,
			active = $10,
			updated_at = $11
		WHERE id = $12
	`

	tag, err := r.conn.Exec(ctx, query,
		string(p.Role),
		string(p.Username),
		p.Bio,
		p.AvatarURL,
		float64(p.Reputation),
		p.TotalTasksCreated,
		p.TotalTasksCompleted,
		p.TotalTasksAttempted,
		int64(p.TokenBalance),
		p.Active,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProfileNotFound
	}
	return nil
}

// UpdateTokenBalance updates the cached balance in a single statement.
func (r *ProfileRepository) UpdateTokenBalance(ctx context.Context, id string, balance shared.Amount) error {
	query := `UPDATE profiles SET token_balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.conn.Exec(ctx, query, int64(balance), id)
	if err != nil {
		return fmt.Errorf("failed to update token balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProfileNotFound
	}
	return nil
}

// List returns profiles matching the options.
func (r *ProfileRepository) List(ctx context.Context, opts profile.ListOptions) ([]*profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`

	where, args := profileFilter(opts)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	return r.scanProfiles(rows)
}

// ListActiveStudents returns active students for background recomputes.
func (r *ProfileRepository) ListActiveStudents(ctx context.Context, limit, offset int) ([]*profile.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE active AND role IN ('student', 'both')
		ORDER BY created_at
		LIMIT $1 OFFSET $2
	`

	rows, err := r.conn.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list active students: %w", err)
	}
	defer rows.Close()

	return r.scanProfiles(rows)
}

// Count returns the number of profiles matching the options.
func (r *ProfileRepository) Count(ctx context.Context, opts profile.ListOptions) (int, error) {
	query := `SELECT COUNT(*) FROM profiles`
	where, args := profileFilter(opts)
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	if err := r.conn.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func profileFilter(opts profile.ListOptions) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if opts.Role != "" {
		args = append(args, string(opts.Role))
		clauses = append(clauses, fmt.Sprintf("role = $%d", len(args)))
	}
	if opts.OnlyActive {
		clauses = append(clauses, "active")
	}
	return strings.Join(clauses, " AND "), args
}

func (r *ProfileRepository) scanProfile(row pgx.Row) (*profile.Profile, error) {
	var p profile.Profile
	var wallet, role, username string
	var reputation float64
	var balance int64

	err := row.Scan(
		&p.ID,
		&wallet,
		&role,
		&username,
		&p.Bio,
		&p.AvatarURL,
		&reputation,
		&p.TotalTasksCreated,
		&p.TotalTasksCompleted,
		&p.TotalTasksAttempted,
		&balance,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	p.WalletAddress = shared.WalletAddress(wallet)
	p.Role = profile.Role(role)
	p.Username = profile.Username(username)
	p.Reputation = profile.Reputation(reputation)
	p.TokenBalance = shared.Amount(balance)
	return &p, nil
}

func (r *ProfileRepository) scanProfiles(rows pgx.Rows) ([]*profile.Profile, error) {
	var out []*profile.Profile
	for rows.Next() {
		p, err := r.scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
