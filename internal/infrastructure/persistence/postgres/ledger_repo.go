// Package postgres implements the PostgreSQL persistence layer for EduStake.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edustake/edustake-core/internal/domain/ledger"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// Entries are append-only. The balance guard for stakes takes a row lock
// on the user's profile, so two concurrent stakes cannot both pass the
// available-balance check against the same funds.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements ledger.Repository for PostgreSQL.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

const entryColumns = `id, user_id, task_id, enrollment_id, entry_type, status, amount, memo, created_at`

// signedSum expresses the Available balance: stakes debit, everything
// else credits.
const signedSum = `COALESCE(SUM(CASE WHEN entry_type = 'stake' THEN -amount ELSE amount END), 0)`

// Append writes a single confirmed entry, guarding stakes against the
// available balance.
func (r *LedgerRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if entry.Type == ledger.EntryStake {
			if err := r.guardStake(ctx, tx, entry); err != nil {
				return err
			}
		}
		return r.insertEntry(ctx, tx, entry)
	})
}

// AppendBatch writes all entries in one transaction, or none.
func (r *LedgerRepository) AppendBatch(ctx context.Context, entries []*ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, entry := range entries {
			if entry.Type == ledger.EntryStake {
				if err := r.guardStake(ctx, tx, entry); err != nil {
					return err
				}
			}
			if err := r.insertEntry(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientStake) {
			return err
		}
		return fmt.Errorf("%w: %v", shared.ErrSettlementFailure, err)
	}
	return nil
}

// GetByID returns an entry by ID.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`
	return r.scanEntry(r.conn.QueryRow(ctx, query, id))
}

// GetBalance derives the user's balance from confirmed entries.
func (r *LedgerRepository) GetBalance(ctx context.Context, userID string) (ledger.Balance, error) {
	query := `
		SELECT
			` + signedSum + ` AS available,
			GREATEST(COALESCE(SUM(CASE
				WHEN entry_type = 'stake' THEN amount
				WHEN entry_type = 'refund' THEN -amount
				ELSE 0 END), 0), 0) AS locked
		FROM ledger_entries
		WHERE user_id = $1 AND status = 'confirmed'
	`

	b := ledger.Balance{UserID: userID}
	var available, locked int64
	if err := r.conn.QueryRow(ctx, query, userID).Scan(&available, &locked); err != nil {
		return ledger.Balance{}, fmt.Errorf("failed to compute balance: %w", err)
	}
	b.Available = shared.Amount(available)
	b.Locked = shared.Amount(locked)
	return b, nil
}

// List returns entries matching the filter, newest first.
func (r *LedgerRepository) List(ctx context.Context, filter ledger.ListFilter) ([]*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries`

	var clauses []string
	var args []interface{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.TaskID != "" {
		args = append(args, filter.TaskID)
		clauses = append(clauses, fmt.Sprintf("task_id = $%d", len(args)))
	}
	if filter.EnrollmentID != "" {
		args = append(args, filter.EnrollmentID)
		clauses = append(clauses, fmt.Sprintf("enrollment_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		clauses = append(clauses, fmt.Sprintf("entry_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
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
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SumByEnrollment returns the net confirmed movement for one enrollment.
func (r *LedgerRepository) SumByEnrollment(ctx context.Context, enrollmentID string) (int64, error) {
	query := `
		SELECT ` + signedSum + `
		FROM ledger_entries
		WHERE enrollment_id = $1 AND status = 'confirmed'
	`

	var sum int64
	if err := r.conn.QueryRow(ctx, query, enrollmentID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum enrollment entries: %w", err)
	}
	return sum, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// guardStake serializes on the user's profile row, then checks that the
// available balance covers the stake.
func (r *LedgerRepository) guardStake(ctx context.Context, tx pgx.Tx, entry *ledger.Entry) error {
	var userID string
	err := tx.QueryRow(ctx, `SELECT id FROM profiles WHERE id = $1 FOR UPDATE`, entry.UserID).
		Scan(&userID)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrProfileNotFound
		}
		return fmt.Errorf("failed to lock profile: %w", err)
	}

	var available int64
	err = tx.QueryRow(ctx, `
		SELECT `+signedSum+`
		FROM ledger_entries
		WHERE user_id = $1 AND status = 'confirmed'
	`, entry.UserID).Scan(&available)
	if err != nil {
		return fmt.Errorf("failed to compute available balance: %w", err)
	}
	if shared.Amount(available) < entry.Amount {
		return shared.ErrInsufficientStake
	}
	return nil
}

func (r *LedgerRepository) insertEntry(ctx context.Context, tx pgx.Tx, entry *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (
			id, user_id, task_id, enrollment_id, entry_type, status, amount, memo, created_at
		) VALUES ($1, $2, $3, $4, $5, 'confirmed', $6, $7, $8)
	`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := tx.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		nullableString(entry.TaskID),
		nullableString(entry.EnrollmentID),
		string(entry.Type),
		int64(entry.Amount),
		entry.Memo,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	var taskID, enrollmentID *string
	var entryType, status string
	var amount int64

	err := row.Scan(
		&e.ID,
		&e.UserID,
		&taskID,
		&enrollmentID,
		&entryType,
		&status,
		&amount,
		&e.Memo,
		&e.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	if taskID != nil {
		e.TaskID = *taskID
	}
	if enrollmentID != nil {
		e.EnrollmentID = *enrollmentID
	}
	e.Type = ledger.EntryType(entryType)
	e.Status = ledger.EntryStatus(status)
	e.Amount = shared.Amount(amount)
	return &e, nil
}

// nullableString maps the empty string to SQL NULL.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
