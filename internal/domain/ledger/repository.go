package ledger

import (
	"context"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Balance is the derived view of a user's ledger.
type Balance struct {
	UserID string

	// Available is the sum of confirmed signed amounts.
	Available shared.Amount

	// Locked is the total of confirmed stakes not yet refunded
	// or forfeited.
	Locked shared.Amount
}

// ListFilter narrows entry listings. Zero values mean "no filter".
type ListFilter struct {
	UserID       string
	TaskID       string
	EnrollmentID string
	Type         EntryType
	Status       EntryStatus
	Limit        int
	Offset       int
}

// Repository defines the ledger storage contract.
//
// AppendBatch is the atomic settlement primitive: either every entry in
// the batch commits as confirmed or none does. Balance guards run inside
// the same transaction, so a stake below the available balance can never
// slip through under concurrency.
type Repository interface {
	// Append writes a single confirmed entry.
	// Returns ErrInsufficientStake when a stake entry would exceed the
	// user's available balance.
	Append(ctx context.Context, entry *Entry) error

	// AppendBatch writes all entries in one transaction, or none.
	// Returns ErrSettlementFailure when the batch cannot commit.
	AppendBatch(ctx context.Context, entries []*Entry) error

	// GetByID returns an entry by ID, or ErrEntryNotFound.
	GetByID(ctx context.Context, id string) (*Entry, error)

	// GetBalance derives the user's balance from confirmed entries.
	GetBalance(ctx context.Context, userID string) (Balance, error)

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Entry, error)

	// SumByEnrollment returns the net confirmed movement for one
	// enrollment, used to verify settlement conservation.
	SumByEnrollment(ctx context.Context, enrollmentID string) (int64, error)
}
