package badge

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the badge storage contract. A unique constraint on
// (student, enrollment) backs the one-badge-per-enrollment invariant;
// Create surfaces a violation as ErrDuplicateBadge.
type Repository interface {
	// Create persists a minted badge.
	Create(ctx context.Context, b *Badge) error

	// GetByID returns a badge by ID, or ErrBadgeNotFound.
	GetByID(ctx context.Context, id string) (*Badge, error)

	// GetByEnrollment returns the badge minted for an enrollment,
	// or ErrBadgeNotFound.
	GetByEnrollment(ctx context.Context, enrollmentID string) (*Badge, error)

	// ExistsForEnrollment reports whether a badge was already minted.
	ExistsForEnrollment(ctx context.Context, enrollmentID string) (bool, error)

	// ListByStudent returns the student's badges, newest first.
	ListByStudent(ctx context.Context, studentID string, limit int) ([]*Badge, error)

	// CountByStudent returns the student's badge count.
	CountByStudent(ctx context.Context, studentID string) (int, error)
}
