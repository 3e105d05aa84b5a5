// Package ledger contains the staking ledger: an append-only log of EDU
// movements. The ledger is the single source of truth for balances;
// cached profile balances are derived from confirmed entries.
package ledger

import (
	"errors"
	"time"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// EntryType classifies a ledger movement.
type EntryType string

const (
	// EntryStake - funds locked out of the available balance.
	EntryStake EntryType = "stake"
	// EntryRefund - locked funds returned after settlement or cancellation.
	EntryRefund EntryType = "refund"
	// EntryReward - reward paid out (including the signup grant).
	EntryReward EntryType = "reward"
	// EntryPenalty - forfeited student stake credited to the teacher.
	EntryPenalty EntryType = "penalty"
)

// IsValid reports whether the entry type is one of the known values.
func (t EntryType) IsValid() bool {
	switch t {
	case EntryStake, EntryRefund, EntryReward, EntryPenalty:
		return true
	default:
		return false
	}
}

// Sign returns the balance direction of the entry type: stakes debit,
// everything else credits.
func (t EntryType) Sign() int64 {
	if t == EntryStake {
		return -1
	}
	return 1
}

// EntryStatus is the confirmation state of an entry.
type EntryStatus string

const (
	// StatusPending - written but not yet part of an anchored batch.
	StatusPending EntryStatus = "pending"
	// StatusConfirmed - counted toward balances.
	StatusConfirmed EntryStatus = "confirmed"
	// StatusFailed - batch aborted; never counted.
	StatusFailed EntryStatus = "failed"
)

// IsValid reports whether the status is one of the known values.
func (s EntryStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFailed:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one immutable ledger record. Amount is stored as a positive
// magnitude; the balance effect is Amount * Type.Sign().
type Entry struct {
	ID     string
	UserID string

	// TaskID and EnrollmentID tie the movement to its cause
	// (empty for the signup grant).
	TaskID       string
	EnrollmentID string

	Type   EntryType
	Status EntryStatus
	Amount shared.Amount

	// Memo is a short human-readable reason.
	Memo string

	CreatedAt time.Time
}

// NewEntry creates a pending ledger entry.
func NewEntry(id, userID string, entryType EntryType, amount shared.Amount, memo string) (*Entry, error) {
	if id == "" || userID == "" {
		return nil, errors.New("ledger: id and user id are required")
	}
	if !entryType.IsValid() {
		return nil, shared.NewDomainError("ledger", "Append", shared.ErrInvalidInput,
			"unknown entry type")
	}
	if amount <= 0 {
		return nil, shared.ErrInvalidAmount
	}

	return &Entry{
		ID:        id,
		UserID:    userID,
		Type:      entryType,
		Status:    StatusPending,
		Amount:    amount,
		Memo:      memo,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ForEnrollment attaches the causing task and enrollment.
func (e *Entry) ForEnrollment(taskID, enrollmentID string) *Entry {
	e.TaskID = taskID
	e.EnrollmentID = enrollmentID
	return e
}

// SignedAmount is the entry's effect on the owner's balance.
func (e *Entry) SignedAmount() int64 {
	return int64(e.Amount) * e.Type.Sign()
}

// ══════════════════════════════════════════════════════════════════════════════
// SETTLEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Settlement is the outcome of reviewing one enrollment. The amounts
// conserve the locked stake by construction: Refund + Penalty always
// equals the stake that was locked.
type Settlement struct {
	// Refund is the part of the locked stake returned to the student.
	Refund shared.Amount
	// Reward is paid to the student from the teacher's pool on a pass.
	Reward shared.Amount
	// Penalty is the forfeited part of the stake, credited to the teacher.
	Penalty shared.Amount
}

// ComputeSettlement derives the settlement for a review score.
//
// Scores 4 and 5 return the full stake and pay the reward. Lower scores
// forfeit a proportional share of the stake: score 3 forfeits a third,
// score 2 two thirds, score 1 the whole stake.
func ComputeSettlement(stakeLocked, reward shared.Amount, score int) (Settlement, error) {
	if score < 1 || score > 5 {
		return Settlement{}, shared.ErrInvalidReviewScore
	}
	if stakeLocked <= 0 || reward < 0 {
		return Settlement{}, shared.ErrInvalidAmount
	}

	if score >= 4 {
		return Settlement{Refund: stakeLocked, Reward: reward}, nil
	}

	penalty := stakeLocked * shared.Amount(4-score) / 3
	return Settlement{
		Refund:  stakeLocked - penalty,
		Penalty: penalty,
	}, nil
}
