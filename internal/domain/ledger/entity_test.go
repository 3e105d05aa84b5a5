package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

func TestComputeSettlement_PassingScores(t *testing.T) {
	for _, score := range []int{4, 5} {
		s, err := ComputeSettlement(90, 200, score)
		assert.NoError(t, err)
		assert.Equal(t, shared.Amount(90), s.Refund)
		assert.Equal(t, shared.Amount(200), s.Reward)
		assert.Equal(t, shared.Amount(0), s.Penalty)
	}
}

func TestComputeSettlement_FailingScores(t *testing.T) {
	// Score 3 forfeits a third, score 2 two thirds, score 1 everything.
	cases := []struct {
		score   int
		refund  shared.Amount
		penalty shared.Amount
	}{
		{3, 60, 30},
		{2, 30, 60},
		{1, 0, 90},
	}

	for _, tc := range cases {
		s, err := ComputeSettlement(90, 200, tc.score)
		assert.NoError(t, err)
		assert.Equal(t, tc.refund, s.Refund, "score %d", tc.score)
		assert.Equal(t, tc.penalty, s.Penalty, "score %d", tc.score)
		assert.Equal(t, shared.Amount(0), s.Reward, "no reward below score 4")
	}
}

func TestComputeSettlement_ConservesStake(t *testing.T) {
	// Refund + penalty must equal the locked stake for every score and
	// for stakes that do not divide evenly by three.
	for _, stake := range []shared.Amount{1, 7, 50, 99, 1000} {
		for score := 1; score <= 5; score++ {
			s, err := ComputeSettlement(stake, 100, score)
			assert.NoError(t, err)
			assert.Equal(t, stake, s.Refund+s.Penalty, "stake %d score %d", stake, score)
		}
	}
}

func TestComputeSettlement_RejectsInvalidInput(t *testing.T) {
	_, err := ComputeSettlement(90, 200, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidReviewScore)

	_, err = ComputeSettlement(90, 200, 6)
	assert.ErrorIs(t, err, shared.ErrInvalidReviewScore)

	_, err = ComputeSettlement(0, 200, 3)
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestEntrySignedAmount(t *testing.T) {
	stake, err := NewEntry("e1", "user1", EntryStake, 50, "stake for task")
	assert.NoError(t, err)
	assert.Equal(t, int64(-50), stake.SignedAmount())
	assert.Equal(t, StatusPending, stake.Status)

	reward, err := NewEntry("e2", "user1", EntryReward, 200, "signup grant")
	assert.NoError(t, err)
	assert.Equal(t, int64(200), reward.SignedAmount())

	refund, err := NewEntry("e3", "user1", EntryRefund, 50, "")
	assert.NoError(t, err)
	assert.Equal(t, int64(50), refund.SignedAmount())

	penalty, err := NewEntry("e4", "teacher1", EntryPenalty, 30, "")
	assert.NoError(t, err)
	assert.Equal(t, int64(30), penalty.SignedAmount())
}

func TestNewEntry_Validation(t *testing.T) {
	_, err := NewEntry("e1", "user1", EntryStake, 0, "")
	assert.ErrorIs(t, err, shared.ErrNegativeValue)

	_, err = NewEntry("e1", "user1", EntryType("transfer"), 10, "")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewEntry("", "user1", EntryStake, 10, "")
	assert.Error(t, err)
}

func TestEntryForEnrollment(t *testing.T) {
	e, err := NewEntry("e1", "user1", EntryStake, 50, "")
	assert.NoError(t, err)

	e.ForEnrollment("task1", "enr1")
	assert.Equal(t, "task1", e.TaskID)
	assert.Equal(t, "enr1", e.EnrollmentID)
}
