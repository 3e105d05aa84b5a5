package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

const testWallet = "0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b"

func newTestProfile(t *testing.T) *Profile {
	t.Helper()
	p, err := NewProfile("prof1", shared.WalletAddress(testWallet), RoleStudent, "alice")
	assert.NoError(t, err)
	return p
}

func TestNewProfile(t *testing.T) {
	p := newTestProfile(t)
	assert.Equal(t, Reputation(50.0), p.Reputation, "new profiles start neutral")
	assert.True(t, p.Active)
	assert.NoError(t, p.Validate())
}

func TestNewProfile_RejectsBadWallet(t *testing.T) {
	_, err := NewProfile("prof1", "not-a-wallet", RoleStudent, "")
	assert.ErrorIs(t, err, shared.ErrInvalidWalletAddress)

	// Mixed case must be normalized before construction.
	_, err = NewProfile("prof1", "0x1A2B3C4D5E6F7A8B9C0D1E2F3A4B5C6D7E8F9A0B", RoleStudent, "")
	assert.ErrorIs(t, err, shared.ErrInvalidWalletAddress)
}

func TestNewProfile_RejectsBadRole(t *testing.T) {
	_, err := NewProfile("prof1", shared.WalletAddress(testWallet), Role("admin"), "")
	assert.ErrorIs(t, err, shared.ErrInvalidRole)
}

func TestRoleCapabilities(t *testing.T) {
	assert.True(t, RoleTeacher.CanTeach())
	assert.False(t, RoleTeacher.CanStudy())
	assert.False(t, RoleStudent.CanTeach())
	assert.True(t, RoleStudent.CanStudy())
	assert.True(t, RoleBoth.CanTeach())
	assert.True(t, RoleBoth.CanStudy())
}

func TestCalculateSkillTier(t *testing.T) {
	assert.Equal(t, TierBeginner, CalculateSkillTier(0))
	assert.Equal(t, TierBeginner, CalculateSkillTier(4))
	assert.Equal(t, TierIntermediate, CalculateSkillTier(5))
	assert.Equal(t, TierIntermediate, CalculateSkillTier(19))
	assert.Equal(t, TierAdvanced, CalculateSkillTier(20))
	assert.Equal(t, TierAdvanced, CalculateSkillTier(100))
}

func TestReputationApplyScore(t *testing.T) {
	r := Reputation(50.0)

	// 5 stars scale to 100: 50*0.7 + 100*0.3 = 65.
	assert.InDelta(t, 65.0, float64(r.ApplyScore(5)), 0.001)

	// 1 star scales to 20: 50*0.7 + 20*0.3 = 41.
	assert.InDelta(t, 41.0, float64(r.ApplyScore(1)), 0.001)

	// Repeated perfect scores converge toward 100 without exceeding it.
	for i := 0; i < 50; i++ {
		r = r.ApplyScore(5)
	}
	assert.True(t, r.IsValid())
	assert.Greater(t, float64(r), 99.0)
}

func TestApplyReviewScore(t *testing.T) {
	p := newTestProfile(t)
	assert.NoError(t, p.ApplyReviewScore(5))
	assert.InDelta(t, 65.0, float64(p.Reputation), 0.001)

	assert.ErrorIs(t, p.ApplyReviewScore(0), shared.ErrInvalidReviewScore)
	assert.ErrorIs(t, p.ApplyReviewScore(6), shared.ErrInvalidReviewScore)
}

func TestIsReputable(t *testing.T) {
	assert.False(t, Reputation(50.0).IsReputable(), "threshold is strict")
	assert.True(t, Reputation(50.1).IsReputable())
}

func TestCounters(t *testing.T) {
	p := newTestProfile(t)
	p.RecordAttempt()
	p.RecordAttempt()
	p.RecordCompletion()
	p.RecordTaskCreated()

	assert.Equal(t, 2, p.TotalTasksAttempted)
	assert.Equal(t, 1, p.TotalTasksCompleted)
	assert.Equal(t, 1, p.TotalTasksCreated)
	assert.NoError(t, p.Validate())
}

func TestValidate_CompletedCannotExceedAttempted(t *testing.T) {
	p := newTestProfile(t)
	p.TotalTasksCompleted = 3
	p.TotalTasksAttempted = 1
	assert.Error(t, p.Validate())
}

func TestDeactivate(t *testing.T) {
	p := newTestProfile(t)
	p.Deactivate()
	assert.False(t, p.Active)
}
