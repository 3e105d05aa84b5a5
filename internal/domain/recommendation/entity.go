// Package recommendation contains the task recommendation engine: a
// deterministic four-factor scorer with a stored, human-readable
// explanation for every recommendation it emits.
package recommendation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORING FACTORS
// ══════════════════════════════════════════════════════════════════════════════

// Factor keys stored in the explanation's factors map.
const (
	FactorDifficultyMatch  = "difficulty_match"
	FactorHighSuccessRate  = "high_success_rate"
	FactorGoodRewardRatio  = "good_reward_ratio"
	FactorReputableTeacher = "reputable_teacher"
)

// Scoring thresholds. Each satisfied factor contributes 25 points, so a
// task matching all four scores 100.
const (
	successRateThreshold = 60.0
	rewardRatioThreshold = 1.5
	pointsPerFactor      = 25
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: EXPLANATION
// ══════════════════════════════════════════════════════════════════════════════

// Explanation is a stored recommendation for one (student, task) pair.
// Recomputing for the same pair replaces the previous explanation.
type Explanation struct {
	ID        string
	StudentID string
	TaskID    string

	// Explanation is the rendered sentence shown to the student.
	Explanation string

	// RelevanceScore is 0-100, 25 points per satisfied factor.
	RelevanceScore int

	// Factors maps factor keys to the value that satisfied them.
	Factors map[string]any

	CreatedAt time.Time
}

// Validate checks the explanation invariants.
func (x *Explanation) Validate() error {
	if x.ID == "" || x.StudentID == "" || x.TaskID == "" {
		return errors.New("recommendation: id, student id and task id are required")
	}
	if x.RelevanceScore < 0 || x.RelevanceScore > 100 {
		return fmt.Errorf("recommendation: relevance score out of range: %d", x.RelevanceScore)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORER
// ══════════════════════════════════════════════════════════════════════════════

// noMatchExplanation is stored when no factor matches; the task stays
// listable with score zero rather than disappearing from the feed.
const noMatchExplanation = "This task was recommended because: it is open for enrollment (no specific factors matched your profile)."

// Score evaluates one open task against one student and returns the
// explanation. When no factor matches the score is zero and the
// explanation notes the absence of a specific match.
//
// The four factors, each worth 25 points:
//  1. the task difficulty equals the student's skill tier;
//  2. the task's success rate exceeds 60%;
//  3. the reward-to-stake ratio exceeds 1.5;
//  4. the teacher's reputation exceeds 50.
func Score(id string, student *profile.Profile, t *task.Task, teacher *profile.Profile) *Explanation {
	factors := make(map[string]any)
	var reasons []string

	tier := student.SkillTier()
	if string(t.Difficulty) == string(tier) {
		reasons = append(reasons, fmt.Sprintf("it matches your current skill level (%s)", tier))
		factors[FactorDifficultyMatch] = true
	}

	if t.SuccessRate > successRateThreshold {
		reasons = append(reasons, fmt.Sprintf("it has a good success rate (%.0f%%)", t.SuccessRate))
		factors[FactorHighSuccessRate] = t.SuccessRate
	}

	if ratio := t.RewardRatio(); ratio > rewardRatioThreshold {
		reasons = append(reasons, fmt.Sprintf("it offers a favorable reward ratio (%.1fx)", ratio))
		factors[FactorGoodRewardRatio] = ratio
	}

	if teacher != nil && teacher.Reputation.IsReputable() {
		reasons = append(reasons,
			fmt.Sprintf("the teacher has a strong reputation (%.0f)", float64(teacher.Reputation)))
		factors[FactorReputableTeacher] = float64(teacher.Reputation)
	}

	text := noMatchExplanation
	if len(reasons) > 0 {
		text = "This task was recommended because: " + strings.Join(reasons, ", ") + "."
	}

	return &Explanation{
		ID:             id,
		StudentID:      student.ID,
		TaskID:         t.ID,
		Explanation:    text,
		RelevanceScore: len(reasons) * pointsPerFactor,
		Factors:        factors,
		CreatedAt:      time.Now().UTC(),
	}
}
