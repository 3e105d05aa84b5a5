// Package badge contains the proof-of-learning badge model. A badge is
// minted once per 5-star enrollment and anchored to the EduChain testnet
// by the minting workflow.
package badge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Network is the chain badges are anchored to.
const Network = "EduChain Testnet"

// ══════════════════════════════════════════════════════════════════════════════
// MINTING PHASES
// ══════════════════════════════════════════════════════════════════════════════

// Phase is a step of the minting workflow. Failure at any step returns
// the workflow to PhaseIdle so the mint can be retried.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseAnchoring  Phase = "anchoring"
	PhaseGenerating Phase = "generating"
	PhaseConfirming Phase = "confirming"
	PhaseSuccess    Phase = "success"
)

// Dwell times per phase, mirroring the on-chain anchoring rhythm.
const (
	AnchoringDwell  = 2 * time.Second
	GeneratingDwell = 2 * time.Second
	ConfirmingDwell = 1 * time.Second
)

// ══════════════════════════════════════════════════════════════════════════════
// SKILL DETECTION
// ══════════════════════════════════════════════════════════════════════════════

// skillKeywords maps task-title keywords to the verified skill printed
// on the badge. Checked in order; first hit wins.
var skillKeywords = []struct {
	keyword string
	skill   string
}{
	{"solidity", "Solidity"},
	{"smart contract", "Smart Contracts"},
	{"web3", "Web3"},
	{"blockchain", "Web3"},
	{"react", "React"},
	{"typescript", "TypeScript"},
	{"javascript", "JavaScript"},
	{"python", "Python"},
	{"rust", "Rust"},
	{"golang", "Go"},
	{" go ", "Go"},
	{"sql", "Databases"},
	{"database", "Databases"},
	{"math", "Mathematics"},
}

// DefaultSkill is used when no keyword matches the task title.
const DefaultSkill = "General Excellence"

// DetectSkill derives the verified skill from a task title.
func DetectSkill(title string) string {
	padded := " " + strings.ToLower(title) + " "
	for _, entry := range skillKeywords {
		if strings.Contains(padded, entry.keyword) {
			return entry.skill
		}
	}
	return DefaultSkill
}

// SkillSlug is the URL-safe form of a skill name, used for artwork paths.
func SkillSlug(skill string) string {
	slug := strings.ToLower(skill)
	slug = strings.ReplaceAll(slug, "/", "-")
	slug = strings.ReplaceAll(slug, " ", "-")
	return slug
}

// ══════════════════════════════════════════════════════════════════════════════
// TOKEN ID
// ══════════════════════════════════════════════════════════════════════════════

// GenerateTokenID derives a deterministic token ID from the enrollment
// identity, so a retried mint of the same enrollment produces the same
// token instead of a second one.
func GenerateTokenID(enrollmentID, studentID, taskID string) string {
	sum := sha3.Sum256([]byte(enrollmentID + "|" + studentID + "|" + taskID))
	return fmt.Sprintf("EDU-%X", sum[:6])
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: BADGE
// ══════════════════════════════════════════════════════════════════════════════

// Badge is a minted proof-of-learning credential.
//
// Invariants:
//   - At most one badge per enrollment.
//   - TokenID is unique across the marketplace.
type Badge struct {
	ID           string
	StudentID    string
	TeacherID    string
	TaskID       string
	EnrollmentID string

	// Title is the verified skill name printed on the badge.
	Title       string
	Description string
	ImageURL    string

	// SkillVerified is the skill detected from the task title.
	SkillVerified string

	TokenID           string
	BlockchainNetwork string

	// AnchorTxHash is the anchoring transaction reference.
	AnchorTxHash string

	MintedAt time.Time
}

// NewBadge assembles a badge for a 5-star enrollment on the given task.
func NewBadge(id, studentID, teacherID, taskID, enrollmentID, taskTitle string) (*Badge, error) {
	if id == "" || studentID == "" || taskID == "" || enrollmentID == "" {
		return nil, errors.New("badge: id, student id, task id and enrollment id are required")
	}
	if strings.TrimSpace(taskTitle) == "" {
		return nil, errors.New("badge: task title is required")
	}

	skill := DetectSkill(taskTitle)
	return &Badge{
		ID:                id,
		StudentID:         studentID,
		TeacherID:         teacherID,
		TaskID:            taskID,
		EnrollmentID:      enrollmentID,
		Title:             skill,
		Description:       fmt.Sprintf("Earned for achieving 5-star excellence on %q", taskTitle),
		ImageURL:          fmt.Sprintf("/badges/%s.svg", SkillSlug(skill)),
		SkillVerified:     skill,
		TokenID:           GenerateTokenID(enrollmentID, studentID, taskID),
		BlockchainNetwork: Network,
		MintedAt:          time.Now().UTC(),
	}, nil
}
