package badge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSkill(t *testing.T) {
	cases := []struct {
		title string
		skill string
	}{
		{"Build a Solidity Escrow Contract", "Solidity"},
		{"Intro to Smart Contract Security", "Smart Contracts"},
		{"Web3 Wallet Integration", "Web3"},
		{"Blockchain Fundamentals", "Web3"},
		{"React Hooks Deep Dive", "React"},
		{"TypeScript Generics Workshop", "TypeScript"},
		{"Advanced JavaScript Patterns", "JavaScript"},
		{"Python Data Pipelines", "Python"},
		{"Rust Ownership Explained", "Rust"},
		{"Concurrency in Go basics", "Go"},
		{"Golang worker pools", "Go"},
		{"SQL Window Functions", "Databases"},
		{"Database Normalization", "Databases"},
		{"Discrete Math Problem Set", "Mathematics"},
		{"Public Speaking 101", "General Excellence"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.skill, DetectSkill(tc.title), "title %q", tc.title)
	}
}

func TestSkillSlug(t *testing.T) {
	assert.Equal(t, "smart-contracts", SkillSlug("Smart Contracts"))
	assert.Equal(t, "general-excellence", SkillSlug("General Excellence"))
	assert.Equal(t, "web3", SkillSlug("Web3"))
}

func TestGenerateTokenID_Deterministic(t *testing.T) {
	a := GenerateTokenID("enr1", "student1", "task1")
	b := GenerateTokenID("enr1", "student1", "task1")
	assert.Equal(t, a, b, "same enrollment must yield the same token")

	c := GenerateTokenID("enr2", "student1", "task1")
	assert.NotEqual(t, a, c, "different enrollments must yield different tokens")

	assert.True(t, strings.HasPrefix(a, "EDU-"))
	assert.Len(t, a, len("EDU-")+12)
}

func TestNewBadge(t *testing.T) {
	b, err := NewBadge("badge1", "student1", "teacher1", "task1", "enr1",
		"Build a Solidity Escrow Contract")
	assert.NoError(t, err)

	assert.Equal(t, "Solidity", b.SkillVerified)
	assert.Equal(t, "Solidity", b.Title)
	assert.Equal(t,
		`Earned for achieving 5-star excellence on "Build a Solidity Escrow Contract"`,
		b.Description)
	assert.Equal(t, "/badges/solidity.svg", b.ImageURL)
	assert.Equal(t, Network, b.BlockchainNetwork)
	assert.Equal(t, GenerateTokenID("enr1", "student1", "task1"), b.TokenID)
	assert.False(t, b.MintedAt.IsZero())
}

func TestNewBadge_RequiresTitle(t *testing.T) {
	_, err := NewBadge("badge1", "student1", "teacher1", "task1", "enr1", "  ")
	assert.Error(t, err)
}
