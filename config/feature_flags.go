package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with optional gradual rollout.
// Rollout assignment is stable per student: the same student keeps the
// same bucket across restarts.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent limits the feature to a share of students (0-100).
	// 100 means everyone once Enabled is true.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// FeatureAutoMintBadges starts the minting workflow automatically
	// after a five-star review instead of waiting for the student.
	FeatureAutoMintBadges = "badges.auto_mint"

	// FeatureRecommendations enables stored task recommendations.
	FeatureRecommendations = "recommendations.enabled"

	// FeatureRealtimeQA enables the question/answer change feed.
	FeatureRealtimeQA = "qa.realtime"

	// FeatureSignupGrant credits new profiles with starting EDU.
	FeatureSignupGrant = "economy.signup_grant"
)

// defaultFeatures declares every known flag with its default state.
var defaultFeatures = []Feature{
	{Name: FeatureAutoMintBadges, Description: "Mint badges without student confirmation", Enabled: false, RolloutPercent: 100},
	{Name: FeatureRecommendations, Description: "Stored task recommendations", Enabled: true, RolloutPercent: 100},
	{Name: FeatureRealtimeQA, Description: "Realtime question/answer feed", Enabled: true, RolloutPercent: 100},
	{Name: FeatureSignupGrant, Description: "Signup grant for new profiles", Enabled: true, RolloutPercent: 100},
}

// LoadFeatureFlags loads flags from FEATURE_* environment variables.
// FEATURE_BADGES_AUTO_MINT=true, FEATURE_QA_REALTIME_PERCENT=25, etc.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature, len(defaultFeatures))}

	for _, def := range defaultFeatures {
		f := def
		envKey := featureEnvKey(f.Name)
		if val := os.Getenv(envKey); val != "" {
			if enabled, err := strconv.ParseBool(val); err == nil {
				f.Enabled = enabled
			}
		}
		if val := os.Getenv(envKey + "_PERCENT"); val != "" {
			if pct, err := strconv.Atoi(val); err == nil && pct >= 0 && pct <= 100 {
				f.RolloutPercent = pct
			}
		}
		ff.features[f.Name] = &f
	}
	return ff
}

// IsEnabled reports whether a feature is globally on.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	return ok && f.Enabled
}

// IsEnabledFor reports whether a feature is on for one student,
// honoring the rollout percentage.
func (ff *FeatureFlags) IsEnabledFor(name, studentID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	if !ok || !f.Enabled {
		return false
	}
	if f.RolloutPercent >= 100 {
		return true
	}
	return rolloutBucket(name, studentID) < f.RolloutPercent
}

// SetEnabled flips a flag at runtime.
func (ff *FeatureFlags) SetEnabled(name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if f, ok := ff.features[name]; ok {
		f.Enabled = enabled
	}
}

// List returns a copy of all flags.
func (ff *FeatureFlags) List() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	return out
}

// rolloutBucket maps (feature, student) to a stable bucket in [0, 100).
func rolloutBucket(name, studentID string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(studentID))
	return int(h.Sum32() % 100)
}

// featureEnvKey turns "badges.auto_mint" into "FEATURE_BADGES_AUTO_MINT".
func featureEnvKey(name string) string {
	key := strings.NewReplacer(".", "_", "-", "_").Replace(name)
	return "FEATURE_" + strings.ToUpper(key)
}
