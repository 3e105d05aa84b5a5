// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/badge"
	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
	"github.com/edustake/edustake-core/pkg/clock"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE MINTING SAGA
// Complex business process: minting a proof-of-learning badge
// Flow: Check Eligibility → Guard Against Concurrent Mints → Anchoring →
//
//	Generating Artwork → Confirming → Persist Badge → Publish Event
//
// The workflow is phased like an on-chain mint: each phase has a fixed
// dwell driven by the injected clock, so tests advance time without
// waiting. Any failure returns the workflow to the idle phase and the
// mint can be retried; the deterministic token ID makes the retry
// converge on the same token.
// ══════════════════════════════════════════════════════════════════════════════

// AnchorService records a proof of the badge on the chain and returns
// the anchoring transaction hash.
type AnchorService interface {
	AnchorProof(ctx context.Context, tokenID string, payload map[string]interface{}) (string, error)
}

// MintBadgeInput contains the data to mint a badge.
type MintBadgeInput struct {
	// EnrollmentID - the 5-star enrollment to mint for.
	EnrollmentID string

	// RequestedBy - the profile requesting the mint (the student).
	RequestedBy string
}

// Validate checks if the input is valid.
func (i MintBadgeInput) Validate() error {
	if i.EnrollmentID == "" {
		return errors.New("badge_minting: enrollment ID is required")
	}
	if i.RequestedBy == "" {
		return errors.New("badge_minting: requester ID is required")
	}
	return nil
}

// MintBadgeResult contains the result of the minting workflow.
type MintBadgeResult struct {
	// Badge - the minted badge.
	Badge *badge.Badge

	// Phases - the phases the workflow went through, in order.
	Phases []badge.Phase

	// AnchorTxHash - the anchoring transaction reference.
	AnchorTxHash string

	// ProcessedAt - when the workflow completed.
	ProcessedAt time.Time
}

// MintingState tracks the current state of the badge minting saga.
type MintingState struct {
	CurrentPhase badge.Phase
	Input        MintBadgeInput
	Enrollment   *enrollment.Enrollment
	Task         *task.Task
	Badge        *badge.Badge
	AnchorTxHash string
	Phases       []badge.Phase
	StartedAt    time.Time
	CompletedAt  *time.Time
	Error        error
	FailedPhase  badge.Phase
}

// enterPhase records a phase transition.
func (s *MintingState) enterPhase(p badge.Phase) {
	s.CurrentPhase = p
	s.Phases = append(s.Phases, p)
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE MINTING SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BadgeMintingSaga orchestrates the complete badge minting workflow.
type BadgeMintingSaga struct {
	// Dependencies
	badgeRepo      badge.Repository
	enrollmentRepo enrollment.Repository
	taskRepo       task.Repository
	anchorService  AnchorService
	clock          clock.Clock
	eventBus       shared.EventPublisher

	// In-flight mints, keyed by enrollment ID. A second mint request
	// for the same enrollment fails fast instead of racing.
	mu       sync.Mutex
	inFlight map[string]struct{}

	// Configuration
	anchoringDwell  time.Duration
	generatingDwell time.Duration
	confirmingDwell time.Duration
}

// BadgeMintingConfig contains configuration for the minting saga.
type BadgeMintingConfig struct {
	AnchoringDwell  time.Duration
	GeneratingDwell time.Duration
	ConfirmingDwell time.Duration
}

// DefaultBadgeMintingConfig returns default configuration.
func DefaultBadgeMintingConfig() BadgeMintingConfig {
	return BadgeMintingConfig{
		AnchoringDwell:  badge.AnchoringDwell,
		GeneratingDwell: badge.GeneratingDwell,
		ConfirmingDwell: badge.ConfirmingDwell,
	}
}

// NewBadgeMintingSaga creates a new badge minting saga with all dependencies.
func NewBadgeMintingSaga(
	badgeRepo badge.Repository,
	enrollmentRepo enrollment.Repository,
	taskRepo task.Repository,
	anchorService AnchorService,
	clk clock.Clock,
	eventBus shared.EventPublisher,
	config BadgeMintingConfig,
) *BadgeMintingSaga {
	if config.AnchoringDwell == 0 {
		config = DefaultBadgeMintingConfig()
	}

	return &BadgeMintingSaga{
		badgeRepo:       badgeRepo,
		enrollmentRepo:  enrollmentRepo,
		taskRepo:        taskRepo,
		anchorService:   anchorService,
		clock:           clk,
		eventBus:        eventBus,
		inFlight:        make(map[string]struct{}),
		anchoringDwell:  config.AnchoringDwell,
		generatingDwell: config.GeneratingDwell,
		confirmingDwell: config.ConfirmingDwell,
	}
}

// Execute runs the complete badge minting workflow.
func (s *BadgeMintingSaga) Execute(ctx context.Context, input MintBadgeInput) (*MintBadgeResult, error) {
	state := &MintingState{
		CurrentPhase: badge.PhaseIdle,
		Input:        input,
		StartedAt:    time.Now().UTC(),
		Phases:       []badge.Phase{badge.PhaseIdle},
	}

	if err := input.Validate(); err != nil {
		return nil, s.fail(state, err)
	}

	if err := s.claimMint(input.EnrollmentID); err != nil {
		return nil, err
	}
	defer s.releaseMint(input.EnrollmentID)

	// Eligibility gate: reviewed, 5-star, no badge yet.
	if err := s.checkEligibility(ctx, state); err != nil {
		return nil, s.fail(state, err)
	}

	// Phase 1: anchoring.
	state.enterPhase(badge.PhaseAnchoring)
	if err := s.phaseAnchor(ctx, state); err != nil {
		return nil, s.fail(state, err)
	}

	// Phase 2: generating artwork.
	state.enterPhase(badge.PhaseGenerating)
	if err := s.clock.Sleep(ctx, s.generatingDwell); err != nil {
		return nil, s.fail(state, err)
	}

	// Phase 3: confirming and persisting.
	state.enterPhase(badge.PhaseConfirming)
	if err := s.phaseConfirm(ctx, state); err != nil {
		return nil, s.fail(state, err)
	}

	// Success.
	state.enterPhase(badge.PhaseSuccess)
	now := time.Now().UTC()
	state.CompletedAt = &now

	event := shared.NewBadgeMintedEvent(state.Badge.ID, state.Badge.StudentID,
		state.Badge.TaskID, state.Badge.TokenID, state.Badge.SkillVerified)
	_ = s.eventBus.Publish(event)

	return &MintBadgeResult{
		Badge:        state.Badge,
		Phases:       state.Phases,
		AnchorTxHash: state.AnchorTxHash,
		ProcessedAt:  now,
	}, nil
}

// claimMint marks the enrollment as having a mint in flight.
func (s *BadgeMintingSaga) claimMint(enrollmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[enrollmentID]; busy {
		return shared.ErrMintInProgress
	}
	s.inFlight[enrollmentID] = struct{}{}
	return nil
}

// releaseMint returns the workflow to idle for this enrollment.
func (s *BadgeMintingSaga) releaseMint(enrollmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, enrollmentID)
}

// checkEligibility loads the enrollment and verifies it can mint.
func (s *BadgeMintingSaga) checkEligibility(ctx context.Context, state *MintingState) error {
	enr, err := s.enrollmentRepo.GetByID(ctx, state.Input.EnrollmentID)
	if err != nil {
		return fmt.Errorf("badge_minting: failed to get enrollment: %w", err)
	}
	if enr.StudentID != state.Input.RequestedBy {
		return shared.NewDomainError("badge", "Mint", shared.ErrForbidden,
			"only the enrolled student can mint")
	}
	if !enr.IsBadgeEligible() {
		return shared.ErrNotBadgeEligible
	}

	exists, err := s.badgeRepo.ExistsForEnrollment(ctx, enr.ID)
	if err != nil {
		return fmt.Errorf("badge_minting: failed to check existing badge: %w", err)
	}
	if exists {
		return shared.ErrDuplicateBadge
	}

	t, err := s.taskRepo.GetByID(ctx, enr.TaskID)
	if err != nil {
		return fmt.Errorf("badge_minting: failed to get task: %w", err)
	}

	state.Enrollment = enr
	state.Task = t
	return nil
}

// phaseAnchor dwells, assembles the badge and anchors its proof.
func (s *BadgeMintingSaga) phaseAnchor(ctx context.Context, state *MintingState) error {
	if err := s.clock.Sleep(ctx, s.anchoringDwell); err != nil {
		return err
	}

	b, err := badge.NewBadge(uuid.NewString(), state.Enrollment.StudentID, state.Task.TeacherID,
		state.Task.ID, state.Enrollment.ID, state.Task.Title)
	if err != nil {
		return err
	}

	txHash, err := s.anchorService.AnchorProof(ctx, b.TokenID, map[string]interface{}{
		"student_id":     b.StudentID,
		"task_id":        b.TaskID,
		"enrollment_id":  b.EnrollmentID,
		"skill_verified": b.SkillVerified,
		"network":        b.BlockchainNetwork,
	})
	if err != nil {
		return fmt.Errorf("badge_minting: %w: %v", shared.ErrMintingFailure, err)
	}

	b.AnchorTxHash = txHash
	state.Badge = b
	state.AnchorTxHash = txHash
	return nil
}

// phaseConfirm dwells and persists the badge.
func (s *BadgeMintingSaga) phaseConfirm(ctx context.Context, state *MintingState) error {
	if err := s.clock.Sleep(ctx, s.confirmingDwell); err != nil {
		return err
	}

	if err := s.badgeRepo.Create(ctx, state.Badge); err != nil {
		if shared.IsAlreadyExists(err) {
			return shared.ErrDuplicateBadge
		}
		return fmt.Errorf("badge_minting: failed to persist badge: %w", err)
	}
	return nil
}

// fail records the failed phase and returns the workflow to idle.
func (s *BadgeMintingSaga) fail(state *MintingState, err error) error {
	state.FailedPhase = state.CurrentPhase
	state.Error = err
	state.CurrentPhase = badge.PhaseIdle
	return err
}
