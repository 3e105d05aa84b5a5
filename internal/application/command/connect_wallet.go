// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/ledger"
	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECT WALLET COMMAND
// First wallet connection creates the profile and credits the signup
// grant; later connections just resolve the existing profile.
// ══════════════════════════════════════════════════════════════════════════════

// ConnectWalletCommand contains the data to connect a wallet.
type ConnectWalletCommand struct {
	// WalletAddress is the raw address as provided by the wallet
	// (normalized to lower case before lookup).
	WalletAddress string

	// Role is the requested role for a new profile.
	Role profile.Role

	// Username is an optional display name for a new profile.
	Username string
}

// Validate validates the command.
func (c ConnectWalletCommand) Validate() error {
	if c.WalletAddress == "" {
		return errors.New("connect_wallet: wallet_address is required")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("connect_wallet: unknown role: %s", c.Role)
	}
	return nil
}

// ConnectWalletResult contains the result of connecting a wallet.
type ConnectWalletResult struct {
	// Profile is the resolved or newly created profile.
	Profile *profile.Profile

	// IsNew indicates that this connection created the profile.
	IsNew bool

	// GrantCredited is the signup grant amount (0 for returning users).
	GrantCredited shared.Amount
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ConnectWalletHandler handles the ConnectWalletCommand.
type ConnectWalletHandler struct {
	profileRepo    profile.Repository
	ledgerRepo     ledger.Repository
	eventPublisher shared.EventPublisher

	// signupGrant is the EDU amount credited to every new profile.
	signupGrant shared.Amount
}

// ConnectWalletHandlerConfig contains configuration for the handler.
type ConnectWalletHandlerConfig struct {
	SignupGrant shared.Amount
}

// DefaultConnectWalletHandlerConfig returns default configuration.
func DefaultConnectWalletHandlerConfig() ConnectWalletHandlerConfig {
	return ConnectWalletHandlerConfig{SignupGrant: 1000}
}

// NewConnectWalletHandler creates a new ConnectWalletHandler.
func NewConnectWalletHandler(
	profileRepo profile.Repository,
	ledgerRepo ledger.Repository,
	eventPublisher shared.EventPublisher,
	config ConnectWalletHandlerConfig,
) *ConnectWalletHandler {
	if config.SignupGrant == 0 {
		config = DefaultConnectWalletHandlerConfig()
	}

	return &ConnectWalletHandler{
		profileRepo:    profileRepo,
		ledgerRepo:     ledgerRepo,
		eventPublisher: eventPublisher,
		signupGrant:    config.SignupGrant,
	}
}

// Handle executes the connect wallet command.
func (h *ConnectWalletHandler) Handle(ctx context.Context, cmd ConnectWalletCommand) (*ConnectWalletResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("connect_wallet: validation failed: %w", err)
	}

	wallet := shared.NormalizeWalletAddress(cmd.WalletAddress)
	if !wallet.IsValid() {
		return nil, shared.ErrInvalidWalletAddress
	}

	// Returning user: resolve and stop.
	existing, err := h.profileRepo.GetByWallet(ctx, wallet)
	if err == nil {
		if !existing.Active {
			return nil, shared.ErrProfileDeactivated
		}
		return &ConnectWalletResult{Profile: existing}, nil
	}
	if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("connect_wallet: failed to resolve wallet: %w", err)
	}

	prof, err := profile.NewProfile(uuid.NewString(), wallet, cmd.Role, profile.Username(cmd.Username))
	if err != nil {
		return nil, err
	}
	prof.TokenBalance = h.signupGrant

	if err := h.profileRepo.Create(ctx, prof); err != nil {
		// Lost a race against a concurrent first connection: resolve again.
		if shared.IsAlreadyExists(err) {
			winner, lookupErr := h.profileRepo.GetByWallet(ctx, wallet)
			if lookupErr != nil {
				return nil, fmt.Errorf("connect_wallet: failed to resolve after race: %w", lookupErr)
			}
			return &ConnectWalletResult{Profile: winner}, nil
		}
		return nil, fmt.Errorf("connect_wallet: failed to create profile: %w", err)
	}

	// The signup grant is a regular ledger reward so the balance stays
	// derivable from confirmed entries alone.
	grant, err := ledger.NewEntry(uuid.NewString(), prof.ID, ledger.EntryReward, h.signupGrant, "signup grant")
	if err != nil {
		return nil, err
	}
	if err := h.ledgerRepo.Append(ctx, grant); err != nil {
		return nil, fmt.Errorf("connect_wallet: failed to credit signup grant: %w", err)
	}

	event := shared.NewBaseEvent(shared.EventProfileCreated, prof.ID)
	_ = h.eventPublisher.Publish(event)

	return &ConnectWalletResult{
		Profile:       prof,
		IsNew:         true,
		GrantCredited: h.signupGrant,
	}, nil
}
