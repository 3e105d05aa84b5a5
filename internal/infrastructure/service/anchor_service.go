// Package service contains outbound service adapters. The only external
// dependency of the badge workflow is the chain anchoring endpoint,
// simulated here: there is no real EduChain node, but the adapter keeps
// the failure modes of one (latency, transient errors, an open breaker)
// so the calling workflow is exercised realistically.
package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/edustake/edustake-core/pkg/circuitbreaker"
	"github.com/edustake/edustake-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// AnchorConfig contains configuration for the simulated anchoring service.
type AnchorConfig struct {
	// Latency is the simulated round-trip per anchoring call.
	Latency time.Duration

	// FailureRate is the probability [0..1] that a call fails with a
	// transient error. Zero in tests, small in demo deployments.
	FailureRate float64

	Logger *slog.Logger
}

// DefaultAnchorConfig returns sensible defaults.
func DefaultAnchorConfig() AnchorConfig {
	return AnchorConfig{
		Latency:     50 * time.Millisecond,
		FailureRate: 0,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SIMULATED ANCHOR SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// AnchorService simulates anchoring badge proofs on EduChain Testnet.
// Transaction hashes are derived deterministically from the token ID and
// payload, so a retried anchoring converges on the same hash. Calls go
// through a retrier and a circuit breaker.
type AnchorService struct {
	config  AnchorConfig
	logger  *slog.Logger
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker

	mu       sync.Mutex
	rng      *rand.Rand
	anchored map[string]string // tokenID -> txHash
}

// NewAnchorService creates a simulated anchoring service.
func NewAnchorService(config AnchorConfig) *AnchorService {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &AnchorService{
		config:   config,
		logger:   config.Logger,
		retrier:  retry.AnchorRetrier(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		anchored: make(map[string]string),
	}
	s.breaker = circuitbreaker.AnchorBreaker(func(name string, from, to circuitbreaker.State) {
		s.logger.Warn("anchor breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	})
	return s
}

// AnchorProof records a proof on the simulated chain and returns the
// transaction hash. Anchoring the same token twice returns the original
// hash without a second chain write.
func (s *AnchorService) AnchorProof(ctx context.Context, tokenID string, payload map[string]interface{}) (string, error) {
	if tokenID == "" {
		return "", fmt.Errorf("anchor: token id is required")
	}

	s.mu.Lock()
	if txHash, ok := s.anchored[tokenID]; ok {
		s.mu.Unlock()
		return txHash, nil
	}
	s.mu.Unlock()

	var txHash string
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			var callErr error
			txHash, callErr = s.submit(ctx, tokenID, payload)
			return callErr
		})
	})
	if err != nil {
		return "", fmt.Errorf("anchor token %s: %w", tokenID, err)
	}

	s.mu.Lock()
	s.anchored[tokenID] = txHash
	s.mu.Unlock()

	s.logger.Info("proof anchored", "token_id", tokenID, "tx_hash", txHash)
	return txHash, nil
}

// submit performs one simulated chain call.
func (s *AnchorService) submit(ctx context.Context, tokenID string, payload map[string]interface{}) (string, error) {
	if s.config.Latency > 0 {
		timer := time.NewTimer(s.config.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	if s.config.FailureRate > 0 {
		s.mu.Lock()
		failed := s.rng.Float64() < s.config.FailureRate
		s.mu.Unlock()
		if failed {
			return "", retry.Retryable(fmt.Errorf("anchor: node temporarily unavailable"))
		}
	}

	return txHashFor(tokenID, payload), nil
}

// IsAnchored reports whether a token has already been anchored.
func (s *AnchorService) IsAnchored(tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.anchored[tokenID]
	return ok
}

// txHashFor derives the transaction hash from the token and its payload.
func txHashFor(tokenID string, payload map[string]interface{}) string {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", payload))
	}
	sum := sha3.Sum256(append([]byte(tokenID+"|"), data...))
	return "0x" + hex.EncodeToString(sum[:])
}
