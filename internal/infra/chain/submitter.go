// Package chain defines the boundary to the blockchain execution layer.
// The orchestration pipeline treats submission as an opaque executor; this
// package supplies the interface that boundary is built from plus a
// simulated implementation for dev mode and tests.
package chain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubmitRequest carries the token parameters handed to the chain layer.
type SubmitRequest struct {
	TokenType   string
	Network     string
	TokenName   string
	TokenSymbol string
	DeployedBy  string
}

// SubmitResult reports a confirmed submission.
type SubmitResult struct {
	TransactionHash string
	AssetIdentifier string
	ConfirmedRound  uint64
}

// Submitter submits token deployments and verifies their on-chain effect.
type Submitter interface {
	SubmitTokenDeployment(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	VerifyDeployment(ctx context.Context, network, assetIdentifier string) error
}

// SimulatedSubmitter emulates submission and confirmation so the full
// pipeline runs without a chain connection. Used in dev mode.
type SimulatedSubmitter struct {
	Latency time.Duration
}

// NewSimulatedSubmitter creates a simulator with the given artificial
// confirmation latency.
func NewSimulatedSubmitter(latency time.Duration) *SimulatedSubmitter {
	return &SimulatedSubmitter{Latency: latency}
}

func (s *SimulatedSubmitter) SubmitTokenDeployment(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if s.Latency > 0 {
		select {
		case <-ctx.Done():
			return SubmitResult{}, ctx.Err()
		case <-time.After(s.Latency):
		}
	}

	id := uuid.NewString()
	return SubmitResult{
		TransactionHash: "SIM" + strings.ToUpper(strings.ReplaceAll(id, "-", "")),
		AssetIdentifier: uuid.NewString(),
		ConfirmedRound:  uint64(time.Now().Unix()),
	}, nil
}

func (s *SimulatedSubmitter) VerifyDeployment(ctx context.Context, network, assetIdentifier string) error {
	return ctx.Err()
}
