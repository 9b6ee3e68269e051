// Package workflow wires the token-deployment operation through the
// orchestration pipeline: the executor drives the deployment state machine
// as a side effect, failures feed the retry-policy classifier, and the
// caller receives one structured outcome.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/chain"
	"github.com/chainmint/issuer/internal/infra/storage"
	"github.com/chainmint/issuer/internal/issuance/orchestration"
	"github.com/chainmint/issuer/internal/issuance/retrypolicy"
	"github.com/chainmint/issuer/internal/issuance/status"
)

// operationType names the deployment operation in audit output.
const operationType = "token_deployment"

// DeployRequest is one token-issuance request.
type DeployRequest struct {
	TokenType      string `json:"tokenType"`
	Network        string `json:"network"`
	TokenName      string `json:"tokenName"`
	TokenSymbol    string `json:"tokenSymbol"`
	DeployedBy     string `json:"deployedBy"`
	CorrelationID  string `json:"correlationId,omitempty"`
	IdempotencyKey string `json:"-"`
}

// DeployResult is the success payload of a deployment run.
type DeployResult struct {
	DeploymentID    string                  `json:"deploymentId"`
	TransactionHash string                  `json:"transactionHash"`
	AssetIdentifier string                  `json:"assetIdentifier"`
	ConfirmedRound  uint64                  `json:"confirmedRound"`
	Status          domain.DeploymentStatus `json:"status"`
}

// DeployOutcome couples the pipeline result with retry guidance. Retry is
// present iff the run failed.
type DeployOutcome struct {
	Result domain.OrchestrationResult[DeployResult] `json:"result"`
	Retry  *domain.RetryPolicyDecision              `json:"retry,omitempty"`
}

// Deployer runs token deployments end to end.
type Deployer struct {
	status            *status.Service
	submitter         chain.Submitter
	pipeline          *orchestration.Pipeline[DeployRequest, DeployResult]
	supportedNetworks map[string]bool
	log               *slog.Logger
}

// NewDeployer creates a deployer. networks is the allow-list of deployment
// targets; an empty list accepts any network.
func NewDeployer(statusSvc *status.Service, submitter chain.Submitter, replays storage.IdempotencyStore, networks []string, log *slog.Logger) *Deployer {
	if log == nil {
		log = slog.Default()
	}
	supported := make(map[string]bool, len(networks))
	for _, n := range networks {
		supported[n] = true
	}
	return &Deployer{
		status:            statusSvc,
		submitter:         submitter,
		pipeline:          orchestration.NewPipeline[DeployRequest, DeployResult](replays, log),
		supportedNetworks: supported,
		log:               log,
	}
}

// Deploy runs one token deployment through the five-stage pipeline. On
// failure the outcome carries a retry-policy decision classified from the
// result's error code.
func (d *Deployer) Deploy(ctx context.Context, req DeployRequest) DeployOutcome {
	result := d.pipeline.Run(ctx, orchestration.RunParams[DeployRequest, DeployResult]{
		OperationType:      operationType,
		CorrelationID:      req.CorrelationID,
		IdempotencyKey:     req.IdempotencyKey,
		UserID:             req.DeployedBy,
		Request:            req,
		Validate:           d.validate,
		CheckPreconditions: d.checkPreconditions,
		Execute:            d.execute,
		VerifyPostCommit:   d.verifyPostCommit,
	})

	outcome := DeployOutcome{Result: result}
	if !result.Success {
		decision := retrypolicy.ClassifyError(result.ErrorCode, domain.CategoryUnknown)
		outcome.Retry = &decision
	}
	return outcome
}

func (d *Deployer) validate(ctx context.Context, req DeployRequest) error {
	switch {
	case strings.TrimSpace(req.TokenType) == "":
		return fmt.Errorf("token type is required")
	case strings.TrimSpace(req.Network) == "":
		return fmt.Errorf("network is required")
	case strings.TrimSpace(req.DeployedBy) == "":
		return fmt.Errorf("deployer address is required")
	case strings.TrimSpace(req.TokenName) == "":
		return fmt.Errorf("token name is required")
	case len(req.TokenSymbol) > 16:
		return fmt.Errorf("token symbol exceeds 16 characters")
	}
	return nil
}

func (d *Deployer) checkPreconditions(ctx context.Context, req DeployRequest) error {
	if len(d.supportedNetworks) > 0 && !d.supportedNetworks[req.Network] {
		return fmt.Errorf("network %q is not enabled on this platform", req.Network)
	}
	return nil
}

// execute drives the state machine alongside the chain submission. Every
// transition failure surfaces in the tracked record; submission errors
// mark the deployment failed with retryability taken from the classifier.
func (d *Deployer) execute(ctx context.Context, req DeployRequest) (DeployResult, error) {
	deployment, err := d.status.CreateDeployment(ctx, status.CreateParams{
		TokenType:     req.TokenType,
		Network:       req.Network,
		DeployedBy:    req.DeployedBy,
		TokenName:     req.TokenName,
		TokenSymbol:   req.TokenSymbol,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return DeployResult{}, fmt.Errorf("create deployment record: %w", err)
	}

	ok, err := d.status.UpdateStatus(ctx, deployment.DeploymentID, domain.StatusSubmitted, status.UpdateParams{
		Message: "submitting to network",
	})
	if err != nil {
		return DeployResult{}, fmt.Errorf("record submission: %w", err)
	}
	if !ok {
		return DeployResult{}, fmt.Errorf("record submission: transition to %s rejected", domain.StatusSubmitted)
	}

	submitted, err := d.submitter.SubmitTokenDeployment(ctx, chain.SubmitRequest{
		TokenType:   req.TokenType,
		Network:     req.Network,
		TokenName:   req.TokenName,
		TokenSymbol: req.TokenSymbol,
		DeployedBy:  req.DeployedBy,
	})
	if err != nil {
		d.failDeployment(ctx, deployment.DeploymentID, err)
		return DeployResult{}, fmt.Errorf("submit token deployment: %w", err)
	}

	for _, step := range []struct {
		to      domain.DeploymentStatus
		message string
	}{
		{domain.StatusPending, "awaiting confirmation"},
		{domain.StatusConfirmed, "confirmed on chain"},
		{domain.StatusCompleted, "deployment completed"},
	} {
		ok, err := d.status.UpdateStatus(ctx, deployment.DeploymentID, step.to, status.UpdateParams{
			Message:         step.message,
			TransactionHash: submitted.TransactionHash,
			ConfirmedRound:  submitted.ConfirmedRound,
		})
		if err != nil {
			return DeployResult{}, fmt.Errorf("record %s: %w", step.to, err)
		}
		if !ok {
			return DeployResult{}, fmt.Errorf("record %s: transition rejected", step.to)
		}
	}

	if _, err := d.status.UpdateAssetIdentifier(ctx, deployment.DeploymentID, submitted.AssetIdentifier); err != nil {
		d.log.Warn("asset identifier not recorded",
			"deployment_id", deployment.DeploymentID, "error", err)
	}

	return DeployResult{
		DeploymentID:    deployment.DeploymentID,
		TransactionHash: submitted.TransactionHash,
		AssetIdentifier: submitted.AssetIdentifier,
		ConfirmedRound:  submitted.ConfirmedRound,
		Status:          domain.StatusCompleted,
	}, nil
}

func (d *Deployer) verifyPostCommit(ctx context.Context, req DeployRequest, res DeployResult) error {
	return d.submitter.VerifyDeployment(ctx, req.Network, res.AssetIdentifier)
}

// failDeployment marks the tracked record failed, with retryability
// classified from the submission error's shape.
func (d *Deployer) failDeployment(ctx context.Context, deploymentID string, cause error) {
	code := orchestration.ClassifyExecutionError(cause)
	decision := retrypolicy.ClassifyError(code, domain.CategoryUnknown)
	retryable := decision.Policy != domain.NotRetryable

	if _, err := d.status.MarkFailed(ctx, deploymentID, cause.Error(), retryable); err != nil {
		d.log.Warn("deployment could not be marked failed",
			"deployment_id", deploymentID, "error", err)
	}
}

// RequeueFailed applies the recovery transition for a failed deployment.
// Returns false when the deployment is missing, not failed, or failed
// non-retryably.
func (d *Deployer) RequeueFailed(ctx context.Context, deploymentID string) (bool, error) {
	return d.status.UpdateStatus(ctx, deploymentID, domain.StatusQueued, status.UpdateParams{
		Message: "requeued for retry",
	})
}
