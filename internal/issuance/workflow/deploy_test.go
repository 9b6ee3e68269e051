package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/chain"
	"github.com/chainmint/issuer/internal/infra/storage/memory"
	"github.com/chainmint/issuer/internal/issuance/status"
)

type failingSubmitter struct {
	err error
}

func (f *failingSubmitter) SubmitTokenDeployment(ctx context.Context, req chain.SubmitRequest) (chain.SubmitResult, error) {
	return chain.SubmitResult{}, f.err
}

func (f *failingSubmitter) VerifyDeployment(ctx context.Context, network, assetIdentifier string) error {
	return nil
}

func newDeployer(t *testing.T, submitter chain.Submitter) (*Deployer, *status.Service) {
	t.Helper()
	repo := memory.NewDeploymentRepo()
	svc := status.NewService(repo, nil, nil)
	return NewDeployer(svc, submitter, memory.NewIdempotencyStore(), []string{"algorand-testnet"}, nil), svc
}

func validRequest() DeployRequest {
	return DeployRequest{
		TokenType:   "asset",
		Network:     "algorand-testnet",
		TokenName:   "Carbon Credit 2026",
		TokenSymbol: "CC26",
		DeployedBy:  "ISSUER7ADDR",
	}
}

func TestDeployHappyPath(t *testing.T) {
	d, svc := newDeployer(t, chain.NewSimulatedSubmitter(0))

	outcome := d.Deploy(context.Background(), validRequest())
	if !outcome.Result.Success {
		t.Fatalf("deploy failed: %s (%s)", outcome.Result.ErrorMessage, outcome.Result.ErrorCode)
	}
	if outcome.Retry != nil {
		t.Fatal("successful outcome should carry no retry decision")
	}
	res := outcome.Result.Payload
	if res.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.TransactionHash == "" || res.AssetIdentifier == "" {
		t.Fatal("submission identifiers missing from result")
	}

	dep, err := svc.GetDeployment(context.Background(), res.DeploymentID)
	if err != nil || dep == nil {
		t.Fatalf("tracked deployment not found: %v", err)
	}
	if dep.CurrentStatus != domain.StatusCompleted {
		t.Fatalf("tracked status = %s, want completed", dep.CurrentStatus)
	}
	if dep.AssetIdentifier != res.AssetIdentifier {
		t.Fatal("asset identifier not recorded on deployment")
	}
	if got := len(dep.StatusHistory); got != 5 {
		t.Fatalf("history length = %d, want 5", got)
	}
}

func TestDeployValidationRejectsBeforeTracking(t *testing.T) {
	d, svc := newDeployer(t, chain.NewSimulatedSubmitter(0))

	req := validRequest()
	req.TokenName = ""
	outcome := d.Deploy(context.Background(), req)
	if outcome.Result.Success {
		t.Fatal("expected validation failure")
	}
	if outcome.Result.ErrorCode != domain.CodeInvalidRequest {
		t.Fatalf("code = %s, want invalid_request", outcome.Result.ErrorCode)
	}
	if outcome.Retry == nil || outcome.Retry.Policy != domain.NotRetryable {
		t.Fatalf("validation failure should classify not_retryable, got %+v", outcome.Retry)
	}

	deployments, _, err := svc.ListDeployments(context.Background(), domain.DeploymentFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(deployments) != 0 {
		t.Fatalf("validation failure must not create a deployment record, found %d", len(deployments))
	}
}

func TestDeployUnsupportedNetwork(t *testing.T) {
	d, _ := newDeployer(t, chain.NewSimulatedSubmitter(0))

	req := validRequest()
	req.Network = "voi-mainnet"
	outcome := d.Deploy(context.Background(), req)
	if outcome.Result.Success {
		t.Fatal("expected precondition failure")
	}
	if outcome.Result.ErrorCode != domain.CodePreconditionFailed {
		t.Fatalf("code = %s, want precondition_failed", outcome.Result.ErrorCode)
	}
}

func TestDeploySubmissionFailureMarksDeploymentFailed(t *testing.T) {
	d, svc := newDeployer(t, &failingSubmitter{err: context.DeadlineExceeded})

	outcome := d.Deploy(context.Background(), validRequest())
	if outcome.Result.Success {
		t.Fatal("expected execution failure")
	}
	if outcome.Result.ErrorCode != domain.CodeBlockchainTimeout {
		t.Fatalf("code = %s, want blockchain_timeout", outcome.Result.ErrorCode)
	}
	if outcome.Retry == nil || outcome.Retry.Policy != domain.RetryableWithDelay {
		t.Fatalf("timeout should classify retryable_with_delay, got %+v", outcome.Retry)
	}

	deployments, _, err := svc.ListDeployments(context.Background(), domain.DeploymentFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(deployments) != 1 {
		t.Fatalf("deployments = %d, want 1", len(deployments))
	}
	dep := deployments[0]
	if dep.CurrentStatus != domain.StatusFailed {
		t.Fatalf("tracked status = %s, want failed", dep.CurrentStatus)
	}
	entry := dep.LatestEntry()
	if entry == nil || !entry.Retryable() {
		t.Fatal("failed entry should be marked retryable")
	}

	requeued, err := d.RequeueFailed(context.Background(), dep.DeploymentID)
	if err != nil {
		t.Fatal(err)
	}
	if !requeued {
		t.Fatal("retryable failure should be requeueable")
	}
}

func TestDeployUnexpectedFailureClassifiesInternal(t *testing.T) {
	d, _ := newDeployer(t, &failingSubmitter{err: errors.New("boom")})

	outcome := d.Deploy(context.Background(), validRequest())
	if outcome.Result.Success {
		t.Fatal("expected execution failure")
	}
	if outcome.Result.ErrorCode != domain.CodeInternalError {
		t.Fatalf("code = %s, want internal_error", outcome.Result.ErrorCode)
	}
	if outcome.Retry == nil || outcome.Retry.Policy != domain.RetryableWithDelay {
		t.Fatalf("internal error should classify retryable_with_delay, got %+v", outcome.Retry)
	}
}

// stuckRepo reports every deployment as already completed, so the state
// machine rejects any further transition.
type stuckRepo struct {
	*memory.DeploymentRepo
}

func (r *stuckRepo) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.TokenDeployment, error) {
	d, err := r.DeploymentRepo.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	copied := *d
	copied.CurrentStatus = domain.StatusCompleted
	return &copied, nil
}

func TestDeployRejectedTransitionFailsDeploy(t *testing.T) {
	repo := &stuckRepo{DeploymentRepo: memory.NewDeploymentRepo()}
	svc := status.NewService(repo, nil, nil)
	d := NewDeployer(svc, chain.NewSimulatedSubmitter(0), memory.NewIdempotencyStore(), []string{"algorand-testnet"}, nil)

	outcome := d.Deploy(context.Background(), validRequest())
	if outcome.Result.Success {
		t.Fatal("a rejected status transition must fail the deployment")
	}
	if !strings.Contains(outcome.Result.ErrorMessage, "transition") {
		t.Fatalf("error message %q should report the rejected transition", outcome.Result.ErrorMessage)
	}
}

func TestRequeueBlockedAfterNonRetryableFailure(t *testing.T) {
	d, svc := newDeployer(t, chain.NewSimulatedSubmitter(0))

	dep, err := svc.CreateDeployment(context.Background(), status.CreateParams{
		TokenType:  "asset",
		Network:    "algorand-testnet",
		TokenName:  "Carbon Credit 2026",
		DeployedBy: "ISSUER7ADDR",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MarkFailed(context.Background(), dep.DeploymentID, "rejected by compliance review", false); err != nil {
		t.Fatal(err)
	}

	requeued, err := d.RequeueFailed(context.Background(), dep.DeploymentID)
	if err != nil {
		t.Fatal(err)
	}
	if requeued {
		t.Fatal("non-retryable failure must not be requeueable")
	}
	got, err := svc.GetDeployment(context.Background(), dep.DeploymentID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentStatus != domain.StatusFailed {
		t.Fatalf("status = %s, want failed after rejected requeue", got.CurrentStatus)
	}
}
