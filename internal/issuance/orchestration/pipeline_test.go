package orchestration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/storage/memory"
)

type deployRequest struct {
	TokenName string
	Network   string
}

type deployResult struct {
	TxHash string
}

func passPolicy(ctx context.Context, req deployRequest) error { return nil }

func okExecutor(ctx context.Context, req deployRequest) (deployResult, error) {
	return deployResult{TxHash: "0xabc"}, nil
}

func newTestPipeline() *Pipeline[deployRequest, deployResult] {
	return NewPipeline[deployRequest, deployResult](memory.NewIdempotencyStore(), nil)
}

func baseParams() RunParams[deployRequest, deployResult] {
	return RunParams[deployRequest, deployResult]{
		OperationType:      "token_deployment",
		UserID:             "user-1",
		Request:            deployRequest{TokenName: "Gold", Network: "voi-mainnet"},
		Validate:           passPolicy,
		CheckPreconditions: passPolicy,
		Execute:            okExecutor,
	}
}

func stageOrder(markers []domain.OrchestrationStageMarker) []domain.OrchestrationStage {
	stages := make([]domain.OrchestrationStage, len(markers))
	for i, m := range markers {
		stages[i] = m.Stage
	}
	return stages
}

func assertStages(t *testing.T, got, want []domain.OrchestrationStage) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("stage order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage order = %v, want %v", got, want)
		}
	}
}

// Successful runs produce markers in exact stage order and
// complete at Completed.
func TestRun_StageOrdering(t *testing.T) {
	p := newTestPipeline()
	res := p.Run(context.Background(), baseParams())

	if !res.Success {
		t.Fatalf("run failed: %+v", res)
	}
	if res.CompletedAtStage != domain.StageCompleted {
		t.Errorf("completed at %v, want completed", res.CompletedAtStage)
	}
	assertStages(t, stageOrder(res.StageMarkers), []domain.OrchestrationStage{
		domain.StageValidate,
		domain.StageCheckPreconditions,
		domain.StageExecute,
		domain.StageEmitTelemetry,
	})
	for _, m := range res.StageMarkers {
		if !m.Success {
			t.Errorf("stage %v marked unsuccessful on a successful run", m.Stage)
		}
	}
	if res.Payload.TxHash != "0xabc" {
		t.Errorf("payload = %+v", res.Payload)
	}
	if res.CorrelationID == "" {
		t.Error("correlation ID should be generated")
	}
}

func TestRun_WithPostCommitVerifier(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	verified := false
	params.VerifyPostCommit = func(ctx context.Context, req deployRequest, res deployResult) error {
		verified = true
		return nil
	}

	res := p.Run(context.Background(), params)
	if !res.Success {
		t.Fatalf("run failed: %+v", res)
	}
	if !verified {
		t.Error("verifier did not run")
	}
	assertStages(t, stageOrder(res.StageMarkers), []domain.OrchestrationStage{
		domain.StageValidate,
		domain.StageCheckPreconditions,
		domain.StageExecute,
		domain.StageVerifyPostCommit,
		domain.StageEmitTelemetry,
	})
}

// A validation rejection short-circuits everything after it.
func TestRun_ValidationShortCircuit(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	params.Validate = func(ctx context.Context, req deployRequest) error {
		return errors.New("token name is required")
	}
	executed := false
	params.Execute = func(ctx context.Context, req deployRequest) (deployResult, error) {
		executed = true
		return deployResult{}, nil
	}

	res := p.Run(context.Background(), params)

	if res.Success {
		t.Fatal("expected failure")
	}
	if executed {
		t.Error("executor ran after validation failed")
	}
	if res.FailureCategory != domain.ValidationFailure {
		t.Errorf("category = %v, want validation", res.FailureCategory)
	}
	if res.ErrorCode != domain.CodeInvalidRequest {
		t.Errorf("error code = %v", res.ErrorCode)
	}
	if res.ErrorMessage != "token name is required" {
		t.Errorf("error message = %q", res.ErrorMessage)
	}
	assertStages(t, stageOrder(res.StageMarkers), []domain.OrchestrationStage{domain.StageValidate})
	if res.StageMarkers[0].Success {
		t.Error("failed stage marker should not report success")
	}
}

func TestRun_PreconditionFailure(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	params.CheckPreconditions = func(ctx context.Context, req deployRequest) error {
		return errors.New("KYC verification incomplete")
	}

	res := p.Run(context.Background(), params)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailureCategory != domain.PreconditionFailure {
		t.Errorf("category = %v, want precondition", res.FailureCategory)
	}
	if res.CompletedAtStage != domain.StageCheckPreconditions {
		t.Errorf("completed at %v", res.CompletedAtStage)
	}
}

func TestRun_ExecutorErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     domain.ErrorCode
		category domain.FailureCategory
	}{
		{"timeout", context.DeadlineExceeded, domain.CodeBlockchainTimeout, domain.TransientInfrastructureFailure},
		{"cancelled", context.Canceled, domain.CodeRequestCancelled, domain.TransientInfrastructureFailure},
		{"invalid state", fmt.Errorf("submit: %w", ErrInvalidState), domain.CodeOperationFailed, domain.TerminalFailure},
		{"unknown", errors.New("boom"), domain.CodeInternalError, domain.TerminalFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline()
			params := baseParams()
			params.Execute = func(ctx context.Context, req deployRequest) (deployResult, error) {
				return deployResult{}, tt.err
			}

			res := p.Run(context.Background(), params)
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.ErrorCode != tt.code {
				t.Errorf("error code = %v, want %v", res.ErrorCode, tt.code)
			}
			if res.FailureCategory != tt.category {
				t.Errorf("category = %v, want %v", res.FailureCategory, tt.category)
			}
		})
	}
}

func TestRun_CancelledBeforeExecute(t *testing.T) {
	p := newTestPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executed := false
	params := baseParams()
	params.Execute = func(ctx context.Context, req deployRequest) (deployResult, error) {
		executed = true
		return deployResult{}, nil
	}

	res := p.Run(ctx, params)
	if res.Success {
		t.Fatal("expected failure")
	}
	if executed {
		t.Error("executor ran on a cancelled context")
	}
	if res.ErrorCode != domain.CodeRequestCancelled {
		t.Errorf("error code = %v", res.ErrorCode)
	}
	if res.FailureCategory != domain.TransientInfrastructureFailure {
		t.Errorf("category = %v", res.FailureCategory)
	}
}

func TestRun_PostCommitVerificationFailure(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	params.VerifyPostCommit = func(ctx context.Context, req deployRequest, res deployResult) error {
		return errors.New("asset not visible on chain")
	}

	res := p.Run(context.Background(), params)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailureCategory != domain.PostCommitVerificationFailure {
		t.Errorf("category = %v", res.FailureCategory)
	}
	if res.RemediationHint == "" {
		t.Error("post-commit failure must carry a support-escalation hint")
	}
	// Execute succeeded; its marker must still be present and successful.
	assertStages(t, stageOrder(res.StageMarkers), []domain.OrchestrationStage{
		domain.StageValidate,
		domain.StageCheckPreconditions,
		domain.StageExecute,
		domain.StageVerifyPostCommit,
	})
	if !res.StageMarkers[2].Success {
		t.Error("execute marker should be successful")
	}
}

func TestRun_PostCommitVerifierPanicIsContained(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	params.VerifyPostCommit = func(ctx context.Context, req deployRequest, res deployResult) error {
		panic("verifier bug")
	}

	res := p.Run(context.Background(), params)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailureCategory != domain.PostCommitVerificationFailure {
		t.Errorf("category = %v", res.FailureCategory)
	}
}

func TestRun_ExecutorPanicIsContained(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	params.Execute = func(ctx context.Context, req deployRequest) (deployResult, error) {
		panic("executor bug")
	}

	res := p.Run(context.Background(), params)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorCode != domain.CodeInternalError {
		t.Errorf("code = %v, want internal_error", res.ErrorCode)
	}
	if res.FailureCategory != domain.TerminalFailure {
		t.Errorf("category = %v, want terminal_failure", res.FailureCategory)
	}
	if res.CompletedAtStage != domain.StageExecute {
		t.Errorf("completed at stage = %v, want execute", res.CompletedAtStage)
	}
}

func TestRun_IdempotentReplay(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	params.IdempotencyKey = "op-key-1"

	executions := 0
	params.Execute = func(ctx context.Context, req deployRequest) (deployResult, error) {
		executions++
		return deployResult{TxHash: "0xfirst"}, nil
	}

	first := p.Run(context.Background(), params)
	if !first.Success || first.AuditSummary.IdempotentReplay {
		t.Fatalf("first run: %+v", first.AuditSummary)
	}

	second := p.Run(context.Background(), params)
	if !second.Success {
		t.Fatalf("second run failed: %+v", second)
	}
	if executions != 1 {
		t.Errorf("executor ran %d times, want 1", executions)
	}
	if !second.AuditSummary.IdempotentReplay {
		t.Error("second run should be flagged as an idempotent replay")
	}
	if second.Payload.TxHash != "0xfirst" {
		t.Errorf("replayed payload = %+v", second.Payload)
	}
	// A replayed success still ends its timeline with EmitTelemetry.
	assertStages(t, stageOrder(second.StageMarkers), []domain.OrchestrationStage{
		domain.StageValidate,
		domain.StageCheckPreconditions,
		domain.StageExecute,
		domain.StageEmitTelemetry,
	})
}

func TestRun_IdempotencyKeyConflict(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	params.IdempotencyKey = "op-key-2"

	if res := p.Run(context.Background(), params); !res.Success {
		t.Fatalf("first run failed: %+v", res)
	}

	params.Request.TokenName = "Silver"
	res := p.Run(context.Background(), params)
	if res.Success {
		t.Fatal("reused key with different parameters should be rejected")
	}
	if res.ErrorCode != domain.CodeResourceConflict {
		t.Errorf("error code = %v", res.ErrorCode)
	}
}

func TestRun_AuditSummary(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	params.IdempotencyKey = "op-key-3"

	res := p.Run(context.Background(), params)
	s := res.AuditSummary

	if s.OperationType != "token_deployment" || s.InitiatedBy != "user-1" {
		t.Errorf("summary identity fields = %+v", s)
	}
	if s.Outcome != "success" {
		t.Errorf("outcome = %q", s.Outcome)
	}
	if s.StagesCompleted != 4 {
		t.Errorf("stages completed = %d, want 4", s.StagesCompleted)
	}
	if s.PolicyDecisionCount != 2 {
		t.Errorf("policy decisions = %d, want 2", s.PolicyDecisionCount)
	}
	if !s.IdempotencyKeyPresent {
		t.Error("idempotency key presence not recorded")
	}
	if s.CompletedAt.Before(s.InitiatedAt) {
		t.Error("completion precedes initiation")
	}
}

func TestRun_FailureKeyNotStored(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	params.IdempotencyKey = "op-key-4"
	params.Execute = func(ctx context.Context, req deployRequest) (deployResult, error) {
		return deployResult{}, errors.New("boom")
	}

	if res := p.Run(context.Background(), params); res.Success {
		t.Fatal("expected failure")
	}

	// A failed run must not poison the replay registry: the retry executes.
	params.Execute = okExecutor
	res := p.Run(context.Background(), params)
	if !res.Success {
		t.Fatalf("retry failed: %+v", res)
	}
	if res.AuditSummary.IdempotentReplay {
		t.Error("retry after failure wrongly served from the replay registry")
	}
}

func TestRun_TotalDuration(t *testing.T) {
	p := newTestPipeline()
	params := baseParams()
	params.Execute = func(ctx context.Context, req deployRequest) (deployResult, error) {
		time.Sleep(5 * time.Millisecond)
		return deployResult{TxHash: "0xabc"}, nil
	}

	res := p.Run(context.Background(), params)
	if res.TotalDurationMs < 5 {
		t.Errorf("total duration = %dms, want >= 5", res.TotalDurationMs)
	}
}
