// Package orchestration wraps token workflow operations in a deterministic
// five-stage pipeline: Validate, CheckPreconditions, Execute,
// VerifyPostCommit (optional), EmitTelemetry. Every stage leaves a timed
// marker in the result, failures are classified into a closed error-code
// and category space, and executor faults never escape as Go errors: the
// pipeline always returns a structured result.
package orchestration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/storage"
	"github.com/chainmint/issuer/internal/issuance/metrics"
)

// replayNamespace keys pipeline results in the idempotency store.
const replayNamespace = "orchestration"

// replayTTL bounds how long a completed result can be replayed.
const replayTTL = time.Hour

// Policy checks a request before execution. A nil return passes; a non-nil
// error fails the pipeline with the error's message.
type Policy[Req any] func(ctx context.Context, req Req) error

// Executor performs the operation. It is opaque to the pipeline: only
// success or the returned error's shape is observed.
type Executor[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Verifier confirms the operation's downstream effect after a successful
// Execute. A non-nil error fails the pipeline as a post-commit
// verification failure.
type Verifier[Req, Res any] func(ctx context.Context, req Req, res Res) error

// Pipeline runs token workflow operations of one request/result shape.
type Pipeline[Req, Res any] struct {
	replays storage.IdempotencyStore
	log     *slog.Logger
}

// NewPipeline creates a pipeline. replays may be nil to disable idempotent
// replay detection.
func NewPipeline[Req, Res any](replays storage.IdempotencyStore, log *slog.Logger) *Pipeline[Req, Res] {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline[Req, Res]{replays: replays, log: log}
}

// RunParams describes one pipeline invocation. Validate, CheckPreconditions
// and Execute are required; VerifyPostCommit is optional. A correlation ID
// is generated when absent.
type RunParams[Req, Res any] struct {
	OperationType      string
	CorrelationID      string
	IdempotencyKey     string
	UserID             string
	Request            Req
	Validate           Policy[Req]
	CheckPreconditions Policy[Req]
	Execute            Executor[Req, Res]
	VerifyPostCommit   Verifier[Req, Res]
}

// Run executes the five stages in order and returns a structured result.
// The returned result is complete in every outcome: all stage markers up
// to the failing stage, the policy-decision trail, and the audit summary.
func (p *Pipeline[Req, Res]) Run(ctx context.Context, params RunParams[Req, Res]) domain.OrchestrationResult[Res] {
	octx := &domain.OrchestrationContext{
		OperationType:  params.OperationType,
		CorrelationID:  params.CorrelationID,
		IdempotencyKey: params.IdempotencyKey,
		UserID:         params.UserID,
		InitiatedAt:    time.Now().UTC(),
		Metadata:       map[string]string{},
	}
	if octx.CorrelationID == "" {
		octx.CorrelationID = uuid.NewString()
	}

	// Validate
	marker := p.startStage(octx, domain.StageValidate)
	if err := params.Validate(ctx, params.Request); err != nil {
		p.endStage(octx, marker, false, err.Error())
		p.recordDecision(octx, "request_validation", "rejected", err.Error())
		return p.failure(octx, domain.CodeInvalidRequest, err.Error())
	}
	p.endStage(octx, marker, true, "")
	p.recordDecision(octx, "request_validation", "accepted", "")

	// CheckPreconditions
	marker = p.startStage(octx, domain.StageCheckPreconditions)
	if err := params.CheckPreconditions(ctx, params.Request); err != nil {
		p.endStage(octx, marker, false, err.Error())
		p.recordDecision(octx, "platform_preconditions", "rejected", err.Error())
		return p.failure(octx, domain.CodePreconditionFailed, err.Error())
	}
	p.endStage(octx, marker, true, "")
	p.recordDecision(octx, "platform_preconditions", "accepted", "")

	// Execute
	marker = p.startStage(octx, domain.StageExecute)

	replay, conflict := p.lookupReplay(ctx, octx, params)
	if conflict != nil {
		p.endStage(octx, marker, false, conflict.Error())
		return p.failure(octx, domain.CodeResourceConflict, conflict.Error())
	}
	if replay != nil {
		p.endStage(octx, marker, true, "idempotent replay, execution skipped")
		p.emitTelemetry(octx)
		return p.replaySuccess(octx, *replay)
	}

	if err := ctx.Err(); err != nil {
		p.endStage(octx, marker, false, "request cancelled before execution")
		return p.failure(octx, domain.CodeRequestCancelled, "request cancelled before execution")
	}

	payload, err := p.execute(ctx, params)
	if err != nil {
		code := ClassifyExecutionError(err)
		p.endStage(octx, marker, false, err.Error())
		return p.failure(octx, code, err.Error())
	}
	p.endStage(octx, marker, true, "")

	// VerifyPostCommit (optional)
	if params.VerifyPostCommit != nil {
		marker = p.startStage(octx, domain.StageVerifyPostCommit)
		if err := p.verify(ctx, params, payload); err != nil {
			p.endStage(octx, marker, false, err.Error())
			return p.failure(octx, domain.CodePostCommitVerification, err.Error())
		}
		p.endStage(octx, marker, true, "")
	}

	p.emitTelemetry(octx)

	p.storeReplay(ctx, octx, params, payload)
	return p.success(octx, payload, false)
}

// emitTelemetry closes every success path, replayed or not, so the stage
// timeline always ends the same way. It always succeeds: telemetry is
// observed, never load-bearing.
func (p *Pipeline[Req, Res]) emitTelemetry(octx *domain.OrchestrationContext) {
	marker := p.startStage(octx, domain.StageEmitTelemetry)
	p.log.Info("operation completed",
		"operation", octx.OperationType,
		"correlation_id", octx.CorrelationID,
		"user_id", octx.UserID,
		"stages", len(octx.StageMarkers),
		"duration_ms", time.Since(octx.InitiatedAt).Milliseconds())
	p.endStage(octx, marker, true, "")
}

// execute runs the executor, converting a panic into an error so a
// misbehaving executor cannot crash the pipeline.
func (p *Pipeline[Req, Res]) execute(ctx context.Context, params RunParams[Req, Res]) (payload Res, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return params.Execute(ctx, params.Request)
}

// verify runs the post-commit verifier, converting a panic into an error
// so a misbehaving verifier cannot crash the pipeline.
func (p *Pipeline[Req, Res]) verify(ctx context.Context, params RunParams[Req, Res], payload Res) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("post-commit verifier panicked: %v", r)
		}
	}()
	return params.VerifyPostCommit(ctx, params.Request, payload)
}

func (p *Pipeline[Req, Res]) startStage(octx *domain.OrchestrationContext, stage domain.OrchestrationStage) int {
	octx.CurrentStage = stage
	octx.StageMarkers = append(octx.StageMarkers, domain.OrchestrationStageMarker{
		Stage:     stage,
		Timestamp: time.Now().UTC(),
	})
	return len(octx.StageMarkers) - 1
}

func (p *Pipeline[Req, Res]) endStage(octx *domain.OrchestrationContext, idx int, success bool, message string) {
	m := &octx.StageMarkers[idx]
	m.Success = success
	m.Message = message
	m.DurationMs = time.Since(m.Timestamp).Milliseconds()
	metrics.PipelineStageDuration.WithLabelValues(string(m.Stage)).
		Observe(time.Since(m.Timestamp).Seconds())
}

func (p *Pipeline[Req, Res]) recordDecision(octx *domain.OrchestrationContext, policy, outcome, detail string) {
	octx.PolicyDecisions = append(octx.PolicyDecisions, domain.OrchestrationPolicyDecision{
		PolicyName: policy,
		Outcome:    outcome,
		Detail:     detail,
		DecidedAt:  time.Now().UTC(),
	})
}

// lookupReplay consults the replay registry when an idempotency key is
// present. It returns a cached payload for an exact parameter match, or a
// conflict error when the key was used with different parameters.
func (p *Pipeline[Req, Res]) lookupReplay(ctx context.Context, octx *domain.OrchestrationContext, params RunParams[Req, Res]) (*Res, error) {
	if p.replays == nil || octx.IdempotencyKey == "" {
		return nil, nil
	}

	rec, err := p.replays.Get(ctx, replayNamespace, octx.IdempotencyKey)
	if err != nil {
		// Registry trouble must not block the operation.
		p.log.Warn("replay registry lookup failed",
			"correlation_id", octx.CorrelationID, "error", err)
		return nil, nil
	}
	if rec == nil {
		return nil, nil
	}

	if rec.ParamsHash != hashRequest(params.Request) {
		return nil, fmt.Errorf("idempotency key already used with different request parameters")
	}

	var payload Res
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		p.log.Warn("cached replay payload could not be decoded",
			"correlation_id", octx.CorrelationID, "error", err)
		return nil, nil
	}
	return &payload, nil
}

func (p *Pipeline[Req, Res]) storeReplay(ctx context.Context, octx *domain.OrchestrationContext, params RunParams[Req, Res], payload Res) {
	if p.replays == nil || octx.IdempotencyKey == "" {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Warn("replay payload could not be encoded",
			"correlation_id", octx.CorrelationID, "error", err)
		return
	}

	_, _, err = p.replays.PutIfAbsent(ctx, replayNamespace, octx.IdempotencyKey, &storage.IdempotencyRecord{
		Key:        octx.IdempotencyKey,
		ParamsHash: hashRequest(params.Request),
		Payload:    data,
		CreatedAt:  time.Now().UTC(),
	}, replayTTL)
	if err != nil {
		p.log.Warn("replay registry write failed",
			"correlation_id", octx.CorrelationID, "error", err)
	}
}

func hashRequest(req any) string {
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (p *Pipeline[Req, Res]) success(octx *domain.OrchestrationContext, payload Res, replayed bool) domain.OrchestrationResult[Res] {
	octx.CurrentStage = domain.StageCompleted
	metrics.PipelineRuns.WithLabelValues(octx.OperationType, "success").Inc()

	return domain.OrchestrationResult[Res]{
		Success:          true,
		CompletedAtStage: domain.StageCompleted,
		CorrelationID:    octx.CorrelationID,
		IdempotencyKey:   octx.IdempotencyKey,
		Payload:          payload,
		StageMarkers:     octx.StageMarkers,
		PolicyDecisions:  octx.PolicyDecisions,
		TotalDurationMs:  time.Since(octx.InitiatedAt).Milliseconds(),
		AuditSummary:     p.auditSummary(octx, "success", replayed),
	}
}

func (p *Pipeline[Req, Res]) replaySuccess(octx *domain.OrchestrationContext, payload Res) domain.OrchestrationResult[Res] {
	p.log.Info("idempotent replay detected",
		"operation", octx.OperationType,
		"correlation_id", octx.CorrelationID,
		"idempotency_key", octx.IdempotencyKey)
	return p.success(octx, payload, true)
}

// failure builds the uniform failure result: classified code, category,
// category-specific remediation hint, the complete marker timeline, and
// the audit summary.
func (p *Pipeline[Req, Res]) failure(octx *domain.OrchestrationContext, code domain.ErrorCode, message string) domain.OrchestrationResult[Res] {
	failedAt := octx.CurrentStage
	category := categoryFor(code)
	octx.CurrentStage = domain.StageFailed

	metrics.PipelineRuns.WithLabelValues(octx.OperationType, "failure").Inc()
	metrics.PipelineStageFailures.WithLabelValues(string(failedAt), string(category)).Inc()

	p.log.Warn("operation failed",
		"operation", octx.OperationType,
		"stage", failedAt,
		"error_code", code,
		"category", category,
		"correlation_id", octx.CorrelationID)

	return domain.OrchestrationResult[Res]{
		Success:          false,
		CompletedAtStage: failedAt,
		CorrelationID:    octx.CorrelationID,
		IdempotencyKey:   octx.IdempotencyKey,
		ErrorCode:        code,
		ErrorMessage:     message,
		RemediationHint:  remediationHintFor(category),
		FailureCategory:  category,
		StageMarkers:     octx.StageMarkers,
		PolicyDecisions:  octx.PolicyDecisions,
		TotalDurationMs:  time.Since(octx.InitiatedAt).Milliseconds(),
		AuditSummary:     p.auditSummary(octx, "failure", false),
	}
}

func (p *Pipeline[Req, Res]) auditSummary(octx *domain.OrchestrationContext, outcome string, replayed bool) domain.AuditSummary {
	completed := 0
	for _, m := range octx.StageMarkers {
		if m.Success {
			completed++
		}
	}
	return domain.AuditSummary{
		OperationType:         octx.OperationType,
		InitiatedBy:           octx.UserID,
		InitiatedAt:           octx.InitiatedAt,
		CompletedAt:           time.Now().UTC(),
		Outcome:               outcome,
		StagesCompleted:       completed,
		PolicyDecisionCount:   len(octx.PolicyDecisions),
		IdempotencyKeyPresent: octx.IdempotencyKey != "",
		IdempotentReplay:      replayed,
	}
}
