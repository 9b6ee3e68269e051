package domain

import "time"

// OrchestrationStage is one phase of the token workflow pipeline. Stages
// run strictly in declaration order; there is no branching back.
type OrchestrationStage string

const (
	StageValidate           OrchestrationStage = "validate"
	StageCheckPreconditions OrchestrationStage = "check_preconditions"
	StageExecute            OrchestrationStage = "execute"
	StageVerifyPostCommit   OrchestrationStage = "verify_post_commit"
	StageEmitTelemetry      OrchestrationStage = "emit_telemetry"
	StageCompleted          OrchestrationStage = "completed"
	StageFailed             OrchestrationStage = "failed"
)

// FailureCategory groups pipeline failures for remediation guidance.
type FailureCategory string

const (
	ValidationFailure              FailureCategory = "validation_failure"
	PreconditionFailure            FailureCategory = "precondition_failure"
	TransientInfrastructureFailure FailureCategory = "transient_infrastructure_failure"
	PolicyFailure                  FailureCategory = "policy_failure"
	PostCommitVerificationFailure  FailureCategory = "post_commit_verification_failure"
	TerminalFailure                FailureCategory = "terminal_failure"
)

// OrchestrationStageMarker records one stage's execution window. A marker
// is written exactly twice: created when the stage starts and finalized
// when it ends.
type OrchestrationStageMarker struct {
	Stage      OrchestrationStage `json:"stage"`
	Timestamp  time.Time          `json:"timestamp"`
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	DurationMs int64              `json:"durationMs"`
}

// OrchestrationPolicyDecision is one policy check recorded during a
// pipeline run, kept for the audit trail.
type OrchestrationPolicyDecision struct {
	PolicyName string    `json:"policyName"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	DecidedAt  time.Time `json:"decidedAt"`
}

// OrchestrationContext accumulates per-invocation pipeline state. It is
// owned by a single pipeline run and discarded once the result is built;
// markers and decisions are copied into the result for audit.
type OrchestrationContext struct {
	OperationType   string
	CorrelationID   string
	IdempotencyKey  string
	UserID          string
	InitiatedAt     time.Time
	CurrentStage    OrchestrationStage
	StageMarkers    []OrchestrationStageMarker
	PolicyDecisions []OrchestrationPolicyDecision
	Metadata        map[string]string
}

// AuditSummary is the compliance digest attached to every pipeline result.
type AuditSummary struct {
	OperationType         string    `json:"operationType"`
	InitiatedBy           string    `json:"initiatedBy"`
	InitiatedAt           time.Time `json:"initiatedAt"`
	CompletedAt           time.Time `json:"completedAt"`
	Outcome               string    `json:"outcome"`
	StagesCompleted       int       `json:"stagesCompleted"`
	PolicyDecisionCount   int       `json:"policyDecisionCount"`
	IdempotencyKeyPresent bool      `json:"idempotencyKeyPresent"`
	IdempotentReplay      bool      `json:"idempotentReplay"`
}

// OrchestrationResult is the terminal output of one pipeline run. Payload
// is set iff Success; the error fields are set iff the run failed.
type OrchestrationResult[T any] struct {
	Success          bool                          `json:"success"`
	CompletedAtStage OrchestrationStage            `json:"completedAtStage"`
	CorrelationID    string                        `json:"correlationId"`
	IdempotencyKey   string                        `json:"idempotencyKey,omitempty"`
	Payload          T                             `json:"payload,omitempty"`
	ErrorCode        ErrorCode                     `json:"errorCode,omitempty"`
	ErrorMessage     string                        `json:"errorMessage,omitempty"`
	RemediationHint  string                        `json:"remediationHint,omitempty"`
	FailureCategory  FailureCategory               `json:"failureCategory,omitempty"`
	StageMarkers     []OrchestrationStageMarker    `json:"stageMarkers"`
	PolicyDecisions  []OrchestrationPolicyDecision `json:"policyDecisions,omitempty"`
	TotalDurationMs  int64                         `json:"totalDurationMs"`
	AuditSummary     AuditSummary                  `json:"auditSummary"`
}
