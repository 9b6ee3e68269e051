package orchestration

import (
	"context"
	"errors"
	"net"

	"github.com/chainmint/issuer/internal/core/domain"
)

// ErrInvalidState is returned by executors when the operation cannot run
// in the platform's current state.
var ErrInvalidState = errors.New("operation not valid in current state")

// ClassifyExecutionError maps an executor fault to an error code by error
// shape: timeouts, transport failures and invalid state are distinguished
// from everything else.
func ClassifyExecutionError(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, context.Canceled):
		return domain.CodeRequestCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return domain.CodeBlockchainTimeout
	case errors.Is(err, ErrInvalidState):
		return domain.CodeOperationFailed
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.CodeBlockchainTimeout
		}
		return domain.CodeNetworkError
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.CodeNetworkError
	}

	return domain.CodeInternalError
}

// errorCategories is the fixed error-code -> failure-category table.
var errorCategories = map[domain.ErrorCode]domain.FailureCategory{
	domain.CodeInvalidRequest:     domain.ValidationFailure,
	domain.CodeValidationError:    domain.ValidationFailure,
	domain.CodePreconditionFailed: domain.PreconditionFailure,
	domain.CodeKYCRequired:        domain.PreconditionFailure,
	domain.CodeSubscriptionLimit:  domain.PreconditionFailure,
	domain.CodeInsufficientFunds:  domain.PreconditionFailure,

	domain.CodeNetworkError:      domain.TransientInfrastructureFailure,
	domain.CodeBlockchainTimeout: domain.TransientInfrastructureFailure,
	domain.CodeRequestCancelled:  domain.TransientInfrastructureFailure,

	domain.CodeComplianceError:   domain.PolicyFailure,
	domain.CodeUnauthorized:      domain.PolicyFailure,
	domain.CodeUserRejection:     domain.PolicyFailure,
	domain.CodeRateLimitExceeded: domain.PolicyFailure,
	domain.CodeResourceConflict:  domain.PolicyFailure,

	domain.CodePostCommitVerification: domain.PostCommitVerificationFailure,

	domain.CodeTransactionFailed: domain.TerminalFailure,
	domain.CodeOperationFailed:   domain.TerminalFailure,
	domain.CodeInternalError:     domain.TerminalFailure,
}

// categoryFor resolves the failure category for an error code, defaulting
// to TerminalFailure for codes outside the table.
func categoryFor(code domain.ErrorCode) domain.FailureCategory {
	if c, ok := errorCategories[code]; ok {
		return c
	}
	return domain.TerminalFailure
}

// remediationHints maps failure categories to caller guidance.
var remediationHints = map[domain.FailureCategory]string{
	domain.ValidationFailure:              "correct the request parameters and resubmit",
	domain.PreconditionFailure:            "resolve the precondition (KYC, subscription, compliance gates), then retry",
	domain.TransientInfrastructureFailure: "retry with exponential backoff using the same idempotency key",
	domain.PolicyFailure:                  "the operation is blocked by platform policy; contact support if you believe this is incorrect",
	domain.PostCommitVerificationFailure:  "contact support with the correlation ID; the operation may have partially completed",
}

const defaultRemediationHint = "contact support if the problem persists"

// remediationHintFor returns the hint for a category, or the generic
// contact-support message.
func remediationHintFor(category domain.FailureCategory) string {
	if hint, ok := remediationHints[category]; ok {
		return hint
	}
	return defaultRemediationHint
}
