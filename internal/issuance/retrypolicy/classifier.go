// Package retrypolicy classifies platform errors into retry policies.
//
// Classification is a total mapping over the closed error-code set in the
// domain package: every code resolves to exactly one policy, unrecognized
// codes fall back to category classification, and an absent category yields
// a cautious retry-with-delay default.
package retrypolicy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/chainmint/issuer/internal/core/domain"
)

const (
	// maxRetryWindow is the hard wall-clock ceiling: no policy permits a
	// retry once this much time has passed since the first attempt.
	maxRetryWindow = 600 * time.Second

	// maxBackoffDelaySeconds caps exponential backoff growth.
	maxBackoffDelaySeconds = 300
)

// Base delays and attempt caps per policy.
const (
	delayPolicyBaseSeconds    = 10
	cooldownPolicyBaseSeconds = 60

	immediatePolicyMaxAttempts = 3
	delayPolicyMaxAttempts     = 5
	cooldownPolicyMaxAttempts  = 3
)

// decisions is the closed code -> decision mapping. Adding an error code to
// the domain package without a row here is caught by TestClassifyError_TotalMapping.
var decisions = map[domain.ErrorCode]domain.RetryPolicyDecision{
	domain.CodeValidationError: {
		Policy:              domain.NotRetryable,
		Explanation:         "request parameters failed validation",
		RemediationGuidance: "correct the request parameters and resubmit",
	},
	domain.CodeInvalidRequest: {
		Policy:              domain.NotRetryable,
		Explanation:         "request was malformed or incomplete",
		RemediationGuidance: "correct the request parameters and resubmit",
	},
	domain.CodePreconditionFailed: {
		Policy:              domain.NotRetryable,
		Explanation:         "a platform precondition was not satisfied",
		RemediationGuidance: "resolve the reported precondition and resubmit",
	},
	domain.CodeUnauthorized: {
		Policy:              domain.NotRetryable,
		Explanation:         "caller is not authorized for this operation",
		RemediationGuidance: "verify credentials and permissions before resubmitting",
	},
	domain.CodeResourceConflict: {
		Policy:              domain.NotRetryable,
		Explanation:         "the operation conflicts with existing platform state",
		RemediationGuidance: "inspect the conflicting resource before resubmitting",
	},
	domain.CodeUserRejection: {
		Policy:      domain.NotRetryable,
		Explanation: "the user rejected the operation",
	},
	domain.CodeComplianceError: {
		Policy:              domain.NotRetryable,
		Explanation:         "the operation violates a compliance rule",
		RemediationGuidance: "review compliance requirements for the target jurisdiction",
	},
	domain.CodePostCommitVerification: {
		Policy:              domain.NotRetryable,
		Explanation:         "the operation was submitted but its effect could not be verified",
		RemediationGuidance: "do not resubmit; contact support with the correlation ID",
	},

	domain.CodeNetworkError: {
		Policy:                domain.RetryableWithDelay,
		Explanation:           "transient network failure reaching the blockchain node",
		SuggestedDelaySeconds: delayPolicyBaseSeconds,
		MaxRetryAttempts:      delayPolicyMaxAttempts,
		UseExponentialBackoff: true,
	},
	domain.CodeBlockchainTimeout: {
		Policy:                domain.RetryableWithDelay,
		Explanation:           "the blockchain node did not respond in time",
		SuggestedDelaySeconds: 15,
		MaxRetryAttempts:      delayPolicyMaxAttempts,
		UseExponentialBackoff: true,
	},
	domain.CodeTransactionFailed: {
		Policy:                domain.RetryableWithDelay,
		Explanation:           "the transaction failed on chain and may succeed on resubmission",
		SuggestedDelaySeconds: 45,
		MaxRetryAttempts:      3,
		UseExponentialBackoff: true,
	},
	domain.CodeRequestCancelled: {
		Policy:                domain.RetryableWithDelay,
		Explanation:           "the request was cancelled before completion",
		SuggestedDelaySeconds: delayPolicyBaseSeconds,
		MaxRetryAttempts:      3,
		UseExponentialBackoff: true,
		RemediationGuidance:   "retry with the same idempotency key",
	},
	domain.CodeOperationFailed: {
		Policy:                domain.RetryableWithDelay,
		Explanation:           "the operation failed in an unexpected but possibly transient way",
		SuggestedDelaySeconds: 30,
		MaxRetryAttempts:      3,
		UseExponentialBackoff: true,
	},
	domain.CodeInternalError: {
		Policy:                domain.RetryableWithDelay,
		Explanation:           "an internal platform error occurred",
		SuggestedDelaySeconds: 30,
		MaxRetryAttempts:      2,
		UseExponentialBackoff: true,
		RemediationGuidance:   "contact support if the error persists",
	},

	domain.CodeRateLimitExceeded: {
		Policy:                domain.RetryableWithCooldown,
		Explanation:           "request rate limit exceeded",
		SuggestedDelaySeconds: cooldownPolicyBaseSeconds,
		MaxRetryAttempts:      cooldownPolicyMaxAttempts,
	},
	domain.CodeCircuitBreakerOpen: {
		Policy:                domain.RetryableWithCooldown,
		Explanation:           "the downstream circuit breaker is open",
		SuggestedDelaySeconds: 120,
		MaxRetryAttempts:      2,
	},
	domain.CodeSubscriptionLimit: {
		Policy:                domain.RetryableWithCooldown,
		Explanation:           "the subscription usage limit was reached",
		SuggestedDelaySeconds: 300,
		MaxRetryAttempts:      1,
		RemediationGuidance:   "wait for the usage window to reset or upgrade the plan",
	},

	domain.CodeInsufficientFunds: {
		Policy:              domain.RetryableAfterRemediation,
		Explanation:         "the deploying account does not hold enough funds",
		RemediationGuidance: "add funds to the deploying account, then resubmit",
	},
	domain.CodeKYCRequired: {
		Policy:              domain.RetryableAfterRemediation,
		Explanation:         "KYC verification has not been completed",
		RemediationGuidance: "complete KYC verification, then resubmit",
	},
	domain.CodePlanUpgradeRequired: {
		Policy:              domain.RetryableAfterRemediation,
		Explanation:         "the current plan does not permit this operation",
		RemediationGuidance: "upgrade the subscription plan, then resubmit",
	},

	domain.CodeConfigurationError: {
		Policy:              domain.RetryableAfterConfiguration,
		Explanation:         "platform configuration prevents this operation",
		RemediationGuidance: "an operator must correct the configuration before resubmitting",
	},
}

// categoryFallback maps coarse categories to policies for codes the exact
// mapping does not recognize.
var categoryFallback = map[domain.ErrorCategory]domain.RetryPolicyDecision{
	domain.CategoryNetworkError: {
		Policy:                domain.RetryableWithDelay,
		Explanation:           "transient network failure",
		SuggestedDelaySeconds: delayPolicyBaseSeconds,
		MaxRetryAttempts:      delayPolicyMaxAttempts,
		UseExponentialBackoff: true,
	},
	domain.CategoryTransaction: {
		Policy:                domain.RetryableWithDelay,
		Explanation:           "transient transaction failure",
		SuggestedDelaySeconds: 30,
		MaxRetryAttempts:      3,
		UseExponentialBackoff: true,
	},
	domain.CategoryValidationError: {
		Policy:              domain.NotRetryable,
		Explanation:         "request failed validation",
		RemediationGuidance: "correct the request parameters and resubmit",
	},
	domain.CategoryComplianceError: {
		Policy:              domain.NotRetryable,
		Explanation:         "the operation violates a compliance rule",
		RemediationGuidance: "review compliance requirements for the target jurisdiction",
	},
	domain.CategoryUserRejection: {
		Policy:      domain.NotRetryable,
		Explanation: "the user rejected the operation",
	},
	domain.CategoryAuthorization: {
		Policy:              domain.NotRetryable,
		Explanation:         "caller is not authorized for this operation",
		RemediationGuidance: "verify credentials and permissions before resubmitting",
	},
	domain.CategoryInsufficientFunds: {
		Policy:              domain.RetryableAfterRemediation,
		Explanation:         "the deploying account does not hold enough funds",
		RemediationGuidance: "add funds to the deploying account, then resubmit",
	},
	domain.CategoryRateLimited: {
		Policy:                domain.RetryableWithCooldown,
		Explanation:           "request rate limit exceeded",
		SuggestedDelaySeconds: cooldownPolicyBaseSeconds,
		MaxRetryAttempts:      cooldownPolicyMaxAttempts,
	},
	domain.CategoryConfiguration: {
		Policy:              domain.RetryableAfterConfiguration,
		Explanation:         "platform configuration prevents this operation",
		RemediationGuidance: "an operator must correct the configuration before resubmitting",
	},
}

// cautiousDefault is returned when neither the code nor the category is
// recognized. Retrying with a modest delay is the safe middle ground.
var cautiousDefault = domain.RetryPolicyDecision{
	Policy:                domain.RetryableWithDelay,
	Explanation:           "the error could not be classified",
	SuggestedDelaySeconds: 30,
	MaxRetryAttempts:      2,
	UseExponentialBackoff: true,
	RemediationGuidance:   "contact support if the error persists",
}

// ClassifyError maps an error code (and optional category) to a retry
// policy decision. It is pure and deterministic; the decision is a fresh
// value on every call.
func ClassifyError(code domain.ErrorCode, category domain.ErrorCategory) domain.RetryPolicyDecision {
	if d, ok := decisions[code]; ok {
		d.ReasonCode = code
		return d
	}

	if d, ok := categoryFallback[category]; ok {
		slog.Debug("retry classification fell back to category",
			"error_code", code, "category", category, "policy", d.Policy)
		d.ReasonCode = code
		return d
	}

	slog.Debug("retry classification used cautious default", "error_code", code)
	d := cautiousDefault
	d.ReasonCode = code
	return d
}

// maxAttemptsFor returns the policy-level attempt cap, independent of any
// code-specific override carried in a decision.
func maxAttemptsFor(policy domain.RetryPolicy) int {
	switch policy {
	case domain.RetryableImmediate:
		return immediatePolicyMaxAttempts
	case domain.RetryableWithDelay:
		return delayPolicyMaxAttempts
	case domain.RetryableWithCooldown:
		return cooldownPolicyMaxAttempts
	default:
		// NotRetryable and both remediation-gated policies permit no
		// automatic retries.
		return 0
	}
}

// ShouldRetry reports whether another automatic attempt is permitted. The
// wall-clock ceiling applies to every policy: once maxRetryWindow has
// elapsed since the first attempt, retrying stops regardless of count.
func ShouldRetry(policy domain.RetryPolicy, attemptCount int, firstAttempt time.Time) bool {
	if time.Since(firstAttempt) > maxRetryWindow {
		return false
	}
	return attemptCount < maxAttemptsFor(policy)
}

// CalculateRetryDelay returns the suggested delay in seconds before the
// given attempt. With exponential backoff the delay doubles per attempt
// (base * 2^(attempt-1)) and is capped at maxBackoffDelaySeconds.
func CalculateRetryDelay(policy domain.RetryPolicy, attemptCount int, useExponentialBackoff bool) int {
	var base int
	switch policy {
	case domain.RetryableWithDelay:
		base = delayPolicyBaseSeconds
	case domain.RetryableWithCooldown:
		base = cooldownPolicyBaseSeconds
	default:
		return 0
	}

	if !useExponentialBackoff || attemptCount <= 0 {
		return base
	}

	delay := base
	for i := 1; i < attemptCount; i++ {
		delay *= 2
		if delay >= maxBackoffDelaySeconds {
			return maxBackoffDelaySeconds
		}
	}
	if delay > maxBackoffDelaySeconds {
		delay = maxBackoffDelaySeconds
	}
	return delay
}

// Describe renders a decision as a single line for logs.
func Describe(d domain.RetryPolicyDecision) string {
	return fmt.Sprintf("%s (code=%s, delay=%ds, max_attempts=%d, backoff=%t)",
		d.Policy, d.ReasonCode, d.SuggestedDelaySeconds, d.MaxRetryAttempts, d.UseExponentialBackoff)
}
