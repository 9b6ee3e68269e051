package retrypolicy

import (
	"testing"
	"time"

	"github.com/chainmint/issuer/internal/core/domain"
)

func TestClassifyError_KnownCodes(t *testing.T) {
	tests := []struct {
		code   domain.ErrorCode
		policy domain.RetryPolicy
	}{
		{domain.CodeValidationError, domain.NotRetryable},
		{domain.CodeUnauthorized, domain.NotRetryable},
		{domain.CodeResourceConflict, domain.NotRetryable},
		{domain.CodeUserRejection, domain.NotRetryable},
		{domain.CodeComplianceError, domain.NotRetryable},
		{domain.CodeNetworkError, domain.RetryableWithDelay},
		{domain.CodeBlockchainTimeout, domain.RetryableWithDelay},
		{domain.CodeTransactionFailed, domain.RetryableWithDelay},
		{domain.CodeRateLimitExceeded, domain.RetryableWithCooldown},
		{domain.CodeCircuitBreakerOpen, domain.RetryableWithCooldown},
		{domain.CodeSubscriptionLimit, domain.RetryableWithCooldown},
		{domain.CodeInsufficientFunds, domain.RetryableAfterRemediation},
		{domain.CodeKYCRequired, domain.RetryableAfterRemediation},
		{domain.CodePlanUpgradeRequired, domain.RetryableAfterRemediation},
		{domain.CodeConfigurationError, domain.RetryableAfterConfiguration},
	}

	for _, tt := range tests {
		d := ClassifyError(tt.code, domain.CategoryUnknown)
		if d.Policy != tt.policy {
			t.Errorf("ClassifyError(%q) policy = %v, want %v", tt.code, d.Policy, tt.policy)
		}
		if d.ReasonCode != tt.code {
			t.Errorf("ClassifyError(%q) reason code = %q", tt.code, d.ReasonCode)
		}
	}
}

// Every declared error code must resolve without hitting the category
// fallback or the cautious default.
func TestClassifyError_TotalMapping(t *testing.T) {
	codes := []domain.ErrorCode{
		domain.CodeValidationError, domain.CodeInvalidRequest, domain.CodePreconditionFailed,
		domain.CodeUnauthorized, domain.CodeResourceConflict, domain.CodeUserRejection,
		domain.CodeComplianceError, domain.CodeNetworkError, domain.CodeBlockchainTimeout,
		domain.CodeTransactionFailed, domain.CodeRequestCancelled, domain.CodeRateLimitExceeded,
		domain.CodeCircuitBreakerOpen, domain.CodeSubscriptionLimit, domain.CodeInsufficientFunds,
		domain.CodeKYCRequired, domain.CodePlanUpgradeRequired, domain.CodeConfigurationError,
		domain.CodeOperationFailed, domain.CodePostCommitVerification, domain.CodeInternalError,
	}
	for _, code := range codes {
		if _, ok := decisions[code]; !ok {
			t.Errorf("error code %q has no entry in the decision table", code)
		}
	}
}

func TestClassifyError_CategoryFallback(t *testing.T) {
	tests := []struct {
		category domain.ErrorCategory
		policy   domain.RetryPolicy
	}{
		{domain.CategoryNetworkError, domain.RetryableWithDelay},
		{domain.CategoryValidationError, domain.NotRetryable},
		{domain.CategoryComplianceError, domain.NotRetryable},
		{domain.CategoryUserRejection, domain.NotRetryable},
		{domain.CategoryInsufficientFunds, domain.RetryableAfterRemediation},
		{domain.CategoryRateLimited, domain.RetryableWithCooldown},
		{domain.CategoryConfiguration, domain.RetryableAfterConfiguration},
	}

	for _, tt := range tests {
		d := ClassifyError("some_unknown_code", tt.category)
		if d.Policy != tt.policy {
			t.Errorf("category %q policy = %v, want %v", tt.category, d.Policy, tt.policy)
		}
	}
}

func TestClassifyError_CautiousDefault(t *testing.T) {
	d := ClassifyError("never_seen_before", domain.CategoryUnknown)

	if d.Policy != domain.RetryableWithDelay {
		t.Errorf("default policy = %v, want RetryableWithDelay", d.Policy)
	}
	if d.SuggestedDelaySeconds != 30 || d.MaxRetryAttempts != 2 || !d.UseExponentialBackoff {
		t.Errorf("default decision = %+v, want 30s delay, 2 attempts, backoff on", d)
	}
	if d.RemediationGuidance == "" {
		t.Error("default decision should carry remediation guidance")
	}
}

func TestShouldRetry_AttemptCaps(t *testing.T) {
	recent := time.Now().Add(-10 * time.Second)

	tests := []struct {
		policy   domain.RetryPolicy
		attempts int
		want     bool
	}{
		{domain.NotRetryable, 0, false},
		{domain.RetryableImmediate, 2, true},
		{domain.RetryableImmediate, 3, false},
		{domain.RetryableWithDelay, 4, true},
		{domain.RetryableWithDelay, 5, false},
		{domain.RetryableWithCooldown, 2, true},
		{domain.RetryableWithCooldown, 3, false},
		{domain.RetryableAfterRemediation, 0, false},
		{domain.RetryableAfterConfiguration, 0, false},
	}

	for _, tt := range tests {
		if got := ShouldRetry(tt.policy, tt.attempts, recent); got != tt.want {
			t.Errorf("ShouldRetry(%v, %d) = %v, want %v", tt.policy, tt.attempts, got, tt.want)
		}
	}
}

func TestShouldRetry_WallClockCeiling(t *testing.T) {
	expired := time.Now().Add(-601 * time.Second)

	for _, policy := range []domain.RetryPolicy{
		domain.RetryableImmediate,
		domain.RetryableWithDelay,
		domain.RetryableWithCooldown,
	} {
		if ShouldRetry(policy, 0, expired) {
			t.Errorf("ShouldRetry(%v) = true after retry window expired", policy)
		}
	}
}

func TestCalculateRetryDelay_ExponentialBackoff(t *testing.T) {
	tests := []struct {
		policy  domain.RetryPolicy
		attempt int
		backoff bool
		want    int
	}{
		{domain.RetryableWithDelay, 1, true, 10},
		{domain.RetryableWithDelay, 2, true, 20},
		{domain.RetryableWithDelay, 3, true, 40},
		{domain.RetryableWithDelay, 4, true, 80},
		{domain.RetryableWithDelay, 10, true, 300}, // capped
		{domain.RetryableWithDelay, 3, false, 10},  // no backoff requested
		{domain.RetryableWithCooldown, 3, false, 60},
		{domain.RetryableImmediate, 2, true, 0},
		{domain.NotRetryable, 1, true, 0},
	}

	for _, tt := range tests {
		got := CalculateRetryDelay(tt.policy, tt.attempt, tt.backoff)
		if got != tt.want {
			t.Errorf("CalculateRetryDelay(%v, %d, %t) = %d, want %d",
				tt.policy, tt.attempt, tt.backoff, got, tt.want)
		}
	}
}
