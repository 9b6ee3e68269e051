package domain

// RetryPolicy classifies an error into a retry behavior.
type RetryPolicy string

const (
	// NotRetryable means the request is permanently rejected; resubmitting
	// the same request will fail again.
	NotRetryable RetryPolicy = "not_retryable"

	// RetryableImmediate permits an immediate retry without delay.
	RetryableImmediate RetryPolicy = "retryable_immediate"

	// RetryableWithDelay permits retries after a (usually exponential)
	// backoff delay.
	RetryableWithDelay RetryPolicy = "retryable_with_delay"

	// RetryableWithCooldown permits retries after a fixed cooldown window,
	// typically for rate-limit or circuit-breaker conditions.
	RetryableWithCooldown RetryPolicy = "retryable_with_cooldown"

	// RetryableAfterRemediation requires a user action (fund the account,
	// complete KYC, upgrade the plan) before resubmitting.
	RetryableAfterRemediation RetryPolicy = "retryable_after_remediation"

	// RetryableAfterConfiguration requires an operator/admin action before
	// resubmitting.
	RetryableAfterConfiguration RetryPolicy = "retryable_after_configuration"
)

// RetryPolicyDecision is the caller-visible verdict for one classified
// error. Decisions are value objects: produced fresh per classification,
// never persisted.
type RetryPolicyDecision struct {
	Policy                RetryPolicy `json:"policy"`
	ReasonCode            ErrorCode   `json:"reasonCode"`
	Explanation           string      `json:"explanation"`
	SuggestedDelaySeconds int         `json:"suggestedDelaySeconds"`
	MaxRetryAttempts      int         `json:"maxRetryAttempts"`
	UseExponentialBackoff bool        `json:"useExponentialBackoff"`
	RemediationGuidance   string      `json:"remediationGuidance,omitempty"`
}
