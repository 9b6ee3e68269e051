package domain

// ErrorCode is a machine-readable failure code. The set is closed: every
// code the platform can surface is declared here, and the retry-policy
// classifier carries a total mapping over it.
type ErrorCode string

const (
	CodeValidationError    ErrorCode = "validation_error"
	CodeInvalidRequest     ErrorCode = "invalid_request"
	CodePreconditionFailed ErrorCode = "precondition_failed"
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeResourceConflict   ErrorCode = "resource_conflict"
	CodeUserRejection      ErrorCode = "user_rejected"
	CodeComplianceError    ErrorCode = "compliance_violation"

	CodeNetworkError      ErrorCode = "network_error"
	CodeBlockchainTimeout ErrorCode = "blockchain_timeout"
	CodeTransactionFailed ErrorCode = "transaction_failed"
	CodeRequestCancelled  ErrorCode = "request_cancelled"

	CodeRateLimitExceeded  ErrorCode = "rate_limit_exceeded"
	CodeCircuitBreakerOpen ErrorCode = "circuit_breaker_open"
	CodeSubscriptionLimit  ErrorCode = "subscription_limit_reached"

	CodeInsufficientFunds   ErrorCode = "insufficient_funds"
	CodeKYCRequired         ErrorCode = "kyc_required"
	CodePlanUpgradeRequired ErrorCode = "plan_upgrade_required"

	CodeConfigurationError ErrorCode = "configuration_error"

	CodeOperationFailed        ErrorCode = "operation_failed"
	CodePostCommitVerification ErrorCode = "post_commit_verification_failed"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorCategory is the coarse classification used when an exact error code
// is not recognized.
type ErrorCategory string

const (
	CategoryNetworkError      ErrorCategory = "network_error"
	CategoryValidationError   ErrorCategory = "validation_error"
	CategoryComplianceError   ErrorCategory = "compliance_error"
	CategoryUserRejection     ErrorCategory = "user_rejection"
	CategoryInsufficientFunds ErrorCategory = "insufficient_funds"
	CategoryRateLimited       ErrorCategory = "rate_limit_exceeded"
	CategoryAuthorization     ErrorCategory = "authorization_error"
	CategoryConfiguration     ErrorCategory = "configuration_error"
	CategoryTransaction       ErrorCategory = "transaction_error"
	CategoryUnknown           ErrorCategory = ""
)
