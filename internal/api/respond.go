package api

import (
	"encoding/json"
	"net/http"

	"github.com/chainmint/issuer/internal/core/domain"
)

// errorResponse is the uniform error body for the HTTP surface.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code domain.ErrorCode, message string) {
	writeJSON(w, statusForCode(code), errorResponse{Error: errorBody{Code: code, Message: message}})
}

// statusForCode maps platform error codes onto HTTP status codes.
func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidationError, domain.CodeInvalidRequest:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeUserRejection, domain.CodeComplianceError, domain.CodeKYCRequired, domain.CodePlanUpgradeRequired:
		return http.StatusForbidden
	case domain.CodeResourceConflict:
		return http.StatusConflict
	case domain.CodePreconditionFailed, domain.CodeInsufficientFunds, domain.CodeSubscriptionLimit:
		return http.StatusUnprocessableEntity
	case domain.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case domain.CodeRequestCancelled:
		return http.StatusBadRequest
	case domain.CodeBlockchainTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeNetworkError, domain.CodeCircuitBreakerOpen:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
