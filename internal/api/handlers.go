package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/storage"
	"github.com/chainmint/issuer/internal/issuance/audit"
	"github.com/chainmint/issuer/internal/issuance/status"
	"github.com/chainmint/issuer/internal/issuance/workflow"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler wires the issuance endpoints to the underlying services.
type Handler struct {
	deployer *workflow.Deployer
	status   *status.Service
	audit    *audit.Service
	log      *slog.Logger
}

// NewHandler constructs the HTTP handler set.
func NewHandler(deployer *workflow.Deployer, statusSvc *status.Service, auditSvc *audit.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{deployer: deployer, status: statusSvc, audit: auditSvc, log: log}
}

// Register mounts the issuance routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/deployments", func(r chi.Router) {
		r.Post("/", h.handleDeploy)
		r.Get("/", h.handleList)
		r.Get("/export", h.handleExportFiltered)
		r.Route("/{deploymentID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/history", h.handleHistory)
			r.Post("/retry", h.handleRetry)
			r.Patch("/asset", h.handleAssetIdentifier)
			r.Get("/export", h.handleExportOne)
		})
	})
}

// handleDeploy handles POST /v1/deployments.
func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req workflow.DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.CodeInvalidRequest, "request body is not valid JSON")
		return
	}
	req.IdempotencyKey = r.Header.Get(idempotencyKeyHeader)

	outcome := h.deployer.Deploy(r.Context(), req)
	if !outcome.Result.Success {
		h.log.Warn("deployment request failed",
			"correlation_id", outcome.Result.CorrelationID,
			"stage", outcome.Result.CompletedAtStage,
			"code", outcome.Result.ErrorCode,
		)
		writeJSON(w, statusForCode(outcome.Result.ErrorCode), outcome)
		return
	}

	h.log.Info("deployment completed",
		"deployment_id", outcome.Result.Payload.DeploymentID,
		"network", req.Network,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	code := http.StatusCreated
	if outcome.Result.AuditSummary.IdempotentReplay {
		code = http.StatusOK
	}
	writeJSON(w, code, outcome)
}

// handleGet handles GET /v1/deployments/{deploymentID}.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentID")
	dep, err := h.status.GetDeployment(r.Context(), id)
	if err != nil {
		h.log.Error("deployment lookup failed", "deployment_id", id, "error", err)
		writeError(w, domain.CodeInternalError, "deployment lookup failed")
		return
	}
	if dep == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{
			Code:    domain.CodeInvalidRequest,
			Message: "deployment not found",
		}})
		return
	}
	writeJSON(w, http.StatusOK, dep)
}

type listResponse struct {
	Deployments []*domain.TokenDeployment `json:"deployments"`
	Total       int                       `json:"total"`
	Limit       int                       `json:"limit"`
	Offset      int                       `json:"offset"`
}

// handleList handles GET /v1/deployments with filter query parameters.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	deployments, total, err := h.status.ListDeployments(r.Context(), filter)
	if err != nil {
		h.log.Error("deployment listing failed", "error", err)
		writeError(w, domain.CodeInternalError, "deployment listing failed")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		Deployments: deployments,
		Total:       total,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// handleHistory handles GET /v1/deployments/{deploymentID}/history.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentID")
	history, err := h.status.GetStatusHistory(r.Context(), id)
	if errors.Is(err, storage.ErrDeploymentNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{
			Code:    domain.CodeInvalidRequest,
			Message: "deployment not found",
		}})
		return
	}
	if err != nil {
		h.log.Error("history lookup failed", "deployment_id", id, "error", err)
		writeError(w, domain.CodeInternalError, "history lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deploymentId": id,
		"history":      history,
	})
}

type retryResponse struct {
	DeploymentID string `json:"deploymentId"`
	Requeued     bool   `json:"requeued"`
}

// handleRetry handles POST /v1/deployments/{deploymentID}/retry. The
// requeue is rejected for deployments that did not fail retryably.
func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentID")
	requeued, err := h.deployer.RequeueFailed(r.Context(), id)
	if err != nil {
		h.log.Error("requeue failed", "deployment_id", id, "error", err)
		writeError(w, domain.CodeInternalError, "requeue failed")
		return
	}
	if !requeued {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: errorBody{
			Code:    domain.CodePreconditionFailed,
			Message: "deployment is not in a retryable failed state",
		}})
		return
	}
	writeJSON(w, http.StatusOK, retryResponse{DeploymentID: id, Requeued: true})
}

type assetIdentifierRequest struct {
	AssetIdentifier string `json:"assetIdentifier"`
}

// handleAssetIdentifier handles PATCH /v1/deployments/{deploymentID}/asset.
func (h *Handler) handleAssetIdentifier(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentID")

	var req assetIdentifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.CodeInvalidRequest, "request body is not valid JSON")
		return
	}
	if req.AssetIdentifier == "" {
		writeError(w, domain.CodeValidationError, "assetIdentifier is required")
		return
	}

	updated, err := h.status.UpdateAssetIdentifier(r.Context(), id, req.AssetIdentifier)
	if err != nil {
		h.log.Error("asset identifier update failed", "deployment_id", id, "error", err)
		writeError(w, domain.CodeInternalError, "asset identifier update failed")
		return
	}
	if !updated {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{
			Code:    domain.CodeInvalidRequest,
			Message: "deployment not found",
		}})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportOne handles GET /v1/deployments/{deploymentID}/export.
func (h *Handler) handleExportOne(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, audit.ExportRequest{
		DeploymentID:   chi.URLParam(r, "deploymentID"),
		Format:         exportFormat(r),
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
}

// handleExportFiltered handles GET /v1/deployments/export with the list
// filter parameters.
func (h *Handler) handleExportFiltered(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, audit.ExportRequest{
		Filter:         filterFromQuery(r),
		Format:         exportFormat(r),
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, req audit.ExportRequest) {
	result, err := h.audit.ExportAuditTrails(r.Context(), req)
	switch {
	case errors.Is(err, audit.ErrIdempotencyConflict):
		writeError(w, domain.CodeResourceConflict, "idempotency key was already used with different export parameters")
		return
	case err != nil:
		h.log.Error("audit export failed", "error", err)
		writeError(w, domain.CodeInternalError, "audit export failed")
		return
	}
	if !result.Success {
		writeError(w, domain.CodeValidationError, result.ErrorMessage)
		return
	}

	contentType := "application/json"
	if result.Format == domain.ExportCSV {
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Record-Count", strconv.Itoa(result.RecordCount))
	if result.IsCached {
		w.Header().Set("X-Cache", "HIT")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func exportFormat(r *http.Request) domain.ExportFormat {
	format := domain.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = domain.ExportJSON
	}
	return format
}

func filterFromQuery(r *http.Request) domain.DeploymentFilter {
	q := r.URL.Query()
	filter := domain.DeploymentFilter{
		Network:    q.Get("network"),
		TokenType:  q.Get("tokenType"),
		DeployedBy: q.Get("deployedBy"),
		Status:     domain.DeploymentStatus(q.Get("status")),
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		filter.Offset = v
	}
	if t, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filter.From = t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filter.To = t
	}
	return filter
}
