// Package status owns the deployment lifecycle state machine. All status
// mutations flow through the Service, which validates transitions against
// the lifecycle table, appends immutable history entries, and triggers
// best-effort webhook notifications.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/storage"
	"github.com/chainmint/issuer/internal/issuance/metrics"
)

// Notifier delivers status-transition webhooks. Delivery is best effort:
// the service logs and swallows any error it returns.
type Notifier interface {
	TriggerNotification(ctx context.Context, n domain.Notification) error
}

// Service tracks token deployments through their lifecycle.
type Service struct {
	repo     storage.DeploymentRepository
	notifier Notifier
	log      *slog.Logger
}

// NewService creates a deployment status service. notifier may be nil, in
// which case transitions are tracked without webhook emission.
func NewService(repo storage.DeploymentRepository, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, log: log}
}

// CreateParams holds the caller-supplied fields for a new deployment.
// TokenName, TokenSymbol and CorrelationID are optional; a correlation ID
// is generated when absent.
type CreateParams struct {
	TokenType     string
	Network       string
	DeployedBy    string
	TokenName     string
	TokenSymbol   string
	CorrelationID string
}

// CreateDeployment registers a new deployment in Queued state with its
// first history entry and emits the queued notification.
func (s *Service) CreateDeployment(ctx context.Context, p CreateParams) (*domain.TokenDeployment, error) {
	if p.TokenType == "" || p.Network == "" || p.DeployedBy == "" {
		return nil, fmt.Errorf("token type, network and deployer are required")
	}

	correlationID := p.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	now := time.Now().UTC()
	d := &domain.TokenDeployment{
		DeploymentID:  uuid.NewString(),
		TokenType:     p.TokenType,
		Network:       p.Network,
		DeployedBy:    p.DeployedBy,
		TokenName:     p.TokenName,
		TokenSymbol:   p.TokenSymbol,
		CorrelationID: correlationID,
		CurrentStatus: domain.StatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	d.StatusHistory = []domain.DeploymentStatusEntry{{
		EntryID:      uuid.NewString(),
		DeploymentID: d.DeploymentID,
		Status:       domain.StatusQueued,
		Message:      "queued for processing",
		Timestamp:    now,
	}}

	if err := s.repo.CreateDeployment(ctx, d); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}

	metrics.DeploymentsCreated.WithLabelValues(d.Network, d.TokenType).Inc()
	s.log.Info("deployment created",
		"deployment_id", d.DeploymentID,
		"token_type", d.TokenType,
		"network", d.Network,
		"correlation_id", d.CorrelationID)

	s.notify(ctx, d, domain.StatusQueued)
	return d, nil
}

// UpdateParams carries the optional fields recorded with a transition.
type UpdateParams struct {
	Message         string
	TransactionHash string
	ConfirmedRound  uint64
	ErrorMessage    string
	Metadata        map[string]string
}

// UpdateStatus applies one validated lifecycle transition.
//
// It returns (false, nil) for a missing deployment or a rejected
// transition; both are caller errors, logged as warnings, never surfaced
// as Go errors. A repeated status equal to the current one is accepted as
// a no-op: no history entry is appended and no notification fires.
func (s *Service) UpdateStatus(ctx context.Context, deploymentID string, newStatus domain.DeploymentStatus, p UpdateParams) (bool, error) {
	d, err := s.repo.GetDeploymentByID(ctx, deploymentID)
	if errors.Is(err, storage.ErrDeploymentNotFound) {
		s.log.Warn("status update for unknown deployment",
			"deployment_id", deploymentID, "new_status", newStatus)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get deployment: %w", err)
	}

	// Idempotency guard: repeating the current status is always accepted
	// and changes nothing. This takes precedence over the table.
	if newStatus == d.CurrentStatus {
		return true, nil
	}

	if !CanTransition(d.CurrentStatus, newStatus) {
		metrics.InvalidTransitions.WithLabelValues(string(d.CurrentStatus), string(newStatus)).Inc()
		s.log.Warn("invalid status transition rejected",
			"deployment_id", deploymentID,
			"from", d.CurrentStatus,
			"to", newStatus)
		return false, nil
	}

	// The recovery edge is gated: a deployment failed with retryable=false
	// stays failed.
	if d.CurrentStatus == domain.StatusFailed && newStatus == domain.StatusQueued {
		if entry := d.LatestEntry(); !entry.Retryable() {
			metrics.InvalidTransitions.WithLabelValues(string(d.CurrentStatus), string(newStatus)).Inc()
			s.log.Warn("retry rejected for non-retryable failure",
				"deployment_id", deploymentID)
			return false, nil
		}
	}

	entry := &domain.DeploymentStatusEntry{
		EntryID:         uuid.NewString(),
		DeploymentID:    deploymentID,
		Status:          newStatus,
		Message:         p.Message,
		TransactionHash: p.TransactionHash,
		ConfirmedRound:  p.ConfirmedRound,
		ErrorMessage:    p.ErrorMessage,
		Metadata:        p.Metadata,
		Timestamp:       time.Now().UTC(),
	}

	if err := s.repo.AddStatusEntry(ctx, deploymentID, entry); err != nil {
		return false, fmt.Errorf("append status entry: %w", err)
	}

	metrics.StatusTransitions.WithLabelValues(string(d.CurrentStatus), string(newStatus)).Inc()
	s.log.Info("deployment status updated",
		"deployment_id", deploymentID,
		"from", d.CurrentStatus,
		"to", newStatus,
		"correlation_id", d.CorrelationID)

	// Refetch so the notification payload reflects the applied transition.
	updated, err := s.repo.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		s.log.Warn("refetch after status update failed",
			"deployment_id", deploymentID, "error", err)
		return true, nil
	}

	s.notify(ctx, updated, newStatus)
	return true, nil
}

// MarkFailed transitions a deployment to Failed, recording the error and
// whether the failure permits the recovery transition back to Queued.
func (s *Service) MarkFailed(ctx context.Context, deploymentID, errorMessage string, retryable bool) (bool, error) {
	return s.UpdateStatus(ctx, deploymentID, domain.StatusFailed, UpdateParams{
		Message:      "deployment failed",
		ErrorMessage: errorMessage,
		Metadata: map[string]string{
			domain.MetadataKeyRetryable: strconv.FormatBool(retryable),
		},
	})
}

// UpdateAssetIdentifier records the chain-assigned asset identifier once
// known. This is supplementary metadata, not a lifecycle event: no history
// entry is appended and no notification fires.
func (s *Service) UpdateAssetIdentifier(ctx context.Context, deploymentID, assetIdentifier string) (bool, error) {
	d, err := s.repo.GetDeploymentByID(ctx, deploymentID)
	if errors.Is(err, storage.ErrDeploymentNotFound) {
		s.log.Warn("asset identifier update for unknown deployment",
			"deployment_id", deploymentID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get deployment: %w", err)
	}

	d.AssetIdentifier = assetIdentifier
	d.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateDeployment(ctx, d); err != nil {
		return false, fmt.Errorf("update deployment: %w", err)
	}
	return true, nil
}

// GetDeployment retrieves one deployment with its history, or nil when it
// does not exist.
func (s *Service) GetDeployment(ctx context.Context, deploymentID string) (*domain.TokenDeployment, error) {
	d, err := s.repo.GetDeploymentByID(ctx, deploymentID)
	if errors.Is(err, storage.ErrDeploymentNotFound) {
		return nil, nil
	}
	return d, err
}

// GetStatusHistory retrieves the ordered history for one deployment.
func (s *Service) GetStatusHistory(ctx context.Context, deploymentID string) ([]domain.DeploymentStatusEntry, error) {
	return s.repo.GetStatusHistory(ctx, deploymentID)
}

// ListDeployments lists deployments matching the filter along with the
// total count for pagination.
func (s *Service) ListDeployments(ctx context.Context, filter domain.DeploymentFilter) ([]*domain.TokenDeployment, int, error) {
	items, err := s.repo.GetDeployments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list deployments: %w", err)
	}
	count, err := s.repo.GetDeploymentsCount(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count deployments: %w", err)
	}
	return items, count, nil
}

// notify emits the webhook for a transition. Failures are logged and
// swallowed: tracking correctness never depends on delivery succeeding.
func (s *Service) notify(ctx context.Context, d *domain.TokenDeployment, newStatus domain.DeploymentStatus) {
	if s.notifier == nil {
		return
	}

	n := domain.Notification{
		Event:           domain.NotificationEventForStatus(newStatus),
		DeploymentID:    d.DeploymentID,
		Network:         d.Network,
		AssetIdentifier: d.AssetIdentifier,
		Payload: map[string]any{
			"deploymentId":  d.DeploymentID,
			"status":        string(newStatus),
			"tokenType":     d.TokenType,
			"tokenName":     d.TokenName,
			"tokenSymbol":   d.TokenSymbol,
			"correlationId": d.CorrelationID,
		},
		OccurredAt: time.Now().UTC(),
	}

	if err := s.notifier.TriggerNotification(ctx, n); err != nil {
		s.log.Warn("notification trigger failed",
			"deployment_id", d.DeploymentID,
			"event", n.Event,
			"error", err)
	}
}
