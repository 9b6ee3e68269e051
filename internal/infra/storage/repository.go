package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chainmint/issuer/internal/core/domain"
)

var (
	// ErrDeploymentNotFound is returned when a deployment doesn't exist.
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrDuplicateDeployment is returned when creating a deployment with an
	// ID that already exists.
	ErrDuplicateDeployment = errors.New("deployment already exists")
)

// DeploymentRepository persists token deployments and their append-only
// status history.
//
// Implementations must serialize concurrent AddStatusEntry calls for the
// same deployment ID: the append and the current-status update are one
// atomic read-modify-write. The state machine's correctness depends on
// this guarantee holding across processes.
type DeploymentRepository interface {
	// CreateDeployment persists a new deployment together with its initial
	// history entry.
	CreateDeployment(ctx context.Context, d *domain.TokenDeployment) error

	// GetDeploymentByID retrieves a deployment with its full status
	// history. Returns ErrDeploymentNotFound if absent.
	GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.TokenDeployment, error)

	// AddStatusEntry atomically appends a history entry and moves the
	// deployment's current status to the entry's status.
	AddStatusEntry(ctx context.Context, deploymentID string, entry *domain.DeploymentStatusEntry) error

	// UpdateDeployment persists out-of-band field changes (asset
	// identifier, denormalized transaction hash / error message) without
	// touching the status history.
	UpdateDeployment(ctx context.Context, d *domain.TokenDeployment) error

	// GetStatusHistory retrieves the ordered history for one deployment.
	GetStatusHistory(ctx context.Context, deploymentID string) ([]domain.DeploymentStatusEntry, error)

	// GetDeployments lists deployments matching the filter, newest first.
	GetDeployments(ctx context.Context, filter domain.DeploymentFilter) ([]*domain.TokenDeployment, error)

	// GetDeploymentsCount counts deployments matching the filter.
	GetDeploymentsCount(ctx context.Context, filter domain.DeploymentFilter) (int, error)
}

// IdempotencyRecord is one cached result keyed by a caller-supplied
// idempotency key. ParamsHash fingerprints the request parameters so a
// reused key with different parameters is detectable as a conflict.
type IdempotencyRecord struct {
	Key         string
	ParamsHash  string
	Payload     []byte
	ContentType string
	RecordCount int
	CreatedAt   time.Time
}

// IdempotencyStore is a namespaced key-value store with atomic
// get-or-create semantics, shared by the audit export cache and the
// orchestration replay registry.
type IdempotencyStore interface {
	// Get returns the record for the key, or nil if absent or expired.
	Get(ctx context.Context, namespace, key string) (*IdempotencyRecord, error)

	// PutIfAbsent stores the record unless the key already holds one.
	// It reports whether the write happened and returns the winning record
	// either way, so races resolve to a single canonical result.
	PutIfAbsent(ctx context.Context, namespace, key string, rec *IdempotencyRecord, ttl time.Duration) (bool, *IdempotencyRecord, error)
}
