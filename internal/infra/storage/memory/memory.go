// Package memory provides in-memory repository implementations used by
// tests and by dev mode when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/storage"
)

// DeploymentRepo is a mutex-guarded in-memory DeploymentRepository.
type DeploymentRepo struct {
	mu          sync.RWMutex
	deployments map[string]*domain.TokenDeployment
}

// NewDeploymentRepo creates an empty in-memory deployment repository.
func NewDeploymentRepo() *DeploymentRepo {
	return &DeploymentRepo{deployments: make(map[string]*domain.TokenDeployment)}
}

func (r *DeploymentRepo) CreateDeployment(ctx context.Context, d *domain.TokenDeployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deployments[d.DeploymentID]; ok {
		return storage.ErrDuplicateDeployment
	}
	r.deployments[d.DeploymentID] = copyDeployment(d)
	return nil
}

func (r *DeploymentRepo) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.TokenDeployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deployments[deploymentID]
	if !ok {
		return nil, storage.ErrDeploymentNotFound
	}
	return copyDeployment(d), nil
}

func (r *DeploymentRepo) AddStatusEntry(ctx context.Context, deploymentID string, entry *domain.DeploymentStatusEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deployments[deploymentID]
	if !ok {
		return storage.ErrDeploymentNotFound
	}

	e := *entry
	e.DeploymentID = deploymentID
	d.StatusHistory = append(d.StatusHistory, e)
	d.CurrentStatus = e.Status
	d.UpdatedAt = e.Timestamp
	if e.TransactionHash != "" {
		d.TransactionHash = e.TransactionHash
	}
	if e.ErrorMessage != "" {
		d.ErrorMessage = e.ErrorMessage
	}
	return nil
}

func (r *DeploymentRepo) UpdateDeployment(ctx context.Context, d *domain.TokenDeployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.deployments[d.DeploymentID]
	if !ok {
		return storage.ErrDeploymentNotFound
	}

	// Status and history are owned by AddStatusEntry; only out-of-band
	// fields move here.
	stored.AssetIdentifier = d.AssetIdentifier
	stored.TransactionHash = d.TransactionHash
	stored.ErrorMessage = d.ErrorMessage
	stored.UpdatedAt = d.UpdatedAt
	return nil
}

func (r *DeploymentRepo) GetStatusHistory(ctx context.Context, deploymentID string) ([]domain.DeploymentStatusEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deployments[deploymentID]
	if !ok {
		return nil, storage.ErrDeploymentNotFound
	}
	history := make([]domain.DeploymentStatusEntry, len(d.StatusHistory))
	copy(history, d.StatusHistory)
	return history, nil
}

func (r *DeploymentRepo) GetDeployments(ctx context.Context, filter domain.DeploymentFilter) ([]*domain.TokenDeployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.TokenDeployment
	for _, d := range r.deployments {
		if matches(d, filter) {
			matched = append(matched, copyDeployment(d))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *DeploymentRepo) GetDeploymentsCount(ctx context.Context, filter domain.DeploymentFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, d := range r.deployments {
		if matches(d, filter) {
			count++
		}
	}
	return count, nil
}

func matches(d *domain.TokenDeployment, f domain.DeploymentFilter) bool {
	if f.Network != "" && d.Network != f.Network {
		return false
	}
	if f.TokenType != "" && d.TokenType != f.TokenType {
		return false
	}
	if f.DeployedBy != "" && d.DeployedBy != f.DeployedBy {
		return false
	}
	if f.Status != "" && d.CurrentStatus != f.Status {
		return false
	}
	if !f.From.IsZero() && d.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func copyDeployment(d *domain.TokenDeployment) *domain.TokenDeployment {
	c := *d
	c.StatusHistory = make([]domain.DeploymentStatusEntry, len(d.StatusHistory))
	copy(c.StatusHistory, d.StatusHistory)
	return &c
}

// IdempotencyStore is a mutex-guarded in-memory storage.IdempotencyStore
// with lazy expiry.
type IdempotencyStore struct {
	mu      sync.Mutex
	records map[string]memRecord
}

type memRecord struct {
	rec       storage.IdempotencyRecord
	expiresAt time.Time
}

// NewIdempotencyStore creates an empty in-memory idempotency store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{records: make(map[string]memRecord)}
}

func (s *IdempotencyStore) Get(ctx context.Context, namespace, key string) (*storage.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := namespace + ":" + key
	m, ok := s.records[k]
	if !ok {
		return nil, nil
	}
	if time.Now().After(m.expiresAt) {
		delete(s.records, k)
		return nil, nil
	}
	rec := m.rec
	return &rec, nil
}

func (s *IdempotencyStore) PutIfAbsent(ctx context.Context, namespace, key string, rec *storage.IdempotencyRecord, ttl time.Duration) (bool, *storage.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := namespace + ":" + key
	if m, ok := s.records[k]; ok && time.Now().Before(m.expiresAt) {
		existing := m.rec
		return false, &existing, nil
	}

	s.records[k] = memRecord{rec: *rec, expiresAt: time.Now().Add(ttl)}
	stored := *rec
	return true, &stored, nil
}

// DeleteExpired removes every record past its TTL and reports how many
// were dropped. The sweeper worker calls this periodically so abandoned
// keys do not accumulate between lookups.
func (s *IdempotencyStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, m := range s.records {
		if now.After(m.expiresAt) {
			delete(s.records, k)
			removed++
		}
	}
	return removed, nil
}
