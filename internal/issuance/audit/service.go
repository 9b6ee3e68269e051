// Package audit exports deployment status history for compliance
// reporting, with idempotent caching of export payloads.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/storage"
	"github.com/chainmint/issuer/internal/issuance/metrics"
)

// ErrIdempotencyConflict marks an idempotency key reused with different
// export parameters.
var ErrIdempotencyConflict = errors.New("idempotency key reused with different export parameters")

const (
	// cacheNamespace keys export payloads in the idempotency store.
	cacheNamespace = "export"

	// cacheTTL is how long a cached export stays servable.
	cacheTTL = time.Hour
)

// ExportRequest describes one audit export. DeploymentID exports a single
// deployment; otherwise Filter selects the set. IdempotencyKey is optional.
type ExportRequest struct {
	DeploymentID   string
	Filter         domain.DeploymentFilter
	Format         domain.ExportFormat
	IdempotencyKey string
}

// Service generates audit exports over the deployment repository.
type Service struct {
	repo  storage.DeploymentRepository
	cache storage.IdempotencyStore
	log   *slog.Logger
}

// NewService creates an audit export service. cache may be nil to disable
// idempotent caching.
func NewService(repo storage.DeploymentRepository, cache storage.IdempotencyStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, cache: cache, log: log}
}

// ExportAuditTrails produces the serialized status history for the
// requested deployments.
//
// With an idempotency key, a repeated request with identical parameters is
// served byte-identically from the cache (IsCached=true) for up to an
// hour; the same key with different parameters is rejected as a conflict
// rather than silently returning the wrong payload.
func (s *Service) ExportAuditTrails(ctx context.Context, req ExportRequest) (domain.ExportResult, error) {
	if req.Format != domain.ExportJSON && req.Format != domain.ExportCSV {
		return domain.ExportResult{
			Success:      false,
			Format:       req.Format,
			ErrorMessage: fmt.Sprintf("unsupported export format %q", req.Format),
		}, nil
	}

	paramsHash := hashParams(req)

	if req.IdempotencyKey != "" && s.cache != nil {
		rec, err := s.cache.Get(ctx, cacheNamespace, req.IdempotencyKey)
		if err != nil {
			s.log.Warn("export cache lookup failed", "error", err)
		} else if rec != nil {
			if rec.ParamsHash != paramsHash {
				metrics.ExportRequests.WithLabelValues(string(req.Format), "conflict").Inc()
				return domain.ExportResult{}, fmt.Errorf("key %q: %w", req.IdempotencyKey, ErrIdempotencyConflict)
			}
			metrics.ExportRequests.WithLabelValues(string(req.Format), "cached").Inc()
			return domain.ExportResult{
				Success:     true,
				IsCached:    true,
				Format:      req.Format,
				Data:        rec.Payload,
				RecordCount: rec.RecordCount,
				GeneratedAt: rec.CreatedAt,
			}, nil
		}
	}

	deployments, err := s.loadDeployments(ctx, req)
	if err != nil {
		return domain.ExportResult{}, err
	}

	generatedAt := time.Now().UTC()
	records := buildRecords(deployments)

	var data []byte
	switch req.Format {
	case domain.ExportJSON:
		data, err = encodeJSON(records, generatedAt)
		if err != nil {
			return domain.ExportResult{}, err
		}
	case domain.ExportCSV:
		data = encodeCSV(records)
	}

	result := domain.ExportResult{
		Success:     true,
		Format:      req.Format,
		Data:        data,
		RecordCount: len(records),
		GeneratedAt: generatedAt,
	}

	if req.IdempotencyKey != "" && s.cache != nil {
		stored, winner, err := s.cache.PutIfAbsent(ctx, cacheNamespace, req.IdempotencyKey, &storage.IdempotencyRecord{
			Key:         req.IdempotencyKey,
			ParamsHash:  paramsHash,
			Payload:     data,
			ContentType: string(req.Format),
			RecordCount: len(records),
			CreatedAt:   generatedAt,
		}, cacheTTL)
		switch {
		case err != nil:
			s.log.Warn("export cache write failed", "error", err)
		case !stored && winner != nil:
			// A concurrent request with the same key won the race; serve
			// its payload so both callers see identical bytes.
			if winner.ParamsHash != paramsHash {
				metrics.ExportRequests.WithLabelValues(string(req.Format), "conflict").Inc()
				return domain.ExportResult{}, fmt.Errorf("key %q: %w", req.IdempotencyKey, ErrIdempotencyConflict)
			}
			metrics.ExportRequests.WithLabelValues(string(req.Format), "cached").Inc()
			return domain.ExportResult{
				Success:     true,
				IsCached:    true,
				Format:      req.Format,
				Data:        winner.Payload,
				RecordCount: winner.RecordCount,
				GeneratedAt: winner.CreatedAt,
			}, nil
		}
	}

	metrics.ExportRequests.WithLabelValues(string(req.Format), "generated").Inc()
	s.log.Info("audit export generated",
		"format", req.Format,
		"records", len(records),
		"deployment_id", req.DeploymentID,
		"idempotency_key_present", req.IdempotencyKey != "")
	return result, nil
}

func (s *Service) loadDeployments(ctx context.Context, req ExportRequest) ([]*domain.TokenDeployment, error) {
	if req.DeploymentID != "" {
		d, err := s.repo.GetDeploymentByID(ctx, req.DeploymentID)
		if errors.Is(err, storage.ErrDeploymentNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load deployment: %w", err)
		}
		return []*domain.TokenDeployment{d}, nil
	}

	deployments, err := s.repo.GetDeployments(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}
	return deployments, nil
}

// hashParams fingerprints everything that affects the export payload.
func hashParams(req ExportRequest) string {
	data, _ := json.Marshal(struct {
		DeploymentID string
		Filter       domain.DeploymentFilter
		Format       domain.ExportFormat
	}{req.DeploymentID, req.Filter, req.Format})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
