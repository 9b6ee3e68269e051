package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/storage"
)

// DeploymentRepo implements storage.DeploymentRepository using PostgreSQL.
//
// AddStatusEntry serializes concurrent writers per deployment with a
// row-level lock (SELECT ... FOR UPDATE) so the history append and the
// current-status update commit atomically.
type DeploymentRepo struct {
	db *DB
}

// NewDeploymentRepo creates a new PostgreSQL deployment repository.
func NewDeploymentRepo(db *DB) *DeploymentRepo {
	return &DeploymentRepo{db: db}
}

type deploymentRow struct {
	DeploymentID    string    `db:"deployment_id"`
	TokenType       string    `db:"token_type"`
	Network         string    `db:"network"`
	DeployedBy      string    `db:"deployed_by"`
	TokenName       string    `db:"token_name"`
	TokenSymbol     string    `db:"token_symbol"`
	AssetIdentifier string    `db:"asset_identifier"`
	TransactionHash string    `db:"transaction_hash"`
	ErrorMessage    string    `db:"error_message"`
	CorrelationID   string    `db:"correlation_id"`
	CurrentStatus   string    `db:"current_status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

type statusEntryRow struct {
	EntryID         string    `db:"entry_id"`
	DeploymentID    string    `db:"deployment_id"`
	Status          string    `db:"status"`
	Message         string    `db:"message"`
	TransactionHash string    `db:"transaction_hash"`
	ConfirmedRound  int64     `db:"confirmed_round"`
	ErrorMessage    string    `db:"error_message"`
	Metadata        []byte    `db:"metadata"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r deploymentRow) toDomain() *domain.TokenDeployment {
	return &domain.TokenDeployment{
		DeploymentID:    r.DeploymentID,
		TokenType:       r.TokenType,
		Network:         r.Network,
		DeployedBy:      r.DeployedBy,
		TokenName:       r.TokenName,
		TokenSymbol:     r.TokenSymbol,
		AssetIdentifier: r.AssetIdentifier,
		TransactionHash: r.TransactionHash,
		ErrorMessage:    r.ErrorMessage,
		CorrelationID:   r.CorrelationID,
		CurrentStatus:   domain.DeploymentStatus(r.CurrentStatus),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r statusEntryRow) toDomain() (domain.DeploymentStatusEntry, error) {
	entry := domain.DeploymentStatusEntry{
		EntryID:         r.EntryID,
		DeploymentID:    r.DeploymentID,
		Status:          domain.DeploymentStatus(r.Status),
		Message:         r.Message,
		TransactionHash: r.TransactionHash,
		ConfirmedRound:  uint64(r.ConfirmedRound),
		ErrorMessage:    r.ErrorMessage,
		Timestamp:       r.CreatedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &entry.Metadata); err != nil {
			return entry, fmt.Errorf("decode entry metadata: %w", err)
		}
	}
	return entry, nil
}

func (r *DeploymentRepo) CreateDeployment(ctx context.Context, d *domain.TokenDeployment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deployments (
			deployment_id, token_type, network, deployed_by, token_name,
			token_symbol, asset_identifier, transaction_hash, error_message,
			correlation_id, current_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.DeploymentID, d.TokenType, d.Network, d.DeployedBy, d.TokenName,
		d.TokenSymbol, d.AssetIdentifier, d.TransactionHash, d.ErrorMessage,
		d.CorrelationID, string(d.CurrentStatus), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateDeployment
		}
		return fmt.Errorf("insert deployment: %w", err)
	}

	for _, e := range d.StatusHistory {
		if err := insertEntry(ctx, tx, d.DeploymentID, &e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *DeploymentRepo) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.TokenDeployment, error) {
	var row deploymentRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM deployments WHERE deployment_id = $1`, deploymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrDeploymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment: %w", err)
	}

	d := row.toDomain()
	history, err := r.GetStatusHistory(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	d.StatusHistory = history
	return d, nil
}

func (r *DeploymentRepo) AddStatusEntry(ctx context.Context, deploymentID string, entry *domain.DeploymentStatusEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Row lock: concurrent appends to the same deployment serialize here.
	var current string
	err = tx.GetContext(ctx, &current,
		`SELECT current_status FROM deployments WHERE deployment_id = $1 FOR UPDATE`,
		deploymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrDeploymentNotFound
	}
	if err != nil {
		return fmt.Errorf("lock deployment: %w", err)
	}

	if err := insertEntry(ctx, tx, deploymentID, entry); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE deployments SET
			current_status = $2,
			transaction_hash = CASE WHEN $3 <> '' THEN $3 ELSE transaction_hash END,
			error_message = CASE WHEN $4 <> '' THEN $4 ELSE error_message END,
			updated_at = $5
		WHERE deployment_id = $1`,
		deploymentID, string(entry.Status), entry.TransactionHash,
		entry.ErrorMessage, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("update current status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sqlx.Tx, deploymentID string, e *domain.DeploymentStatusEntry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode entry metadata: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO deployment_status_history (
			entry_id, deployment_id, status, message, transaction_hash,
			confirmed_round, error_message, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.EntryID, deploymentID, string(e.Status), e.Message, e.TransactionHash,
		int64(e.ConfirmedRound), e.ErrorMessage, metadata, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert status entry: %w", err)
	}
	return nil
}

func (r *DeploymentRepo) UpdateDeployment(ctx context.Context, d *domain.TokenDeployment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE deployments SET
			asset_identifier = $2,
			transaction_hash = $3,
			error_message = $4,
			updated_at = $5
		WHERE deployment_id = $1`,
		d.DeploymentID, d.AssetIdentifier, d.TransactionHash, d.ErrorMessage, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrDeploymentNotFound
	}
	return nil
}

func (r *DeploymentRepo) GetStatusHistory(ctx context.Context, deploymentID string) ([]domain.DeploymentStatusEntry, error) {
	var rows []statusEntryRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT entry_id, deployment_id, status, message, transaction_hash,
		       confirmed_round, error_message, metadata, created_at
		FROM deployment_status_history
		WHERE deployment_id = $1
		ORDER BY seq ASC`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("get status history: %w", err)
	}

	history := make([]domain.DeploymentStatusEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, nil
}

func (r *DeploymentRepo) GetDeployments(ctx context.Context, filter domain.DeploymentFilter) ([]*domain.TokenDeployment, error) {
	where, args := buildFilter(filter)

	query := `SELECT * FROM deployments` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var rows []deploymentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	deployments := make([]*domain.TokenDeployment, 0, len(rows))
	for _, row := range rows {
		d := row.toDomain()
		history, err := r.GetStatusHistory(ctx, d.DeploymentID)
		if err != nil {
			return nil, err
		}
		d.StatusHistory = history
		deployments = append(deployments, d)
	}
	return deployments, nil
}

func (r *DeploymentRepo) GetDeploymentsCount(ctx context.Context, filter domain.DeploymentFilter) (int, error) {
	where, args := buildFilter(filter)

	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM deployments`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("count deployments: %w", err)
	}
	return count, nil
}

func buildFilter(f domain.DeploymentFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Network != "" {
		add("network = $%d", f.Network)
	}
	if f.TokenType != "" {
		add("token_type = $%d", f.TokenType)
	}
	if f.DeployedBy != "" {
		add("deployed_by = $%d", f.DeployedBy)
	}
	if f.Status != "" {
		add("current_status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func isUniqueViolation(err error) bool {
	// pgx wraps server errors; SQLSTATE 23505 is unique_violation.
	return strings.Contains(err.Error(), "23505")
}
