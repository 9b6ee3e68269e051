package domain

import "time"

// ExportFormat selects the audit export serialization.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ExportRecord is one flattened row of a deployment's status history as it
// appears in compliance exports. The column set is fixed.
type ExportRecord struct {
	DeploymentID           string    `json:"deploymentId"`
	TokenType              string    `json:"tokenType"`
	TokenName              string    `json:"tokenName"`
	TokenSymbol            string    `json:"tokenSymbol"`
	Network                string    `json:"network"`
	DeployedBy             string    `json:"deployedBy"`
	AssetIdentifier        string    `json:"assetIdentifier"`
	TransactionHash        string    `json:"transactionHash"`
	Status                 string    `json:"status"`
	Timestamp              time.Time `json:"timestamp"`
	Message                string    `json:"message"`
	ReasonCode             string    `json:"reasonCode"`
	ActorAddress           string    `json:"actorAddress"`
	ConfirmedRound         uint64    `json:"confirmedRound"`
	ErrorMessage           string    `json:"errorMessage"`
	DurationFromPreviousMs int64     `json:"durationFromPreviousMs"`
}

// ExportResult is the outcome of one audit export request. Data holds the
// serialized payload; IsCached marks an idempotent replay served from the
// export cache.
type ExportResult struct {
	Success      bool         `json:"success"`
	IsCached     bool         `json:"isCached"`
	Format       ExportFormat `json:"format"`
	Data         []byte       `json:"data,omitempty"`
	RecordCount  int          `json:"recordCount"`
	GeneratedAt  time.Time    `json:"generatedAt"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}
