package domain

import "time"

// DeploymentStatus is the lifecycle state of a token deployment.
type DeploymentStatus string

const (
	StatusQueued    DeploymentStatus = "queued"
	StatusSubmitted DeploymentStatus = "submitted"
	StatusPending   DeploymentStatus = "pending"
	StatusConfirmed DeploymentStatus = "confirmed"
	StatusCompleted DeploymentStatus = "completed"
	StatusFailed    DeploymentStatus = "failed"
)

// IsTerminal reports whether no further lifecycle transitions are possible.
// Failed is not terminal: it permits exactly one recovery transition back
// to Queued.
func (s DeploymentStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// MetadataKeyRetryable marks a Failed history entry as eligible (or not)
// for the Failed -> Queued recovery transition.
const MetadataKeyRetryable = "retryable"

// TokenDeployment tracks one attempt to issue a token on a specific network.
// CurrentStatus is the single source of truth for state and always equals
// the status of the most recently appended history entry.
type TokenDeployment struct {
	DeploymentID    string                  `json:"deploymentId"`
	TokenType       string                  `json:"tokenType"`
	Network         string                  `json:"network"`
	DeployedBy      string                  `json:"deployedBy"`
	TokenName       string                  `json:"tokenName,omitempty"`
	TokenSymbol     string                  `json:"tokenSymbol,omitempty"`
	AssetIdentifier string                  `json:"assetIdentifier,omitempty"`
	TransactionHash string                  `json:"transactionHash,omitempty"`
	ErrorMessage    string                  `json:"errorMessage,omitempty"`
	CorrelationID   string                  `json:"correlationId"`
	CurrentStatus   DeploymentStatus        `json:"currentStatus"`
	StatusHistory   []DeploymentStatusEntry `json:"statusHistory"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// LatestEntry returns the most recently appended history entry, or nil for
// a deployment with no history (which should not occur for persisted rows).
func (d *TokenDeployment) LatestEntry() *DeploymentStatusEntry {
	if len(d.StatusHistory) == 0 {
		return nil
	}
	return &d.StatusHistory[len(d.StatusHistory)-1]
}

// DeploymentStatusEntry is one immutable record in a deployment's
// append-only status history. Entries are created only by the status
// service and never mutated afterwards.
type DeploymentStatusEntry struct {
	EntryID         string            `json:"entryId"`
	DeploymentID    string            `json:"deploymentId"`
	Status          DeploymentStatus  `json:"status"`
	Message         string            `json:"message,omitempty"`
	TransactionHash string            `json:"transactionHash,omitempty"`
	ConfirmedRound  uint64            `json:"confirmedRound,omitempty"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Retryable reports whether this entry permits the recovery transition.
// Entries without the marker default to retryable, matching records written
// before the gate existed.
func (e *DeploymentStatusEntry) Retryable() bool {
	if e == nil || e.Metadata == nil {
		return true
	}
	return e.Metadata[MetadataKeyRetryable] != "false"
}

// DeploymentFilter narrows deployment list and count queries.
// Zero values mean "no constraint".
type DeploymentFilter struct {
	Network    string
	TokenType  string
	DeployedBy string
	Status     DeploymentStatus
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
