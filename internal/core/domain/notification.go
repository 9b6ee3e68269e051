package domain

import "time"

// NotificationEvent identifies the webhook event emitted for a status
// transition.
type NotificationEvent string

const (
	EventDeploymentStarted    NotificationEvent = "token.deployment.started"
	EventDeploymentConfirming NotificationEvent = "token.deployment.confirming"
	EventDeploymentCompleted  NotificationEvent = "token.deployment.completed"
	EventDeploymentFailed     NotificationEvent = "token.deployment.failed"
)

// NotificationEventForStatus maps a lifecycle status to its webhook event.
func NotificationEventForStatus(status DeploymentStatus) NotificationEvent {
	switch status {
	case StatusQueued, StatusSubmitted:
		return EventDeploymentStarted
	case StatusPending, StatusConfirmed:
		return EventDeploymentConfirming
	case StatusCompleted:
		return EventDeploymentCompleted
	default:
		return EventDeploymentFailed
	}
}

// Notification is one webhook delivery request. Delivery is best effort and
// runs detached from the state-transition call path.
type Notification struct {
	Event           NotificationEvent `json:"event"`
	DeploymentID    string            `json:"deploymentId"`
	Network         string            `json:"network"`
	AssetIdentifier string            `json:"assetIdentifier,omitempty"`
	Payload         map[string]any    `json:"payload,omitempty"`
	OccurredAt      time.Time         `json:"occurredAt"`
}
