package status

import "github.com/chainmint/issuer/internal/core/domain"

// transitions is the closed set of directed lifecycle edges. Anything not
// listed here is rejected. Self-transitions are handled before the table
// is consulted and are always accepted as no-ops.
var transitions = map[domain.DeploymentStatus][]domain.DeploymentStatus{
	domain.StatusQueued:    {domain.StatusSubmitted, domain.StatusFailed},
	domain.StatusSubmitted: {domain.StatusPending, domain.StatusFailed},
	domain.StatusPending:   {domain.StatusConfirmed, domain.StatusFailed},
	domain.StatusConfirmed: {domain.StatusCompleted, domain.StatusFailed},
	domain.StatusCompleted: {},
	domain.StatusFailed:    {domain.StatusQueued},
}

// CanTransition reports whether the directed edge from -> to exists in the
// lifecycle table. It does not consider self-transitions or the retryable
// gate; those are the service's concern.
func CanTransition(from, to domain.DeploymentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
