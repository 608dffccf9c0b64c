package workflow

import "fmt"

// Table maps (artifact type, current status) to the set of legal next
// statuses. The table is total: every reachable status has an explicit entry,
// and an empty entry marks a terminal status.
type Table map[ArtifactType]map[Status][]Status

// transitions is the authoritative lifecycle definition.
var transitions = Table{
	TypeAccessRequest: {
		StatusDraft:     {StatusSubmitted, StatusCancelled},
		StatusSubmitted: {StatusInReview, StatusRejected, StatusCancelled},
		StatusInReview:  {StatusCompleted, StatusRejected, StatusCancelled},
		StatusCompleted: {},
		StatusRejected:  {},
		StatusCancelled: {},
	},
	TypeCertification: {
		StatusDraft:     {StatusSubmitted, StatusCancelled},
		StatusSubmitted: {StatusInReview, StatusRejected, StatusCancelled},
		StatusInReview:  {StatusCertified, StatusRejected},
		StatusCertified: {StatusExpired},
		StatusExpired:   {},
		StatusRejected:  {},
		StatusCancelled: {},
	},
	TypeIncident: {
		StatusDetected:  {StatusReported, StatusClosed},
		StatusReported:  {StatusContained, StatusClosed},
		StatusContained: {StatusResolved},
		StatusResolved:  {StatusClosed},
		StatusClosed:    {},
	},
	TypeNotification: {
		StatusPending:       {StatusDispatched, StatusCancelled},
		StatusDispatched:    {StatusAcknowledged, StatusUndeliverable},
		StatusAcknowledged:  {},
		StatusUndeliverable: {},
		StatusCancelled:     {},
	},
}

// initialStatuses gives each type its constructor status.
var initialStatuses = map[ArtifactType]Status{
	TypeAccessRequest: StatusDraft,
	TypeCertification: StatusDraft,
	TypeIncident:      StatusDetected,
	TypeNotification:  StatusPending,
}

// clockStatuses names the status that starts each type's statutory clock.
// The deadline duration is configured per type on the Engine.
var clockStatuses = map[ArtifactType]Status{
	TypeAccessRequest: StatusSubmitted,
	TypeCertification: StatusSubmitted,
	TypeIncident:      StatusReported,
	TypeNotification:  StatusDispatched,
}

func init() {
	if err := validateTable(transitions); err != nil {
		panic(err)
	}
}

// validateTable enforces totality: every status reachable from any entry must
// itself have an entry, and every initial status must be in its type's table.
func validateTable(table Table) error {
	for kind, byStatus := range table {
		initial, ok := initialStatuses[kind]
		if !ok {
			return fmt.Errorf("workflow: type %s has no initial status", kind)
		}
		if _, ok := byStatus[initial]; !ok {
			return fmt.Errorf("workflow: initial status %s missing from %s table", initial, kind)
		}
		for from, targets := range byStatus {
			for _, to := range targets {
				if _, ok := byStatus[to]; !ok {
					return fmt.Errorf("workflow: %s reaches %s from %s but %s has no entry",
						kind, to, from, to)
				}
			}
		}
	}
	return nil
}

// ValidateTransition is a pure lookup: true iff from -> to is in the table
// for the artifact type. It never errors; unknown pairs are simply false.
func ValidateTransition(kind ArtifactType, from, to Status) bool {
	byStatus, ok := transitions[kind]
	if !ok {
		return false
	}
	targets, ok := byStatus[from]
	if !ok {
		return false
	}
	for _, target := range targets {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status has no outgoing transitions for kind.
func IsTerminal(kind ArtifactType, status Status) bool {
	byStatus, ok := transitions[kind]
	if !ok {
		return false
	}
	targets, ok := byStatus[status]
	return ok && len(targets) == 0
}

// KnownStatuses returns every status with an entry for kind, for validation
// and exhaustive tests.
func KnownStatuses(kind ArtifactType) []Status {
	byStatus := transitions[kind]
	out := make([]Status, 0, len(byStatus))
	for status := range byStatus {
		out = append(out, status)
	}
	return out
}
