package workflow

import (
	"time"
)

// Default statutory clocks per artifact type. Access requests carry the
// 72-hour response guarantee; incidents follow the 72-hour breach
// notification window.
var defaultDeadlines = map[ArtifactType]time.Duration{
	TypeAccessRequest: 72 * time.Hour,
	TypeCertification: 30 * 24 * time.Hour,
	TypeIncident:      72 * time.Hour,
	TypeNotification:  24 * time.Hour,
}

// Engine applies transitions and evaluates deadlines. It is stateless apart
// from its configuration and safe for concurrent use.
type Engine struct {
	deadlines map[ArtifactType]time.Duration
}

// NewEngine builds an engine with the default statutory clocks, overridden
// per type by the supplied map.
func NewEngine(overrides map[ArtifactType]time.Duration) *Engine {
	deadlines := make(map[ArtifactType]time.Duration, len(defaultDeadlines))
	for kind, d := range defaultDeadlines {
		deadlines[kind] = d
	}
	for kind, d := range overrides {
		if d > 0 {
			deadlines[kind] = d
		}
	}
	return &Engine{deadlines: deadlines}
}

// Deadline returns the statutory clock duration for an artifact type.
func (e *Engine) Deadline(kind ArtifactType) time.Duration {
	return e.deadlines[kind]
}

// ApplyTransition moves the artifact to the new status at occurredAt. An
// illegal move returns *IllegalTransitionError and leaves the artifact
// untouched. Entering the type's clock status sets StatusDeadline to
// occurredAt plus the configured duration.
func (e *Engine) ApplyTransition(a *Artifact, to Status, occurredAt time.Time) error {
	if !ValidateTransition(a.Type, a.Status, to) {
		return &IllegalTransitionError{Type: a.Type, From: a.Status, To: to}
	}

	a.History = append(a.History, TransitionRecord{
		From:       a.Status,
		To:         to,
		OccurredAt: occurredAt,
	})
	a.Status = to

	if clockStatuses[a.Type] == to {
		deadline := occurredAt.Add(e.deadlines[a.Type])
		a.StatusDeadline = &deadline
	}
	return nil
}

// IsBreached reports whether the artifact has missed its statutory deadline.
// True iff a deadline exists, the artifact is not terminal, and now is
// strictly after the deadline: reaching a terminal status exactly at the
// deadline instant is non-breaching.
func (e *Engine) IsBreached(a *Artifact, now time.Time) bool {
	if a.StatusDeadline == nil {
		return false
	}
	if IsTerminal(a.Type, a.Status) {
		return false
	}
	return now.After(*a.StatusDeadline)
}
