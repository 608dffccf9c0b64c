// Package workflow drives compliance artifacts through validated status
// lifecycles. A transition table per artifact type defines the legal moves;
// statuses that start a statutory clock attach a fixed-duration deadline.
package workflow

import (
	"fmt"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/internal/fieldcrypt"
	"github.com/Mawilis/legal-doc-system-sub010/internal/retention"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

// ArtifactType is the closed set of compliance artifact kinds.
type ArtifactType string

const (
	TypeAccessRequest ArtifactType = "access_request"
	TypeCertification ArtifactType = "compliance_certification"
	TypeIncident      ArtifactType = "security_incident"
	TypeNotification  ArtifactType = "notification"
)

// Status is a workflow status. Which statuses are valid for an artifact is
// defined per type by the transition table.
type Status string

const (
	// Access requests (data subject access, rectification, erasure).
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusInReview  Status = "in_review"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"

	// Compliance certifications.
	StatusCertified Status = "certified"
	StatusExpired   Status = "expired"

	// Security incidents.
	StatusDetected  Status = "detected"
	StatusReported  Status = "reported"
	StatusContained Status = "contained"
	StatusResolved  Status = "resolved"
	StatusClosed    Status = "closed"

	// Notifications.
	StatusPending       Status = "pending"
	StatusDispatched    Status = "dispatched"
	StatusAcknowledged  Status = "acknowledged"
	StatusUndeliverable Status = "undeliverable"
)

// TransitionRecord is one applied transition in an artifact's history.
type TransitionRecord struct {
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Artifact generalizes the compliance record types that move through a
// lifecycle. Every artifact is strictly scoped to one tenant; a cross-tenant
// read or mutation is a contract violation, not merely a missed filter.
type Artifact struct {
	ID             domain.ArtifactID
	TenantID       domain.TenantID
	Type           ArtifactType
	Status         Status
	CreatedAt      time.Time
	StatusDeadline *time.Time
	History        []TransitionRecord
	LegalBasis     retention.LegalBasis

	// SensitiveFields holds the artifact's encrypted payload fields, keyed
	// by field name. Owned exclusively by this artifact.
	SensitiveFields map[string]fieldcrypt.EncryptedField

	// EscalationUnresolved is set when every delivery channel for the
	// artifact exhausted its retries.
	EscalationUnresolved bool
}

// NewArtifact constructs a validated artifact in its type's initial status.
func NewArtifact(tenant domain.TenantID, kind ArtifactType, basis retention.LegalBasis, createdAt time.Time) (*Artifact, error) {
	if tenant.IsNil() {
		return nil, fmt.Errorf("workflow: tenant id is required")
	}
	initial, ok := initialStatuses[kind]
	if !ok {
		return nil, fmt.Errorf("workflow: unknown artifact type %q", kind)
	}
	if !retention.Known(basis) {
		return nil, fmt.Errorf("workflow: unknown legal basis %q", basis)
	}
	return &Artifact{
		ID:              domain.NewArtifactID(),
		TenantID:        tenant,
		Type:            kind,
		Status:          initial,
		CreatedAt:       createdAt,
		LegalBasis:      basis,
		SensitiveFields: make(map[string]fieldcrypt.EncryptedField),
	}, nil
}

// IllegalTransitionError reports a transition outside the table. It aborts
// the calling operation and is never recovered silently.
type IllegalTransitionError struct {
	Type ArtifactType
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("workflow: illegal transition %s -> %s for %s", e.From, e.To, e.Type)
}

// TenantScopeError reports an operation crossing a tenant boundary.
type TenantScopeError struct {
	Have domain.TenantID
	Want domain.TenantID
}

func (e *TenantScopeError) Error() string {
	return fmt.Sprintf("workflow: artifact belongs to tenant %s, not %s", e.Have, e.Want)
}

// EnsureTenantScope re-validates that the artifact belongs to tenant. Callers
// are trusted to have authenticated the actor, never to have scoped the data.
func EnsureTenantScope(a *Artifact, tenant domain.TenantID) error {
	if a.TenantID != tenant {
		return &TenantScopeError{Have: a.TenantID, Want: tenant}
	}
	return nil
}
