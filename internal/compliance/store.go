// Package compliance orchestrates the artifact lifecycle: workflow
// transitions, field encryption, the evidentiary ledger, retention disposal,
// and escalation dispatch.
package compliance

import (
	"context"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

// ArtifactStore persists workflow artifacts. Get and Update are tenant
// scoped; a lookup under the wrong tenant reports not-found rather than
// leaking the artifact's existence.
type ArtifactStore interface {
	Save(ctx context.Context, artifact *workflow.Artifact) error
	Get(ctx context.Context, tenant domain.TenantID, id domain.ArtifactID) (*workflow.Artifact, error)
	Update(ctx context.Context, artifact *workflow.Artifact) error
	Delete(ctx context.Context, tenant domain.TenantID, id domain.ArtifactID) error
	ListByTenant(ctx context.Context, tenant domain.TenantID) ([]workflow.Artifact, error)
	// ListDeadlined returns non-terminal artifacts across all tenants whose
	// status deadline is at or before now. Used by the breach sweep.
	ListDeadlined(ctx context.Context, now time.Time) ([]workflow.Artifact, error)
	// All returns every artifact. Used by the key-rotation migration pass.
	All(ctx context.Context) ([]workflow.Artifact, error)
}
