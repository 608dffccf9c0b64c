package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/internal/dispatch"
	"github.com/Mawilis/legal-doc-system-sub010/internal/fieldcrypt"
	"github.com/Mawilis/legal-doc-system-sub010/internal/ledger"
	"github.com/Mawilis/legal-doc-system-sub010/internal/retention"
	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	dErrors "github.com/Mawilis/legal-doc-system-sub010/pkg/domain-errors"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/requestcontext"
)

// fieldPurpose is the key-derivation purpose for artifact payload fields.
const fieldPurpose = "artifact_fields"

// EscalationTarget is one notification destination for deadline breaches.
type EscalationTarget struct {
	Channel   dispatch.Channel
	Recipient string
}

// Dispatcher is the slice of the dispatch API the service drives.
type Dispatcher interface {
	ScheduleDelivery(ctx context.Context, artifact *workflow.Artifact, deliveries []dispatch.Delivery) ([]dispatch.Attempt, error)
	HasAttempts(ctx context.Context, artifactID domain.ArtifactID) (bool, error)
	PurgeArtifact(ctx context.Context, artifactID domain.ArtifactID) error
}

// Service ties the artifact lifecycle together. Every mutation lands in the
// ledger; sensitive payload fields never cross the store boundary in
// plaintext.
type Service struct {
	store          ArtifactStore
	engine         *workflow.Engine
	fields         *fieldcrypt.Service
	ledger         *ledger.Service
	dispatcher     Dispatcher
	targets        map[domain.TenantID][]EscalationTarget
	defaultTargets []EscalationTarget
	logger         *slog.Logger
	metrics        *Metrics
	now            func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithEscalationTargets sets per-tenant breach notification destinations.
func WithEscalationTargets(targets map[domain.TenantID][]EscalationTarget) Option {
	return func(s *Service) { s.targets = targets }
}

// WithDefaultEscalationTargets sets the fallback destinations for tenants
// without their own escalation routing.
func WithDefaultEscalationTargets(targets []EscalationTarget) Option {
	return func(s *Service) { s.defaultTargets = targets }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// SetDispatcher wires the dispatcher after construction. The service and the
// dispatcher reference each other, so one side has to attach late.
func (s *Service) SetDispatcher(d Dispatcher) { s.dispatcher = d }

// NewService creates the compliance service.
func NewService(
	store ArtifactStore,
	engine *workflow.Engine,
	fields *fieldcrypt.Service,
	ledgerSvc *ledger.Service,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:  store,
		engine: engine,
		fields: fields,
		ledger: ledgerSvc,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput describes a new artifact. Sensitive values arrive in plaintext
// and are encrypted before the artifact is persisted.
type CreateInput struct {
	Type       workflow.ArtifactType
	LegalBasis retention.LegalBasis
	Sensitive  map[string][]byte
}

// CreateArtifact builds, encrypts, persists, and ledgers a new artifact in
// its type's initial status.
func (s *Service) CreateArtifact(ctx context.Context, in CreateInput) (*workflow.Artifact, error) {
	tenant := requestcontext.TenantID(ctx)
	artifact, err := workflow.NewArtifact(tenant, in.Type, in.LegalBasis, s.now())
	if err != nil {
		return nil, err
	}

	keyCtx := fieldcrypt.KeyContext{TenantID: tenant, Purpose: fieldPurpose}
	for name, value := range in.Sensitive {
		field, err := s.fields.EncryptField(ctx, name, value, keyCtx)
		if err != nil {
			return nil, fmt.Errorf("compliance: encrypt field %q: %w", name, err)
		}
		artifact.SensitiveFields[name] = field
	}

	if err := s.store.Save(ctx, artifact); err != nil {
		return nil, fmt.Errorf("compliance: save artifact: %w", err)
	}
	s.appendEntry(ctx, artifact, ledger.ActionArtifactCreated)
	if s.metrics != nil {
		s.metrics.IncArtifactsCreated(string(in.Type))
	}
	return artifact, nil
}

// GetArtifact loads a tenant-scoped artifact and records the access in the
// ledger.
func (s *Service) GetArtifact(ctx context.Context, id domain.ArtifactID) (*workflow.Artifact, error) {
	artifact, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.appendEntry(ctx, artifact, ledger.ActionArtifactAccessed)
	return artifact, nil
}

// RevealField decrypts one sensitive field. The read is itself ledgered as an
// access.
func (s *Service) RevealField(ctx context.Context, id domain.ArtifactID, name string) ([]byte, error) {
	artifact, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	field, ok := artifact.SensitiveFields[name]
	if !ok {
		return nil, fmt.Errorf("compliance: artifact %s has no field %q", id, name)
	}
	keyCtx := fieldcrypt.KeyContext{TenantID: artifact.TenantID, Purpose: fieldPurpose}
	value, err := s.fields.DecryptField(ctx, field, keyCtx)
	if err != nil {
		return nil, err
	}
	s.appendEntry(ctx, artifact, ledger.ActionArtifactAccessed)
	return value, nil
}

// PutField encrypts and stores one sensitive field, replacing any previous
// value under that name.
func (s *Service) PutField(ctx context.Context, id domain.ArtifactID, name string, value []byte) error {
	artifact, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	keyCtx := fieldcrypt.KeyContext{TenantID: artifact.TenantID, Purpose: fieldPurpose}
	field, err := s.fields.EncryptField(ctx, name, value, keyCtx)
	if err != nil {
		return fmt.Errorf("compliance: encrypt field %q: %w", name, err)
	}
	artifact.SensitiveFields[name] = field
	if err := s.store.Update(ctx, artifact); err != nil {
		return fmt.Errorf("compliance: update artifact: %w", err)
	}
	s.appendEntry(ctx, artifact, ledger.ActionArtifactModified)
	return nil
}

// Transition moves an artifact to a new status under the workflow table and
// records the change.
func (s *Service) Transition(ctx context.Context, id domain.ArtifactID, to workflow.Status) (*workflow.Artifact, error) {
	artifact, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.ApplyTransition(artifact, to, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, artifact); err != nil {
		return nil, fmt.Errorf("compliance: update artifact: %w", err)
	}
	s.appendEntry(ctx, artifact, ledger.ActionStatusChanged)
	if s.metrics != nil {
		s.metrics.IncTransitions(string(artifact.Type), string(to))
	}
	return artifact, nil
}

// ListArtifacts returns the tenant's artifacts, oldest first.
func (s *Service) ListArtifacts(ctx context.Context) ([]workflow.Artifact, error) {
	return s.store.ListByTenant(ctx, requestcontext.TenantID(ctx))
}

// EscalateBreaches sweeps for artifacts past their statutory deadline and
// schedules breach notifications to the tenant's escalation targets. Already
// escalated artifacts are skipped so the sweep is idempotent. Returns how
// many artifacts were escalated.
func (s *Service) EscalateBreaches(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.store.ListDeadlined(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("compliance: list deadlined artifacts: %w", err)
	}

	escalated := 0
	for i := range candidates {
		artifact := &candidates[i]
		if !s.engine.IsBreached(artifact, now) || artifact.EscalationUnresolved {
			continue
		}
		targets := s.targets[artifact.TenantID]
		if len(targets) == 0 {
			targets = s.defaultTargets
		}
		if len(targets) == 0 || s.dispatcher == nil {
			s.logger.WarnContext(ctx, "deadline breached with no escalation route",
				"artifact_id", artifact.ID,
				"tenant_id", artifact.TenantID,
			)
			continue
		}
		already, err := s.dispatcher.HasAttempts(ctx, artifact.ID)
		if err != nil {
			return escalated, fmt.Errorf("compliance: check escalation attempts: %w", err)
		}
		if already {
			continue
		}

		deliveries := make([]dispatch.Delivery, 0, len(targets))
		for _, target := range targets {
			deliveries = append(deliveries, dispatch.Delivery{
				Channel:   target.Channel,
				Recipient: target.Recipient,
				RenderedContent: fmt.Sprintf(
					"Artifact %s (%s) missed its %s deadline of %s.",
					artifact.ID, artifact.Type, artifact.Status,
					artifact.StatusDeadline.UTC().Format(time.RFC3339),
				),
			})
		}
		if _, err := s.dispatcher.ScheduleDelivery(ctx, artifact, deliveries); err != nil {
			s.logger.ErrorContext(ctx, "breach escalation scheduling failed",
				"artifact_id", artifact.ID,
				"error", err,
			)
			continue
		}
		escalated++
		if s.metrics != nil {
			s.metrics.IncBreachesEscalated(string(artifact.Type))
		}
	}
	return escalated, nil
}

// DeliveryInput describes an on-demand notification request for an artifact.
type DeliveryInput struct {
	Channel   dispatch.Channel
	Recipient string
	Content   string
}

// RequestDelivery schedules a notification outside the breach sweep, for
// operator-driven notices such as regulator submissions. The attempt rides
// the same dispatch pipeline as escalations, so retry backoff and ledger
// evidence apply unchanged.
func (s *Service) RequestDelivery(ctx context.Context, id domain.ArtifactID, in DeliveryInput) (*dispatch.Attempt, error) {
	if s.dispatcher == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "delivery dispatch is not configured")
	}
	if !dispatch.ValidChannel(in.Channel) {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown delivery channel %q", in.Channel))
	}
	if in.Recipient == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "delivery recipient is required")
	}
	artifact, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	content := in.Content
	if content == "" {
		content = fmt.Sprintf("Notification for artifact %s (%s), status %s.",
			artifact.ID, artifact.Type, artifact.Status)
	}
	attempts, err := s.dispatcher.ScheduleDelivery(ctx, artifact, []dispatch.Delivery{{
		Channel:         in.Channel,
		Recipient:       in.Recipient,
		RenderedContent: content,
	}})
	if err != nil {
		return nil, fmt.Errorf("compliance: schedule delivery: %w", err)
	}
	return &attempts[0], nil
}

// DisposeArtifact deletes an artifact once its retention window allows it.
// Litigation holds and unexpired retention windows refuse disposal; a
// successful disposal leaves a purge entry in the ledger.
func (s *Service) DisposeArtifact(ctx context.Context, id domain.ArtifactID) error {
	artifact, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := retention.CheckDisposal(artifact.CreatedAt, s.now(), artifact.LegalBasis); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, artifact.TenantID, artifact.ID); err != nil {
		return fmt.Errorf("compliance: delete artifact: %w", err)
	}
	if s.dispatcher != nil {
		// Delivery attempts die with their parent; nothing else deletes
		// them. A residual failure here is logged like a ledger miss.
		if err := s.dispatcher.PurgeArtifact(ctx, artifact.ID); err != nil {
			s.logger.ErrorContext(ctx, "delivery attempt purge failed",
				"artifact_id", artifact.ID,
				"error", err,
			)
		}
	}
	s.appendEntry(ctx, artifact, ledger.ActionRetentionPurge)
	if s.metrics != nil {
		s.metrics.IncDisposals(string(artifact.LegalBasis))
	}
	return nil
}

// RotateKeys rotates the encryption key generation when the rotation
// interval has elapsed and migrates every stored field to the new
// generation. Records that fail migration are logged and left on the old
// generation for the next pass; they stay readable through the dual-key
// window.
func (s *Service) RotateKeys(ctx context.Context) (migrated, failed int, err error) {
	generation, rotated := s.fields.RotateIfDue(s.now())
	if !rotated {
		return 0, 0, nil
	}
	s.logger.InfoContext(ctx, "encryption key rotated", "generation", generation)

	artifacts, err := s.store.All(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("compliance: list artifacts for rotation: %w", err)
	}

	for i := range artifacts {
		artifact := &artifacts[i]
		keyCtx := fieldcrypt.KeyContext{TenantID: artifact.TenantID, Purpose: fieldPurpose}
		refs := make([]fieldcrypt.FieldRef, 0, len(artifact.SensitiveFields))
		for name := range artifact.SensitiveFields {
			field := artifact.SensitiveFields[name]
			refs = append(refs, fieldcrypt.FieldRef{Name: name, Field: &field, KeyCtx: keyCtx})
		}
		m, f, err := s.fields.Reencrypt(ctx, refs)
		migrated += m
		failed += f
		if err != nil {
			return migrated, failed, err
		}
		for _, ref := range refs {
			artifact.SensitiveFields[ref.Name] = *ref.Field
		}
		if err := s.store.Update(ctx, artifact); err != nil {
			return migrated, failed, fmt.Errorf("compliance: persist re-encrypted artifact: %w", err)
		}
		s.appendEntry(ctx, artifact, ledger.ActionKeyRotated)
	}
	return migrated, failed, nil
}

// PurgeLedger removes the tenant's ledger entries older than before, subject
// to the retention floor of the given basis. The surviving chain head keeps a
// visible break marker.
func (s *Service) PurgeLedger(ctx context.Context, before time.Time, basis retention.LegalBasis) (int, error) {
	return s.ledger.PurgeBefore(ctx, requestcontext.TenantID(ctx), before, basis)
}

// VerifyLedger re-validates the tenant's hash chain over the given range.
// from/to of 0 mean the chain's edges.
func (s *Service) VerifyLedger(ctx context.Context, from, to uint64) (ledger.VerificationResult, error) {
	if from == 0 {
		from = 1
	}
	return s.ledger.VerifyChain(ctx, requestcontext.TenantID(ctx), from, to)
}

// IsTerminal implements dispatch.ParentState.
func (s *Service) IsTerminal(ctx context.Context, tenant domain.TenantID, id domain.ArtifactID) (bool, error) {
	artifact, err := s.store.Get(ctx, tenant, id)
	if err != nil {
		return false, err
	}
	return workflow.IsTerminal(artifact.Type, artifact.Status), nil
}

// MarkEscalationUnresolved implements dispatch.ParentState. The flag is
// sticky; the dispatcher appends the corresponding ledger evidence itself.
func (s *Service) MarkEscalationUnresolved(ctx context.Context, tenant domain.TenantID, id domain.ArtifactID) error {
	artifact, err := s.store.Get(ctx, tenant, id)
	if err != nil {
		return err
	}
	if artifact.EscalationUnresolved {
		return nil
	}
	artifact.EscalationUnresolved = true
	return s.store.Update(ctx, artifact)
}

// load fetches the artifact under the caller's tenant scope and double-checks
// the scope invariant on the way out.
func (s *Service) load(ctx context.Context, id domain.ArtifactID) (*workflow.Artifact, error) {
	tenant := requestcontext.TenantID(ctx)
	artifact, err := s.store.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.EnsureTenantScope(artifact, tenant); err != nil {
		return nil, err
	}
	return artifact, nil
}

// appendEntry writes the ledger evidence for an artifact mutation. The
// primary write has already happened; a residual ledger failure after retries
// is logged, not unwound.
func (s *Service) appendEntry(ctx context.Context, artifact *workflow.Artifact, action ledger.Action) {
	actor := requestcontext.ActorID(ctx)
	if actor.IsNil() {
		actor = domain.SystemActorID
	}
	_, err := s.ledger.AppendWithRetry(ctx, ledger.AppendInput{
		TenantID: artifact.TenantID,
		ActorID:  actor,
		Action:   action,
		Payload: map[string]any{
			"artifact_id": artifact.ID.String(),
			"type":        string(artifact.Type),
			"status":      string(artifact.Status),
		},
		RequestID: requestcontext.RequestID(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
	}, 3, 100*time.Millisecond)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.ErrorContext(ctx, "ledger append failed",
			"artifact_id", artifact.ID,
			"action", action,
			"error", err,
		)
	}
}
