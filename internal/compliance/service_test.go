package compliance_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Mawilis/legal-doc-system-sub010/internal/compliance"
	"github.com/Mawilis/legal-doc-system-sub010/internal/dispatch"
	"github.com/Mawilis/legal-doc-system-sub010/internal/fieldcrypt"
	"github.com/Mawilis/legal-doc-system-sub010/internal/ledger"
	"github.com/Mawilis/legal-doc-system-sub010/internal/retention"
	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	dErrors "github.com/Mawilis/legal-doc-system-sub010/pkg/domain-errors"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/platform/sentinel"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx          context.Context
	tenant       domain.TenantID
	actor        domain.ActorID
	store        *compliance.InMemoryStore
	ledgerStore  *ledger.InMemoryStore
	attemptStore *dispatch.InMemoryStore
	svc          *compliance.Service
	now          time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.tenant = domain.NewTenantID()
	s.actor = domain.NewActorID()
	s.ctx = requestcontext.WithActorID(requestcontext.WithTenantID(context.Background(), s.tenant), s.actor)

	log := slog.New(slog.DiscardHandler)
	s.store = compliance.NewInMemoryStore()
	s.ledgerStore = ledger.NewInMemoryStore()
	s.attemptStore = dispatch.NewInMemoryStore()
	ledgerSvc := ledger.NewService(s.ledgerStore, log)

	keyring, err := fieldcrypt.NewKeyring(bytes.Repeat([]byte{0x2a}, 32), 90*24*time.Hour, s.now)
	s.Require().NoError(err)
	fields := fieldcrypt.NewService(keyring, log)

	s.svc = compliance.NewService(s.store, workflow.NewEngine(nil), fields, ledgerSvc, log,
		compliance.WithClock(func() time.Time { return s.now }),
		compliance.WithEscalationTargets(map[domain.TenantID][]compliance.EscalationTarget{
			s.tenant: {{Channel: dispatch.ChannelEmail, Recipient: "compliance@example.com"}},
		}),
	)
	dispatcher := dispatch.New(s.attemptStore, ledgerSvc, s.svc, dispatch.Config{
		SystemActor: domain.SystemActorID,
	}, log,
		dispatch.WithClock(func() time.Time { return s.now }),
		dispatch.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
	s.svc.SetDispatcher(dispatcher)
}

func (s *ServiceSuite) create(kind workflow.ArtifactType, basis retention.LegalBasis, sensitive map[string][]byte) *workflow.Artifact {
	artifact, err := s.svc.CreateArtifact(s.ctx, compliance.CreateInput{
		Type:       kind,
		LegalBasis: basis,
		Sensitive:  sensitive,
	})
	s.Require().NoError(err)
	return artifact
}

func (s *ServiceSuite) ledgerActions() []ledger.Action {
	entries, err := s.ledgerStore.Range(s.ctx, s.tenant, 1, 0)
	s.Require().NoError(err)
	actions := make([]ledger.Action, len(entries))
	for i, entry := range entries {
		actions[i] = entry.Action
	}
	return actions
}

func (s *ServiceSuite) TestCreateEncryptsSensitiveFields() {
	plaintext := []byte("ada@example.com")
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, map[string][]byte{
		"subject_email": plaintext,
	})
	s.Equal(workflow.StatusDraft, artifact.Status)

	stored, err := s.store.Get(s.ctx, s.tenant, artifact.ID)
	s.Require().NoError(err)
	field, ok := stored.SensitiveFields["subject_email"]
	s.Require().True(ok)
	s.NotContains(string(field.CipherText), string(plaintext))
	s.Equal([]ledger.Action{ledger.ActionArtifactCreated}, s.ledgerActions())
}

func (s *ServiceSuite) TestTransitionSetsDeadlineAndLedgersEvidence() {
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, nil)

	updated, err := s.svc.Transition(s.ctx, artifact.ID, workflow.StatusSubmitted)
	s.Require().NoError(err)
	s.Equal(workflow.StatusSubmitted, updated.Status)
	s.Require().NotNil(updated.StatusDeadline)
	s.Equal(s.now.Add(72*time.Hour), *updated.StatusDeadline)

	s.Equal([]ledger.Action{ledger.ActionArtifactCreated, ledger.ActionStatusChanged}, s.ledgerActions())

	result, err := s.svc.VerifyLedger(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.True(result.Intact)
	s.Equal(2, result.CheckedEntries)
}

func (s *ServiceSuite) TestIllegalTransitionLeavesArtifactUntouched() {
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, nil)

	_, err := s.svc.Transition(s.ctx, artifact.ID, workflow.StatusCompleted)
	var illegal *workflow.IllegalTransitionError
	s.Require().ErrorAs(err, &illegal)
	s.Equal(workflow.StatusDraft, illegal.From)

	stored, err := s.store.Get(s.ctx, s.tenant, artifact.ID)
	s.Require().NoError(err)
	s.Equal(workflow.StatusDraft, stored.Status)
	s.Empty(stored.History)
}

func (s *ServiceSuite) TestCrossTenantReadIsNotFound() {
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, nil)

	otherCtx := requestcontext.WithTenantID(context.Background(), domain.NewTenantID())
	_, err := s.svc.GetArtifact(otherCtx, artifact.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestRevealFieldRoundTrip() {
	plaintext := []byte("711 Chancery Lane")
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, map[string][]byte{
		"subject_address": plaintext,
	})

	value, err := s.svc.RevealField(s.ctx, artifact.ID, "subject_address")
	s.Require().NoError(err)
	s.Equal(plaintext, value)

	_, err = s.svc.RevealField(s.ctx, artifact.ID, "missing")
	s.Error(err)

	actions := s.ledgerActions()
	s.Equal(ledger.ActionArtifactAccessed, actions[len(actions)-1])
}

func (s *ServiceSuite) TestPutFieldReplacesValue() {
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, map[string][]byte{
		"subject_email": []byte("old@example.com"),
	})

	s.Require().NoError(s.svc.PutField(s.ctx, artifact.ID, "subject_email", []byte("new@example.com")))

	value, err := s.svc.RevealField(s.ctx, artifact.ID, "subject_email")
	s.Require().NoError(err)
	s.Equal([]byte("new@example.com"), value)
	s.Contains(s.ledgerActions(), ledger.ActionArtifactModified)
}

func (s *ServiceSuite) TestDisposalRefusedUnderLegalHold() {
	artifact := s.create(workflow.TypeIncident, retention.BasisLitigationHold, nil)

	err := s.svc.DisposeArtifact(s.ctx, artifact.ID)
	s.ErrorIs(err, retention.ErrLegalHold)
	s.NotErrorIs(err, retention.ErrRetentionViolation)

	_, err = s.store.Get(s.ctx, s.tenant, artifact.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestDisposalRespectsRetentionWindow() {
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, nil)

	err := s.svc.DisposeArtifact(s.ctx, artifact.ID)
	s.ErrorIs(err, retention.ErrRetentionViolation)

	s.now = s.now.Add(31 * 24 * time.Hour)
	s.Require().NoError(s.svc.DisposeArtifact(s.ctx, artifact.ID))

	_, err = s.store.Get(s.ctx, s.tenant, artifact.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	actions := s.ledgerActions()
	s.Equal(ledger.ActionRetentionPurge, actions[len(actions)-1])
}

func (s *ServiceSuite) TestEscalateBreachesSchedulesOncePerArtifact() {
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, nil)
	_, err := s.svc.Transition(s.ctx, artifact.ID, workflow.StatusSubmitted)
	s.Require().NoError(err)

	escalated, err := s.svc.EscalateBreaches(s.ctx)
	s.Require().NoError(err)
	s.Zero(escalated, "deadline not yet passed")

	s.now = s.now.Add(73 * time.Hour)
	escalated, err = s.svc.EscalateBreaches(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, escalated)

	attempts, err := s.attemptStore.ListByArtifact(s.ctx, artifact.ID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 1)
	s.Equal(dispatch.ChannelEmail, attempts[0].Channel)
	s.Equal("compliance@example.com", attempts[0].Recipient)
	s.Contains(attempts[0].RenderedContent, artifact.ID.String())

	escalated, err = s.svc.EscalateBreaches(s.ctx)
	s.Require().NoError(err)
	s.Zero(escalated, "second sweep must not re-escalate")
}

func (s *ServiceSuite) TestEscalateBreachesSkipsTenantsWithoutRoute() {
	otherTenant := domain.NewTenantID()
	otherCtx := requestcontext.WithTenantID(context.Background(), otherTenant)
	artifact, err := s.svc.CreateArtifact(otherCtx, compliance.CreateInput{
		Type:       workflow.TypeAccessRequest,
		LegalBasis: retention.BasisConsent,
	})
	s.Require().NoError(err)
	_, err = s.svc.Transition(otherCtx, artifact.ID, workflow.StatusSubmitted)
	s.Require().NoError(err)

	s.now = s.now.Add(73 * time.Hour)
	escalated, err := s.svc.EscalateBreaches(s.ctx)
	s.Require().NoError(err)
	s.Zero(escalated)

	attempts, err := s.attemptStore.ListByArtifact(s.ctx, artifact.ID)
	s.Require().NoError(err)
	s.Empty(attempts)
}

func (s *ServiceSuite) TestTerminalArtifactNeverBreaches() {
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, nil)
	_, err := s.svc.Transition(s.ctx, artifact.ID, workflow.StatusSubmitted)
	s.Require().NoError(err)
	_, err = s.svc.Transition(s.ctx, artifact.ID, workflow.StatusCancelled)
	s.Require().NoError(err)

	s.now = s.now.Add(100 * time.Hour)
	escalated, err := s.svc.EscalateBreaches(s.ctx)
	s.Require().NoError(err)
	s.Zero(escalated)
}

func (s *ServiceSuite) TestRotateKeysMigratesStoredFields() {
	plaintext := []byte("case ref 4412/B")
	artifact := s.create(workflow.TypeCertification, retention.BasisContract, map[string][]byte{
		"case_reference": plaintext,
	})

	migrated, failed, err := s.svc.RotateKeys(s.ctx)
	s.Require().NoError(err)
	s.Zero(migrated, "rotation not yet due")
	s.Zero(failed)

	s.now = s.now.Add(91 * 24 * time.Hour)
	migrated, failed, err = s.svc.RotateKeys(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, migrated)
	s.Zero(failed)

	stored, err := s.store.Get(s.ctx, s.tenant, artifact.ID)
	s.Require().NoError(err)
	s.Equal(uint32(2), stored.SensitiveFields["case_reference"].KeyGeneration)

	value, err := s.svc.RevealField(s.ctx, artifact.ID, "case_reference")
	s.Require().NoError(err)
	s.Equal(plaintext, value)
	s.Contains(s.ledgerActions(), ledger.ActionKeyRotated)
}

func (s *ServiceSuite) TestMarkEscalationUnresolvedIsSticky() {
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, nil)

	s.Require().NoError(s.svc.MarkEscalationUnresolved(s.ctx, s.tenant, artifact.ID))
	s.Require().NoError(s.svc.MarkEscalationUnresolved(s.ctx, s.tenant, artifact.ID))

	stored, err := s.store.Get(s.ctx, s.tenant, artifact.ID)
	s.Require().NoError(err)
	s.True(stored.EscalationUnresolved)
}

func (s *ServiceSuite) TestIsTerminalFollowsStatusTable() {
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, nil)

	terminal, err := s.svc.IsTerminal(s.ctx, s.tenant, artifact.ID)
	s.Require().NoError(err)
	s.False(terminal)

	_, err = s.svc.Transition(s.ctx, artifact.ID, workflow.StatusCancelled)
	s.Require().NoError(err)

	terminal, err = s.svc.IsTerminal(s.ctx, s.tenant, artifact.ID)
	s.Require().NoError(err)
	s.True(terminal)

	var unknown error
	_, unknown = s.svc.IsTerminal(s.ctx, s.tenant, domain.NewArtifactID())
	s.ErrorIs(unknown, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestRequestDeliverySchedulesAttempt() {
	artifact := s.create(workflow.TypeNotification, retention.BasisLegalObligation, nil)

	attempt, err := s.svc.RequestDelivery(s.ctx, artifact.ID, compliance.DeliveryInput{
		Channel:   dispatch.ChannelWebhook,
		Recipient: "https://hooks.example.com/regulator",
		Content:   "breach notice ready for submission",
	})
	s.Require().NoError(err)
	s.Equal(dispatch.AttemptQueued, attempt.Status)
	s.Equal("breach notice ready for submission", attempt.RenderedContent)
	s.Equal(artifact.ID, attempt.ArtifactID)

	attempts, err := s.attemptStore.ListByArtifact(s.ctx, artifact.ID)
	s.Require().NoError(err)
	s.Len(attempts, 1)
}

func (s *ServiceSuite) TestRequestDeliveryDefaultsContent() {
	artifact := s.create(workflow.TypeNotification, retention.BasisLegalObligation, nil)

	attempt, err := s.svc.RequestDelivery(s.ctx, artifact.ID, compliance.DeliveryInput{
		Channel:   dispatch.ChannelEmail,
		Recipient: "dpo@example.com",
	})
	s.Require().NoError(err)
	s.Contains(attempt.RenderedContent, artifact.ID.String())
}

func (s *ServiceSuite) TestRequestDeliveryRejectsUnknownChannel() {
	artifact := s.create(workflow.TypeNotification, retention.BasisLegalObligation, nil)

	_, err := s.svc.RequestDelivery(s.ctx, artifact.ID, compliance.DeliveryInput{
		Channel:   "carrier_pigeon",
		Recipient: "dpo@example.com",
	})
	s.Require().Error(err)
	s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))

	_, err = s.svc.RequestDelivery(s.ctx, artifact.ID, compliance.DeliveryInput{
		Channel: dispatch.ChannelEmail,
	})
	s.Require().Error(err)
	s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestDisposalPurgesDeliveryAttempts() {
	artifact := s.create(workflow.TypeAccessRequest, retention.BasisConsent, nil)

	_, err := s.svc.RequestDelivery(s.ctx, artifact.ID, compliance.DeliveryInput{
		Channel:   dispatch.ChannelEmail,
		Recipient: "compliance@example.com",
	})
	s.Require().NoError(err)

	s.now = s.now.Add(31 * 24 * time.Hour)
	s.Require().NoError(s.svc.DisposeArtifact(s.ctx, artifact.ID))

	attempts, err := s.attemptStore.ListByArtifact(s.ctx, artifact.ID)
	s.Require().NoError(err)
	s.Empty(attempts)
}
