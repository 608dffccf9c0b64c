package dispatch_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/Mawilis/legal-doc-system-sub010/internal/dispatch"
	"github.com/Mawilis/legal-doc-system-sub010/internal/dispatch/mocks"
	"github.com/Mawilis/legal-doc-system-sub010/internal/ledger"
	"github.com/Mawilis/legal-doc-system-sub010/internal/retention"
	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

type DispatcherSuite struct {
	suite.Suite
	ctx         context.Context
	ctrl        *gomock.Controller
	store       *dispatch.InMemoryStore
	ledgerStore *ledger.InMemoryStore
	ledgerSvc   *ledger.Service
	parents     *mocks.MockParentState
	dispatcher  *dispatch.Dispatcher
	artifact    *workflow.Artifact
	now         time.Time
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.now = time.Date(2026, 4, 7, 10, 0, 0, 0, time.UTC)

	s.store = dispatch.NewInMemoryStore()
	s.ledgerStore = ledger.NewInMemoryStore()
	s.ledgerSvc = ledger.NewService(s.ledgerStore, slog.New(slog.DiscardHandler))
	s.parents = mocks.NewMockParentState(s.ctrl)

	s.dispatcher = dispatch.New(
		s.store,
		s.ledgerSvc,
		s.parents,
		dispatch.Config{
			MaxRetries:  3,
			BackoffBase: 30 * time.Second,
			SystemActor: domain.NewActorID(),
		},
		slog.New(slog.DiscardHandler),
		dispatch.WithClock(func() time.Time { return s.now }),
		dispatch.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)

	artifact, err := workflow.NewArtifact(domain.NewTenantID(), workflow.TypeNotification, retention.BasisLegalObligation, s.now)
	s.Require().NoError(err)
	s.artifact = artifact
}

func (s *DispatcherSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DispatcherSuite) schedule(deliveries ...dispatch.Delivery) []dispatch.Attempt {
	attempts, err := s.dispatcher.ScheduleDelivery(s.ctx, s.artifact, deliveries)
	s.Require().NoError(err)
	return attempts
}

func (s *DispatcherSuite) ledgerActions() []ledger.Action {
	entries, err := s.ledgerStore.Range(s.ctx, s.artifact.TenantID, 1, 0)
	s.Require().NoError(err)
	actions := make([]ledger.Action, len(entries))
	for i, entry := range entries {
		actions[i] = entry.Action
	}
	return actions
}

func (s *DispatcherSuite) TestScheduleOrdersByChannelPriority() {
	attempts := s.schedule(
		dispatch.Delivery{Channel: dispatch.ChannelWebhook, Recipient: "https://hook.example.com"},
		dispatch.Delivery{Channel: dispatch.ChannelEmail, Recipient: "dpo@example.com"},
		dispatch.Delivery{Channel: dispatch.ChannelSMS, Recipient: "+15550001111"},
	)

	s.Require().Len(attempts, 3)
	s.Equal(dispatch.ChannelEmail, attempts[0].Channel)
	s.Equal(dispatch.ChannelSMS, attempts[1].Channel)
	s.Equal(dispatch.ChannelWebhook, attempts[2].Channel)
	for _, attempt := range attempts {
		s.Equal(dispatch.AttemptQueued, attempt.Status)
		s.Equal(1, attempt.AttemptNumber)
		s.Equal(s.now, attempt.ScheduledAt)
	}
	s.Equal([]ledger.Action{
		ledger.ActionDeliveryQueued,
		ledger.ActionDeliveryQueued,
		ledger.ActionDeliveryQueued,
	}, s.ledgerActions())
}

func (s *DispatcherSuite) TestScheduleRequiresDelivery() {
	_, err := s.dispatcher.ScheduleDelivery(s.ctx, s.artifact, nil)
	s.Error(err)
}

func (s *DispatcherSuite) TestSuccessfulDelivery() {
	s.parents.EXPECT().IsTerminal(gomock.Any(), s.artifact.TenantID, s.artifact.ID).Return(false, nil)

	attempt := s.schedule(dispatch.Delivery{Channel: dispatch.ChannelEmail, Recipient: "dpo@example.com"})[0]

	proceed, err := s.dispatcher.BeginSend(s.ctx, &attempt)
	s.Require().NoError(err)
	s.True(proceed)
	s.Equal(dispatch.AttemptSending, attempt.Status)

	err = s.dispatcher.RecordResult(s.ctx, &attempt, dispatch.Result{Success: true, ProviderRef: "msg-42"})
	s.Require().NoError(err)
	s.Equal(dispatch.AttemptDelivered, attempt.Status)
	s.Equal("msg-42", attempt.ProviderRef)
	s.Require().NotNil(attempt.CompletedAt)

	s.Equal([]ledger.Action{
		ledger.ActionDeliveryQueued,
		ledger.ActionDeliverySending,
		ledger.ActionDeliveryDelivered,
	}, s.ledgerActions())
}

func (s *DispatcherSuite) TestBeginSendIdempotentOnReplay() {
	s.parents.EXPECT().IsTerminal(gomock.Any(), s.artifact.TenantID, s.artifact.ID).Return(false, nil)

	attempt := s.schedule(dispatch.Delivery{Channel: dispatch.ChannelEmail, Recipient: "dpo@example.com"})[0]

	proceed, err := s.dispatcher.BeginSend(s.ctx, &attempt)
	s.Require().NoError(err)
	s.True(proceed)

	// A second sweep picking up the same attempt must not move it again.
	replay := attempt
	proceed, err = s.dispatcher.BeginSend(s.ctx, &replay)
	s.Require().NoError(err)
	s.False(proceed)

	s.Equal([]ledger.Action{
		ledger.ActionDeliveryQueued,
		ledger.ActionDeliverySending,
	}, s.ledgerActions())
}

func (s *DispatcherSuite) TestRecordResultIdempotentAfterCompletion() {
	s.parents.EXPECT().IsTerminal(gomock.Any(), s.artifact.TenantID, s.artifact.ID).Return(false, nil)

	attempt := s.schedule(dispatch.Delivery{Channel: dispatch.ChannelEmail, Recipient: "dpo@example.com"})[0]
	_, err := s.dispatcher.BeginSend(s.ctx, &attempt)
	s.Require().NoError(err)
	s.Require().NoError(s.dispatcher.RecordResult(s.ctx, &attempt, dispatch.Result{Success: true}))

	// Delivered is final; a duplicate provider callback changes nothing.
	s.Require().NoError(s.dispatcher.RecordResult(s.ctx, &attempt, dispatch.Result{Success: false, Err: "late duplicate"}))

	stored, err := s.store.Get(s.ctx, attempt.ID)
	s.Require().NoError(err)
	s.Equal(dispatch.AttemptDelivered, stored.Status)
}

func (s *DispatcherSuite) TestTerminalParentSkipsOutstandingAttempt() {
	s.parents.EXPECT().IsTerminal(gomock.Any(), s.artifact.TenantID, s.artifact.ID).Return(true, nil)

	attempt := s.schedule(dispatch.Delivery{Channel: dispatch.ChannelEmail, Recipient: "dpo@example.com"})[0]

	proceed, err := s.dispatcher.BeginSend(s.ctx, &attempt)
	s.Require().NoError(err)
	s.False(proceed)
	s.Equal(dispatch.AttemptFailed, attempt.Status)
	s.Contains(attempt.ErrorReason, "terminal")

	s.Equal([]ledger.Action{
		ledger.ActionDeliveryQueued,
		ledger.ActionDeliveryFailed,
	}, s.ledgerActions())
}

func (s *DispatcherSuite) TestFailureSchedulesRetryWithBackoff() {
	s.parents.EXPECT().IsTerminal(gomock.Any(), s.artifact.TenantID, s.artifact.ID).Return(false, nil).Times(2)

	attempt := s.schedule(dispatch.Delivery{Channel: dispatch.ChannelSMS, Recipient: "+15550001111", RenderedContent: "breach notice"})[0]

	_, err := s.dispatcher.BeginSend(s.ctx, &attempt)
	s.Require().NoError(err)
	s.Require().NoError(s.dispatcher.RecordResult(s.ctx, &attempt, dispatch.Result{Success: false, Err: "gateway timeout"}))
	s.Equal(dispatch.AttemptFailed, attempt.Status)
	s.Equal("gateway timeout", attempt.ErrorReason)

	due, err := s.store.Due(s.ctx, s.now.Add(30*time.Second), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)

	retry := due[0]
	s.Equal(dispatch.AttemptRetrying, retry.Status)
	s.Equal(2, retry.AttemptNumber)
	s.Equal(s.now.Add(30*time.Second), retry.ScheduledAt)
	s.Equal("+15550001111", retry.Recipient)
	s.Equal("breach notice", retry.RenderedContent)

	// Second failure doubles the delay: 30s << 1 = 60s.
	s.now = retry.ScheduledAt
	_, err = s.dispatcher.BeginSend(s.ctx, &retry)
	s.Require().NoError(err)
	s.Require().NoError(s.dispatcher.RecordResult(s.ctx, &retry, dispatch.Result{Success: false, Err: "gateway timeout"}))

	due, err = s.store.Due(s.ctx, s.now.Add(time.Hour), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(3, due[0].AttemptNumber)
	s.Equal(s.now.Add(60*time.Second), due[0].ScheduledAt)
}

func (s *DispatcherSuite) TestExhaustionMarksEscalationUnresolved() {
	s.parents.EXPECT().IsTerminal(gomock.Any(), s.artifact.TenantID, s.artifact.ID).Return(false, nil).Times(3)
	s.parents.EXPECT().MarkEscalationUnresolved(gomock.Any(), s.artifact.TenantID, s.artifact.ID).Return(nil)

	attempt := s.schedule(dispatch.Delivery{Channel: dispatch.ChannelEmail, Recipient: "dpo@example.com"})[0]

	// Fail three times with three retries configured.
	for i := 0; i < 3; i++ {
		due, err := s.store.Due(s.ctx, s.now, 10)
		s.Require().NoError(err)
		s.Require().Len(due, 1)
		attempt = due[0]

		_, err = s.dispatcher.BeginSend(s.ctx, &attempt)
		s.Require().NoError(err)
		err = s.dispatcher.RecordResult(s.ctx, &attempt, dispatch.Result{Success: false, Err: "mailbox unavailable"})
		if i < 2 {
			s.Require().NoError(err)
			s.now = s.now.Add(time.Hour)
			continue
		}
		s.Require().ErrorIs(err, dispatch.ErrDeliveryExhausted)
	}

	actions := s.ledgerActions()
	s.Equal(ledger.ActionEscalationUnresolved, actions[len(actions)-1])

	attempts, err := s.store.ListByArtifact(s.ctx, s.artifact.ID)
	s.Require().NoError(err)
	s.Len(attempts, 3)
	for _, a := range attempts {
		s.Equal(dispatch.AttemptFailed, a.Status)
	}
}

func (s *DispatcherSuite) TestSweepProcessesDueAttempts() {
	s.parents.EXPECT().IsTerminal(gomock.Any(), s.artifact.TenantID, s.artifact.ID).Return(false, nil)

	provider := mocks.NewMockProvider(s.ctrl)
	provider.EXPECT().
		Send(gomock.Any(), dispatch.Delivery{
			Channel:         dispatch.ChannelEmail,
			Recipient:       "dpo@example.com",
			RenderedContent: "certification due",
		}).
		Return(dispatch.Result{Success: true, ProviderRef: "msg-7"}, nil)

	attempt := s.schedule(dispatch.Delivery{
		Channel:         dispatch.ChannelEmail,
		Recipient:       "dpo@example.com",
		RenderedContent: "certification due",
	})[0]

	sweeper := dispatch.NewSweeper(s.dispatcher, map[dispatch.Channel]dispatch.Provider{
		dispatch.ChannelEmail: provider,
	}, slog.New(slog.DiscardHandler))
	s.Require().NoError(sweeper.SweepOnce(s.ctx))

	stored, err := s.store.Get(s.ctx, attempt.ID)
	s.Require().NoError(err)
	s.Equal(dispatch.AttemptDelivered, stored.Status)
	s.Equal("msg-7", stored.ProviderRef)
}

func (s *DispatcherSuite) TestSweepTreatsTransportErrorAsFailure() {
	s.parents.EXPECT().IsTerminal(gomock.Any(), s.artifact.TenantID, s.artifact.ID).Return(false, nil)

	provider := mocks.NewMockProvider(s.ctrl)
	provider.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return(dispatch.Result{}, errors.New("connection refused"))

	attempt := s.schedule(dispatch.Delivery{Channel: dispatch.ChannelEmail, Recipient: "dpo@example.com"})[0]

	sweeper := dispatch.NewSweeper(s.dispatcher, map[dispatch.Channel]dispatch.Provider{
		dispatch.ChannelEmail: provider,
	}, slog.New(slog.DiscardHandler))
	s.Require().NoError(sweeper.SweepOnce(s.ctx))

	stored, err := s.store.Get(s.ctx, attempt.ID)
	s.Require().NoError(err)
	s.Equal(dispatch.AttemptFailed, stored.Status)
	s.Equal("connection refused", stored.ErrorReason)

	attempts, err := s.store.ListByArtifact(s.ctx, s.artifact.ID)
	s.Require().NoError(err)
	s.Len(attempts, 2) // failed original plus the scheduled retry
}
