package handler_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Mawilis/legal-doc-system-sub010/internal/compliance"
	compliancehandler "github.com/Mawilis/legal-doc-system-sub010/internal/compliance/handler"
	"github.com/Mawilis/legal-doc-system-sub010/internal/dispatch"
	"github.com/Mawilis/legal-doc-system-sub010/internal/fieldcrypt"
	jwttoken "github.com/Mawilis/legal-doc-system-sub010/internal/jwt_token"
	"github.com/Mawilis/legal-doc-system-sub010/internal/ledger"
	httptransport "github.com/Mawilis/legal-doc-system-sub010/internal/transport/http"
	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/testutil"
)

type artifactResponse struct {
	ID                   string     `json:"id"`
	Type                 string     `json:"type"`
	Status               string     `json:"status"`
	LegalBasis           string     `json:"legal_basis"`
	StatusDeadline       *time.Time `json:"status_deadline"`
	EscalationUnresolved bool       `json:"escalation_unresolved"`
	Fields               []string   `json:"fields"`
}

type HandlerSuite struct {
	suite.Suite
	router http.Handler
	store  *compliance.InMemoryStore
	tokens *jwttoken.JWTService
	tenant domain.TenantID
	actor  domain.ActorID
	token  string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	log := slog.New(slog.DiscardHandler)
	ledgerSvc := ledger.NewService(ledger.NewInMemoryStore(), log)

	keyring, err := fieldcrypt.NewKeyring(bytes.Repeat([]byte{0x11}, 32), 90*24*time.Hour, time.Now())
	s.Require().NoError(err)
	fields := fieldcrypt.NewService(keyring, log)

	s.store = compliance.NewInMemoryStore()
	service := compliance.NewService(s.store, workflow.NewEngine(nil), fields, ledgerSvc, log)
	service.SetDispatcher(dispatch.New(dispatch.NewInMemoryStore(), ledgerSvc, service, dispatch.Config{
		SystemActor: domain.SystemActorID,
	}, log))
	s.tokens = jwttoken.NewJWTService([]byte("handler-test-signing-key"), "compliance-ledger", "ledger-api")
	s.router = httptransport.NewRouter(compliancehandler.New(service, s.tokens, log))

	s.tenant = domain.NewTenantID()
	s.actor = domain.NewActorID()
	s.token, err = s.tokens.GenerateAccessToken(s.tenant, s.actor, time.Hour)
	s.Require().NoError(err)
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.WithBearer(req, s.token))
}

func (s *HandlerSuite) createArtifact(body map[string]any) artifactResponse {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/artifacts", body)
	rr := s.do(req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[artifactResponse](s.T(), rr)
}

func (s *HandlerSuite) TestHealthzIsOpen() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestMissingTokenIsUnauthorized() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/artifacts")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestCreateAndFetchArtifact() {
	created := s.createArtifact(map[string]any{
		"type":        "access_request",
		"legal_basis": "consent",
		"sensitive":   map[string]string{"subject_email": "ada@example.com"},
	})
	s.Equal("draft", created.Status)
	s.Contains(created.Fields, "subject_email")

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/artifacts/"+created.ID))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	fetched := testutil.UnmarshalResponse[artifactResponse](s.T(), rr)
	s.Equal(created.ID, fetched.ID)
}

func (s *HandlerSuite) TestTransitionSetsDeadline() {
	created := s.createArtifact(map[string]any{
		"type":        "access_request",
		"legal_basis": "consent",
	})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/artifacts/"+created.ID+"/transitions",
		map[string]string{"to": "submitted"})
	rr := s.do(req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	updated := testutil.UnmarshalResponse[artifactResponse](s.T(), rr)
	s.Equal("submitted", updated.Status)
	s.NotNil(updated.StatusDeadline)
}

func (s *HandlerSuite) TestIllegalTransitionIsConflict() {
	created := s.createArtifact(map[string]any{
		"type":        "access_request",
		"legal_basis": "consent",
	})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/artifacts/"+created.ID+"/transitions",
		map[string]string{"to": "completed"})
	rr := s.do(req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "illegal_transition")
}

func (s *HandlerSuite) TestFieldRoundTrip() {
	created := s.createArtifact(map[string]any{
		"type":        "access_request",
		"legal_basis": "consent",
	})

	put := testutil.NewJSONRequest(s.T(), http.MethodPut, "/artifacts/"+created.ID+"/fields/subject_email",
		map[string]string{"value": "ada@example.com"})
	testutil.AssertStatus(s.T(), s.do(put), http.StatusNoContent)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/artifacts/"+created.ID+"/fields/subject_email"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := testutil.UnmarshalResponse[map[string]string](s.T(), rr)
	s.Equal("ada@example.com", (*body)["value"])
}

func (s *HandlerSuite) TestDisposeInsideRetentionWindowIsRefused() {
	created := s.createArtifact(map[string]any{
		"type":        "access_request",
		"legal_basis": "consent",
	})

	rr := s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/artifacts/"+created.ID))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "retention_violation")
}

func (s *HandlerSuite) TestCrossTenantTokenCannotSeeArtifact() {
	created := s.createArtifact(map[string]any{
		"type":        "access_request",
		"legal_basis": "consent",
	})

	otherToken, err := s.tokens.GenerateAccessToken(domain.NewTenantID(), domain.NewActorID(), time.Hour)
	s.Require().NoError(err)

	req := testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodGet, "/artifacts/"+created.ID), otherToken)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestVerifyLedgerReportsIntactChain() {
	s.createArtifact(map[string]any{
		"type":        "access_request",
		"legal_basis": "consent",
	})

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/ledger/verify"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	type verifyResponse struct {
		Intact         bool `json:"intact"`
		CheckedEntries int  `json:"checked_entries"`
	}
	result := testutil.UnmarshalResponse[verifyResponse](s.T(), rr)
	s.True(result.Intact)
	s.Equal(1, result.CheckedEntries)
}

func (s *HandlerSuite) TestInvalidArtifactIDIsBadRequest() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/artifacts/not-a-uuid"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestRequestDeliveryQueuesAttempt() {
	created := s.createArtifact(map[string]any{
		"type":        "notification",
		"legal_basis": "legal_obligation",
	})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/artifacts/"+created.ID+"/deliveries",
		map[string]string{
			"channel":   "email",
			"recipient": "dpo@example.com",
			"content":   "regulator notice ready",
		})
	rr := s.do(req)
	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)

	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal("queued", (*resp)["status"])
	s.Equal("dpo@example.com", (*resp)["recipient"])
	s.NotEmpty((*resp)["attempt_id"])
}

func (s *HandlerSuite) TestRequestDeliveryUnknownChannelIsBadRequest() {
	created := s.createArtifact(map[string]any{
		"type":        "notification",
		"legal_basis": "legal_obligation",
	})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/artifacts/"+created.ID+"/deliveries",
		map[string]string{"channel": "fax", "recipient": "dpo@example.com"})
	rr := s.do(req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestPurgeLedgerInsideRetentionWindowIsRefused() {
	s.createArtifact(map[string]any{
		"type":        "access_request",
		"legal_basis": "consent",
	})

	cutoff := time.Now().UTC().Format(time.RFC3339)
	req := testutil.NewRequest(s.T(), http.MethodDelete, "/ledger/entries?before="+cutoff+"&basis=consent")
	rr := s.do(req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "retention_violation")
}

func (s *HandlerSuite) TestPurgeLedgerOutsideWindowReportsRemovals() {
	cutoff := time.Now().UTC().Add(-60 * 24 * time.Hour).Format(time.RFC3339)
	req := testutil.NewRequest(s.T(), http.MethodDelete, "/ledger/entries?before="+cutoff+"&basis=consent")
	rr := s.do(req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[map[string]int](s.T(), rr)
	s.Equal(0, (*resp)["removed"])
}

func (s *HandlerSuite) TestPurgeLedgerUnknownBasisIsBadRequest() {
	req := testutil.NewRequest(s.T(), http.MethodDelete, "/ledger/entries?before=2026-01-01T00:00:00Z&basis=vibes")
	rr := s.do(req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestCorruptedFieldIsIntegrityFailure() {
	created := s.createArtifact(map[string]any{
		"type":        "access_request",
		"legal_basis": "consent",
		"sensitive":   map[string]string{"subject_email": "ada@example.com"},
	})

	id, err := domain.ParseArtifactID(created.ID)
	s.Require().NoError(err)
	artifact, err := s.store.Get(context.Background(), s.tenant, id)
	s.Require().NoError(err)
	field := artifact.SensitiveFields["subject_email"]
	field.CipherText[0] ^= 0xff
	artifact.SensitiveFields["subject_email"] = field
	s.Require().NoError(s.store.Update(context.Background(), artifact))

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/artifacts/"+created.ID+"/fields/subject_email"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "integrity_failure")
}
