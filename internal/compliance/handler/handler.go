// Package handler exposes the compliance API over HTTP. It translates wire
// requests into service calls and domain errors into status codes; business
// rules live in the service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Mawilis/legal-doc-system-sub010/internal/compliance"
	"github.com/Mawilis/legal-doc-system-sub010/internal/dispatch"
	"github.com/Mawilis/legal-doc-system-sub010/internal/fieldcrypt"
	"github.com/Mawilis/legal-doc-system-sub010/internal/ledger"
	"github.com/Mawilis/legal-doc-system-sub010/internal/platform/middleware"
	"github.com/Mawilis/legal-doc-system-sub010/internal/retention"
	"github.com/Mawilis/legal-doc-system-sub010/internal/transport/http/shared"
	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	dErrors "github.com/Mawilis/legal-doc-system-sub010/pkg/domain-errors"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/platform/sentinel"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/requestcontext"
)

// Handler handles artifact and ledger endpoints.
type Handler struct {
	service   *compliance.Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

// New creates the compliance Handler.
func New(service *compliance.Service, validator middleware.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		logger:    logger,
		validator: validator,
	}
}

// Register mounts the authenticated compliance routes.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.ClientMetadata)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.Timeout(30 * time.Second))
	api.Use(middleware.RequireAuth(h.validator, h.logger))

	api.Post("/artifacts", h.handleCreateArtifact)
	api.Get("/artifacts", h.handleListArtifacts)
	api.Get("/artifacts/{artifactID}", h.handleGetArtifact)
	api.Delete("/artifacts/{artifactID}", h.handleDisposeArtifact)
	api.Post("/artifacts/{artifactID}/transitions", h.handleTransition)
	api.Post("/artifacts/{artifactID}/deliveries", h.handleRequestDelivery)
	api.Get("/artifacts/{artifactID}/fields/{field}", h.handleRevealField)
	api.Put("/artifacts/{artifactID}/fields/{field}", h.handlePutField)
	api.Get("/ledger/verify", h.handleVerifyLedger)
	api.Delete("/ledger/entries", h.handlePurgeLedger)

	r.Mount("/", api)
}

type createArtifactRequest struct {
	Type       string            `json:"type"`
	LegalBasis string            `json:"legal_basis"`
	Sensitive  map[string]string `json:"sensitive,omitempty"`
}

type artifactResponse struct {
	ID                   string                      `json:"id"`
	Type                 string                      `json:"type"`
	Status               string                      `json:"status"`
	LegalBasis           string                      `json:"legal_basis"`
	CreatedAt            time.Time                   `json:"created_at"`
	StatusDeadline       *time.Time                  `json:"status_deadline,omitempty"`
	EscalationUnresolved bool                        `json:"escalation_unresolved"`
	Fields               []string                    `json:"fields"`
	History              []workflow.TransitionRecord `json:"history"`
}

func toArtifactResponse(a *workflow.Artifact) artifactResponse {
	fields := make([]string, 0, len(a.SensitiveFields))
	for name := range a.SensitiveFields {
		fields = append(fields, name)
	}
	return artifactResponse{
		ID:                   a.ID.String(),
		Type:                 string(a.Type),
		Status:               string(a.Status),
		LegalBasis:           string(a.LegalBasis),
		CreatedAt:            a.CreatedAt,
		StatusDeadline:       a.StatusDeadline,
		EscalationUnresolved: a.EscalationUnresolved,
		Fields:               fields,
		History:              a.History,
	}
}

func (h *Handler) handleCreateArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	sensitive := make(map[string][]byte, len(req.Sensitive))
	for name, value := range req.Sensitive {
		sensitive[name] = []byte(value)
	}

	artifact, err := h.service.CreateArtifact(ctx, compliance.CreateInput{
		Type:       workflow.ArtifactType(req.Type),
		LegalBasis: retention.LegalBasis(req.LegalBasis),
		Sensitive:  sensitive,
	})
	if err != nil {
		h.writeServiceError(w, r, "create artifact", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toArtifactResponse(artifact))
}

func (h *Handler) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.service.ListArtifacts(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list artifacts", err)
		return
	}
	out := make([]artifactResponse, len(artifacts))
	for i := range artifacts {
		out[i] = toArtifactResponse(&artifacts[i])
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.artifactID(w, r)
	if !ok {
		return
	}
	artifact, err := h.service.GetArtifact(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "get artifact", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toArtifactResponse(artifact))
}

type transitionRequest struct {
	To string `json:"to"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.artifactID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "target status is required"))
		return
	}
	artifact, err := h.service.Transition(r.Context(), id, workflow.Status(req.To))
	if err != nil {
		h.writeServiceError(w, r, "transition artifact", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toArtifactResponse(artifact))
}

func (h *Handler) handleRevealField(w http.ResponseWriter, r *http.Request) {
	id, ok := h.artifactID(w, r)
	if !ok {
		return
	}
	value, err := h.service.RevealField(r.Context(), id, chi.URLParam(r, "field"))
	if err != nil {
		h.writeServiceError(w, r, "reveal field", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"value": string(value)})
}

type putFieldRequest struct {
	Value string `json:"value"`
}

func (h *Handler) handlePutField(w http.ResponseWriter, r *http.Request) {
	id, ok := h.artifactID(w, r)
	if !ok {
		return
	}
	var req putFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.service.PutField(r.Context(), id, chi.URLParam(r, "field"), []byte(req.Value)); err != nil {
		h.writeServiceError(w, r, "put field", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deliveryRequest struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Content   string `json:"content,omitempty"`
}

type deliveryResponse struct {
	AttemptID   string    `json:"attempt_id"`
	Channel     string    `json:"channel"`
	Recipient   string    `json:"recipient"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (h *Handler) handleRequestDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := h.artifactID(w, r)
	if !ok {
		return
	}
	var req deliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	attempt, err := h.service.RequestDelivery(r.Context(), id, compliance.DeliveryInput{
		Channel:   dispatch.Channel(req.Channel),
		Recipient: req.Recipient,
		Content:   req.Content,
	})
	if err != nil {
		h.writeServiceError(w, r, "request delivery", err)
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, deliveryResponse{
		AttemptID:   attempt.ID.String(),
		Channel:     string(attempt.Channel),
		Recipient:   attempt.Recipient,
		Status:      string(attempt.Status),
		ScheduledAt: attempt.ScheduledAt,
	})
}

func (h *Handler) handleDisposeArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.artifactID(w, r)
	if !ok {
		return
	}
	if err := h.service.DisposeArtifact(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "dispose artifact", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type verifyResponse struct {
	Intact         bool    `json:"intact"`
	BrokenAtIndex  *uint64 `json:"broken_at_index,omitempty"`
	CheckedEntries int     `json:"checked_entries"`
}

func (h *Handler) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	from, err := parseIndex(r.URL.Query().Get("from"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid from index"))
		return
	}
	to, err := parseIndex(r.URL.Query().Get("to"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid to index"))
		return
	}

	result, err := h.service.VerifyLedger(r.Context(), from, to)
	if err != nil {
		h.writeServiceError(w, r, "verify ledger", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, verifyResponse{
		Intact:         result.Intact,
		BrokenAtIndex:  result.BrokenAtIndex,
		CheckedEntries: result.CheckedEntries,
	})
}

func (h *Handler) handlePurgeLedger(w http.ResponseWriter, r *http.Request) {
	before, err := time.Parse(time.RFC3339, r.URL.Query().Get("before"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "before must be an RFC 3339 timestamp"))
		return
	}
	basis := retention.LegalBasis(r.URL.Query().Get("basis"))
	if !retention.Known(basis) {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown legal basis"))
		return
	}
	removed, err := h.service.PurgeLedger(r.Context(), before, basis)
	if err != nil {
		h.writeServiceError(w, r, "purge ledger", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func parseIndex(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (h *Handler) artifactID(w http.ResponseWriter, r *http.Request) (domain.ArtifactID, bool) {
	id, err := domain.ParseArtifactID(chi.URLParam(r, "artifactID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid artifact id"))
		return domain.ArtifactID{}, false
	}
	return id, true
}

// writeServiceError translates service failures into coded responses, logging
// internals without leaking them to the caller.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()

	var (
		coded       *dErrors.Error
		illegal     *workflow.IllegalTransitionError
		scope       *workflow.TenantScopeError
		chainBroken *ledger.ChainBrokenError
	)
	switch {
	case errors.As(err, &coded):
		shared.WriteError(w, coded)
	case errors.As(err, &illegal):
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeIllegalTransition, illegal.Error(), err))
	case errors.As(err, &scope):
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeTenantScope, "artifact belongs to another tenant", err))
	case errors.As(err, &chainBroken):
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeChainBroken, chainBroken.Error(), err))
	case errors.Is(err, fieldcrypt.ErrDecryption):
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeIntegrity, "stored field failed integrity verification", err))
	case errors.Is(err, retention.ErrLegalHold):
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeLegalHold, "artifact is under litigation hold", err))
	case errors.Is(err, retention.ErrRetentionViolation):
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeRetentionViolation, "retention window has not elapsed", err))
	case errors.Is(err, sentinel.ErrNotFound):
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeNotFound, "artifact not found", err))
	case errors.Is(err, sentinel.ErrConflict):
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeConflict, "conflicting write", err))
	default:
		h.logger.ErrorContext(ctx, op+" failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, op+" failed", err))
	}
}
