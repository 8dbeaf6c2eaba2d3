// Package handler is the thin HTTP layer over the registry service. It
// decodes and validates wire input, delegates to the service, and translates
// domain errors into the JSON error envelope. No business logic lives here.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attestry/internal/registry/models"
	"attestry/internal/registry/service"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register wires the public, unauthenticated routes: every read surface is
// open because registry state is public by design.
func (h *Handler) Register(r chi.Router) {
	r.Get("/schemas/{schemaID}", h.handleGetSchema)
	r.Get("/attestations/{attestationID}", h.handleGetAttestation)
	r.Get("/attestations/{attestationID}/verify", h.handleVerify)
	r.Get("/nonces/{principal}", h.handleGetNonce)
	r.Get("/version", h.handleVersion)
}

// RegisterProtected wires the mutating routes. The caller must mount these
// behind the auth middleware; handlers still rely on the service's
// authorizer for the principal comparison.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/schemas", h.handleCreateSchema)
	r.Post("/attestations", h.handleAttest)
	r.Post("/attestations/{attestationID}/revoke", h.handleRevoke)
}

type createSchemaRequest struct {
	Creator        string `json:"creator"`
	SchemaURIHash  string `json:"schema_uri_hash"`
	Revocable      bool   `json:"revocable"`
	ExpiresAllowed bool   `json:"expires_allowed"`
	AttesterMode   uint32 `json:"attester_mode"`
}

type createSchemaResponse struct {
	SchemaID string `json:"schema_id"`
}

func (h *Handler) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	var req createSchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeInvalidInput, "body_not_json"))
		return
	}
	creator, err := domain.ParsePrincipal(req.Creator)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	uriHash, err := domain.ParseHash32(req.SchemaURIHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	schemaID, err := h.svc.CreateSchema(r.Context(), creator, uriHash,
		req.Revocable, req.ExpiresAllowed, models.AttesterMode(req.AttesterMode))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createSchemaResponse{SchemaID: schemaID.String()})
}

type schemaResponse struct {
	SchemaID       string `json:"schema_id"`
	Creator        string `json:"creator"`
	SchemaURIHash  string `json:"schema_uri_hash"`
	Revocable      bool   `json:"revocable"`
	ExpiresAllowed bool   `json:"expires_allowed"`
	AttesterMode   uint32 `json:"attester_mode"`
}

func (h *Handler) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	schemaID, err := domain.ParseHash32(chi.URLParam(r, "schemaID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	schema, err := h.svc.GetSchema(r.Context(), schemaID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, schemaResponse{
		SchemaID:       schema.ID().String(),
		Creator:        string(schema.Creator),
		SchemaURIHash:  schema.SchemaURIHash.String(),
		Revocable:      schema.Revocable,
		ExpiresAllowed: schema.ExpiresAllowed,
		AttesterMode:   uint32(schema.AttesterMode),
	})
}

type attestRequest struct {
	Attester   string  `json:"attester"`
	SchemaID   string  `json:"schema_id"`
	Subject    string  `json:"subject"`
	DataHash   string  `json:"data_hash"`
	Expiration *uint64 `json:"expiration,omitempty"`
	Nonce      uint64  `json:"nonce"`
}

type attestResponse struct {
	AttestationID string `json:"attestation_id"`
}

func (h *Handler) handleAttest(w http.ResponseWriter, r *http.Request) {
	var req attestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeInvalidInput, "body_not_json"))
		return
	}
	attester, err := domain.ParsePrincipal(req.Attester)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	subject, err := domain.ParsePrincipal(req.Subject)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	schemaID, err := domain.ParseHash32(req.SchemaID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dataHash, err := domain.ParseHash32(req.DataHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	attestationID, err := h.svc.Attest(r.Context(), attester, schemaID, subject,
		dataHash, req.Expiration, req.Nonce)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, attestResponse{AttestationID: attestationID.String()})
}

type attestationResponse struct {
	AttestationID string  `json:"attestation_id"`
	SchemaID      string  `json:"schema_id"`
	Attester      string  `json:"attester"`
	Subject       string  `json:"subject"`
	DataHash      string  `json:"data_hash"`
	Timestamp     uint64  `json:"timestamp"`
	Expiration    *uint64 `json:"expiration,omitempty"`
	Revoked       bool    `json:"revoked"`
}

func (h *Handler) handleGetAttestation(w http.ResponseWriter, r *http.Request) {
	attestationID, err := domain.ParseHash32(chi.URLParam(r, "attestationID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	att, err := h.svc.GetAttestation(r.Context(), attestationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, attestationResponse{
		AttestationID: attestationID.String(),
		SchemaID:      att.SchemaID.String(),
		Attester:      string(att.Attester),
		Subject:       string(att.Subject),
		DataHash:      att.DataHash.String(),
		Timestamp:     att.Timestamp,
		Expiration:    att.Expiration,
		Revoked:       att.Revoked,
	})
}

type verifyResponse struct {
	Exists        bool    `json:"exists"`
	Valid         bool    `json:"valid"`
	Revoked       bool    `json:"revoked"`
	Expired       bool    `json:"expired"`
	AttestationID string  `json:"attestation_id"`
	SchemaID      string  `json:"schema_id"`
	Attester      string  `json:"attester"`
	Subject       string  `json:"subject"`
	DataHash      string  `json:"data_hash"`
	Timestamp     uint64  `json:"timestamp"`
	Expiration    *uint64 `json:"expiration,omitempty"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	attestationID, err := domain.ParseHash32(chi.URLParam(r, "attestationID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.svc.Verify(r.Context(), attestationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if result == nil {
		// Absence is structural: no populated "not found" result exists.
		h.writeError(w, r, dErrors.New(dErrors.CodeNotFound, models.ReasonAttestationNotFound))
		return
	}
	h.writeJSON(w, http.StatusOK, verifyResponse{
		Exists:        result.Exists,
		Valid:         result.Valid,
		Revoked:       result.Revoked,
		Expired:       result.Expired,
		AttestationID: attestationID.String(),
		SchemaID:      result.SchemaID.String(),
		Attester:      string(result.Attester),
		Subject:       string(result.Subject),
		DataHash:      result.DataHash.String(),
		Timestamp:     result.Timestamp,
		Expiration:    result.Expiration,
	})
}

type revokeRequest struct {
	Revoker string `json:"revoker"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	attestationID, err := domain.ParseHash32(chi.URLParam(r, "attestationID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeInvalidInput, "body_not_json"))
		return
	}
	revoker, err := domain.ParsePrincipal(req.Revoker)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.RevokeBy(r.Context(), revoker, attestationID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type nonceResponse struct {
	Attester string `json:"attester"`
	Nonce    uint64 `json:"nonce"`
}

func (h *Handler) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	attester, err := domain.ParsePrincipal(chi.URLParam(r, "principal"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	nonce, err := h.svc.GetNonce(r.Context(), attester)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonceResponse{Attester: string(attester), Nonce: nonce})
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"version": service.Version})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError centralizes domain error translation to HTTP responses so every
// handler emits the same JSON error envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	message := ""
	var de *dErrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
		)
		message = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(code),
		"message": message,
	})
}
