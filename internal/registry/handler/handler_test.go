package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"attestry/internal/jwtauth"
	"attestry/internal/platform/middleware"
	"attestry/internal/registry/clock"
	"attestry/internal/registry/service"
	"attestry/internal/registry/store"
)

const testSigningKey = "test-signing-key-for-handler-tests"

type HandlerSuite struct {
	suite.Suite
	router *chi.Mux
	clock  *clock.Manual
	jwt    *jwtauth.Service
}

func (s *HandlerSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewInMemory()
	s.clock = clock.NewManual(100)
	svc := service.New(mem, mem, s.clock, service.NewContextAuthorizer(), service.WithLogger(log))
	h := New(svc, log)

	s.jwt = jwtauth.NewService(testSigningKey, "attestry", "attestry-registry")
	validator := jwtauth.NewMiddlewareAdapter(s.jwt)

	s.router = chi.NewRouter()
	h.Register(s.router)
	s.router.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireAuth(validator, log))
		h.RegisterProtected(protected)
	})
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func hexHash(fill byte) string {
	return strings.Repeat(fmt.Sprintf("%02x", fill), 32)
}

// do issues a request as the given principal. An empty principal sends no
// Authorization header.
func (s *HandlerSuite) do(method, path, principal string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if principal != "" {
		token, err := s.jwt.GenerateToken(principal, time.Hour)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, into any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(into))
}

func (s *HandlerSuite) createSchema(creator string, revocable bool) string {
	rec := s.do(http.MethodPost, "/schemas", creator, map[string]any{
		"creator":         creator,
		"schema_uri_hash": hexHash(1),
		"revocable":       revocable,
		"attester_mode":   0,
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		SchemaID string `json:"schema_id"`
	}
	s.decode(rec, &resp)
	return resp.SchemaID
}

func (s *HandlerSuite) attest(attester, schemaID string, nonce uint64) string {
	rec := s.do(http.MethodPost, "/attestations", attester, map[string]any{
		"attester":  attester,
		"schema_id": schemaID,
		"subject":   "bob",
		"data_hash": hexHash(2),
		"nonce":     nonce,
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		AttestationID string `json:"attestation_id"`
	}
	s.decode(rec, &resp)
	return resp.AttestationID
}

func (s *HandlerSuite) TestCreateSchema() {
	s.Run("created with the supplied hash as id", func() {
		id := s.createSchema("alice", true)
		s.Equal(hexHash(1), id)
	})

	s.Run("duplicate conflicts", func() {
		rec := s.do(http.MethodPost, "/schemas", "alice", map[string]any{
			"creator":         "alice",
			"schema_uri_hash": hexHash(1),
		})
		s.Equal(http.StatusConflict, rec.Code)
		var resp map[string]string
		s.decode(rec, &resp)
		s.Equal("conflict", resp["error"])
		s.Equal("schema_already_exists", resp["message"])
	})

	s.Run("malformed hash rejected", func() {
		rec := s.do(http.MethodPost, "/schemas", "alice", map[string]any{
			"creator":         "alice",
			"schema_uri_hash": "not-hex",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("undefined attester mode rejected", func() {
		rec := s.do(http.MethodPost, "/schemas", "alice", map[string]any{
			"creator":         "alice",
			"schema_uri_hash": hexHash(3),
			"attester_mode":   5,
		})
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *HandlerSuite) TestGetSchema() {
	id := s.createSchema("alice", true)

	rec := s.do(http.MethodGet, "/schemas/"+id, "", nil)
	s.Equal(http.StatusOK, rec.Code)
	var resp struct {
		SchemaID     string `json:"schema_id"`
		Creator      string `json:"creator"`
		Revocable    bool   `json:"revocable"`
		AttesterMode uint32 `json:"attester_mode"`
	}
	s.decode(rec, &resp)
	s.Equal(id, resp.SchemaID)
	s.Equal("alice", resp.Creator)
	s.True(resp.Revocable)

	rec = s.do(http.MethodGet, "/schemas/"+hexHash(9), "", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestAuthRequired() {
	s.Run("no token", func() {
		rec := s.do(http.MethodPost, "/schemas", "", map[string]any{
			"creator":         "alice",
			"schema_uri_hash": hexHash(1),
		})
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("token for a different principal", func() {
		rec := s.do(http.MethodPost, "/schemas", "mallory", map[string]any{
			"creator":         "alice",
			"schema_uri_hash": hexHash(1),
		})
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("reads stay public", func() {
		rec := s.do(http.MethodGet, "/nonces/alice", "", nil)
		s.Equal(http.StatusOK, rec.Code)
	})
}

func (s *HandlerSuite) TestAttestAndVerify() {
	schemaID := s.createSchema("alice", true)
	attID := s.attest("alice", schemaID, 1)

	s.Run("verify reports valid", func() {
		rec := s.do(http.MethodGet, "/attestations/"+attID+"/verify", "", nil)
		s.Equal(http.StatusOK, rec.Code)
		var resp struct {
			Exists  bool   `json:"exists"`
			Valid   bool   `json:"valid"`
			Revoked bool   `json:"revoked"`
			Expired bool   `json:"expired"`
			Subject string `json:"subject"`
		}
		s.decode(rec, &resp)
		s.True(resp.Exists)
		s.True(resp.Valid)
		s.False(resp.Revoked)
		s.False(resp.Expired)
		s.Equal("bob", resp.Subject)
	})

	s.Run("verify unknown id is 404", func() {
		rec := s.do(http.MethodGet, "/attestations/"+hexHash(9)+"/verify", "", nil)
		s.Equal(http.StatusNotFound, rec.Code)
		var resp map[string]string
		s.decode(rec, &resp)
		s.Equal("attestation_not_found", resp["message"])
	})

	s.Run("nonce advanced", func() {
		rec := s.do(http.MethodGet, "/nonces/alice", "", nil)
		s.Equal(http.StatusOK, rec.Code)
		var resp struct {
			Nonce uint64 `json:"nonce"`
		}
		s.decode(rec, &resp)
		s.Equal(uint64(1), resp.Nonce)
	})

	s.Run("replayed nonce is 409", func() {
		rec := s.do(http.MethodPost, "/attestations", "alice", map[string]any{
			"attester":  "alice",
			"schema_id": schemaID,
			"subject":   "bob",
			"data_hash": hexHash(2),
			"nonce":     1,
		})
		s.Equal(http.StatusConflict, rec.Code)
		var resp map[string]string
		s.decode(rec, &resp)
		s.Equal("sequencing_violation", resp["error"])
		s.Equal("bad_nonce", resp["message"])
	})

	s.Run("raw record fetch", func() {
		rec := s.do(http.MethodGet, "/attestations/"+attID, "", nil)
		s.Equal(http.StatusOK, rec.Code)
		var resp struct {
			AttestationID string `json:"attestation_id"`
			SchemaID      string `json:"schema_id"`
			Timestamp     uint64 `json:"timestamp"`
			Revoked       bool   `json:"revoked"`
		}
		s.decode(rec, &resp)
		s.Equal(attID, resp.AttestationID)
		s.Equal(schemaID, resp.SchemaID)
		s.Equal(uint64(100), resp.Timestamp)
		s.False(resp.Revoked)
	})
}

func (s *HandlerSuite) TestRevoke() {
	schemaID := s.createSchema("alice", true)
	attID := s.attest("alice", schemaID, 1)

	s.Run("wrong revoker is 403", func() {
		rec := s.do(http.MethodPost, "/attestations/"+attID+"/revoke", "mallory",
			map[string]any{"revoker": "mallory"})
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("attester revokes", func() {
		rec := s.do(http.MethodPost, "/attestations/"+attID+"/revoke", "alice",
			map[string]any{"revoker": "alice"})
		s.Equal(http.StatusNoContent, rec.Code)

		verify := s.do(http.MethodGet, "/attestations/"+attID+"/verify", "", nil)
		var resp struct {
			Valid   bool `json:"valid"`
			Revoked bool `json:"revoked"`
		}
		s.decode(verify, &resp)
		s.False(resp.Valid)
		s.True(resp.Revoked)
	})

	s.Run("second revoke is still 204", func() {
		rec := s.do(http.MethodPost, "/attestations/"+attID+"/revoke", "alice",
			map[string]any{"revoker": "alice"})
		s.Equal(http.StatusNoContent, rec.Code)
	})
}

func (s *HandlerSuite) TestVersion() {
	rec := s.do(http.MethodGet, "/version", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	var resp map[string]string
	s.decode(rec, &resp)
	s.Equal("v0.1", resp["version"])
}
