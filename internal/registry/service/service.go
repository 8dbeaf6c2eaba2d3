// Package service implements the registry state machine: schema registration,
// nonce-sequenced attestation issuance, issuer-only revocation, and pure
// validity verification. Every mutating operation runs inside one storage
// transaction; events are published after the commit, before returning.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"attestry/internal/platform/metrics"
	"attestry/internal/registry/clock"
	"attestry/internal/registry/events"
	"attestry/internal/registry/models"
	"attestry/internal/registry/store"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/sentinel"
)

// Version is the fixed build tag reported by the version accessor.
const Version = "v0.1"

// Authorizer proves the invoking context may act as a principal. The
// production implementation compares against the authenticated JWT subject;
// tests inject permissive or fixed-principal fakes.
type Authorizer interface {
	RequireAuth(ctx context.Context, principal domain.Principal) error
}

// SchemaCache is an optional read-through cache for immutable schema
// records. Only the read path consults it; issuance and revocation always
// read schemas inside their transaction.
type SchemaCache interface {
	Get(ctx context.Context, id domain.SchemaID) (models.Schema, bool)
	Put(ctx context.Context, schema models.Schema)
}

// Service orchestrates the attestation registry.
type Service struct {
	store     store.Store
	tx        store.TxRunner
	clock     clock.Clock
	auth      Authorizer
	publisher events.Publisher
	cache     SchemaCache
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithPublisher(publisher events.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithSchemaCache(cache SchemaCache) Option {
	return func(s *Service) { s.cache = cache }
}

// New constructs a Service. The store and tx runner are typically the same
// object (InMemory) or a store/runner pair over the same database.
func New(st store.Store, tx store.TxRunner, clk clock.Clock, auth Authorizer, opts ...Option) *Service {
	s := &Service{
		store:  st,
		tx:     tx,
		clock:  clk,
		auth:   auth,
		tracer: otel.Tracer("attestry/registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateSchema registers an immutable schema record. The schema identifier
// is the caller-supplied content hash itself: two registrants supplying the
// same hash collide, which is the intended dedup-by-content behavior.
func (s *Service) CreateSchema(
	ctx context.Context,
	creator domain.Principal,
	schemaURIHash domain.SchemaID,
	revocable bool,
	expiresAllowed bool,
	attesterMode models.AttesterMode,
) (domain.SchemaID, error) {
	ctx, span := s.tracer.Start(ctx, "registry.create_schema")
	defer span.End()

	if err := s.auth.RequireAuth(ctx, creator); err != nil {
		return domain.SchemaID{}, err
	}

	schema := models.Schema{
		SchemaURIHash:  schemaURIHash,
		Creator:        creator,
		Revocable:      revocable,
		ExpiresAllowed: expiresAllowed,
		AttesterMode:   attesterMode,
	}
	if err := schema.Validate(); err != nil {
		return domain.SchemaID{}, err
	}

	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		return st.CreateSchema(ctx, schema)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return domain.SchemaID{}, dErrors.New(dErrors.CodeConflict, models.ReasonSchemaAlreadyExists)
		}
		return domain.SchemaID{}, dErrors.Wrap(err, dErrors.CodeInternal, "create_schema_failed")
	}

	if s.cache != nil {
		s.cache.Put(ctx, schema)
	}
	s.publish(ctx, events.TopicSchemaCreated, events.SchemaCreated{
		SchemaID:       schema.ID().String(),
		Creator:        string(creator),
		SchemaURIHash:  schemaURIHash.String(),
		Revocable:      revocable,
		ExpiresAllowed: expiresAllowed,
		AttesterMode:   uint32(attesterMode),
		CreatedTime:    s.clock.Now(),
	})
	if s.metrics != nil {
		s.metrics.SchemasCreated.Inc()
	}
	s.logger.InfoContext(ctx, "schema created",
		"schema_id", schema.ID().String(),
		"creator", string(creator),
		"attester_mode", attesterMode.String(),
	)
	return schema.ID(), nil
}

// GetSchema returns a registered schema. Read-only, no authentication;
// schemas are public.
func (s *Service) GetSchema(ctx context.Context, id domain.SchemaID) (models.Schema, error) {
	ctx, span := s.tracer.Start(ctx, "registry.get_schema")
	defer span.End()

	if s.cache != nil {
		if schema, ok := s.cache.Get(ctx, id); ok {
			return schema, nil
		}
	}
	schema, err := s.store.GetSchema(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Schema{}, dErrors.New(dErrors.CodeNotFound, models.ReasonSchemaNotFound)
		}
		return models.Schema{}, dErrors.Wrap(err, dErrors.CodeInternal, "get_schema_failed")
	}
	if s.cache != nil {
		s.cache.Put(ctx, schema)
	}
	return schema, nil
}

// GetNonce returns the attester's current replay counter, 0 if the attester
// has never issued an attestation. The next accepted nonce is this value
// plus one.
func (s *Service) GetNonce(ctx context.Context, attester domain.Principal) (uint64, error) {
	nonce, err := s.store.GetNonce(ctx, attester)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "get_nonce_failed")
	}
	return nonce, nil
}

// Attest issues an attestation under a schema. Validation order is load
// bearing: schema existence and policy checks run before the nonce check,
// so a rejected attempt never burns a nonce slot, and a bad nonce leaves
// the counter untouched. All writes commit together or not at all.
func (s *Service) Attest(
	ctx context.Context,
	attester domain.Principal,
	schemaID domain.SchemaID,
	subject domain.Principal,
	dataHash domain.Hash32,
	expiration *uint64,
	nonce uint64,
) (domain.AttestationID, error) {
	ctx, span := s.tracer.Start(ctx, "registry.attest")
	defer span.End()

	if err := s.auth.RequireAuth(ctx, attester); err != nil {
		return domain.AttestationID{}, err
	}

	var (
		attestationID domain.AttestationID
		attested      events.Attested
	)
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		schema, err := st.GetSchema(ctx, schemaID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, models.ReasonSchemaNotFound)
			}
			return err
		}

		if expiration != nil && !schema.ExpiresAllowed {
			return dErrors.New(dErrors.CodePolicyViolation, models.ReasonExpirationNotAllowed)
		}
		if schema.AttesterMode == models.ModeIssuerOnly && attester != schema.Creator {
			return dErrors.New(dErrors.CodePolicyViolation, models.ReasonIssuerOnly)
		}

		current, err := st.GetNonce(ctx, attester)
		if err != nil {
			return err
		}
		// Saturating increment: at the ceiling the counter pins instead of
		// wrapping, so nonce 0 is never accepted.
		next := current + 1
		if next == 0 {
			next = math.MaxUint64
		}
		if nonce != next {
			return dErrors.New(dErrors.CodeSequencing, models.ReasonBadNonce)
		}
		if err := st.SetNonce(ctx, attester, next); err != nil {
			return err
		}

		seq, err := st.NextAttestationSeq(ctx)
		if err != nil {
			return err
		}
		attestationID = domain.AttestationIDFromSeq(seq)

		att := models.Attestation{
			SchemaID:   schemaID,
			Attester:   attester,
			Subject:    subject,
			DataHash:   dataHash,
			Timestamp:  s.clock.Now(),
			Expiration: expiration,
			Revoked:    false,
		}
		if err := st.PutAttestation(ctx, attestationID, att); err != nil {
			return err
		}

		attested = events.Attested{
			AttestationID: attestationID.String(),
			SchemaID:      schemaID.String(),
			Attester:      string(attester),
			Subject:       string(subject),
			DataHash:      dataHash.String(),
			Timestamp:     att.Timestamp,
			Expiration:    expiration,
		}
		return nil
	})
	if err != nil {
		return domain.AttestationID{}, s.asDomainError(err, "attest_failed")
	}

	s.publish(ctx, events.TopicAttested, attested)
	if s.metrics != nil {
		s.metrics.AttestationsIssued.Inc()
	}
	s.logger.InfoContext(ctx, "attestation issued",
		"attestation_id", attestationID.String(),
		"schema_id", schemaID.String(),
		"attester", string(attester),
	)
	return attestationID, nil
}

// RevokeBy revokes an attestation. Only the original attester holds the
// revocation right, and only under a revocable schema. Revoking an already
// revoked attestation is a no-op: success, no state change, no event.
func (s *Service) RevokeBy(ctx context.Context, revoker domain.Principal, attestationID domain.AttestationID) error {
	ctx, span := s.tracer.Start(ctx, "registry.revoke_by")
	defer span.End()

	if err := s.auth.RequireAuth(ctx, revoker); err != nil {
		return err
	}

	transitioned := false
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		att, err := st.GetAttestation(ctx, attestationID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, models.ReasonAttestationNotFound)
			}
			return err
		}

		if revoker != att.Attester {
			return dErrors.New(dErrors.CodePolicyViolation, models.ReasonNotAttester)
		}

		schema, err := st.GetSchema(ctx, att.SchemaID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, models.ReasonSchemaNotFound)
			}
			return err
		}
		if !schema.Revocable {
			return dErrors.New(dErrors.CodePolicyViolation, models.ReasonNotRevocable)
		}

		if att.Revoked {
			return nil
		}

		att.Revoked = true
		if err := st.PutAttestation(ctx, attestationID, att); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return s.asDomainError(err, "revoke_failed")
	}

	if transitioned {
		s.publish(ctx, events.TopicRevoked, events.Revoked{
			AttestationID: attestationID.String(),
			Revoker:       string(revoker),
			RevokedTime:   s.clock.Now(),
		})
		if s.metrics != nil {
			s.metrics.AttestationsRevoked.Inc()
		}
		s.logger.InfoContext(ctx, "attestation revoked",
			"attestation_id", attestationID.String(),
			"revoker", string(revoker),
		)
	}
	return nil
}

// Verify computes the attestation's validity at the current logical time.
// Pure and read-only: no authentication, no side effects, identical results
// for identical (record, now) pairs. A nil result signals absence; a
// populated result always has Exists set.
func (s *Service) Verify(ctx context.Context, attestationID domain.AttestationID) (*models.VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "registry.verify")
	defer span.End()

	att, err := s.store.GetAttestation(ctx, attestationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verify_failed")
	}

	result := att.VerifyAt(s.clock.Now())
	if s.metrics != nil {
		outcome := "invalid"
		if result.Valid {
			outcome = "valid"
		}
		s.metrics.Verifications.WithLabelValues(outcome).Inc()
	}
	return &result, nil
}

// GetAttestation returns the raw stored record. Read-only, no auth.
func (s *Service) GetAttestation(ctx context.Context, attestationID domain.AttestationID) (models.Attestation, error) {
	att, err := s.store.GetAttestation(ctx, attestationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Attestation{}, dErrors.New(dErrors.CodeNotFound, models.ReasonAttestationNotFound)
		}
		return models.Attestation{}, dErrors.Wrap(err, dErrors.CodeInternal, "get_attestation_failed")
	}
	return att, nil
}

// publish delivers an event after a committed write. Fire-and-forget: a
// broker failure is logged, never surfaced to the caller whose state change
// already committed.
func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		s.logger.ErrorContext(ctx, "event publish failed", "topic", topic, "error", err)
	}
}

// asDomainError passes through coded domain errors and wraps raw
// infrastructure failures as internal.
func (s *Service) asDomainError(err error, message string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}
