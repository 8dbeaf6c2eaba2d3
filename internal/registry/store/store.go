// Package store persists registry state behind a typed interface so the
// service stays testable with in-memory fakes and swappable against postgres.
//
// Error contract: methods return pkg/platform/sentinel errors (optionally
// wrapped) for factual states — ErrNotFound for absent entities, ErrConflict
// for identifier collisions. The service translates these into domain errors.
package store

import (
	"context"

	"attestry/internal/registry/models"
	"attestry/pkg/domain"
)

// Store is the typed key space of spec'd registry state: schema records,
// attestation records, per-attester nonce counters, and the global
// attestation id counter.
type Store interface {
	// CreateSchema inserts a schema record, failing with ErrConflict if the
	// identifier is already registered. Schemas are never updated or deleted.
	CreateSchema(ctx context.Context, schema models.Schema) error
	GetSchema(ctx context.Context, id domain.SchemaID) (models.Schema, error)

	// PutAttestation writes an attestation record under its identifier.
	// Used both for initial creation and for the revocation transition.
	PutAttestation(ctx context.Context, id domain.AttestationID, att models.Attestation) error
	GetAttestation(ctx context.Context, id domain.AttestationID) (models.Attestation, error)

	// GetNonce returns the attester's replay counter, 0 if never seen.
	GetNonce(ctx context.Context, attester domain.Principal) (uint64, error)
	SetNonce(ctx context.Context, attester domain.Principal, value uint64) error

	// NextAttestationSeq increments the global allocator counter and returns
	// the new value. Values are never reissued.
	NextAttestationSeq(ctx context.Context) (uint64, error)
}

// TxRunner executes fn against a Store with all-or-nothing semantics: if fn
// returns an error, none of its writes persist. Each public registry
// operation runs inside exactly one transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(Store) error) error
}
