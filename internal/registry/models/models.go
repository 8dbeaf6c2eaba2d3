// Package models defines the registry's persistent records and the pure
// validity evaluation over them. No I/O lives here; stores persist these
// records and the service enforces the transition rules.
package models

import (
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

// AttesterMode restricts who may issue attestations under a schema.
type AttesterMode uint32

const (
	// ModePermissionless lets any authenticated principal attest.
	ModePermissionless AttesterMode = 0
	// ModeIssuerOnly restricts issuance to the schema's creator.
	ModeIssuerOnly AttesterMode = 1
)

// Valid reports whether m is one of the defined variants. The wire encoding
// is numeric, so anything else must be rejected before it reaches storage.
func (m AttesterMode) Valid() bool {
	return m == ModePermissionless || m == ModeIssuerOnly
}

func (m AttesterMode) String() string {
	switch m {
	case ModePermissionless:
		return "permissionless"
	case ModeIssuerOnly:
		return "issuer_only"
	default:
		return "invalid"
	}
}

// Schema is a registered template governing a class of attestations.
// Immutable once created; the registry never updates or deletes one.
type Schema struct {
	// SchemaURIHash is the content hash of the off-ledger schema document.
	// It doubles as the schema's identifier.
	SchemaURIHash domain.SchemaID
	Creator       domain.Principal
	Revocable     bool
	// ExpiresAllowed gates whether attestations under this schema may carry
	// an expiration.
	ExpiresAllowed bool
	AttesterMode   AttesterMode
}

// ID returns the schema identifier. By construction it equals the
// registrant-supplied content hash; two registrants supplying the same hash
// collide, which is the intended dedup-by-content behavior.
func (s Schema) ID() domain.SchemaID {
	return s.SchemaURIHash
}

// Validate enforces creation-time invariants.
func (s Schema) Validate() error {
	if s.SchemaURIHash.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "schema_uri_hash_is_zero")
	}
	if s.Creator == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "creator_is_empty")
	}
	if !s.AttesterMode.Valid() {
		return dErrors.New(dErrors.CodePolicyViolation, ReasonInvalidAttesterMode)
	}
	return nil
}

// Attestation is a single identified claim by an attester about a subject,
// conforming to one schema. Created once; the only mutable field is Revoked,
// which transitions false -> true at most once.
type Attestation struct {
	SchemaID domain.SchemaID
	Attester domain.Principal
	Subject  domain.Principal
	DataHash domain.Hash32
	// Timestamp is the logical time of issuance. Set once, immutable.
	Timestamp uint64
	// Expiration is the logical time at and after which the attestation
	// counts as expired. Nil means it never expires.
	Expiration *uint64
	Revoked    bool
}

// VerifyResult is a derived, point-in-time snapshot of an attestation's
// validity. Never stored; recomputed on each query.
type VerifyResult struct {
	Exists     bool
	Valid      bool
	Revoked    bool
	Expired    bool
	SchemaID   domain.SchemaID
	Attester   domain.Principal
	Subject    domain.Principal
	DataHash   domain.Hash32
	Timestamp  uint64
	Expiration *uint64
}

// VerifyAt computes the attestation's validity at the given logical time.
// Pure: identical (record, now) pairs always yield identical results.
// The expiration boundary is inclusive on the expired side: now == expiration
// already counts as expired.
func (a Attestation) VerifyAt(now uint64) VerifyResult {
	expired := a.Expiration != nil && now >= *a.Expiration
	return VerifyResult{
		Exists:     true,
		Valid:      !a.Revoked && !expired,
		Revoked:    a.Revoked,
		Expired:    expired,
		SchemaID:   a.SchemaID,
		Attester:   a.Attester,
		Subject:    a.Subject,
		DataHash:   a.DataHash,
		Timestamp:  a.Timestamp,
		Expiration: a.Expiration,
	}
}
