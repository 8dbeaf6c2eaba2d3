// Package domain holds the identifier types shared across the registry.
// Wrapping raw strings and byte arrays in named types lets the compiler
// enforce that a schema id is never passed where an attestation id belongs.
package domain

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	dErrors "attestry/pkg/domain-errors"
)

// HashSize is the byte length of every content hash and identifier on the
// registry's wire surface.
const HashSize = 32

// Hash32 is a 32-byte value: a content hash or a derived identifier.
// The zero value is not a valid identifier.
type Hash32 [HashSize]byte

// SchemaID identifies a schema. It is defined as the schema's content hash,
// supplied by the registrant (not derived by the registry).
type SchemaID = Hash32

// AttestationID identifies an attestation. Allocator-assigned, sequential,
// never reused.
type AttestationID = Hash32

// Principal names a party that can authenticate: a schema creator, an
// attester, a subject, or a revoker. Opaque to the registry.
type Principal string

// ParseHash32 decodes a 64-character lowercase hex string at a trust
// boundary. Empty and all-zero values are rejected: the registry never
// issues or accepts the zero identifier.
func ParseHash32(s string) (Hash32, error) {
	var h Hash32
	if len(s) != HashSize*2 {
		return h, dErrors.New(dErrors.CodeInvalidInput, "hash_must_be_64_hex_chars")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, dErrors.Wrap(err, dErrors.CodeInvalidInput, "hash_not_hex")
	}
	copy(h[:], raw)
	if h.IsZero() {
		return h, dErrors.New(dErrors.CodeInvalidInput, "hash_is_zero")
	}
	return h, nil
}

// ParsePrincipal validates a principal identifier at a trust boundary.
func ParsePrincipal(s string) (Principal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal_is_empty")
	}
	return Principal(s), nil
}

// IsZero reports whether h is the all-zero value.
func (h Hash32) IsZero() bool {
	return h == Hash32{}
}

// String renders the hash as lowercase hex, the registry's canonical text
// form.
func (h Hash32) String() string {
	return hex.EncodeToString(h[:])
}

// AttestationIDFromSeq encodes an allocator sequence number into the low
// eight bytes of a 32-byte identifier, big-endian, high bytes zero. Stable:
// the same sequence number always yields the same identifier.
func AttestationIDFromSeq(seq uint64) AttestationID {
	var id AttestationID
	binary.BigEndian.PutUint64(id[HashSize-8:], seq)
	return id
}
