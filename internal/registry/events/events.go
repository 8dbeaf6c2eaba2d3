// Package events defines the registry's notification surface: one payload
// per state-changing operation, published after the transactional commit and
// before the operation returns. Payload shapes are fixed for off-process
// indexer compatibility; changing a field name is a breaking change.
package events

import "context"

// Topics, one per event kind.
const (
	TopicSchemaCreated = "registry.schema_created"
	TopicAttested      = "registry.attested"
	TopicRevoked       = "registry.revoked"
)

// SchemaCreated is emitted once per successful schema registration.
type SchemaCreated struct {
	SchemaID       string `json:"schema_id"`
	Creator        string `json:"creator"`
	SchemaURIHash  string `json:"schema_uri_hash"`
	Revocable      bool   `json:"revocable"`
	ExpiresAllowed bool   `json:"expires_allowed"`
	AttesterMode   uint32 `json:"attester_mode"`
	CreatedTime    uint64 `json:"created_time"`
}

// Attested is emitted once per successful issuance.
type Attested struct {
	AttestationID string  `json:"attestation_id"`
	SchemaID      string  `json:"schema_id"`
	Attester      string  `json:"attester"`
	Subject       string  `json:"subject"`
	DataHash      string  `json:"data_hash"`
	Timestamp     uint64  `json:"timestamp"`
	Expiration    *uint64 `json:"expiration,omitempty"`
}

// Revoked is emitted on the first (and only the first) revocation of an
// attestation. The idempotent second revoke emits nothing.
type Revoked struct {
	AttestationID string `json:"attestation_id"`
	Revoker       string `json:"revoker"`
	RevokedTime   uint64 `json:"revoked_time"`
}

// Publisher delivers event payloads to external consumers. Fire-and-forget
// from the service's point of view: a publish failure is logged by the
// caller, never surfaced to the API client.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}
