package models

// Stable failure reasons. These travel in error messages and in the HTTP
// error envelope, so indexers and clients can branch on them; renaming one
// is a breaking change.
const (
	ReasonSchemaNotFound       = "schema_not_found"
	ReasonAttestationNotFound  = "attestation_not_found"
	ReasonSchemaAlreadyExists  = "schema_already_exists"
	ReasonInvalidAttesterMode  = "invalid_attester_mode"
	ReasonExpirationNotAllowed = "expiration_not_allowed"
	ReasonIssuerOnly           = "issuer_only"
	ReasonNotRevocable         = "not_revocable"
	ReasonNotAttester          = "not_attester"
	ReasonBadNonce             = "bad_nonce"
)
