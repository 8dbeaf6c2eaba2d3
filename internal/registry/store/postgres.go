package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"attestry/internal/registry/models"
	"attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same store code
// serves direct reads and transactional writes.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres persists registry state in postgres via lib/pq.
type Postgres struct {
	q querier

	// locking makes reads of mutable rows take FOR UPDATE row locks. Set on
	// transaction-bound stores: transactions run at READ COMMITTED, where a
	// plain SELECT lets two concurrent operations both read the same nonce or
	// revoked flag and both pass their check-then-write. The row lock
	// serializes them.
	locking bool
}

// NewPostgres builds a store over a database handle (autocommit reads).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{q: db}
}

// NewPostgresTx builds a store bound to an open transaction. Used by the
// transaction runner so every write of one registry operation shares a tx.
// Reads of mutable rows lock them for the length of the transaction.
func NewPostgresTx(tx *sql.Tx) *Postgres {
	return &Postgres{q: tx, locking: true}
}

// EnsureSchema creates the registry tables when they do not exist yet.
// Counter and nonce rows are created lazily on first use.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS schemas (
		id             BYTEA PRIMARY KEY,
		creator        TEXT    NOT NULL,
		revocable      BOOLEAN NOT NULL,
		expires_allowed BOOLEAN NOT NULL,
		attester_mode  INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS attestations (
		id         BYTEA PRIMARY KEY,
		schema_id  BYTEA  NOT NULL,
		attester   TEXT   NOT NULL,
		subject    TEXT   NOT NULL,
		data_hash  BYTEA  NOT NULL,
		ts         BIGINT NOT NULL,
		expiration BIGINT,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE TABLE IF NOT EXISTS nonces (
		attester TEXT PRIMARY KEY,
		value    BIGINT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS counters (
		name  TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	);`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure registry schema: %w", err)
	}
	return nil
}

const attestationSeqCounter = "next_attestation_id"

func (s *Postgres) CreateSchema(ctx context.Context, schema models.Schema) error {
	id := schema.ID()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO schemas (id, creator, revocable, expires_allowed, attester_mode)
		VALUES ($1, $2, $3, $4, $5)`,
		id[:], string(schema.Creator), schema.Revocable, schema.ExpiresAllowed, int32(schema.AttesterMode),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("schema %s: %w", id, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert schema: %w", err)
	}
	return nil
}

func (s *Postgres) GetSchema(ctx context.Context, id domain.SchemaID) (models.Schema, error) {
	var (
		rawID   []byte
		creator string
		schema  models.Schema
		mode    int32
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, creator, revocable, expires_allowed, attester_mode
		FROM schemas WHERE id = $1`, id[:],
	).Scan(&rawID, &creator, &schema.Revocable, &schema.ExpiresAllowed, &mode)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Schema{}, fmt.Errorf("schema %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.Schema{}, fmt.Errorf("select schema: %w", err)
	}
	copy(schema.SchemaURIHash[:], rawID)
	schema.Creator = domain.Principal(creator)
	schema.AttesterMode = models.AttesterMode(mode)
	return schema, nil
}

func (s *Postgres) PutAttestation(ctx context.Context, id domain.AttestationID, att models.Attestation) error {
	var expiration sql.NullInt64
	if att.Expiration != nil {
		expiration = sql.NullInt64{Int64: int64(*att.Expiration), Valid: true}
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO attestations (id, schema_id, attester, subject, data_hash, ts, expiration, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET revoked = EXCLUDED.revoked`,
		id[:], att.SchemaID[:], string(att.Attester), string(att.Subject),
		att.DataHash[:], int64(att.Timestamp), expiration, att.Revoked,
	)
	if err != nil {
		return fmt.Errorf("upsert attestation: %w", err)
	}
	return nil
}

func (s *Postgres) GetAttestation(ctx context.Context, id domain.AttestationID) (models.Attestation, error) {
	var (
		schemaID, dataHash []byte
		attester, subject  string
		ts                 int64
		expiration         sql.NullInt64
		att                models.Attestation
	)
	query := `
		SELECT schema_id, attester, subject, data_hash, ts, expiration, revoked
		FROM attestations WHERE id = $1`
	if s.locking {
		query += " FOR UPDATE"
	}
	err := s.q.QueryRowContext(ctx, query, id[:]).
		Scan(&schemaID, &attester, &subject, &dataHash, &ts, &expiration, &att.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Attestation{}, fmt.Errorf("attestation %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.Attestation{}, fmt.Errorf("select attestation: %w", err)
	}
	copy(att.SchemaID[:], schemaID)
	copy(att.DataHash[:], dataHash)
	att.Attester = domain.Principal(attester)
	att.Subject = domain.Principal(subject)
	att.Timestamp = uint64(ts)
	if expiration.Valid {
		exp := uint64(expiration.Int64)
		att.Expiration = &exp
	}
	return att, nil
}

func (s *Postgres) GetNonce(ctx context.Context, attester domain.Principal) (uint64, error) {
	if s.locking {
		// Materialize the row first so FOR UPDATE has something to lock even
		// for an attester's first issuance; two concurrent first issuances
		// otherwise both read zero and both pass the sequencing check.
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO nonces (attester, value) VALUES ($1, 0)
			ON CONFLICT (attester) DO NOTHING`, string(attester),
		); err != nil {
			return 0, fmt.Errorf("ensure nonce row: %w", err)
		}
		var value int64
		err := s.q.QueryRowContext(ctx,
			`SELECT value FROM nonces WHERE attester = $1 FOR UPDATE`, string(attester),
		).Scan(&value)
		if err != nil {
			return 0, fmt.Errorf("lock nonce: %w", err)
		}
		return uint64(value), nil
	}

	var value int64
	err := s.q.QueryRowContext(ctx,
		`SELECT value FROM nonces WHERE attester = $1`, string(attester),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select nonce: %w", err)
	}
	return uint64(value), nil
}

func (s *Postgres) SetNonce(ctx context.Context, attester domain.Principal, value uint64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO nonces (attester, value) VALUES ($1, $2)
		ON CONFLICT (attester) DO UPDATE SET value = EXCLUDED.value`,
		string(attester), int64(value),
	)
	if err != nil {
		return fmt.Errorf("upsert nonce: %w", err)
	}
	return nil
}

func (s *Postgres) NextAttestationSeq(ctx context.Context) (uint64, error) {
	var value int64
	// The counter saturates at the column ceiling instead of overflowing.
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = CASE
			WHEN counters.value >= 9223372036854775807 THEN counters.value
			ELSE counters.value + 1
		END
		RETURNING value`, attestationSeqCounter,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("advance attestation counter: %w", err)
	}
	return uint64(value), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
