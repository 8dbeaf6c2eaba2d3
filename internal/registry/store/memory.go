package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"attestry/internal/registry/models"
	"attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
)

// InMemory keeps registry state in maps for tests and dev mode. Transactions
// stage writes in an overlay and commit only when the transaction body
// succeeds, matching the rollback guarantees of the postgres store. A single
// transaction mutex serializes RunInTx calls so registry operations execute
// one at a time, as the nonce and counter invariants require.
type InMemory struct {
	txMu sync.Mutex // serializes transactions
	mu   sync.RWMutex

	schemas      map[domain.SchemaID]models.Schema
	attestations map[domain.AttestationID]models.Attestation
	nonces       map[domain.Principal]uint64
	nextSeq      uint64
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		schemas:      make(map[domain.SchemaID]models.Schema),
		attestations: make(map[domain.AttestationID]models.Attestation),
		nonces:       make(map[domain.Principal]uint64),
	}
}

func (s *InMemory) CreateSchema(_ context.Context, schema models.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schemas[schema.ID()]; ok {
		return fmt.Errorf("schema %s: %w", schema.ID(), sentinel.ErrConflict)
	}
	s.schemas[schema.ID()] = schema
	return nil
}

func (s *InMemory) GetSchema(_ context.Context, id domain.SchemaID) (models.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if schema, ok := s.schemas[id]; ok {
		return schema, nil
	}
	return models.Schema{}, fmt.Errorf("schema %s: %w", id, sentinel.ErrNotFound)
}

func (s *InMemory) PutAttestation(_ context.Context, id domain.AttestationID, att models.Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attestations[id] = att
	return nil
}

func (s *InMemory) GetAttestation(_ context.Context, id domain.AttestationID) (models.Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if att, ok := s.attestations[id]; ok {
		return att, nil
	}
	return models.Attestation{}, fmt.Errorf("attestation %s: %w", id, sentinel.ErrNotFound)
}

func (s *InMemory) GetNonce(_ context.Context, attester domain.Principal) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonces[attester], nil
}

func (s *InMemory) SetNonce(_ context.Context, attester domain.Principal, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[attester] = value
	return nil
}

func (s *InMemory) NextAttestationSeq(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextSeq != math.MaxUint64 {
		s.nextSeq++
	}
	return s.nextSeq, nil
}

// RunInTx executes fn against an overlay of the store. Writes land in the
// overlay; they are applied to the base maps only when fn returns nil.
func (s *InMemory) RunInTx(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{base: s}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx stages writes over an InMemory base. Not safe for concurrent use;
// the base's transaction mutex guarantees one live transaction at a time.
type memTx struct {
	base *InMemory

	schemas      map[domain.SchemaID]models.Schema
	attestations map[domain.AttestationID]models.Attestation
	nonces       map[domain.Principal]uint64
	seq          *uint64
}

func (t *memTx) CreateSchema(ctx context.Context, schema models.Schema) error {
	if _, ok := t.schemas[schema.ID()]; ok {
		return fmt.Errorf("schema %s: %w", schema.ID(), sentinel.ErrConflict)
	}
	if _, err := t.base.GetSchema(ctx, schema.ID()); err == nil {
		return fmt.Errorf("schema %s: %w", schema.ID(), sentinel.ErrConflict)
	}
	if t.schemas == nil {
		t.schemas = make(map[domain.SchemaID]models.Schema)
	}
	t.schemas[schema.ID()] = schema
	return nil
}

func (t *memTx) GetSchema(ctx context.Context, id domain.SchemaID) (models.Schema, error) {
	if schema, ok := t.schemas[id]; ok {
		return schema, nil
	}
	return t.base.GetSchema(ctx, id)
}

func (t *memTx) PutAttestation(_ context.Context, id domain.AttestationID, att models.Attestation) error {
	if t.attestations == nil {
		t.attestations = make(map[domain.AttestationID]models.Attestation)
	}
	t.attestations[id] = att
	return nil
}

func (t *memTx) GetAttestation(ctx context.Context, id domain.AttestationID) (models.Attestation, error) {
	if att, ok := t.attestations[id]; ok {
		return att, nil
	}
	return t.base.GetAttestation(ctx, id)
}

func (t *memTx) GetNonce(ctx context.Context, attester domain.Principal) (uint64, error) {
	if value, ok := t.nonces[attester]; ok {
		return value, nil
	}
	return t.base.GetNonce(ctx, attester)
}

func (t *memTx) SetNonce(_ context.Context, attester domain.Principal, value uint64) error {
	if t.nonces == nil {
		t.nonces = make(map[domain.Principal]uint64)
	}
	t.nonces[attester] = value
	return nil
}

func (t *memTx) NextAttestationSeq(_ context.Context) (uint64, error) {
	if t.seq == nil {
		t.base.mu.RLock()
		current := t.base.nextSeq
		t.base.mu.RUnlock()
		t.seq = &current
	}
	if *t.seq != math.MaxUint64 {
		*t.seq++
	}
	return *t.seq, nil
}

func (t *memTx) commit() {
	t.base.mu.Lock()
	defer t.base.mu.Unlock()
	for id, schema := range t.schemas {
		t.base.schemas[id] = schema
	}
	for id, att := range t.attestations {
		t.base.attestations[id] = att
	}
	for attester, value := range t.nonces {
		t.base.nonces[attester] = value
	}
	if t.seq != nil {
		t.base.nextSeq = *t.seq
	}
}
