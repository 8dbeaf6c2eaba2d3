// Package clock provides the registry's logical time source: a non-decreasing
// uint64 sequence standing in for wall-clock time. Injected into the service
// so tests can pin and advance time deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock yields the current logical time. Implementations must never go
// backwards across calls.
type Clock interface {
	Now() uint64
}

// Wall derives logical time from unix seconds, clamped so that a host clock
// stepping backwards (NTP correction, VM migration) never violates the
// non-decreasing contract.
type Wall struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewWall constructs a wall-clock-backed logical clock.
func NewWall() *Wall {
	return &Wall{now: time.Now}
}

func (w *Wall) Now() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := uint64(w.now().Unix())
	if t < w.last {
		return w.last
	}
	w.last = t
	return t
}

// Manual is a test clock advanced explicitly.
type Manual struct {
	mu  sync.Mutex
	seq uint64
}

// NewManual constructs a manual clock starting at the given logical time.
func NewManual(start uint64) *Manual {
	return &Manual{seq: start}
}

func (m *Manual) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Set pins the clock. Panics if asked to move backwards, mirroring the
// non-decreasing contract production code relies on.
func (m *Manual) Set(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq < m.seq {
		panic("clock: logical time may not decrease")
	}
	m.seq = seq
}

// Advance moves the clock forward by delta.
func (m *Manual) Advance(delta uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq += delta
}
