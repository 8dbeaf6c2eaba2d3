package events

import (
	"context"
	"sync"
)

// Published is one recorded emission, in publish order.
type Published struct {
	Topic   string
	Payload any
}

// Memory records published events in order. Used by tests to assert
// exactly-one-event properties, and by dev mode when no broker is configured.
type Memory struct {
	mu     sync.Mutex
	events []Published
}

// NewMemory constructs an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(_ context.Context, topic string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Published{Topic: topic, Payload: payload})
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published{}, m.events...)
}

// ByTopic returns published events for one topic, in order.
func (m *Memory) ByTopic(topic string) []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Published
	for _, e := range m.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
