package mq

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Queue. Dead-lettered messages are kept for inspection.
type Memory struct {
	mu    sync.Mutex
	ch    chan Message
	dead  []Message
	acked []Message
}

func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = 64
	}
	return &Memory{ch: make(chan Message, capacity)}
}

func (m *Memory) Publish(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Attempt < 1 {
		msg.Attempt = 1
	}
	select {
	case m.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Consume(ctx context.Context, _ int) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-m.ch:
				d := NewDelivery(msg,
					func() error { m.record(&m.acked, msg); return nil },
					func() error { m.record(&m.dead, msg); return nil },
				)
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *Memory) record(dst *[]Message, msg Message) {
	m.mu.Lock()
	*dst = append(*dst, msg)
	m.mu.Unlock()
}

// DeadLettered returns messages rejected to the dead-letter side.
func (m *Memory) DeadLettered() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.dead...)
}

// Acked returns acknowledged messages.
func (m *Memory) Acked() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.acked...)
}

// Pending reports queued, undelivered messages.
func (m *Memory) Pending() int { return len(m.ch) }

func (m *Memory) Close() error { return nil }
