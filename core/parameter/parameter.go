// Package parameter implements named port instances: a schema-bound slot holding either a
// single one-shot value or an unbounded ordered queue of streaming chunks.
package parameter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coachpo/streamflow/core/schema"
)

// Chunk is a timestamped payload that has passed schema validation against a streaming
// port's schema before being enqueued. ID is a correlation field letting external sinks
// and logs track a chunk across fan-out.
type Chunk struct {
	Payload   any
	Timestamp time.Time
	ID        string
}

// NewChunk constructs a chunk with a fresh correlation ID and the current timestamp.
func NewChunk(payload any) *Chunk {
	return &Chunk{Payload: payload, Timestamp: time.Now(), ID: uuid.NewString()}
}

// Parameter is a named port instance bound to a schema.
type Parameter struct {
	Name   string
	Schema *schema.Schema

	value    any
	hasValue bool
	queue    *Queue
}

// New constructs a Parameter for the given schema. If the schema is streaming, a queue is
// allocated immediately, before the owning node is initialized.
func New(name string, s *schema.Schema) *Parameter {
	p := &Parameter{Name: name, Schema: s}
	if s != nil && s.IsStreaming {
		p.queue = NewQueue()
	}
	return p
}

// IsStreaming reports whether this parameter is backed by a queue rather than a value slot.
func (p *Parameter) IsStreaming() bool {
	return p.Schema != nil && p.Schema.IsStreaming
}

// Queue returns the backing queue for a streaming parameter, or nil for a one-shot parameter.
func (p *Parameter) Queue() *Queue {
	return p.queue
}

// SetValue schema-validates and stores a one-shot value.
func (p *Parameter) SetValue(value any) (any, error) {
	if p.IsStreaming() {
		return nil, fmt.Errorf("parameter %q is streaming: use Emit, not SetValue", p.Name)
	}
	validated, err := p.Schema.Validate(value)
	if err != nil {
		return nil, err
	}
	p.value = validated
	p.hasValue = true
	return validated, nil
}

// GetValue returns the stored one-shot value and whether one has been set.
func (p *Parameter) GetValue() (any, bool) {
	return p.value, p.hasValue
}

// Emit schema-validates payload, wraps it in a chunk, and pushes it onto the queue.
func (p *Parameter) Emit(payload any) (*Chunk, error) {
	if !p.IsStreaming() {
		return nil, fmt.Errorf("parameter %q is not streaming: use SetValue, not Emit", p.Name)
	}
	validated, err := p.Schema.Validate(payload)
	if err != nil {
		return nil, err
	}
	c := NewChunk(validated)
	p.queue.Push(c)
	return c, nil
}

// PushChunk enqueues an already-validated chunk (used by ConnectionManager fan-out, which
// validates once at the source and fans the same chunk out to every target queue).
func (p *Parameter) PushChunk(c *Chunk) {
	if p.queue != nil {
		p.queue.Push(c)
	}
}

// Receive blocks for the next chunk, returning (nil, false) on end-of-stream or ctx
// cancellation.
func (p *Parameter) Receive(ctx context.Context) (*Chunk, bool) {
	if p.queue == nil {
		return nil, false
	}
	return p.queue.Pop(ctx)
}

// Close enqueues the end-of-stream sentinel.
func (p *Parameter) Close() {
	if p.queue != nil {
		p.queue.Close()
	}
}
