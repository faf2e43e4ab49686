// Package connection implements typed edges between node ports: broadcast routing of
// streaming chunks, value propagation for one-shot edges, and external sinks. The manager
// snapshots its target list under a read lock, then delivers outside the lock, so a slow
// or external target never blocks new connections from being registered concurrently.
package connection

import (
	"context"
	"fmt"
	"sync"

	"github.com/coachpo/streamflow/core/parameter"
	"github.com/coachpo/streamflow/core/schema"
	"github.com/coachpo/streamflow/errs"
	"github.com/coachpo/streamflow/lib/async"
	"github.com/coachpo/streamflow/lib/telemetry"
)

// ExternalHandler receives a one-shot value or a streaming chunk payload delivered to an
// externally-registered sink.
type ExternalHandler func(ctx context.Context, payload any) error

// Connection is a typed edge from a source port to either a target port (internal) or a
// callback (external).
type Connection struct {
	SourceNode, SourcePort string
	TargetNode, TargetPort string
	SourceSchema           *schema.Schema
	TargetSchema           *schema.Schema
	IsStreaming            bool
	IsExternal             bool

	targetParam *parameter.Parameter
	handler     ExternalHandler
}

type portKey struct{ node, port string }

// Manager keeps the derived views over all connections and routes data along them.
type Manager struct {
	mu         sync.RWMutex
	byPort     map[portKey][]*Connection
	all        []*Connection
	streaming  []*Connection
	oneShot    []*Connection
	external   []*Connection
	extPool    *async.Pool
	onLogError func(err error)
	metrics    *telemetry.Metrics
}

// NewManager constructs a ConnectionManager. pool bounds the concurrency of fire-and-forget
// external one-shot dispatch (see PropagateValue); onLogError, if non-nil, observes routing
// failures that the manager otherwise swallows to keep the pipeline alive.
func NewManager(pool *async.Pool, onLogError func(err error)) *Manager {
	return &Manager{
		byPort:     make(map[portKey][]*Connection),
		extPool:    pool,
		onLogError: onLogError,
	}
}

// Connect wires an internal edge between a source and target port, after validating that
// their schemas are structurally equal.
func (m *Manager) Connect(srcNode, srcPort string, srcSchema *schema.Schema, dstNode, dstPort string, dstParam *parameter.Parameter) (*Connection, error) {
	if !srcSchema.Equals(dstParam.Schema) {
		return nil, errs.Configuration(
			"connection schema mismatch",
			errs.WithField("source", fmt.Sprintf("%s.%s", srcNode, srcPort)),
			errs.WithField("target", fmt.Sprintf("%s.%s", dstNode, dstPort)),
			errs.WithField("source_schema", srcSchema.String()),
			errs.WithField("target_schema", dstParam.Schema.String()),
		)
	}
	c := &Connection{
		SourceNode: srcNode, SourcePort: srcPort,
		TargetNode: dstNode, TargetPort: dstPort,
		SourceSchema: srcSchema, TargetSchema: dstParam.Schema,
		IsStreaming: srcSchema.IsStreaming,
		targetParam: dstParam,
	}
	m.register(c)
	return c, nil
}

// ConnectExternal registers a callback sink. External registration never fails schema
// validation because the target has no schema.
func (m *Manager) ConnectExternal(srcNode, srcPort string, srcSchema *schema.Schema, handler ExternalHandler) (*Connection, error) {
	if handler == nil {
		return nil, errs.Configuration("external connection requires a non-nil handler")
	}
	c := &Connection{
		SourceNode: srcNode, SourcePort: srcPort,
		TargetNode: "external", TargetPort: "handler",
		SourceSchema: srcSchema,
		IsStreaming:  srcSchema.IsStreaming,
		IsExternal:   true,
		handler:      handler,
	}
	m.register(c)
	return c, nil
}

func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := portKey{c.SourceNode, c.SourcePort}
	m.byPort[key] = append(m.byPort[key], c)
	m.all = append(m.all, c)
	switch {
	case c.IsExternal:
		m.external = append(m.external, c)
	case c.IsStreaming:
		m.streaming = append(m.streaming, c)
	default:
		m.oneShot = append(m.oneShot, c)
	}
}

func (m *Manager) outgoing(srcNode, srcPort string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := m.byPort[portKey{srcNode, srcPort}]
	out := make([]*Connection, len(conns))
	copy(out, conns)
	return out
}

// RouteChunk fans a validated chunk out to every connection registered on (srcNode,
// srcPort), in registration order. Internal targets receive the chunk on their queue;
// external targets are invoked and awaited. Per-target delivery order matches emission
// order on the source; no ordering is guaranteed across distinct targets.
func (m *Manager) RouteChunk(ctx context.Context, srcNode, srcPort string, chunk *parameter.Chunk) error {
	var firstErr error
	targets := m.outgoing(srcNode, srcPort)
	for _, c := range targets {
		if c.IsExternal {
			if err := c.handler(ctx, chunk.Payload); err != nil {
				m.logError(fmt.Errorf("external sink %s.%s: %w", c.SourceNode, c.SourcePort, err))
				if firstErr == nil {
					firstErr = err
				}
			}
			continue
		}
		c.targetParam.PushChunk(chunk)
	}
	m.metricsRef().AddChunksRouted(ctx, int64(len(targets)))
	return firstErr
}

func (m *Manager) metricsRef() *telemetry.Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// PropagateValue fans a one-shot value out to every connection registered on (srcNode,
// srcPort). Internal targets are assigned directly; external targets are dispatched
// fire-and-forget through the bounded worker pool.
func (m *Manager) PropagateValue(ctx context.Context, srcNode, srcPort string, value any) error {
	var firstErr error
	for _, c := range m.outgoing(srcNode, srcPort) {
		if c.IsExternal {
			handler := c.handler
			label := fmt.Sprintf("%s.%s", c.SourceNode, c.SourcePort)
			if m.extPool == nil {
				go func() {
					if err := handler(context.Background(), value); err != nil {
						m.logError(fmt.Errorf("external sink %s: %w", label, err))
					}
				}()
				continue
			}
			if err := m.extPool.Submit(ctx, func(taskCtx context.Context) error {
				return handler(taskCtx, value)
			}); err != nil {
				m.logError(fmt.Errorf("external sink %s dispatch: %w", label, err))
			}
			continue
		}
		if _, err := c.targetParam.SetValue(value); err != nil {
			m.logError(fmt.Errorf("propagate to %s.%s: %w", c.TargetNode, c.TargetPort, err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Manager) logError(err error) {
	if m.onLogError != nil {
		m.onLogError(err)
	}
}

// SetMetrics attaches the chunks-routed counter. Passing nil disables instrumentation.
func (m *Manager) SetMetrics(metrics *telemetry.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// All returns every registered connection.
func (m *Manager) All() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, len(m.all))
	copy(out, m.all)
	return out
}

// Streaming returns every streaming (non-external) connection.
func (m *Manager) Streaming() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, len(m.streaming))
	copy(out, m.streaming)
	return out
}

// OneShot returns every non-streaming, non-external connection.
func (m *Manager) OneShot() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, len(m.oneShot))
	copy(out, m.oneShot)
	return out
}

// External returns every external-sink connection.
func (m *Manager) External() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, len(m.external))
	copy(out, m.external)
	return out
}
