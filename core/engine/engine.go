// Package engine implements the workflow engine: graph construction/validation, node
// lifecycle orchestration, the declaration-order sequential phase, and the always-live
// streaming fan-out. Goroutine fan-out for streaming consumer loops and node run bodies
// is built on sourcegraph/conc.WaitGroup rather than bare go statements with manual
// sync.WaitGroup bookkeeping.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/streamflow/core/connection"
	"github.com/coachpo/streamflow/core/node"
	"github.com/coachpo/streamflow/core/template"
	"github.com/coachpo/streamflow/core/wfcontext"
	"github.com/coachpo/streamflow/errs"
	"github.com/coachpo/streamflow/lib/async"
	"github.com/coachpo/streamflow/lib/telemetry"
)

// State is the engine's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateStarted   State = "started"
	StateExecuting State = "executing"
	StateStopped   State = "stopped"
)

// NodeConfig declares one node instance: its id, registered type name, and raw config.
type NodeConfig struct {
	ID     string
	Type   string
	Config map[string]any
}

// ConnectionConfig declares one edge between two node ports.
type ConnectionConfig struct {
	SourceNode string
	SourcePort string
	TargetNode string
	TargetPort string
}

// GraphConfig is the declarative shape the engine is built from — the in-memory form a
// manifest loader (internal/config) produces from YAML.
type GraphConfig struct {
	Name            string
	ContinueOnError bool
	Nodes           []NodeConfig
	Connections     []ConnectionConfig
}

// Engine owns the node graph, the connection manager, and the shared execution context for
// one workflow instance.
type Engine struct {
	mu sync.RWMutex

	name            string
	continueOnError bool
	registry        map[string]node.Constructor
	nodes           map[string]node.Node
	nodeOrder       []string

	manager  *connection.Manager
	wctx     *wfcontext.Context
	resolver *template.Resolver
	pool     *async.Pool
	metrics  *telemetry.Metrics

	state  State
	wg     conc.WaitGroup
	cancel context.CancelFunc

	onLog func(level, nodeID, message string)
}

// New constructs an empty engine. pool bounds fire-and-forget external one-shot dispatch
// (may be nil); onLog, if non-nil, observes structured log lines the engine and its nodes
// emit, in addition to the Context's own append-only log.
func New(pool *async.Pool, onLog func(level, nodeID, message string)) *Engine {
	e := &Engine{
		registry: make(map[string]node.Constructor),
		nodes:    make(map[string]node.Node),
		wctx:     wfcontext.New(),
		pool:     pool,
		state:    StateIdle,
		onLog:    onLog,
	}
	e.manager = connection.NewManager(pool, func(err error) { e.warn(err.Error()) })
	e.resolver = template.New(template.GlobalGetters{
		GetNodeOutput: func(nodeID, path string) (any, error) { return e.wctx.GetOutput(nodeID, path) },
		GetGlobal:     func(name, path string) (any, error) { return e.wctx.GetGlobal(name, path) },
		Engine:        e,
	}, e.warn)
	return e
}

// SetMetrics attaches kernel counters (nodes executed, node failures, chunks routed) reported
// through m. Passing nil disables instrumentation; the zero value of Engine already behaves
// that way, so SetMetrics is optional.
func (e *Engine) SetMetrics(m *telemetry.Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
	e.manager.SetMetrics(m)
}

func (e *Engine) warn(message string) {
	e.log("warn", "", message)
}

func (e *Engine) log(level, nodeID, message string) {
	e.wctx.Log(level, nodeID, message)
	if e.onLog != nil {
		e.onLog(level, nodeID, message)
	}
}

// RegisterNodeType makes a node type available for use in LoadConfig.
func (e *Engine) RegisterNodeType(typeName string, ctor node.Constructor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry[typeName] = ctor
}

// LoadConfig constructs every declared node and wires every declared connection, validating
// the workflow name, node-id uniqueness, node-type registration, and per-connection port
// existence and schema compatibility. The engine must be idle.
func (e *Engine) LoadConfig(cfg GraphConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return errs.Configuration("engine must be idle to load a new graph", errs.WithField("state", string(e.state)))
	}
	if cfg.Name == "" {
		return errs.Configuration("workflow name is required")
	}

	nodes := make(map[string]node.Node, len(cfg.Nodes))
	order := make([]string, 0, len(cfg.Nodes))
	for _, nc := range cfg.Nodes {
		if nc.ID == "" {
			return errs.Configuration("node id is required")
		}
		if _, dup := nodes[nc.ID]; dup {
			return errs.Configuration("duplicate node id", errs.WithField("node_id", nc.ID))
		}
		ctor, ok := e.registry[nc.Type]
		if !ok {
			return errs.Configuration("unregistered node type", errs.WithNodeID(nc.ID), errs.WithField("type", nc.Type))
		}
		n, err := ctor(nc.ID, nc.Config, e)
		if err != nil {
			return errs.Configuration("node construction failed", errs.WithNodeID(nc.ID), errs.WithCause(err))
		}
		n.BindManager(e.manager)
		n.BindResolver(e.resolver)
		nodes[nc.ID] = n
		order = append(order, nc.ID)
	}

	for _, cc := range cfg.Connections {
		src, ok := nodes[cc.SourceNode]
		if !ok {
			return errs.Configuration("connection references unknown source node", errs.WithField("node_id", cc.SourceNode))
		}
		dst, ok := nodes[cc.TargetNode]
		if !ok {
			return errs.Configuration("connection references unknown target node", errs.WithField("node_id", cc.TargetNode))
		}
		srcParam, ok := src.OutputPorts()[cc.SourcePort]
		if !ok {
			return errs.Configuration("connection references unknown source port",
				errs.WithNodeID(cc.SourceNode), errs.WithField("port", cc.SourcePort))
		}
		dstParam, ok := dst.InputPorts()[cc.TargetPort]
		if !ok {
			return errs.Configuration("connection references unknown target port",
				errs.WithNodeID(cc.TargetNode), errs.WithField("port", cc.TargetPort))
		}
		if _, err := e.manager.Connect(cc.SourceNode, cc.SourcePort, srcParam.Schema, cc.TargetNode, cc.TargetPort, dstParam); err != nil {
			return err
		}
	}

	e.name = cfg.Name
	e.continueOnError = cfg.ContinueOnError
	e.nodes = nodes
	e.nodeOrder = order
	return nil
}

// ConnectExternal wires an externally-observed sink (e.g. a CLI printer, a websocket
// handler) onto a node's output port. The engine must have a loaded graph.
func (e *Engine) ConnectExternal(srcNode, srcPort string, handler connection.ExternalHandler) error {
	e.mu.RLock()
	n, ok := e.nodes[srcNode]
	e.mu.RUnlock()
	if !ok {
		return errs.Configuration("unknown source node", errs.WithField("node_id", srcNode))
	}
	p, ok := n.OutputPorts()[srcPort]
	if !ok {
		return errs.Configuration("unknown source port", errs.WithNodeID(srcNode), errs.WithField("port", srcPort))
	}
	_, err := e.manager.ConnectExternal(srcNode, srcPort, p.Schema, handler)
	return err
}

// Start transitions idle/stopped -> started: it initializes every node in declaration order,
// then spawns one consumer goroutine per streaming input port and one run goroutine per
// streaming/hybrid node. If any node's Initialize fails, already-initialized nodes are shut
// down and the engine remains out of the started state.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle && e.state != StateStopped {
		e.mu.Unlock()
		return errs.Workflow("engine cannot start from its current state", errs.WithField("state", string(e.state)))
	}
	order := append([]string(nil), e.nodeOrder...)
	nodes := e.nodes
	e.mu.Unlock()

	initialized := make([]string, 0, len(order))
	for _, id := range order {
		n := nodes[id]
		if err := n.Initialize(ctx, e.wctx); err != nil {
			for i := len(initialized) - 1; i >= 0; i-- {
				_ = nodes[initialized[i]].Shutdown(ctx)
			}
			return err
		}
		initialized = append(initialized, id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.state = StateStarted
	e.mu.Unlock()

	for _, id := range order {
		n := nodes[id]
		for port, p := range n.InputPorts() {
			if !p.IsStreaming() {
				continue
			}
			nn, pp := n, port
			e.wg.Go(func() { nn.ConsumeLoop(runCtx, pp, e.warn) })
		}
		if n.Mode() == node.Streaming || n.Mode() == node.Hybrid {
			nn := n
			e.wg.Go(func() {
				if err := nn.Run(runCtx, e.wctx); err != nil {
					e.log("error", nn.ID(), fmt.Sprintf("run failed: %v", err))
				}
			})
		}
	}
	return nil
}

// Execute runs one declaration-order sequential pass over every non-streaming node. This is
// deliberately NOT a topological sort: nodes run strictly in the order they were declared,
// and a node's config template observes only outputs already recorded in the context — in
// the first pass, those of nodes declared earlier. overrides, keyed by node id, are applied
// to that node's config for this pass
// only — the node's stored config is never mutated.
func (e *Engine) Execute(ctx context.Context, overrides map[string]map[string]any) error {
	e.mu.Lock()
	if e.state != StateStarted {
		e.mu.Unlock()
		return errs.Workflow("engine must be started before executing", errs.WithField("state", string(e.state)))
	}
	e.state = StateExecuting
	order := append([]string(nil), e.nodeOrder...)
	nodes := e.nodes
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.state == StateExecuting {
			e.state = StateStarted
		}
		e.mu.Unlock()
	}()

	var firstErr error
	for _, id := range order {
		n := nodes[id]
		if n.Mode() == node.Streaming {
			continue
		}
		if firstErr != nil {
			// continue_on_error is false and an earlier node already failed: every remaining
			// sequential node is left untouched at its pending status, never invoked.
			continue
		}
		out, err := n.Execute(ctx, e.wctx, overrides[id], func(msg string) { e.log("warn", id, msg) })
		if err != nil {
			e.log("error", id, err.Error())
			e.metrics.AddNodeFailure(ctx)
			if !e.continueOnError {
				firstErr = err
				continue
			}
			continue
		}
		e.metrics.AddNodeExecuted(ctx)
		e.wctx.SetOutput(id, out)
		for port, value := range out {
			if p, ok := n.OutputPorts()[port]; ok && p.IsStreaming() {
				continue
			}
			if err := e.manager.PropagateValue(ctx, id, port, value); err != nil {
				e.log("warn", id, fmt.Sprintf("propagate %s: %v", port, err))
			}
		}
	}
	return firstErr
}

// Stop cancels every streaming goroutine, waits for them to exit, and shuts every node down
// in reverse declaration order. Stop is idempotent: calling it when the engine is already
// stopped is a no-op that returns nil. Stopping an engine that was never started is a
// workflow error.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return errs.Workflow("engine cannot stop before it has started", errs.WithField("state", string(e.state)))
	}
	if e.state != StateStarted && e.state != StateExecuting {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	order := append([]string(nil), e.nodeOrder...)
	nodes := e.nodes
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	for i := len(order) - 1; i >= 0; i-- {
		if err := nodes[order[i]].Shutdown(ctx); err != nil {
			e.log("warn", order[i], fmt.Sprintf("shutdown: %v", err))
		}
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	return nil
}

// RenderTemplate evaluates a standalone template string against the engine's live context.
func (e *Engine) RenderTemplate(text string) (string, error) {
	return e.resolver.Render(text, nil)
}

// GetNode returns the node registered under id.
func (e *Engine) GetNode(id string) (node.Node, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.nodes[id]
	return n, ok
}

// Status returns the engine's lifecycle state and every node's current status.
func (e *Engine) Status() (State, map[string]node.Status) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]node.Status, len(e.nodes))
	for id, n := range e.nodes {
		out[id] = n.Status()
	}
	return e.state, out
}

// Context exposes the engine's shared execution context, e.g. for external callers wiring
// sinks or reading the append-only log.
func (e *Engine) Context() *wfcontext.Context { return e.wctx }

// Logs returns the full accumulated execution log.
func (e *Engine) Logs() []wfcontext.LogEntry { return e.wctx.Logs() }
