// Package node implements the workflow node base: lifecycle hooks, port wiring, config
// resolution, and the chunk emit/consume primitives every concrete node type builds on.
package node

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coachpo/streamflow/core/connection"
	"github.com/coachpo/streamflow/core/parameter"
	"github.com/coachpo/streamflow/core/schema"
	"github.com/coachpo/streamflow/core/template"
	"github.com/coachpo/streamflow/core/wfcontext"
	"github.com/coachpo/streamflow/errs"
)

// ExecutionMode classifies a node's scheduling discipline.
type ExecutionMode string

const (
	Sequential ExecutionMode = "sequential"
	Streaming  ExecutionMode = "streaming"
	Hybrid     ExecutionMode = "hybrid"
)

// Status is a node's mutable lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Hooks are the four lifecycle methods a concrete node type implements. BaseHooks supplies
// defaults for all of them; a concrete node type embeds BaseHooks and overrides only the
// methods it needs — Go's method shadowing on the embedding struct gives the "virtual
// dispatch" a class-based Node base would provide.
type Hooks interface {
	OnInitialize(ctx context.Context, wctx *wfcontext.Context) error
	OnRun(ctx context.Context, wctx *wfcontext.Context) error
	OnExecute(ctx context.Context, wctx *wfcontext.Context) (map[string]any, error)
	OnShutdown(ctx context.Context) error
	OnChunk(ctx context.Context, port string, chunk *parameter.Chunk) error
}

// BaseHooks is the default Hooks implementation: Initialize/Shutdown/OnChunk are no-ops,
// and Execute delegates to Run.
type BaseHooks struct {
	Self Hooks
}

func (h *BaseHooks) OnInitialize(context.Context, *wfcontext.Context) error { return nil }
func (h *BaseHooks) OnRun(context.Context, *wfcontext.Context) error        { return nil }
func (h *BaseHooks) OnExecute(ctx context.Context, wctx *wfcontext.Context) (map[string]any, error) {
	self := h.Self
	if self == nil {
		return nil, nil
	}
	return nil, self.OnRun(ctx, wctx)
}
func (h *BaseHooks) OnShutdown(context.Context) error                                 { return nil }
func (h *BaseHooks) OnChunk(context.Context, string, *parameter.Chunk) error           { return nil }

// Constructor builds a node instance from its declarative id/config. engine is any to avoid
// an import cycle with core/engine; concrete node types that need engine services type-assert it.
type Constructor func(id string, config map[string]any, engine any) (Node, error)

// Node is the interface the engine drives. Concrete node types embed *Base, which supplies
// every method below; they customize behavior by implementing Hooks methods (OnInitialize,
// OnRun, OnExecute, OnShutdown, OnChunk) on the outer type to shadow BaseHooks' defaults.
type Node interface {
	ID() string
	Mode() ExecutionMode
	Status() Status
	InputPorts() map[string]*parameter.Parameter
	OutputPorts() map[string]*parameter.Parameter
	Config() map[string]any
	ResolvedConfig() map[string]any
	GetConfig(path string, fallback any) any
	Initialize(ctx context.Context, wctx *wfcontext.Context) error
	Run(ctx context.Context, wctx *wfcontext.Context) error
	Execute(ctx context.Context, wctx *wfcontext.Context, overrides map[string]any, warn func(string)) (map[string]any, error)
	Shutdown(ctx context.Context) error
	ConsumeLoop(ctx context.Context, port string, warn func(string))
	BindManager(m *connection.Manager)
	BindResolver(r *template.Resolver)
}

// Base is the reusable node base every concrete node type embeds.
type Base struct {
	id           string
	mode         ExecutionMode
	inputPorts   map[string]*parameter.Parameter
	outputPorts  map[string]*parameter.Parameter
	configFields map[string]schema.FieldDef
	rawConfig    map[string]any

	statusMu sync.RWMutex
	status   Status

	resolvedMu sync.RWMutex
	resolved   map[string]any

	hooks Hooks

	manager  *connection.Manager
	resolver atomic.Pointer[template.Resolver]
}

// NewBase constructs a node base, allocating one Parameter per declared port (queues for
// streaming ports) and applying ConfigFields defaults/required-checks against rawConfig at
// construction time — distinct from schema-shape defaulting, which happens at
// chunk/value-validation time (§4.1).
func NewBase(id string, mode ExecutionMode, inputs, outputs map[string]*schema.Schema, configFields map[string]schema.FieldDef, rawConfig map[string]any) (*Base, error) {
	b := &Base{
		id:           id,
		mode:         mode,
		inputPorts:   make(map[string]*parameter.Parameter, len(inputs)),
		outputPorts:  make(map[string]*parameter.Parameter, len(outputs)),
		configFields: configFields,
		rawConfig:    rawConfig,
		status:       StatusPending,
	}
	for name, s := range inputs {
		b.inputPorts[name] = parameter.New(name, s)
	}
	for name, s := range outputs {
		b.outputPorts[name] = parameter.New(name, s)
	}
	if b.rawConfig == nil {
		b.rawConfig = map[string]any{}
	}
	for name, def := range configFields {
		val, present := b.rawConfig[name]
		if !present {
			if def.HasDefault {
				b.rawConfig[name] = def.Default
				continue
			}
			if def.Required {
				return nil, errs.Configuration("missing required config field",
					errs.WithNodeID(id), errs.WithField("field", name))
			}
			continue
		}
		_ = val
	}
	return b, nil
}

// SetHooks installs the concrete node's Hooks implementation (typically the outer struct
// embedding this Base, so method-shadowing overrides apply).
func (b *Base) SetHooks(h Hooks) { b.hooks = h }

// BindManager wires the ConnectionManager used by Emit to route outgoing chunks.
func (b *Base) BindManager(m *connection.Manager) { b.manager = m }

// BindResolver installs the template resolver used by resolveConfig.
func (b *Base) BindResolver(r *template.Resolver) { b.resolver.Store(r) }

func (b *Base) ID() string            { return b.id }
func (b *Base) Mode() ExecutionMode   { return b.mode }
func (b *Base) Config() map[string]any {
	return b.rawConfig
}

func (b *Base) Status() Status {
	b.statusMu.RLock()
	defer b.statusMu.RUnlock()
	return b.status
}

func (b *Base) setStatus(s Status) {
	b.statusMu.Lock()
	b.status = s
	b.statusMu.Unlock()
}

func (b *Base) InputPorts() map[string]*parameter.Parameter  { return b.inputPorts }
func (b *Base) OutputPorts() map[string]*parameter.Parameter { return b.outputPorts }

// ResolvedConfig is nil outside Execute/Run bodies (invariant 5).
func (b *Base) ResolvedConfig() map[string]any {
	b.resolvedMu.RLock()
	defer b.resolvedMu.RUnlock()
	return b.resolved
}

// GetConfig reads from ResolvedConfig if present, else raw Config; path accepts dotted keys.
func (b *Base) GetConfig(path string, fallback any) any {
	source := b.ResolvedConfig()
	if source == nil {
		source = b.rawConfig
	}
	v, ok := lookupDotted(source, path)
	if !ok {
		return fallback
	}
	return v
}

func lookupDotted(m map[string]any, path string) (any, bool) {
	if path == "" {
		return m, true
	}
	var current any = m
	for _, key := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := asMap[key]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

// resolveConfig walks the union of the raw config and overrides, rendering every string leaf
// through the template resolver and reparsing standalone literals; non-string leaves pass
// through untouched. A render failure on a leaf degrades to a warning, keeping that leaf
// unresolved (templates may reference future outputs the node happens not to need).
func (b *Base) resolveConfig(overrides map[string]any, warn func(string)) map[string]any {
	merged := make(map[string]any, len(b.rawConfig)+len(overrides))
	for k, v := range b.rawConfig {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	r := b.resolver.Load()
	resolved := resolveTree(merged, r, warn)
	b.resolvedMu.Lock()
	b.resolved = resolved
	b.resolvedMu.Unlock()
	return resolved
}

func resolveTree(v any, r *template.Resolver, warn func(string)) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			out[k] = resolveTree(nested, r, warn)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, nested := range val {
			out[i] = resolveTree(nested, r, warn)
		}
		return out
	case string:
		if r == nil || !strings.Contains(val, "{{") {
			return val
		}
		rendered, err := r.Render(val, nil)
		if err != nil {
			if warn != nil {
				warn("config resolution failed, keeping unresolved value: " + err.Error())
			}
			return val
		}
		return template.ReparseLiteral(rendered)
	default:
		return v
	}
}

// clearResolvedConfig drops the resolved view once a sequential-phase invocation completes,
// preserving invariant 5 (resolved config observable only inside Execute/Run).
func (b *Base) clearResolvedConfig() {
	b.resolvedMu.Lock()
	b.resolved = nil
	b.resolvedMu.Unlock()
}

// Emit schema-validates payload against the named output port and routes it via the bound
// ConnectionManager.
func (b *Base) Emit(ctx context.Context, port string, payload any) error {
	p, ok := b.outputPorts[port]
	if !ok {
		return errs.Configuration("unknown output port", errs.WithNodeID(b.id), errs.WithField("port", port))
	}
	chunk, err := p.Emit(payload)
	if err != nil {
		return errs.NodeExecution(b.id, err)
	}
	if b.manager == nil {
		return nil
	}
	return b.manager.RouteChunk(ctx, b.id, port, chunk)
}

// Feed injects externally-supplied data into a streaming input port.
func (b *Base) Feed(port string, payload any) error {
	p, ok := b.inputPorts[port]
	if !ok {
		return errs.Configuration("unknown input port", errs.WithNodeID(b.id), errs.WithField("port", port))
	}
	_, err := p.Emit(payload)
	return err
}

// CloseInput closes a streaming input port.
func (b *Base) CloseInput(port string) error {
	p, ok := b.inputPorts[port]
	if !ok {
		return errs.Configuration("unknown input port", errs.WithNodeID(b.id), errs.WithField("port", port))
	}
	p.Close()
	return nil
}

// ConsumeLoop dequeues chunks from the named input port until end-of-stream or ctx
// cancellation, dispatching each to the hooks' OnChunk. Exceptions (errors) from OnChunk are
// logged via warn but never terminate the loop — one bad chunk must not kill the pipeline.
func (b *Base) ConsumeLoop(ctx context.Context, port string, warn func(string)) {
	p, ok := b.inputPorts[port]
	if !ok || p.Queue() == nil {
		return
	}
	for {
		chunk, ok := p.Receive(ctx)
		if !ok {
			return
		}
		if err := b.runOnChunk(ctx, port, chunk, warn); err != nil && warn != nil {
			warn(err.Error())
		}
	}
}

func (b *Base) runOnChunk(ctx context.Context, port string, chunk *parameter.Chunk, warn func(string)) (err error) {
	defer func() {
		if r := recover(); r != nil && warn != nil {
			warn("panic in on_chunk, consumer loop continues")
		}
	}()
	if b.hooks == nil {
		return nil
	}
	return b.hooks.OnChunk(ctx, port, chunk)
}

// Initialize runs the node's one-time setup hook.
func (b *Base) Initialize(ctx context.Context, wctx *wfcontext.Context) error {
	if b.hooks == nil {
		return nil
	}
	if err := b.hooks.OnInitialize(ctx, wctx); err != nil {
		return errs.NodeExecution(b.id, err)
	}
	return nil
}

// Run runs the node's long-running body (streaming/hybrid) or sequential default.
func (b *Base) Run(ctx context.Context, wctx *wfcontext.Context) error {
	if b.hooks == nil {
		return nil
	}
	return b.hooks.OnRun(ctx, wctx)
}

// Execute runs the node during the ordered sequential phase, returning its output map.
func (b *Base) Execute(ctx context.Context, wctx *wfcontext.Context, overrides map[string]any, warn func(string)) (map[string]any, error) {
	b.setStatus(StatusRunning)
	b.resolveConfig(overrides, warn)
	defer b.clearResolvedConfig()

	if b.hooks == nil {
		b.setStatus(StatusSuccess)
		return nil, nil
	}
	out, err := b.hooks.OnExecute(ctx, wctx)
	if err != nil {
		b.setStatus(StatusFailed)
		return nil, errs.NodeExecution(b.id, err)
	}
	b.setStatus(StatusSuccess)
	return out, nil
}

// Shutdown releases node resources. Errors are the caller's to log only — shutdown failures
// never propagate as fatal.
func (b *Base) Shutdown(ctx context.Context) error {
	for _, p := range b.inputPorts {
		p.Close()
	}
	if b.hooks == nil {
		return nil
	}
	return b.hooks.OnShutdown(ctx)
}
