// Package jstransform provides a streaming node that evaluates a user-supplied JavaScript
// expression against each inbound chunk, emitting the result. Distinct from core/template's
// resolver (which only renders {{ }} markers inside strings): this node runs a full
// expression per chunk as its core transform body, in a fresh goja.Runtime per chunk.
package jstransform

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/coachpo/streamflow/core/node"
	"github.com/coachpo/streamflow/core/parameter"
	"github.com/coachpo/streamflow/core/schema"
)

// Transform evaluates config field "expression" once per inbound chunk on "in", with the
// chunk payload bound to the identifier "value", emitting the result on "out".
type Transform struct {
	*node.Base
	node.BaseHooks
}

// NewTransform is a node.Constructor for type "jstransform.transform".
// Config: {"expression": string}, e.g. "value * 2" or "value.toUpperCase()".
func NewTransform(id string, cfg map[string]any, _ any) (node.Node, error) {
	b, err := node.NewBase(id, node.Streaming,
		map[string]*schema.Schema{"in": schema.New(schema.KindAny, true)},
		map[string]*schema.Schema{"out": schema.New(schema.KindAny, true)},
		map[string]schema.FieldDef{"expression": {Type: schema.KindString, Required: true}}, cfg)
	if err != nil {
		return nil, err
	}
	n := &Transform{Base: b}
	n.BaseHooks.Self = n
	n.SetHooks(n)
	return n, nil
}

func (n *Transform) OnChunk(ctx context.Context, port string, chunk *parameter.Chunk) error {
	if port != "in" {
		return nil
	}
	expr, _ := n.GetConfig("expression", "").(string)
	if expr == "" {
		return fmt.Errorf("jstransform.transform: expression is required")
	}

	vm := goja.New()
	if err := vm.Set("value", chunk.Payload); err != nil {
		return fmt.Errorf("bind value: %w", err)
	}
	result, err := vm.RunString(expr)
	if err != nil {
		return fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return n.Emit(ctx, "out", result.Export())
}
