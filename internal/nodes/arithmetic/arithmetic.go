// Package arithmetic provides pure sequential-phase nodes: a literal source and binary
// integer operators, the minimal building blocks node graphs chain through templates.
package arithmetic

import (
	"context"
	"fmt"

	"github.com/coachpo/streamflow/core/node"
	"github.com/coachpo/streamflow/core/schema"
	"github.com/coachpo/streamflow/core/wfcontext"
)

// Constant emits a fixed, config-declared integer as its "value" output.
type Constant struct {
	*node.Base
	node.BaseHooks
}

// NewConstant is a node.Constructor for type "arithmetic.constant". Config: {"value": int}.
func NewConstant(id string, cfg map[string]any, _ any) (node.Node, error) {
	b, err := node.NewBase(id, node.Sequential, nil,
		map[string]*schema.Schema{"value": schema.New(schema.KindInteger, false)},
		map[string]schema.FieldDef{"value": {Type: schema.KindInteger, Required: true}}, cfg)
	if err != nil {
		return nil, err
	}
	n := &Constant{Base: b}
	n.BaseHooks.Self = n
	n.SetHooks(n)
	return n, nil
}

func (n *Constant) OnExecute(context.Context, *wfcontext.Context) (map[string]any, error) {
	return map[string]any{"value": n.GetConfig("value", int64(0))}, nil
}

// BinaryOp applies one of "add"/"subtract"/"multiply" to two config-resolved operands "a"
// and "b", emitting the result as "result".
type BinaryOp struct {
	*node.Base
	node.BaseHooks
}

// NewBinaryOp is a node.Constructor for type "arithmetic.binary_op".
// Config: {"op": "add"|"subtract"|"multiply", "a": int|template, "b": int|template}.
func NewBinaryOp(id string, cfg map[string]any, _ any) (node.Node, error) {
	b, err := node.NewBase(id, node.Sequential, nil,
		map[string]*schema.Schema{"result": schema.New(schema.KindInteger, false)},
		map[string]schema.FieldDef{
			"op": {Type: schema.KindString, Required: true},
			"a":  {Type: schema.KindInteger, Required: true},
			"b":  {Type: schema.KindInteger, Required: true},
		}, cfg)
	if err != nil {
		return nil, err
	}
	n := &BinaryOp{Base: b}
	n.BaseHooks.Self = n
	n.SetHooks(n)
	return n, nil
}

func (n *BinaryOp) OnExecute(context.Context, *wfcontext.Context) (map[string]any, error) {
	a, err := asInt64(n.GetConfig("a", int64(0)))
	if err != nil {
		return nil, fmt.Errorf("operand a: %w", err)
	}
	b, err := asInt64(n.GetConfig("b", int64(0)))
	if err != nil {
		return nil, fmt.Errorf("operand b: %w", err)
	}
	op, _ := n.GetConfig("op", "add").(string)

	var result int64
	switch op {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	default:
		return nil, fmt.Errorf("unknown binary operator %q", op)
	}
	return map[string]any{"result": result}, nil
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not an integer", v, v)
	}
}
