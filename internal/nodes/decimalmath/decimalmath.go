// Package decimalmath provides exact-precision arithmetic nodes backed by
// shopspring/decimal, for workflows where float64 rounding would corrupt monetary values.
package decimalmath

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/coachpo/streamflow/core/node"
	"github.com/coachpo/streamflow/core/schema"
	"github.com/coachpo/streamflow/core/wfcontext"
)

// Sum adds a config-resolved list of decimal-string operands, emitting the exact-precision
// result as a string on "result".
type Sum struct {
	*node.Base
	node.BaseHooks
}

// NewSum is a node.Constructor for type "decimalmath.sum". Config: {"values": []any} where
// each element is a decimal-formatted string or number.
func NewSum(id string, cfg map[string]any, _ any) (node.Node, error) {
	b, err := node.NewBase(id, node.Sequential, nil,
		map[string]*schema.Schema{"result": schema.New(schema.KindString, false)},
		map[string]schema.FieldDef{"values": {Type: schema.KindList, Required: true}}, cfg)
	if err != nil {
		return nil, err
	}
	n := &Sum{Base: b}
	n.BaseHooks.Self = n
	n.SetHooks(n)
	return n, nil
}

func (n *Sum) OnExecute(context.Context, *wfcontext.Context) (map[string]any, error) {
	raw, _ := n.GetConfig("values", nil).([]any)
	total := decimal.Zero
	for i, v := range raw {
		d, err := toDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
		total = total.Add(d)
	}
	return map[string]any{"result": total.String()}, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(x)
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported operand type %T", v)
	}
}
