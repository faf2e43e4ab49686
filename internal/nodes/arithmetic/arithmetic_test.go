package arithmetic

import (
	"context"
	"testing"
)

func TestConstantEmitsConfiguredValue(t *testing.T) {
	n, err := NewConstant("c", map[string]any{"value": int64(42)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := n.Execute(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["value"] != int64(42) {
		t.Fatalf("expected 42, got %v", out["value"])
	}
}

func TestBinaryOpAddSubtractMultiply(t *testing.T) {
	cases := []struct {
		op       string
		a, b     int64
		expected int64
	}{
		{"add", 2, 3, 5},
		{"subtract", 5, 3, 2},
		{"multiply", 4, 3, 12},
	}
	for _, c := range cases {
		n, err := NewBinaryOp("op", map[string]any{"op": c.op, "a": c.a, "b": c.b}, nil)
		if err != nil {
			t.Fatal(err)
		}
		out, err := n.Execute(context.Background(), nil, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if out["result"] != c.expected {
			t.Fatalf("%s(%d,%d): expected %d, got %v", c.op, c.a, c.b, c.expected, out["result"])
		}
	}
}

func TestBinaryOpUnknownOperatorFails(t *testing.T) {
	n, err := NewBinaryOp("op", map[string]any{"op": "divide", "a": int64(1), "b": int64(1)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.Execute(context.Background(), nil, nil, nil); err == nil {
		t.Fatalf("expected unknown-operator error")
	}
}
