package jstransform

import (
	"context"
	"fmt"
	"testing"

	"github.com/coachpo/streamflow/core/parameter"
)

func TestTransformDoublesNumericValue(t *testing.T) {
	n, err := NewTransform("t", map[string]any{"expression": "value * 2"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.OnChunk(context.Background(), "in", parameter.NewChunk(int64(21))); err != nil {
		t.Fatalf("on chunk: %v", err)
	}
	chunk, ok := n.OutputPorts()["out"].Receive(context.Background())
	if !ok {
		t.Fatalf("expected output chunk")
	}
	if fmt.Sprint(chunk.Payload) != "42" {
		t.Fatalf("expected 42, got %v (%T)", chunk.Payload, chunk.Payload)
	}
}

func TestTransformInvalidExpressionFails(t *testing.T) {
	n, err := NewTransform("t", map[string]any{"expression": "value."}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.OnChunk(context.Background(), "in", parameter.NewChunk(int64(1))); err == nil {
		t.Fatalf("expected syntax error to surface")
	}
}
