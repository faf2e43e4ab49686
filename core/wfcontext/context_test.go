package wfcontext

import (
	"errors"
	"testing"
)

func TestSetGetOutputNestedPath(t *testing.T) {
	c := New()
	c.SetOutput("start", map[string]any{
		"data": map[string]any{
			"value": int64(100),
			"tags":  []any{"a", "b"},
		},
	})

	v, err := c.GetOutput("start", "data.value")
	if err != nil || v != int64(100) {
		t.Fatalf("expected 100, got %v, %v", v, err)
	}

	v, err = c.GetOutput("start", "data.tags[1]")
	if err != nil || v != "b" {
		t.Fatalf("expected 'b', got %v, %v", v, err)
	}
}

func TestGetOutputUndefinedPathFails(t *testing.T) {
	c := New()
	c.SetOutput("start", map[string]any{"data": map[string]any{"value": 1}})
	if _, err := c.GetOutput("start", "data.missing"); !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("expected ErrPathNotFound, got %v", err)
	}
	if _, err := c.GetOutput("missing", ""); !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("expected ErrPathNotFound for unknown node, got %v", err)
	}
}

func TestGlobalsRoundTrip(t *testing.T) {
	c := New()
	c.SetGlobal("threshold", int64(5))
	v, err := c.GetGlobal("threshold", "")
	if err != nil || v != int64(5) {
		t.Fatalf("expected 5, got %v, %v", v, err)
	}
}

func TestLogAppendOnly(t *testing.T) {
	c := New()
	c.Log("error", "y", "boom")
	c.Log("info", "z", "done")
	logs := c.Logs()
	if len(logs) != 2 || logs[0].NodeID != "y" || logs[1].NodeID != "z" {
		t.Fatalf("expected ordered log entries, got %+v", logs)
	}
}

type point struct {
	X int
	Y int
}

func TestResolvePathStructAttributeAccess(t *testing.T) {
	c := New()
	c.SetOutput("n", point{X: 3, Y: 4})
	v, err := c.GetOutput("n", "x")
	if err != nil || v != 3 {
		t.Fatalf("expected struct field access, got %v, %v", v, err)
	}
}
