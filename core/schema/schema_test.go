package schema

import (
	"errors"
	"testing"
)

func TestValidatePrimitiveAcceptsNilAndMatchingType(t *testing.T) {
	s := New(KindInteger, false)
	if v, err := s.Validate(nil); err != nil || v != nil {
		t.Fatalf("expected nil to pass through, got %v, %v", v, err)
	}
	if _, err := s.Validate(int64(7)); err != nil {
		t.Fatalf("expected int64 to validate: %v", err)
	}
	if _, err := s.Validate("nope"); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestValidateMappingAppliesDefaultThenRequiredThenRecurse(t *testing.T) {
	s := NewMapping(map[string]FieldDef{
		"rate":  {Type: KindInteger, Required: true},
		"codec": {Type: KindString, HasDefault: true, Default: "pcm16"},
	}, false)

	v, err := s.Validate(map[string]any{"rate": int64(16000)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := v.(map[string]any)
	if m["codec"] != "pcm16" {
		t.Fatalf("expected default codec materialized, got %v", m["codec"])
	}

	if _, err := s.Validate(map[string]any{}); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField for missing required rate, got %v", err)
	}

	if _, err := s.Validate("not a map"); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestEqualsStructuralNotNominal(t *testing.T) {
	a := NewMapping(map[string]FieldDef{"rate": {Type: KindInteger, Required: true}}, true)
	b := NewMapping(map[string]FieldDef{"rate": {Type: KindInteger, Required: true}}, true)
	a.Description = "port a"
	b.Description = "port b"
	if !a.Equals(b) {
		t.Fatalf("expected structurally identical schemas (differing only in description) to be equal")
	}

	c := NewMapping(map[string]FieldDef{"rate": {Type: KindString, Required: true}}, true)
	if a.Equals(c) {
		t.Fatalf("expected schemas with differing field types to be unequal")
	}

	d := NewMapping(map[string]FieldDef{"rate": {Type: KindInteger, Required: true}}, false)
	if a.Equals(d) {
		t.Fatalf("expected differing IsStreaming flags to make schemas unequal")
	}
}

func TestAnyAcceptsEverything(t *testing.T) {
	s := New(KindAny, false)
	for _, v := range []any{nil, 1, "x", []any{1, 2}, map[string]any{"a": 1}} {
		if _, err := s.Validate(v); err != nil {
			t.Fatalf("expected any to accept %v, got %v", v, err)
		}
	}
}
