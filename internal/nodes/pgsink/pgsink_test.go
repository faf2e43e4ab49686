package pgsink

import (
	"context"
	"testing"

	"github.com/coachpo/streamflow/core/wfcontext"
)

func TestStreamingSinkRequiresDSN(t *testing.T) {
	n, err := NewStreamingSink("sink", map[string]any{"dsn": ""}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Initialize(context.Background(), wfcontext.New()); err == nil {
		t.Fatalf("expected missing dsn to fail initialize")
	}
}

func TestOneShotSinkConstructionValidatesConfigFields(t *testing.T) {
	if _, err := NewOneShotSink("sink", map[string]any{}, nil); err == nil {
		t.Fatalf("expected missing required dsn field to fail construction")
	}
}
