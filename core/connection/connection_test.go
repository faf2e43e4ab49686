package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coachpo/streamflow/core/parameter"
	"github.com/coachpo/streamflow/core/schema"
	"github.com/coachpo/streamflow/lib/telemetry"
)

func TestConnectRejectsSchemaMismatch(t *testing.T) {
	m := NewManager(nil, nil)
	src := schema.New(schema.KindInteger, true)
	dst := parameter.New("in", schema.New(schema.KindString, true))
	if _, err := m.Connect("a", "out", src, "b", "in", dst); err == nil {
		t.Fatalf("expected schema mismatch to be rejected")
	}
}

func TestRouteChunkBroadcastFanOutPreservesOrderPerTarget(t *testing.T) {
	m := NewManager(nil, nil)
	s := schema.New(schema.KindInteger, true)
	a := parameter.New("in", s)
	b := parameter.New("in", s)
	c := parameter.New("in", s)
	for _, dst := range []*parameter.Parameter{a, b, c} {
		if _, err := m.Connect("S", "out", s, dst.Name, "in", dst); err != nil {
			t.Fatalf("connect: %v", err)
		}
	}

	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		chunk := parameter.NewChunk(i)
		if err := m.RouteChunk(ctx, "S", "out", chunk); err != nil {
			t.Fatalf("route chunk %d: %v", i, err)
		}
	}

	for _, dst := range []*parameter.Parameter{a, b, c} {
		for i := int64(1); i <= 3; i++ {
			chunk, ok := dst.Receive(ctx)
			if !ok || chunk.Payload != i {
				t.Fatalf("expected %d in order on target, got %v ok=%v", i, chunk, ok)
			}
		}
	}
}

func TestPropagateValueAssignsEveryOneShotTarget(t *testing.T) {
	m := NewManager(nil, nil)
	s := schema.New(schema.KindInteger, false)
	a := parameter.New("in", s)
	b := parameter.New("in", s)
	if _, err := m.Connect("S", "out", s, "a", "in", a); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Connect("S", "out", s, "b", "in", b); err != nil {
		t.Fatal(err)
	}

	if err := m.PropagateValue(context.Background(), "S", "out", int64(7)); err != nil {
		t.Fatalf("propagate: %v", err)
	}
	for _, p := range []*parameter.Parameter{a, b} {
		v, ok := p.GetValue()
		if !ok || v != int64(7) {
			t.Fatalf("expected target to receive 7, got %v, %v", v, ok)
		}
	}
}

func TestExternalSinkFanOutBothInvokedExactlyOnce(t *testing.T) {
	m := NewManager(nil, nil)
	s := schema.New(schema.KindInteger, true)

	var mu sync.Mutex
	counts := map[string]int{}
	record := func(name string) ExternalHandler {
		return func(_ context.Context, payload any) error {
			mu.Lock()
			counts[name]++
			mu.Unlock()
			return nil
		}
	}
	if _, err := m.ConnectExternal("S", "out", s, record("cb1")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ConnectExternal("S", "out", s, record("cb2")); err != nil {
		t.Fatal(err)
	}

	chunk := parameter.NewChunk(int64(1))
	if err := m.RouteChunk(context.Background(), "S", "out", chunk); err != nil {
		t.Fatalf("route: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if counts["cb1"] != 1 || counts["cb2"] != 1 {
		t.Fatalf("expected each external callback invoked exactly once, got %+v", counts)
	}
}

func TestOneShotReturnsOnlyNonStreamingInternalConnections(t *testing.T) {
	m := NewManager(nil, nil)
	oneShotSchema := schema.New(schema.KindInteger, false)
	streamingSchema := schema.New(schema.KindInteger, true)

	a := parameter.New("in", oneShotSchema)
	if _, err := m.Connect("S", "out1", oneShotSchema, "a", "in", a); err != nil {
		t.Fatal(err)
	}
	b := parameter.New("in", streamingSchema)
	if _, err := m.Connect("S", "out2", streamingSchema, "b", "in", b); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ConnectExternal("S", "out1", oneShotSchema, func(context.Context, any) error { return nil }); err != nil {
		t.Fatal(err)
	}

	oneShot := m.OneShot()
	if len(oneShot) != 1 || oneShot[0].TargetNode != "a" {
		t.Fatalf("expected exactly the one-shot internal connection, got %+v", oneShot)
	}
}

func TestSetMetricsIncrementsChunksRoutedPerTarget(t *testing.T) {
	m := NewManager(nil, nil)
	mp, _, err := telemetry.Init(context.Background(), telemetry.Config{})
	if err != nil {
		t.Fatal(err)
	}
	metrics, err := telemetry.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	m.SetMetrics(metrics)

	s := schema.New(schema.KindInteger, true)
	a := parameter.New("in", s)
	b := parameter.New("in", s)
	for _, dst := range []*parameter.Parameter{a, b} {
		if _, err := m.Connect("S", "out", s, dst.Name, "in", dst); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.RouteChunk(context.Background(), "S", "out", parameter.NewChunk(int64(1))); err != nil {
		t.Fatalf("route chunk: %v", err)
	}
	// Exercises the instrumented path; a no-op meter has nothing observable to assert on
	// beyond "did not panic," which the call above already establishes.
}

func TestPropagateValueExternalIsFireAndForget(t *testing.T) {
	m := NewManager(nil, nil)
	s := schema.New(schema.KindInteger, false)

	done := make(chan struct{})
	if _, err := m.ConnectExternal("S", "out", s, func(_ context.Context, payload any) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.PropagateValue(context.Background(), "S", "out", int64(1)); err != nil {
		t.Fatalf("propagate: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected fire-and-forget external callback to run")
	}
}
