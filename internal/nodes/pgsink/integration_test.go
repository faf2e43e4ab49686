//go:build integration

package pgsink

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/streamflow/core/parameter"
	"github.com/coachpo/streamflow/core/wfcontext"
)

// TestStreamingSinkPersistsChunksToPostgres spins up a real Postgres container, runs the
// sink's embedded migration, writes three chunks, and reads them back.
func TestStreamingSinkPersistsChunksToPostgres(t *testing.T) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "workflow"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatal(err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/workflow?sslmode=disable", host, port.Port())

	n, err := NewStreamingSink("sink", map[string]any{"dsn": dsn}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sink := n.(*Sink)
	if err := sink.Initialize(ctx, wfcontext.New()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer sink.Shutdown(ctx)

	for i := 0; i < 3; i++ {
		if err := sink.OnChunk(ctx, "in", parameter.NewChunk(map[string]any{"i": i})); err != nil {
			t.Fatalf("on chunk %d: %v", i, err)
		}
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM workflow_sink_records WHERE node_id = 'sink'`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 persisted records, got %d", count)
	}
}
