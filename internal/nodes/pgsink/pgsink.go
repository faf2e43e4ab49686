// Package pgsink provides a Postgres-backed sink node: every chunk or one-shot value it
// receives is JSON-encoded (goccy/go-json) and persisted to workflow_sink_records, with an
// embedded schema migration applied on initialize via golang-migrate and a pgxpool-backed
// connection pool.
package pgsink

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/streamflow/core/node"
	"github.com/coachpo/streamflow/core/parameter"
	"github.com/coachpo/streamflow/core/schema"
	"github.com/coachpo/streamflow/core/wfcontext"
)

// Sink persists every value it receives on its input port to Postgres as a JSONB row.
// Mode is chosen from the node's declared input schema: a streaming input records every
// chunk via OnChunk, a one-shot input records once via OnExecute.
type Sink struct {
	*node.Base
	node.BaseHooks

	pool *pgxpool.Pool
}

// NewStreamingSink is a node.Constructor for type "pgsink.stream". Config: {"dsn": string}.
func NewStreamingSink(id string, cfg map[string]any, _ any) (node.Node, error) {
	return newSink(id, node.Streaming,
		map[string]*schema.Schema{"in": schema.New(schema.KindAny, true)}, nil, cfg)
}

// NewOneShotSink is a node.Constructor for type "pgsink.value". Config: {"dsn": string}.
func NewOneShotSink(id string, cfg map[string]any, _ any) (node.Node, error) {
	return newSink(id, node.Sequential,
		map[string]*schema.Schema{"in": schema.New(schema.KindAny, false)}, nil, cfg)
}

func newSink(id string, mode node.ExecutionMode, inputs, outputs map[string]*schema.Schema, cfg map[string]any) (node.Node, error) {
	b, err := node.NewBase(id, mode, inputs, outputs,
		map[string]schema.FieldDef{"dsn": {Type: schema.KindString, Required: true}}, cfg)
	if err != nil {
		return nil, err
	}
	n := &Sink{Base: b}
	n.BaseHooks.Self = n
	n.SetHooks(n)
	return n, nil
}

func (n *Sink) OnInitialize(ctx context.Context, _ *wfcontext.Context) error {
	dsn, _ := n.GetConfig("dsn", "").(string)
	if dsn == "" {
		return fmt.Errorf("pgsink: dsn is required")
	}
	if err := applyMigrations(dsn); err != nil {
		return err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	n.pool = pool
	return nil
}

func (n *Sink) OnShutdown(context.Context) error {
	if n.pool != nil {
		n.pool.Close()
	}
	return nil
}

func (n *Sink) OnChunk(ctx context.Context, port string, chunk *parameter.Chunk) error {
	if port != "in" {
		return nil
	}
	return n.insert(ctx, chunk.Payload)
}

func (n *Sink) OnExecute(ctx context.Context, _ *wfcontext.Context) (map[string]any, error) {
	value, _ := n.InputPorts()["in"].GetValue()
	if err := n.insert(ctx, value); err != nil {
		return nil, err
	}
	return nil, nil
}

func (n *Sink) insert(ctx context.Context, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = n.pool.Exec(ctx,
		`INSERT INTO workflow_sink_records (node_id, port, payload) VALUES ($1, $2, $3)`,
		n.ID(), "in", encoded)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}
