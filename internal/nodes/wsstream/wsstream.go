// Package wsstream provides a streaming source node that dials a WebSocket endpoint and
// emits each received text message as a chunk, reconnecting with exponential backoff:
// dial, read loop, backoff on failure, clean shutdown on context cancellation.
package wsstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/coachpo/streamflow/core/node"
	"github.com/coachpo/streamflow/core/schema"
	"github.com/coachpo/streamflow/core/wfcontext"
)

const maxReconnectInterval = 30 * time.Second

// Source is a streaming node: its "messages" output port carries each inbound WebSocket
// text frame as a string chunk.
type Source struct {
	*node.Base
	node.BaseHooks
}

// NewSource is a node.Constructor for type "wsstream.source". Config: {"url": string}.
func NewSource(id string, cfg map[string]any, _ any) (node.Node, error) {
	b, err := node.NewBase(id, node.Streaming, nil,
		map[string]*schema.Schema{"messages": schema.New(schema.KindString, true)},
		map[string]schema.FieldDef{"url": {Type: schema.KindString, Required: true}}, cfg)
	if err != nil {
		return nil, err
	}
	n := &Source{Base: b}
	n.BaseHooks.Self = n
	n.SetHooks(n)
	return n, nil
}

func (n *Source) OnRun(ctx context.Context, _ *wfcontext.Context) error {
	url, _ := n.GetConfig("url", "").(string)
	if url == "" {
		return fmt.Errorf("wsstream.source: url is required")
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxReconnectInterval

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			sleep := backoffCfg.NextBackOff()
			if sleep == backoff.Stop {
				sleep = maxReconnectInterval
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(sleep):
				continue
			}
		}
		backoffCfg.Reset()

		if err := n.readLoop(ctx, conn); err != nil && !errors.Is(err, context.Canceled) {
			_ = conn.Close(websocket.StatusInternalError, "read loop failed")
			sleep := backoffCfg.NextBackOff()
			if sleep == backoff.Stop {
				sleep = maxReconnectInterval
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(sleep):
				continue
			}
		}
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
		return nil
	}
}

func (n *Source) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return context.Canceled
			}
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}
		if err := n.Emit(ctx, "messages", string(data)); err != nil {
			return fmt.Errorf("emit: %w", err)
		}
	}
}
