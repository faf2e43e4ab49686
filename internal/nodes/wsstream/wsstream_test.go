package wsstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestSourceEmitsEachTextFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for _, msg := range []string{"one", "two", "three"} {
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(msg)); err != nil {
				return
			}
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	n, err := NewSource("src", map[string]any{"url": url}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, nil) }()

	p := n.OutputPorts()["messages"]
	for _, want := range []string{"one", "two", "three"} {
		chunk, ok := p.Receive(ctx)
		if !ok {
			t.Fatalf("expected chunk %q, queue closed", want)
		}
		if chunk.Payload != want {
			t.Fatalf("expected %q, got %v", want, chunk.Payload)
		}
	}
	cancel()
	<-done
}

func TestSourceRequiresURL(t *testing.T) {
	n, err := NewSource("src", map[string]any{"url": ""}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Run(context.Background(), nil); err == nil {
		t.Fatalf("expected empty url to fail")
	}
}
