package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestFetchReturnsBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n, err := NewFetch("f", map[string]any{"url": srv.URL, "requests_per_second": 100.0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := n.Execute(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["status"] != int64(200) || out["body"] != "ok" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestFetchRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	n, err := NewFetch("f", map[string]any{
		"url": srv.URL, "max_retries": int64(5), "requests_per_second": 1000.0,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := n.Execute(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["body"] != "recovered" {
		t.Fatalf("expected eventual success, got %+v", out)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestFetchRejectsEmptyURL(t *testing.T) {
	n, err := NewFetch("f", map[string]any{"url": ""}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.Execute(context.Background(), nil, nil, nil); err == nil {
		t.Fatalf("expected empty url to fail execution")
	}
}
