package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.Handler) *Server {
	t.Helper()
	return New(handler, Config{
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestServer_ServesUntilContextDone(t *testing.T) {
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	var order []string
	srv.OnShutdown("database", func(ctx context.Context) error {
		order = append(order, "database")
		return nil
	})
	srv.OnShutdown("redis", func(ctx context.Context) error {
		order = append(order, "redis")
		return nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected shutdown error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	if len(order) != 2 || order[0] != "redis" || order[1] != "database" {
		t.Fatalf("expected LIFO shutdown, got %v", order)
	}
}

func TestServer_ShutdownErrorsAreJoined(t *testing.T) {
	srv := newTestServer(t, http.NotFoundHandler())
	errDB := errors.New("db close failed")
	closed := false
	srv.OnShutdown("database", func(ctx context.Context) error { return errDB })
	srv.OnShutdown("redis", func(ctx context.Context) error {
		closed = true
		return nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = srv.Serve(ctx, ln)
	if !errors.Is(err, errDB) {
		t.Fatalf("expected joined shutdown error, got %v", err)
	}
	if !closed {
		t.Fatal("later components must still be closed")
	}
}
