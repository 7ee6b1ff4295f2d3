package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	addr, ok := srv.Listener.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener addr %T", srv.Listener.Addr())
	}
	return addr.Port
}

func TestCheckAnyResponseIsHealthy(t *testing.T) {
	for _, code := range []int{200, 404, 500} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		p := New(time.Second)
		if err := p.Check(context.Background(), serverPort(t, srv), "/health"); err != nil {
			t.Fatalf("status %d should count as healthy: %v", code, err)
		}
		srv.Close()
	}
}

func TestCheckConnectionRefusedIsUnhealthy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	p := New(time.Second)
	if err := p.Check(context.Background(), port, "/"); err == nil {
		t.Fatalf("expected error for closed port")
	}
}

func TestCheckTimeoutBoundsSlowServer(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	p := New(150 * time.Millisecond)
	start := time.Now()
	if err := p.Check(context.Background(), serverPort(t, srv), "/"); err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("probe not bounded by its timeout, took %v", elapsed)
	}
}

func TestCheckCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(time.Second)
	if err := p.Check(ctx, serverPort(t, srv), "/"); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
