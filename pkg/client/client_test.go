package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	if c.baseURL != "http://127.0.0.1:8080/api" {
		t.Errorf("Expected default baseURL http://127.0.0.1:8080/api, got %s", c.baseURL)
	}
	if c.client.Timeout != 10*time.Second {
		t.Errorf("Expected default timeout 10s, got %v", c.client.Timeout)
	}

	c = New(Config{BaseURL: "http://example.com/api", Timeout: 5 * time.Second})
	if c.baseURL != "http://example.com/api" {
		t.Errorf("Expected baseURL http://example.com/api, got %s", c.baseURL)
	}
	if c.client.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", c.client.Timeout)
	}
}

func fakeDaemon(t *testing.T, statuses []ServiceStatus) *httptest.Server {
	t.Helper()
	byName := make(map[string]ServiceStatus, len(statuses))
	for _, st := range statuses {
		byName[st.Name] = st
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(HealthResponse{OK: true})
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if name := r.URL.Query().Get("name"); name != "" {
			st, ok := byName[name]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "unknown service: " + name})
				return
			}
			_ = json.NewEncoder(w).Encode(st)
			return
		}
		_ = json.NewEncoder(w).Encode(statuses)
	})
	return httptest.NewServer(mux)
}

func TestIsReachableAndHealthz(t *testing.T) {
	srv := fakeDaemon(t, nil)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api", Timeout: time.Second})
	if !c.IsReachable(context.Background()) {
		t.Error("Expected daemon to be reachable")
	}
	if err := c.Healthz(context.Background()); err != nil {
		t.Errorf("Healthz: %v", err)
	}

	c = New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 100 * time.Millisecond})
	if c.IsReachable(context.Background()) {
		t.Error("Expected daemon to be unreachable")
	}
}

func TestStatusSingleAndAll(t *testing.T) {
	srv := fakeDaemon(t, []ServiceStatus{
		{Name: "gateway", State: "running", Running: true, PID: 42, Restarts: 1, UptimeSecs: 30},
		{Name: "agent", State: "cooldown", InCooldown: true, Restarts: 6},
	})
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api", Timeout: time.Second})

	st, err := c.Status(context.Background(), "gateway")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Name != "gateway" || !st.Running || st.PID != 42 {
		t.Fatalf("unexpected status: %+v", st)
	}

	sts, err := c.Statuses(context.Background())
	if err != nil {
		t.Fatalf("Statuses: %v", err)
	}
	if len(sts) != 2 || sts[1].State != "cooldown" {
		t.Fatalf("unexpected statuses: %+v", sts)
	}
}

func TestStatusUnknownNameIsAPIError(t *testing.T) {
	srv := fakeDaemon(t, nil)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api", Timeout: time.Second})
	_, err := c.Status(context.Background(), "nope")
	if err == nil {
		t.Fatal("Expected error for unknown service")
	}
	want := "API error: unknown service: nope"
	if err.Error() != want {
		t.Errorf("Expected error message %q, got %q", want, err.Error())
	}
}

func TestErrorEnvelopeWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	if _, err := c.Statuses(context.Background()); err == nil {
		t.Fatal("Expected error for 500 response")
	}
}

func TestNetworkErrors(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 100 * time.Millisecond})
	if _, err := c.Status(context.Background(), "x"); err == nil {
		t.Error("Expected network error for status")
	}
	if _, err := c.Statuses(context.Background()); err == nil {
		t.Error("Expected network error for statuses")
	}
	if err := c.Healthz(context.Background()); err == nil {
		t.Error("Expected network error for healthz")
	}
}

func TestInsecureTLSConfig(t *testing.T) {
	tlsConf, err := setupClientTLS(Config{Insecure: true})
	if err != nil {
		t.Fatalf("setupClientTLS: %v", err)
	}
	if !tlsConf.InsecureSkipVerify {
		t.Error("Expected InsecureSkipVerify for insecure config")
	}
}

func TestTLSConfigServerNameAndSkip(t *testing.T) {
	tlsConf, err := setupClientTLS(Config{TLS: &TLSClientConfig{
		Enabled:    true,
		ServerName: "vigil.local",
		SkipVerify: true,
	}})
	if err != nil {
		t.Fatalf("setupClientTLS: %v", err)
	}
	if tlsConf.ServerName != "vigil.local" || !tlsConf.InsecureSkipVerify {
		t.Fatalf("unexpected tls config: %+v", tlsConf)
	}
}

func TestTLSConfigMissingCACert(t *testing.T) {
	_, err := setupClientTLS(Config{TLS: &TLSClientConfig{
		Enabled: true,
		CACert:  "/nonexistent/ca.pem",
	}})
	if err == nil {
		t.Fatal("Expected error for missing CA certificate")
	}
}
