package announce

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{Pattern: `https://[a-z]+\.example\.com`, Endpoint: "http://reg"}, true},
		{"missing pattern", Config{Endpoint: "http://reg"}, false},
		{"bad pattern", Config{Pattern: `https://(`, Endpoint: "http://reg"}, false},
		{"missing endpoint", Config{Pattern: `x`}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestScannerRegistersFirstMatchOnce(t *testing.T) {
	type seen struct {
		method string
		auth   string
		body   map[string]string
	}
	got := make(chan seen, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- seen{method: r.Method, auth: r.Header.Get("Authorization"), body: body}
	}))
	defer srv.Close()

	t.Setenv("ANNOUNCE_TEST_TOKEN", "sekret")
	s, err := New(Config{
		Pattern:      `https://[a-z0-9-]+\.tunnel\.example/hooks/inbound`,
		Endpoint:     srv.URL,
		PayloadField: "webhook_event_url",
		BearerEnv:    "ANNOUNCE_TEST_TOKEN",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Scan("booting up...")
	s.Scan("tunnel ready at https://ab12-cd.tunnel.example/hooks/inbound (region eu)")
	s.Scan("tunnel ready at https://other.tunnel.example/hooks/inbound")

	select {
	case rec := <-got:
		if rec.method != http.MethodPatch {
			t.Fatalf("method = %s, want PATCH", rec.method)
		}
		if rec.auth != "Bearer sekret" {
			t.Fatalf("auth = %q", rec.auth)
		}
		if rec.body["webhook_event_url"] != "https://ab12-cd.tunnel.example/hooks/inbound" {
			t.Fatalf("payload = %v", rec.body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("registration never reached the endpoint")
	}

	// second match in the same run must not register again
	select {
	case rec := <-got:
		t.Fatalf("unexpected second registration: %v", rec)
	case <-time.After(200 * time.Millisecond):
	}

	if s.LastURL() != "https://ab12-cd.tunnel.example/hooks/inbound" {
		t.Fatalf("LastURL = %q", s.LastURL())
	}
}

func TestScannerResetReArms(t *testing.T) {
	got := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- body[DefaultPayloadField]
	}))
	defer srv.Close()

	s, err := New(Config{Pattern: `https://\S+`, Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Scan("url https://first.example")
	select {
	case u := <-got:
		if u != "https://first.example" {
			t.Fatalf("first url = %q", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first registration missing")
	}

	s.Reset()
	s.Scan("url https://second.example")
	select {
	case u := <-got:
		if u != "https://second.example" {
			t.Fatalf("second url = %q", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second registration missing after Reset")
	}
}

func TestScannerFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	s, err := New(Config{Pattern: `https://\S+`, Endpoint: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// must not panic or block
	s.Scan("url https://rejected.example")
	time.Sleep(100 * time.Millisecond)
	if s.LastURL() != "https://rejected.example" {
		t.Fatalf("LastURL = %q", s.LastURL())
	}
}
