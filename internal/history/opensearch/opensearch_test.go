package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/vigil/internal/history"
)

func TestOpenSearchSinkSend(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	sink := New(srv.URL, "service-events")
	e := history.Event{
		Type:       history.EventCrash,
		OccurredAt: time.Now().UTC(),
		Service:    "api-worker",
		PID:        321,
		Restarts:   2,
		Detail:     "exit status 1",
	}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Fatalf("method = %s", gotMethod)
	}
	if gotPath != "/service-events/_doc" {
		t.Fatalf("path = %s", gotPath)
	}
	var back history.Event
	if err := json.Unmarshal(gotBody, &back); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if back.Service != "api-worker" || back.Type != history.EventCrash || back.Restarts != 2 {
		t.Fatalf("document mangled: %+v", back)
	}
}

func TestOpenSearchSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index is read only", http.StatusForbidden)
	}))
	defer srv.Close()

	sink := New(srv.URL, "service-events")
	e := history.Event{Type: history.EventStop, OccurredAt: time.Now().UTC(), Service: "s"}
	if err := sink.Send(context.Background(), e); err == nil {
		t.Fatalf("expected error for 403 response")
	}
}

func TestOpenSearchSinkTrimsBaseURL(t *testing.T) {
	sink := New("http://localhost:9200///", "idx")
	if sink.baseURL != "http://localhost:9200" {
		t.Fatalf("baseURL = %q", sink.baseURL)
	}
}
