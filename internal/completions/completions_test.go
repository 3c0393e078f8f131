package completions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInvokeStreamsBody(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req invokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ConversationID != "conv-1" || req.AgentID != "agent-a" {
			t.Errorf("unexpected request: %+v", req)
		}
		if !req.Stream {
			t.Error("expected stream=true")
		}

		w.Write([]byte(`{"token":"hello"}` + "\n"))
		w.Write([]byte(`{"token":" world","done":true}` + "\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", nil)
	stream, err := client.Invoke(context.Background(), "conv-1", "agent-a", "say hello")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	body, err := io.ReadAll(stream)
	stream.Close()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(body) == 0 {
		t.Error("expected non-empty stream body")
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q, want bearer token", gotAuth)
	}
}

func TestInvokeNoTokenOmitsAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte("{}\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", nil)
	stream, err := client.Invoke(context.Background(), "c", "a", "hi")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	stream.Close()
}

func TestInvokeErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", nil)
	_, err := client.Invoke(context.Background(), "c", "a", "hi")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestInvokeContextCancel(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL, "", nil)

	stream, err := client.Invoke(ctx, "c", "a", "hi")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	defer stream.Close()

	<-started
	cancel()

	done := make(chan error, 1)
	go func() { done <- Drain(stream) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error draining a cancelled stream")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not return after cancel")
	}
}
