package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/mhersta/conveyor/pkg/api"
)

func TestWebhookHandlerPostsJSON(t *testing.T) {
	var gotMethod, gotContentType, gotHeader string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotHeader = r.Header.Get("X-Api-Key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"received": true}`))
	}))
	defer srv.Close()

	h := NewWebhookHandler(srv.Client())
	res, err := h.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"body":    map[string]any{"order_id": "ord_1"},
		"headers": map[string]any{"X-Api-Key": "secret"},
	}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Fatalf("method = %q, want POST", gotMethod)
	}
	if gotContentType != "application/json" || gotHeader != "secret" {
		t.Fatalf("headers = %q/%q", gotContentType, gotHeader)
	}
	if gotBody["order_id"] != "ord_1" {
		t.Fatalf("request body = %v", gotBody)
	}

	m := res.(map[string]any)
	if m["status_code"] != http.StatusOK {
		t.Fatalf("status_code = %v", m["status_code"])
	}
	body, ok := m["body"].(map[string]any)
	if !ok || body["received"] != true {
		t.Fatalf("response body = %v", m["body"])
	}
}

func TestWebhookHandlerCustomMethod(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewWebhookHandler(srv.Client())
	_, err := h.Execute(context.Background(), map[string]any{
		"url":    srv.URL,
		"method": http.MethodPut,
	}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("method = %q, want PUT", gotMethod)
	}
}

func TestWebhookHandlerNon2xxPreservesStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h := NewWebhookHandler(srv.Client())
	_, err := h.Execute(context.Background(), map[string]any{"url": srv.URL}, nil)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}

	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error is %T, want *api.HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status code = %d, want 429", httpErr.StatusCode)
	}
}

func TestWebhookHandlerNonJSONResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text ack"))
	}))
	defer srv.Close()

	h := NewWebhookHandler(srv.Client())
	res, err := h.Execute(context.Background(), map[string]any{"url": srv.URL}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.(map[string]any)["body"] != "plain text ack" {
		t.Fatalf("body = %v", res.(map[string]any)["body"])
	}
}

func TestWebhookHandlerRequiresURL(t *testing.T) {
	h := NewWebhookHandler(http.DefaultClient)
	if _, err := h.Execute(context.Background(), map[string]any{}, nil); err == nil {
		t.Fatal("expected error for missing url")
	}
}
