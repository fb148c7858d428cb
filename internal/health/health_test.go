package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegistry_AllHealthy(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("order-service", "test")
	registry.Register("postgres", func(context.Context) error { return nil })
	registry.Register("redis", func(context.Context) error { return nil })

	recorder := httptest.NewRecorder()
	registry.Handler()(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}

	var body struct {
		Status     string `json:"status"`
		Service    string `json:"service"`
		Components []struct {
			Component string `json:"component"`
			Healthy   bool   `json:"healthy"`
		} `json:"components"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Service != "order-service" {
		t.Fatalf("unexpected report: %+v", body)
	}
	if len(body.Components) != 2 {
		t.Fatalf("components = %d, want 2", len(body.Components))
	}
}

func TestRegistry_UnhealthyDependency(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("order-service", "test")
	registry.Register("postgres", func(context.Context) error { return nil })
	registry.Register("kafka", func(context.Context) error { return errors.New("broker unreachable") })

	recorder := httptest.NewRecorder()
	registry.Handler()(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want 503", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	registry.ReadyHandler()(recorder, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d, want 503", recorder.Code)
	}
}

func TestRegistry_NoProbesIsReady(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("user-service", "test")

	recorder := httptest.NewRecorder()
	registry.ReadyHandler()(recorder, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("ready status = %d, want 200", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	LiveHandler(recorder, httptest.NewRequest(http.MethodGet, "/live", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("live status = %d, want 200", recorder.Code)
	}
}
