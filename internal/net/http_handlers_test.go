package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"statforge"
	"statforge/internal/net/ws"
	"statforge/stats"
)

func newTestServer(t *testing.T) (*statforge.Store, *httptest.Server) {
	t.Helper()
	registry := ws.NewRegistry(nil)
	store := statforge.NewStore(statforge.StoreConfig{OnSync: registry.Publish})
	t.Cleanup(store.Close)

	handler := NewHTTPHandler(store, ws.NewHandler(store, registry, ws.HandlerConfig{}), HTTPHandlerConfig{})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return store, srv
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStatsEndpointReturnsOwnerValues(t *testing.T) {
	store, srv := newTestServer(t)
	store.SetBase("e1", "Combat.Health", 100)
	store.AddModifier("e1", "Combat.Health", stats.ModifierConfig{Value: 50, Kind: stats.KindAdditive, Source: "Potion"})

	resp, err := http.Get(srv.URL + "/stats?owner=e1")
	if err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload struct {
		Owner  string                    `json:"owner"`
		Values map[string]float64        `json:"values"`
		Stats  map[string]stats.Snapshot `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Owner != "e1" {
		t.Fatalf("unexpected owner %q", payload.Owner)
	}
	if got := payload.Values["Combat.Health"]; got != 150 {
		t.Fatalf("expected value 150, got %.3f", got)
	}
	if got := payload.Stats["Combat.Health"].Base; got != 100 {
		t.Fatalf("expected base 100, got %.3f", got)
	}
}

func TestStatsEndpointRequiresOwner(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without owner, got %d", resp.StatusCode)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	store, srv := newTestServer(t)
	store.SetBase("e1", "Combat.Health", 100)

	resp, err := http.Get(srv.URL + "/diagnostics")
	if err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Status string               `json:"status"`
		Owners int                  `json:"owners"`
		Store  statforge.StoreStats `json:"store"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Status != "ok" || payload.Owners != 1 {
		t.Fatalf("unexpected diagnostics payload: %+v", payload)
	}
	if payload.Store.Mutations == 0 {
		t.Fatalf("expected mutation counter to advance")
	}
}
