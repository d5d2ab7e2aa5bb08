package statusapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"faultline/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Build(config.Params{
		IP:                 "127.0.0.1",
		Port:               8080,
		DestIP:             "127.0.0.1",
		DestPort:           9000,
		LatencyProbability: 1.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

func TestHealthzAlwaysOK(t *testing.T) {
	srv := NewServer(NewRegistry(), testConfig(t))

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("got status field %q, want \"ok\"", body["status"])
	}
	if body["runId"] == "" {
		t.Fatal("expected non-empty runId")
	}
}

func TestStatsReflectsRegisteredConnections(t *testing.T) {
	registry := NewRegistry()
	srv := NewServer(registry, testConfig(t))

	var aToB, bToA int64 = 100, 200
	registry.Register("conn-1", &aToB, &bToA)

	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var body struct {
		RunID       string           `json:"runId"`
		Connections []ConnectionStat `json:"connections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Connections) != 1 {
		t.Fatalf("got %d connections, want 1", len(body.Connections))
	}
	if body.Connections[0].ID != "conn-1" || body.Connections[0].AToB != 100 || body.Connections[0].BToA != 200 {
		t.Fatalf("unexpected connection stat: %+v", body.Connections[0])
	}

	registry.Deregister("conn-1")

	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req)
	var body2 struct {
		Connections []ConnectionStat `json:"connections"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &body2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body2.Connections) != 0 {
		t.Fatalf("got %d connections after deregister, want 0", len(body2.Connections))
	}
}

func TestConfigEndpointReflectsEffectiveConfig(t *testing.T) {
	cfg := testConfig(t)
	srv := NewServer(NewRegistry(), cfg)

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var body struct {
		Listen config.Listen `json:"listen"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Listen.DestPort != 9000 {
		t.Fatalf("got dest port %d, want 9000", body.Listen.DestPort)
	}
}
