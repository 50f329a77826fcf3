package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
dispatch:
  offer_timeout_seconds: 10
  global_timeout_seconds: 120
  search_radius_km: 25
pricing:
  base_fee: 60
  per_km_fee: 1.5
store:
  backend: sqlite
  path: /tmp/petriage-test.db
api:
  addr: ":9999"
mqtt:
  enabled: true
  broker: tcp://localhost:1883
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dispatch.OfferTimeoutSeconds != 10 {
		t.Errorf("offer timeout = %d", cfg.Dispatch.OfferTimeoutSeconds)
	}
	if cfg.Dispatch.OfferTTL() != 10*time.Second {
		t.Errorf("offer ttl = %s", cfg.Dispatch.OfferTTL())
	}
	if cfg.Dispatch.SearchRadiusKm != 25 {
		t.Errorf("radius = %v", cfg.Dispatch.SearchRadiusKm)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/tmp/petriage-test.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.API.Addr != ":9999" {
		t.Errorf("api addr = %s", cfg.API.Addr)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
}

func TestLoad_DefaultsFill(t *testing.T) {
	path := writeTemp(t, "config.json", `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dispatch.OfferTimeoutSeconds != 20 {
		t.Errorf("default offer timeout = %d", cfg.Dispatch.OfferTimeoutSeconds)
	}
	if cfg.Dispatch.GlobalTimeoutSeconds != 300 {
		t.Errorf("default global timeout = %d", cfg.Dispatch.GlobalTimeoutSeconds)
	}
	if cfg.Geofence.ArrivalRadiusM != 50 {
		t.Errorf("default arrival radius = %v", cfg.Geofence.ArrivalRadiusM)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("default backend = %s", cfg.Store.Backend)
	}
	if cfg.API.Addr != ":8080" {
		t.Errorf("default api addr = %s", cfg.API.Addr)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PETRIAGE_STORE__BACKEND", "sqlite")
	path := writeTemp(t, "config.yaml", "store:\n  backend: memory\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("env override ignored, backend = %s", cfg.Store.Backend)
	}
}

func TestLoad_Invalid(t *testing.T) {
	if _, err := Load(writeTemp(t, "config.toml", "")); err == nil {
		t.Error("unsupported extension should fail")
	}
	if _, err := Load(writeTemp(t, "config.yaml", "store:\n  backend: redis\n")); err == nil {
		t.Error("unknown backend should fail validation")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestDecodeRoster_YAML(t *testing.T) {
	roster, err := DecodeRoster(strings.NewReader(`
vets:
  - id: v1
    name: Dr Martin
    location:
      lat: 48.85
      lng: 2.35
    approved: true
    emergency_capable: true
    in_person_capable: true
  - id: v2
    name: Dr Lopez
    location:
      lat: 45.76
      lng: 4.83
    approved: true
    emergency_capable: true
    status: busy
`), "yaml")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(roster.Vets) != 2 {
		t.Fatalf("want 2 vets, got %d", len(roster.Vets))
	}
	// Empty status defaults to available.
	if roster.Vets[0].Status != "available" || !roster.Vets[0].Available {
		t.Errorf("default status not applied: %+v", roster.Vets[0])
	}
	if roster.Vets[1].Status != "busy" {
		t.Errorf("explicit status lost: %+v", roster.Vets[1])
	}
}

func TestDecodeRoster_Invalid(t *testing.T) {
	if _, err := DecodeRoster(strings.NewReader(`{"vets":[{"id":"v1"}]}`), "json"); err == nil {
		t.Error("vet without coordinates should fail validation")
	}
	if _, err := DecodeRoster(strings.NewReader("vets: []\n"), "toml"); err == nil {
		t.Error("unsupported format should fail")
	}
}
