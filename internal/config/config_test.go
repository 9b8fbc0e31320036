package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    addr: 0.0.0.0:9090
    request_timeout: 5s
log:
  level: debug
wheel:
  default_segments: 20
  default_tier: easy
  spinner: manual
  spin_duration: 1500ms
data:
  database:
    path: /tmp/wheel-test.db
scan:
  workers: 4
  max_range: 1000
`)

	bc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if bc.Server.HTTP.Addr != "0.0.0.0:9090" {
		t.Errorf("expected addr from file, got %s", bc.Server.HTTP.Addr)
	}
	if bc.Server.HTTP.RequestTimeout.Duration != 5*time.Second {
		t.Errorf("expected 5s request timeout, got %s", bc.Server.HTTP.RequestTimeout)
	}
	if bc.Wheel.DefaultSegments != 20 || bc.Wheel.DefaultTier != "easy" {
		t.Errorf("unexpected wheel section %+v", bc.Wheel)
	}
	if bc.Wheel.Spinner != SpinnerManual {
		t.Errorf("expected manual spinner, got %s", bc.Wheel.Spinner)
	}
	if bc.Wheel.SpinDuration.Duration != 1500*time.Millisecond {
		t.Errorf("expected 1.5s spin, got %s", bc.Wheel.SpinDuration)
	}
	if bc.Scan.Workers != 4 || bc.Scan.MaxRange != 1000 {
		t.Errorf("unexpected scan section %+v", bc.Scan)
	}

	// Keys missing from the file keep their defaults.
	def := Default()
	if bc.Server.HTTP.ReadTimeout != def.Server.HTTP.ReadTimeout {
		t.Errorf("expected default read timeout, got %s", bc.Server.HTTP.ReadTimeout)
	}
	if bc.Wheel.SessionTTL != def.Wheel.SessionTTL {
		t.Errorf("expected default session ttl, got %s", bc.Wheel.SessionTTL)
	}
	if bc.Data.Database.Driver != "sqlite" {
		t.Errorf("expected default driver, got %s", bc.Data.Database.Driver)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	bc, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if bc.Wheel.DefaultSegments != 30 || bc.Wheel.DefaultTier != "medium" {
		t.Errorf("unexpected defaults %+v", bc.Wheel)
	}
	if bc.Wheel.SpinDuration.Duration != 800*time.Millisecond {
		t.Errorf("expected 800ms spin, got %s", bc.Wheel.SpinDuration)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvHTTPAddr, "127.0.0.1:7000")
	t.Setenv(EnvDBPath, "/tmp/override.db")
	t.Setenv(EnvLogLevel, "warn")

	bc, err := Load(writeConfig(t, "server:\n  http:\n    addr: 0.0.0.0:9090\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if bc.Server.HTTP.Addr != "127.0.0.1:7000" {
		t.Errorf("env should override addr, got %s", bc.Server.HTTP.Addr)
	}
	if bc.Data.Database.Path != "/tmp/override.db" {
		t.Errorf("env should override db path, got %s", bc.Data.Database.Path)
	}
	if bc.Log.Level != "warn" {
		t.Errorf("env should override log level, got %s", bc.Log.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"spinner":  "wheel:\n  spinner: magic\n",
		"driver":   "data:\n  database:\n    driver: postgres\n",
		"segments": "wheel:\n  default_segments: 5000\n",
		"timeouts": "scan:\n  default_timeout: 10m\n  max_timeout: 1m\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"250ms"`), &d); err != nil || d.Duration != 250*time.Millisecond {
		t.Errorf("string form: %s, %v", d, err)
	}
	if err := json.Unmarshal([]byte(`1000000000`), &d); err != nil || d.Duration != time.Second {
		t.Errorf("numeric form: %s, %v", d, err)
	}
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Error("expected error for bad duration")
	}
	out, _ := json.Marshal(Duration{2 * time.Second})
	if string(out) != `"2s"` {
		t.Errorf("expected \"2s\", got %s", out)
	}
}

func TestRepositoryConfigLoads(t *testing.T) {
	bc, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if bc.Wheel.Spinner != SpinnerTimer {
		t.Errorf("expected timer spinner, got %s", bc.Wheel.Spinner)
	}
}
