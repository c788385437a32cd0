package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoad_HydratesSections(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rotation.yaml"), `
MinDistancePct: 3
MaxDistancePct: 12
HoldMinutes: 240
`)
	writeFile(t, filepath.Join(dir, "engine.yaml"), `
MonitorSymbol: HSI
TickSeconds: 5
`)
	writeFile(t, filepath.Join(dir, "screener.yaml"), `
BaseURL: ${ROTOR_SCREENER_URL}
`)
	writeFile(t, filepath.Join(dir, "rotor.yaml"), `
Name: rotor
Host: 127.0.0.1
Port: 8901
Env: dev
TTL:
  Short: 10
  Medium: 60
  Long: 300
Rotation:
  File: rotation.yaml
Engine:
  File: engine.yaml
Screener:
  File: screener.yaml
`)
	t.Setenv("ROTOR_SCREENER_URL", "https://screener.example/api")

	cfg, err := Load(filepath.Join(dir, "rotor.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "dev" {
		t.Fatalf("Env got %q", cfg.Env)
	}
	if cfg.Rotation.Value == nil || cfg.Rotation.Value.HoldMinutes != 240 {
		t.Fatalf("rotation section not hydrated: %+v", cfg.Rotation.Value)
	}
	if cfg.Rotation.Value.MaxSearchFailuresPerDay != 3 {
		t.Fatalf("rotation defaults not applied, got %d", cfg.Rotation.Value.MaxSearchFailuresPerDay)
	}
	if cfg.Engine.Value == nil || cfg.Engine.Value.MonitorSymbol != "HSI" {
		t.Fatalf("engine section not hydrated: %+v", cfg.Engine.Value)
	}
	if cfg.Screener.Value == nil || cfg.Screener.Value.BaseURL != "https://screener.example/api" {
		t.Fatalf("screener env expansion failed: %+v", cfg.Screener.Value)
	}
	if cfg.BaseDir() != dir {
		t.Fatalf("BaseDir got %q want %q", cfg.BaseDir(), dir)
	}
}

func TestLoad_RejectsBadEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rotor.yaml"), `
Name: rotor
Host: 127.0.0.1
Port: 8901
Env: staging
TTL:
  Short: 10
  Medium: 60
  Long: 300
`)
	if _, err := Load(filepath.Join(dir, "rotor.yaml")); err == nil {
		t.Fatal("expected env validation error")
	}
}

func TestValidate_TTLBounds(t *testing.T) {
	cfg := &Config{JournalDir: "journal"}
	cfg.TTL.Short = 0
	cfg.TTL.Medium = 60
	cfg.TTL.Long = 300
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected ttl.short validation error")
	}
}
