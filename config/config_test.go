package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverConfigPathFrom_FirstMatchWins(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	projectConfig := filepath.Join(cwd, "graphengine.yaml")
	if err := os.WriteFile(projectConfig, []byte("store_dsn: file:project.db"), 0o600); err != nil {
		t.Fatalf("WriteFile(project config) error = %v", err)
	}

	homeDir := filepath.Join(home, ".graphengine")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("MkdirAll(home config dir) error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(homeDir, "config.yaml"), []byte("store_dsn: file:home.db"), 0o600); err != nil {
		t.Fatalf("WriteFile(home config) error = %v", err)
	}

	got, found, err := DiscoverConfigPathFrom("", cwd, home)
	if err != nil {
		t.Fatalf("DiscoverConfigPathFrom() error = %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if got != projectConfig {
		t.Fatalf("path = %q, want %q", got, projectConfig)
	}
}

func TestDiscoverConfigPathFrom_ExplicitNotFound(t *testing.T) {
	_, found, err := DiscoverConfigPathFrom("/tmp/does-not-exist.yaml", t.TempDir(), t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
	if found {
		t.Fatal("found = true, want false")
	}
}

func TestDiscoverConfigPathFrom_NoneFound(t *testing.T) {
	_, found, err := DiscoverConfigPathFrom("", t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("DiscoverConfigPathFrom() error = %v", err)
	}
	if found {
		t.Fatal("found = true, want false")
	}
}

func TestLoadFrom_DefaultsWhenNothingSet(t *testing.T) {
	cfg, err := LoadFrom("", t.TempDir(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	want := Default()
	if cfg != want {
		t.Fatalf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestLoadFrom_FileOverridesDefaults(t *testing.T) {
	cwd := t.TempDir()
	content := "store_dsn: file:/var/lib/graphengine.db\nlisten_addr: :9090\n"
	if err := os.WriteFile(filepath.Join(cwd, "graphengine.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadFrom("", cwd, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.StoreDSN != "file:/var/lib/graphengine.db" {
		t.Fatalf("StoreDSN = %q, want file path from config", cfg.StoreDSN)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.CORSOrigin != Default().CORSOrigin {
		t.Fatalf("CORSOrigin = %q, want default %q (not set in file)", cfg.CORSOrigin, Default().CORSOrigin)
	}
}

func TestLoadFrom_EnvironOverridesFile(t *testing.T) {
	cwd := t.TempDir()
	content := "store_dsn: file:/var/lib/graphengine.db\n"
	if err := os.WriteFile(filepath.Join(cwd, "graphengine.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	environ := []string{
		"GRAPHENGINE_STORE_DSN=file:/env/override.db",
		"GRAPHENGINE_LISTEN_ADDR=:7070",
		"GRAPHENGINE_CORS_ORIGIN=https://example.test",
		"GRAPHENGINE_OTLP_ENDPOINT=http://collector:4318",
	}

	cfg, err := LoadFrom("", cwd, t.TempDir(), environ)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.StoreDSN != "file:/env/override.db" {
		t.Fatalf("StoreDSN = %q, want env override", cfg.StoreDSN)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("ListenAddr = %q, want :7070", cfg.ListenAddr)
	}
	if cfg.CORSOrigin != "https://example.test" {
		t.Fatalf("CORSOrigin = %q, want https://example.test", cfg.CORSOrigin)
	}
	if cfg.OTLPEndpoint != "http://collector:4318" {
		t.Fatalf("OTLPEndpoint = %q, want http://collector:4318", cfg.OTLPEndpoint)
	}
}
