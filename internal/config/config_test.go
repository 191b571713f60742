package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Language != "en" {
		t.Fatalf("expected default language en, got %q", cfg.Language)
	}
	if cfg.Project.Path != dir {
		t.Fatalf("expected project.path to default to startDir, got %q", cfg.Project.Path)
	}
}

func TestLoadFindsFileInParentDirectory(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	body := []byte(`{"language": "zh-CN", "project": {"name": "demo"}}`)
	if err := os.WriteFile(filepath.Join(root, "baton.config.json"), body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nested, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Language != "zh-CN" {
		t.Fatalf("expected zh-CN from discovered config file, got %q", cfg.Language)
	}
	if cfg.Project.Name != "demo" {
		t.Fatalf("expected project.name from discovered config file, got %q", cfg.Project.Name)
	}
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`{"language": "en"}`)
	if err := os.WriteFile(filepath.Join(dir, "baton.config.json"), body, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BATON_LANGUAGE", "zh-CN")

	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Language != "zh-CN" {
		t.Fatalf("expected environment to override file value, got %q", cfg.Language)
	}
}

func TestLoadParsesContainerAndNatsBlocks(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`{
		"acp": {"container": {"enabled": true, "image": "agents/opencode:latest", "host": "unix:///var/run/docker.sock"}},
		"nats": {"url": "nats://localhost:4222"}
	}`)
	if err := os.WriteFile(filepath.Join(dir, "baton.config.json"), body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.ACP.Container.Enabled {
		t.Fatal("expected acp.container.enabled to parse as true")
	}
	if cfg.ACP.Container.Image != "agents/opencode:latest" {
		t.Fatalf("expected container image to parse, got %q", cfg.ACP.Container.Image)
	}
	if cfg.Nats.URL != "nats://localhost:4222" {
		t.Fatalf("expected nats.url to parse, got %q", cfg.Nats.URL)
	}
}

func TestLoadExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom.json")
	if err := os.WriteFile(explicit, []byte(`{"language": "zh-CN"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	// A file at the default search location too, which must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "baton.config.json"), []byte(`{"language": "en"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir, explicit)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Language != "zh-CN" {
		t.Fatalf("expected explicit config path to win, got %q", cfg.Language)
	}
}
