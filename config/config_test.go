package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SERVER_PORT", "")
	os.Unsetenv("SERVER_PORT")

	cfg := Load()

	if cfg.Port != 8093 {
		t.Fatalf("port = %d, want default 8093", cfg.Port)
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 {
		t.Fatalf("audio defaults = %d/%d, want 16000/1", cfg.SampleRate, cfg.Channels)
	}
	if cfg.StatusFile != "data/status.json" {
		t.Fatalf("status file = %s", cfg.StatusFile)
	}
	if cfg.ASRModel != "fun-asr" {
		t.Fatalf("asr model = %s", cfg.ASRModel)
	}
}

func TestLoadYAMLOverlayAndEnvPriority(t *testing.T) {
	yamlPath := filepath.Join(t.TempDir(), "app.yaml")
	content := `
app:
  server:
    port: 9999
  minio:
    bucket: custom-bucket
  files:
    status_file: /var/lib/scribe/status.json
`
	if err := os.WriteFile(yamlPath, []byte(content), 0644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_FILE", yamlPath)
	t.Setenv("SERVER_PORT", "")
	os.Unsetenv("SERVER_PORT")
	t.Setenv("MINIO_BUCKET", "")
	os.Unsetenv("MINIO_BUCKET")

	cfg := Load()
	if cfg.Port != 9999 {
		t.Fatalf("port = %d, want 9999 from yaml", cfg.Port)
	}
	if cfg.MinioBucket != "custom-bucket" {
		t.Fatalf("bucket = %s, want custom-bucket", cfg.MinioBucket)
	}
	if cfg.StatusFile != "/var/lib/scribe/status.json" {
		t.Fatalf("status file = %s", cfg.StatusFile)
	}

	// Environment variables beat the file.
	t.Setenv("SERVER_PORT", "7777")
	cfg = Load()
	if cfg.Port != 7777 {
		t.Fatalf("port = %d, want 7777 from env", cfg.Port)
	}
}
