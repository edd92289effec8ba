package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DetailMinChars != 500 || cfg.MinAvgChars != 250 || !cfg.OCREnabled || cfg.OCRLang != "deu+eng" || cfg.Workers < 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if filepath.Base(cfg.DBPath) != "wegtop.db" {
		t.Fatalf("db path=%s", cfg.DBPath)
	}
}

func TestLoadOverridesAndClamps(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WORKERS", "-3")
	t.Setenv("DETAIL_MIN_CHARS", "abc")
	t.Setenv("OCR_ENABLED", "off")
	t.Setenv("LAYOUT_GAIN_RATIO", "2.5")
	t.Setenv("LISTENER_SCHEDULE", "*/15 * * * *")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workers != 1 || cfg.DetailMinChars != 500 || cfg.OCREnabled || cfg.LayoutGainRatio != 2.5 || cfg.ListenerSchedule != "*/15 * * * *" {
		t.Fatalf("unexpected: %+v", cfg)
	}
	if opts := cfg.IngestOptions(); opts.OCREnabled || opts.LayoutGainRatio != 2.5 {
		t.Fatalf("ingest options: %+v", opts)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("API_KEY=secret\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("API_KEY") })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "secret" {
		t.Fatalf("api key=%q", cfg.APIKey)
	}
}

func TestEngineOptionsBadRules(t *testing.T) {
	cfg := Config{RulesPath: filepath.Join(t.TempDir(), "missing.yaml")}
	if _, err := cfg.EngineOptions(); err == nil {
		t.Fatalf("expected error")
	}
	if err := cfg.Require("IMAP_HOST", " "); err == nil {
		t.Fatalf("expected missing var error")
	}
}
