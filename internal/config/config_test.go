package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.UploadBaud != DefaultUploadBaud {
		t.Fatalf("upload baud = %d, want %d", cfg.UploadBaud, DefaultUploadBaud)
	}
	if cfg.ESPChip != "auto" {
		t.Fatalf("esp chip = %q, want auto", cfg.ESPChip)
	}
	if cfg.ConnectRetries != 1 {
		t.Fatalf("connect retries = %d, want 1", cfg.ConnectRetries)
	}
}

func TestLoadMergesLocalOverDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".surge"), 0o755); err != nil {
		t.Fatal(err)
	}
	local := `{"upload_baud": 115200, "esp_chip": "esp32s3"}`
	if err := os.WriteFile(filepath.Join(dir, ".surge", "config.json"), []byte(local), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(dir)
	if cfg.UploadBaud != 115200 {
		t.Fatalf("upload baud = %d, want 115200", cfg.UploadBaud)
	}
	if cfg.ESPChip != "esp32s3" {
		t.Fatalf("esp chip = %q, want esp32s3", cfg.ESPChip)
	}
	// Untouched fields keep defaults
	if cfg.STM32Mode != "HOTPLUG" {
		t.Fatalf("stm32 mode = %q, want HOTPLUG", cfg.STM32Mode)
	}
}

func TestLoadIgnoresMalformedFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".surge"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".surge", "config.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(dir)
	if cfg.UploadBaud != DefaultUploadBaud {
		t.Fatalf("malformed config should fall back to defaults, got baud %d", cfg.UploadBaud)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	cfg := Defaults()
	cfg.Esptool = "/opt/esptool/esptool"
	cfg.JobCeilingSec = 600

	if err := Save(cfg, dir, false); err != nil {
		t.Fatal(err)
	}

	loaded := Load(dir)
	if loaded.Esptool != cfg.Esptool {
		t.Fatalf("esptool = %q, want %q", loaded.Esptool, cfg.Esptool)
	}
	if loaded.JobCeilingSec != 600 {
		t.Fatalf("job ceiling = %d, want 600", loaded.JobCeilingSec)
	}
}
