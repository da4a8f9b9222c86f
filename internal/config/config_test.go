package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() failed Validate(): %v", err)
	}
	if cfg.Display.Resolution != (Resolution{3840, 2160}) {
		t.Errorf("default resolution = %+v, want 3840x2160", cfg.Display.Resolution)
	}
	if cfg.Performance.MaxFPS != 120 {
		t.Errorf("default max_fps = %d, want 120", cfg.Performance.MaxFPS)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(missing) = %+v, want defaults", cfg)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
display:
  resolution:
    width: 1920
    height: 1080
  scale_factor: 1.0
  vsync: false
performance:
  gpu_preference: integrated
  max_fps: 60
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Display.Resolution != (Resolution{1920, 1080}) {
		t.Errorf("resolution = %+v, want 1920x1080", cfg.Display.Resolution)
	}
	if cfg.Display.ScaleFactor != 1.0 {
		t.Errorf("scale_factor = %v, want 1.0", cfg.Display.ScaleFactor)
	}
	if cfg.Display.VSync {
		t.Error("vsync = true, want false")
	}
	if cfg.Display.AdaptiveSync != true {
		t.Error("adaptive_sync should retain default (true) when unset")
	}
	if cfg.Performance.GPUPreference != GPUPreferenceIntegrated {
		t.Errorf("gpu_preference = %q, want integrated", cfg.Performance.GPUPreference)
	}
	if cfg.Performance.MaxFPS != 60 {
		t.Errorf("max_fps = %d, want 60", cfg.Performance.MaxFPS)
	}
}

func TestValidateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero width", func(c *Config) { c.Display.Resolution.Width = 0 }},
		{"negative height", func(c *Config) { c.Display.Resolution.Height = -1 }},
		{"zero scale", func(c *Config) { c.Display.ScaleFactor = 0 }},
		{"zero refresh", func(c *Config) { c.Display.RefreshRate = 0 }},
		{"bad gpu preference", func(c *Config) { c.Performance.GPUPreference = "quantum" }},
		{"zero max fps", func(c *Config) { c.Performance.MaxFPS = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "display:\n  refresh_rate: -5\n")

	if _, err := Load(path); err == nil {
		t.Error("Load() with invalid refresh_rate = nil error, want error")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writeFile(%s): %v", path, err)
	}
}
