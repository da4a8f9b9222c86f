// Package config loads the compositor's configuration from a YAML file,
// merging it over documented defaults. The core never reads the file
// itself; main wires a populated Config into the server at startup,
// matching the external-config-collaborator boundary the core assumes.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GPUPreference selects which class of adapter the GPU backend prefers
// when more than one is available.
type GPUPreference string

const (
	GPUPreferenceDiscrete   GPUPreference = "discrete"
	GPUPreferenceIntegrated GPUPreference = "integrated"
	GPUPreferenceAny        GPUPreference = "any"
)

// Display holds output-facing configuration.
type Display struct {
	Resolution   Resolution `yaml:"resolution"`
	ScaleFactor  float64    `yaml:"scale_factor"`
	RefreshRate  int        `yaml:"refresh_rate"`
	VSync        bool       `yaml:"vsync"`
	AdaptiveSync bool       `yaml:"adaptive_sync"`
}

// Resolution is a width/height pair in pixels.
type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Performance holds renderer/backend tuning configuration.
type Performance struct {
	GPUPreference GPUPreference `yaml:"gpu_preference"`
	MaxFPS        int           `yaml:"max_fps"`
}

// Config is the full, validated configuration record consumed by the core.
type Config struct {
	Display     Display     `yaml:"display"`
	Performance Performance `yaml:"performance"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		Display: Display{
			Resolution:   Resolution{Width: 3840, Height: 2160},
			ScaleFactor:  2.0,
			RefreshRate:  60,
			VSync:        true,
			AdaptiveSync: true,
		},
		Performance: Performance{
			GPUPreference: GPUPreferenceDiscrete,
			MaxFPS:        120,
		},
	}
}

// Load reads path, merging recognized fields over Default(). A missing
// file is not an error: the defaults are returned unchanged, matching
// "optional" config per the external collaborator's contract.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that all fields hold values the core can act on and
// returns an error naming the first field that is out of range. It does
// not modify c.
func (c *Config) Validate() error {
	if c.Display.Resolution.Width <= 0 || c.Display.Resolution.Height <= 0 {
		return fmt.Errorf("display.resolution must be positive, got %dx%d",
			c.Display.Resolution.Width, c.Display.Resolution.Height)
	}
	if c.Display.ScaleFactor <= 0 {
		return fmt.Errorf("display.scale_factor must be > 0, got %v", c.Display.ScaleFactor)
	}
	if c.Display.RefreshRate <= 0 {
		return fmt.Errorf("display.refresh_rate must be > 0, got %d", c.Display.RefreshRate)
	}
	switch c.Performance.GPUPreference {
	case GPUPreferenceDiscrete, GPUPreferenceIntegrated, GPUPreferenceAny:
	default:
		return fmt.Errorf("performance.gpu_preference must be one of discrete|integrated|any, got %q",
			c.Performance.GPUPreference)
	}
	if c.Performance.MaxFPS <= 0 {
		return fmt.Errorf("performance.max_fps must be > 0, got %d", c.Performance.MaxFPS)
	}
	return nil
}
