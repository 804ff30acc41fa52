package fuzzgen

import (
	"fmt"
	"io"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config controls which requests the generator emits.
type Config struct {
	// Tile selection
	TileFilter string `yaml:"tile_filter"` // If set, only tile kinds matching this regex
	SkipIOI    bool   `yaml:"skip_ioi"`    // Skip the logic bel feature set (default: false)
	SkipIOB    bool   `yaml:"skip_iob"`    // Skip the buffer feature set (default: false)

	// Package used by requests that do not pin one. Empty selects the
	// package bonding the most pads.
	Package string `yaml:"package"`

	// Internal compiled regex
	tileRegex *regexp.Regexp
}

// DefaultConfig returns a Config that generates every request.
func DefaultConfig() *Config {
	return &Config{
		TileFilter: "",
		SkipIOI:    false,
		SkipIOB:    false,
		Package:    "",
	}
}

// LoadConfig reads a YAML config on top of the defaults.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("fuzzgen: failed to decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for errors and compiles the tile filter.
func (c *Config) Validate() error {
	if c.SkipIOI && c.SkipIOB {
		return fmt.Errorf("fuzzgen: invalid config: both feature sets skipped")
	}
	if c.TileFilter != "" {
		regex, err := regexp.Compile(c.TileFilter)
		if err != nil {
			return fmt.Errorf("fuzzgen: invalid config: %w", err)
		}
		c.tileRegex = regex
	}
	return nil
}

// ShouldGenerate reports whether requests for tile kind are wanted.
func (c *Config) ShouldGenerate(kind string) bool {
	if c.tileRegex == nil {
		return true // No filter, every kind
	}
	return c.tileRegex.MatchString(kind)
}
