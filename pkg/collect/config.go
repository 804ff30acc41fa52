package collect

import (
	"fmt"
	"io"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

// Config controls a classification run.
type Config struct {
	// Device
	Family     string `yaml:"family"`      // Family name, e.g. "virtex2p"; empty takes the device's
	DeviceFile string `yaml:"device_file"` // Device description consumed by the CLI

	// Tile selection
	TileFilter string `yaml:"tile_filter"` // If set, only tile kinds matching this regex

	// Execution
	Parallel int `yaml:"parallel"` // Tile kinds classified at once (default: 4, 1 = sequential)

	// Checks
	StrictDiscard   bool                `yaml:"strict_discard"`   // Fail on audit overlaps not listed in Exceptions and on partial enums
	RequireConsumed bool                `yaml:"require_consumed"` // Fail when a processed tile kind leaves samples unread
	Exceptions      []tiledb.SharedBits `yaml:"exceptions"`       // Attribute pairs allowed to share bits

	// Internal compiled state
	tileRegex *regexp.Regexp
	family    iostd.Family
	hasFamily bool
}

// DefaultConfig returns a Config that classifies every tile kind with the
// known shared-net exceptions.
func DefaultConfig() *Config {
	return &Config{
		Family:          "",
		DeviceFile:      "",
		TileFilter:      "",
		Parallel:        4,
		StrictDiscard:   false,
		RequireConsumed: false,
		Exceptions:      append([]tiledb.SharedBits(nil), KnownExceptions...),
	}
}

// LoadConfig reads a YAML config on top of the defaults.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("collect: failed to decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for errors and compiles the tile filter.
func (c *Config) Validate() error {
	if c.Parallel < 0 {
		return fmt.Errorf("collect: invalid config: parallel must be >= 0, got %d", c.Parallel)
	}
	if c.Parallel == 0 {
		c.Parallel = 1
	}
	if c.Family != "" {
		f, err := iostd.ParseFamily(c.Family)
		if err != nil {
			return fmt.Errorf("collect: invalid config: %w", err)
		}
		c.family, c.hasFamily = f, true
	}
	for _, e := range c.Exceptions {
		if e.A == "" || e.B == "" {
			return fmt.Errorf("collect: invalid config: exception %q needs two attributes", e.Reason)
		}
	}
	if c.TileFilter != "" {
		regex, err := regexp.Compile(c.TileFilter)
		if err != nil {
			return fmt.Errorf("collect: invalid config: %w", err)
		}
		c.tileRegex = regex
	}
	return nil
}

// ShouldCollect reports whether tile kind is classified.
func (c *Config) ShouldCollect(kind string) bool {
	if c.tileRegex == nil {
		return true // No filter, every kind
	}
	return c.tileRegex.MatchString(kind)
}

// FamilyOverride returns the family named by the config, if any.
func (c *Config) FamilyOverride() (iostd.Family, bool) {
	return c.family, c.hasFamily
}
