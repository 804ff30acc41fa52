package collect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Parallel)
	assert.Equal(t, KnownExceptions, cfg.Exceptions)
	assert.True(t, cfg.ShouldCollect("IOB_V2_NW2"))
	_, ok := cfg.FamilyOverride()
	assert.False(t, ok)

	// The defaults own their exception list.
	cfg.Exceptions[0].Reason = "changed"
	assert.NotEqual(t, "changed", KnownExceptions[0].Reason)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(`
family: S3E
tile_filter: "^IOB_S3E_"
parallel: 0
strict_discard: true
exceptions:
  - {a: OUTPUT_ENABLE, b: PDRIVE, reason: shared}
`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Parallel)
	assert.True(t, cfg.StrictDiscard)
	assert.False(t, cfg.RequireConsumed)
	require.Len(t, cfg.Exceptions, 1)
	assert.Equal(t, "PDRIVE", cfg.Exceptions[0].B)

	f, ok := cfg.FamilyOverride()
	require.True(t, ok)
	assert.Equal(t, iostd.Spartan3E, f)

	assert.True(t, cfg.ShouldCollect("IOB_S3E_N2"))
	assert.False(t, cfg.ShouldCollect("IOI_S3E"))
}

func TestLoadConfigEmpty(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Parallel, cfg.Parallel)
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
		want string
	}{
		{"negative parallel", func(c *Config) { c.Parallel = -2 }, "parallel must be >= 0"},
		{"unknown family", func(c *Config) { c.Family = "virtex9" }, "unknown family"},
		{"bad filter", func(c *Config) { c.TileFilter = "IOB_(" }, "invalid config"},
		{"half exception", func(c *Config) {
			c.Exceptions = append(c.Exceptions, KnownExceptions[0])
			c.Exceptions[len(c.Exceptions)-1].B = ""
		}, "needs two attributes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "collect: invalid config")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigUnknownField(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("paralel: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode config")
}
