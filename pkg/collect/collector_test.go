package collect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

func TestRunRejectsMissingInputs(t *testing.T) {
	d := loadDevice(t, v2pDevice)

	_, err := (&Collector{Family: d.Family, Store: samples.NewStore()}).Run(context.Background())
	assert.EqualError(t, err, "collect: no device")

	_, err = (&Collector{Family: d.Family, Device: d}).Run(context.Background())
	assert.EqualError(t, err, "collect: no sample store")
}

func TestRunFamilyMismatch(t *testing.T) {
	d := loadDevice(t, v2pDevice)

	_, err := (&Collector{Family: iostd.Spartan3, Device: d, Store: samples.NewStore()}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xc2vp2")

	cfg := DefaultConfig()
	cfg.Family = "virtex2"
	require.NoError(t, cfg.Validate())
	_, err = (&Collector{Family: d.Family, Device: d, Store: samples.NewStore(), Config: cfg}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not")
}

func TestRunCancelled(t *testing.T) {
	d := loadDevice(t, v2pDevice)
	f := newFixture("IOI")
	f.ioiBel("IOI0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Collector{Family: d.Family, Device: d, Store: f.store, Config: ioiConfig(t)}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNoSamples(t *testing.T) {
	d := loadDevice(t, v2pDevice)
	db, err := run(d, samples.NewStore(), nil)
	require.NoError(t, err)
	assert.Zero(t, db.Len())
}

func TestJobsFollowFilter(t *testing.T) {
	d := loadDevice(t, v2pDevice)
	c := &Collector{Family: d.Family, Device: d}

	var kinds []string
	for _, j := range c.jobs(DefaultConfig(), d.Family) {
		kinds = append(kinds, j.kind)
	}
	assert.Equal(t, []string{"IOB_V2P_NW2", "IOB_V2P_SW2", "IOB_V2P_WS2", "IOI", "IOI_CLK_N"}, kinds)

	cfg := DefaultConfig()
	cfg.TileFilter = "^IOB_V2P_.W2$"
	require.NoError(t, cfg.Validate())
	kinds = kinds[:0]
	for _, j := range c.jobs(cfg, d.Family) {
		kinds = append(kinds, j.kind)
	}
	assert.Equal(t, []string{"IOB_V2P_NW2", "IOB_V2P_SW2"}, kinds)
}

func TestDescribe(t *testing.T) {
	d := loadDevice(t, v2pDevice)
	f := newFixture("IOI")
	f.ioiBel("IOI0")
	db, err := run(d, f.store, ioiConfig(t))
	require.NoError(t, err)

	out := Describe(db)
	assert.Contains(t, out, "items (")
	assert.Contains(t, out, "3 enum")
	assert.Contains(t, out, "IOI/IOI0/READBACK_I: manual:")

	empty := Describe(tiledb.New())
	assert.Equal(t, "0 items (0 bool, 0 bitvec, 0 enum), 0 misc values\n", empty)
}
