package samples

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bitfuzz/pkg/bitdiff"
	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

const capture = `# two PULL samples and an empty one
device "xc2v40" family "virtex2"
sample "IOB_V2_NW2" "IOB0" "PULL" "PULLUP" { +0.2.13 -1.4.7 }
sample "IOB_V2_NW2" "IOB0" "PULL" "PULLDOWN" {
	+0.2.14
}
sample "IOI" "IOI1" "MUX_O" "" { }
`

func TestParseCapture(t *testing.T) {
	c, err := ParseCapture(strings.NewReader(capture))
	require.NoError(t, err)
	assert.Equal(t, "xc2v40", c.Device)
	assert.Equal(t, iostd.Virtex2, c.Family)
	require.Len(t, c.Samples, 3)

	assert.Equal(t, pullUp, c.Samples[0].Key)
	assert.True(t, c.Samples[0].Diff.Equal(bitdiff.Of(b1.Pos(), b2.Neg())))
	assert.True(t, c.Samples[1].Diff.Equal(bitdiff.Of(tiledb.NewBit(0, 2, 14).Pos())))
	assert.Equal(t, Key{"IOI", "IOI1", "MUX_O", ""}, c.Samples[2].Key)
	assert.True(t, c.Samples[2].Diff.IsEmpty())

	s := NewStore()
	require.NoError(t, c.Load(s))
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Has(pullDown))
}

func TestParseCaptureErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"no header":      `sample "T" "B" "A" "V" { }`,
		"bad family":     `device "x" family "virtex9"`,
		"unsigned bit":   `device "x" family "virtex2" sample "T" "B" "A" "V" { 0.1.2 }`,
		"duplicate bit":  `device "x" family "virtex2" sample "T" "B" "A" "V" { +0.1.2 -0.1.2 }`,
		"missing brace":  `device "x" family "virtex2" sample "T" "B" "A" "V" { +0.1.2`,
		"missing values": `device "x" family "virtex2" sample "T" "B" { }`,
	} {
		_, err := ParseCapture(strings.NewReader(doc))
		if assert.Error(t, err, name) {
			assert.True(t, strings.HasPrefix(err.Error(), "samples: "), "%s: %v", name, err)
		}
	}
}

func TestCaptureLoadConflict(t *testing.T) {
	doc := `device "x" family "spartan3"
sample "T" "B" "A" "V" { +0.1.2 }
sample "T" "B" "A" "V" { -0.1.2 }
`
	c, err := ParseCapture(strings.NewReader(doc))
	require.NoError(t, err)
	err = c.Load(NewStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting")
}

func TestWriteCaptureRoundTrip(t *testing.T) {
	c, err := ParseCapture(strings.NewReader(capture))
	require.NoError(t, err)
	s := NewStore()
	require.NoError(t, c.Load(s))
	// consumed samples are written too
	s.Get(pullUp)

	var buf bytes.Buffer
	require.NoError(t, WriteCapture(&buf, c.Device, c.Family, s))
	assert.Contains(t, buf.String(), `sample "IOB_V2_NW2" "IOB0" "PULL" "PULLUP" { +0.2.13 -1.4.7 }`)

	again, err := ParseCapture(&buf)
	require.NoError(t, err)
	assert.Equal(t, c.Device, again.Device)
	require.Len(t, again.Samples, len(c.Samples))
	s2 := NewStore()
	require.NoError(t, again.Load(s2))
	for _, smp := range c.Samples {
		assert.True(t, s2.Peek(smp.Key).Equal(smp.Diff), "%s", smp.Key)
	}
}
