package fuzzgen

import "github.com/OpenTraceLab/bitfuzz/pkg/iostd"

// Quirk is a known toolchain misbehaviour for one output configuration.
// Requests that hit it are still generated; the classifier consults the
// same table to keep the affected sample out of bit discovery.
type Quirk struct {
	Applies func(iostd.Caps) bool
	Std     string
	Drive   int
	Slew    string // empty matches every slew
	Reason  string
}

// Quirks lists every known quirk.
var Quirks = []Quirk{
	{
		Applies: func(c iostd.Caps) bool { return c.V2PFamily },
		Std:     "LVCMOS33",
		Drive:   8,
		Slew:    "FAST",
		Reason:  "the Virtex-2 Pro toolchain writes an inconsistent drive pattern for LVCMOS33 8 mA FAST",
	},
}

// LookupQuirk returns the quirk matching an output configuration.
func LookupQuirk(f iostd.Family, std string, drive int, slew string) (Quirk, bool) {
	c := f.Caps()
	for _, q := range Quirks {
		if q.Applies(c) && q.Std == std && q.Drive == drive && (q.Slew == "" || q.Slew == slew) {
			return q, true
		}
	}
	return Quirk{}, false
}

// HasQuirkAnySlew reports whether some slew of the configuration is quirky.
// Bit discovery skips such a drive altogether.
func HasQuirkAnySlew(f iostd.Family, std string, drive int) bool {
	c := f.Caps()
	for _, q := range Quirks {
		if q.Applies(c) && q.Std == std && q.Drive == drive {
			return true
		}
	}
	return false
}

// Workarounds names the deliberate deviations from the plain probe recipe.
var Workarounds = map[string]string{
	"omux-offddr-baseline": "MUX_O values are measured from an OMUX=OFFDDR baseline so the IOB output path stays configured in both runs",
}
