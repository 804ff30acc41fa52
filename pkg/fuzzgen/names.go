package fuzzgen

import (
	"strconv"
	"strings"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// Identity naming shared by the generator and the classifier.

// Slew values of output standard probes.
const (
	SlewNone    = "NONE"
	SlewFast    = "FAST"
	SlewSlow    = "SLOW"
	SlewQuietIO = "QUIETIO"
)

// IoiKey is the identity of a logic bel probe.
func IoiKey(kind string, idx int, attr, val string) samples.Key {
	return samples.Key{Tile: kind, Bel: topology.IoiBel(idx), Attr: attr, Val: val}
}

// IobKey is the identity of a buffer probe.
func IobKey(kind string, pos topology.IobPosition, attr, val string) samples.Key {
	return samples.Key{Tile: kind, Bel: pos.Bel(), Attr: attr, Val: val}
}

// IoiBels returns the logic bel indices of kind that carry probes.
// The Virtex-2 clock IOI tiles give two of their bels to the clock pads.
func IoiBels(f iostd.Family, k topology.IoiKind) []int {
	var res []int
	for i := 0; i < k.Bels; i++ {
		if f.Caps().V2Family {
			if k.Kind == "IOI_CLK_N" && (i == 0 || i == 1) {
				continue
			}
			if k.Kind == "IOI_CLK_S" && (i == 2 || i == 3) {
				continue
			}
		}
		res = append(res, i)
	}
	return res
}

// InputVccAuxes returns the auxiliary supply options an input standard is
// probed at; "" is the only option outside Spartan-3A.
func InputVccAuxes(f iostd.Family, std iostd.Iostd) []string {
	if f.Caps().S3A && (strings.HasPrefix(std.Name, "LVCMOS") || strings.HasPrefix(std.Name, "LVTTL")) {
		return []string{"2.5", "3.3"}
	}
	return []string{""}
}

// OutputVccAuxes is InputVccAuxes for output standards.
func OutputVccAuxes(f iostd.Family, std iostd.Iostd) []string {
	if f.Caps().S3A && (std.Diff == iostd.DiffNone || std.Diff == iostd.DiffPseudo) {
		return []string{"2.5", "3.3"}
	}
	return []string{""}
}

func vccSuffix(vccaux string) string {
	switch vccaux {
	case "2.5":
		return "_2V5"
	case "3.3":
		return "_3V3"
	}
	return ""
}

// IstdAttr names the input standard probe attribute.
func IstdAttr(std, vccaux string) string {
	if strings.HasPrefix(std, "DIFF_") {
		return "ISTD_DIFF"
	}
	return "ISTD" + vccSuffix(vccaux)
}

// IstdCompAttr names the complement-side input standard probe attribute.
func IstdCompAttr(std string) string {
	if iostd.IsDT(std) {
		return "ISTD_COMP_DT"
	}
	return "ISTD_COMP"
}

// OstdAttr names the output standard probe attribute.
func OstdAttr(std, vccaux string) string {
	if strings.HasPrefix(std, "DIFF_") {
		return "OSTD_DIFF" + vccSuffix(vccaux)
	}
	return "OSTD" + vccSuffix(vccaux)
}

// OstdVal is the value of an output standard probe: row, drive and slew.
func OstdVal(row string, drive int, slew string) string {
	return row + "." + iostd.DriveName(drive) + "." + slew
}

// OutputDrivesSlews returns the drives and slews an output standard is
// probed at. A fixed-drive standard has the single drive 0 and no slew.
func OutputDrivesSlews(f iostd.Family, std iostd.Iostd) ([]int, []string) {
	if len(std.Drive) == 0 {
		return []int{0}, []string{SlewNone}
	}
	if f.Caps().S3A {
		return std.Drive, []string{SlewFast, SlewSlow, SlewQuietIO}
	}
	return std.Drive, []string{SlewFast, SlewSlow}
}

// BitVecVal is the value of a bit vector sweep probe.
func BitVecVal(v uint64, width int) string {
	return tiledb.FromUint(v, width).String()
}

// DelayVal is the value of a Spartan-3E delay tap probe.
func DelayVal(taps int) string { return strconv.Itoa(taps) }

// ClkEnableBel returns the logic bel of a Virtex-2 Pro X clock pad tile
// that gets the CLK_ENABLE probe.
func ClkEnableBel(kind string) string {
	if kind == "IOB_V2P_SE2_CLK" {
		return topology.IoiBel(2)
	}
	return topology.IoiBel(0)
}

// DciUpdateModes are the values of the DCIUPDATEMODE probe.
var DciUpdateModes = []string{"ASREQUIRED", "CONTINUOUS", "QUIET"}

// SuspendModes are the values of the Spartan-3A SUSPEND probe.
var SuspendModes = []string{"3STATE", "3STATE_PULLUP", "3STATE_PULLDOWN", "3STATE_KEEPER", "DRIVE_LAST_VALUE"}

// HasDciUpdateMode reports whether the device gets DCIUPDATEMODE probes.
// The xc2vp4 and xc2vp7 are left out.
func HasDciUpdateMode(f iostd.Family, device string) bool {
	c := f.Caps()
	if !c.V2PFamily && !c.ExactS3 {
		return false
	}
	return !strings.HasSuffix(device, "2vp4") && !strings.HasSuffix(device, "2vp7")
}

// DiffoAltStd is the standard of the second bank pair of a DIFFO_ALT probe.
func DiffoAltStd(std string) string {
	if std == "RSDS_25" {
		return "MINI_LVDS_25"
	}
	return "RSDS_25"
}
