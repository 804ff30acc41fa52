// Package iostd is the catalog of I/O electrical standards each family
// supports, and the capability table the rest of bitfuzz uses for every
// family-dependent decision.
package iostd

import (
	"strconv"
	"strings"
)

// DiffKind tells whether a standard is differential and how.
type DiffKind int

const (
	DiffNone DiffKind = iota
	DiffPseudo
	DiffTrue
	DiffTrueTerm
)

func (d DiffKind) String() string {
	return [...]string{"none", "pseudo", "true", "true_term"}[d]
}

// DciKind is the digitally controlled impedance mode of a standard.
type DciKind int

const (
	DciNone DciKind = iota
	DciOutput
	DciOutputHalf
	DciInputSplit
	DciInputVcc
	DciBiSplit
	DciBiVcc
)

func (d DciKind) String() string {
	return [...]string{"none", "output", "output_half", "input_split", "input_vcc", "bi_split", "bi_vcc"}[d]
}

// Iostd describes one I/O standard. Voltages are in millivolts; zero means
// the standard does not constrain that supply.
type Iostd struct {
	Name      string   `json:"name"`
	Vcco      int      `json:"vcco,omitempty"`
	Vref      int      `json:"vref,omitempty"`
	Diff      DiffKind `json:"diff"`
	Dci       DciKind  `json:"dci"`
	Drive     []int    `json:"drive,omitempty"`
	InputOnly bool     `json:"input_only,omitempty"`
}

// IsVref reports whether the input buffer needs a reference voltage.
func (s Iostd) IsVref() bool { return s.Vref != 0 }

// IsDiff reports whether the standard is differential of any kind.
func (s Iostd) IsDiff() bool { return s.Diff != DiffNone }

// IsTrueDiff reports whether the standard uses the true differential driver.
func (s Iostd) IsTrueDiff() bool { return s.Diff == DiffTrue || s.Diff == DiffTrueTerm }

// HasInputDci reports whether DCI terminates the input side.
func (s Iostd) HasInputDci() bool {
	switch s.Dci {
	case DciInputSplit, DciInputVcc, DciBiSplit, DciBiVcc:
		return true
	}
	return false
}

// HasOutputDci reports whether DCI controls the output driver impedance.
func (s Iostd) HasOutputDci() bool {
	switch s.Dci {
	case DciOutput, DciOutputHalf, DciBiSplit, DciBiVcc:
		return true
	}
	return false
}

// Drives returns the drive strengths to test; a fixed-drive standard yields
// a single 0.
func (s Iostd) Drives() []int {
	if len(s.Drive) == 0 {
		return []int{0}
	}
	return s.Drive
}

func cmos(name string, vcco int, drive ...int) Iostd {
	return Iostd{Name: name, Vcco: vcco, Drive: drive}
}

func odci(name string, vcco int) Iostd {
	return Iostd{Name: name, Vcco: vcco, Dci: DciOutput}
}

func odciHalf(name string, vcco int) Iostd {
	return Iostd{Name: name, Vcco: vcco, Dci: DciOutputHalf}
}

func odciVref(name string, vcco, vref int) Iostd {
	return Iostd{Name: name, Vcco: vcco, Vref: vref, Dci: DciOutput}
}

func vrefOD(name string, vref int) Iostd {
	return Iostd{Name: name, Vref: vref}
}

func vref(name string, vcco, vref int) Iostd {
	return Iostd{Name: name, Vcco: vcco, Vref: vref}
}

func vrefDciOD(name string, vcco, vref int) Iostd {
	return Iostd{Name: name, Vcco: vcco, Vref: vref, Dci: DciBiVcc}
}

func vrefDci(name string, vcco, vref int, dci DciKind) Iostd {
	return Iostd{Name: name, Vcco: vcco, Vref: vref, Dci: dci}
}

func pseudoDiff(name string, vcco int) Iostd {
	return Iostd{Name: name, Vcco: vcco, Diff: DiffPseudo}
}

func pseudoDiffDci(name string, vcco int, dci DciKind) Iostd {
	return Iostd{Name: name, Vcco: vcco, Diff: DiffPseudo, Dci: dci}
}

func trueDiff(name string, vcco int) Iostd {
	return Iostd{Name: name, Vcco: vcco, Diff: DiffTrue}
}

func trueDiffTerm(name string, vcco int) Iostd {
	return Iostd{Name: name, Vcco: vcco, Diff: DiffTrueTerm}
}

func trueDiffDci(name string, vcco int) Iostd {
	return Iostd{Name: name, Vcco: vcco, Diff: DiffTrue, Dci: DciInputSplit}
}

// Catalog returns the standards legal on f. leftRight selects the Spartan-3A
// left/right edge banks, which support more standards than top/bottom.
func Catalog(f Family, leftRight bool) []Iostd {
	c := f.Caps()
	// standards that Spartan-3E and the Spartan-3A top/bottom banks lack
	full := !c.ExactS3E && !(c.S3A && !leftRight)

	var res []Iostd
	switch {
	case c.V2Family:
		res = append(res,
			cmos("LVTTL", 3300, 2, 4, 6, 8, 12, 16, 24),
			cmos("LVCMOS33", 3300, 2, 4, 6, 8, 12, 16, 24),
			cmos("LVCMOS25", 2500, 2, 4, 6, 8, 12, 16, 24),
			cmos("LVCMOS18", 1800, 2, 4, 6, 8, 12, 16),
			cmos("LVCMOS15", 1500, 2, 4, 6, 8, 12, 16),
			cmos("PCI33_3", 3300),
			cmos("PCI66_3", 3300),
			cmos("PCIX", 3300),
		)
	case c.ExactS3:
		res = append(res,
			cmos("LVTTL", 3300, 2, 4, 6, 8, 12, 16, 24),
			cmos("LVCMOS33", 3300, 2, 4, 6, 8, 12, 16, 24),
			cmos("LVCMOS25", 2500, 2, 4, 6, 8, 12, 16, 24),
			cmos("LVCMOS18", 1800, 2, 4, 6, 8, 12, 16),
			cmos("LVCMOS15", 1500, 2, 4, 6, 8, 12),
			cmos("LVCMOS12", 1200, 2, 4, 6),
			cmos("PCI33_3", 3300),
			cmos("PCI66_3", 3300),
		)
	case c.ExactS3E:
		res = append(res,
			cmos("LVTTL", 3300, 2, 4, 6, 8, 12, 16),
			cmos("LVCMOS33", 3300, 2, 4, 6, 8, 12, 16),
			cmos("LVCMOS25", 2500, 2, 4, 6, 8, 12),
			cmos("LVCMOS18", 1800, 2, 4, 6, 8),
			cmos("LVCMOS15", 1500, 2, 4, 6),
			cmos("LVCMOS12", 1200, 2),
			cmos("PCI33_3", 3300),
			cmos("PCI66_3", 3300),
			cmos("PCIX", 3300),
		)
	case leftRight:
		res = append(res,
			cmos("LVTTL", 3300, 2, 4, 6, 8, 12, 16, 24),
			cmos("LVCMOS33", 3300, 2, 4, 6, 8, 12, 16, 24),
			cmos("LVCMOS25", 2500, 2, 4, 6, 8, 12, 16, 24),
			cmos("LVCMOS18", 1800, 2, 4, 6, 8, 12, 16),
			cmos("LVCMOS15", 1500, 2, 4, 6, 8, 12),
			cmos("LVCMOS12", 1200, 2, 4, 6),
			cmos("PCI33_3", 3300),
			cmos("PCI66_3", 3300),
			cmos("PCIX", 3300),
		)
	default:
		res = append(res,
			cmos("LVTTL", 3300, 2, 4, 6, 8, 12, 16, 24),
			cmos("LVCMOS33", 3300, 2, 4, 6, 8, 12, 16),
			cmos("LVCMOS25", 2500, 2, 4, 6, 8, 12),
			cmos("LVCMOS18", 1800, 2, 4, 6, 8),
			cmos("LVCMOS15", 1500, 2, 4, 6),
			cmos("LVCMOS12", 1200, 2),
			cmos("PCI33_3", 3300),
			cmos("PCI66_3", 3300),
			cmos("PCIX", 3300),
		)
	}

	if !c.S3EA {
		res = append(res,
			odci("LVDCI_33", 3300),
			odci("LVDCI_25", 2500),
			odci("LVDCI_18", 1800),
			odci("LVDCI_15", 1500),
		)
		if !c.V2PFamily {
			res = append(res, odciHalf("LVDCI_DV2_33", 3300))
		}
		res = append(res,
			odciHalf("LVDCI_DV2_25", 2500),
			odciHalf("LVDCI_DV2_18", 1800),
			odciHalf("LVDCI_DV2_15", 1500),
			odciVref("HSLVDCI_33", 3300, 1650),
			odciVref("HSLVDCI_25", 2500, 1250),
			odciVref("HSLVDCI_18", 1800, 900),
			odciVref("HSLVDCI_15", 1500, 750),
		)
	}

	if !c.S3EA {
		res = append(res, vrefOD("GTL", 800), vrefOD("GTLP", 1000))
	}
	if c.ExactV2 {
		res = append(res, vref("AGP", 3300, 1320))
	}
	if c.ExactV2 || c.S3A {
		res = append(res, vref("SSTL3_I", 3300, 1500), vref("SSTL3_II", 3300, 1500))
	}
	res = append(res, vref("SSTL2_I", 2500, 1250), vref("SSTL18_I", 1800, 900))
	if full {
		res = append(res, vref("SSTL2_II", 2500, 1250), vref("SSTL18_II", 1800, 900))
	}
	res = append(res, vref("HSTL_I_18", 1800, 900))
	if full {
		res = append(res, vref("HSTL_II_18", 1800, 900))
	}
	res = append(res, vref("HSTL_III_18", 1800, 1100))
	if c.V2Family {
		res = append(res, vref("HSTL_IV_18", 1800, 1100))
	}
	if full {
		res = append(res, vref("HSTL_I", 1500, 750), vref("HSTL_III", 1500, 900))
	}
	if c.V2Family {
		res = append(res, vref("HSTL_II", 1500, 750), vref("HSTL_IV", 1500, 900))
	}

	if !c.S3EA {
		res = append(res, vrefDciOD("GTL_DCI", 1200, 800), vrefDciOD("GTLP_DCI", 1500, 1000))
		if c.ExactV2 {
			res = append(res,
				vrefDci("SSTL3_I_DCI", 3300, 1500, DciInputSplit),
				vrefDci("SSTL3_II_DCI", 3300, 1500, DciBiSplit),
			)
		}
		res = append(res,
			vrefDci("SSTL2_I_DCI", 2500, 1250, DciInputSplit),
			vrefDci("SSTL2_II_DCI", 2500, 1250, DciBiSplit),
			vrefDci("SSTL18_I_DCI", 1800, 900, DciInputSplit),
		)
		if c.V2Family {
			res = append(res, vrefDci("SSTL18_II_DCI", 1800, 900, DciBiSplit))
		}
		res = append(res,
			vrefDci("HSTL_I_DCI_18", 1800, 900, DciInputSplit),
			vrefDci("HSTL_II_DCI_18", 1800, 900, DciBiSplit),
			vrefDci("HSTL_III_DCI_18", 1800, 1100, DciInputVcc),
		)
		if c.V2Family {
			res = append(res, vrefDci("HSTL_IV_DCI_18", 1800, 1100, DciBiVcc))
		}
		res = append(res,
			vrefDci("HSTL_I_DCI", 1500, 750, DciInputSplit),
			vrefDci("HSTL_III_DCI", 1500, 900, DciInputVcc),
		)
		if c.V2Family {
			res = append(res,
				vrefDci("HSTL_II_DCI", 1500, 750, DciBiSplit),
				vrefDci("HSTL_IV_DCI", 1500, 900, DciBiVcc),
			)
		}
	}

	if c.S3A {
		res = append(res, pseudoDiff("DIFF_SSTL3_I", 3300), pseudoDiff("DIFF_SSTL3_II", 3300))
	}
	if c.S3EA {
		res = append(res, pseudoDiff("DIFF_SSTL2_I", 2500))
	}
	if full {
		res = append(res, pseudoDiff("DIFF_SSTL2_II", 2500))
	}
	if c.S3EA {
		res = append(res, pseudoDiff("DIFF_SSTL18_I", 1800))
	}
	if c.V2Family || (c.S3A && leftRight) {
		res = append(res, pseudoDiff("DIFF_SSTL18_II", 1800))
	}
	if c.S3EA {
		res = append(res, pseudoDiff("DIFF_HSTL_I_18", 1800), pseudoDiff("DIFF_HSTL_III_18", 1800))
	}
	if !c.S3EA || (c.S3A && leftRight) {
		res = append(res, pseudoDiff("DIFF_HSTL_II_18", 1800))
	}
	if c.S3A && leftRight {
		res = append(res, pseudoDiff("DIFF_HSTL_I", 1500), pseudoDiff("DIFF_HSTL_III", 1500))
	}
	if c.V2Family {
		res = append(res, pseudoDiff("DIFF_HSTL_II", 1500))
	}
	lvpecl := Iostd{Name: "LVPECL_25", Vcco: 2500, Diff: DiffPseudo, InputOnly: c.S3EA}
	if c.ExactV2 {
		lvpecl.Name = "LVPECL_33"
	}
	res = append(res, lvpecl, pseudoDiff("BLVDS_25", 2500))

	if !c.S3EA {
		if c.V2Family {
			res = append(res,
				pseudoDiffDci("DIFF_HSTL_II_DCI", 1500, DciBiSplit),
				pseudoDiffDci("DIFF_SSTL18_II_DCI", 1800, DciBiSplit),
			)
		}
		res = append(res,
			pseudoDiffDci("DIFF_HSTL_II_DCI_18", 1800, DciBiSplit),
			pseudoDiffDci("DIFF_SSTL2_II_DCI", 2500, DciBiSplit),
		)
	}

	res = append(res, trueDiff("LVDS_25", 2500))
	if c.ExactV2 || c.S3A {
		res = append(res, trueDiff("LVDS_33", 3300))
	}
	if !c.S3EA {
		res = append(res, trueDiff("LVDSEXT_25", 2500), trueDiff("ULVDS_25", 2500), trueDiff("LDT_25", 2500))
	}
	if c.ExactV2 {
		res = append(res, trueDiff("LVDSEXT_33", 3300))
	}
	if !c.V2Family {
		res = append(res, trueDiff("RSDS_25", 2500))
	}
	if c.S3EA {
		res = append(res, trueDiff("MINI_LVDS_25", 2500))
	}
	if c.S3A {
		res = append(res,
			trueDiff("PPDS_25", 2500),
			trueDiff("RSDS_33", 3300),
			trueDiff("MINI_LVDS_33", 3300),
			trueDiff("PPDS_33", 3300),
			trueDiff("TMDS_33", 3300),
		)
	}
	if c.V2PFamily {
		res = append(res,
			trueDiffTerm("LVDS_25_DT", 2500),
			trueDiffTerm("LVDSEXT_25_DT", 2500),
			trueDiffTerm("LDT_25_DT", 2500),
			trueDiffTerm("ULVDS_25_DT", 2500),
		)
	}

	if !c.S3EA {
		if c.ExactV2 {
			res = append(res, trueDiffDci("LVDS_33_DCI", 3300), trueDiffDci("LVDSEXT_33_DCI", 3300))
		}
		res = append(res, trueDiffDci("LVDS_25_DCI", 2500), trueDiffDci("LVDSEXT_25_DCI", 2500))
	}
	return res
}

// Lookup finds a standard by name in the catalog of f.
func Lookup(f Family, leftRight bool, name string) (Iostd, bool) {
	for _, s := range Catalog(f, leftRight) {
		if s.Name == name {
			return s, true
		}
	}
	return Iostd{}, false
}

// Row returns the database row a standard's data is stored under. The _DT
// variants and the DIFF_ pseudo-differential variants share the row of their
// base standard, and two standards are stored under their later names.
func Row(name string) string {
	if r, ok := strings.CutSuffix(name, "_DT"); ok {
		name = r
	} else if r, ok := strings.CutPrefix(name, "DIFF_"); ok {
		name = r
	}
	switch name {
	case "ULVDS_25":
		return "MINI_LVDS_25"
	case "LDT_25":
		return "HT_25"
	}
	return name
}

// IsDT reports whether the standard is an on-die terminated variant.
func IsDT(name string) bool { return strings.HasSuffix(name, "_DT") }

// DriveRow returns the row holding a standard's data at a given drive, e.g.
// "LVCMOS33_8". A zero drive means the standard has a fixed drive and uses
// its own row.
func DriveRow(row string, drive int) string {
	if drive == 0 {
		return row
	}
	return row + "_" + strconv.Itoa(drive)
}

// DriveName is the canonical string form of a drive strength; a fixed drive
// is spelled NONE.
func DriveName(drive int) string {
	if drive == 0 {
		return "NONE"
	}
	return strconv.Itoa(drive)
}
