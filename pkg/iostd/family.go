package iostd

import (
	"fmt"
	"strings"
)

// Family is a device family variant.
type Family int

const (
	Virtex2 Family = iota
	Virtex2P
	Virtex2PX
	Spartan3
	Spartan3E
	Spartan3A
	Spartan3ADSP
)

var familyNames = []struct {
	f      Family
	name   string
	prefix string
}{
	{Virtex2, "virtex2", "V2"},
	{Virtex2P, "virtex2p", "V2P"},
	{Virtex2PX, "virtex2px", "V2PX"},
	{Spartan3, "spartan3", "S3"},
	{Spartan3E, "spartan3e", "S3E"},
	{Spartan3A, "spartan3a", "S3A"},
	{Spartan3ADSP, "spartan3adsp", "S3ADSP"},
}

func (f Family) String() string {
	for _, n := range familyNames {
		if n.f == f {
			return n.name
		}
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Prefix returns the short name used in tile kind and misc table names.
// Spartan-3A DSP shares its tiles with Spartan-3A.
func (f Family) Prefix() string {
	if f == Spartan3ADSP {
		return "S3A"
	}
	for _, n := range familyNames {
		if n.f == f {
			return n.prefix
		}
	}
	return "?"
}

// Families lists every supported family in declaration order.
func Families() []Family {
	res := make([]Family, len(familyNames))
	for i, n := range familyNames {
		res[i] = n.f
	}
	return res
}

// ParseFamily accepts the long name ("spartan3e") or the short one ("S3E").
func ParseFamily(s string) (Family, error) {
	for _, n := range familyNames {
		if strings.EqualFold(s, n.name) || strings.EqualFold(s, n.prefix) {
			return n.f, nil
		}
	}
	return 0, fmt.Errorf("iostd: unknown family %q", s)
}

func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Family) UnmarshalText(b []byte) error {
	v, err := ParseFamily(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Caps is the capability record of one family. Every family test made by
// the catalog, the generator and the classifier goes through it.
type Caps struct {
	V2Family  bool // any Virtex-2 variant
	V2PFamily bool // Virtex-2 Pro or Pro X
	S3EA      bool // Spartan-3E, Spartan-3A or Spartan-3A DSP
	S3A       bool // Spartan-3A or Spartan-3A DSP
	ExactV2   bool
	ExactS3   bool
	ExactS3E  bool
	ExactV2PX bool
	ExactDSP  bool
}

var capsTable = map[Family]Caps{
	Virtex2:      {V2Family: true, ExactV2: true},
	Virtex2P:     {V2Family: true, V2PFamily: true},
	Virtex2PX:    {V2Family: true, V2PFamily: true, ExactV2PX: true},
	Spartan3:     {ExactS3: true},
	Spartan3E:    {S3EA: true, ExactS3E: true},
	Spartan3A:    {S3EA: true, S3A: true},
	Spartan3ADSP: {S3EA: true, S3A: true, ExactDSP: true},
}

// Caps returns the capability record of f.
func (f Family) Caps() Caps {
	c, ok := capsTable[f]
	if !ok {
		panic(fmt.Sprintf("iostd: no capabilities for %s", f))
	}
	return c
}
