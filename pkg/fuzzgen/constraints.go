package fuzzgen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// Kind is the kind of a constraint.
type Kind int

const (
	KindMode     Kind = iota // primitive mode of a bel; "" leaves the bel unused
	KindAttr                 // attribute value
	KindPin                  // pin connected to something
	KindGlobal               // global toolchain option
	KindNoGlobal             // global option that must stay unset
	KindMutex                // tag that keeps conflicting requests out of one run
	KindRaw                  // backend setting: Package, VccAux or AltVr
	KindPip                  // routing point from Name to Value
)

var kindNames = [...]string{"mode", "attr", "pin", "global", "noglobal", "mutex", "raw", "pip"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText makes kinds readable in exported requests.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for i, n := range kindNames {
		if n == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("fuzzgen: unknown constraint kind %q", b)
}

// Raw constraint keys understood by the backend.
const (
	RawPackage = "Package"
	RawVccAux  = "VccAux"
	RawAltVr   = "AltVr"
)

// Target names the object a constraint applies to.
//
// The zero Target is the bel under test. Bel selects another bel of the same
// tile instance; Site, filled in by resolving a Relation, moves the
// constraint to another tile instance altogether.
type Target struct {
	Bel  string         `json:"bel,omitempty"`
	Site *topology.Site `json:"site,omitempty"`
}

// IsSelf reports whether t is the bel under test.
func (t Target) IsSelf() bool { return t.Bel == "" && t.Site == nil }

func (t Target) String() string {
	var parts []string
	if t.Site != nil {
		parts = append(parts, t.Site.String())
	}
	if t.Bel != "" {
		parts = append(parts, t.Bel)
	}
	if len(parts) == 0 {
		return "self"
	}
	return strings.Join(parts, ".")
}

// Constraint is one assignment a request makes.
type Constraint struct {
	Kind   Kind   `json:"kind"`
	Target Target `json:"target"`
	Name   string `json:"name"`
	Value  string `json:"value"`
}

func (c Constraint) String() string {
	return fmt.Sprintf("%s %s %s=%s", c.Kind, c.Target, c.Name, c.Value)
}

// Constraints is an ordered, append-only list of constraints. A Constraints
// value is never modified in place: With always returns a fresh backing
// array, so lists derived from a common prefix stay independent.
type Constraints []Constraint

// With returns cs extended by c.
func (cs Constraints) With(c ...Constraint) Constraints {
	return append(slices.Clip(cs), c...)
}

// Retarget returns a copy of cs with every self-targeted constraint moved to
// site, keeping the bel name given.
func (cs Constraints) Retarget(site topology.Site, bel string) Constraints {
	res := make(Constraints, len(cs))
	for i, c := range cs {
		if c.Target.Site == nil {
			s := site
			c.Target.Site = &s
			if c.Target.Bel == "" {
				c.Target.Bel = bel
			}
		}
		res[i] = c
	}
	return res
}

// Find returns the last constraint of the given kind, target and name.
func (cs Constraints) Find(kind Kind, t Target, name string) (Constraint, bool) {
	for i := len(cs) - 1; i >= 0; i-- {
		c := cs[i]
		if c.Kind == kind && c.Name == name && sameTarget(c.Target, t) {
			return c, true
		}
	}
	return Constraint{}, false
}

func sameTarget(a, b Target) bool {
	if a.Bel != b.Bel {
		return false
	}
	if a.Site == nil || b.Site == nil {
		return a.Site == nil && b.Site == nil
	}
	return *a.Site == *b.Site
}
