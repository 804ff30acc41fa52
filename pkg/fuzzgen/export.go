package fuzzgen

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chewxy/sexp"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
)

// FormatVersion is written into every exported request list.
const FormatVersion = "1.0"

// RequestList is the exported form of the requests for one device.
type RequestList struct {
	Version  string       `json:"version"`
	Device   string       `json:"device"`
	Family   iostd.Family `json:"family"`
	Requests []Request    `json:"requests"`
}

// ExportJSON writes reqs as an indented JSON document.
func ExportJSON(w io.Writer, device string, family iostd.Family, reqs []Request) error {
	doc := RequestList{Version: FormatVersion, Device: device, Family: family, Requests: reqs}
	if doc.Requests == nil {
		doc.Requests = []Request{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("fuzzgen: failed to encode requests: %w", err)
	}
	return nil
}

// ImportJSON reads a request list written by ExportJSON.
func ImportJSON(r io.Reader) (*RequestList, error) {
	var doc RequestList
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("fuzzgen: failed to decode requests: %w", err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("fuzzgen: request list version %q, want %q", doc.Version, FormatVersion)
	}
	return &doc, nil
}

// WriteSexp writes reqs as one s-expression:
//
//	(requests (device "xc2vp2") (family "virtex2p")
//	  (request (key "IOI" "IOI0" "OTCLK1INV" "OTCLK1") (site "IOI" 2 20) ...))
//
// The output is parsed back before it is written, so a malformed document
// never reaches w.
func WriteSexp(w io.Writer, device string, family iostd.Family, reqs []Request) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(requests (device %s) (family %s)", q(device), q(family.String()))
	for _, r := range reqs {
		sb.WriteString("\n  (request ")
		writeKey(&sb, r.Key.Tile, r.Key.Bel, r.Key.Attr, r.Key.Val)
		fmt.Fprintf(&sb, " (site %s %d %d) (bel %s)", q(r.Site.Kind), r.Site.Col, r.Site.Row, q(r.Bel))
		if r.Io != nil {
			fmt.Fprintf(&sb, " (io %d %d %d)", r.Io.Col, r.Io.Row, r.Io.Iob)
		}
		if len(r.Extra) > 0 {
			sb.WriteString(" (extra")
			for _, k := range r.Extra {
				sb.WriteString(" ")
				writeKey(&sb, k.Tile, k.Bel, k.Attr, k.Val)
			}
			sb.WriteString(")")
		}
		writeConstraints(&sb, "base", r.Base)
		writeConstraints(&sb, "diff", r.Diff)
		if r.Multi != nil {
			fmt.Fprintf(&sb, " (multi %s %d)", q(r.Multi.Attr), r.Multi.Width)
		}
		for _, wa := range r.Workarounds {
			fmt.Fprintf(&sb, " (workaround %s)", q(wa))
		}
		if r.Quirk != "" {
			fmt.Fprintf(&sb, " (quirk %s)", q(r.Quirk))
		}
		if r.Check {
			sb.WriteString(" (check)")
		}
		sb.WriteString(")")
	}
	sb.WriteString(")\n")

	out := sb.String()
	parsed, err := sexp.ParseString(out)
	if err != nil {
		return fmt.Errorf("fuzzgen: s-expression does not parse back: %w", err)
	}
	if len(parsed) != 1 || parsed[0].IsLeaf() {
		return fmt.Errorf("fuzzgen: s-expression parses back as %d expressions", len(parsed))
	}
	if _, err := io.WriteString(w, out); err != nil {
		return fmt.Errorf("fuzzgen: failed to write requests: %w", err)
	}
	return nil
}

func q(s string) string { return strconv.Quote(s) }

func writeKey(sb *strings.Builder, tile, bel, attr, val string) {
	fmt.Fprintf(sb, "(key %s %s %s %s)", q(tile), q(bel), q(attr), q(val))
}

func writeConstraints(sb *strings.Builder, tag string, cs Constraints) {
	if len(cs) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n    (%s", tag)
	for _, c := range cs {
		fmt.Fprintf(sb, " (%s %s %s %s)", c.Kind, q(c.Target.String()), q(c.Name), q(c.Value))
	}
	sb.WriteString(")")
}
