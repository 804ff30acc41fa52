package samples

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/OpenTraceLab/bitfuzz/pkg/bitdiff"
	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

// CaptureLexer tokenizes capture files:
//
//	# comment
//	device "xc2v40" family "virtex2"
//	sample "IOB_V2_NW2" "IOB0" "PULL" "PULLUP" { +0.2.13 -1.4.7 }
var CaptureLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s\t\n\r]+`},

	{Name: "KwDevice", Pattern: `\bdevice\b`},
	{Name: "KwFamily", Pattern: `\bfamily\b`},
	{Name: "KwSample", Pattern: `\bsample\b`},

	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Bit", Pattern: `[-+][0-9]+\.[0-9]+\.[0-9]+`},

	{Name: "LBrace", Pattern: `\{`},
	{Name: "RBrace", Pattern: `\}`},
})

type captureFile struct {
	Device  string        `parser:"KwDevice @String"`
	Family  string        `parser:"KwFamily @String"`
	Samples []*sampleDecl `parser:"@@*"`
}

type sampleDecl struct {
	Pos lexer.Position

	Tile string   `parser:"KwSample @String"`
	Bel  string   `parser:"@String"`
	Attr string   `parser:"@String"`
	Val  string   `parser:"@String"`
	Bits []string `parser:"LBrace @Bit* RBrace"`
}

var captureParser = participle.MustBuild[captureFile](
	participle.Lexer(CaptureLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
)

// Sample is one captured diff.
type Sample struct {
	Key  Key
	Diff bitdiff.Diff
}

// Capture is the content of a capture file.
type Capture struct {
	Device  string
	Family  iostd.Family
	Samples []Sample
}

// ParseCapture reads a capture file.
func ParseCapture(r io.Reader) (*Capture, error) {
	f, err := captureParser.Parse("", r)
	if err != nil {
		return nil, fmt.Errorf("samples: parse error: %w", err)
	}
	fam, err := iostd.ParseFamily(f.Family)
	if err != nil {
		return nil, fmt.Errorf("samples: %w", err)
	}
	c := &Capture{Device: f.Device, Family: fam}
	for _, s := range f.Samples {
		d := bitdiff.New()
		for _, tok := range s.Bits {
			b, err := tiledb.ParseBit(tok[1:])
			if err != nil {
				return nil, fmt.Errorf("samples: %s: %w", s.Pos, err)
			}
			if _, dup := d[b]; dup {
				return nil, fmt.Errorf("samples: %s: bit %s listed twice", s.Pos, b)
			}
			d[b] = tok[0] == '+'
		}
		c.Samples = append(c.Samples, Sample{Key: Key{s.Tile, s.Bel, s.Attr, s.Val}, Diff: d})
	}
	return c, nil
}

// ParseCaptureFile reads the capture file at path.
func ParseCaptureFile(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("samples: failed to open capture: %w", err)
	}
	defer f.Close()
	return ParseCapture(f)
}

// Load records every sample of the capture into s.
func (c *Capture) Load(s *Store) error {
	if ft := fault.Catch(func() {
		for _, smp := range c.Samples {
			s.Record(smp.Key, smp.Diff)
		}
	}); ft != nil {
		return fmt.Errorf("samples: failed to load capture of %s: %w", c.Device, ft)
	}
	return nil
}

func formatBits(d bitdiff.Diff) string {
	var sb strings.Builder
	for i, b := range d.Bits() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if d[b] {
			sb.WriteByte('+')
		} else {
			sb.WriteByte('-')
		}
		sb.WriteString(b.String())
	}
	return sb.String()
}

func parseBits(s string) (bitdiff.Diff, error) {
	d := bitdiff.New()
	for _, tok := range strings.Fields(s) {
		if len(tok) < 2 || (tok[0] != '+' && tok[0] != '-') {
			return nil, fmt.Errorf("invalid bit %q", tok)
		}
		b, err := tiledb.ParseBit(tok[1:])
		if err != nil {
			return nil, err
		}
		d[b] = tok[0] == '+'
	}
	return d, nil
}

// WriteCapture writes every sample held by s, consumed or not, in capture
// file form.
func WriteCapture(w io.Writer, device string, family iostd.Family, s *Store) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "device %s family %s\n", strconv.Quote(device), strconv.Quote(family.String()))
	s.mu.Lock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	SortKeys(keys)
	for _, k := range keys {
		d := s.entries[k].diff
		fmt.Fprintf(bw, "sample %s %s %s %s { %s }\n",
			strconv.Quote(k.Tile), strconv.Quote(k.Bel), strconv.Quote(k.Attr), strconv.Quote(k.Val), formatBits(d))
	}
	s.mu.Unlock()
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("samples: failed to write capture: %w", err)
	}
	return nil
}
