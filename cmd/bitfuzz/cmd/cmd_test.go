package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

const v2pDevice = "../../../pkg/topology/testdata/v2p.yaml"

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Reset flags to prevent accumulation between tests
	catalogFamily, catalogLeftRight = "", false
	genDevice, genConfig, genFormat, genOutput = "", "", "json", ""
	colDevice, colConfig, colArchive, colOutput, colBSON, colFilter = "", "", "", "", "", ""
	colSave, colStrict, colConsumed, colParallel = false, false, false, 0
	colRequests = ""
	inspectKey, inspectMisc, inspectAudit = "", "", false

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCatalog(t *testing.T) {
	out, err := execute(t, "catalog", "--family", "virtex2")
	require.NoError(t, err)
	assert.Contains(t, out, "virtex2:")
	assert.Contains(t, out, "LVCMOS33")
	assert.Contains(t, out, "HT_25")

	_, err = execute(t, "catalog", "--family", "virtex9")
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	out, err := execute(t, "generate", "--device", v2pDevice, "--config", writeFile(t, "gen.yaml", "tile_filter: \"^IOI$\"\n"))
	require.NoError(t, err)
	assert.Contains(t, out, `"device": "xc2vp2"`)
	assert.Contains(t, out, "OTCLK1INV")

	path := filepath.Join(t.TempDir(), "reqs.sexp")
	_, err = execute(t, "generate", "--device", v2pDevice, "--format", "sexp", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `(requests (device "xc2vp2")`)

	_, err = execute(t, "generate", "--device", v2pDevice, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestCollectAndInspect(t *testing.T) {
	capture := writeFile(t, "run.cap", `device "xc2vp2" family "virtex2p"
sample "IOB_V2P_NW2" "IOB1" "PULL" "PULLDOWN" { +0.1.2 }
`)
	dbPath := filepath.Join(t.TempDir(), "db.json")
	bsonPath := filepath.Join(t.TempDir(), "db.bson")

	out, err := execute(t, "collect", "--device", v2pDevice, "--filter", "^IOI$", "-o", dbPath, "--bson", bsonPath, capture)
	require.NoError(t, err)
	assert.Contains(t, out, "0 items")

	out, err = execute(t, "inspect", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "0 items")

	out, err = execute(t, "inspect", bsonPath, "--audit")
	require.NoError(t, err)
	assert.Contains(t, out, "0 overlaps")
}

func TestCollectErrors(t *testing.T) {
	_, err := execute(t, "collect", "--device", v2pDevice)
	assert.ErrorContains(t, err, "no samples")

	_, err = execute(t, "collect", "--device", v2pDevice, "--save", "x.cap")
	assert.ErrorContains(t, err, "--save needs --archive")

	other := writeFile(t, "other.cap", `device "xc2v40" family "virtex2"`)
	_, err = execute(t, "collect", "--device", v2pDevice, other)
	assert.ErrorContains(t, err, "captured on xc2v40")

	stray := writeFile(t, "stray.cap", `device "xc2vp2" family "virtex2p"
sample "IOI" "IOI0" "MYSTERY" "1" { +1.2.3 }
`)
	_, err = execute(t, "collect", "--device", v2pDevice, "--filter", "^IOI$", "--require-consumed", stray)
	assert.ErrorContains(t, err, "never classified")
}

func TestCollectRequests(t *testing.T) {
	reqs := writeFile(t, "reqs.json", `{
  "version": "1.0", "device": "xc2vp2", "family": "virtex2p",
  "requests": [
    {"key": {"tile": "IOI", "bel": "IOI0", "attr": "MYSTERY", "val": "1"},
     "site": {"kind": "IOI", "col": 2, "row": 20}, "bel": "IOI0",
     "base": null, "diff": [{"kind": "attr", "target": {}, "name": "MYSTERY", "value": "1"}]},
    {"key": {"tile": "IOI", "bel": "IOI0", "attr": "MYSTERY", "val": "1"},
     "site": {"kind": "IOI", "col": 2, "row": 20}, "bel": "IOI0",
     "base": [{"kind": "attr", "target": {}, "name": "OTHER", "value": "1"}],
     "diff": [{"kind": "attr", "target": {}, "name": "MYSTERY", "value": "1"}], "check": true},
    {"key": {"tile": "IOB_V2P_NW2", "bel": "IOB0", "attr": "PULL", "val": "KEEPER"},
     "site": {"kind": "IOI", "col": 2, "row": 20}, "bel": "IOI0", "base": null, "diff": null}
  ]
}`)
	capture := writeFile(t, "run.cap", `device "xc2vp2" family "virtex2p"
sample "IOI" "IOI0" "MYSTERY" "1" { +1.2.3 }
sample "IOI" "IOI0" "MYSTERY" "1" { +1.2.3 }
`)
	// the unanswered buffer request is outside the filter
	out, err := execute(t, "collect", "--device", v2pDevice, "--filter", "^IOI$", "--requests", reqs, capture)
	require.NoError(t, err)
	assert.Contains(t, out, "0 items")

	_, err = execute(t, "collect", "--device", v2pDevice, "--requests", reqs, capture)
	assert.ErrorContains(t, err, "1 requested samples never captured, first IOB_V2P_NW2/IOB0/PULL=KEEPER")

	// the cross-check run disagrees with the first one
	conflict := writeFile(t, "conflict.cap", `device "xc2vp2" family "virtex2p"
sample "IOI" "IOI0" "MYSTERY" "1" { +1.2.3 }
sample "IOI" "IOI0" "MYSTERY" "1" { +1.2.4 }
`)
	_, err = execute(t, "collect", "--device", v2pDevice, "--filter", "^IOI$", "--requests", reqs, conflict)
	assert.ErrorContains(t, err, "conflicting samples")

	other := writeFile(t, "other.json", `{"version": "1.0", "device": "xc2v40", "family": "virtex2", "requests": []}`)
	_, err = execute(t, "collect", "--device", v2pDevice, "--requests", other, capture)
	assert.ErrorContains(t, err, "generated for xc2v40")
}

func TestShell(t *testing.T) {
	db := tiledb.New()
	db.Insert(tiledb.Key{Tile: "IOI", Bel: "IOI0", Attr: "OTCLK1INV"}, tiledb.BoolItem(tiledb.NewBit(1, 0, 3).Pos()))
	db.Insert(tiledb.Key{Tile: "IOI", Bel: "IOI0", Attr: "MUX_T"}, tiledb.EnumItem(
		[]tiledb.TileBit{tiledb.NewBit(1, 0, 4)},
		map[string]tiledb.BitVec{"NONE": {false}, "T1": {true}},
	))
	db.Misc.Insert(tiledb.MiscKey{Family: "V2P", Class: "V2P_PDRIVE", Value: "LVTTL.12"}, tiledb.BitVec{true, false})

	run := func(line string) (string, error) {
		var buf bytes.Buffer
		err := execShell(&buf, db, line)
		return buf.String(), err
	}

	out, err := run("keys IOI/IOI0/M")
	require.NoError(t, err)
	assert.Equal(t, "  IOI/IOI0/MUX_T\n", out)

	out, err = run("get IOI/IOI0/MUX_T")
	require.NoError(t, err)
	assert.Contains(t, out, "IOI/IOI0/MUX_T")
	assert.Contains(t, out, "Values")
	assert.Contains(t, out, "Support")
	assert.Contains(t, out, "Frame: (int) 0")

	out, err = run("misc V2P_PDRIVE")
	require.NoError(t, err)
	assert.Contains(t, out, "LVTTL.12")

	out, err = run("describe")
	require.NoError(t, err)
	assert.Contains(t, out, "2 items (1 bool, 0 bitvec, 1 enum), 1 misc values")

	_, err = run("get IOI/IOI0")
	assert.ErrorContains(t, err, "invalid key")
	_, err = run("get IOI/IOI9/MUX_T")
	assert.ErrorContains(t, err, "no item")
	_, err = run("frobnicate")
	assert.ErrorContains(t, err, "unknown command")
	_, err = run("quit")
	assert.Equal(t, errQuit, err)
	_, err = run("   ")
	assert.NoError(t, err)

	complete := shellCompleter(db)
	assert.Equal(t, []string{"get"}, complete("g"))
	assert.Equal(t, []string{"get IOI/IOI0/MUX_T", "get IOI/IOI0/OTCLK1INV"}, complete("get IOI/"))
	assert.Nil(t, complete("misc V"))
}
