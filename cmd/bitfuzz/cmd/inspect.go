package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bitfuzz/pkg/collect"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

var (
	inspectKey   string
	inspectMisc  string
	inspectAudit bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <database>",
	Short: "Show the content of a tile database",
	Long: `Show a tile database written by collect, as JSON or BSON (.bson).
Without flags the item keys and a summary are listed.

Examples:
  bitfuzz inspect db.json
  bitfuzz inspect db.json --key IOB_V2P_NW2/IOB0/PDRIVE
  bitfuzz inspect db.bson --misc V2P_PDRIVE
  bitfuzz inspect db.json --audit`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectKey, "key", "k", "", "dump one item, as TILE/BEL/ATTR")
	inspectCmd.Flags().StringVarP(&inspectMisc, "misc", "m", "", "list the misc values of one class")
	inspectCmd.Flags().BoolVar(&inspectAudit, "audit", false, "report shared bits and malformed enums")
}

func loadDatabase(path string) (*tiledb.Database, error) {
	if filepath.Ext(path) == ".bson" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read database: %w", err)
		}
		return tiledb.ImportBSON(data)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer f.Close()
	return tiledb.ImportJSON(f)
}

func parseKey(s string) (tiledb.Key, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return tiledb.Key{}, fmt.Errorf("invalid key %q (want TILE/BEL/ATTR)", s)
	}
	return tiledb.Key{Tile: parts[0], Bel: parts[1], Attr: parts[2]}, nil
}

func dumpItem(w io.Writer, db *tiledb.Database, s string) error {
	k, err := parseKey(s)
	if err != nil {
		return err
	}
	it, ok := db.Get(k)
	if !ok {
		return fmt.Errorf("no item %s", k)
	}
	fmt.Fprintf(w, "%s: %s\n", k, it)
	if note := db.Note(k); note != "" {
		fmt.Fprintf(w, "note: %s\n", note)
	}
	// Item and TileBit have String methods; dump the raw fields instead.
	cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true, DisableMethods: true}
	cfg.Fdump(w, it)
	return nil
}

func listMisc(w io.Writer, db *tiledb.Database, class string) int {
	n := 0
	for _, k := range db.Misc.Keys() {
		if class != "" && k.Class != class {
			continue
		}
		v, _ := db.Misc.Lookup(k)
		fmt.Fprintf(w, "  %-40s %s\n", k, v)
		n++
	}
	return n
}

func listKeys(w io.Writer, db *tiledb.Database, prefix string) int {
	n := 0
	for _, k := range db.Keys() {
		if !strings.HasPrefix(k.String(), prefix) {
			continue
		}
		fmt.Fprintf(w, "  %s\n", k)
		n++
	}
	return n
}

// audit reports the checks a finished database should pass. It returns
// the number of findings.
func audit(w io.Writer, db *tiledb.Database) int {
	overlaps := tiledb.Audit(db, collect.KnownExceptions)
	for _, o := range overlaps {
		fmt.Fprintf(w, "  shared: %s\n", o)
	}
	partial := tiledb.CheckEnumTotality(db)
	for _, k := range partial {
		fmt.Fprintf(w, "  enum: %s\n", k)
	}
	fmt.Fprintf(w, "%d overlaps, %d enums without a default or with duplicate encodings\n", len(overlaps), len(partial))
	return len(overlaps) + len(partial)
}

func runInspect(cmd *cobra.Command, args []string) error {
	db, err := loadDatabase(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch {
	case inspectKey != "":
		return dumpItem(out, db, inspectKey)
	case inspectMisc != "":
		if listMisc(out, db, inspectMisc) == 0 {
			return fmt.Errorf("no misc class %s", inspectMisc)
		}
		return nil
	case inspectAudit:
		audit(out, db)
		return nil
	}

	fmt.Fprint(out, collect.Describe(db))
	if verbose {
		listKeys(out, db, "")
	}
	return nil
}
