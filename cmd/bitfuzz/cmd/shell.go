package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bitfuzz/pkg/collect"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

var shellCmd = &cobra.Command{
	Use:   "shell <database>",
	Short: "Browse a tile database interactively",
	Long: `Open a tile database and read commands from a prompt. Type "help"
for the command list. Keys complete with TAB.

Examples:
  bitfuzz shell db.json`,
	Args: cobra.ExactArgs(1),
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellHelp = `commands:
  keys [PREFIX]      list item keys
  get TILE/BEL/ATTR  dump one item
  misc [CLASS]       list misc values
  audit              report shared bits and malformed enums
  describe           summary of the database
  help               this text
  quit               leave the shell
`

var errQuit = errors.New("quit")

// execShell runs one shell line against db.
func execShell(w io.Writer, db *tiledb.Database, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch fields[0] {
	case "keys", "ls":
		if listKeys(w, db, arg) == 0 {
			fmt.Fprintln(w, "no keys")
		}
	case "get":
		if arg == "" {
			return fmt.Errorf("usage: get TILE/BEL/ATTR")
		}
		return dumpItem(w, db, arg)
	case "misc":
		if listMisc(w, db, arg) == 0 {
			fmt.Fprintln(w, "no misc values")
		}
	case "audit":
		audit(w, db)
	case "describe":
		fmt.Fprint(w, collect.Describe(db))
	case "help", "?":
		fmt.Fprint(w, shellHelp)
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return nil
}

func shellCompleter(db *tiledb.Database) liner.Completer {
	cmds := []string{"keys", "get", "misc", "audit", "describe", "help", "quit"}
	return func(line string) []string {
		var res []string
		if cmd, arg, ok := strings.Cut(line, " "); ok {
			if cmd != "get" && cmd != "keys" {
				return nil
			}
			for _, k := range db.Keys() {
				if strings.HasPrefix(k.String(), arg) {
					res = append(res, cmd+" "+k.String())
				}
			}
			return res
		}
		for _, c := range cmds {
			if strings.HasPrefix(c, line) {
				res = append(res, c)
			}
		}
		return res
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bitfuzz_history")
}

func runShell(cmd *cobra.Command, args []string) error {
	db, err := loadDatabase(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(shellCompleter(db))

	hist := historyFile()
	if hist != "" {
		if f, err := os.Open(hist); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintf(out, "%s: %d items. Type help for commands.\n", args[0], db.Len())
	for {
		input, err := line.Prompt("bitfuzz> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read command: %w", err)
		}
		line.AppendHistory(input)
		if err := execShell(out, db, input); err == errQuit {
			break
		} else if err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}

	if hist != "" {
		if f, err := os.Create(hist); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}
	return nil
}
