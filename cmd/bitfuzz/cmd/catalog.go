package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
)

var (
	catalogFamily    string
	catalogLeftRight bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the I/O standards of a family",
	Long: `List every I/O standard legal on a family with its supply voltages,
differential and impedance control kind, and drive strengths.

Examples:
  bitfuzz catalog --family virtex2
  bitfuzz catalog --family S3A --left-right`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().StringVarP(&catalogFamily, "family", "f", "", "family name, e.g. virtex2p or S3E")
	catalogCmd.Flags().BoolVar(&catalogLeftRight, "left-right", false,
		"Spartan-3A left/right edge banks")
	catalogCmd.MarkFlagRequired("family")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	f, err := iostd.ParseFamily(catalogFamily)
	if err != nil {
		return err
	}
	stds := iostd.Catalog(f, catalogLeftRight)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d standards\n\n", f, len(stds))
	fmt.Fprintf(out, "  %-20s %-16s %5s %5s %-10s %-12s %s\n", "NAME", "ROW", "VCCO", "VREF", "DIFF", "DCI", "DRIVES")
	for _, s := range stds {
		drives := make([]string, len(s.Drive))
		for i, d := range s.Drive {
			drives[i] = fmt.Sprint(d)
		}
		name := s.Name
		if s.InputOnly {
			name += "*"
		}
		fmt.Fprintf(out, "  %-20s %-16s %5d %5d %-10s %-12s %s\n",
			name, iostd.Row(s.Name), s.Vcco, s.Vref, s.Diff, s.Dci, strings.Join(drives, ","))
	}
	fmt.Fprintln(out, "\n  * input only")
	return nil
}
