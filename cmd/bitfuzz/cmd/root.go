package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bitfuzz",
	Short: "Bitstream probe generator and tile database classifier",
	Long: `bitfuzz recovers the configuration bit layout of FPGA I/O tiles.

It generates the configuration requests that probe each I/O logic and
buffer setting, loads the bit differences captured for them, and
classifies those differences into a tile database.

Examples:
  bitfuzz catalog --family virtex2p                   # List I/O standards
  bitfuzz generate --device xc2vp2.yaml -o reqs.json  # Emit probe requests
  bitfuzz collect --device xc2vp2.yaml run1.cap       # Classify captures
  bitfuzz inspect db.json --key IOI/IOI0/MUX_O        # Dump one item
  bitfuzz shell db.json                               # Browse a database`,
	Version: "0.9.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			if err := flag.Set("v", "1"); err != nil {
				return err
			}
			if err := flag.Set("logtostderr", "true"); err != nil {
				return err
			}
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	defer glog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		glog.Flush()
		os.Exit(1)
	}
}

func init() {
	// glog registers -v, -logtostderr and friends on the standard flag set.
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "verbose output (glog -v=1 to stderr)")
}
