package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bitfuzz/pkg/fuzzgen"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

var (
	genDevice string
	genConfig string
	genFormat string
	genOutput string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Emit the probe requests of a device",
	Long: `Build every configuration request that probes the I/O logic and
buffer settings of a device, and write them as JSON or as one
s-expression for the bitstream toolchain driver.

Examples:
  bitfuzz generate --device xc2vp2.yaml
  bitfuzz generate --device xc3s100e.yaml --format sexp -o reqs.sexp
  bitfuzz generate --device xc2vp2.yaml --config gen.yaml`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&genDevice, "device", "d", "", "device description (YAML)")
	generateCmd.Flags().StringVarP(&genConfig, "config", "c", "", "generator config (YAML)")
	generateCmd.Flags().StringVar(&genFormat, "format", "json", "output format: json or sexp")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "output file (default: stdout)")
	generateCmd.MarkFlagRequired("device")
}

func loadGenConfig(path string) (*fuzzgen.Config, error) {
	if path == "" {
		cfg := fuzzgen.DefaultConfig()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return fuzzgen.LoadConfig(f)
}

// openOutput returns the named file, or the command's stdout for "".
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, f.Close, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	var write func(io.Writer, *topology.Device, []fuzzgen.Request) error
	switch genFormat {
	case "json":
		write = func(w io.Writer, d *topology.Device, reqs []fuzzgen.Request) error {
			return fuzzgen.ExportJSON(w, d.Name, d.Family, reqs)
		}
	case "sexp":
		write = func(w io.Writer, d *topology.Device, reqs []fuzzgen.Request) error {
			return fuzzgen.WriteSexp(w, d.Name, d.Family, reqs)
		}
	default:
		return fmt.Errorf("unknown format %q (want json or sexp)", genFormat)
	}

	d, err := topology.LoadDeviceFile(genDevice)
	if err != nil {
		return err
	}
	cfg, err := loadGenConfig(genConfig)
	if err != nil {
		return err
	}

	g := &fuzzgen.Generator{Family: d.Family, Device: d, Config: cfg}
	reqs, err := g.Generate(context.Background())
	if err != nil {
		return err
	}
	glog.Infof("generate: %s: %d requests", d.Name, len(reqs))

	w, closeOut, err := openOutput(cmd, genOutput)
	if err != nil {
		return err
	}
	if err := write(w, d, reqs); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}
