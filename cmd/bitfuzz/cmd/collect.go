package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bitfuzz/pkg/collect"
	"github.com/OpenTraceLab/bitfuzz/pkg/fuzzgen"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

var (
	colDevice   string
	colConfig   string
	colArchive  string
	colSave     bool
	colOutput   string
	colBSON     string
	colFilter   string
	colParallel int
	colStrict   bool
	colConsumed bool
	colRequests string
)

var collectCmd = &cobra.Command{
	Use:   "collect [capture-file...]",
	Short: "Classify captured samples into a tile database",
	Long: `Load the bit differences captured for a device, from capture files,
a MySQL sample archive or both, and classify them into a tile database.

A classification failure names the tile kind, bel and attribute whose
samples disagree with the model.

Examples:
  bitfuzz collect --device xc2vp2.yaml run1.cap run2.cap -o db.json
  bitfuzz collect --device xc2vp2.yaml --archive 'u:p@tcp(db:3306)/bitfuzz'
  bitfuzz collect --device xc2vp2.yaml --archive $DSN --save run3.cap
  bitfuzz collect --config collect.yaml --filter '^IOI' --strict run1.cap
  bitfuzz collect --device xc2vp2.yaml --requests reqs.json run1.cap`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVarP(&colDevice, "device", "d", "", "device description (YAML); overrides the config")
	collectCmd.Flags().StringVarP(&colConfig, "config", "c", "", "classifier config (YAML)")
	collectCmd.Flags().StringVar(&colArchive, "archive", "", "MySQL DSN of the sample archive")
	collectCmd.Flags().BoolVar(&colSave, "save", false, "store the loaded samples in the archive before classifying")
	collectCmd.Flags().StringVarP(&colOutput, "output", "o", "", "write the database as JSON")
	collectCmd.Flags().StringVar(&colBSON, "bson", "", "write the database as BSON")
	collectCmd.Flags().StringVar(&colFilter, "filter", "", "only classify tile kinds matching this regex")
	collectCmd.Flags().IntVarP(&colParallel, "parallel", "j", 0, "tile kinds classified at once (0: config value)")
	collectCmd.Flags().BoolVar(&colStrict, "strict", false, "fail on unexcused shared bits or enums without a default")
	collectCmd.Flags().BoolVar(&colConsumed, "require-consumed", false, "fail when a classified tile kind leaves samples unread")
	collectCmd.Flags().StringVar(&colRequests, "requests", "", "request list (JSON) the captures must answer")
}

func loadCollectConfig(path string) (*collect.Config, error) {
	cfg := collect.DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer f.Close()
		if cfg, err = collect.LoadConfig(f); err != nil {
			return nil, err
		}
	}
	if colDevice != "" {
		cfg.DeviceFile = colDevice
	}
	if colFilter != "" {
		cfg.TileFilter = colFilter
	}
	if colParallel > 0 {
		cfg.Parallel = colParallel
	}
	cfg.StrictDiscard = cfg.StrictDiscard || colStrict
	cfg.RequireConsumed = cfg.RequireConsumed || colConsumed
	if cfg.DeviceFile == "" {
		return nil, fmt.Errorf("no device: pass --device or set device_file")
	}
	return cfg, cfg.Validate()
}

// submitRequests registers the identities of a generated request list, so
// that samples the captures never answered can be reported.
func submitRequests(s *samples.Store, d *topology.Device, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open requests: %w", err)
	}
	defer f.Close()
	doc, err := fuzzgen.ImportJSON(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if doc.Device != d.Name {
		return fmt.Errorf("%s: generated for %s, not %s", path, doc.Device, d.Name)
	}
	if err := fuzzgen.Submit(s, doc.Requests); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	glog.V(1).Infof("collect: %s: %d requests", path, len(doc.Requests))
	return nil
}

// loadSamples fills s from the capture files and the archive.
func loadSamples(ctx context.Context, s *samples.Store, d *topology.Device, files []string) error {
	for _, path := range files {
		c, err := samples.ParseCaptureFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if c.Device != d.Name {
			return fmt.Errorf("%s: captured on %s, not %s", path, c.Device, d.Name)
		}
		if err := c.Load(s); err != nil {
			return err
		}
		glog.V(1).Infof("collect: %s: %d samples", path, len(c.Samples))
	}
	if colArchive == "" {
		return nil
	}

	a, err := samples.OpenArchive(colArchive)
	if err != nil {
		return err
	}
	defer a.Close()
	if colSave {
		if err := a.CreateSchema(ctx); err != nil {
			return err
		}
		return a.Save(ctx, d.Name, s)
	}
	n, err := a.Load(ctx, d.Name, s)
	if err != nil {
		return err
	}
	glog.V(1).Infof("collect: archive: %d samples", n)
	return nil
}

func runCollect(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && colArchive == "" {
		return fmt.Errorf("no samples: pass capture files or --archive")
	}
	if colSave && colArchive == "" {
		return fmt.Errorf("--save needs --archive")
	}
	cfg, err := loadCollectConfig(colConfig)
	if err != nil {
		return err
	}
	d, err := topology.LoadDeviceFile(cfg.DeviceFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := samples.NewStore()
	if colRequests != "" {
		if err := submitRequests(s, d, colRequests); err != nil {
			return err
		}
	}
	if err := loadSamples(ctx, s, d, args); err != nil {
		return err
	}
	if colRequests != "" {
		var missing []samples.Key
		for _, k := range s.Pending() {
			if cfg.ShouldCollect(k.Tile) {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%d requested samples never captured, first %s", len(missing), missing[0])
		}
	}
	c := &collect.Collector{Family: d.Family, Device: d, Store: s, Config: cfg}
	db, err := c.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), collect.Describe(db))

	if colOutput != "" {
		f, err := os.Create(colOutput)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		if err := db.ExportJSON(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if colBSON != "" {
		data, err := db.ExportBSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(colBSON, data, 0o644); err != nil {
			return fmt.Errorf("failed to write bson: %w", err)
		}
	}
	return nil
}
