package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"quicklook-go/internal/config"
	"quicklook-go/internal/logging"
	"quicklook-go/internal/storage"
)

// app carries the resolved configuration shared by every subcommand.
type app struct {
	cfg     config.AppConfig
	cfgPath string
	log     zerolog.Logger
}

var exampleUsage = strings.TrimSpace(`
  quicklook simulate exposure.cbor --sim-rows 64 --sim-cols 64
  quicklook fit exposure.cbor --read-noise 12 --gain 1.8
  quicklook serve --endpoint tcp://detector:31001
  quicklook serve --debug --debug-read-rate 20
  quicklook watch /data/incoming
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	a := &app{cfg: config.DefaultConfig(), log: logging.New("info", "console")}

	root := &cobra.Command{
		Use:           "quicklook",
		Short:         "Up-the-ramp count rate fitting for detector read cubes",
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	a.bindFlags(root.PersistentFlags())

	root.AddCommand(
		newFitCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newSimulateCmd(a),
		newInspectCmd(a),
		newRawlogCmd(a),
		newRunsCmd(a),
	)

	if err := root.Execute(); err != nil {
		a.log.Error().Err(err).Msg("quicklook failed")
		os.Exit(1)
	}
}

func (a *app) bindFlags(fs *pflag.FlagSet) {
	c := &a.cfg
	fs.StringVar(&a.cfgPath, "config", "", "Path to TOML config (default ~/.quicklook/config.toml)")

	fs.IntVar(&c.Port, "port", c.Port, "HTTP port for the status UI")
	fs.StringVar(&c.Endpoint, "endpoint", c.Endpoint, "ZMQ endpoint of the read stream")

	fs.IntVar(&c.Workers, "workers", c.Workers, "Fit workers (0 means one per CPU)")
	fs.IntVar(&c.BlockSize, "block-size", c.BlockSize, "Pixels per work unit (0 means one row)")
	fs.Float64Var(&c.ReadNoise, "read-noise", c.ReadNoise, "Read noise in counts")
	fs.Float64Var(&c.Gain, "gain", c.Gain, "Gain applied to the Poisson term")
	fs.Float64Var(&c.Saturation, "saturation", c.Saturation, "Saturation level in counts (0 disables)")
	fs.Float64Var(&c.JumpThreshold, "jump-threshold", c.JumpThreshold, "Studentized residual that marks a jump")
	fs.BoolVar(&c.Diagnostics, "diagnostics", c.Diagnostics, "Keep excluded read indices per pixel")

	fs.BoolVar(&c.Debug, "debug", c.Debug, "Serve simulated reads instead of the ZMQ stream")
	fs.Float64Var(&c.DebugReadRate, "debug-read-rate", c.DebugReadRate, "Simulated reads per second")
	fs.IntVar(&c.SimRows, "sim-rows", c.SimRows, "Simulated detector rows")
	fs.IntVar(&c.SimCols, "sim-cols", c.SimCols, "Simulated detector columns")
	fs.IntVar(&c.SimReads, "sim-reads", c.SimReads, "Simulated reads per exposure")
	fs.Float64Var(&c.SimReadTime, "sim-read-time", c.SimReadTime, "Simulated seconds between reads")

	fs.StringVar(&c.OutputDir, "output-dir", c.OutputDir, "Directory for result files")
	fs.BoolVar(&c.Preview, "preview", c.Preview, "Write a PNG preview of every rate image")
	fs.BoolVar(&c.RawLogEnabled, "raw-log", c.RawLogEnabled, "Write raw stream messages to disk")
	fs.StringVar(&c.RawLogDir, "raw-log-dir", c.RawLogDir, "Directory for raw ingest logs")
	fs.IntVar(&c.IngestLogEvery, "ingest-log-every", c.IngestLogEvery, "Log every Nth ingest error")
	fs.IntVar(&c.MaxSamples, "max-samples", c.MaxSamples, "Largest streamed exposure accepted, in samples")
	fs.BoolVar(&c.IngestFallback, "ingest-fallback", c.IngestFallback, "Fall back to the simulator when ingest fails")
	fs.DurationVar(&c.UIRate, "ui-rate", c.UIRate, "Minimum interval between UI snapshots")

	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite run history (empty disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: console or json")
}

// load resolves defaults, file, environment and flags, in increasing
// precedence, then builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && config.FileExists(cfgFile) {
		fc, err := config.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	} else if a.cfgPath != "" {
		return fmt.Errorf("config file %s not found", a.cfgPath)
	}

	if err := config.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.log = logging.New(a.cfg.LogLevel, a.cfg.LogFormat)
	a.log.Debug().Interface("config", a.cfg).Msg("configuration")
	return nil
}

// openStore opens the run history, or returns nil when it is disabled.
func (a *app) openStore() (*storage.Store, error) {
	if a.cfg.DBPath == "" {
		return nil, nil
	}
	store, err := storage.New(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open run history %s: %w", a.cfg.DBPath, err)
	}
	return store, nil
}
