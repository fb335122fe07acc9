package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors AppConfig with TOML friendly types. Durations are
// strings and optional booleans are pointers.
type FileConfig struct {
	Port     int    `toml:"port"`
	Endpoint string `toml:"endpoint"`

	Workers       int     `toml:"workers"`
	BlockSize     int     `toml:"block_size"`
	ReadNoise     float64 `toml:"read_noise"`
	Gain          float64 `toml:"gain"`
	Saturation    float64 `toml:"saturation"`
	JumpThreshold float64 `toml:"jump_threshold"`
	Diagnostics   *bool   `toml:"diagnostics"`

	Debug         *bool   `toml:"debug"`
	DebugReadRate float64 `toml:"debug_read_rate"`
	SimRows       int     `toml:"sim_rows"`
	SimCols       int     `toml:"sim_cols"`
	SimReads      int     `toml:"sim_reads"`
	SimReadTime   float64 `toml:"sim_read_time"`

	OutputDir      string `toml:"output_dir"`
	Preview        *bool  `toml:"preview"`
	RawLog         *bool  `toml:"raw_log"`
	RawLogDir      string `toml:"raw_log_dir"`
	IngestLogEvery int    `toml:"ingest_log_every"`
	IngestFallback *bool  `toml:"ingest_fallback"`
	MaxSamples     int    `toml:"max_samples"`
	UIRate         string `toml:"ui_rate"`

	DBPath    string `toml:"db"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.quicklook/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".quicklook", "config.toml")
	}
	return ""
}

// ApplyFileConfig copies file values into cfg, skipping flags in changed.
func ApplyFileConfig(cfg *AppConfig, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("endpoint", fc.Endpoint, &cfg.Endpoint)
	s.setString("output-dir", fc.OutputDir, &cfg.OutputDir)
	s.setString("raw-log-dir", fc.RawLogDir, &cfg.RawLogDir)
	s.setString("db", fc.DBPath, &cfg.DBPath)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	s.setInt("port", fc.Port, &cfg.Port)
	s.setInt("workers", fc.Workers, &cfg.Workers)
	s.setInt("block-size", fc.BlockSize, &cfg.BlockSize)
	s.setInt("sim-rows", fc.SimRows, &cfg.SimRows)
	s.setInt("sim-cols", fc.SimCols, &cfg.SimCols)
	s.setInt("sim-reads", fc.SimReads, &cfg.SimReads)
	s.setInt("ingest-log-every", fc.IngestLogEvery, &cfg.IngestLogEvery)
	s.setInt("max-samples", fc.MaxSamples, &cfg.MaxSamples)

	s.setFloat("read-noise", fc.ReadNoise, &cfg.ReadNoise)
	s.setFloat("gain", fc.Gain, &cfg.Gain)
	s.setFloat("saturation", fc.Saturation, &cfg.Saturation)
	s.setFloat("jump-threshold", fc.JumpThreshold, &cfg.JumpThreshold)
	s.setFloat("debug-read-rate", fc.DebugReadRate, &cfg.DebugReadRate)
	s.setFloat("sim-read-time", fc.SimReadTime, &cfg.SimReadTime)

	s.setBool("diagnostics", fc.Diagnostics, &cfg.Diagnostics)
	s.setBool("debug", fc.Debug, &cfg.Debug)
	s.setBool("preview", fc.Preview, &cfg.Preview)
	s.setBool("raw-log", fc.RawLog, &cfg.RawLogEnabled)
	s.setBool("ingest-fallback", fc.IngestFallback, &cfg.IngestFallback)

	return s.setDuration("ui-rate", fc.UIRate, &cfg.UIRate)
}

func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
