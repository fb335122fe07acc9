package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"quicklook-go/internal/noise"
	"quicklook-go/internal/processing"
	"quicklook-go/internal/ramp"
)

type AppConfig struct {
	Port     int
	Endpoint string

	Workers       int
	BlockSize     int
	ReadNoise     float64
	Gain          float64
	Saturation    float64
	JumpThreshold float64
	Diagnostics   bool

	Debug         bool
	DebugReadRate float64
	SimRows       int
	SimCols       int
	SimReads      int
	SimReadTime   float64

	OutputDir      string
	Preview        bool
	RawLogEnabled  bool
	RawLogDir      string
	IngestLogEvery int
	IngestFallback bool
	MaxSamples     int
	UIRate         time.Duration

	DBPath    string
	LogLevel  string
	LogFormat string
}

func DefaultConfig() AppConfig {
	return AppConfig{
		Port:           8888,
		Endpoint:       "tcp://localhost:31001",
		ReadNoise:      12,
		Gain:           1,
		Saturation:     65535,
		JumpThreshold:  ramp.DefaultJumpThreshold,
		DebugReadRate:  10,
		SimRows:        32,
		SimCols:        32,
		SimReads:       10,
		SimReadTime:    1.5,
		OutputDir:      "output",
		RawLogDir:      "rawlog",
		IngestLogEvery: 100,
		IngestFallback: true,
		MaxSamples:     processing.DefaultMaxSamples,
		UIRate:         time.Second,
		DBPath:         "quicklook.db",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// NoiseModel builds the detector noise model. A saturation of zero
// disables saturation flagging.
func (c AppConfig) NoiseModel() (noise.Model, error) {
	saturation := c.Saturation
	if saturation == 0 {
		saturation = math.Inf(1)
	}
	return noise.New(c.ReadNoise, c.Gain, saturation)
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *AppConfig) Validate() error {
	if _, err := c.NoiseModel(); err != nil {
		return err
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.BlockSize < 0 {
		return fmt.Errorf("block size must not be negative")
	}
	if !(c.JumpThreshold > 0) {
		return fmt.Errorf("jump threshold must be positive")
	}
	if c.SimRows < 1 || c.SimCols < 1 || c.SimReads < 2 {
		return fmt.Errorf("simulator shape %dx%d with %d reads is too small", c.SimRows, c.SimCols, c.SimReads)
	}
	if !(c.SimReadTime > 0) {
		return fmt.Errorf("simulator read time must be positive")
	}
	if c.DebugReadRate <= 0 {
		c.DebugReadRate = 10
	}
	if c.UIRate <= 0 {
		c.UIRate = time.Second
	}
	if c.IngestLogEvery < 1 {
		c.IngestLogEvery = 1
	}
	if c.MaxSamples < 1 {
		c.MaxSamples = processing.DefaultMaxSamples
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console":
		c.LogFormat = "console"
	case "json":
		c.LogFormat = "json"
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// configSetter applies values while respecting flag precedence: a value
// is only written if the corresponding flag was not set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}
