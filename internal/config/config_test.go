package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quicklook-go/internal/noise"
	"quicklook-go/internal/processing"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		check      func(t *testing.T, cfg AppConfig)
		wantErr    bool
	}{
		{
			name: "applies file values",
			fileConfig: FileConfig{
				Port:          9000,
				ReadNoise:     8.5,
				Workers:       6,
				UIRate:        "250ms",
				Diagnostics:   &trueVal,
				OutputDir:     "/data/out",
				JumpThreshold: 4,
			},
			changed: map[string]bool{},
			check: func(t *testing.T, cfg AppConfig) {
				if cfg.Port != 9000 || cfg.Workers != 6 {
					t.Errorf("Port, Workers = %d, %d, want 9000, 6", cfg.Port, cfg.Workers)
				}
				if cfg.ReadNoise != 8.5 || cfg.JumpThreshold != 4 {
					t.Errorf("ReadNoise, JumpThreshold = %v, %v", cfg.ReadNoise, cfg.JumpThreshold)
				}
				if cfg.UIRate != 250*time.Millisecond {
					t.Errorf("UIRate = %v, want 250ms", cfg.UIRate)
				}
				if !cfg.Diagnostics || cfg.OutputDir != "/data/out" {
					t.Errorf("Diagnostics, OutputDir = %v, %q", cfg.Diagnostics, cfg.OutputDir)
				}
			},
		},
		{
			name:       "respects changed flags",
			fileConfig: FileConfig{Port: 9000, Gain: 2.5},
			changed:    map[string]bool{"port": true},
			check: func(t *testing.T, cfg AppConfig) {
				if cfg.Port != 8888 {
					t.Errorf("Port = %d, want flag value 8888", cfg.Port)
				}
				if cfg.Gain != 2.5 {
					t.Errorf("Gain = %v, want 2.5", cfg.Gain)
				}
			},
		},
		{
			name:       "rejects bad duration",
			fileConfig: FileConfig{UIRate: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)
			if tt.wantErr {
				if err == nil {
					t.Error("ApplyFileConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyFileConfig() unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
port = 7000
read_noise = 10.0
gain = 1.2
debug = true
ui_rate = "2s"
db = "runs.db"
max_samples = 4096
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if !FileExists(path) {
		t.Fatalf("FileExists(%q) = false", path)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error: %v", err)
	}
	if fc.Port != 7000 || fc.ReadNoise != 10 || fc.Gain != 1.2 {
		t.Errorf("got port=%d read_noise=%v gain=%v", fc.Port, fc.ReadNoise, fc.Gain)
	}
	if fc.Debug == nil || !*fc.Debug {
		t.Errorf("Debug = %v, want true", fc.Debug)
	}
	if fc.MaxSamples != 4096 {
		t.Errorf("MaxSamples = %d, want 4096", fc.MaxSamples)
	}
	if fc.UIRate != "2s" || fc.DBPath != "runs.db" {
		t.Errorf("UIRate, DBPath = %q, %q", fc.UIRate, fc.DBPath)
	}

	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadFileConfig() on missing file expected error")
	}
}

func TestApplyEnvConfig(t *testing.T) {
	t.Setenv("QUICKLOOK_PORT", "9100")
	t.Setenv("QUICKLOOK_READ_NOISE", "7.5")
	t.Setenv("QUICKLOOK_DEBUG", "1")
	t.Setenv("QUICKLOOK_ENDPOINT", "tcp://detector:31001")
	t.Setenv("QUICKLOOK_MAX_SAMPLES", "500000")

	cfg := DefaultConfig()
	if err := ApplyEnvConfig(&cfg, map[string]bool{"endpoint": true}); err != nil {
		t.Fatalf("ApplyEnvConfig() error: %v", err)
	}
	if cfg.Port != 9100 || cfg.ReadNoise != 7.5 || !cfg.Debug {
		t.Errorf("got port=%d read_noise=%v debug=%v", cfg.Port, cfg.ReadNoise, cfg.Debug)
	}
	if cfg.MaxSamples != 500000 {
		t.Errorf("MaxSamples = %d, want 500000", cfg.MaxSamples)
	}
	if cfg.Endpoint != DefaultConfig().Endpoint {
		t.Errorf("Endpoint = %q, want flag value kept", cfg.Endpoint)
	}

	t.Setenv("QUICKLOOK_WORKERS", "many")
	if err := ApplyEnvConfig(&cfg, map[string]bool{}); err == nil {
		t.Error("ApplyEnvConfig() expected error for invalid int")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *AppConfig)
		noise  bool
		ok     bool
	}{
		{name: "defaults", modify: func(c *AppConfig) {}, ok: true},
		{name: "zero read noise", modify: func(c *AppConfig) { c.ReadNoise = 0 }, noise: true},
		{name: "negative gain", modify: func(c *AppConfig) { c.Gain = -1 }, noise: true},
		{name: "bad port", modify: func(c *AppConfig) { c.Port = 70000 }},
		{name: "negative workers", modify: func(c *AppConfig) { c.Workers = -2 }},
		{name: "zero threshold", modify: func(c *AppConfig) { c.JumpThreshold = 0 }},
		{name: "unknown log format", modify: func(c *AppConfig) { c.LogFormat = "xml" }},
		{name: "single read simulator", modify: func(c *AppConfig) { c.SimReads = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if tt.noise && !errors.Is(err, noise.ErrInvalidNoiseModel) {
				t.Errorf("Validate() error = %v, want ErrInvalidNoiseModel", err)
			}
		})
	}
}

func TestNoiseModelSaturationDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Saturation = 0
	m, err := cfg.NoiseModel()
	if err != nil {
		t.Fatalf("NoiseModel() error: %v", err)
	}
	if !math.IsInf(m.Saturation(), 1) {
		t.Errorf("Saturation() = %v, want +Inf", m.Saturation())
	}
}

func TestValidateDefaultsMaxSamples(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSamples = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.MaxSamples != processing.DefaultMaxSamples {
		t.Errorf("MaxSamples = %d, want %d", cfg.MaxSamples, processing.DefaultMaxSamples)
	}
}
