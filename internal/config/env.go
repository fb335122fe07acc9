package config

import (
	"fmt"
	"os"
	"strconv"
)

// ApplyEnvConfig applies QUICKLOOK_* environment variables, skipping flags
// in changed. Malformed numbers are errors.
func ApplyEnvConfig(cfg *AppConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("endpoint", os.Getenv("QUICKLOOK_ENDPOINT"), &cfg.Endpoint)
	s.setString("output-dir", os.Getenv("QUICKLOOK_OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("raw-log-dir", os.Getenv("QUICKLOOK_RAW_LOG_DIR"), &cfg.RawLogDir)
	s.setString("db", os.Getenv("QUICKLOOK_DB"), &cfg.DBPath)
	s.setString("log-level", os.Getenv("QUICKLOOK_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("QUICKLOOK_LOG_FORMAT"), &cfg.LogFormat)

	ints := []struct {
		flag, env string
		dst       *int
	}{
		{"port", "QUICKLOOK_PORT", &cfg.Port},
		{"workers", "QUICKLOOK_WORKERS", &cfg.Workers},
		{"block-size", "QUICKLOOK_BLOCK_SIZE", &cfg.BlockSize},
		{"ingest-log-every", "QUICKLOOK_INGEST_LOG_EVERY", &cfg.IngestLogEvery},
		{"max-samples", "QUICKLOOK_MAX_SAMPLES", &cfg.MaxSamples},
	}
	for _, v := range ints {
		if err := s.setIntFromString(v.flag, os.Getenv(v.env), v.dst); err != nil {
			return err
		}
	}

	floats := []struct {
		flag, env string
		dst       *float64
	}{
		{"read-noise", "QUICKLOOK_READ_NOISE", &cfg.ReadNoise},
		{"gain", "QUICKLOOK_GAIN", &cfg.Gain},
		{"saturation", "QUICKLOOK_SATURATION", &cfg.Saturation},
		{"jump-threshold", "QUICKLOOK_JUMP_THRESHOLD", &cfg.JumpThreshold},
	}
	for _, v := range floats {
		if err := s.setFloatFromString(v.flag, os.Getenv(v.env), v.dst); err != nil {
			return err
		}
	}

	if err := s.setDuration("ui-rate", os.Getenv("QUICKLOOK_UI_RATE"), &cfg.UIRate); err != nil {
		return err
	}

	s.setBoolFromString("debug", os.Getenv("QUICKLOOK_DEBUG"), &cfg.Debug)
	s.setBoolFromString("diagnostics", os.Getenv("QUICKLOOK_DIAGNOSTICS"), &cfg.Diagnostics)
	s.setBoolFromString("raw-log", os.Getenv("QUICKLOOK_RAW_LOG"), &cfg.RawLogEnabled)
	return nil
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString treats "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
