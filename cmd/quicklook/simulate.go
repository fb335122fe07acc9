package main

import (
	"math"

	"github.com/spf13/cobra"

	"quicklook-go/internal/config"
	"quicklook-go/internal/output"
	"quicklook-go/internal/simulator"
)

func newSimulateCmd(a *app) *cobra.Command {
	var (
		seed            int64
		exposureID      int
		peakRate        float64
		cosmicRate      float64
		cosmicAmplitude float64
	)
	defaults := simulator.DefaultParams()

	cmd := &cobra.Command{
		Use:   "simulate <out.cbor>",
		Short: "Write a synthetic exposure with known rates and cosmic-ray jumps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := simParams(a.cfg)
			p.Seed = seed
			p.PeakRate = peakRate
			p.CosmicRate = cosmicRate
			p.CosmicAmplitude = cosmicAmplitude

			raw, truth := simulator.NewGenerator(p).Exposure(exposureID)
			if err := output.WriteExposure(args[0], raw); err != nil {
				return err
			}
			a.log.Info().
				Str("path", args[0]).
				Int("exposure", exposureID).
				Ints("shape", raw.Counts.Shape).
				Int("jumps", len(truth.Jumps)).
				Int64("seed", seed).
				Msg("exposure simulated")
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", defaults.Seed, "Random seed")
	cmd.Flags().IntVar(&exposureID, "exposure-id", 1, "Exposure id written to the file")
	cmd.Flags().Float64Var(&peakRate, "peak-rate", defaults.PeakRate, "Peak source rate in counts per second")
	cmd.Flags().Float64Var(&cosmicRate, "cosmic-rate", defaults.CosmicRate, "Chance of a jump per pixel and exposure")
	cmd.Flags().Float64Var(&cosmicAmplitude, "cosmic-amplitude", defaults.CosmicAmplitude, "Jump height in counts")
	return cmd
}

// simParams derives simulator settings from the detector configuration.
func simParams(cfg config.AppConfig) simulator.Params {
	p := simulator.DefaultParams()
	p.Rows = cfg.SimRows
	p.Cols = cfg.SimCols
	p.Reads = cfg.SimReads
	p.ReadTime = cfg.SimReadTime
	p.ReadNoise = cfg.ReadNoise
	p.Gain = cfg.Gain
	if cfg.Saturation > 0 {
		p.Saturation = math.Min(cfg.Saturation, math.MaxUint16)
	}
	return p
}
