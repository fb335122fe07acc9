package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quicklook-go/internal/config"
	"quicklook-go/internal/ingest"
	"quicklook-go/internal/noise"
	"quicklook-go/internal/output"
	"quicklook-go/internal/processing"
	"quicklook-go/internal/storage"
	"quicklook-go/internal/types"
)

func newFitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fit <exposure.cbor>...",
		Short: "Fit exposure files and write rate, variance and flag images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := newPipeline(a.cfg, store, a.log)
			if err != nil {
				return err
			}
			var failed int
			for _, path := range args {
				if _, err := p.fitFile(path, "fit"); err != nil {
					a.log.Error().Err(err).Str("path", path).Msg("fit failed")
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d exposures failed", failed, len(args))
			}
			return nil
		},
	}
}

// pipeline fits exposures and persists what it produced: result CBOR, the
// text table, an optional preview and a run history row.
type pipeline struct {
	cfg   config.AppConfig
	model noise.Model
	store *storage.Store
	log   zerolog.Logger
}

// fitOutcome is what one fitted exposure produced.
type fitOutcome struct {
	Result     types.FrameResult
	Stats      types.FitStats
	OutputPath string
	RunID      int64
}

func newPipeline(cfg config.AppConfig, store *storage.Store, logger zerolog.Logger) (*pipeline, error) {
	model, err := cfg.NoiseModel()
	if err != nil {
		return nil, err
	}
	return &pipeline{cfg: cfg, model: model, store: store, log: logger}, nil
}

func (p *pipeline) fitFile(path, source string) (fitOutcome, error) {
	raw, err := ingest.ReadExposureFile(path)
	if err != nil {
		p.recordFailure(source, types.Exposure{}, err)
		return fitOutcome{}, err
	}
	exp, err := processing.BuildExposure(raw)
	if err != nil {
		p.recordFailure(source, types.Exposure{ID: raw.ExposureID}, err)
		return fitOutcome{}, err
	}
	return p.fit(exp, source, processing.Timestamp())
}

func (p *pipeline) fit(exp types.Exposure, source, runTimestamp string) (fitOutcome, error) {
	logger := p.log.With().Str("source", source).Int("exposure", exp.ID).Logger()

	model, err := processing.ResolveModel(exp.Noise, p.model)
	if err != nil {
		p.recordFailure(source, exp, err)
		return fitOutcome{}, err
	}
	dispatcher, err := processing.NewDispatcher(model,
		processing.WithWorkers(p.cfg.Workers),
		processing.WithBlockSize(p.cfg.BlockSize),
		processing.WithJumpThreshold(p.cfg.JumpThreshold),
		processing.WithDiagnostics(p.cfg.Diagnostics),
		processing.WithLogger(logger),
	)
	if err != nil {
		p.recordFailure(source, exp, err)
		return fitOutcome{}, err
	}

	start := time.Now()
	res, err := dispatcher.FitExposure(exp)
	elapsed := time.Since(start)
	if err != nil {
		p.recordFailure(source, exp, err)
		return fitOutcome{}, err
	}
	stats := processing.Summarize(res)
	stats.DurationMs = float64(elapsed.Microseconds()) / 1000

	out := fitOutcome{Result: res, Stats: stats}
	if out.OutputPath, err = output.WriteResult(p.cfg.OutputDir, runTimestamp, res); err != nil {
		p.recordFailure(source, exp, err)
		return fitOutcome{}, fmt.Errorf("write result: %w", err)
	}
	if _, err := output.WriteTable(p.cfg.OutputDir, runTimestamp, res); err != nil {
		logger.Warn().Err(err).Msg("rate table write failed")
	}
	if p.cfg.Preview {
		previewPath := strings.TrimSuffix(out.OutputPath, ".cbor") + ".png"
		if err := output.WritePreview(previewPath, res); err != nil {
			if errors.Is(err, output.ErrPreviewUnavailable) {
				logger.Debug().Err(err).Msg("preview skipped")
			} else {
				logger.Warn().Err(err).Msg("preview write failed")
			}
		}
	}

	rec := runRecord(source, exp, dispatcher.Workers())
	rec.Pixels = stats.Pixels
	rec.Clean = stats.Clean
	rec.Saturated = stats.Saturated
	rec.Jumps = stats.Jumps
	rec.Insufficient = stats.Insufficient
	rec.LowDOF = stats.LowDOF
	rec.Masked = stats.Masked
	rec.MeanRate = stats.MeanRate
	rec.Duration = elapsed
	rec.OutputPath = out.OutputPath
	if out.RunID, err = p.store.RecordRun(rec); err != nil {
		logger.Warn().Err(err).Msg("run history write failed")
	}

	logger.Info().
		Int("pixels", stats.Pixels).
		Int("clean", stats.Clean).
		Int("jumps", stats.Jumps).
		Int("saturated", stats.Saturated).
		Float64("mean_rate", stats.MeanRate).
		Float64("weighted_rate", stats.WeightedRate).
		Dur("elapsed", elapsed).
		Str("output", out.OutputPath).
		Msg("exposure fitted")
	return out, nil
}

func (p *pipeline) recordFailure(source string, exp types.Exposure, cause error) {
	rec := runRecord(source, exp, p.cfg.Workers)
	rec.Status = storage.StatusError
	rec.Error = cause.Error()
	if _, err := p.store.RecordRun(rec); err != nil {
		p.log.Warn().Err(err).Msg("run history write failed")
	}
}

func runRecord(source string, exp types.Exposure, workers int) storage.RunRecord {
	return storage.RunRecord{
		Source:     source,
		ExposureID: exp.ID,
		Reads:      exp.Cube.Reads,
		Rows:       exp.Cube.Rows,
		Cols:       exp.Cube.Cols,
		Workers:    workers,
		Status:     storage.StatusOK,
	}
}
