package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quicklook-go/internal/config"
	"quicklook-go/internal/ingest"
	"quicklook-go/internal/output"
	"quicklook-go/internal/processing"
	"quicklook-go/internal/server"
	"quicklook-go/internal/simulator"
	"quicklook-go/internal/types"
)

type metrics struct {
	rawMessages        atomic.Uint64
	startMessages      atomic.Uint64
	startsRejected     atomic.Uint64
	readMessages       atomic.Uint64
	endMessages        atomic.Uint64
	readsRejected      atomic.Uint64
	exposuresDropped   atomic.Uint64
	exposuresFitted    atomic.Uint64
	exposuresFailed    atomic.Uint64
	snapshotsBroadcast atomic.Uint64
	rawLogErrors       atomic.Uint64
	fitNanos           atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"raw_messages_total":        m.rawMessages.Load(),
		"start_messages_total":      m.startMessages.Load(),
		"starts_rejected_total":     m.startsRejected.Load(),
		"read_messages_total":       m.readMessages.Load(),
		"end_messages_total":        m.endMessages.Load(),
		"reads_rejected_total":      m.readsRejected.Load(),
		"exposures_dropped_total":   m.exposuresDropped.Load(),
		"exposures_fitted_total":    m.exposuresFitted.Load(),
		"exposures_failed_total":    m.exposuresFailed.Load(),
		"snapshots_broadcast_total": m.snapshotsBroadcast.Load(),
		"raw_log_errors_total":      m.rawLogErrors.Load(),
		"fit_nanos_total":           m.fitNanos.Load(),
	}
}

// liveStatus is the mutable state reported on /status.
type liveStatus struct {
	mu     sync.Mutex
	fields map[string]any
}

func newLiveStatus(source string) *liveStatus {
	return &liveStatus{fields: map[string]any{
		"source":        source,
		"stream":        "idle",
		"filewriter":    "idle",
		"exposure_id":   0,
		"reads_expect":  0,
		"reads_receive": 0,
		"last_ingest":   "",
		"last_fit":      "",
	}}
}

func (s *liveStatus) set(kv ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i+1 < len(kv); i += 2 {
		s.fields[kv[i].(string)] = kv[i+1]
	}
}

func (s *liveStatus) copy() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Fit exposures from the read stream and serve the status UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg, log := a.cfg, a.log
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := newPipeline(cfg, store, log)
	if err != nil {
		return err
	}

	var recorder *output.RawLogWriter
	if cfg.RawLogEnabled {
		recorder, err = output.NewRawLogWriter(cfg.RawLogDir, "raw_cbor")
		if err != nil {
			return err
		}
		log.Info().Str("path", recorder.Path()).Msg("raw ingest log enabled")
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Warn().Err(err).Msg("raw log close failed")
			}
		}()
	}

	source := "stream"
	if cfg.Debug {
		source = "simulator"
	}
	status := newLiveStatus(source)
	var m metrics
	sampled := log.Sample(&zerolog.BasicSampler{N: uint32(cfg.IngestLogEvery)})

	rawMessages := messageSource(ctx, cfg, recorder, status, log)

	fitJobs := make(chan types.Exposure, 4)
	uiMessages := make(chan any, 16)

	go func() {
		defer close(fitJobs)
		agg := processing.NewAggregator(cfg.MaxSamples)
		for msg := range rawMessages {
			m.rawMessages.Add(1)
			status.set("last_ingest", time.Now().Format(time.RFC3339))
			if cfg.Debug && recorder != nil {
				if err := recorder.Record(msg.Payload); err != nil {
					m.rawLogErrors.Add(1)
				}
			}

			switch msg.Type {
			case ingest.MessageStart:
				m.startMessages.Add(1)
				if agg.Received() > 0 && !agg.Complete() {
					m.exposuresDropped.Add(1)
					log.Warn().
						Int("exposure", agg.Start().ExposureID).
						Int("received", agg.Received()).
						Int("expected", agg.Expected()).
						Msg("exposure superseded before all reads arrived")
				}
				if err := agg.Begin(msg.Start); err != nil {
					m.startsRejected.Add(1)
					log.Warn().Err(err).Int("exposure", msg.ExposureID).Msg("exposure start rejected")
					status.set("stream", "rejected", "exposure_id", msg.ExposureID)
					continue
				}
				status.set("stream", "receiving", "exposure_id", msg.ExposureID,
					"reads_expect", msg.Start.Reads, "reads_receive", 0)
				log.Debug().Interface("start", msg.Start).Msg("exposure started")

			case ingest.MessageRead:
				m.readMessages.Add(1)
				start := agg.Start()
				frame, ok := processing.ProcessRawRead(msg.Read, start.Rows, start.Cols)
				if !ok {
					m.readsRejected.Add(1)
					sampled.Warn().Int("exposure", msg.ExposureID).Int("read", msg.Read.ReadIndex).Msg("read payload rejected")
					continue
				}
				complete, err := agg.AddRead(frame)
				if err != nil {
					m.readsRejected.Add(1)
					sampled.Warn().Err(err).Msg("read rejected")
					continue
				}
				status.set("reads_receive", agg.Received())
				if !complete {
					continue
				}
				exp, err := agg.Exposure()
				agg.Reset()
				if err != nil {
					log.Error().Err(err).Msg("assemble exposure")
					continue
				}
				select {
				case <-ctx.Done():
					return
				case fitJobs <- exp:
				}

			case ingest.MessageEnd:
				m.endMessages.Add(1)
				if agg.Received() > 0 && !agg.Complete() {
					m.exposuresDropped.Add(1)
					log.Warn().
						Int("exposure", msg.ExposureID).
						Int("received", agg.Received()).
						Int("expected", agg.Expected()).
						Msg("exposure ended incomplete")
					agg.Reset()
				}
				status.set("stream", "idle")
			}
		}
	}()

	var snapMu sync.Mutex
	var latest *types.UISnapshot
	dirty := false

	go func() {
		defer close(uiMessages)
		ticker := time.NewTicker(cfg.UIRate)
		defer ticker.Stop()
		flush := func() {
			snapMu.Lock()
			defer snapMu.Unlock()
			if !dirty || latest == nil {
				return
			}
			select {
			case uiMessages <- *latest:
				m.snapshotsBroadcast.Add(1)
				dirty = false
			default:
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case exp, ok := <-fitJobs:
				if !ok {
					flush()
					return
				}
				status.set("filewriter", "writing")
				start := time.Now()
				out, err := p.fit(exp, source, processing.Timestamp())
				m.fitNanos.Add(uint64(time.Since(start).Nanoseconds()))
				if err != nil {
					m.exposuresFailed.Add(1)
					status.set("filewriter", "error")
					log.Error().Err(err).Int("exposure", exp.ID).Msg("exposure fit failed")
					continue
				}
				m.exposuresFitted.Add(1)
				status.set("filewriter", "ok", "last_fit", time.Now().Format(time.RFC3339), "last_output", out.OutputPath)
				snap := processing.Snapshot(out.Result, out.Stats)
				snapMu.Lock()
				latest = &snap
				dirty = true
				snapMu.Unlock()
			case <-ticker.C:
				flush()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Info().
					Uint64("raw", m.rawMessages.Load()).
					Uint64("reads", m.readMessages.Load()).
					Uint64("rejected", m.readsRejected.Load()).
					Uint64("fitted", m.exposuresFitted.Load()).
					Uint64("decode_failures", ingest.DecodeFailures()).
					Msg("ingest stats")
			}
		}
	}()

	hooks := server.Hooks{
		Status: func() map[string]any {
			payload := status.copy()
			metricsPayload := m.snapshot()
			metricsPayload["ingest_decode_failures_total"] = ingest.DecodeFailures()
			decodeCount, decodeNanos := ingest.DecodeTiming()
			metricsPayload["ingest_decode_total"] = decodeCount
			metricsPayload["ingest_decode_nanos_total"] = decodeNanos
			payload["metrics"] = metricsPayload
			return payload
		},
		Snapshot: func() any {
			snapMu.Lock()
			defer snapMu.Unlock()
			if latest == nil {
				return nil
			}
			return *latest
		},
	}

	srv := server.New(cfg, store, hooks, log.With().Str("component", "server").Logger())
	return srv.Run(ctx, uiMessages)
}

// messageSource returns the stream of raw messages: the simulator in
// debug mode, otherwise the ZMQ ingest, restarted when it closes and
// replaced by the simulator when it cannot start and fallback is on.
func messageSource(ctx context.Context, cfg config.AppConfig, recorder *output.RawLogWriter, status *liveStatus, log zerolog.Logger) <-chan types.RawMessage {
	if cfg.Debug {
		return simulator.Stream(ctx, simParams(cfg), cfg.DebugReadRate)
	}

	opts := ingest.StreamOptions{LogEvery: cfg.IngestLogEvery, Logger: log}
	if recorder != nil {
		opts.Recorder = recorder
	}

	out := make(chan types.RawMessage, 128)
	go func() {
		defer close(out)
		for {
			ingestCh, err := ingest.Stream(ctx, cfg.Endpoint, opts)
			if err != nil {
				if !cfg.IngestFallback {
					log.Error().Err(err).Str("endpoint", cfg.Endpoint).Msg("failed to start ingest")
					return
				}
				log.Warn().Err(err).Msg("failed to start ingest; falling back to simulator")
				status.set("source", "simulator")
				ingestCh = simulator.Stream(ctx, simParams(cfg), cfg.DebugReadRate)
			}
			for msg := range ingestCh {
				select {
				case <-ctx.Done():
					return
				case out <- msg:
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				log.Warn().Str("endpoint", cfg.Endpoint).Msg("ingest closed; reconnecting")
			}
		}
	}()
	return out
}
