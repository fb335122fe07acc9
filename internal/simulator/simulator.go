// Package simulator produces synthetic up-the-ramp exposures: a Gaussian
// source on a flat background, Poisson-like accumulation, read noise,
// ADC clipping and occasional cosmic-ray jumps.
package simulator

import (
	"context"
	"math"
	"math/rand"
	"time"

	"quicklook-go/internal/output"
	"quicklook-go/internal/types"
)

type Params struct {
	Rows  int
	Cols  int
	Reads int
	// ReadTime is the interval between reads in seconds.
	ReadTime float64
	// Bias is the reset level every read starts from.
	Bias       float64
	PeakRate   float64
	Background float64
	ReadNoise  float64
	Gain       float64
	// Saturation is the ADC ceiling in counts, at most 65535.
	Saturation float64
	// CosmicRate is the chance that a pixel gets one jump per exposure.
	CosmicRate      float64
	CosmicAmplitude float64
	Seed            int64
}

func DefaultParams() Params {
	return Params{
		Rows:            32,
		Cols:            32,
		Reads:           10,
		ReadTime:        1.5,
		Bias:            1000,
		PeakRate:        3000,
		Background:      20,
		ReadNoise:       12,
		Gain:            1,
		Saturation:      65535,
		CosmicRate:      0.01,
		CosmicAmplitude: 2000,
		Seed:            1,
	}
}

// Truth records what the simulator injected.
type Truth struct {
	Rate []float64
	// Jumps maps pixel index to the read at which its jump starts.
	Jumps map[int]int
}

// RateMap returns the noiseless count rate of every pixel.
func RateMap(p Params) []float64 {
	totalPixels := p.Rows * p.Cols
	rates := make([]float64, totalPixels)
	centerX := float64(p.Cols) / 2.0
	centerY := float64(p.Rows) / 2.0
	width := float64(totalPixels) / 20
	for i := 0; i < totalPixels; i++ {
		dx := float64(i%p.Cols) - centerX
		dy := float64(i/p.Cols) - centerY
		distance2 := dx*dx + dy*dy
		rates[i] = p.Background + p.PeakRate*math.Exp(-distance2/width)
	}
	return rates
}

// Generator draws successive exposures from one random stream.
type Generator struct {
	params Params
	rates  []float64
	rng    *rand.Rand
}

func NewGenerator(p Params) *Generator {
	return &Generator{params: p, rates: RateMap(p), rng: rand.New(rand.NewSource(p.Seed))}
}

func (g *Generator) Params() Params { return g.params }

// Times returns the read times of every exposure.
func (g *Generator) Times() []float64 {
	times := make([]float64, g.params.Reads)
	for i := range times {
		times[i] = float64(i) * g.params.ReadTime
	}
	return times
}

// Exposure simulates one exposure and returns it with the injected truth.
func (g *Generator) Exposure(id int) (types.RawExposure, Truth) {
	p := g.params
	totalPixels := p.Rows * p.Cols
	ceiling := math.Min(p.Saturation, math.MaxUint16)
	counts := make([]uint16, p.Reads*totalPixels)
	truth := Truth{Rate: append([]float64(nil), g.rates...), Jumps: map[int]int{}}

	for pixel := 0; pixel < totalPixels; pixel++ {
		jumpAt := -1
		if p.Reads > 1 && g.rng.Float64() < p.CosmicRate {
			jumpAt = 1 + g.rng.Intn(p.Reads-1)
			truth.Jumps[pixel] = jumpAt
		}
		mean := g.rates[pixel] * p.ReadTime
		signal := p.Bias
		for read := 0; read < p.Reads; read++ {
			if read > 0 {
				signal += mean + g.rng.NormFloat64()*math.Sqrt(p.Gain*mean)
			}
			val := signal + g.rng.NormFloat64()*p.ReadNoise
			if jumpAt >= 0 && read >= jumpAt {
				val += p.CosmicAmplitude
			}
			val = math.Max(0, math.Min(ceiling, math.Round(val)))
			counts[read*totalPixels+pixel] = uint16(val)
		}
	}

	return types.RawExposure{
		ExposureID: id,
		Times:      g.Times(),
		Counts:     types.NDArray{Shape: []int{p.Reads, p.Rows, p.Cols}, Values: counts},
		Noise:      &types.NoiseParams{ReadNoise: p.ReadNoise, Gain: p.Gain, Saturation: ceiling},
	}, truth
}

// Stream emits start, read and end messages for consecutive exposures,
// one read every 1/readRate seconds, until ctx is done. Payloads are
// encoded exactly as a detector would send them.
func Stream(ctx context.Context, p Params, readRate float64) <-chan types.RawMessage {
	out := make(chan types.RawMessage)
	go func() {
		defer close(out)

		if readRate <= 0 {
			readRate = 1
		}
		interval := time.Duration(float64(time.Second) / readRate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		gen := NewGenerator(p)
		totalPixels := p.Rows * p.Cols
		send := func(msg types.RawMessage) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- msg:
				return true
			}
		}

		for id := 1; ; id++ {
			exp, _ := gen.Exposure(id)
			start := types.StreamStart{ExposureID: id, Reads: p.Reads, Rows: p.Rows, Cols: p.Cols, Noise: exp.Noise}
			payload, _ := output.EncodeStart(start)
			if !send(types.RawMessage{Type: "start", ExposureID: id, Start: start, Payload: payload}) {
				return
			}

			counts := exp.Counts.Values.([]uint16)
			for read := 0; read < p.Reads; read++ {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				frame := make([]uint16, totalPixels)
				copy(frame, counts[read*totalPixels:(read+1)*totalPixels])
				raw := types.RawRead{
					ExposureID: id,
					ReadIndex:  read,
					Time:       exp.Times[read],
					Data:       types.NDArray{Shape: []int{p.Rows, p.Cols}, Values: frame},
				}
				payload, _ := output.EncodeRead(raw)
				if !send(types.RawMessage{Type: "read", ExposureID: id, Read: raw, Payload: payload}) {
					return
				}
			}

			payload, _ = output.EncodeEnd(id)
			if !send(types.RawMessage{Type: "end", ExposureID: id, Payload: payload}) {
				return
			}
		}
	}()

	return out
}
