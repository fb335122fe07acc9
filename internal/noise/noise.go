// Package noise holds the per-detector noise parameters used to weight
// up-the-ramp reads.
package noise

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidNoiseModel is returned when a noise parameter is not strictly
// positive. It is a configuration error: the whole fit call fails.
var ErrInvalidNoiseModel = errors.New("noise: invalid noise model")

// Model describes one detector's read noise, gain and saturation level.
// The zero value is not usable; construct with New.
type Model struct {
	readNoise  float64
	gain       float64
	saturation float64
}

// New validates the parameters and returns a Model. saturation may be
// math.Inf(1) to disable saturation flagging.
func New(readNoise, gain, saturation float64) (Model, error) {
	if math.IsNaN(readNoise) || readNoise <= 0 || math.IsInf(readNoise, 0) {
		return Model{}, fmt.Errorf("%w: read noise must be positive, got %v", ErrInvalidNoiseModel, readNoise)
	}
	if math.IsNaN(gain) || gain <= 0 || math.IsInf(gain, 0) {
		return Model{}, fmt.Errorf("%w: gain must be positive, got %v", ErrInvalidNoiseModel, gain)
	}
	if math.IsNaN(saturation) || saturation <= 0 {
		return Model{}, fmt.Errorf("%w: saturation must be positive, got %v", ErrInvalidNoiseModel, saturation)
	}
	return Model{readNoise: readNoise, gain: gain, saturation: saturation}, nil
}

// ReadNoise returns the per-read noise.
func (m Model) ReadNoise() float64 { return m.readNoise }

// Gain returns the gain.
func (m Model) Gain() float64 { return m.gain }

// Saturation returns the saturation threshold in counts.
func (m Model) Saturation() float64 { return m.saturation }

// ReadVariance is the read-noise contribution to every read.
func (m Model) ReadVariance() float64 {
	return m.readNoise * m.readNoise
}

// PoissonVariance is the shot-noise contribution of counts. Negative counts
// come from noise, not signal, and contribute nothing.
func (m Model) PoissonVariance(counts float64) float64 {
	if counts <= 0 {
		return 0
	}
	return m.gain * counts
}

// VarianceOf returns the variance of a single read holding counts.
func (m Model) VarianceOf(counts float64) float64 {
	return m.ReadVariance() + m.PoissonVariance(counts)
}

// DifferenceVariance is the variance of the difference of two reads that
// accumulated counts between them: the later read's variance plus the
// read noise of the earlier one.
func (m Model) DifferenceVariance(counts float64) float64 {
	return m.VarianceOf(counts) + m.ReadVariance()
}

// Saturated reports whether counts reached the saturation threshold.
func (m Model) Saturated(counts float64) bool {
	return counts >= m.saturation
}

// Valid reports whether m was built by New.
func (m Model) Valid() bool {
	return m.readNoise > 0 && m.gain > 0 && m.saturation > 0
}
