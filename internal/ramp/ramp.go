// Package ramp fits up-the-ramp detector reads.
//
// A pixel is read non-destructively several times per exposure. Fitter
// turns the read sequence into a count rate with a generalized
// least-squares estimate over successive read differences, and
// JumpDetector wraps it in an outlier loop that removes cosmic-ray jumps.
// Both are pure functions of one pixel's ramp and a noise.Model.
package ramp

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInsufficientReads is returned by Fit for ramps with fewer than two reads.
	ErrInsufficientReads = errors.New("ramp: insufficient reads")
	// ErrInvalidTimes is returned when read times are not strictly increasing.
	ErrInvalidTimes = errors.New("ramp: read times must be strictly increasing")
	// ErrDegenerate is returned when the weighted solve has no usable weight.
	ErrDegenerate = errors.New("ramp: degenerate fit")
)

// Flags is the per-pixel status bitmask.
type Flags uint8

const (
	Saturated Flags = 1 << iota
	JumpDetected
	InsufficientReads
	LowDOF
	Masked
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{Saturated, "SATURATED"},
	{JumpDetected, "JUMP_DETECTED"},
	{InsufficientReads, "INSUFFICIENT_READS"},
	{LowDOF, "LOW_DOF"},
	{Masked, "MASKED"},
}

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

func (f Flags) String() string {
	if f == 0 {
		return "CLEAN"
	}
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ReadFrame is one non-destructive sample of a pixel.
type ReadFrame struct {
	Index  int
	Time   float64
	Counts float64
}

// Ramp is the time-ordered read sequence of one pixel in one exposure.
type Ramp struct {
	Reads []ReadFrame
}

// NewRamp pairs times and counts into a ramp, numbering reads from zero.
func NewRamp(times, counts []float64) (Ramp, error) {
	if len(times) != len(counts) {
		return Ramp{}, fmt.Errorf("ramp: %d times for %d counts", len(times), len(counts))
	}
	reads := make([]ReadFrame, len(times))
	for i := range times {
		reads[i] = ReadFrame{Index: i, Time: times[i], Counts: counts[i]}
	}
	r := Ramp{Reads: reads}
	if err := r.Validate(); err != nil {
		return Ramp{}, err
	}
	return r, nil
}

// Len returns the number of reads.
func (r Ramp) Len() int { return len(r.Reads) }

// Validate checks that read times strictly increase.
func (r Ramp) Validate() error {
	for i := 1; i < len(r.Reads); i++ {
		if !(r.Reads[i].Time > r.Reads[i-1].Time) {
			return fmt.Errorf("%w: read %d at %v after %v",
				ErrInvalidTimes, r.Reads[i].Index, r.Reads[i].Time, r.Reads[i-1].Time)
		}
	}
	return nil
}

// FitResult is the outcome of fitting one pixel.
type FitResult struct {
	Rate      float64
	Variance  float64
	ChiSquare float64
	Flags     Flags
	// Excluded lists the read indices left out of the fit, ascending.
	Excluded []int
}

// Accepted reports whether the fit needed no exclusions or caveats.
func (r FitResult) Accepted() bool { return r.Flags == 0 }

// Weight returns the inverse variance, zero for unusable pixels.
func (r FitResult) Weight() float64 {
	if r.Variance <= 0 || math.IsInf(r.Variance, 1) {
		return 0
	}
	return 1 / r.Variance
}

// Sentinel is the result reported for a pixel that cannot be fitted.
func Sentinel(flags Flags, excluded []int) FitResult {
	return FitResult{
		Rate:     0,
		Variance: math.Inf(1),
		Flags:    flags,
		Excluded: excluded,
	}
}
