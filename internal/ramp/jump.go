package ramp

import (
	"math"
	"sort"

	"quicklook-go/internal/noise"
)

// DefaultJumpThreshold is the studentized residual above which a read
// difference is treated as a cosmic-ray jump.
const DefaultJumpThreshold = 5.0

// JumpDetector fits a ramp while rejecting saturated reads and jumps.
//
// Saturated and non-finite reads are removed before fitting; the
// differences bridge across them. After each fit the difference with the
// largest studentized residual is compared to Threshold. If it exceeds
// it, the later read of that difference is recorded as a jump and the
// ramp is split there: the jump read begins a new segment, so only the
// discontinuous difference is dropped. Rounds stop when no residual
// exceeds the threshold or after reads−2 rejections.
type JumpDetector struct {
	Fitter    Fitter
	Threshold float64
}

// NewJumpDetector returns a detector using the default fitter.
func NewJumpDetector(threshold float64) JumpDetector {
	return JumpDetector{Fitter: NewFitter(), Threshold: threshold}
}

// FitWithRejection fits r with the default fitter and jump rejection.
func FitWithRejection(r Ramp, model noise.Model, threshold float64) FitResult {
	return NewJumpDetector(threshold).Fit(r, model)
}

// Fit never fails: pixels that cannot be fitted get the sentinel result
// flagged INSUFFICIENT_READS.
func (j JumpDetector) Fit(r Ramp, model noise.Model) FitResult {
	threshold := j.Threshold
	if !(threshold > 0) {
		threshold = DefaultJumpThreshold
	}
	if err := r.Validate(); err != nil {
		return Sentinel(InsufficientReads, nil)
	}

	n := r.Len()
	dropped := make([]bool, n)
	splits := make([]bool, n)
	var flags Flags
	var excluded []int

	for i, rd := range r.Reads {
		switch {
		case math.IsNaN(rd.Counts) || math.IsInf(rd.Counts, 0):
			dropped[i] = true
			excluded = append(excluded, rd.Index)
		case model.Saturated(rd.Counts):
			dropped[i] = true
			flags |= Saturated
			excluded = append(excluded, rd.Index)
		}
	}

	maxRounds := n - 2
	limit := threshold * threshold
	for round := 0; ; round++ {
		diffs := differences(segments(r, dropped, splits))
		if len(diffs) == 0 {
			return Sentinel(flags|InsufficientReads, sorted(excluded))
		}
		sol, err := j.Fitter.solve(diffs, model)
		if err != nil {
			return Sentinel(flags|InsufficientReads, sorted(excluded))
		}

		worst, worstScore := -1, limit
		for k, d := range diffs {
			resid := d.delta - sol.rate*d.dt
			if score := resid * resid / model.DifferenceVariance(sol.rate*d.dt); score > worstScore {
				worst, worstScore = k, score
			}
		}
		if worst < 0 || round >= maxRounds {
			res := sol.result()
			res.Flags |= flags
			res.Excluded = sorted(excluded)
			return res
		}

		jump := diffs[worst].index
		for i, rd := range r.Reads {
			if rd.Index == jump {
				splits[i] = true
				break
			}
		}
		flags |= JumpDetected
		excluded = append(excluded, jump)
	}
}

// segments groups the surviving reads into runs that break only at split
// reads. Dropped reads are bridged over.
func segments(r Ramp, dropped, splits []bool) []Ramp {
	var out []Ramp
	var cur []ReadFrame
	for i, rd := range r.Reads {
		if dropped[i] {
			continue
		}
		if splits[i] && len(cur) > 0 {
			out = append(out, Ramp{Reads: cur})
			cur = nil
		}
		cur = append(cur, rd)
	}
	if len(cur) > 0 {
		out = append(out, Ramp{Reads: cur})
	}
	return out
}

func sorted(idx []int) []int {
	if len(idx) == 0 {
		return nil
	}
	out := append([]int(nil), idx...)
	sort.Ints(out)
	return out
}
