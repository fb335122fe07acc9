package processing

import (
	"math"

	"quicklook-go/internal/ramp"
	"quicklook-go/internal/types"
)

// Summarize counts flags and averages the rate of fitted pixels, both
// plainly and weighted by inverse variance.
func Summarize(res types.FrameResult) types.FitStats {
	stats := types.FitStats{Pixels: len(res.Flags)}
	var sum, weighted, weights float64
	var fitted int
	for i := range res.Flags {
		fit := pixelFit(res, i)
		if fit.Accepted() {
			stats.Clean++
		}
		if fit.Flags.Has(ramp.Saturated) {
			stats.Saturated++
		}
		if fit.Flags.Has(ramp.JumpDetected) {
			stats.Jumps++
		}
		if fit.Flags.Has(ramp.InsufficientReads) {
			stats.Insufficient++
		}
		if fit.Flags.Has(ramp.LowDOF) {
			stats.LowDOF++
		}
		if fit.Flags.Has(ramp.Masked) {
			stats.Masked++
		}
		if fit.Flags.Has(ramp.Masked) || fit.Flags.Has(ramp.InsufficientReads) {
			continue
		}
		sum += fit.Rate
		fitted++
		if w := fit.Weight(); w > 0 {
			weighted += w * fit.Rate
			weights += w
		}
	}
	if fitted > 0 {
		stats.MeanRate = sum / float64(fitted)
	}
	if weights > 0 {
		stats.WeightedRate = weighted / weights
	}
	return stats
}

// pixelFit reassembles pixel i of res. A missing variance image reads as
// unknown variance.
func pixelFit(res types.FrameResult, i int) ramp.FitResult {
	fit := ramp.FitResult{Rate: res.Rate[i], Variance: math.Inf(1), Flags: ramp.Flags(res.Flags[i])}
	if i < len(res.Variance) {
		fit.Variance = res.Variance[i]
	}
	return fit
}

// Snapshot builds the UI payload for a fitted frame.
func Snapshot(res types.FrameResult, stats types.FitStats) types.UISnapshot {
	rate := make([]float64, len(res.Rate))
	copy(rate, res.Rate)
	flags := make([]int, len(res.Flags))
	for i, f := range res.Flags {
		flags[i] = int(f)
	}
	return types.UISnapshot{
		Type:       "snapshot",
		ExposureID: res.ExposureID,
		Rows:       res.Rows,
		Cols:       res.Cols,
		Rate:       rate,
		Flags:      flags,
		Stats:      stats,
	}
}
