package output

import (
	"math"
	"sort"

	"quicklook-go/internal/ramp"
	"quicklook-go/internal/types"
)

// PreviewPixels maps the rate image to 8-bit gray levels, stretched
// between the 1st and 99th percentile of pixels that were fitted without
// INSUFFICIENT_READS or MASKED. Those pixels are 0.
func PreviewPixels(res types.FrameResult) []byte {
	out := make([]byte, len(res.Rate))
	usable := func(i int) bool {
		f := ramp.Flags(res.Flags[i])
		return !f.Has(ramp.InsufficientReads) && !f.Has(ramp.Masked) && !math.IsNaN(res.Rate[i])
	}

	values := make([]float64, 0, len(res.Rate))
	for i, v := range res.Rate {
		if usable(i) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return out
	}
	sort.Float64s(values)
	clip := (len(values) - 1) / 100
	lo := values[clip]
	hi := values[len(values)-1-clip]
	span := hi - lo

	for i, v := range res.Rate {
		if !usable(i) {
			continue
		}
		level := 255.0
		if span > 0 {
			level = math.Round(255 * (v - lo) / span)
		}
		out[i] = byte(math.Max(1, math.Min(255, level)))
	}
	return out
}
