package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"quicklook-go/internal/ramp"
	"quicklook-go/internal/types"
)

func WriteTable(outputDir string, runTimestamp string, res types.FrameResult) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	filename := filepath.Join(outputDir, fmt.Sprintf("%s_exposure_%d_rate.txt", runTimestamp, res.ExposureID))
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	w := bufio.NewWriter(f)

	_, _ = fmt.Fprintln(w, "pixel, x, y, rate, variance, chi_square, flags")
	for pixel := range res.Rate {
		x := pixel % res.Cols
		y := pixel / res.Cols
		_, _ = fmt.Fprintf(
			w,
			"%d, %d, %d, %.6f, %.6g, %.4f, %s\n",
			pixel,
			x,
			y,
			res.Rate[pixel],
			res.Variance[pixel],
			res.ChiSquare[pixel],
			ramp.Flags(res.Flags[pixel]),
		)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return "", err
	}
	return filename, f.Close()
}
