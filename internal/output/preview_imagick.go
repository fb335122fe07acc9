//go:build imagick

package output

import (
	"errors"
	"fmt"

	"gopkg.in/gographics/imagick.v3/imagick"

	"quicklook-go/internal/types"
)

var ErrPreviewUnavailable = errors.New("output: PNG preview unavailable")

// WritePreview renders the rate image as a grayscale PNG, stretched
// between the 1st and 99th percentile of unflagged rates. Flagged pixels
// are drawn black.
func WritePreview(path string, res types.FrameResult) error {
	if res.Rows < 1 || res.Cols < 1 {
		return fmt.Errorf("preview: empty frame")
	}
	pixels := PreviewPixels(res)

	imagick.Initialize()
	defer imagick.Terminate()

	mw := imagick.NewMagickWand()
	defer mw.Destroy()
	if err := mw.ConstituteImage(uint(res.Cols), uint(res.Rows), "I", imagick.PIXEL_CHAR, pixels); err != nil {
		return fmt.Errorf("preview: constitute: %w", err)
	}
	if err := mw.SetImageFormat("PNG"); err != nil {
		return fmt.Errorf("preview: format: %w", err)
	}
	if err := mw.WriteImage(path); err != nil {
		return fmt.Errorf("preview: write %s: %w", path, err)
	}
	return nil
}
