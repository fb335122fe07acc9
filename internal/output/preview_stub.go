//go:build !imagick

package output

import (
	"errors"

	"quicklook-go/internal/types"
)

var ErrPreviewUnavailable = errors.New("output: PNG preview requires the imagick build tag")

// WritePreview renders the rate image as a grayscale PNG.
func WritePreview(path string, res types.FrameResult) error {
	return ErrPreviewUnavailable
}
