package imaging

import (
	"errors"
	"fmt"
	"image"
	"io"
)

// DefaultMaxPixels bounds the decoded size of an image, about 40 megapixels.
const DefaultMaxPixels = 40_000_000

var ErrTooManyPixels = errors.New("image dimensions exceed pixel limit")

// checkDimensions reads only the image header and rewinds r. Decoding a
// header that declares huge dimensions would allocate the full canvas.
func checkDimensions(r io.ReadSeeker, maxPixels int64) error {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind image: %w", err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	return nil
}
