package imaging

import (
	"fmt"
	"image"
	"io"

	"github.com/corona10/goimagehash"
)

// PerceptualHash returns the pHash of img in goimagehash string form.
func PerceptualHash(img image.Image) (string, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", err
	}

	return hash.ToString(), nil
}

// HashReader hashes an encoded image. Images larger than maxPixels are not
// decoded and return ErrTooManyPixels.
func HashReader(r io.ReadSeeker, maxPixels int64) (string, error) {
	if err := checkDimensions(r, maxPixels); err != nil {
		return "", err
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return PerceptualHash(img)
}
