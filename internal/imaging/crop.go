package imaging

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/kdimtricp/photobooth/internal/models"
)

const (
	// PaddingFactor widens the square crop around the face box.
	PaddingFactor = 1.2
	// CanonicalSize is the side of every processed capture, in pixels.
	CanonicalSize = 400
)

var (
	ErrInvalidFaceData       = models.ErrInvalidFaceData
	ErrInvalidCropDimensions = errors.New("invalid crop dimensions")
)

// ComputeCrop returns the square region of an image with the given bounds that
// holds the padded face box. The region is always inside bounds.
func ComputeCrop(bounds image.Rectangle, face models.FaceData) (image.Rectangle, error) {
	if err := face.Validate(); err != nil {
		return image.Rectangle{}, fmt.Errorf("%w: width=%v height=%v", err, face.Width, face.Height)
	}

	width := float64(bounds.Dx())
	height := float64(bounds.Dy())

	cropSize := math.Max(face.Width, face.Height) * PaddingFactor
	centerX := face.X + face.Width/2
	centerY := face.Y + face.Height/2

	cropX := math.Max(0, centerX-cropSize/2)
	cropY := math.Max(0, centerY-cropSize/2)
	finalSize := math.Min(cropSize, math.Min(width-cropX, height-cropY))

	if !(finalSize > 0) {
		return image.Rectangle{}, fmt.Errorf("%w: size=%v", ErrInvalidCropDimensions, finalSize)
	}

	left := int(math.Round(cropX))
	top := int(math.Round(cropY))
	size := int(math.Round(finalSize))

	// rounding may push the far edge one pixel past the image
	size = min(size, bounds.Dx()-left, bounds.Dy()-top)
	if size <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: size=%d at %d,%d", ErrInvalidCropDimensions, size, left, top)
	}

	return image.Rect(left, top, left+size, top+size).Add(bounds.Min), nil
}
