package imaging

import (
	"image"
	"math"
)

// applyCircleMask composites a centered circular mask onto img with
// destination-in semantics: pixels keep their color where the mask is opaque
// and become transparent outside it. The one pixel wide rim is anti-aliased.
func applyCircleMask(img *image.RGBA) {
	b := img.Bounds()
	cx := float64(b.Dx()) / 2
	cy := float64(b.Dy()) / 2
	radius := math.Min(cx, cy)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		py := float64(y-b.Min.Y) + 0.5 - cy
		for x := b.Min.X; x < b.Max.X; x++ {
			px := float64(x-b.Min.X) + 0.5 - cx
			coverage := radius - math.Hypot(px, py) + 0.5
			if coverage >= 1 {
				continue
			}

			off := img.PixOffset(x, y)
			if coverage <= 0 {
				img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = 0, 0, 0, 0
				continue
			}

			// RGBA is premultiplied, so all four channels scale together.
			for i := 0; i < 4; i++ {
				img.Pix[off+i] = uint8(float64(img.Pix[off+i])*coverage + 0.5)
			}
		}
	}
}
