package overlay

import (
	"image"
	"image/color"

	"github.com/teslashibe/go-intake/pkg/segmentation"
)

// ColoredPartMask paints each pixel with its part color. Background pixels
// and parts without a palette entry get bg.
func ColoredPartMask(parts *segmentation.PartMap, palette Palette, bg color.RGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, parts.Width, parts.Height))
	for y := 0; y < parts.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < parts.Width; x++ {
			c, ok := palette.Color(parts.At(x, y))
			if !ok {
				c = bg
			}
			i := x * 4
			row[i], row[i+1], row[i+2], row[i+3] = c.R, c.G, c.B, c.A
		}
	}
	return img
}
