package overlay

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/teslashibe/go-intake/pkg/segmentation"
)

// Palette maps part ids to colors. Index i colors segmentation.Part(i).
type Palette []color.RGBA

// Color returns the color for part p, or false for background and parts
// beyond the end of the palette.
func (p Palette) Color(part segmentation.Part) (color.RGBA, bool) {
	if !part.Valid() || int(part) >= len(p) {
		return color.RGBA{}, false
	}
	return p[part], true
}

// RainbowPalette is the BodyPix rainbow, one color per part.
var RainbowPalette = Palette{
	{110, 64, 170, 255},
	{143, 61, 178, 255},
	{178, 60, 178, 255},
	{210, 62, 167, 255},
	{238, 67, 149, 255},
	{255, 78, 125, 255},
	{255, 94, 99, 255},
	{255, 115, 75, 255},
	{255, 140, 56, 255},
	{239, 167, 47, 255},
	{217, 194, 49, 255},
	{194, 219, 64, 255},
	{175, 240, 91, 255},
	{135, 245, 87, 255},
	{96, 247, 96, 255},
	{64, 243, 115, 255},
	{40, 234, 141, 255},
	{28, 219, 169, 255},
	{26, 199, 194, 255},
	{33, 176, 213, 255},
	{47, 150, 224, 255},
	{65, 125, 224, 255},
	{84, 101, 214, 255},
	{99, 81, 195, 255},
}

// HuePalette returns n colors evenly spaced around the HCL hue circle.
func HuePalette(n int) Palette {
	p := make(Palette, n)
	for i := range p {
		c := colorful.Hcl(360*float64(i)/float64(n), 0.6, 0.65).Clamped()
		r, g, b := c.RGB255()
		p[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return p
}

// PaletteByName returns a named palette: "rainbow" or "hue".
func PaletteByName(name string) (Palette, error) {
	switch name {
	case "", "rainbow":
		return RainbowPalette, nil
	case "hue":
		return HuePalette(segmentation.NumParts), nil
	default:
		return nil, fmt.Errorf("overlay: unknown palette %q", name)
	}
}

// ParseColor parses a "#rrggbb" hex string into an opaque color.
func ParseColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("overlay: parse color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
