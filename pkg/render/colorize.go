package render

import (
	"fmt"
	"image"
	"math"
)

// Normalize converts raw 8-bit samples to a float plane scaled into [0, 1].
func Normalize(plane []uint8) []float64 {
	out := make([]float64, len(plane))
	for i, v := range plane {
		out[i] = float64(v) / 255
	}
	return out
}

// Colorize maps a normalized grayscale plane onto an opaque RGB image by
// scaling each color component with the pixel intensity. Components are
// rounded half away from zero and clamped to [0, 255]; the alpha component
// of col is ignored and every output pixel is fully opaque.
func Colorize(gray []float64, width, height int, col Color) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(gray) != width*height {
		return nil, fmt.Errorf("plane has %d samples, want %d for %dx%d", len(gray), width*height, width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := gray[y*width+x]
			off := img.PixOffset(x, y)
			img.Pix[off+0] = scaleComponent(v, col.R)
			img.Pix[off+1] = scaleComponent(v, col.G)
			img.Pix[off+2] = scaleComponent(v, col.B)
			img.Pix[off+3] = 0xFF
		}
	}
	return img, nil
}

// scaleComponent scales one color component by a normalized intensity.
func scaleComponent(v float64, c uint8) uint8 {
	scaled := math.Round(v * float64(c))
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 255 {
		scaled = 255
	}
	return uint8(scaled)
}
