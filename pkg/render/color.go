// Package render turns decoded grayscale planes into tinted RGB images
// using the per-channel display colors stored in the microscope metadata.
package render

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a channel display color. Components are in [0, 255].
type Color struct {
	// R is the red component
	R uint8
	// G is the green component
	G uint8
	// B is the blue component
	B uint8
	// A is the alpha component as stored in the metadata. Exported images
	// are always opaque; alpha is carried only for reporting.
	A uint8
}

// ParseHexColor decodes a display color of the form "#AARRGGBB". The
// leading '#' is optional and hex digits may be in either case; anything
// else fails with ErrColorFormat.
func ParseHexColor(s string) (Color, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 8 {
		return Color{}, fmt.Errorf("%w: %q is not 8 hex digits", ErrColorFormat, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q is not 8 hex digits", ErrColorFormat, s)
	}
	return Color{
		A: uint8(v >> 24),
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}, nil
}

// Hex formats the color back into the "#AARRGGBB" metadata form.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X%02X", c.A, c.R, c.G, c.B)
}
