package czi

import "errors"

var (
	// ErrDecode is returned when the input cannot be parsed as a ZISRAW
	// container, or uses a feature outside the supported subset
	// (non-Gray8 pixels, unknown compression, mosaic or pyramid planes).
	ErrDecode = errors.New("czi: cannot decode container")

	// ErrMetadata is returned when the embedded channel metadata is
	// missing, unparseable, or inconsistent with the pixel data.
	ErrMetadata = errors.New("czi: invalid channel metadata")
)
