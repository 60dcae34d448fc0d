package render

import "errors"

// ErrColorFormat is returned when a channel display color string is not an
// eight hex digit alpha-red-green-blue value.
var ErrColorFormat = errors.New("render: invalid display color")
