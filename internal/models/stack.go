package models

// Stack represents a decoded multi-channel z-stack of 8-bit grayscale planes.
type Stack struct {
	// Pix is the voxel data as a 1D array in (channel, depth, row, column)
	// row-major order
	Pix []uint8

	// Channels is the number of acquisition channels in the stack
	Channels int

	// Depth is the number of z-slices per channel
	Depth int

	// Height and Width are the plane dimensions in pixels, shared by
	// every channel and every slice
	Height int
	Width  int
}

// NewStack allocates a zeroed stack with the given axis lengths.
func NewStack(channels, depth, height, width int) *Stack {
	return &Stack{
		Pix:      make([]uint8, channels*depth*height*width),
		Channels: channels,
		Depth:    depth,
		Height:   height,
		Width:    width,
	}
}

// Plane returns the Height*Width sub-slice holding the plane at channel c,
// depth z. The returned slice aliases the stack's backing array; callers
// treat it as read-only once decoding has finished.
func (s *Stack) Plane(c, z int) []uint8 {
	n := s.Height * s.Width
	off := (c*s.Depth + z) * n
	return s.Pix[off : off+n]
}

// ChannelPlanes returns the depth-ordered list of plane views for channel c.
func (s *Stack) ChannelPlanes(c int) [][]uint8 {
	planes := make([][]uint8, s.Depth)
	for z := 0; z < s.Depth; z++ {
		planes[z] = s.Plane(c, z)
	}
	return planes
}

// ChannelVoxels returns the contiguous voxel data for channel c across all
// depths, in (depth, row, column) order.
func (s *Stack) ChannelVoxels(c int) []uint8 {
	n := s.Depth * s.Height * s.Width
	return s.Pix[c*n : (c+1)*n]
}

// Channel holds the display metadata embedded in the container for one
// acquisition channel.
type Channel struct {
	// Index is the position of this channel along the stack's channel axis
	Index int

	// Name is the human-readable channel name as recorded by the
	// acquisition software; may be empty
	Name string

	// Color is the raw display color string (#AARRGGBB) assigned to the
	// channel for pseudo-color visualization
	Color string
}
