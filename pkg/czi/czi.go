// Package czi reads Carl Zeiss Image (ZISRAW) containers and decodes the
// subset used by light-microscopy z-stacks: single-scene, single-timepoint
// acquisitions of 8-bit grayscale planes organized by channel and depth.
package czi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"czi2png/internal/models"
)

// Segment ids of the ZISRAW container. Each segment starts with a 32 byte
// header carrying the id as zero padded ASCII.
const (
	sidFile      = "ZISRAWFILE"
	sidMetadata  = "ZISRAWMETADATA"
	sidDirectory = "ZISRAWDIRECTORY"
	sidSubBlock  = "ZISRAWSUBBLOCK"
)

const (
	segmentHeaderSize  = 32
	fileHeaderSize     = 80
	metadataFixedSize  = 256
	directoryFixedSize = 128
	subBlockFixedSize  = 16
	// A sub-block's embedded directory entry region is padded so that the
	// pixel payload never starts before this offset.
	subBlockMinDataOffset = 256
)

// Pixel type codes. Only Gray8 is supported here.
const (
	pixelTypeGray8 = 0
)

// Compression codes. JPEG and JPEG-XR planes are rejected.
const (
	compressionNone  = 0
	compressionJPEG  = 1
	compressionLZW   = 2
	compressionJXR   = 4
	compressionZstd0 = 5
	compressionZstd1 = 6
)

// maxStackVoxels caps the decoded stack size so a corrupt directory cannot
// make us allocate an absurd buffer.
const maxStackVoxels = 1 << 31

// segmentHeader is the fixed 32 byte header preceding every segment.
type segmentHeader struct {
	// ID is the ASCII segment id with trailing zero padding removed
	ID string
	// AllocatedSize is the payload size reserved in the file
	AllocatedSize int64
	// UsedSize is the payload size actually written, zero when unknown
	UsedSize int64
}

// geometry is the shape of the stack derived from the sub-block directory.
type geometry struct {
	channels int
	depth    int
	height   int
	width    int
}

// File is an open ZISRAW container. The segment directory and the channel
// metadata are parsed eagerly; pixel data is read on DecodeStack.
type File struct {
	r    io.ReaderAt
	size int64
	// closer is set when the File owns the underlying reader
	closer io.Closer

	metadataPos  int64
	directoryPos int64
	entries      []directoryEntry
	geom         geometry
	channels     []models.Channel
}

// Open opens the container at path and parses its directory and metadata.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening container: %w", err)
	}
	cf, err := NewFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	cf.closer = f
	return cf, nil
}

// NewFile parses a container from an arbitrary reader. The reader must
// remain valid until Close; NewFile does not take ownership of it.
func NewFile(r io.ReaderAt, size int64) (*File, error) {
	f := &File{r: r, size: size}
	if err := f.readFileHeader(); err != nil {
		return nil, err
	}
	if err := f.readDirectory(); err != nil {
		return nil, err
	}
	if err := f.analyzeGeometry(); err != nil {
		return nil, err
	}
	if err := f.readMetadata(); err != nil {
		return nil, err
	}
	return f, nil
}

// Close releases the underlying reader if the File owns it.
func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// Channels returns the display metadata of each channel in ascending
// channel order. The slice is owned by the File and must not be modified.
func (f *File) Channels() []models.Channel {
	return f.channels
}

// Size returns the stack shape as (channels, depth, height, width).
func (f *File) Size() (channels, depth, height, width int) {
	return f.geom.channels, f.geom.depth, f.geom.height, f.geom.width
}

// DecodeStack reads and decompresses every plane of the container into a
// dense stack ordered by channel, then depth.
func (f *File) DecodeStack() (*models.Stack, error) {
	stack := models.NewStack(f.geom.channels, f.geom.depth, f.geom.height, f.geom.width)
	for i := range f.entries {
		e := &f.entries[i]
		plane, err := f.readSubBlock(e)
		if err != nil {
			return nil, err
		}
		copy(stack.Plane(e.channel, e.slice), plane)
	}
	return stack, nil
}

// readAt reads exactly len(buf) bytes at off, mapping short reads to a
// decode error naming what was being read.
func (f *File) readAt(buf []byte, off int64, what string) error {
	if off < 0 || int64(len(buf)) > f.size-off {
		return fmt.Errorf("%w: %s at offset %d extends past end of file (%d bytes)", ErrDecode, what, off, f.size)
	}
	if n, err := f.r.ReadAt(buf, off); n < len(buf) {
		return fmt.Errorf("%w: reading %s at offset %d: %v", ErrDecode, what, off, err)
	}
	return nil
}

// readSegmentHeader reads and validates the 32 byte segment header at off.
func (f *File) readSegmentHeader(off int64, wantID string) (segmentHeader, error) {
	var buf [segmentHeaderSize]byte
	if err := f.readAt(buf[:], off, "segment header"); err != nil {
		return segmentHeader{}, err
	}
	hdr := segmentHeader{
		ID:            string(bytes.TrimRight(buf[:16], "\x00")),
		AllocatedSize: int64(binary.LittleEndian.Uint64(buf[16:24])),
		UsedSize:      int64(binary.LittleEndian.Uint64(buf[24:32])),
	}
	if hdr.ID != wantID {
		return segmentHeader{}, fmt.Errorf("%w: expected %s segment at offset %d, found %q", ErrDecode, wantID, off, hdr.ID)
	}
	// Compared by subtraction, which cannot wrap: the header read above
	// proved off >= 0 and off+32 <= f.size. The additive form would
	// overflow for sizes near MaxInt64 and let the check pass.
	if hdr.AllocatedSize < 0 || hdr.AllocatedSize > f.size-segmentHeaderSize-off {
		return segmentHeader{}, fmt.Errorf("%w: %s segment at offset %d claims %d payload bytes past end of file", ErrDecode, hdr.ID, off, hdr.AllocatedSize)
	}
	return hdr, nil
}

// readFileHeader parses the ZISRAWFILE segment at offset zero and records
// the metadata and directory segment positions.
func (f *File) readFileHeader() error {
	hdr, err := f.readSegmentHeader(0, sidFile)
	if err != nil {
		return err
	}
	if hdr.AllocatedSize < fileHeaderSize {
		return fmt.Errorf("%w: file header payload is %d bytes, need %d", ErrDecode, hdr.AllocatedSize, fileHeaderSize)
	}
	var buf [fileHeaderSize]byte
	if err := f.readAt(buf[:], segmentHeaderSize, "file header"); err != nil {
		return err
	}
	major := int32(binary.LittleEndian.Uint32(buf[0:4]))
	if major != 1 {
		return fmt.Errorf("%w: unsupported container version %d", ErrDecode, major)
	}
	f.directoryPos = int64(binary.LittleEndian.Uint64(buf[52:60]))
	f.metadataPos = int64(binary.LittleEndian.Uint64(buf[60:68]))
	if f.directoryPos <= 0 {
		return fmt.Errorf("%w: container has no sub-block directory", ErrDecode)
	}
	if f.metadataPos <= 0 {
		return fmt.Errorf("%w: container has no metadata segment", ErrMetadata)
	}
	return nil
}

// readDirectory parses the ZISRAWDIRECTORY segment into directory entries.
func (f *File) readDirectory() error {
	hdr, err := f.readSegmentHeader(f.directoryPos, sidDirectory)
	if err != nil {
		return err
	}
	if hdr.AllocatedSize < directoryFixedSize {
		return fmt.Errorf("%w: directory payload is %d bytes, need at least %d", ErrDecode, hdr.AllocatedSize, directoryFixedSize)
	}
	payload := make([]byte, hdr.AllocatedSize)
	if err := f.readAt(payload, f.directoryPos+segmentHeaderSize, "sub-block directory"); err != nil {
		return err
	}
	count := int32(binary.LittleEndian.Uint32(payload[0:4]))
	if count < 0 || int64(count) > hdr.AllocatedSize/directoryEntryFixedSize {
		return fmt.Errorf("%w: directory claims %d entries in %d bytes", ErrDecode, count, hdr.AllocatedSize)
	}
	f.entries = make([]directoryEntry, 0, count)
	off := directoryFixedSize
	for i := int32(0); i < count; i++ {
		entry, n, err := parseDirectoryEntry(payload[off:])
		if err != nil {
			return fmt.Errorf("directory entry %d: %w", i, err)
		}
		f.entries = append(f.entries, entry)
		off += n
	}
	return nil
}

// analyzeGeometry derives the stack shape from the directory entries and
// enforces the supported subset: full-frame Gray8 planes addressed only by
// channel and depth, with every (channel, slice) pair present exactly once.
func (f *File) analyzeGeometry() error {
	if len(f.entries) == 0 {
		return fmt.Errorf("%w: container has no sub-blocks", ErrDecode)
	}
	seen := make(map[[2]int]bool, len(f.entries))
	maxC, maxZ := 0, 0
	for i := range f.entries {
		e := &f.entries[i]
		if err := e.checkSupported(); err != nil {
			return err
		}
		if i == 0 {
			f.geom.width = e.width
			f.geom.height = e.height
		} else if e.width != f.geom.width || e.height != f.geom.height {
			return fmt.Errorf("%w: sub-block %dx%d does not match stack frame %dx%d",
				ErrDecode, e.width, e.height, f.geom.width, f.geom.height)
		}
		key := [2]int{e.channel, e.slice}
		if seen[key] {
			return fmt.Errorf("%w: duplicate sub-block for channel %d slice %d", ErrDecode, e.channel, e.slice)
		}
		seen[key] = true
		if e.channel > maxC {
			maxC = e.channel
		}
		if e.slice > maxZ {
			maxZ = e.slice
		}
	}
	f.geom.channels = maxC + 1
	f.geom.depth = maxZ + 1
	if len(f.entries) != f.geom.channels*f.geom.depth {
		return fmt.Errorf("%w: %d sub-blocks do not cover %d channels x %d slices",
			ErrDecode, len(f.entries), f.geom.channels, f.geom.depth)
	}
	voxels := int64(f.geom.channels) * int64(f.geom.depth) * int64(f.geom.height) * int64(f.geom.width)
	if voxels > maxStackVoxels {
		return fmt.Errorf("%w: stack of %d voxels is too large to decode", ErrDecode, voxels)
	}
	return nil
}
