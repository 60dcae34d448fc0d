package czi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	directoryEntryFixedSize = 32
	dimensionEntrySize      = 20
)

// dimensionEntry is one axis record of a sub-block directory entry.
type dimensionEntry struct {
	name       string
	start      int32
	size       int32
	storedSize int32
}

// directoryEntry describes one stored plane: where it lives in the file,
// how it is compressed, and which axis coordinates it covers.
type directoryEntry struct {
	pixelType    int32
	filePosition int64
	filePart     int32
	compression  int32
	pyramidType  byte
	dims         []dimensionEntry

	// derived by checkSupported
	channel int
	slice   int
	width   int
	height  int
}

// parseDirectoryEntry decodes a DV schema directory entry from the start of
// b, returning the entry and the number of bytes it occupied.
func parseDirectoryEntry(b []byte) (directoryEntry, int, error) {
	if len(b) < directoryEntryFixedSize {
		return directoryEntry{}, 0, fmt.Errorf("%w: truncated directory entry", ErrDecode)
	}
	if schema := string(b[0:2]); schema != "DV" {
		return directoryEntry{}, 0, fmt.Errorf("%w: unsupported directory entry schema %q", ErrDecode, schema)
	}
	e := directoryEntry{
		pixelType:    int32(binary.LittleEndian.Uint32(b[2:6])),
		filePosition: int64(binary.LittleEndian.Uint64(b[6:14])),
		filePart:     int32(binary.LittleEndian.Uint32(b[14:18])),
		compression:  int32(binary.LittleEndian.Uint32(b[18:22])),
		pyramidType:  b[22],
	}
	dimCount := int32(binary.LittleEndian.Uint32(b[28:32]))
	if dimCount < 0 || dimCount > 64 {
		return directoryEntry{}, 0, fmt.Errorf("%w: directory entry claims %d dimensions", ErrDecode, dimCount)
	}
	n := directoryEntryFixedSize + int(dimCount)*dimensionEntrySize
	if len(b) < n {
		return directoryEntry{}, 0, fmt.Errorf("%w: truncated directory entry dimensions", ErrDecode)
	}
	e.dims = make([]dimensionEntry, dimCount)
	for i := range e.dims {
		// Bytes 12:16 hold a float32 stage coordinate, skipped here.
		d := b[directoryEntryFixedSize+i*dimensionEntrySize:]
		e.dims[i] = dimensionEntry{
			name:       string(bytes.TrimRight(d[0:4], "\x00")),
			start:      int32(binary.LittleEndian.Uint32(d[4:8])),
			size:       int32(binary.LittleEndian.Uint32(d[8:12])),
			storedSize: int32(binary.LittleEndian.Uint32(d[16:20])),
		}
	}
	return e, n, nil
}

// checkSupported enforces the supported plane subset and derives the
// entry's frame size and (channel, slice) coordinates. Axes are matched by
// name: X and Y must cover a full frame, C and Z address the plane, M marks
// mosaic tiling, and every other axis must be singleton.
func (e *directoryEntry) checkSupported() error {
	if e.pixelType != pixelTypeGray8 {
		return fmt.Errorf("%w: unsupported pixel type %d, only 8-bit grayscale planes are supported", ErrDecode, e.pixelType)
	}
	switch e.compression {
	case compressionNone, compressionZstd0, compressionZstd1:
	default:
		return fmt.Errorf("%w: unsupported compression %d", ErrDecode, e.compression)
	}
	if e.pyramidType != 0 {
		return fmt.Errorf("%w: pyramid planes are not supported", ErrDecode)
	}
	e.channel, e.slice = 0, 0
	sawX, sawY := false, false
	for _, d := range e.dims {
		switch d.name {
		case "X":
			if d.start != 0 || d.size <= 0 || d.size != d.storedSize {
				return fmt.Errorf("%w: X axis start %d size %d stored %d is not a full frame", ErrDecode, d.start, d.size, d.storedSize)
			}
			e.width = int(d.size)
			sawX = true
		case "Y":
			if d.start != 0 || d.size <= 0 || d.size != d.storedSize {
				return fmt.Errorf("%w: Y axis start %d size %d stored %d is not a full frame", ErrDecode, d.start, d.size, d.storedSize)
			}
			e.height = int(d.size)
			sawY = true
		case "C":
			if d.start < 0 || d.size != 1 {
				return fmt.Errorf("%w: C axis start %d size %d, sub-blocks must hold a single channel", ErrDecode, d.start, d.size)
			}
			e.channel = int(d.start)
		case "Z":
			if d.start < 0 || d.size != 1 {
				return fmt.Errorf("%w: Z axis start %d size %d, sub-blocks must hold a single slice", ErrDecode, d.start, d.size)
			}
			e.slice = int(d.start)
		case "M":
			if d.start != 0 || d.size > 1 {
				return fmt.Errorf("%w: mosaic containers are not supported", ErrDecode)
			}
		default:
			if d.start != 0 || d.size > 1 {
				return fmt.Errorf("%w: non-singleton %s axis (start %d size %d) is not supported", ErrDecode, d.name, d.start, d.size)
			}
		}
	}
	if !sawX || !sawY {
		return fmt.Errorf("%w: sub-block has no X/Y frame axes", ErrDecode)
	}
	return nil
}

// readSubBlock reads one ZISRAWSUBBLOCK segment and returns the
// decompressed plane bytes in row-major order.
func (f *File) readSubBlock(e *directoryEntry) (plane []byte, err error) {
	hdr, err := f.readSegmentHeader(e.filePosition, sidSubBlock)
	if err != nil {
		return nil, err
	}
	var fixed [subBlockFixedSize]byte
	if err := f.readAt(fixed[:], e.filePosition+segmentHeaderSize, "sub-block header"); err != nil {
		return nil, err
	}
	metaSize := int64(int32(binary.LittleEndian.Uint32(fixed[0:4])))
	dataSize := int64(binary.LittleEndian.Uint64(fixed[8:16]))
	if metaSize < 0 || dataSize < 0 {
		return nil, fmt.Errorf("%w: sub-block at offset %d has negative payload sizes", ErrDecode, e.filePosition)
	}

	// The sub-block repeats its directory entry; parse it and make sure it
	// agrees with the directory before trusting the offsets derived from it.
	entrySize := directoryEntryFixedSize + len(e.dims)*dimensionEntrySize
	entryBuf := make([]byte, entrySize)
	if err := f.readAt(entryBuf, e.filePosition+segmentHeaderSize+subBlockFixedSize, "sub-block directory entry"); err != nil {
		return nil, err
	}
	emb, _, err := parseDirectoryEntry(entryBuf)
	if err != nil {
		return nil, err
	}
	if err := emb.checkSupported(); err != nil {
		return nil, err
	}
	if emb.pixelType != e.pixelType || emb.compression != e.compression ||
		emb.channel != e.channel || emb.slice != e.slice ||
		emb.width != e.width || emb.height != e.height {
		return nil, fmt.Errorf("%w: sub-block at offset %d does not match its directory entry", ErrDecode, e.filePosition)
	}

	dataOff := int64(subBlockFixedSize + entrySize)
	if dataOff < subBlockMinDataOffset {
		dataOff = subBlockMinDataOffset
	}
	// dataOff+metaSize is small and checked on its own first, so the
	// remaining capacity on the right is non-negative and a dataSize near
	// MaxInt64 cannot wrap the comparison.
	if dataOff+metaSize > hdr.AllocatedSize || dataSize > hdr.AllocatedSize-dataOff-metaSize {
		return nil, fmt.Errorf("%w: sub-block payload overruns its segment (%d+%d+%d > %d)", ErrDecode, dataOff, metaSize, dataSize, hdr.AllocatedSize)
	}
	raw := make([]byte, dataSize)
	if err := f.readAt(raw, e.filePosition+segmentHeaderSize+dataOff+metaSize, "sub-block pixel data"); err != nil {
		return nil, err
	}

	plane, err = decompressPlane(raw, e.compression)
	if err != nil {
		return nil, fmt.Errorf("channel %d slice %d: %w", e.channel, e.slice, err)
	}
	if len(plane) != e.width*e.height {
		return nil, fmt.Errorf("%w: channel %d slice %d decoded to %d bytes, want %d",
			ErrDecode, e.channel, e.slice, len(plane), e.width*e.height)
	}
	return plane, nil
}

// decompressPlane turns stored plane bytes into raw Gray8 samples.
func decompressPlane(raw []byte, compression int32) ([]byte, error) {
	switch compression {
	case compressionNone:
		return raw, nil
	case compressionZstd0:
		return decodeZstd(raw)
	case compressionZstd1:
		payload, err := stripZstd1Header(raw)
		if err != nil {
			return nil, err
		}
		return decodeZstd(payload)
	default:
		return nil, fmt.Errorf("%w: unsupported compression %d", ErrDecode, compression)
	}
}

// stripZstd1Header validates the zstd1 chunk header and returns the
// compressed payload that follows it. The header is a size byte followed by
// typed chunks; the only defined chunk (type 1) carries a parameter byte
// whose low bit selects hi/lo byte packing, which never applies to 8-bit
// samples.
func stripZstd1Header(raw []byte) ([]byte, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("%w: empty zstd1 payload", ErrDecode)
	}
	headerSize := int(raw[0])
	if headerSize < 1 || headerSize > len(raw) {
		return nil, fmt.Errorf("%w: zstd1 header size %d exceeds payload", ErrDecode, headerSize)
	}
	pos := 1
	for pos < headerSize {
		switch raw[pos] {
		case 1:
			if pos+1 >= headerSize {
				return nil, fmt.Errorf("%w: truncated zstd1 header chunk", ErrDecode)
			}
			if raw[pos+1]&1 != 0 {
				return nil, fmt.Errorf("%w: zstd1 hi/lo byte packing is not valid for 8-bit samples", ErrDecode)
			}
			pos += 2
		default:
			return nil, fmt.Errorf("%w: unknown zstd1 header chunk type %d", ErrDecode, raw[pos])
		}
	}
	return raw[headerSize:], nil
}

var zstdDecoders = sync.Pool{New: func() any { return mustNewZstdDecoder() }}

func mustNewZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	)
	if err != nil {
		panic(err)
	}
	return dec
}

// decodeZstd decompresses one plane using a pooled decoder.
func decodeZstd(data []byte) ([]byte, error) {
	dec := zstdDecoders.Get().(*zstd.Decoder)
	defer zstdDecoders.Put(dec)
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrDecode, err)
	}
	return out, nil
}
