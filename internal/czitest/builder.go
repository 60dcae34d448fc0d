// Package czitest builds small synthetic ZISRAW containers in memory so
// decoder and export tests can run against well-formed (and deliberately
// malformed) inputs without binary fixtures in the repository.
package czitest

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Dim is one axis record of a plane.
type Dim struct {
	Name  string
	Start int
	Size  int
	// StoredSize defaults to Size when zero
	StoredSize int
}

// Plane describes one stored sub-block.
type Plane struct {
	C, Z int
	// Data is the decompressed Gray8 payload, Width*Height bytes
	Data []byte
	// Compression is the stored compression id (0, 5 or 6)
	Compression int
	// PixelType overrides the pixel type code (zero value is Gray8)
	PixelType int
	// Pyramid sets the pyramid type byte
	Pyramid byte
	// Dims replaces the standard X, Y, C, Z axis set when non-nil
	Dims []Dim
	// Stored replaces the encoded payload when non-nil
	Stored []byte
}

// Channel describes one display-settings channel of the XML document.
type Channel struct {
	ID   string
	Name string
	// Color is the #AARRGGBB display color; empty emits no Color element
	Color string
	// NameAsElement writes the name as a <Name> child instead of an attribute
	NameAsElement bool
}

// Container assembles a complete single-scene container.
type Container struct {
	Width, Height int
	Planes        []Plane
	// XML is the metadata document; build it with DisplayXML
	XML string
}

// DisplayXML builds an ImageDocument with the given display channels.
func DisplayXML(channels ...Channel) string {
	var b strings.Builder
	b.WriteString("<ImageDocument><Metadata><DisplaySetting><Channels>")
	for i, ch := range channels {
		id := ch.ID
		if id == "" {
			id = fmt.Sprintf("Channel:%d", i)
		}
		if ch.NameAsElement {
			fmt.Fprintf(&b, `<Channel Id=%q>`, id)
			if ch.Name != "" {
				fmt.Fprintf(&b, "<Name>%s</Name>", ch.Name)
			}
		} else if ch.Name != "" {
			fmt.Fprintf(&b, `<Channel Id=%q Name=%q>`, id, ch.Name)
		} else {
			fmt.Fprintf(&b, `<Channel Id=%q>`, id)
		}
		if ch.Color != "" {
			fmt.Fprintf(&b, "<Color>%s</Color>", ch.Color)
		}
		b.WriteString("</Channel>")
	}
	b.WriteString("</Channels></DisplaySetting></Metadata></ImageDocument>")
	return b.String()
}

const (
	headerLen     = 32
	fileHeaderLen = 80
	metaFixedLen  = 256
	dirFixedLen   = 128
	subFixedLen   = 16
	minDataOffset = 256
	// every sub-block carries a token XML document so readers must skip it
	subBlockXML = "<METADATA/>"
)

// Bytes serializes the container: file header, metadata segment, one
// sub-block segment per plane, then the sub-block directory.
func (c Container) Bytes() []byte {
	metaPayload := make([]byte, metaFixedLen+len(c.XML))
	binary.LittleEndian.PutUint32(metaPayload[0:4], uint32(len(c.XML)))
	copy(metaPayload[metaFixedLen:], c.XML)

	metaPos := int64(headerLen + fileHeaderLen)

	// Lay out the sub-block segments so their absolute positions are known
	// before the directory entries referencing them are encoded.
	positions := make([]int64, len(c.Planes))
	stored := make([][]byte, len(c.Planes))
	dims := make([][]Dim, len(c.Planes))
	pos := metaPos + headerLen + int64(len(metaPayload))
	for i, p := range c.Planes {
		positions[i] = pos
		stored[i] = c.encodePlane(p)
		dims[i] = c.planeDims(p)
		entryLen := 32 + 20*len(dims[i])
		dataOff := subFixedLen + entryLen
		if dataOff < minDataOffset {
			dataOff = minDataOffset
		}
		pos += headerLen + int64(dataOff+len(subBlockXML)+len(stored[i]))
	}
	dirPos := pos

	fh := make([]byte, fileHeaderLen)
	binary.LittleEndian.PutUint32(fh[0:4], 1) // major version
	binary.LittleEndian.PutUint64(fh[52:60], uint64(dirPos))
	binary.LittleEndian.PutUint64(fh[60:68], uint64(metaPos))

	out := appendSegment(nil, "ZISRAWFILE", fh)
	out = appendSegment(out, "ZISRAWMETADATA", metaPayload)
	for i, p := range c.Planes {
		entry := encodeEntry(p, dims[i], positions[i])
		dataOff := subFixedLen + len(entry)
		if dataOff < minDataOffset {
			dataOff = minDataOffset
		}
		payload := make([]byte, dataOff, dataOff+len(subBlockXML)+len(stored[i]))
		binary.LittleEndian.PutUint32(payload[0:4], uint32(len(subBlockXML)))
		binary.LittleEndian.PutUint64(payload[8:16], uint64(len(stored[i])))
		copy(payload[subFixedLen:], entry)
		payload = append(payload, subBlockXML...)
		payload = append(payload, stored[i]...)
		out = appendSegment(out, "ZISRAWSUBBLOCK", payload)
	}

	dirPayload := make([]byte, dirFixedLen)
	binary.LittleEndian.PutUint32(dirPayload[0:4], uint32(len(c.Planes)))
	for i, p := range c.Planes {
		dirPayload = append(dirPayload, encodeEntry(p, dims[i], positions[i])...)
	}
	out = appendSegment(out, "ZISRAWDIRECTORY", dirPayload)
	return out
}

// planeDims returns the axis set of a plane, standard unless overridden.
func (c Container) planeDims(p Plane) []Dim {
	if p.Dims != nil {
		return p.Dims
	}
	return []Dim{
		{Name: "X", Start: 0, Size: c.Width},
		{Name: "Y", Start: 0, Size: c.Height},
		{Name: "C", Start: p.C, Size: 1},
		{Name: "Z", Start: p.Z, Size: 1},
	}
}

// encodePlane produces the stored byte payload for a plane.
func (c Container) encodePlane(p Plane) []byte {
	if p.Stored != nil {
		return p.Stored
	}
	switch p.Compression {
	case 5:
		return zstdCompress(p.Data)
	case 6:
		// 3 byte header: size, chunk type 1, hi/lo flag clear
		return append([]byte{3, 1, 0}, zstdCompress(p.Data)...)
	default:
		return p.Data
	}
}

// encodeEntry serializes a DV directory entry for a plane stored at filePos.
func encodeEntry(p Plane, dims []Dim, filePos int64) []byte {
	b := make([]byte, 32+20*len(dims))
	b[0], b[1] = 'D', 'V'
	binary.LittleEndian.PutUint32(b[2:6], uint32(p.PixelType))
	binary.LittleEndian.PutUint64(b[6:14], uint64(filePos))
	binary.LittleEndian.PutUint32(b[18:22], uint32(p.Compression))
	b[22] = p.Pyramid
	binary.LittleEndian.PutUint32(b[28:32], uint32(len(dims)))
	for i, d := range dims {
		o := 32 + 20*i
		copy(b[o:o+4], d.Name)
		binary.LittleEndian.PutUint32(b[o+4:o+8], uint32(d.Start))
		binary.LittleEndian.PutUint32(b[o+8:o+12], uint32(d.Size))
		storedSize := d.StoredSize
		if storedSize == 0 {
			storedSize = d.Size
		}
		binary.LittleEndian.PutUint32(b[o+16:o+20], uint32(storedSize))
	}
	return b
}

func appendSegment(buf []byte, id string, payload []byte) []byte {
	var hdr [headerLen]byte
	copy(hdr[:], id)
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(len(payload)))
	binary.LittleEndian.PutUint64(hdr[24:32], uint64(len(payload)))
	buf = append(buf, hdr[:]...)
	return append(buf, payload...)
}

func zstdCompress(data []byte) []byte {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}
