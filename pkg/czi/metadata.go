package czi

import (
	"encoding/binary"
	"encoding/xml"
	"fmt"

	"czi2png/internal/models"
)

// imageDocument is the subset of the embedded XML document we consume: the
// per-channel display settings. Channel names appear either as a Name
// attribute or as a nested Name element depending on the writing software.
type imageDocument struct {
	XMLName  xml.Name `xml:"ImageDocument"`
	Channels []struct {
		ID       string `xml:"Id,attr"`
		NameAttr string `xml:"Name,attr"`
		NameElem string `xml:"Name"`
		Color    string `xml:"Color"`
	} `xml:"Metadata>DisplaySetting>Channels>Channel"`
}

// readMetadata parses the ZISRAWMETADATA segment and builds the channel
// list, checking it against the channel count derived from the pixel data.
func (f *File) readMetadata() error {
	hdr, err := f.readSegmentHeader(f.metadataPos, sidMetadata)
	if err != nil {
		return err
	}
	if hdr.AllocatedSize < metadataFixedSize {
		return fmt.Errorf("%w: metadata payload is %d bytes, need at least %d", ErrMetadata, hdr.AllocatedSize, metadataFixedSize)
	}
	var fixed [8]byte
	if err := f.readAt(fixed[:], f.metadataPos+segmentHeaderSize, "metadata header"); err != nil {
		return err
	}
	xmlSize := int64(int32(binary.LittleEndian.Uint32(fixed[0:4])))
	if xmlSize <= 0 || metadataFixedSize+xmlSize > hdr.AllocatedSize {
		return fmt.Errorf("%w: metadata XML size %d exceeds segment payload %d", ErrMetadata, xmlSize, hdr.AllocatedSize)
	}
	raw := make([]byte, xmlSize)
	if err := f.readAt(raw, f.metadataPos+segmentHeaderSize+metadataFixedSize, "metadata XML"); err != nil {
		return err
	}

	var doc imageDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: parsing XML: %v", ErrMetadata, err)
	}
	if len(doc.Channels) != f.geom.channels {
		return fmt.Errorf("%w: metadata describes %d channels, pixel data has %d",
			ErrMetadata, len(doc.Channels), f.geom.channels)
	}

	f.channels = make([]models.Channel, len(doc.Channels))
	for i, ch := range doc.Channels {
		if ch.Color == "" {
			return fmt.Errorf("%w: channel %d has no display color", ErrMetadata, i)
		}
		name := ch.NameAttr
		if name == "" {
			name = ch.NameElem
		}
		f.channels[i] = models.Channel{
			Index: i,
			Name:  name,
			Color: ch.Color,
		}
	}
	return nil
}
