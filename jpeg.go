// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var eoi = []byte{0xFF, byte(markerEOI)}

// Image is a JPEG file split into its header segments and the compressed scan data.
//
// An Image must be populated with Read before use.
// It is not safe for concurrent use.
type Image struct {
	// Header holds the marker segments in file order, including SOS.
	Header []Segment
	// Scan is the entropy coded data after SOS, up to but not including EOI.
	Scan []byte

	opts Options
	read bool

	// Decoded metadata, refreshed by Read and the setters.
	exif []IFDEntry
	iptc []IPTCEntry
}

// EXIFSegment is the TIFF payload of an EXIF APP1 segment.
type EXIFSegment struct {
	// Index is the position of the segment in Image.Header.
	Index int
	// Data is the segment payload without the "Exif\0\0" header.
	Data []byte
}

// NewImage creates a new empty Image.
func NewImage(opts Options) *Image {
	opts.init()
	return &Image{opts: opts}
}

// ReadFile reads the JPEG file with the given filename.
func ReadFile(filename string, opts Options) (*Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newError(ErrFileNotFound, filename, err.Error())
		}
		return nil, err
	}
	defer f.Close()

	img := NewImage(opts)
	if err := img.Read(f); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *Image) reset() {
	img.Header = nil
	img.Scan = nil
	img.read = false
	img.exif = nil
	img.iptc = nil
}

// Read reads a JPEG stream from r, replacing any previous state.
// The EXIF and IPTC metadata is decoded, and any failure doing so fails Read.
func (img *Image) Read(r io.Reader) error {
	img.reset()
	img.opts.init()

	if err := img.readSegments(bufio.NewReader(r)); err != nil {
		img.reset()
		return err
	}

	if err := img.decodeMetadata(); err != nil {
		img.reset()
		return err
	}

	img.read = true
	return nil
}

func (img *Image) readSegments(r *bufio.Reader) error {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil || buf[0] != 0xFF || Marker(buf[1]) != markerSOI {
		return newErrorf(ErrFileType, nil, "SOI marker not found")
	}

	for {
		marker, err := readMarker(r)
		if err != nil {
			return err
		}

		if marker == markerEOI {
			// No image data.
			return nil
		}

		if marker.isRST() {
			continue
		}

		// Read the 16-bit length of the segment. The value includes the 2 bytes for the
		// length itself, so we subtract 2 to get the number of remaining bytes.
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return newCorruptErrorf(marker.String(), "missing segment length")
		}
		length := int(binary.BigEndian.Uint16(buf[:]))
		if length < 2 {
			return newCorruptErrorf(length, "invalid %s segment length", marker)
		}
		data := make([]byte, length-2)
		if _, err := io.ReadFull(r, data); err != nil {
			return newCorruptErrorf(marker.String(), "truncated segment")
		}
		img.Header = append(img.Header, Segment{Marker: marker, Data: data})

		if marker != markerSOS {
			continue
		}

		if img.opts.ReadOnly {
			return nil
		}

		rest, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		i := bytes.Index(rest, eoi)
		if i == -1 {
			return newCorruptErrorf(nil, "EOI marker not found")
		}
		img.Scan = rest[:i:i]
		if trailing := len(rest) - i - len(eoi); trailing > 0 {
			img.opts.Warnf("JPEG: discarding %d bytes after EOI", trailing)
		}
		return nil
	}
}

// readMarker reads the next marker, skipping any 0xFF fill bytes.
func readMarker(r io.ByteReader) (Marker, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, newCorruptErrorf(nil, "unexpected end of stream, expected marker")
	}
	if b != 0xFF {
		return 0, newCorruptErrorf(b, "0xFF expected in marker")
	}
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, newCorruptErrorf(nil, "unexpected end of stream in marker")
		}
		if Marker(b) != markerFill {
			return Marker(b), nil
		}
	}
}

func (img *Image) decodeMetadata() error {
	exifSegments := img.EXIFSegments()
	datas := make([][]byte, len(exifSegments))
	for i, s := range exifSegments {
		datas[i] = s.Data
	}
	var err error
	if img.exif, err = decodeEXIF(datas, img.opts); err != nil {
		return err
	}
	if img.iptc, err = decodeIPTC(img.IPTCSegment(), img.opts); err != nil {
		return err
	}
	return nil
}

// Validate reports all header segments that are too large to be written.
func (img *Image) Validate() error {
	var result *multierror.Error
	for i, s := range img.Header {
		if len(s.Data) > maxSegmentLen {
			result = multierror.Append(result, newDataFormatErrorf(i, "%s segment of %d bytes exceeds the maximum of %d bytes", s.Marker, len(s.Data), maxSegmentLen))
		}
	}
	return result.ErrorOrNil()
}

// Write writes the JPEG stream to w.
// The Image must have been read with ReadOnly unset.
func (img *Image) Write(w io.Writer) error {
	if !img.read {
		return newError(ErrDataNotFound, nil, "no image read")
	}
	if img.opts.ReadOnly {
		return newError(ErrDataNotFound, nil, "image read in read-only mode")
	}
	if err := img.Validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	bw.Write([]byte{0xFF, byte(markerSOI)})
	for _, s := range img.Header {
		bw.Write([]byte{0xFF, byte(s.Marker)})
		binary.Write(bw, binary.BigEndian, uint16(len(s.Data)+2))
		bw.Write(s.Data)
	}
	bw.Write(img.Scan)
	bw.Write(eoi)

	return bw.Flush()
}

// WriteFile writes the JPEG stream to filename.
func (img *Image) WriteFile(filename string) (err error) {
	// Check before creating the file.
	if !img.read || img.opts.ReadOnly {
		return img.Write(io.Discard)
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return img.Write(f)
}

// IPTCSegment returns the IRB stream of the IPTC APP13 segments,
// concatenated and without their "Photoshop 3.0\0" headers.
// It returns nil if there are none.
func (img *Image) IPTCSegment() []byte {
	var b []byte
	for _, s := range img.Header {
		if s.isIPTC() {
			b = append(b, s.Data[len(iptcHeader):]...)
		}
	}
	return b
}

// SetIPTCSegment replaces the IPTC APP13 segments with b, which is an IRB stream
// without the "Photoshop 3.0\0" header. A nil b removes them.
//
// Payloads larger than 32000 bytes are split over multiple segments, inserted
// after the last APP0 to APP13 segment.
func (img *Image) SetIPTCSegment(b []byte) {
	img.Header = slices.DeleteFunc(img.Header, Segment.isIPTC)
	if b == nil {
		return
	}

	pos := len(img.Header) - 1
	for pos >= 0 && (img.Header[pos].Marker < markerAPP0 || img.Header[pos].Marker > markerAPP13) {
		pos--
	}
	pos++

	var segments []Segment
	for {
		n := min(len(b), iptcChunkLen)
		segments = append(segments, Segment{
			Marker: markerAPP13,
			Data:   slices.Concat(iptcHeader, b[:n]),
		})
		b = b[n:]
		if len(b) == 0 {
			break
		}
	}

	img.Header = slices.Insert(img.Header, pos, segments...)
}

// EXIFSegments returns the EXIF APP1 segments.
func (img *Image) EXIFSegments() []EXIFSegment {
	var segments []EXIFSegment
	for i, s := range img.Header {
		if s.isEXIF() {
			segments = append(segments, EXIFSegment{Index: i, Data: s.Data[len(exifHeader):]})
		}
	}
	return segments
}

// SetEXIFSegmentData replaces the TIFF payload of the EXIF segment at index in Header.
func (img *Image) SetEXIFSegmentData(index int, b []byte) error {
	if index < 0 || index >= len(img.Header) || !img.Header[index].isEXIF() {
		return newError(ErrDataNotFound, index, "no EXIF segment at index")
	}
	img.Header[index].Data = slices.Concat(exifHeader, b)
	return nil
}

// XMPSegment returns the XMP packet of the first XMP APP1 segment, nil if none.
func (img *Image) XMPSegment() []byte {
	for _, s := range img.Header {
		if s.isXMP() {
			return s.Data[len(xmpHeader):]
		}
	}
	return nil
}

// SetXMPSegment replaces the packet of the first XMP APP1 segment with b.
// A nil b removes it. New segments are inserted after the leading APP0 and APP1 segments.
func (img *Image) SetXMPSegment(b []byte) {
	for i, s := range img.Header {
		if !s.isXMP() {
			continue
		}
		if b == nil {
			img.Header = slices.Delete(img.Header, i, i+1)
		} else {
			img.Header[i].Data = slices.Concat(xmpHeader, b)
		}
		return
	}
	if b == nil {
		return
	}

	pos := 0
	for pos < len(img.Header) && (img.Header[pos].Marker == markerAPP0 || img.Header[pos].Marker == markerAPP1) {
		pos++
	}
	img.Header = slices.Insert(img.Header, pos, Segment{Marker: markerAPP1, Data: slices.Concat(xmpHeader, b)})
}

func (img *Image) checkRead() error {
	if !img.read {
		return newError(ErrDataNotFound, nil, "no image read")
	}
	return nil
}

// EXIF returns the decoded EXIF entries.
func (img *Image) EXIF() ([]IFDEntry, error) {
	if err := img.checkRead(); err != nil {
		return nil, err
	}
	return img.exif, nil
}

// SetEXIF clears the user authored EXIF fields, see EncodeEXIF.
func (img *Image) SetEXIF(edits []EXIFEdit) error {
	if err := img.checkRead(); err != nil {
		return err
	}
	if img.exif == nil {
		return nil
	}

	segments := img.EXIFSegments()
	datas := make([][]byte, len(segments))
	for i, s := range segments {
		datas[i] = s.Data
	}

	encoded, err := EncodeEXIF(datas, img.exif, edits)
	if err != nil {
		return err
	}
	for i, s := range segments {
		if err := img.SetEXIFSegmentData(s.Index, encoded[i]); err != nil {
			return err
		}
	}

	img.exif, err = decodeEXIF(encoded, img.opts)
	return err
}

// IPTC returns the decoded IPTC entries.
func (img *Image) IPTC() ([]IPTCEntry, error) {
	if err := img.checkRead(); err != nil {
		return nil, err
	}
	return img.iptc, nil
}

// SetIPTC replaces the editable IPTC entries with entries, see EncodeIPTC.
func (img *Image) SetIPTC(entries []IPTCEntry) error {
	if err := img.checkRead(); err != nil {
		return err
	}

	segment := img.IPTCSegment()
	b, err := EncodeIPTC(segment, img.iptc, entries)
	if err != nil {
		return err
	}
	img.SetIPTCSegment(b)

	img.iptc, err = decodeIPTC(img.IPTCSegment(), img.opts)
	return err
}

// XMP returns a read-only view of the XMP packet.
func (img *Image) XMP() ([]TagInfo, error) {
	if err := img.checkRead(); err != nil {
		return nil, err
	}
	return decodeXMP(img.XMPSegment())
}

// Tags returns all EXIF, IPTC and XMP tags keyed by name.
// Repeated IPTC DataSets are collected into a []string.
func (img *Image) Tags() (Tags, error) {
	var tags Tags
	if err := img.checkRead(); err != nil {
		return tags, err
	}

	for _, e := range img.exif {
		// IFD1 and later describe the thumbnail.
		if strings.HasPrefix(e.Block, exifRootBlockPrefix) && e.Block != exifRootBlockPrefix+"0" {
			continue
		}
		tags.Add(TagInfo{
			Source:    EXIF,
			Tag:       e.Name(),
			Namespace: e.Block,
			Value:     e.Value,
		})
	}

	repeated := make(map[string][]string)
	for _, e := range img.iptc {
		record, dataset := e.parseTag()
		namespace := getIptcRecordName(record)
		v := printableString(e.String())
		ti := TagInfo{Source: IPTC, Tag: e.Name(), Namespace: namespace, Value: v}
		if f, found := getIptcRecordFieldDef(record, dataset); found && f.Repeatable {
			repeated[ti.Tag] = append(repeated[ti.Tag], v)
			// This is how ExifTool does it:
			if values := repeated[ti.Tag]; len(values) > 1 {
				ti.Value = values
			}
		}
		tags.Add(ti)
	}

	xmp, err := img.XMP()
	if err != nil {
		return tags, err
	}
	for _, ti := range xmp {
		tags.Add(ti)
	}

	return tags, nil
}
