// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta_test

import (
	"bytes"
	"encoding/binary"

	"github.com/bep/jpegmeta"
)

// Test images are built in code.

const (
	markerAPP0  jpegmeta.Marker = 0xE0
	markerAPP1  jpegmeta.Marker = 0xE1
	markerAPP2  jpegmeta.Marker = 0xE2
	markerAPP13 jpegmeta.Marker = 0xED
	markerDQT   jpegmeta.Marker = 0xDB
	markerSOF0  jpegmeta.Marker = 0xC0
	markerDHT   jpegmeta.Marker = 0xC4
	markerCOM   jpegmeta.Marker = 0xFE
	markerSOS   jpegmeta.Marker = 0xDA
)

var (
	exifHeader = []byte("Exif\x00\x00")
	iptcHeader = []byte("Photoshop 3.0\x00")
	xmpHeader  = []byte("http://ns.adobe.com/xap/1.0/\x00")

	// Scan data with a restart marker and a stuffed 0xFF byte.
	testScan = []byte{0x01, 0x02, 0xFF, 0x00, 0x03, 0xFF, 0xD0, 0x04, 0x05}
)

type tiffEntry struct {
	Tag   uint16
	Type  jpegmeta.TiffType
	Count uint32
	// Value in file byte order, at most 4 bytes are stored inline.
	Value []byte
}

func asciiEntry(tag uint16, s string) tiffEntry {
	v := append([]byte(s), 0)
	return tiffEntry{Tag: tag, Type: jpegmeta.TypeASCII, Count: uint32(len(v)), Value: v}
}

func shortEntry(order binary.ByteOrder, tag uint16, values ...uint16) tiffEntry {
	v := make([]byte, 2*len(values))
	for i, vv := range values {
		order.PutUint16(v[i*2:], vv)
	}
	return tiffEntry{Tag: tag, Type: jpegmeta.TypeUnsignedShort, Count: uint32(len(values)), Value: v}
}

func longEntry(order binary.ByteOrder, tag uint16, value uint32) tiffEntry {
	v := make([]byte, 4)
	order.PutUint32(v, value)
	return tiffEntry{Tag: tag, Type: jpegmeta.TypeUnsignedLong, Count: 1, Value: v}
}

func ratEntry(order binary.ByteOrder, tag uint16, num, den uint32) tiffEntry {
	v := make([]byte, 8)
	order.PutUint32(v, num)
	order.PutUint32(v[4:], den)
	return tiffEntry{Tag: tag, Type: jpegmeta.TypeUnsignedRat, Count: 1, Value: v}
}

func undefinedEntry(tag uint16, b []byte) tiffEntry {
	return tiffEntry{Tag: tag, Type: jpegmeta.TypeUndefined, Count: uint32(len(b)), Value: b}
}

func ifdSize(entries []tiffEntry) int {
	n := 2 + 12*len(entries) + 4
	for _, e := range entries {
		if len(e.Value) > 4 {
			n += len(e.Value) + len(e.Value)%2
		}
	}
	return n
}

// buildTIFF builds a TIFF stream with IFD0, an optional EXIF sub IFD and an optional IFD1.
func buildTIFF(order binary.ByteOrder, ifd0, exifIFD, ifd1 []tiffEntry) []byte {
	ifd0 = append([]tiffEntry(nil), ifd0...)
	if exifIFD != nil {
		// Placeholder, set below.
		ifd0 = append(ifd0, longEntry(order, 0x8769, 0))
	}

	offIFD0 := 8
	offEXIF := offIFD0 + ifdSize(ifd0)
	offIFD1 := offEXIF
	if exifIFD != nil {
		offIFD1 += ifdSize(exifIFD)
		ifd0[len(ifd0)-1] = longEntry(order, 0x8769, uint32(offEXIF))
	}

	var buf bytes.Buffer
	if order == binary.LittleEndian {
		buf.WriteString("II")
	} else {
		buf.WriteString("MM")
	}
	binary.Write(&buf, order, uint16(42))
	binary.Write(&buf, order, uint32(offIFD0))

	var next uint32
	if ifd1 != nil {
		next = uint32(offIFD1)
	}
	writeIFD(&buf, order, ifd0, next)
	if exifIFD != nil {
		writeIFD(&buf, order, exifIFD, 0)
	}
	if ifd1 != nil {
		writeIFD(&buf, order, ifd1, 0)
	}

	return buf.Bytes()
}

func writeIFD(buf *bytes.Buffer, order binary.ByteOrder, entries []tiffEntry, next uint32) {
	dataOffset := buf.Len() + 2 + 12*len(entries) + 4
	var data bytes.Buffer

	binary.Write(buf, order, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(buf, order, e.Tag)
		binary.Write(buf, order, uint16(e.Type))
		binary.Write(buf, order, e.Count)
		if len(e.Value) <= 4 {
			v := make([]byte, 4)
			copy(v, e.Value)
			buf.Write(v)
			continue
		}
		binary.Write(buf, order, uint32(dataOffset+data.Len()))
		data.Write(e.Value)
		if len(e.Value)%2 == 1 {
			data.WriteByte(0)
		}
	}
	binary.Write(buf, order, next)
	buf.Write(data.Bytes())
}

// newTestTIFF returns a TIFF stream with all four user authored fields set.
func newTestTIFF(order binary.ByteOrder) []byte {
	ifd0 := []tiffEntry{
		asciiEntry(0x010e, "A sunrise over the sea"),
		asciiEntry(0x010f, "Canon"),
		asciiEntry(0x0110, "EOS"),
		shortEntry(order, 0x0112, 1),
		ratEntry(order, 0x011a, 72, 1),
		asciiEntry(0x013b, "Bjørn"),
		asciiEntry(0x8298, "Copyright 2024"),
	}
	exifIFD := []tiffEntry{
		ratEntry(order, 0x829a, 1, 200),
		undefinedEntry(0x9000, []byte("0231")),
		asciiEntry(0x9003, "2024:01:02 03:04:05"),
		asciiEntry(0xa430, "Owner"),
	}
	ifd1 := []tiffEntry{
		shortEntry(order, 0x0103, 6),
	}
	return buildTIFF(order, ifd0, exifIFD, ifd1)
}

func exifSegment(tiff []byte) jpegmeta.Segment {
	return jpegmeta.Segment{Marker: markerAPP1, Data: concat(exifHeader, tiff)}
}

func iptcSegment(irb []byte) jpegmeta.Segment {
	return jpegmeta.Segment{Marker: markerAPP13, Data: concat(iptcHeader, irb)}
}

func xmpSegment(packet string) jpegmeta.Segment {
	return jpegmeta.Segment{Marker: markerAPP1, Data: concat(xmpHeader, []byte(packet))}
}

// buildDataSets serializes IPTC DataSets.
func buildDataSets(entries ...jpegmeta.IPTCEntry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.Write([]byte{0x1C, e.Record(), e.DataSet()})
		binary.Write(&buf, binary.BigEndian, uint16(len(e.Data)))
		buf.Write(e.Data)
	}
	return buf.Bytes()
}

// buildIRB builds an IRB stream with a resolution record followed by the IPTC record.
func buildIRB(entries ...jpegmeta.IPTCEntry) []byte {
	return jpegmeta.EncodeIRB([]jpegmeta.IRBRecord{
		{ID: 0x03ED, Data: []byte{0x00, 0x48, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01}},
		{ID: 0x0404, Data: buildDataSets(entries...)},
	})
}

// buildJPEG builds a JPEG stream. If scan is not nil, a SOS segment and the scan data is added.
func buildJPEG(segments []jpegmeta.Segment, scan []byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	for _, s := range segments {
		buf.Write([]byte{0xFF, byte(s.Marker)})
		binary.Write(&buf, binary.BigEndian, uint16(len(s.Data)+2))
		buf.Write(s.Data)
	}
	if scan != nil {
		buf.Write([]byte{0xFF, byte(markerSOS)})
		sos := sosSegment()
		binary.Write(&buf, binary.BigEndian, uint16(len(sos.Data)+2))
		buf.Write(sos.Data)
		buf.Write(scan)
	}
	buf.Write([]byte{0xFF, 0xD9})
	return buf.Bytes()
}

func sosSegment() jpegmeta.Segment {
	return jpegmeta.Segment{Marker: markerSOS, Data: []byte{0x01, 0x01, 0x00, 0x00, 0x3F, 0x00}}
}

// baseSegments are the non metadata segments of a baseline JPEG.
func baseSegments() []jpegmeta.Segment {
	return []jpegmeta.Segment{
		{Marker: markerDQT, Data: bytes.Repeat([]byte{0x01}, 65)},
		{Marker: markerSOF0, Data: []byte{0x08, 0x00, 0x01, 0x00, 0x01, 0x01, 0x01, 0x11, 0x00}},
		{Marker: markerDHT, Data: []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
	}
}

// newTestJPEG builds a JPEG with JFIF, EXIF, XMP and IPTC segments.
func newTestJPEG() []byte {
	segments := []jpegmeta.Segment{
		{Marker: markerAPP0, Data: []byte("JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")},
		exifSegment(newTestTIFF(binary.LittleEndian)),
		xmpSegment(testXMP),
		iptcSegment(buildIRB(
			jpegmeta.NewIPTCEntry(1, 90, "\x1b%G"),
			jpegmeta.NewIPTCEntry(2, 120, "Hello"),
			jpegmeta.NewIPTCEntry(2, 25, "sea"),
			jpegmeta.NewIPTCEntry(2, 25, "sunrise"),
			jpegmeta.NewIPTCEntry(2, 90, "Benalmádena"),
			jpegmeta.NewIPTCEntry(2, 55, "20240102"),
		)),
	}
	segments = append(segments, baseSegments()...)
	return buildJPEG(segments, testScan)
}

const testXMP = `<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:xmp="http://ns.adobe.com/xap/1.0/"
    xmlns:dc="http://purl.org/dc/elements/1.1/"
    xmlns:photoshop="http://ns.adobe.com/photoshop/1.0/"
    xmp:CreatorTool="Adobe Photoshop Lightroom Classic 12.4 (Macintosh)"
    photoshop:City="Benalmádena">
   <dc:creator>
    <rdf:Seq>
     <rdf:li>Bjørn Erik Pedersen</rdf:li>
    </rdf:Seq>
   </dc:creator>
   <dc:subject>
    <rdf:Bag>
     <rdf:li>sea</rdf:li>
     <rdf:li>sunrise</rdf:li>
    </rdf:Bag>
   </dc:subject>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

func concat(bs ...[]byte) []byte {
	return bytes.Join(bs, nil)
}
