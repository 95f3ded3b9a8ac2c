// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"bytes"
	"fmt"
)

const (
	markerSOF0  Marker = 0xC0 // SOFn = SOF0+n, n = 0-15 excluding 4, 8 and 12
	markerDHT   Marker = 0xC4
	markerDAC   Marker = 0xCC
	markerRST0  Marker = 0xD0 // RSTn = RST0+n, n = 0-7
	markerRST7  Marker = 0xD7
	markerSOI   Marker = 0xD8
	markerEOI   Marker = 0xD9
	markerSOS   Marker = 0xDA
	markerDQT   Marker = 0xDB
	markerDNL   Marker = 0xDC
	markerDRI   Marker = 0xDD
	markerAPP0  Marker = 0xE0 // APPn = APP0+n, n = 0-15
	markerAPP1  Marker = 0xE1
	markerAPP13 Marker = 0xED
	markerAPP15 Marker = 0xEF
	markerCOM   Marker = 0xFE
	markerFill  Marker = 0xFF
)

// The maximum payload of a marker segment, the 2 byte length includes itself.
const maxSegmentLen = 0xFFFF - 2

// IPTC payloads are split into APP13 segments of at most this many bytes.
const iptcChunkLen = 32000

var (
	exifHeader    = []byte("Exif\x00\x00")
	exifHeaderAlt = []byte("Exif\x00\xFF")
	iptcHeader    = []byte("Photoshop 3.0\x00")
	xmpHeader     = []byte("http://ns.adobe.com/xap/1.0/\x00")

	markerNames [256]string
)

func init() {
	markerNames[markerDHT] = "DHT"
	markerNames[markerDAC] = "DAC"
	markerNames[markerSOI] = "SOI"
	markerNames[markerEOI] = "EOI"
	markerNames[markerSOS] = "SOS"
	markerNames[markerDQT] = "DQT"
	markerNames[markerDNL] = "DNL"
	markerNames[markerDRI] = "DRI"
	markerNames[markerCOM] = "COM"

	for i := markerSOF0; i <= markerSOF0+0xF; i++ {
		if i == markerDHT || i == markerSOF0+8 || i == markerDAC {
			continue
		}
		markerNames[i] = fmt.Sprintf("SOF%d", i-markerSOF0)
	}
	for i := markerRST0; i <= markerRST7; i++ {
		markerNames[i] = fmt.Sprintf("RST%d", i-markerRST0)
	}
}

// Marker is the second byte of a JPEG marker, e.g. 0xE1 for APP1.
type Marker uint8

// Name returns "APPn" for the application markers and the hex value, e.g. "0xdb", for all others.
func (m Marker) Name() string {
	if m.isAPP() {
		return fmt.Sprintf("APP%d", m-markerAPP0)
	}
	return fmt.Sprintf("0x%02x", uint8(m))
}

// String returns the conventional marker name, e.g. "SOS" or "APP1", falling back to Name.
func (m Marker) String() string {
	if s := markerNames[m]; s != "" {
		return s
	}
	return m.Name()
}

func (m Marker) isAPP() bool {
	return m >= markerAPP0 && m <= markerAPP15
}

func (m Marker) isRST() bool {
	return m >= markerRST0 && m <= markerRST7
}

// Segment is a JPEG marker segment.
type Segment struct {
	Marker Marker
	// Data is the payload, without marker and length.
	Data []byte
}

// Name returns the marker name, see Marker.Name.
func (s Segment) Name() string {
	return s.Marker.Name()
}

func (s Segment) isEXIF() bool {
	return s.Marker == markerAPP1 && (bytes.HasPrefix(s.Data, exifHeader) || bytes.HasPrefix(s.Data, exifHeaderAlt))
}

func (s Segment) isIPTC() bool {
	return s.Marker == markerAPP13 && bytes.HasPrefix(s.Data, iptcHeader)
}

func (s Segment) isXMP() bool {
	return s.Marker == markerAPP1 && bytes.HasPrefix(s.Data, xmpHeader)
}
