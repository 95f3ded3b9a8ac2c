// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

var xmpSkipNamespaces = map[string]bool{
	"xmlns": true,
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#": true,
}

type rdf struct {
	XMLName      xml.Name
	Descriptions []rdfDescription `xml:"Description"`
}

// Note: We currently only handle a subset of XMP tags,
// but a very common subset.
type rdfDescription struct {
	XMLName   xml.Name
	Attrs     []xml.Attr `xml:",any,attr"`
	Creator   seqList    `xml:"creator"`
	Publisher bagList    `xml:"publisher"`
	Subject   bagList    `xml:"subject"`
	Rights    altList    `xml:"rights"`
	Title     altList    `xml:"title"`
	Desc      altList    `xml:"description"`

	GPSLatitude  string `xml:"GPSLatitude"`
	GPSLongitude string `xml:"GPSLongitude"`
}

type altList struct {
	XMLName xml.Name
	Alt     struct {
		Items []string `xml:"li"`
	} `xml:"Alt"`
}

type seqList struct {
	XMLName xml.Name
	Seq     struct {
		Items []string `xml:"li"`
	} `xml:"Seq"`
}

type bagList struct {
	XMLName xml.Name
	Bag     struct {
		Items []string `xml:"li"`
	} `xml:"Bag"`
}

type xmpmeta struct {
	XMLName xml.Name
	RDF     rdf `xml:"RDF"`
}

// decodeXMP decodes the XMP packet in b into a read-only list of tags.
func decodeXMP(b []byte) ([]TagInfo, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}

	var meta xmpmeta
	if err := xml.NewDecoder(bytes.NewReader(b)).Decode(&meta); err != nil {
		return nil, newDataFormatErrorf(nil, "decoding XMP: %s", err)
	}

	var tags []TagInfo
	add := func(name xml.Name, v any) {
		tags = append(tags, TagInfo{
			Source:    XMP,
			Tag:       firstUpper(name.Local),
			Namespace: name.Space,
			Value:     v,
		})
	}

	for _, desc := range meta.RDF.Descriptions {
		for _, attr := range desc.Attrs {
			if xmpSkipNamespaces[attr.Name.Space] {
				continue
			}
			add(attr.Name, attr.Value)
		}

		for _, list := range []struct {
			name  xml.Name
			items []string
		}{
			{desc.Creator.XMLName, desc.Creator.Seq.Items},
			{desc.Publisher.XMLName, desc.Publisher.Bag.Items},
			{desc.Subject.XMLName, desc.Subject.Bag.Items},
			{desc.Rights.XMLName, desc.Rights.Alt.Items},
			{desc.Title.XMLName, desc.Title.Alt.Items},
			{desc.Desc.XMLName, desc.Desc.Alt.Items},
		} {
			if len(list.items) == 0 || list.name.Local == "" {
				continue
			}
			// This is how ExifTool does it:
			if len(list.items) == 1 {
				add(list.name, list.items[0])
			} else {
				add(list.name, list.items)
			}
		}

		// GPS coordinates in XMP are typically in DMS format like "26,34.951N".
		for _, gps := range []struct {
			tag string
			v   string
		}{
			{"GPSLatitude", desc.GPSLatitude},
			{"GPSLongitude", desc.GPSLongitude},
		} {
			if gps.v == "" {
				continue
			}
			if deg, err := parseXMPGPSCoordinate(gps.v); err == nil {
				add(xml.Name{Space: "http://ns.adobe.com/exif/1.0/", Local: gps.tag}, deg)
			}
		}
	}

	return tags, nil
}

// parseXMPGPSCoordinate parses GPS coordinates from XMP format.
// XMP GPS coordinates can be in several formats:
// - DMS with direction: "26,34.951N" or "80,12.014W"
// - Decimal with direction: "26.5825N" or "80.2002W"
// - Pure decimal: "26.5825" or "-80.2002"
func parseXMPGPSCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty coordinate")
	}

	var negative bool
	switch s[len(s)-1] {
	case 'S', 's', 'W', 'w':
		negative = true
		s = s[:len(s)-1]
	case 'N', 'n', 'E', 'e':
		s = s[:len(s)-1]
	}

	var degrees float64

	if deg, min, found := strings.Cut(s, ","); found {
		d, err := strconv.ParseFloat(deg, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing degrees: %w", err)
		}
		m, err := strconv.ParseFloat(min, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing minutes: %w", err)
		}
		degrees = d + m/60.0
	} else {
		var err error
		degrees, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing decimal: %w", err)
		}
	}

	if negative {
		degrees = -degrees
	}

	return degrees, nil
}
