// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package jpegmeta reads and rewrites the EXIF, IPTC and XMP metadata embedded in JPEG files.
//
// A JPEG file is framed into its ordered header segments and the compressed scan data.
// EXIF (APP1) directories are decoded into a flat list of IFD entries and can only be
// edited in place by clearing a fixed set of user authored fields. IPTC (APP13) data sets
// are fully decoded and re-encoded. XMP (APP1) packets are exposed as raw segment data
// and as a simple read-only tag view.
package jpegmeta

import (
	"fmt"
	"maps"
)

// UnknownPrefix is used as prefix for unknown tags.
const UnknownPrefix = "UnknownTag_"

const (
	// EXIF is the EXIF tag source.
	EXIF Source = 1 << iota
	// IPTC is the IPTC tag source.
	IPTC
	// XMP is the XMP tag source.
	XMP
)

// Options contains the options for reading and rewriting an Image.
type Options struct {
	// If set, the compressed image data is not read and the Image cannot be written.
	ReadOnly bool

	// Warnf will be called for each warning.
	// Warnings are non fatal, e.g. bytes discarded after the EOI marker.
	Warnf func(string, ...any)

	// LimitNumEntries is the maximum number of EXIF entries to decode per Image.
	// Default value is 5000.
	LimitNumEntries uint32
}

const defaultLimitNumEntries = 5000

func (o *Options) init() {
	if o.Warnf == nil {
		o.Warnf = func(string, ...any) {}
	}
	if o.LimitNumEntries == 0 {
		o.LimitNumEntries = defaultLimitNumEntries
	}
}

// TagInfo contains information about a tag.
type TagInfo struct {
	// The tag source.
	Source Source
	// The tag name.
	Tag string
	// The tag namespace.
	// For EXIF, this is the IFD block, e.g. "IFD0" or "EXIF".
	// For XMP, this is the namespace, e.g. "http://ns.adobe.com/camera-raw-settings/1.0/"
	// For IPTC, this is the record name, e.g. "IPTCApplication".
	Namespace string
	// The tag value.
	Value any
}

// Source is a bitmask and you may send multiple sources at once.
type Source uint32

func (t Source) String() string {
	switch t {
	case EXIF:
		return "EXIF"
	case IPTC:
		return "IPTC"
	case XMP:
		return "XMP"
	default:
		return fmt.Sprintf("Source(%d)", uint32(t))
	}
}

// Remove removes the given source.
func (t Source) Remove(source Source) Source {
	t &= ^source
	return t
}

// Has returns true if the given source is set.
func (t Source) Has(source Source) bool {
	return t&source != 0
}

// IsZero returns true if the source is zero.
func (t Source) IsZero() bool {
	return t == 0
}

// Tags is a collection of tags grouped per source.
type Tags struct {
	exif map[string]TagInfo
	iptc map[string]TagInfo
	xmp  map[string]TagInfo
}

// Add adds a tag to the correct source.
func (t *Tags) Add(tag TagInfo) {
	t.getSourceMap(tag.Source)[tag.Tag] = tag
}

// Has reports if a tag is already added.
func (t *Tags) Has(tag TagInfo) bool {
	_, found := t.getSourceMap(tag.Source)[tag.Tag]
	return found
}

// EXIF returns the EXIF tags.
func (t *Tags) EXIF() map[string]TagInfo {
	if t.exif == nil {
		t.exif = make(map[string]TagInfo)
	}
	return t.exif
}

// IPTC returns the IPTC tags.
func (t *Tags) IPTC() map[string]TagInfo {
	if t.iptc == nil {
		t.iptc = make(map[string]TagInfo)
	}
	return t.iptc
}

// XMP returns the XMP tags.
func (t *Tags) XMP() map[string]TagInfo {
	if t.xmp == nil {
		t.xmp = make(map[string]TagInfo)
	}
	return t.xmp
}

// All returns all tags in a map.
func (t Tags) All() map[string]TagInfo {
	all := make(map[string]TagInfo)
	maps.Copy(all, t.EXIF())
	maps.Copy(all, t.IPTC())
	maps.Copy(all, t.XMP())
	return all
}

func (t *Tags) getSourceMap(source Source) map[string]TagInfo {
	switch source {
	case EXIF:
		return t.EXIF()
	case IPTC:
		return t.IPTC()
	case XMP:
		return t.XMP()
	default:
		return map[string]TagInfo{}
	}
}
