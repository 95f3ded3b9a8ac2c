// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

const (
	byteOrderBigEndian    = 0x4d4d // MM
	byteOrderLittleEndian = 0x4949 // II
	tiffMagic             = 42
	tiffHeaderLen         = 8
	ifdEntryLen           = 12
)

// IFDEntry is a decoded EXIF directory entry.
type IFDEntry struct {
	// Segment is the index of the EXIF segment in the list passed to DecodeEXIF.
	Segment int

	// Block is the IFD block, "IFD0", "IFD1" etc. for the root chain,
	// or one of "SUB", "GLOBAL", "KODAK", "JPL", "EXIF", "LEAF" and "KDC".
	Block string

	Tag   uint16
	Type  TiffType
	Count uint32

	// Value is the decoded value, see DecodeValue.
	Value any

	// Text is Value formatted with FormatValue.
	Text string

	// Offset and Size identify the bytes in the segment holding this value.
	// For values stored inside the entry itself, this is the full 4 byte value field.
	Offset uint32
	Size   uint32
}

// Key returns the block qualified tag id, e.g. "IFD0:010e".
func (e IFDEntry) Key() string {
	return exifKey(e.Block, e.Tag)
}

// Name returns the EXIF tag name, e.g. "ImageDescription".
func (e IFDEntry) Name() string {
	if name, found := exifFields[e.Tag]; found {
		return name
	}
	return fmt.Sprintf("%s0x%04x", UnknownPrefix, e.Tag)
}

func exifKey(block string, tag uint16) string {
	return fmt.Sprintf("%s:%04x", block, tag)
}

// EXIFEdit is a requested change to an EXIF field.
type EXIFEdit struct {
	Block string
	Tag   uint16

	// Value is the requested new value.
	// EXIF fields are cleared in place, so the value is not written.
	Value any
}

// DecodeEXIF decodes the TIFF structures in the given EXIF segments.
// Each segment is the APP1 payload without its "Exif\0\0" header.
// All IFD pointers are assumed to point inside the segment they are found in.
//
// It returns nil if segments is empty or none of them contain any entries.
func DecodeEXIF(segments [][]byte) ([]IFDEntry, error) {
	var opts Options
	opts.init()
	return decodeEXIF(segments, opts)
}

func decodeEXIF(segments [][]byte, opts Options) ([]IFDEntry, error) {
	if len(segments) == 0 {
		return nil, nil
	}

	var entries []IFDEntry
	for i, segment := range segments {
		dec := &exifDecoder{
			segment: i,
			visited: make(map[uint32]bool),
			limit:   int(opts.LimitNumEntries) - len(entries),
			warnf:   opts.Warnf,
		}
		if err := dec.decode(segment); err != nil {
			return nil, err
		}
		entries = append(entries, dec.entries...)
	}

	if len(entries) == 0 {
		return nil, nil
	}

	return entries, nil
}

type exifDecoder struct {
	*streamReader

	segment int
	visited map[uint32]bool
	entries []IFDEntry

	// The number of entries left before we give up.
	limit int

	warnf func(string, ...any)
}

func (e *exifDecoder) decode(segment []byte) error {
	if len(segment) < tiffHeaderLen {
		return newDataFormatErrorf(len(segment), "TIFF header too short")
	}

	e.streamReader = newStreamReader(segment, binary.BigEndian, ErrDataFormat)

	byteOrderTag, err := e.read2()
	if err != nil {
		return err
	}
	switch byteOrderTag {
	case byteOrderBigEndian:
		e.byteOrder = binary.BigEndian
	case byteOrderLittleEndian:
		e.byteOrder = binary.LittleEndian
	default:
		return newDataFormatErrorf(fmt.Sprintf("%x", segment[:2]), "invalid byte order marker")
	}

	magic, err := e.read2()
	if err != nil {
		return err
	}
	if magic != tiffMagic {
		return newDataFormatErrorf(magic, "TIFF magic number not found")
	}

	ifd0Offset, err := e.read4()
	if err != nil {
		return err
	}
	if ifd0Offset == 0 {
		// No directories.
		return nil
	}
	if int64(ifd0Offset) >= int64(e.len()) {
		return newDataFormatErrorf(ifd0Offset, "first IFD offset outside of segment")
	}

	return e.decodeBlocks(exifRootBlockPrefix, ifd0Offset)
}

// decodeBlocks decodes the chain of IFD blocks starting at offset.
// The root chain gets numbered block names, sub chains keep name.
func (e *exifDecoder) decodeBlocks(name string, offset uint32) error {
	for i := 0; ; i++ {
		blockName := name
		if name == exifRootBlockPrefix {
			blockName = name + strconv.Itoa(i)
		}

		next, err := e.decodeBlock(blockName, offset)
		if err != nil {
			return err
		}
		if next == 0 {
			return nil
		}
		if int64(next) >= int64(e.len()) {
			e.warnf("EXIF: next IFD offset %d after block %s is outside of segment %d", next, blockName, e.segment)
			return nil
		}
		offset = next
	}
}

// A tag is represented in 12 bytes:
//   - 2 bytes for the tag ID
//   - 2 bytes for the data type
//   - 4 bytes for the number of data values of the specified type
//   - 4 bytes for the value itself, if it fits, otherwise for a pointer to another location where the data may be found;
//     this could be a pointer to the beginning of another IFD.
//
// decodeBlock returns the offset of the next IFD in the chain, 0 if none.
func (e *exifDecoder) decodeBlock(blockName string, offset uint32) (uint32, error) {
	if e.visited[offset] {
		return 0, newDataFormatErrorf(offset, "IFD loop detected in block %s", blockName)
	}
	e.visited[offset] = true

	if err := e.seek(int(offset)); err != nil {
		return 0, newDataFormatErrorf(offset, "IFD offset outside of segment")
	}

	numEntries, err := e.read2()
	if err != nil {
		return 0, err
	}
	if numEntries == 0 {
		return 0, nil
	}

	tableStart := e.pos()
	if !e.inBounds(tableStart, int(numEntries)*ifdEntryLen+4) {
		return 0, newDataFormatErrorf(offset, "IFD block %s with %d entries is truncated", blockName, numEntries)
	}

	for i := range int(numEntries) {
		if err := e.decodeEntry(blockName, tableStart+i*ifdEntryLen); err != nil {
			return 0, err
		}
	}

	return e.read4At(tableStart + int(numEntries)*ifdEntryLen)
}

func (e *exifDecoder) decodeEntry(blockName string, entryOffset int) error {
	if err := e.seek(entryOffset); err != nil {
		return err
	}
	tagID, err := e.read2()
	if err != nil {
		return err
	}
	dataType, err := e.read2()
	if err != nil {
		return err
	}
	count, err := e.read4()
	if err != nil {
		return err
	}
	valueField, err := e.read4()
	if err != nil {
		return err
	}

	if subBlock, isPointer := exifSubIFDPointers[tagID]; isPointer {
		return e.preservePos(func() error {
			return e.decodeBlocks(subBlock, valueField)
		})
	}

	if e.limit <= 0 {
		return newDataFormatErrorf(e.segment, "too many EXIF entries")
	}
	e.limit--

	typ := TiffType(dataType)
	size, err := TypeSize(typ)
	if err != nil {
		return err
	}

	entry := IFDEntry{
		Segment: e.segment,
		Block:   blockName,
		Tag:     tagID,
		Type:    typ,
		Count:   count,
	}

	valLen := uint64(count) * uint64(size)
	var b []byte
	if valLen > 4 {
		if valLen > uint64(e.len()) {
			return newDataFormatErrorf(tagID, "value of %d bytes for %s exceeds segment", valLen, exifKey(blockName, tagID))
		}
		b, err = e.bytesAt(int(valueField), int(valLen))
		if err != nil {
			return newDataFormatErrorf(valueField, "value offset for %s outside of segment", exifKey(blockName, tagID))
		}
		entry.Offset = valueField
		entry.Size = uint32(valLen)
	} else {
		valuePos := entryOffset + 8
		b, err = e.bytesAt(valuePos, int(valLen))
		if err != nil {
			return err
		}
		entry.Offset = uint32(valuePos)
		entry.Size = 4
	}

	if count > 0 {
		entry.Value, err = DecodeValue(b, typ, e.byteOrder)
		if err != nil {
			return err
		}
		entry.Text = FormatValue(entry.Value, typ)
	}

	e.entries = append(e.entries, entry)

	return nil
}

// EncodeEXIF returns copies of the EXIF segments with the user authored fields
// ImageDescription, Copyright, Artist and OwnerName cleared.
//
// TIFF directory entries are fixed width, so the fields are overwritten with zero bytes
// in place, whether or not edits names them; the segment lengths never change.
// An edit for any other tag fails with ErrInvalidFieldWrite.
// The entries must be the result of DecodeEXIF on the same segments.
func EncodeEXIF(segments [][]byte, entries []IFDEntry, edits []EXIFEdit) ([][]byte, error) {
	for _, edit := range edits {
		if block, ok := exifEditableFields[edit.Tag]; !ok || block != edit.Block {
			return nil, newErrorf(ErrInvalidFieldWrite, exifKey(edit.Block, edit.Tag), "EXIF tag is read-only")
		}
	}

	out := make([][]byte, len(segments))
	for i, segment := range segments {
		out[i] = append([]byte(nil), segment...)
	}

	for _, entry := range entries {
		if block, ok := exifEditableFields[entry.Tag]; !ok || block != entry.Block {
			continue
		}
		if entry.Segment < 0 || entry.Segment >= len(out) {
			return nil, newDataFormatErrorf(entry.Segment, "no EXIF segment for %s", entry.Key())
		}
		segment := out[entry.Segment]
		end := uint64(entry.Offset) + uint64(entry.Size)
		if end > uint64(len(segment)) {
			return nil, newDataFormatErrorf(entry.Offset, "value of %s outside of segment", entry.Key())
		}
		clear(segment[entry.Offset:end])
	}

	return out, nil
}
