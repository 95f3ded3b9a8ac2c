// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// TiffType represents the basic TIFF tag data types.
type TiffType uint16

const (
	TypeUnsignedByte  TiffType = 1
	TypeASCII         TiffType = 2
	TypeUnsignedShort TiffType = 3
	TypeUnsignedLong  TiffType = 4
	TypeUnsignedRat   TiffType = 5
	TypeSignedByte    TiffType = 6
	TypeUndefined     TiffType = 7
	TypeSignedShort   TiffType = 8
	TypeSignedLong    TiffType = 9
	TypeSignedRat     TiffType = 10
	TypeFloat         TiffType = 11
	TypeDouble        TiffType = 12
)

// Size in bytes of each type.
var tiffTypeSize = map[TiffType]uint32{
	TypeUnsignedByte:  1,
	TypeASCII:         1,
	TypeUnsignedShort: 2,
	TypeUnsignedLong:  4,
	TypeUnsignedRat:   8,
	TypeSignedByte:    1,
	TypeUndefined:     1,
	TypeSignedShort:   2,
	TypeSignedLong:    4,
	TypeSignedRat:     8,
	TypeFloat:         4,
	TypeDouble:        8,
}

var tiffTypeNames = map[TiffType]string{
	TypeUnsignedByte:  "UnsignedByte",
	TypeASCII:         "ASCII",
	TypeUnsignedShort: "UnsignedShort",
	TypeUnsignedLong:  "UnsignedLong",
	TypeUnsignedRat:   "UnsignedRat",
	TypeSignedByte:    "SignedByte",
	TypeUndefined:     "Undefined",
	TypeSignedShort:   "SignedShort",
	TypeSignedLong:    "SignedLong",
	TypeSignedRat:     "SignedRat",
	TypeFloat:         "Float",
	TypeDouble:        "Double",
}

func (t TiffType) String() string {
	if s, ok := tiffTypeNames[t]; ok {
		return s
	}
	return "TiffType(" + strconv.Itoa(int(t)) + ")"
}

// TypeSize returns the size in bytes of one value of type t.
func TypeSize(t TiffType) (uint32, error) {
	size, ok := tiffTypeSize[t]
	if !ok {
		return 0, newDataFormatErrorf(uint16(t), "unknown TIFF type %d", t)
	}
	return size, nil
}

// isRaw reports whether values of type t are passed through as raw bytes.
func (t TiffType) isRaw() bool {
	return t == TypeUndefined || t == TypeFloat || t == TypeDouble
}

// DecodeValue decodes b as values of type t in the given byte order.
//
// Integers are returned as uint8, int8, uint16, int16, uint32 or int32 and rationals as
// Rat[uint32] or Rat[int32]. If b holds more than one value, a slice of that type is returned.
// ASCII is returned as a string trimmed of trailing NULs and whitespace.
// Undefined, float and double values are returned as a copy of the raw bytes.
func DecodeValue(b []byte, t TiffType, byteOrder binary.ByteOrder) (any, error) {
	size, err := TypeSize(t)
	if err != nil {
		return nil, err
	}

	switch {
	case t == TypeASCII:
		return trimTrailingNulls(b), nil
	case t.isRaw():
		return append([]byte(nil), b...), nil
	}

	count := len(b) / int(size)
	if count == 0 {
		return nil, newDataFormatErrorf(len(b), "%d bytes is too short for a value of type %s", len(b), t)
	}
	b = b[:count*int(size)]

	switch t {
	case TypeUnsignedByte:
		if count == 1 {
			return b[0], nil
		}
		return append([]byte(nil), b...), nil
	case TypeSignedByte:
		return decodeValues(b, 1, func(b []byte) int8 { return int8(b[0]) }), nil
	case TypeUnsignedShort:
		return decodeValues(b, 2, byteOrder.Uint16), nil
	case TypeSignedShort:
		return decodeValues(b, 2, func(b []byte) int16 { return int16(byteOrder.Uint16(b)) }), nil
	case TypeUnsignedLong:
		return decodeValues(b, 4, byteOrder.Uint32), nil
	case TypeSignedLong:
		return decodeValues(b, 4, func(b []byte) int32 { return int32(byteOrder.Uint32(b)) }), nil
	case TypeUnsignedRat:
		return decodeValues(b, 8, func(b []byte) Rat[uint32] {
			return Rat[uint32]{num: byteOrder.Uint32(b[:4]), den: byteOrder.Uint32(b[4:])}
		}), nil
	case TypeSignedRat:
		return decodeValues(b, 8, func(b []byte) Rat[int32] {
			return Rat[int32]{num: int32(byteOrder.Uint32(b[:4])), den: int32(byteOrder.Uint32(b[4:]))}
		}), nil
	}

	return nil, newDataFormatErrorf(uint16(t), "unknown TIFF type %d", t)
}

// decodeValues decodes b in chunks of size bytes.
// A single value is returned as T, more than one as []T.
func decodeValues[T any](b []byte, size int, decode func([]byte) T) any {
	count := len(b) / size
	if count == 1 {
		return decode(b)
	}
	values := make([]T, count)
	for i := range values {
		values[i] = decode(b[i*size : (i+1)*size])
	}
	return values
}

// FormatValue returns a human readable representation of v, a value decoded as type t.
func FormatValue(v any, t TiffType) string {
	if t.isRaw() {
		b, _ := v.([]byte)
		return fmt.Sprintf("%d bytes of binary data: % x", len(b), b)
	}

	switch vv := v.(type) {
	case string:
		return vv
	case []byte:
		return joinValues(vv)
	case []int8:
		return joinValues(vv)
	case []uint16:
		return joinValues(vv)
	case []int16:
		return joinValues(vv)
	case []uint32:
		return joinValues(vv)
	case []int32:
		return joinValues(vv)
	case []Rat[uint32]:
		return joinValues(vv)
	case []Rat[int32]:
		return joinValues(vv)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", vv)
	}
}

func joinValues[T any](values []T) string {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%v", v)
	}
	return sb.String()
}
