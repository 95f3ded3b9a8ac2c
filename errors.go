// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound is returned when the image file cannot be opened.
	ErrFileNotFound = errors.New("jpegmeta: file not found")
	// ErrFileType is returned when the stream does not start with a JPEG SOI marker.
	ErrFileType = errors.New("jpegmeta: invalid file type")
	// ErrFileCorrupt is returned for truncated streams, a missing EOI,
	// malformed IPTC lengths and invalid marker sequences.
	ErrFileCorrupt = errors.New("jpegmeta: file corrupt")
	// ErrDataFormat is returned for malformed TIFF/EXIF data and
	// for segments that do not fit into a JPEG marker segment.
	ErrDataFormat = errors.New("jpegmeta: invalid data format")
	// ErrInvalidFieldWrite is returned when an edit names a read-only field.
	ErrInvalidFieldWrite = errors.New("jpegmeta: field is read-only")
	// ErrNotImplemented is returned for unsupported IPTC character sets.
	ErrNotImplemented = errors.New("jpegmeta: not implemented")
	// ErrDataNotFound is returned when an Image is used out of lifecycle order,
	// e.g. written before it was read.
	ErrDataNotFound = errors.New("jpegmeta: no data read")
)

// Error is the error type returned by this package.
// It wraps one of the sentinel errors above and carries the offending value, if any.
type Error struct {
	// Err is one of the package sentinel errors.
	Err error
	// Msg describes the failure.
	Msg string
	// Value is the offending value or offset, may be nil.
	Value any
}

func (e *Error) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %s", e.Err, e.Msg)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Err, e.Msg, e.Value)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(err error, value any, msg string) error {
	return &Error{Err: err, Msg: msg, Value: value}
}

func newErrorf(err error, value any, format string, args ...any) error {
	return &Error{Err: err, Msg: fmt.Sprintf(format, args...), Value: value}
}

func newDataFormatErrorf(value any, format string, args ...any) error {
	return newErrorf(ErrDataFormat, value, format, args...)
}

func newCorruptErrorf(value any, format string, args ...any) error {
	return newErrorf(ErrFileCorrupt, value, format, args...)
}

// IsInvalidFormat reports whether the error was caused by an invalid or corrupt image.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrFileType) || errors.Is(err, ErrFileCorrupt) || errors.Is(err, ErrDataFormat)
}
