// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"encoding/binary"
)

func newStreamReader(b []byte, byteOrder binary.ByteOrder, errKind error) *streamReader {
	return &streamReader{
		buf:       b,
		byteOrder: byteOrder,
		errKind:   errKind,
	}
}

// streamReader is a bounds checked cursor over a byte slice.
// Every read either returns the requested data or an error wrapping errKind;
// it never indexes outside buf.
// Note that this is not thread safe.
type streamReader struct {
	buf       []byte
	offset    int
	byteOrder binary.ByteOrder

	// The sentinel error used for out of bounds reads.
	errKind error
}

func (e *streamReader) pos() int {
	return e.offset
}

func (e *streamReader) len() int {
	return len(e.buf)
}

func (e *streamReader) remaining() int {
	return len(e.buf) - e.offset
}

func (e *streamReader) inBounds(pos, n int) bool {
	return pos >= 0 && n >= 0 && pos <= len(e.buf) && n <= len(e.buf)-pos
}

func (e *streamReader) boundsErr(pos, n int) error {
	return newErrorf(e.errKind, pos, "read of %d bytes at offset %d exceeds %d bytes of data", n, pos, len(e.buf))
}

func (e *streamReader) seek(pos int) error {
	if !e.inBounds(pos, 0) {
		return e.boundsErr(pos, 0)
	}
	e.offset = pos
	return nil
}

func (e *streamReader) skip(n int) error {
	return e.seek(e.offset + n)
}

// readBytesVolatile reads n bytes from the current position.
// The returned slice shares memory with the underlying buffer.
func (e *streamReader) readBytesVolatile(n int) ([]byte, error) {
	b, err := e.bytesAt(e.offset, n)
	if err != nil {
		return nil, err
	}
	e.offset += n
	return b, nil
}

// bytesAt returns n bytes at pos without moving the cursor.
func (e *streamReader) bytesAt(pos, n int) ([]byte, error) {
	if !e.inBounds(pos, n) {
		return nil, e.boundsErr(pos, n)
	}
	return e.buf[pos : pos+n], nil
}

func (e *streamReader) read1() (uint8, error) {
	b, err := e.readBytesVolatile(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (e *streamReader) read2() (uint16, error) {
	b, err := e.readBytesVolatile(2)
	if err != nil {
		return 0, err
	}
	return e.byteOrder.Uint16(b), nil
}

func (e *streamReader) read4() (uint32, error) {
	b, err := e.readBytesVolatile(4)
	if err != nil {
		return 0, err
	}
	return e.byteOrder.Uint32(b), nil
}

func (e *streamReader) read4At(pos int) (uint32, error) {
	b, err := e.bytesAt(pos, 4)
	if err != nil {
		return 0, err
	}
	return e.byteOrder.Uint32(b), nil
}

// preservePos runs f and restores the cursor afterwards.
func (e *streamReader) preservePos(f func() error) error {
	pos := e.offset
	err := f()
	e.offset = pos
	return err
}
