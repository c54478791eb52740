// Package bitstream implements the binary encoding shared by the wire
// protocol and the capture file format.
//
// All fixed-width integers are little-endian. Strings and octet streams use a
// self-describing variable-length prefix (see VarField).
package bitstream

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrEndOfBuffer is returned when a read needs more bytes than remain.
	// The cursor position is unspecified afterwards; callers abandon the parse.
	ErrEndOfBuffer = errors.New("bitstream: end of buffer")
	// ErrBadEncoding is returned when a variable-length control byte is malformed.
	ErrBadEncoding = errors.New("bitstream: bad encoding")
)

// Cursor reads typed values from an immutable byte slice.
// Invariant: 0 <= Pos() <= Len().
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor returns a cursor positioned at the start of data.
// The slice is not copied and must not be mutated while the cursor is in use.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Len returns the total number of bytes behind the cursor.
func (c *Cursor) Len() int { return len(c.data) }

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Seek moves the read offset to pos.
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.data) {
		return fmt.Errorf("bitstream: seek to %d outside [0, %d]", pos, len(c.data))
	}
	c.pos = pos
	return nil
}

// Skip advances the read offset by n bytes.
func (c *Cursor) Skip(n int) error {
	if n < 0 || n > c.Remaining() {
		return ErrEndOfBuffer
	}
	c.pos += n
	return nil
}

// Sub returns a cursor over the next n bytes and advances past them.
// The sub-cursor shares the underlying slice.
func (c *Cursor) Sub(n int) (*Cursor, error) {
	if n < 0 {
		return nil, ErrEndOfBuffer
	}
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	return NewCursor(b), nil
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n > c.Remaining() {
		return nil, ErrEndOfBuffer
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadBool reads one byte; any non-zero value is true.
func (c *Cursor) ReadBool() (bool, error) {
	v, err := c.ReadU8()
	return v != 0, err
}

// ReadBytes reads exactly n bytes into a fresh slice.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrEndOfBuffer
	}
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadString reads a variable-length string field.
func (c *Cursor) ReadString() (string, error) {
	b, err := c.readVar(FieldString)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadOctetStream reads a variable-length octet-stream field.
// The returned slice is a copy and never nil.
func (c *Cursor) ReadOctetStream() ([]byte, error) {
	b, err := c.readVar(FieldOctetStream)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (c *Cursor) readVar(kind FieldKind) ([]byte, error) {
	control, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	width, err := parseControl(control, kind)
	if err != nil {
		return nil, err
	}

	var n uint64
	switch width {
	case 1:
		v, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		n = uint64(v)
	case 2:
		v, err := c.ReadU16()
		if err != nil {
			return nil, err
		}
		n = uint64(v)
	default:
		v, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		n = uint64(v)
	}

	if n > uint64(c.Remaining()) {
		return nil, ErrEndOfBuffer
	}
	return c.take(int(n))
}
