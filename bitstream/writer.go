package bitstream

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer accumulates an encoded byte sequence.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with capacity preallocated for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Reset empties the writer, keeping its allocated capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteU16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *Writer) WriteU32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *Writer) WriteU64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// WriteBytes appends raw bytes with no prefix.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteString appends a variable-length string field.
func (w *Writer) WriteString(s string) error {
	return w.writeVar(FieldString, []byte(s))
}

// WriteOctetStream appends a variable-length octet-stream field.
func (w *Writer) WriteOctetStream(b []byte) error {
	return w.writeVar(FieldOctetStream, b)
}

func (w *Writer) writeVar(kind FieldKind, b []byte) error {
	if uint64(len(b)) > math.MaxUint32 {
		return fmt.Errorf("bitstream: %s of %d bytes exceeds maximum field length", kind, len(b))
	}
	f := VarFieldFor(kind, len(b))
	w.WriteU8(f.Control())
	switch f.LengthWidth {
	case 1:
		w.WriteU8(uint8(len(b)))
	case 2:
		w.WriteU16(uint16(len(b)))
	default:
		w.WriteU32(uint32(len(b)))
	}
	w.WriteBytes(b)
	return nil
}
