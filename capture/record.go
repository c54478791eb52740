package capture

import (
	"encoding/binary"
	"fmt"

	"github.com/psforever/GameLogger/bitstream"
	"github.com/psforever/GameLogger/gamerecord"
)

// RecordType is the opcode of a framed capture-file record.
type RecordType uint8

const (
	RecordMetadata RecordType = 0
	RecordGame     RecordType = 1
)

func (t RecordType) String() string {
	switch t {
	case RecordMetadata:
		return "metadata"
	case RecordGame:
		return "game"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// RecordHeaderSize is the opcode byte plus the u32 payload length.
const RecordHeaderSize = 5

// MaxRecordPayload bounds a single record's payload. Larger lengths are
// treated as corruption rather than waited for.
const MaxRecordPayload = 64 * 1024 * 1024

// Record is a framed unit of a capture file: *Metadata or Game.
type Record interface {
	Type() RecordType
	encodePayload(w *bitstream.Writer) error
	payloadSize() int
}

// Metadata carries the capture's display name and description.
type Metadata struct {
	Name        string
	Description string
}

// Game wraps one game record.
type Game struct {
	gamerecord.Record
}

func (Metadata) Type() RecordType { return RecordMetadata }
func (Game) Type() RecordType     { return RecordGame }

func (m Metadata) encodePayload(w *bitstream.Writer) error {
	if err := w.WriteString(m.Name); err != nil {
		return err
	}
	return w.WriteString(m.Description)
}

func (m Metadata) payloadSize() int {
	return bitstream.VarSize(len(m.Name)) + bitstream.VarSize(len(m.Description))
}

func (g Game) encodePayload(w *bitstream.Writer) error {
	return gamerecord.Encode(w, g.Record)
}

func (g Game) payloadSize() int { return g.Record.EncodedSize() }

// FramedSize returns the encoded size of rec including its frame header.
func FramedSize(rec Record) int {
	return RecordHeaderSize + rec.payloadSize()
}

// EncodeRecord appends rec as opcode, u32 length, payload.
func EncodeRecord(w *bitstream.Writer, rec Record) error {
	w.WriteU8(uint8(rec.Type()))
	lengthAt := w.Len()
	w.WriteU32(0)
	if err := rec.encodePayload(w); err != nil {
		return fmt.Errorf("encode %s record: %w", rec.Type(), err)
	}
	n := w.Len() - lengthAt - 4
	binary.LittleEndian.PutUint32(w.Bytes()[lengthAt:], uint32(n))
	return nil
}

// DecodeRecord decodes one framed record from c.
//
// If c does not yet hold the whole record, DecodeRecord returns a
// *NeedMoreDataError and leaves the cursor where it started. Any other error
// means the bytes are malformed.
func DecodeRecord(c *bitstream.Cursor) (Record, error) {
	start := c.Pos()
	if c.Remaining() < RecordHeaderSize {
		return nil, &NeedMoreDataError{Needed: RecordHeaderSize - c.Remaining()}
	}

	op, _ := c.ReadU8()
	length, _ := c.ReadU32()
	if length > MaxRecordPayload {
		return nil, fmt.Errorf("%s record length %d exceeds maximum %d", RecordType(op), length, MaxRecordPayload)
	}
	if int(length) > c.Remaining() {
		needed := int(length) - c.Remaining()
		_ = c.Seek(start)
		return nil, &NeedMoreDataError{Needed: needed}
	}

	payload, err := c.Sub(int(length))
	if err != nil {
		return nil, err
	}

	var rec Record
	switch RecordType(op) {
	case RecordMetadata:
		rec, err = decodeMetadata(payload)
	case RecordGame:
		var gr gamerecord.Record
		gr, err = gamerecord.Decode(payload)
		rec = Game{Record: gr}
	default:
		return nil, fmt.Errorf("invalid record type %d", op)
	}
	if err != nil {
		return nil, fmt.Errorf("%s record: %w", RecordType(op), err)
	}
	if payload.Remaining() != 0 {
		return nil, fmt.Errorf("%s record: %d unread payload bytes", RecordType(op), payload.Remaining())
	}
	return rec, nil
}

func decodeMetadata(c *bitstream.Cursor) (Metadata, error) {
	name, err := c.ReadString()
	if err != nil {
		return Metadata{}, err
	}
	desc, err := c.ReadString()
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{Name: name, Description: desc}, nil
}
