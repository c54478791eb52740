// Package gamerecord defines the in-game event records streamed out of an
// instrumented client and stored in capture files.
package gamerecord

import (
	"errors"
	"fmt"

	"github.com/psforever/GameLogger/bitstream"
)

// ErrRecordNotSet is returned when encoding a record that carries no body.
var ErrRecordNotSet = errors.New("gamerecord: record body not set")

// Kind is the opcode byte identifying a record variant.
type Kind uint8

const (
	KindCryptoState Kind = 0
	KindPacket      Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindCryptoState:
		return "crypto_state"
	case KindPacket:
		return "packet"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// PacketType is the session layer a packet belongs to.
type PacketType uint8

const (
	PacketLogin PacketType = 0
	PacketGame  PacketType = 1
)

func (p PacketType) String() string {
	switch p {
	case PacketLogin:
		return "login"
	case PacketGame:
		return "game"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// Destination is the direction a packet was travelling.
type Destination uint8

const (
	ToServer Destination = 0
	ToClient Destination = 1
)

func (d Destination) String() string {
	switch d {
	case ToServer:
		return "server"
	case ToClient:
		return "client"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// Body is implemented by every record variant.
type Body interface {
	Kind() Kind
	encode(w *bitstream.Writer) error
	size() int
}

// CryptoState marks a change of the client's cipher state. It has no fields.
type CryptoState struct{}

func (CryptoState) Kind() Kind                     { return KindCryptoState }
func (CryptoState) encode(*bitstream.Writer) error { return nil }
func (CryptoState) size() int                      { return 0 }

// Packet is one application packet observed by the client.
type Packet struct {
	Type        PacketType
	Destination Destination
	Payload     []byte
}

func (Packet) Kind() Kind { return KindPacket }

func (p Packet) encode(w *bitstream.Writer) error {
	w.WriteU8(uint8(p.Type))
	w.WriteU8(uint8(p.Destination))
	return w.WriteOctetStream(p.Payload)
}

func (p Packet) size() int { return 2 + bitstream.VarSize(len(p.Payload)) }

// Record is a timestamped record body.
type Record struct {
	// Timestamp is a capture-relative tick counter supplied by the client.
	Timestamp uint64
	Body      Body
}

// Packet returns the packet body, if the record carries one.
func (r Record) Packet() (Packet, bool) {
	p, ok := r.Body.(Packet)
	return p, ok
}

// EncodedSize returns the number of bytes Encode will produce.
func (r Record) EncodedSize() int {
	if r.Body == nil {
		return 0
	}
	return 8 + 1 + r.Body.size()
}

// Encode appends the record to w: timestamp, kind opcode, body.
func Encode(w *bitstream.Writer, r Record) error {
	if r.Body == nil {
		return ErrRecordNotSet
	}
	w.WriteU64(r.Timestamp)
	w.WriteU8(uint8(r.Body.Kind()))
	return r.Body.encode(w)
}

// Marshal encodes a single record into a new buffer.
func Marshal(r Record) ([]byte, error) {
	w := bitstream.NewWriter(r.EncodedSize())
	if err := Encode(w, r); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decode reads one record from c.
func Decode(c *bitstream.Cursor) (Record, error) {
	ts, err := c.ReadU64()
	if err != nil {
		return Record{}, err
	}
	op, err := c.ReadU8()
	if err != nil {
		return Record{}, err
	}

	switch Kind(op) {
	case KindCryptoState:
		return Record{Timestamp: ts, Body: CryptoState{}}, nil
	case KindPacket:
		pt, err := c.ReadU8()
		if err != nil {
			return Record{}, err
		}
		dst, err := c.ReadU8()
		if err != nil {
			return Record{}, err
		}
		payload, err := c.ReadOctetStream()
		if err != nil {
			return Record{}, err
		}
		return Record{Timestamp: ts, Body: Packet{
			Type:        PacketType(pt),
			Destination: Destination(dst),
			Payload:     payload,
		}}, nil
	default:
		return Record{}, &UnknownKindError{Kind: op}
	}
}

// UnknownKindError reports an unrecognised record opcode.
type UnknownKindError struct {
	Kind uint8
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("gamerecord: unknown record kind %d", e.Kind)
}
