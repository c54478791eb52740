package ipc

import (
	"errors"
	"fmt"

	"github.com/psforever/GameLogger/bitstream"
	"github.com/psforever/GameLogger/gamerecord"
)

// Opcode is the first byte of every wire message.
// Values are stable within a major protocol version.
type Opcode uint8

const (
	OpDisconnect       Opcode = 0
	OpDisconnectResp   Opcode = 1
	OpIdentify         Opcode = 2
	OpIdentifyResp     Opcode = 3
	OpStartCapture     Opcode = 4
	OpStartCaptureResp Opcode = 5
	OpStopCapture      Opcode = 6
	OpStopCaptureResp  Opcode = 7
	OpNewRecords       Opcode = 8
)

var opcodeNames = map[Opcode]string{
	OpDisconnect:       "DISCONNECT",
	OpDisconnectResp:   "DISCONNECT_RESP",
	OpIdentify:         "IDENTIFY",
	OpIdentifyResp:     "IDENTIFY_RESP",
	OpStartCapture:     "START_CAPTURE",
	OpStartCaptureResp: "START_CAPTURE_RESP",
	OpStopCapture:      "STOP_CAPTURE",
	OpStopCaptureResp:  "STOP_CAPTURE_RESP",
	OpNewRecords:       "NEW_RECORDS",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE_%d", uint8(o))
}

// DisconnectReason explains a DISCONNECT.
type DisconnectReason uint8

const (
	DisconnectDetach         DisconnectReason = 0
	DisconnectProgramClosing DisconnectReason = 1
)

// StartCaptureReason explains a START_CAPTURE.
type StartCaptureReason uint8

const StartUserRequest StartCaptureReason = 0

// StopCaptureReason explains a STOP_CAPTURE.
type StopCaptureReason uint8

const (
	StopUserRequest    StopCaptureReason = 0
	StopProgramExiting StopCaptureReason = 1
)

// CaptureError is the error code of a rejected capture request.
type CaptureError uint8

const (
	CaptureErrorNotCapturing CaptureError = 0
	CaptureErrorUnknown      CaptureError = 1
)

// Message is a decoded wire message. The set of implementations is closed.
type Message interface {
	Opcode() Opcode
	encodePayload(w *bitstream.Writer) error
}

type Disconnect struct {
	Reason DisconnectReason
}

type DisconnectResp struct{}

// Identify is the first message an instrumented client sends.
type Identify struct {
	Major uint8
	Minor uint8
	PID   uint32
}

type IdentifyResp struct {
	Accepted bool
}

type StartCapture struct {
	Reason StartCaptureReason
}

type StartCaptureResp struct {
	Okay  bool
	Error CaptureError
}

type StopCapture struct {
	Reason StopCaptureReason
}

type StopCaptureResp struct {
	Okay  bool
	Error CaptureError
}

// NewRecords carries one or more game records, in capture order.
type NewRecords struct {
	Records []gamerecord.Record
}

func (Disconnect) Opcode() Opcode       { return OpDisconnect }
func (DisconnectResp) Opcode() Opcode   { return OpDisconnectResp }
func (Identify) Opcode() Opcode         { return OpIdentify }
func (IdentifyResp) Opcode() Opcode     { return OpIdentifyResp }
func (StartCapture) Opcode() Opcode     { return OpStartCapture }
func (StartCaptureResp) Opcode() Opcode { return OpStartCaptureResp }
func (StopCapture) Opcode() Opcode      { return OpStopCapture }
func (StopCaptureResp) Opcode() Opcode  { return OpStopCaptureResp }
func (NewRecords) Opcode() Opcode       { return OpNewRecords }

func (m Disconnect) encodePayload(w *bitstream.Writer) error {
	w.WriteU8(uint8(m.Reason))
	return nil
}

func (DisconnectResp) encodePayload(*bitstream.Writer) error { return nil }

func (m Identify) encodePayload(w *bitstream.Writer) error {
	w.WriteU8(m.Major)
	w.WriteU8(m.Minor)
	w.WriteU32(m.PID)
	return nil
}

func (m IdentifyResp) encodePayload(w *bitstream.Writer) error {
	w.WriteBool(m.Accepted)
	return nil
}

func (m StartCapture) encodePayload(w *bitstream.Writer) error {
	w.WriteU8(uint8(m.Reason))
	return nil
}

func (m StartCaptureResp) encodePayload(w *bitstream.Writer) error {
	w.WriteBool(m.Okay)
	w.WriteU8(uint8(m.Error))
	return nil
}

func (m StopCapture) encodePayload(w *bitstream.Writer) error {
	w.WriteU8(uint8(m.Reason))
	return nil
}

func (m StopCaptureResp) encodePayload(w *bitstream.Writer) error {
	w.WriteBool(m.Okay)
	w.WriteU8(uint8(m.Error))
	return nil
}

func (m NewRecords) encodePayload(w *bitstream.Writer) error {
	if len(m.Records) == 0 {
		return gamerecord.ErrRecordNotSet
	}
	for _, rec := range m.Records {
		if err := gamerecord.Encode(w, rec); err != nil {
			return err
		}
	}
	return nil
}

// Encode serializes m as opcode followed by payload.
// A NEW_RECORDS message with no records, or with a record lacking a body,
// fails with gamerecord.ErrRecordNotSet.
func Encode(m Message) ([]byte, error) {
	w := bitstream.NewWriter(16)
	w.WriteU8(uint8(m.Opcode()))
	if err := m.encodePayload(w); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Opcode(), err)
	}
	return w.Bytes(), nil
}

// ErrUnknownOpcode is wrapped by a DecodeError for unrecognised opcodes.
var ErrUnknownOpcode = errors.New("unknown opcode")

// ErrTrailingBytes is wrapped by a DecodeError when a message is longer
// than its payload layout.
var ErrTrailingBytes = errors.New("trailing bytes after payload")

// DecodeError reports a malformed message. Offset is the cursor position at
// which decoding stopped.
type DecodeError struct {
	Opcode Opcode
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.Opcode, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if err is a *DecodeError.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// Decode parses one complete message. The message is decoded as a unit:
// if any part of it is malformed, nothing is returned.
func Decode(data []byte) (Message, error) {
	c := bitstream.NewCursor(data)
	raw, err := c.ReadU8()
	if err != nil {
		return nil, &DecodeError{Offset: 0, Err: err}
	}
	op := Opcode(raw)

	msg, err := decodePayload(op, c)
	if err == nil && c.Remaining() > 0 {
		err = fmt.Errorf("%w: %d", ErrTrailingBytes, c.Remaining())
	}
	if err != nil {
		return nil, &DecodeError{Opcode: op, Offset: c.Pos(), Err: err}
	}
	return msg, nil
}

func decodePayload(op Opcode, c *bitstream.Cursor) (Message, error) {
	switch op {
	case OpDisconnect:
		v, err := c.ReadU8()
		return Disconnect{Reason: DisconnectReason(v)}, err
	case OpDisconnectResp:
		return DisconnectResp{}, nil
	case OpIdentify:
		var m Identify
		var err error
		if m.Major, err = c.ReadU8(); err != nil {
			return nil, err
		}
		if m.Minor, err = c.ReadU8(); err != nil {
			return nil, err
		}
		if m.PID, err = c.ReadU32(); err != nil {
			return nil, err
		}
		return m, nil
	case OpIdentifyResp:
		v, err := c.ReadBool()
		return IdentifyResp{Accepted: v}, err
	case OpStartCapture:
		v, err := c.ReadU8()
		return StartCapture{Reason: StartCaptureReason(v)}, err
	case OpStartCaptureResp:
		okay, code, err := decodeResp(c)
		return StartCaptureResp{Okay: okay, Error: code}, err
	case OpStopCapture:
		v, err := c.ReadU8()
		return StopCapture{Reason: StopCaptureReason(v)}, err
	case OpStopCaptureResp:
		okay, code, err := decodeResp(c)
		return StopCaptureResp{Okay: okay, Error: code}, err
	case OpNewRecords:
		return decodeNewRecords(c)
	default:
		return nil, ErrUnknownOpcode
	}
}

func decodeResp(c *bitstream.Cursor) (bool, CaptureError, error) {
	okay, err := c.ReadBool()
	if err != nil {
		return false, 0, err
	}
	code, err := c.ReadU8()
	return okay, CaptureError(code), err
}

func decodeNewRecords(c *bitstream.Cursor) (Message, error) {
	if c.Remaining() == 0 {
		return nil, errors.New("no records")
	}
	var records []gamerecord.Record
	for c.Remaining() > 0 {
		rec, err := gamerecord.Decode(c)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	return NewRecords{Records: records}, nil
}
