package runtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/psforever/GameLogger/ipc"
	"github.com/psforever/GameLogger/transport"
	"github.com/psforever/GameLogger/types"
)

// HandshakeErrorKind classifies handshake failures.
type HandshakeErrorKind int

const (
	// HandshakeTransport indicates IDENTIFY was not received or IDENTIFY_RESP
	// could not be written.
	HandshakeTransport HandshakeErrorKind = iota
	// HandshakeDecode indicates the first message was malformed or not IDENTIFY.
	HandshakeDecode
	// HandshakeVersion indicates the peer speaks an incompatible protocol version.
	HandshakeVersion
	// HandshakeIdentity indicates the peer is not the process being attached.
	HandshakeIdentity
)

func (k HandshakeErrorKind) String() string {
	switch k {
	case HandshakeTransport:
		return "transport"
	case HandshakeDecode:
		return "decode"
	case HandshakeVersion:
		return "version_incompatible"
	case HandshakeIdentity:
		return "identity"
	default:
		return fmt.Sprintf("HandshakeErrorKind(%d)", int(k))
	}
}

// HandshakeError is returned by Handshake for every failure path.
type HandshakeError struct {
	Kind HandshakeErrorKind
	Msg  string
	Err  error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("handshake %s: %s", e.Kind, e.Msg)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// IsHandshakeError reports whether err is a *HandshakeError of the given kind.
func IsHandshakeError(err error, kind HandshakeErrorKind) bool {
	var hsErr *HandshakeError
	if errors.As(err, &hsErr) {
		return hsErr.Kind == kind
	}
	return false
}

// HandshakeConfig parameterises Handshake.
type HandshakeConfig struct {
	// ExpectedPID is the process the caller attempted to attach to.
	ExpectedPID uint32
	// Version is the controller's own protocol version.
	Version      types.ProtocolVersion
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Handshake runs the one-shot identify exchange on a freshly accepted
// transport. IDENTIFY_RESP{accepted:true} is sent only when the peer's
// version and PID both match; on failure nothing is sent and the transport
// is left as is.
func Handshake(t transport.Transport, cfg HandshakeConfig) (ipc.Identify, error) {
	payload, err := t.ReadMessage(cfg.ReadTimeout)
	if err != nil {
		return ipc.Identify{}, &HandshakeError{Kind: HandshakeTransport, Msg: "no IDENTIFY received", Err: err}
	}

	msg, err := ipc.Decode(payload)
	if err != nil {
		return ipc.Identify{}, &HandshakeError{Kind: HandshakeDecode, Msg: "malformed IDENTIFY", Err: err}
	}
	ident, ok := msg.(ipc.Identify)
	if !ok {
		return ipc.Identify{}, &HandshakeError{
			Kind: HandshakeDecode,
			Msg:  fmt.Sprintf("expected %s, got %s", ipc.OpIdentify, msg.Opcode()),
		}
	}

	peer := types.ProtocolVersion{Major: ident.Major, Minor: ident.Minor}
	if !cfg.Version.Compatible(peer) {
		return ident, &HandshakeError{
			Kind: HandshakeVersion,
			Msg:  fmt.Sprintf("peer speaks protocol %s, expected %s", peer, cfg.Version),
		}
	}
	if ident.PID != cfg.ExpectedPID {
		return ident, &HandshakeError{
			Kind: HandshakeIdentity,
			Msg:  fmt.Sprintf("peer identified as pid %d, expected %d", ident.PID, cfg.ExpectedPID),
		}
	}

	resp, err := ipc.Encode(ipc.IdentifyResp{Accepted: true})
	if err != nil {
		return ident, &HandshakeError{Kind: HandshakeTransport, Msg: "encode IDENTIFY_RESP", Err: err}
	}
	if err := t.WriteMessage(resp, cfg.WriteTimeout); err != nil {
		return ident, &HandshakeError{Kind: HandshakeTransport, Msg: "write IDENTIFY_RESP", Err: err}
	}
	return ident, nil
}
