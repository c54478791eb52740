package runtime

import "fmt"

// AttachState is the outer state of a capture session.
type AttachState int

const (
	Detached AttachState = iota
	Attaching
	Attached
	Detaching
)

func (s AttachState) String() string {
	switch s {
	case Detached:
		return "detached"
	case Attaching:
		return "attaching"
	case Attached:
		return "attached"
	case Detaching:
		return "detaching"
	default:
		return fmt.Sprintf("AttachState(%d)", int(s))
	}
}

// CaptureState reports whether the peer is streaming records.
type CaptureState int

const (
	NotCapturing CaptureState = iota
	Capturing
)

func (s CaptureState) String() string {
	if s == Capturing {
		return "capturing"
	}
	return "not_capturing"
}

// PendingState is the control request awaiting a response, if any.
type PendingState int

const (
	PendingNone PendingState = iota
	PendingStartSent
	PendingStopSent
)

func (s PendingState) String() string {
	switch s {
	case PendingStartSent:
		return "start_sent"
	case PendingStopSent:
		return "stop_sent"
	default:
		return "none"
	}
}

// ControlOutcome is the result of a start or stop capture request.
type ControlOutcome int

const (
	// OutcomeAccepted means the peer confirmed the request.
	OutcomeAccepted ControlOutcome = iota
	// OutcomeRejected means the peer answered with okay=false.
	OutcomeRejected
	// OutcomeNoResponse means no answer arrived within the control timeout,
	// or the request could not be sent.
	OutcomeNoResponse
	// OutcomeDisconnected means the session detached while the request was
	// outstanding.
	OutcomeDisconnected
)

func (o ControlOutcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeNoResponse:
		return "no_response"
	case OutcomeDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("ControlOutcome(%d)", int(o))
	}
}

// ControlCallback receives the outcome of a control request. It runs on the
// session's receive goroutine or timer goroutine and must not call Detach.
type ControlCallback func(ControlOutcome)
