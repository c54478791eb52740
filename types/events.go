package types

// SessionEventKind names a capture session lifecycle transition.
type SessionEventKind string

const (
	EventAttaching       SessionEventKind = "attaching"
	EventAttached        SessionEventKind = "attached"
	EventDetaching       SessionEventKind = "detaching"
	EventDetached        SessionEventKind = "detached"
	EventCaptureStarting SessionEventKind = "capture_starting"
	EventCaptureStarted  SessionEventKind = "capture_started"
	EventCaptureStopping SessionEventKind = "capture_stopping"
	EventCaptureStopped  SessionEventKind = "capture_stopped"
	// EventCaptureRejected follows a starting/stopping event when the peer
	// refused the request.
	EventCaptureRejected SessionEventKind = "capture_rejected"
	// EventCaptureNoResponse follows a starting/stopping event when the peer
	// did not answer in time.
	EventCaptureNoResponse SessionEventKind = "capture_no_response"
)

// IsTerminal returns true for events after which the session is detached.
func (k SessionEventKind) IsTerminal() bool {
	return k == EventDetached
}

// SessionMeta identifies a logger instance and, once known, its target.
type SessionMeta struct {
	LoggerID    int
	PID         uint32
	ProcessName string
}
