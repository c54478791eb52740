package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/psforever/GameLogger/gamerecord"
	"github.com/psforever/GameLogger/ipc"
	"github.com/psforever/GameLogger/log"
	"github.com/psforever/GameLogger/metrics"
	"github.com/psforever/GameLogger/process"
	"github.com/psforever/GameLogger/transport"
	"github.com/psforever/GameLogger/types"
)

// ErrNotAttached is returned by Detach, TryCapture and TryStopCapture when
// the session already detached on its own, such as after the peer
// disconnected.
var ErrNotAttached = errors.New("session is not attached")

// SessionConfig configures a capture session.
type SessionConfig struct {
	// LoggerID is the instance number, 0 to transport.MaxLoggers-1.
	LoggerID int
	// Address is the transport address handed to the injector.
	Address string
	// PayloadPath is the capture library loaded into the target.
	PayloadPath string
	// Version is the protocol version offered in the handshake.
	Version types.ProtocolVersion

	AcceptTimeout  time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ControlTimeout time.Duration
}

// DefaultSessionConfig returns the stock timeouts for logger id.
func DefaultSessionConfig(id int) SessionConfig {
	return SessionConfig{
		LoggerID:       id,
		Address:        transport.DefaultAddress(id),
		Version:        types.WireVersion,
		AcceptTimeout:  time.Second,
		ReadTimeout:    time.Second,
		WriteTimeout:   time.Second,
		ControlTimeout: 3 * time.Second,
	}
}

// Observer receives session lifecycle events. Observers run synchronously on
// whichever goroutine made the transition and must not block.
type Observer func(types.SessionEventKind)

// RecordSink consumes game records forwarded from NEW_RECORDS messages.
type RecordSink interface {
	HandleRecords(records []gamerecord.Record)
}

// RecordSinkFunc adapts a function to RecordSink.
type RecordSinkFunc func([]gamerecord.Record)

// HandleRecords calls f.
func (f RecordSinkFunc) HandleRecords(records []gamerecord.Record) { f(records) }

type pendingRequest struct {
	state    PendingState
	callback ControlCallback
	timer    *time.Timer
	done     chan struct{}
}

// Session drives one logger instance: attaching to a client, the identify
// handshake, start/stop capture round trips and the receive loop.
//
// Calls must be serialised by the caller. Invoking an operation from a state
// that does not permit it panics.
type Session struct {
	config     SessionConfig
	transport  transport.Transport
	injector   Injector
	baseLogger *log.Logger
	collector  *metrics.Collector

	mu        sync.Mutex
	observers []Observer
	sinks     []RecordSink
	attach    AttachState
	capture   CaptureState
	pending   *pendingRequest
	target    process.Target
	peer      ipc.Identify
	logger    *log.Logger
	cancel    context.CancelFunc
	loopDone  chan struct{}
}

// NewSession creates a detached session. A nil injector means the client
// loads the capture library on its own.
func NewSession(config SessionConfig, tr transport.Transport, injector Injector, logger *log.Logger, collector *metrics.Collector) *Session {
	if injector == nil {
		injector = NoopInjector{}
	}
	if logger == nil {
		logger = log.Nop()
	}
	if config.Version == (types.ProtocolVersion{}) {
		config.Version = types.WireVersion
	}
	return &Session{
		config:     config,
		transport:  tr,
		injector:   injector,
		baseLogger: logger,
		logger:     logger,
		collector:  collector,
	}
}

// Subscribe registers an observer for lifecycle events.
func (s *Session) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// OnRecords registers a sink for received game records.
func (s *Session) OnRecords(sink RecordSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// AttachState returns the current attach state.
func (s *Session) AttachState() AttachState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attach
}

// CaptureState returns the current capture state.
func (s *Session) CaptureState() CaptureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

// Pending returns the outstanding control request, if any.
func (s *Session) Pending() PendingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingNone
	}
	return s.pending.state
}

// Target returns the process of the current or most recent attach.
func (s *Session) Target() process.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Peer returns the IDENTIFY received during the last successful handshake.
func (s *Session) Peer() ipc.Identify {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *Session) log() *log.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// Attach starts the transport, injects the capture library into target,
// waits for the peer to connect and runs the handshake. On success the
// receive loop is running and the session is Attached; on failure it is
// Detached again and the returned error is an *AttachError.
func (s *Session) Attach(ctx context.Context, target process.Target) (types.AttachResult, error) {
	s.mu.Lock()
	if s.attach != Detached {
		state := s.attach
		s.mu.Unlock()
		panic(fmt.Sprintf("runtime: Attach called while %s", state))
	}
	s.attach = Attaching
	s.target = target
	s.peer = ipc.Identify{}
	s.logger = s.baseLogger.WithTarget(target.PID, target.Name)
	logger := s.logger
	s.mu.Unlock()

	s.collector.IncAttachAttempt()
	s.emit(types.EventAttaching)
	logger.Info("attaching", map[string]any{"address": s.config.Address})

	peer, err := s.establish(ctx, target)
	if err != nil {
		s.transport.Stop()
		s.mu.Lock()
		s.attach = Detached
		s.mu.Unlock()

		result := AttachResultOf(err)
		s.collector.IncAttachFailure(result.String())
		logger.Error("attach failed", map[string]any{
			"result": result.String(),
			"error":  err.Error(),
		})
		s.emit(types.EventDetached)
		return result, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.attach = Attached
	s.capture = NotCapturing
	s.peer = peer
	s.cancel = cancel
	s.loopDone = done
	s.mu.Unlock()

	s.collector.IncAttachSuccess()
	logger.Info("attached", map[string]any{
		"peer_version": fmt.Sprintf("%d.%d", peer.Major, peer.Minor),
	})
	s.emit(types.EventAttached)

	go s.receiveLoop(loopCtx, done)
	return types.AttachSuccess, nil
}

func (s *Session) establish(ctx context.Context, target process.Target) (ipc.Identify, error) {
	if err := s.transport.Start(); err != nil {
		return ipc.Identify{}, &AttachError{Result: types.AttachPipeServerStartup, Msg: "start transport", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return ipc.Identify{}, &AttachError{Result: types.AttachUnknownFailure, Msg: "attach cancelled", Err: err}
	}

	res, err := s.injector.Inject(ctx, InjectRequest{
		Target:      target,
		PayloadPath: s.config.PayloadPath,
		Address:     s.config.Address,
		LoggerID:    s.config.LoggerID,
	})
	if res != InjectSuccess {
		return ipc.Identify{}, &AttachError{Result: attachResultForInject(res), Msg: "inject capture library", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return ipc.Identify{}, &AttachError{Result: types.AttachUnknownFailure, Msg: "attach cancelled", Err: err}
	}

	if err := s.transport.Accept(s.config.AcceptTimeout); err != nil {
		return ipc.Identify{}, &AttachError{Result: types.AttachDllConnection, Msg: "wait for peer connection", Err: err}
	}

	peer, err := Handshake(s.transport, HandshakeConfig{
		ExpectedPID:  target.PID,
		Version:      s.config.Version,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	})
	if err != nil {
		return peer, &AttachError{Result: types.AttachDllHandshake, Msg: "identify handshake", Err: err}
	}
	return peer, nil
}

// Capture asks the peer to start streaming records. cb, if non-nil, receives
// the outcome once the peer answers or the control timeout elapses. A
// non-nil error means START_CAPTURE could not be sent; cb has then already
// been called with OutcomeNoResponse.
func (s *Session) Capture(cb ControlCallback) error {
	return s.control(PendingStartSent, cb, true)
}

// StopCapture asks the peer to stop streaming records. It mirrors Capture.
func (s *Session) StopCapture(cb ControlCallback) error {
	return s.control(PendingStopSent, cb, true)
}

// TryCapture is Capture for callers that can race a peer disconnect. If the
// session is no longer attached it calls cb with OutcomeDisconnected and
// returns ErrNotAttached instead of panicking.
func (s *Session) TryCapture(cb ControlCallback) error {
	return s.control(PendingStartSent, cb, false)
}

// TryStopCapture is StopCapture with the same treatment as TryCapture.
func (s *Session) TryStopCapture(cb ControlCallback) error {
	return s.control(PendingStopSent, cb, false)
}

// control checks the state and registers the pending request under one
// lock hold, then sends the request. strict turns a lost attachment into a
// panic; misuse while attached always panics.
func (s *Session) control(kind PendingState, cb ControlCallback, strict bool) error {
	name, want := "Capture", NotCapturing
	event := types.EventCaptureStarting
	var m ipc.Message = ipc.StartCapture{Reason: ipc.StartUserRequest}
	if kind == PendingStopSent {
		name, want = "StopCapture", Capturing
		event = types.EventCaptureStopping
		m = ipc.StopCapture{Reason: ipc.StopUserRequest}
	}

	s.mu.Lock()
	if !strict && s.attach != Attached {
		s.mu.Unlock()
		if cb != nil {
			cb(OutcomeDisconnected)
		}
		return ErrNotAttached
	}
	if s.attach != Attached || s.capture != want || s.pending != nil {
		msg := s.describeLocked()
		s.mu.Unlock()
		panic("runtime: " + name + " called while " + msg)
	}
	p := s.beginPendingLocked(kind, cb)
	s.mu.Unlock()

	s.emit(event)
	return s.sendControl(p, m)
}

// Detach ends the session. A running capture is stopped first, the peer is
// told to disconnect, and the call returns once the receive loop has exited.
// If the session already detached on its own, Detach waits for that to
// finish and returns ErrNotAttached.
func (s *Session) Detach() error {
	s.mu.Lock()
	switch s.attach {
	case Attached:
	case Detaching, Detached:
		done := s.loopDone
		s.mu.Unlock()
		if done != nil {
			<-done
		}
		return ErrNotAttached
	default:
		state := s.attach
		s.mu.Unlock()
		panic(fmt.Sprintf("runtime: Detach called while %s", state))
	}
	s.attach = Detaching
	logger := s.logger
	s.mu.Unlock()

	s.emit(types.EventDetaching)
	logger.Info("detaching", nil)

	s.waitPending()
	s.stopForDetach(logger)

	if msg, err := ipc.Encode(ipc.Disconnect{Reason: ipc.DisconnectDetach}); err == nil {
		if err := s.transport.WriteMessage(msg, s.config.WriteTimeout); err != nil {
			logger.Debug("disconnect not delivered", map[string]any{"error": err.Error()})
		}
	}

	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.mu.Unlock()
	cancel()
	s.transport.Stop()
	<-done

	s.mu.Lock()
	s.attach = Detached
	s.capture = NotCapturing
	s.mu.Unlock()

	s.collector.IncDetach(false)
	logger.Info("detached", nil)
	s.emit(types.EventDetached)
	return nil
}

// stopForDetach runs a synchronous stop round trip when capturing. If the
// peer does not confirm, the capture is considered stopped anyway.
func (s *Session) stopForDetach(logger *log.Logger) {
	s.mu.Lock()
	if s.capture != Capturing {
		s.mu.Unlock()
		return
	}
	p := s.beginPendingLocked(PendingStopSent, nil)
	s.mu.Unlock()

	s.emit(types.EventCaptureStopping)
	_ = s.sendControl(p, ipc.StopCapture{Reason: ipc.StopUserRequest})
	<-p.done

	s.mu.Lock()
	forced := s.capture == Capturing
	s.capture = NotCapturing
	s.mu.Unlock()
	if forced {
		logger.Warn("peer did not confirm stop; treating capture as stopped", nil)
		s.emit(types.EventCaptureStopped)
	}
}

// waitPending blocks until any outstanding control request resolves.
func (s *Session) waitPending() {
	s.mu.Lock()
	p := s.pending
	s.mu.Unlock()
	if p != nil {
		<-p.done
	}
}

func (s *Session) beginPendingLocked(state PendingState, cb ControlCallback) *pendingRequest {
	p := &pendingRequest{
		state:    state,
		callback: cb,
		done:     make(chan struct{}),
	}
	s.pending = p
	p.timer = time.AfterFunc(s.config.ControlTimeout, func() {
		if s.resolve(p, OutcomeNoResponse) {
			s.collector.IncControlTimeout()
			s.log().Warn("control request timed out", map[string]any{
				"pending": state.String(),
				"timeout": s.config.ControlTimeout.String(),
			})
		}
	})
	return p
}

func (s *Session) sendControl(p *pendingRequest, m ipc.Message) error {
	msg, err := ipc.Encode(m)
	if err == nil {
		err = s.transport.WriteMessage(msg, s.config.WriteTimeout)
	}
	if err != nil {
		s.collector.IncControlWriteError()
		s.log().Error("control request not sent", map[string]any{
			"opcode": m.Opcode().String(),
			"error":  err.Error(),
		})
		s.resolve(p, OutcomeNoResponse)
		return fmt.Errorf("send %s: %w", m.Opcode(), err)
	}
	s.collector.IncControlRequest()
	return nil
}

// resolve settles p with outcome if it is still the outstanding request.
// It reports whether p was settled by this call.
func (s *Session) resolve(p *pendingRequest, outcome ControlOutcome) bool {
	s.mu.Lock()
	if s.pending != p {
		s.mu.Unlock()
		return false
	}
	s.pending = nil
	p.timer.Stop()

	var event types.SessionEventKind
	switch outcome {
	case OutcomeAccepted:
		if p.state == PendingStartSent {
			s.capture = Capturing
			event = types.EventCaptureStarted
		} else {
			s.capture = NotCapturing
			event = types.EventCaptureStopped
		}
	case OutcomeRejected:
		event = types.EventCaptureRejected
	case OutcomeNoResponse:
		event = types.EventCaptureNoResponse
	}
	s.mu.Unlock()

	if event != "" {
		s.emit(event)
	}
	if p.callback != nil {
		p.callback(outcome)
	}
	close(p.done)
	return true
}

func (s *Session) emit(event types.SessionEventKind) {
	s.mu.Lock()
	observers := slices.Clone(s.observers)
	s.mu.Unlock()
	for _, o := range observers {
		o(event)
	}
}

func (s *Session) describeLocked() string {
	pending := PendingNone
	if s.pending != nil {
		pending = s.pending.state
	}
	return fmt.Sprintf("%s/%s (pending %s)", s.attach, s.capture, pending)
}
