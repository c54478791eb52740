package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/psforever/GameLogger/gamerecord"
	"github.com/psforever/GameLogger/ipc"
	"github.com/psforever/GameLogger/transport"
	"github.com/psforever/GameLogger/types"
)

// IngestionError explains why the receive loop ended.
type IngestionError struct {
	Kind IngestionErrorKind
	Err  error
}

// IngestionErrorKind classifies receive loop exits.
type IngestionErrorKind int

const (
	// IngestionErrorTransport indicates the connection failed.
	IngestionErrorTransport IngestionErrorKind = iota
	// IngestionErrorPeerDisconnect indicates the peer sent DISCONNECT.
	IngestionErrorPeerDisconnect
	// IngestionErrorCanceled indicates Detach stopped the loop.
	IngestionErrorCanceled
)

func (e *IngestionError) Error() string {
	return e.Err.Error()
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// IsCanceledError returns true if the loop was stopped by Detach.
func IsCanceledError(err error) bool {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == IngestionErrorCanceled
	}
	return false
}

// IsPeerDisconnect returns true if the peer ended the session.
func IsPeerDisconnect(err error) bool {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == IngestionErrorPeerDisconnect
	}
	return false
}

// receiveLoop runs until Detach cancels it or the connection ends. A loop
// that ends on its own detaches the session.
func (s *Session) receiveLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	err := s.ingest(ctx)
	if IsCanceledError(err) {
		return
	}
	s.implicitDetach(err)
}

// ingest reads and dispatches messages. Read timeouts only give the loop a
// chance to observe cancellation; malformed messages are dropped.
func (s *Session) ingest(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return &IngestionError{Kind: IngestionErrorCanceled, Err: ctx.Err()}
		default:
		}

		payload, err := s.transport.ReadMessage(s.config.ReadTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return &IngestionError{Kind: IngestionErrorCanceled, Err: ctx.Err()}
			}
			return &IngestionError{Kind: IngestionErrorTransport, Err: fmt.Errorf("read message: %w", err)}
		}
		s.collector.IncMessagesReceived()

		msg, err := ipc.Decode(payload)
		if err != nil {
			s.collector.IncDecodeErrors()
			s.log().Error("message decode error", map[string]any{
				"error": err.Error(),
				"size":  len(payload),
			})
			continue
		}

		if err := s.dispatch(msg); err != nil {
			return err
		}
	}
}

func (s *Session) dispatch(msg ipc.Message) error {
	switch m := msg.(type) {
	case ipc.NewRecords:
		s.forwardRecords(m.Records)
	case ipc.StartCaptureResp:
		s.handleControlResponse(PendingStartSent, m.Okay, m.Error)
	case ipc.StopCaptureResp:
		s.handleControlResponse(PendingStopSent, m.Okay, m.Error)
	case ipc.Disconnect:
		s.log().Info("peer disconnected", map[string]any{"reason": int(m.Reason)})
		return &IngestionError{
			Kind: IngestionErrorPeerDisconnect,
			Err:  fmt.Errorf("peer sent %s", m.Opcode()),
		}
	default:
		s.collector.IncProtocolDesync()
		s.log().Warn("unexpected message", map[string]any{"opcode": msg.Opcode().String()})
	}
	return nil
}

func (s *Session) forwardRecords(records []gamerecord.Record) {
	s.collector.AddRecordsReceived(len(records))

	s.mu.Lock()
	sinks := make([]RecordSink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.HandleRecords(records)
	}
}

// handleControlResponse settles the pending request if it matches kind.
// Responses that do not match are a protocol desync and are ignored.
func (s *Session) handleControlResponse(kind PendingState, okay bool, code ipc.CaptureError) {
	s.mu.Lock()
	p := s.pending
	s.mu.Unlock()

	if p == nil || p.state != kind {
		got := PendingNone
		if p != nil {
			got = p.state
		}
		s.collector.IncProtocolDesync()
		s.log().Warn("control response without matching request", map[string]any{
			"response": kind.String(),
			"pending":  got.String(),
		})
		return
	}

	outcome := OutcomeAccepted
	if !okay {
		outcome = OutcomeRejected
	}
	if s.resolve(p, outcome) && !okay {
		s.collector.IncControlRejected()
		s.log().Warn("control request rejected", map[string]any{
			"pending": kind.String(),
			"error":   int(code),
		})
	}
}

// implicitDetach tears the session down from inside the receive loop. It is
// a no-op if Detach is already in progress.
func (s *Session) implicitDetach(cause error) {
	s.mu.Lock()
	if s.attach != Attached {
		s.mu.Unlock()
		return
	}
	s.attach = Detaching
	wasCapturing := s.capture == Capturing
	p := s.pending
	s.pending = nil
	s.capture = NotCapturing
	logger := s.logger
	cancel := s.cancel
	s.mu.Unlock()

	s.emit(types.EventDetaching)
	logger.Warn("detaching", map[string]any{"cause": cause.Error()})

	if p != nil {
		p.timer.Stop()
		if p.callback != nil {
			p.callback(OutcomeDisconnected)
		}
		close(p.done)
	}
	if wasCapturing {
		s.emit(types.EventCaptureStopped)
	}

	cancel()
	s.transport.Stop()

	s.mu.Lock()
	s.attach = Detached
	s.mu.Unlock()

	s.collector.IncDetach(true)
	logger.Info("detached", nil)
	s.emit(types.EventDetached)
}
