// Package transport provides the single-client, message-oriented duplex
// channel between the logger and an instrumented client.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/psforever/GameLogger/ipc"
)

var (
	ErrTimeout          = errors.New("transport: timed out")
	ErrDisconnected     = errors.New("transport: peer disconnected")
	ErrNotStarted       = errors.New("transport: not started")
	ErrAlreadyStarted   = errors.New("transport: already started")
	ErrNotConnected     = errors.New("transport: not connected")
	ErrAlreadyConnected = errors.New("transport: already connected")
	ErrStopped          = errors.New("transport: stopped")
)

// Transport is the message channel used by a capture session.
type Transport interface {
	Start() error
	Stop()
	Accept(timeout time.Duration) error
	ReadMessage(timeout time.Duration) ([]byte, error)
	WriteMessage(msg []byte, timeout time.Duration) error
}

// Server listens on a local stream socket and serves exactly one peer.
//
// One Accept and one ReadMessage/WriteMessage may be outstanding at a time.
// Stop may be called from any goroutine and unblocks all of them.
type Server struct {
	network string
	address string

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	reader   *progressReader
	decoder  *ipc.FrameDecoder
}

var _ Transport = (*Server)(nil)

// NewServer creates a server for network ("unix" or "tcp") and address.
func NewServer(network, address string) *Server {
	return &Server{network: network, address: address}
}

// Start begins listening. A stale unix socket at the address is removed;
// any other file there is left alone and Start fails.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyStarted
	}
	if s.network == "unix" {
		if err := removeStaleSocket(s.address); err != nil {
			return err
		}
	}
	ln, err := net.Listen(s.network, s.address)
	if err != nil {
		return fmt.Errorf("transport: listen %s %s: %w", s.network, s.address, err)
	}
	s.listener = ln
	return nil
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("transport: stat %s: %w", path, err)
	}
	if info.Mode().Type() != os.ModeSocket {
		return fmt.Errorf("transport: %s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("transport: remove stale socket %s: %w", path, err)
	}
	return nil
}

// Stop closes the connection and the listener. Safe to call at any time.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
		s.reader = nil
		s.decoder = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Restart stops and starts the server.
func (s *Server) Restart() error {
	s.Stop()
	return s.Start()
}

// Addr returns the listening address, or nil if not started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connected reports whether a peer is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Accept waits up to timeout for a peer to connect.
func (s *Server) Accept(timeout time.Duration) error {
	s.mu.Lock()
	ln := s.listener
	connected := s.conn != nil
	s.mu.Unlock()

	if ln == nil {
		return ErrNotStarted
	}
	if connected {
		return ErrAlreadyConnected
	}

	if d, ok := ln.(deadliner); ok {
		if err := d.SetDeadline(deadline(timeout)); err != nil {
			return fmt.Errorf("transport: set accept deadline: %w", err)
		}
	}

	conn, err := ln.Accept()
	if err != nil {
		return classify("accept", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != ln {
		// Stopped while accepting.
		_ = conn.Close()
		return ErrStopped
	}
	s.conn = conn
	s.reader = &progressReader{conn: conn}
	s.decoder = ipc.NewFrameDecoder(s.reader)
	return nil
}

// ReadMessage reads one complete message, waiting at most timeout for it to
// begin. Once bytes arrive, timeout bounds each stall rather than the whole
// message. A timeout is only reported if no byte of the message was read.
// A message cut short, by the peer or by a stall, leaves the stream out of
// sync: the connection is dropped and ErrDisconnected is returned.
func (s *Server) ReadMessage(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	conn, reader, decoder := s.conn, s.reader, s.decoder
	s.mu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}
	reader.timeout = timeout
	if err := conn.SetReadDeadline(deadline(timeout)); err != nil {
		return nil, classify("read", err)
	}

	msg, err := decoder.ReadFrame()
	if err != nil {
		if ipc.IsFrameError(err) {
			s.dropConn(conn)
		}
		return nil, classify("read", err)
	}
	return msg, nil
}

// dropConn closes conn if it is still the current connection. The listener
// stays open so a peer can reconnect.
func (s *Server) dropConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return
	}
	_ = conn.Close()
	s.conn = nil
	s.reader = nil
	s.decoder = nil
}

// progressReader pushes the read deadline forward whenever bytes arrive.
type progressReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.conn.Read(p)
	if n > 0 && r.timeout > 0 {
		if derr := r.conn.SetReadDeadline(deadline(r.timeout)); derr != nil && err == nil {
			err = derr
		}
	}
	return n, err
}

// WriteMessage writes msg as one transport message.
func (s *Server) WriteMessage(msg []byte, timeout time.Duration) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	frame, err := ipc.AppendFrame(make([]byte, 0, ipc.LengthPrefixSize+len(msg)), msg)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(deadline(timeout)); err != nil {
		return classify("write", err)
	}
	if _, err := conn.Write(frame); err != nil {
		return classify("write", err)
	}
	return nil
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// classify maps socket errors onto the package's sentinel errors.
func classify(op string, err error) error {
	var frameErr *ipc.FrameError
	if errors.As(err, &frameErr) {
		if errors.Is(err, net.ErrClosed) {
			return ErrStopped
		}
		return fmt.Errorf("%w: %s: %v", ErrDisconnected, op, err)
	}

	switch {
	case errors.Is(err, net.ErrClosed):
		return ErrStopped
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %s", ErrDisconnected, op)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %s: %v", ErrDisconnected, op, err)
}
