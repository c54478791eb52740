package transport

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/psforever/GameLogger/ipc"
)

func startTCP(t *testing.T) *Server {
	t.Helper()
	s := NewServer("tcp", "127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

// connect dials s and completes Accept.
func connect(t *testing.T, s *Server) net.Conn {
	t.Helper()
	accepted := make(chan error, 1)
	go func() { accepted <- s.Accept(2 * time.Second) }()

	conn, err := net.Dial(s.Addr().Network(), s.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := <-accepted; err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	return conn
}

func writeFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	frame, err := ipc.AppendFrame(nil, payload)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("peer write failed: %v", err)
	}
}

func TestServer_Exchange(t *testing.T) {
	s := startTCP(t)
	conn := connect(t, s)

	writeFrame(t, conn, []byte{2, 1, 1, 0xe1, 0x10, 0, 0})
	got, err := s.ReadMessage(time.Second)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if !bytes.Equal(got, []byte{2, 1, 1, 0xe1, 0x10, 0, 0}) {
		t.Errorf("ReadMessage = % x", got)
	}

	if err := s.WriteMessage([]byte{3, 1}, time.Second); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	reply, err := ipc.NewFrameDecoder(conn).ReadFrame()
	if err != nil {
		t.Fatalf("peer read failed: %v", err)
	}
	if !bytes.Equal(reply, []byte{3, 1}) {
		t.Errorf("peer received % x, want 03 01", reply)
	}
}

func TestServer_ReadReassemblesShortWrites(t *testing.T) {
	s := startTCP(t)
	conn := connect(t, s)

	frame, _ := ipc.AppendFrame(nil, []byte("hello, world"))
	go func() {
		for _, b := range frame {
			conn.Write([]byte{b})
			time.Sleep(time.Millisecond)
		}
	}()

	got, err := s.ReadMessage(time.Second)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if string(got) != "hello, world" {
		t.Errorf("ReadMessage = %q", got)
	}
}

func TestServer_AcceptTimeout(t *testing.T) {
	s := startTCP(t)

	start := time.Now()
	err := s.Accept(50 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Accept took %v", time.Since(start))
	}
}

func TestServer_AcceptWhileConnected(t *testing.T) {
	s := startTCP(t)
	connect(t, s)

	if err := s.Accept(time.Second); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("err = %v, want ErrAlreadyConnected", err)
	}
}

func TestServer_NotStarted(t *testing.T) {
	s := NewServer("tcp", "127.0.0.1:0")
	if err := s.Accept(time.Millisecond); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Accept err = %v, want ErrNotStarted", err)
	}
	if _, err := s.ReadMessage(time.Millisecond); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ReadMessage err = %v, want ErrNotConnected", err)
	}
	if err := s.WriteMessage([]byte{1}, time.Millisecond); !errors.Is(err, ErrNotConnected) {
		t.Errorf("WriteMessage err = %v, want ErrNotConnected", err)
	}
	s.Stop()
}

func TestServer_ReadTimeout(t *testing.T) {
	s := startTCP(t)
	connect(t, s)

	if _, err := s.ReadMessage(30 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if !s.Connected() {
		t.Error("timeout should not drop the connection")
	}
}

func TestServer_ReadSpansDeadline(t *testing.T) {
	s := startTCP(t)
	conn := connect(t, s)

	go func() {
		time.Sleep(200 * time.Millisecond)
		conn.Write([]byte{0, 0, 0, 3, 8})
		time.Sleep(200 * time.Millisecond)
		conn.Write([]byte{1, 2})
	}()

	// The message begins inside the timeout and finishes after it.
	got, err := s.ReadMessage(300 * time.Millisecond)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if !bytes.Equal(got, []byte{8, 1, 2}) {
		t.Errorf("ReadMessage = % x, want 08 01 02", got)
	}
}

func TestServer_StallMidFrameDropsConnection(t *testing.T) {
	s := startTCP(t)
	conn := connect(t, s)

	conn.Write([]byte{0, 0, 0, 3, 8})
	go func() {
		time.Sleep(300 * time.Millisecond)
		conn.Write([]byte{1, 2})
	}()

	_, err := s.ReadMessage(100 * time.Millisecond)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}
	if s.Connected() {
		t.Error("partial message should drop the connection")
	}
	if _, err := s.ReadMessage(time.Second); !errors.Is(err, ErrNotConnected) {
		t.Errorf("next ReadMessage err = %v, want ErrNotConnected", err)
	}
}

func TestServer_StartKeepsNonSocketFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures.txt")
	if err := os.WriteFile(path, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewServer("unix", path)
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Start over a regular file should fail")
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "keep" {
		t.Errorf("file after Start = %q, %v", data, err)
	}
}

func TestServer_PeerDisconnect(t *testing.T) {
	tests := []struct {
		name  string
		bytes []byte
	}{
		{"before message", nil},
		{"mid prefix", []byte{0, 0}},
		{"mid payload", []byte{0, 0, 0, 5, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startTCP(t)
			conn := connect(t, s)
			if len(tt.bytes) > 0 {
				conn.Write(tt.bytes)
			}
			conn.Close()

			_, err := s.ReadMessage(time.Second)
			if !errors.Is(err, ErrDisconnected) {
				t.Fatalf("err = %v, want ErrDisconnected", err)
			}
		})
	}
}

func TestServer_StopUnblocksRead(t *testing.T) {
	s := startTCP(t)
	connect(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.ReadMessage(0)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("err = %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadMessage not unblocked by Stop")
	}
}

func TestServer_StopIsIdempotent(t *testing.T) {
	s := NewServer("tcp", "127.0.0.1:0")
	s.Stop()
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()
	if s.Addr() != nil {
		t.Error("Addr should be nil after Stop")
	}
}

func TestServer_Restart(t *testing.T) {
	s := NewServer("unix", filepath.Join(t.TempDir(), "gl.sock"))
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if err := s.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start err = %v, want ErrAlreadyStarted", err)
	}
	connect(t, s)

	if err := s.Restart(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if s.Connected() {
		t.Error("Restart should drop the peer")
	}
	conn := connect(t, s)
	writeFrame(t, conn, []byte{9})
	if got, err := s.ReadMessage(time.Second); err != nil || !bytes.Equal(got, []byte{9}) {
		t.Errorf("ReadMessage after restart = % x, %v", got, err)
	}
}

func TestValidateLoggerID(t *testing.T) {
	for id := range MaxLoggers {
		if err := ValidateLoggerID(id); err != nil {
			t.Errorf("ValidateLoggerID(%d) = %v", id, err)
		}
	}
	if ValidateLoggerID(MaxLoggers) == nil || ValidateLoggerID(-1) == nil {
		t.Error("out-of-range ids should be rejected")
	}
	if DefaultAddress(1) == DefaultAddress(2) {
		t.Error("logger ids should map to distinct addresses")
	}
}
