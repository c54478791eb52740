package runtime

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/psforever/GameLogger/gamerecord"
	"github.com/psforever/GameLogger/ipc"
	"github.com/psforever/GameLogger/metrics"
	"github.com/psforever/GameLogger/peer"
	"github.com/psforever/GameLogger/process"
	"github.com/psforever/GameLogger/transport"
	"github.com/psforever/GameLogger/types"
)

const waitTimeout = 5 * time.Second

// fakeTransport is an in-memory Transport for handshake tests.
type fakeTransport struct {
	mu       sync.Mutex
	reads    [][]byte
	readErr  error
	writes   [][]byte
	writeErr error
}

func (f *fakeTransport) Start() error               { return nil }
func (f *fakeTransport) Stop()                      {}
func (f *fakeTransport) Accept(time.Duration) error { return nil }

func (f *fakeTransport) queue(t *testing.T, m ipc.Message) {
	t.Helper()
	data, err := ipc.Encode(m)
	if err != nil {
		t.Fatalf("Encode(%T) error = %v", m, err)
	}
	f.mu.Lock()
	f.reads = append(f.reads, data)
	f.mu.Unlock()
}

func (f *fakeTransport) ReadMessage(time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reads) == 0 {
		if f.readErr != nil {
			return nil, f.readErr
		}
		return nil, transport.ErrTimeout
	}
	msg := f.reads[0]
	f.reads = f.reads[1:]
	return msg, nil
}

func (f *fakeTransport) WriteMessage(msg []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, msg)
	return nil
}

func (f *fakeTransport) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.writes)
}

// peerInjector stands in for the injection helper: instead of loading a
// library it dials the session's transport with a peer client.
type peerInjector struct {
	server  *transport.Server
	pid     uint32
	version types.ProtocolVersion
	result  InjectResult

	clients  chan *peer.Client
	identify chan error
}

func (p *peerInjector) Inject(ctx context.Context, _ InjectRequest) (InjectResult, error) {
	if p.result != InjectSuccess {
		return p.result, errors.New("injection refused")
	}
	client, err := peer.Dial(ctx, peer.Config{
		Network: "tcp",
		Address: p.server.Addr().String(),
		PID:     p.pid,
		Version: p.version,
		Timeout: waitTimeout,
	})
	if err != nil {
		return InjectFailed, err
	}
	go func() { p.identify <- client.Identify() }()
	p.clients <- client
	return InjectSuccess, nil
}

// eventLog records observed session events.
type eventLog struct {
	mu     sync.Mutex
	events []types.SessionEventKind
}

func (l *eventLog) observe(e types.SessionEventKind) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []types.SessionEventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

func (l *eventLog) waitFor(t *testing.T, want types.SessionEventKind) {
	t.Helper()
	eventually(t, func() bool { return slices.Contains(l.snapshot(), want) }, "event %s (have %v)", want, l)
}

func (l *eventLog) String() string {
	var parts []string
	for _, e := range l.snapshot() {
		parts = append(parts, string(e))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func eventually(t *testing.T, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for "+format, args...)
}

type harness struct {
	session   *Session
	server    *transport.Server
	injector  *peerInjector
	events    *eventLog
	collector *metrics.Collector
	records   chan []gamerecord.Record
	target    process.Target
}

func targetFor(pid uint32) process.Target {
	return process.Target{PID: pid, Name: "PlanetSide.exe"}
}

func testConfig() SessionConfig {
	cfg := DefaultSessionConfig(0)
	cfg.AcceptTimeout = waitTimeout
	cfg.ReadTimeout = 200 * time.Millisecond
	cfg.WriteTimeout = waitTimeout
	cfg.ControlTimeout = waitTimeout
	return cfg
}

func newHarness(t *testing.T, peerPID uint32, peerVersion types.ProtocolVersion, cfg SessionConfig) *harness {
	t.Helper()
	server := transport.NewServer("tcp", "127.0.0.1:0")
	inj := &peerInjector{
		server:   server,
		pid:      peerPID,
		version:  peerVersion,
		clients:  make(chan *peer.Client, 1),
		identify: make(chan error, 1),
	}
	collector := metrics.NewCollector(0, "tcp", "")
	h := &harness{
		session:   NewSession(cfg, server, inj, nil, collector),
		server:    server,
		injector:  inj,
		events:    &eventLog{},
		collector: collector,
		records:   make(chan []gamerecord.Record, 16),
		target:    targetFor(4321),
	}
	h.session.Subscribe(h.events.observe)
	h.session.OnRecords(RecordSinkFunc(func(recs []gamerecord.Record) { h.records <- recs }))
	t.Cleanup(server.Stop)
	return h
}

// attach runs Attach and returns the connected peer.
func (h *harness) attach(t *testing.T) *peer.Client {
	t.Helper()
	result, err := h.session.Attach(t.Context(), h.target)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if result != types.AttachSuccess {
		t.Fatalf("Attach() result = %s", result)
	}
	client := <-h.injector.clients
	t.Cleanup(func() { _ = client.Close() })
	if err := <-h.injector.identify; err != nil {
		t.Fatalf("peer Identify() error = %v", err)
	}
	return client
}

// scriptedHandler answers control requests with fixed results.
type scriptedHandler struct {
	startOK bool
	stopOK  bool

	mu    sync.Mutex
	calls []string
}

func (h *scriptedHandler) StartCapture() (bool, ipc.CaptureError) {
	h.mu.Lock()
	h.calls = append(h.calls, "start")
	h.mu.Unlock()
	if h.startOK {
		return true, 0
	}
	return false, ipc.CaptureErrorUnknown
}

func (h *scriptedHandler) StopCapture() (bool, ipc.CaptureError) {
	h.mu.Lock()
	h.calls = append(h.calls, "stop")
	h.mu.Unlock()
	if h.stopOK {
		return true, 0
	}
	return false, ipc.CaptureErrorNotCapturing
}

func (h *scriptedHandler) called() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

// serve runs the peer's control loop until the test ends.
func serve(t *testing.T, client *peer.Client, h peer.Handler) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- client.Serve(ctx, h) }()
	return done
}

func outcomeChan() (ControlCallback, <-chan ControlOutcome) {
	ch := make(chan ControlOutcome, 1)
	return func(o ControlOutcome) { ch <- o }, ch
}

func waitOutcome(t *testing.T, ch <-chan ControlOutcome) ControlOutcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for control outcome")
		return 0
	}
}

func packetRecord(ts uint64, payload ...byte) gamerecord.Record {
	return gamerecord.Record{
		Timestamp: ts,
		Body: gamerecord.Packet{
			Type:        gamerecord.PacketGame,
			Destination: gamerecord.ToServer,
			Payload:     payload,
		},
	}
}
