package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/psforever/GameLogger/capture"
	"github.com/psforever/GameLogger/gamerecord"
	"github.com/psforever/GameLogger/log"
	"github.com/psforever/GameLogger/metrics"
	"github.com/psforever/GameLogger/process"
	"github.com/psforever/GameLogger/types"
)

// DefaultQueueSize is the default number of queued notifications.
const DefaultQueueSize = 256

// ForwarderOptions configures a Forwarder.
type ForwarderOptions struct {
	LoggerID int
	// QueueSize bounds pending notifications (DefaultQueueSize if zero).
	// Notifications that do not fit are dropped.
	QueueSize int
	// TapRecords also publishes every received record batch.
	TapRecords bool
	// PublishTimeout bounds each Publish call. Zero means no extra bound.
	PublishTimeout time.Duration
	Logger         *log.Logger
	Collector      *metrics.Collector
	// Now stamps notifications. Defaults to time.Now.
	Now func() time.Time
}

// Forwarder publishes session notifications through an Adapter from a
// background goroutine so that session observers never block on I/O.
// Register Observe as a session observer and, with TapRecords, the
// Forwarder itself as a record sink.
type Forwarder struct {
	adapter Adapter
	opts    ForwarderOptions
	queue   chan *Notification
	done    chan struct{}

	mu     sync.Mutex
	target process.Target
	closed bool
}

// NewForwarder creates a forwarder and starts its delivery goroutine.
func NewForwarder(a Adapter, opts ForwarderOptions) *Forwarder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	f := &Forwarder{
		adapter: a,
		opts:    opts,
		queue:   make(chan *Notification, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go f.run()
	return f
}

// SetTarget tags subsequent notifications with the attached process.
func (f *Forwarder) SetTarget(t process.Target) {
	f.mu.Lock()
	f.target = t
	f.mu.Unlock()
}

// Observe implements a session observer.
func (f *Forwarder) Observe(event types.SessionEventKind) {
	n := f.notification(EventSession)
	n.Session = string(event)
	f.enqueue(n)
}

// HandleRecords implements a session record sink. It is a no-op unless
// TapRecords is set.
func (f *Forwarder) HandleRecords(records []gamerecord.Record) {
	if !f.opts.TapRecords {
		return
	}
	n := f.notification(EventRecords)
	n.Records = make([]Record, len(records))
	for i, r := range records {
		n.Records[i] = NewRecord(r)
	}
	f.enqueue(n)
}

// CaptureSaved publishes a summary of a saved capture.
func (f *Forwarder) CaptureSaved(file *capture.File) {
	n := f.notification(EventCaptureSaved)
	n.Capture = NewCaptureInfo(file)
	f.enqueue(n)
}

// Close stops accepting notifications, waits for queued ones to be
// delivered or ctx to end, and closes the adapter.
func (f *Forwarder) Close(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()

	select {
	case <-f.done:
	case <-ctx.Done():
		f.opts.Logger.Warn("notification queue not drained", map[string]any{"pending": len(f.queue)})
	}
	return f.adapter.Close()
}

func (f *Forwarder) notification(t EventType) *Notification {
	f.mu.Lock()
	target := f.target
	f.mu.Unlock()
	return &Notification{
		ContractVersion: ContractVersion,
		EventType:       t,
		LoggerID:        f.opts.LoggerID,
		PID:             target.PID,
		Process:         target.Name,
		Timestamp:       f.opts.Now().UTC().Format(time.RFC3339Nano),
	}
}

func (f *Forwarder) enqueue(n *Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.queue <- n:
	default:
		f.opts.Collector.IncNotificationDropped()
		f.opts.Logger.Warn("notification queue full; dropping", map[string]any{"event_type": string(n.EventType)})
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for n := range f.queue {
		ctx := context.Background()
		cancel := context.CancelFunc(func() {})
		if f.opts.PublishTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, f.opts.PublishTimeout)
		}
		err := f.adapter.Publish(ctx, n)
		cancel()

		if err != nil {
			f.opts.Collector.IncNotificationFailed()
			f.opts.Logger.Error("notification publish failed", map[string]any{
				"event_type": string(n.EventType),
				"error":      err.Error(),
			})
			continue
		}
		f.opts.Collector.IncNotificationPublished()
	}
}
