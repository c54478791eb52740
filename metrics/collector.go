// Package metrics provides per-session counters for a capture session.
//
// The Collector is a leaf package with no internal dependencies. Attach
// results are keyed by their string form to stay independent of the types
// package.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Attach lifecycle
	AttachAttempts  int64
	AttachSuccesses int64
	AttachFailures  map[string]int64
	Detaches        int64
	// ImplicitDetaches counts detaches caused by transport failure or a
	// peer-initiated disconnect.
	ImplicitDetaches int64

	// Receive loop
	MessagesReceived int64
	DecodeErrors     int64
	RecordsReceived  int64
	RecordsScrubbed  int64
	ProtocolDesyncs  int64

	// Control round trips
	ControlRequests  int64
	ControlRejected  int64
	ControlTimeouts  int64
	ControlWriteErrs int64

	// Export / storage
	ExportWriteSuccess int64
	ExportWriteFailure int64

	// Notifications
	NotificationsPublished int64
	NotificationsFailed    int64
	NotificationsDropped   int64

	// Dimensions (informational, set at construction)
	LoggerID       int
	Transport      string
	StorageBackend string
}

// Collector accumulates counters for one logger instance.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	attachAttempts   int64
	attachSuccesses  int64
	attachFailures   map[string]int64
	detaches         int64
	implicitDetaches int64

	messagesReceived int64
	decodeErrors     int64
	recordsReceived  int64
	recordsScrubbed  int64
	protocolDesyncs  int64

	controlRequests  int64
	controlRejected  int64
	controlTimeouts  int64
	controlWriteErrs int64

	exportWriteSuccess int64
	exportWriteFailure int64

	notificationsPublished int64
	notificationsFailed    int64
	notificationsDropped   int64

	loggerID       int
	transport      string
	storageBackend string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(loggerID int, transport, storageBackend string) *Collector {
	return &Collector{
		attachFailures: make(map[string]int64),
		loggerID:       loggerID,
		transport:      transport,
		storageBackend: storageBackend,
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Attach lifecycle ---

// IncAttachAttempt records the start of an attach.
func (c *Collector) IncAttachAttempt() {
	if c == nil {
		return
	}
	c.add(&c.attachAttempts, 1)
}

// IncAttachSuccess records a completed attach.
func (c *Collector) IncAttachSuccess() {
	if c == nil {
		return
	}
	c.add(&c.attachSuccesses, 1)
}

// IncAttachFailure records a failed attach under its result code.
func (c *Collector) IncAttachFailure(result string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.attachFailures[result]++
	c.mu.Unlock()
}

// IncDetach records a detach. implicit marks detaches the caller did not request.
func (c *Collector) IncDetach(implicit bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.detaches++
	if implicit {
		c.implicitDetaches++
	}
	c.mu.Unlock()
}

// --- Receive loop ---

// IncMessagesReceived records one transport message read by the receive loop.
func (c *Collector) IncMessagesReceived() {
	if c == nil {
		return
	}
	c.add(&c.messagesReceived, 1)
}

// IncDecodeErrors records a dropped, undecodable message.
func (c *Collector) IncDecodeErrors() {
	if c == nil {
		return
	}
	c.add(&c.decodeErrors, 1)
}

// AddRecordsReceived records n game records forwarded upward.
func (c *Collector) AddRecordsReceived(n int) {
	if c == nil {
		return
	}
	c.add(&c.recordsReceived, int64(n))
}

// IncRecordsScrubbed records a record whose sensitive payload was truncated.
func (c *Collector) IncRecordsScrubbed() {
	if c == nil {
		return
	}
	c.add(&c.recordsScrubbed, 1)
}

// IncProtocolDesync records a response that matched no pending request.
func (c *Collector) IncProtocolDesync() {
	if c == nil {
		return
	}
	c.add(&c.protocolDesyncs, 1)
}

// --- Control round trips ---

// IncControlRequest records a START_CAPTURE or STOP_CAPTURE sent.
func (c *Collector) IncControlRequest() {
	if c == nil {
		return
	}
	c.add(&c.controlRequests, 1)
}

// IncControlRejected records a control request the peer refused.
func (c *Collector) IncControlRejected() {
	if c == nil {
		return
	}
	c.add(&c.controlRejected, 1)
}

// IncControlTimeout records a control request that got no response.
func (c *Collector) IncControlTimeout() {
	if c == nil {
		return
	}
	c.add(&c.controlTimeouts, 1)
}

// IncControlWriteError records a control request that could not be sent.
func (c *Collector) IncControlWriteError() {
	if c == nil {
		return
	}
	c.add(&c.controlWriteErrs, 1)
}

// --- Export / storage ---
// Counted per write call, not per record.

// IncExportWriteSuccess records a successful dataset or archive write.
func (c *Collector) IncExportWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.exportWriteSuccess, 1)
}

// IncExportWriteFailure records a failed dataset or archive write.
func (c *Collector) IncExportWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.exportWriteFailure, 1)
}

// --- Notifications ---

// IncNotificationPublished records a notification delivered to the adapter.
func (c *Collector) IncNotificationPublished() {
	if c == nil {
		return
	}
	c.add(&c.notificationsPublished, 1)
}

// IncNotificationFailed records a notification the adapter failed to deliver.
func (c *Collector) IncNotificationFailed() {
	if c == nil {
		return
	}
	c.add(&c.notificationsFailed, 1)
}

// IncNotificationDropped records a notification discarded on a full queue.
func (c *Collector) IncNotificationDropped() {
	if c == nil {
		return
	}
	c.add(&c.notificationsDropped, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	failures := make(map[string]int64, len(c.attachFailures))
	for k, v := range c.attachFailures {
		failures[k] = v
	}

	return Snapshot{
		AttachAttempts:   c.attachAttempts,
		AttachSuccesses:  c.attachSuccesses,
		AttachFailures:   failures,
		Detaches:         c.detaches,
		ImplicitDetaches: c.implicitDetaches,

		MessagesReceived: c.messagesReceived,
		DecodeErrors:     c.decodeErrors,
		RecordsReceived:  c.recordsReceived,
		RecordsScrubbed:  c.recordsScrubbed,
		ProtocolDesyncs:  c.protocolDesyncs,

		ControlRequests:  c.controlRequests,
		ControlRejected:  c.controlRejected,
		ControlTimeouts:  c.controlTimeouts,
		ControlWriteErrs: c.controlWriteErrs,

		ExportWriteSuccess: c.exportWriteSuccess,
		ExportWriteFailure: c.exportWriteFailure,

		NotificationsPublished: c.notificationsPublished,
		NotificationsFailed:    c.notificationsFailed,
		NotificationsDropped:   c.notificationsDropped,

		LoggerID:       c.loggerID,
		Transport:      c.transport,
		StorageBackend: c.storageBackend,
	}
}

// Fields flattens the snapshot into structured log fields.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"attach_attempts":     s.AttachAttempts,
		"attach_successes":    s.AttachSuccesses,
		"attach_failures":     s.AttachFailures,
		"detaches":            s.Detaches,
		"implicit_detaches":   s.ImplicitDetaches,
		"messages_received":   s.MessagesReceived,
		"decode_errors":       s.DecodeErrors,
		"records_received":    s.RecordsReceived,
		"records_scrubbed":    s.RecordsScrubbed,
		"protocol_desyncs":    s.ProtocolDesyncs,
		"control_requests":    s.ControlRequests,
		"control_rejected":    s.ControlRejected,
		"control_timeouts":    s.ControlTimeouts,
		"control_write_errs":  s.ControlWriteErrs,
		"export_write_ok":     s.ExportWriteSuccess,
		"export_write_failed": s.ExportWriteFailure,
		"notify_published":    s.NotificationsPublished,
		"notify_failed":       s.NotificationsFailed,
		"notify_dropped":      s.NotificationsDropped,
	}
}
