// Package adapter defines the notification boundary to downstream systems.
//
// Adapters publish capture session notifications: lifecycle transitions,
// optionally the received game records, and saved capture files. The
// Forwarder owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/psforever/GameLogger/capture"
	"github.com/psforever/GameLogger/gamerecord"
)

// ContractVersion is the notification payload version.
const ContractVersion = "1.0"

// EventType discriminates notifications.
type EventType string

const (
	// EventSession carries a session lifecycle transition.
	EventSession EventType = "session"
	// EventRecords carries a batch of received game records.
	EventRecords EventType = "records"
	// EventCaptureSaved is sent after a capture file is written.
	EventCaptureSaved EventType = "capture_saved"
)

// Notification is the payload published to downstream systems.
type Notification struct {
	ContractVersion string    `json:"contract_version" msgpack:"contract_version"`
	EventType       EventType `json:"event_type" msgpack:"event_type"`
	LoggerID        int       `json:"logger_id" msgpack:"logger_id"`
	PID             uint32    `json:"pid,omitempty" msgpack:"pid,omitempty"`
	Process         string    `json:"process,omitempty" msgpack:"process,omitempty"`
	Timestamp       string    `json:"timestamp" msgpack:"timestamp"` // RFC 3339

	// Session is set for EventSession.
	Session string `json:"session,omitempty" msgpack:"session,omitempty"`
	// Records is set for EventRecords.
	Records []Record `json:"records,omitempty" msgpack:"records,omitempty"`
	// Capture is set for EventCaptureSaved.
	Capture *CaptureInfo `json:"capture,omitempty" msgpack:"capture,omitempty"`
}

// Record is the published form of a game record. Payload is base64 in JSON
// and raw bytes in msgpack.
type Record struct {
	Timestamp   uint64 `json:"timestamp" msgpack:"timestamp"`
	Kind        string `json:"kind" msgpack:"kind"`
	Type        string `json:"type,omitempty" msgpack:"type,omitempty"`
	Destination string `json:"destination,omitempty" msgpack:"destination,omitempty"`
	Opcode      string `json:"opcode,omitempty" msgpack:"opcode,omitempty"`
	Payload     []byte `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// CaptureInfo summarises a saved capture file.
type CaptureInfo struct {
	GUID        string `json:"guid" msgpack:"guid"`
	Name        string `json:"name" msgpack:"name"`
	Description string `json:"description,omitempty" msgpack:"description,omitempty"`
	Path        string `json:"path" msgpack:"path"`
	Revision    uint64 `json:"revision" msgpack:"revision"`
	Records     int    `json:"records" msgpack:"records"`
	StartTime   string `json:"start_time" msgpack:"start_time"`
	EndTime     string `json:"end_time,omitempty" msgpack:"end_time,omitempty"`
	SizeBytes   int64  `json:"size_bytes" msgpack:"size_bytes"`
}

// NewRecord converts a game record to its published form.
func NewRecord(r gamerecord.Record) Record {
	out := Record{Timestamp: r.Timestamp, Kind: r.Body.Kind().String()}
	if p, ok := r.Packet(); ok {
		out.Type = p.Type.String()
		out.Destination = p.Destination.String()
		out.Opcode = gamerecord.Describe(p)
		out.Payload = p.Payload
	}
	return out
}

// NewCaptureInfo summarises f. f should be saved.
func NewCaptureInfo(f *capture.File) *CaptureInfo {
	info := &CaptureInfo{
		GUID:        f.GUID().String(),
		Name:        f.Name(),
		Description: f.Description(),
		Path:        f.Path(),
		Revision:    f.Revision(),
		Records:     f.Len(),
		StartTime:   f.StartTime().UTC().Format(time.RFC3339),
		SizeBytes:   f.EstimatedSize(),
	}
	if end := f.EndTime(); !end.IsZero() {
		info.EndTime = end.UTC().Format(time.RFC3339)
	}
	return info
}

// Encoding selects the wire format of published notifications.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgPack Encoding = "msgpack"
)

// ParseEncoding validates an encoding name. Empty means JSON.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(name) {
	case "", EncodingJSON:
		return EncodingJSON, nil
	case EncodingMsgPack:
		return EncodingMsgPack, nil
	default:
		return "", fmt.Errorf("unknown encoding %q (want json or msgpack)", name)
	}
}

// ContentType is the MIME type of the encoding.
func (e Encoding) ContentType() string {
	if e == EncodingMsgPack {
		return "application/msgpack"
	}
	return "application/json"
}

// Marshal encodes n.
func Marshal(n *Notification, enc Encoding) ([]byte, error) {
	if enc == EncodingMsgPack {
		return msgpack.Marshal(n)
	}
	return json.Marshal(n)
}

// Unmarshal decodes data produced by Marshal.
func Unmarshal(data []byte, enc Encoding) (*Notification, error) {
	var n Notification
	var err error
	if enc == EncodingMsgPack {
		err = msgpack.Unmarshal(data, &n)
	} else {
		err = json.Unmarshal(data, &n)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Adapter publishes notifications to a downstream system.
type Adapter interface {
	// Publish sends one notification. Must respect context cancellation and
	// deadlines.
	Publish(ctx context.Context, n *Notification) error

	// Close releases adapter resources.
	Close() error
}
