package lode

import (
	"time"

	"github.com/psforever/GameLogger/capture"
	"github.com/psforever/GameLogger/gamerecord"
	"github.com/psforever/GameLogger/metrics"
)

// Row discriminators. Each is also the record_kind partition value.
const (
	RecordKindCapture = "capture"
	RecordKindRecord  = "record"
	RecordKindMetrics = "metrics"
)

// CaptureRow describes one capture. It is written after every record row
// so its presence marks the export complete.
type CaptureRow struct {
	RecordKind  string `json:"record_kind"`
	GUID        string `json:"guid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Revision    uint64 `json:"revision"`
	Records     int    `json:"records"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time,omitempty"`
	LoggerID    int    `json:"logger_id"`

	Day     string `json:"day"`
	Capture string `json:"capture"`
}

// RecordRow is one decoded game record.
type RecordRow struct {
	RecordKind  string `json:"record_kind"`
	Index       int    `json:"index"`
	Timestamp   uint64 `json:"timestamp"`
	Kind        string `json:"kind"`
	Type        string `json:"type,omitempty"`
	Destination string `json:"destination,omitempty"`
	Opcode      string `json:"opcode,omitempty"`
	Size        int    `json:"size"`
	Payload     []byte `json:"payload,omitempty"`

	Day     string `json:"day"`
	Capture string `json:"capture"`
}

func toCaptureRow(f *capture.File, cfg Config, day string) CaptureRow {
	row := CaptureRow{
		RecordKind:  RecordKindCapture,
		GUID:        f.GUID().String(),
		Name:        f.Name(),
		Description: f.Description(),
		Revision:    f.Revision(),
		Records:     f.Len(),
		StartTime:   f.StartTime().UTC().Format(time.RFC3339),
		LoggerID:    cfg.LoggerID,
		Day:         day,
		Capture:     f.GUID().String(),
	}
	if end := f.EndTime(); !end.IsZero() {
		row.EndTime = end.UTC().Format(time.RFC3339)
	}
	return row
}

func toRecordRow(index int, r gamerecord.Record, day, guid string) RecordRow {
	row := RecordRow{
		RecordKind: RecordKindRecord,
		Index:      index,
		Timestamp:  r.Timestamp,
		Kind:       r.Body.Kind().String(),
		Size:       r.EncodedSize(),
		Day:        day,
		Capture:    guid,
	}
	if p, ok := r.Packet(); ok {
		row.Type = p.Type.String()
		row.Destination = p.Destination.String()
		row.Opcode = gamerecord.Describe(p)
		row.Payload = p.Payload
	}
	return row
}

// Lode's Hive layout reads partition values from map rows, so the typed
// rows are flattened before writing.

func (r CaptureRow) toMap() map[string]any {
	m := map[string]any{
		"record_kind": r.RecordKind,
		"guid":        r.GUID,
		"name":        r.Name,
		"description": r.Description,
		"revision":    r.Revision,
		"records":     r.Records,
		"start_time":  r.StartTime,
		"logger_id":   r.LoggerID,
		"day":         r.Day,
		"capture":     r.Capture,
	}
	if r.EndTime != "" {
		m["end_time"] = r.EndTime
	}
	return m
}

func (r RecordRow) toMap() map[string]any {
	m := map[string]any{
		"record_kind": r.RecordKind,
		"index":       r.Index,
		"timestamp":   r.Timestamp,
		"kind":        r.Kind,
		"size":        r.Size,
		"day":         r.Day,
		"capture":     r.Capture,
	}
	if r.Type != "" {
		m["type"] = r.Type
		m["destination"] = r.Destination
		m["opcode"] = r.Opcode
		m["payload"] = r.Payload
	}
	return m
}

// toMetricsRecordMap flattens a collector snapshot into a metrics row.
func toMetricsRecordMap(snap metrics.Snapshot, day, guid string, at time.Time) map[string]any {
	m := snap.Fields()
	m["record_kind"] = RecordKindMetrics
	m["recorded_at"] = at.UTC().Format(time.RFC3339)
	m["day"] = day
	m["capture"] = guid
	m["logger_id"] = snap.LoggerID
	m["transport"] = snap.Transport
	m["storage_backend"] = snap.StorageBackend
	return m
}
