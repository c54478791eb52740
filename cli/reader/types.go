// Package reader turns capture files into the read-only payloads shared by
// the table/json/yaml renderers and the TUI.
package reader

import "time"

// InspectCaptureResponse describes one capture file.
type InspectCaptureResponse struct {
	GUID        string          `json:"guid" yaml:"guid"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Path        string          `json:"path" yaml:"path"`
	Revision    uint64          `json:"revision" yaml:"revision"`
	Records     int             `json:"records" yaml:"records"`
	StartTime   time.Time       `json:"start_time" yaml:"start_time"`
	EndTime     *time.Time      `json:"end_time" yaml:"end_time"`
	Duration    string          `json:"duration" yaml:"duration"`
	Size        int64           `json:"size_bytes" yaml:"size_bytes"`
	SizeHuman   string          `json:"size" yaml:"size"`
	Warnings    []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Listing     []RecordSummary `json:"listing,omitempty" yaml:"listing,omitempty"`
}

// RecordSummary is one row of a record listing.
type RecordSummary struct {
	Index       int    `json:"index" yaml:"index"`
	Timestamp   uint64 `json:"timestamp" yaml:"timestamp"`
	Kind        string `json:"kind" yaml:"kind"`
	Type        string `json:"type" yaml:"type"`
	Destination string `json:"destination" yaml:"destination"`
	Opcode      string `json:"opcode" yaml:"opcode"`
	Size        int    `json:"size" yaml:"size"`
}

// CaptureStats aggregates record counts for one capture.
type CaptureStats struct {
	Name         string        `json:"name" yaml:"name"`
	Total        int           `json:"total" yaml:"total"`
	CryptoStates int           `json:"crypto_states" yaml:"crypto_states"`
	Login        int           `json:"login" yaml:"login"`
	Game         int           `json:"game" yaml:"game"`
	ToServer     int           `json:"to_server" yaml:"to_server"`
	ToClient     int           `json:"to_client" yaml:"to_client"`
	Scrubbed     int           `json:"scrubbed" yaml:"scrubbed"`
	PayloadBytes int64         `json:"payload_bytes" yaml:"payload_bytes"`
	TopOpcodes   []OpcodeCount `json:"top_opcodes" yaml:"top_opcodes"`
}

// OpcodeCount is a packet description and how often it occurred.
type OpcodeCount struct {
	Opcode string `json:"opcode" yaml:"opcode"`
	Count  int    `json:"count" yaml:"count"`
}

// VerifyResponse is the outcome of a full decode of a capture file.
type VerifyResponse struct {
	Path     string   `json:"path" yaml:"path"`
	Valid    bool     `json:"valid" yaml:"valid"`
	Records  int      `json:"records" yaml:"records"`
	Kind     string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}
