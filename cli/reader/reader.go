package reader

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/psforever/GameLogger/capture"
	"github.com/psforever/GameLogger/gamerecord"
	"github.com/psforever/GameLogger/log"
	"github.com/psforever/GameLogger/types"
)

// DefaultTopOpcodes is how many opcodes CaptureStats reports.
const DefaultTopOpcodes = 10

// Open loads the capture at path and returns it together with any load
// warnings (end before start, trailing bytes).
func Open(path string) (*capture.File, []string, error) {
	var buf bytes.Buffer
	logger, err := log.NewLoggerWithOptions(&types.SessionMeta{}, log.Options{Level: "warn", Output: &buf})
	if err != nil {
		return nil, nil, err
	}
	f, err := capture.Load(path, &capture.LoadOptions{Logger: logger})
	return f, warningsFrom(&buf), err
}

// warningsFrom extracts the message field from JSON log lines.
func warningsFrom(buf *bytes.Buffer) []string {
	var out []string
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var line struct {
			Msg string `json:"message"`
		}
		if json.Unmarshal(sc.Bytes(), &line) == nil && line.Msg != "" {
			out = append(out, line.Msg)
		}
	}
	return out
}

// InspectCapture summarises f. limit > 0 includes the first limit records.
func InspectCapture(f *capture.File, warnings []string, limit int) *InspectCaptureResponse {
	resp := &InspectCaptureResponse{
		GUID:        f.GUID().String(),
		Name:        f.Name(),
		Description: f.Description(),
		Path:        f.Path(),
		Revision:    f.Revision(),
		Records:     f.Len(),
		StartTime:   f.StartTime().UTC(),
		Duration:    f.Duration().Round(time.Second).String(),
		Size:        f.EstimatedSize(),
		SizeHuman:   FormatBytes(f.EstimatedSize()),
		Warnings:    warnings,
	}
	if end := f.EndTime(); !end.IsZero() {
		end = end.UTC()
		resp.EndTime = &end
	}
	if limit > 0 {
		resp.Listing = ListRecords(f, 0, limit)
	}
	return resp
}

// ListRecords summarises up to n records starting at offset.
func ListRecords(f *capture.File, offset, n int) []RecordSummary {
	total := f.Len()
	if offset >= total || n <= 0 {
		return []RecordSummary{}
	}
	end := min(offset+n, total)
	out := make([]RecordSummary, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, summarize(i, f.Record(i)))
	}
	return out
}

func summarize(i int, r gamerecord.Record) RecordSummary {
	s := RecordSummary{
		Index:     i,
		Timestamp: r.Timestamp,
		Kind:      r.Body.Kind().String(),
		Size:      r.EncodedSize(),
	}
	if p, ok := r.Packet(); ok {
		s.Type = p.Type.String()
		s.Destination = p.Destination.String()
		s.Opcode = gamerecord.Describe(p)
	}
	return s
}

// Stats counts records by kind, type, direction and opcode.
func Stats(f *capture.File, top int) *CaptureStats {
	if top <= 0 {
		top = DefaultTopOpcodes
	}
	st := &CaptureStats{Name: f.Name(), Total: f.Len()}
	opcodes := make(map[string]int)
	for _, r := range f.Records() {
		p, ok := r.Packet()
		if !ok {
			st.CryptoStates++
			continue
		}
		switch p.Type {
		case gamerecord.PacketLogin:
			st.Login++
		case gamerecord.PacketGame:
			st.Game++
		}
		switch p.Destination {
		case gamerecord.ToServer:
			st.ToServer++
		case gamerecord.ToClient:
			st.ToClient++
		}
		if gamerecord.IsScrubbed(p) {
			st.Scrubbed++
		}
		st.PayloadBytes += int64(len(p.Payload))
		opcodes[gamerecord.Describe(p)]++
	}

	st.TopOpcodes = make([]OpcodeCount, 0, len(opcodes))
	for op, n := range opcodes {
		st.TopOpcodes = append(st.TopOpcodes, OpcodeCount{Opcode: op, Count: n})
	}
	slices.SortFunc(st.TopOpcodes, func(a, b OpcodeCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Opcode, b.Opcode)
	})
	if len(st.TopOpcodes) > top {
		st.TopOpcodes = st.TopOpcodes[:top]
	}
	return st
}

// Verify fully decodes the capture at path. Decode failures are reported
// in the response rather than returned; only I/O errors are returned.
func Verify(path string) (*VerifyResponse, error) {
	f, warnings, err := Open(path)
	resp := &VerifyResponse{Path: path, Warnings: warnings}
	if err != nil {
		var invalid *capture.InvalidFileError
		if !errors.As(err, &invalid) {
			return nil, err
		}
		resp.Kind = invalid.Kind.Error()
		resp.Error = err.Error()
		return resp, nil
	}
	resp.Valid = true
	resp.Records = f.Len()
	return resp, nil
}
