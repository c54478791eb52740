package reader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/psforever/GameLogger/capture"
	"github.com/psforever/GameLogger/gamerecord"
)

var start = time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC)

func writeCapture(t *testing.T) (*capture.File, string) {
	t.Helper()
	clock := start
	f := capture.New(capture.WithClock(func() time.Time {
		defer func() { clock = clock.Add(90 * time.Second) }()
		return clock
	}))
	f.SetName("Oshur drop")

	login := []byte{0x00, 0x09, 0x00, 0x00, 0x01, 0x03}
	f.AddRecords(
		gamerecord.Record{Timestamp: 1, Body: gamerecord.CryptoState{}},
		gamerecord.Record{Timestamp: 2, Body: gamerecord.Packet{Type: gamerecord.PacketLogin, Destination: gamerecord.ToServer, Payload: login}},
		gamerecord.Record{Timestamp: 3, Body: gamerecord.Packet{Type: gamerecord.PacketGame, Destination: gamerecord.ToClient, Payload: []byte{0x00, 0x19, 0xaa}}},
		gamerecord.Record{Timestamp: 4, Body: gamerecord.Packet{Type: gamerecord.PacketGame, Destination: gamerecord.ToClient, Payload: []byte{0x00, 0x19}}},
		gamerecord.Record{Timestamp: 5, Body: gamerecord.Packet{Type: gamerecord.PacketGame, Destination: gamerecord.ToServer, Payload: []byte{0x3c, 0x01}}},
	)
	f.Finalize()

	path := filepath.Join(t.TempDir(), capture.DefaultFilename(start))
	if err := f.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return f, path
}

func TestInspectCapture(t *testing.T) {
	_, path := writeCapture(t)
	f, warnings, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}

	resp := InspectCapture(f, warnings, 3)
	if resp.Name != "Oshur drop" || resp.Records != 5 || resp.Revision != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.EndTime == nil || !resp.EndTime.Equal(start.Add(90*time.Second)) {
		t.Errorf("end time = %v", resp.EndTime)
	}
	if resp.Duration != "1m30s" {
		t.Errorf("duration = %q, want 1m30s", resp.Duration)
	}
	if len(resp.Listing) != 3 {
		t.Fatalf("listing = %d rows, want 3", len(resp.Listing))
	}
	if resp.Listing[0].Kind != "crypto_state" || resp.Listing[0].Opcode != "" {
		t.Errorf("row 0 = %+v", resp.Listing[0])
	}
	if resp.Listing[2].Opcode != "AggregatePacket" || resp.Listing[2].Destination != "client" {
		t.Errorf("row 2 = %+v", resp.Listing[2])
	}
}

func TestListRecords_Bounds(t *testing.T) {
	f, _ := writeCapture(t)
	if got := ListRecords(f, 4, 10); len(got) != 1 || got[0].Index != 4 {
		t.Errorf("tail = %+v", got)
	}
	if got := ListRecords(f, 5, 10); len(got) != 0 {
		t.Errorf("past end = %+v", got)
	}
}

func TestStats(t *testing.T) {
	f, _ := writeCapture(t)
	st := Stats(f, 2)

	if st.Total != 5 || st.CryptoStates != 1 || st.Login != 1 || st.Game != 3 {
		t.Errorf("counts = %+v", st)
	}
	if st.ToServer != 2 || st.ToClient != 2 {
		t.Errorf("directions = %d/%d", st.ToServer, st.ToClient)
	}
	if st.Scrubbed != 1 {
		t.Errorf("scrubbed = %d, want 1", st.Scrubbed)
	}
	if st.PayloadBytes != 6+3+2+2 {
		t.Errorf("payload bytes = %d", st.PayloadBytes)
	}
	if len(st.TopOpcodes) != 2 || st.TopOpcodes[0] != (OpcodeCount{"AggregatePacket", 2}) {
		t.Errorf("top opcodes = %+v", st.TopOpcodes)
	}
}

func TestVerify(t *testing.T) {
	_, path := writeCapture(t)

	resp, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !resp.Valid || resp.Records != 5 {
		t.Errorf("resp = %+v", resp)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'
	bad := filepath.Join(t.TempDir(), "bad.gcap")
	if err := os.WriteFile(bad, data, 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err = Verify(bad)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Valid || resp.Kind != capture.ErrBadMagic.Error() {
		t.Errorf("resp = %+v, want bad magic", resp)
	}

	if _, err := Verify(filepath.Join(t.TempDir(), "missing.gcap")); err == nil {
		t.Error("missing file should be an I/O error")
	}
}

func TestVerify_Warnings(t *testing.T) {
	_, path := writeCapture(t)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data = append(data, 0xde, 0xad)
	trailing := filepath.Join(t.TempDir(), "trailing.gcap")
	if err := os.WriteFile(trailing, data, 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := Verify(trailing)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !resp.Valid || len(resp.Warnings) == 0 {
		t.Errorf("resp = %+v, want valid with a trailing-bytes warning", resp)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
